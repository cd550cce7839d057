package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const maxErrorBody = 1 << 20

// Client performs chat completion exchanges against one endpoint.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a client. The key is checked per call, not here.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = newHTTPClient(cfg.Timeout)
	}
	return &Client{
		cfg:    cfg,
		http:   hc,
		logger: logger.With(zap.String("supplier", cfg.Supplier), zap.String("model", cfg.Model)),
	}
}

// newHTTPClient bounds connection setup and the wait for response headers.
// The body has no deadline so a stream can run until the supplier ends it.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	transport.TLSHandshakeTimeout = timeout
	return &http.Client{Transport: transport}
}

// Config returns the snapshot the client was built with.
func (c *Client) Config() Config {
	return c.cfg
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

// Complete sends a non-streaming request and returns the reply text.
// Errors are classified (BalanceError, InvalidCredentialError, RequestError)
// but never replaced by a fallback here.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	req.Stream = false
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &RequestError{Status: resp.StatusCode, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	if len(body.Choices) == 0 {
		if body.Error != nil {
			return "", classifyError(resp.StatusCode, body.Error)
		}
		return "", nil
	}

	return body.Choices[0].Message.Content, nil
}

// Stream sends a streaming request and feeds frames to ParseStream. The
// returned text is complete on success and partial on error.
func (c *Client) Stream(ctx context.Context, req Request, onUpdate func(content string)) (string, error) {
	req.Stream = true
	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return "", ErrStreamUnavailable
	}
	defer resp.Body.Close()

	return ParseStream(resp.Body, c.logger, onUpdate)
}

// do sends the request and turns non-2xx responses into classified errors.
func (c *Client) do(ctx context.Context, req Request) (*http.Response, error) {
	if !c.cfg.HasCredential() {
		return nil, ErrEmptyCredential
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	c.logger.Debug("sending chat request",
		zap.Bool("stream", req.Stream),
		zap.Int("messages", len(req.Messages)),
		zap.String("endpoint", c.cfg.Endpoint()))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var env errorEnvelope
		_ = json.Unmarshal(data, &env)
		classified := classifyError(resp.StatusCode, env.Error)
		c.logger.Warn("chat request rejected", zap.Int("status", resp.StatusCode), zap.Error(classified))
		return nil, classified
	}

	return resp, nil
}
