package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// HandleKind tags the two Handle variants.
type HandleKind int

const (
	// HandleReal wraps a configured Client.
	HandleReal HandleKind = iota
	// HandleDegraded cannot reach any endpoint; every send returns Reason.
	HandleDegraded
)

func (k HandleKind) String() string {
	switch k {
	case HandleReal:
		return "real"
	case HandleDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("HandleKind(%d)", int(k))
	}
}

// Handle is what the conversation layer holds for a chat: Real(client) or
// Degraded(reason).
type Handle struct {
	kind   HandleKind
	client *Client
	reason error
	logger *zap.Logger
}

// Real wraps a client.
func Real(c *Client) *Handle {
	return &Handle{kind: HandleReal, client: c, logger: c.logger}
}

// Degraded builds a handle that refuses every send with reason.
func Degraded(reason error, logger *zap.Logger) *Handle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handle{kind: HandleDegraded, reason: reason, logger: logger}
}

// NewHandle returns Degraded(ErrEmptyCredential) for a blank key and a
// Real handle otherwise.
func NewHandle(cfg Config, logger *zap.Logger) *Handle {
	if !cfg.HasCredential() {
		return Degraded(ErrEmptyCredential, logger)
	}
	return Real(NewClient(cfg, logger))
}

func (h *Handle) Kind() HandleKind { return h.kind }

// Reason is nil for real handles.
func (h *Handle) Reason() error { return h.reason }

// Config returns the client snapshot; zero for degraded handles.
func (h *Handle) Config() Config {
	if h.client == nil {
		return Config{}
	}
	return h.client.Config()
}

// dispatch is the single branch point between the two variants.
func (h *Handle) dispatch() (*Client, error) {
	switch h.kind {
	case HandleReal:
		return h.client, nil
	case HandleDegraded:
		return nil, h.reason
	default:
		return nil, fmt.Errorf("unknown handle kind %s", h.kind)
	}
}

// SendMessage performs a best-effort, non-streaming exchange. Provider
// failures turn into a simulated reply; only a missing credential (or a
// cancelled context) is returned as an error.
func (h *Handle) SendMessage(ctx context.Context, in Input) (string, error) {
	c, err := h.dispatch()
	if err != nil {
		return "", err
	}
	req, err := NewRequest(c.cfg, in, false)
	if err != nil {
		return "", err
	}

	reply, err := c.Complete(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		h.logger.Warn("using simulated reply", zap.Error(err))
		return Fallback(in.Text, err), nil
	}
	return reply, nil
}

// SendMessageStream streams a reply. onUpdate always receives the full
// text so far. Errors are returned with the partial text.
func (h *Handle) SendMessageStream(ctx context.Context, in Input, onUpdate func(content string)) (string, error) {
	c, err := h.dispatch()
	if err != nil {
		return "", err
	}
	req, err := NewRequest(c.cfg, in, true)
	if err != nil {
		return "", err
	}
	return c.Stream(ctx, req, onUpdate)
}
