package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botchat/provider/testutil"
)

func serverConfig(url string) Config {
	return Config{Supplier: "openai", BaseURL: url, APIKey: "sk-live", Model: "gpt-4o"}
}

func TestSendMessageStream(t *testing.T) {
	srv := testutil.NewMockServer(t, testutil.StreamHandler(
		testutil.Frame("Hel"), testutil.Frame("lo"), testutil.Done,
	))
	h := NewHandle(serverConfig(srv.URL+"/"), nil)
	require.Equal(t, HandleReal, h.Kind())

	var updates []string
	full, err := h.SendMessageStream(context.Background(), Input{SystemPrompt: "sys", Text: "hi"}, collect(&updates))

	require.NoError(t, err)
	assert.Equal(t, "Hello", full)
	assert.Equal(t, []string{"Hel", "Hello", "Hello"}, updates)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/chat/completions", reqs[0].Path)
	assert.Equal(t, "Bearer sk-live", reqs[0].Authorization)
	assert.Equal(t, true, reqs[0].Body["stream"])
	assert.Equal(t, 0.9, reqs[0].Body["top_p"])
	assert.Equal(t, "gpt-4o", reqs[0].Body["model"])
	assert.Len(t, reqs[0].Body["messages"], 2)
}

func TestSendMessage(t *testing.T) {
	srv := testutil.NewMockServer(t, testutil.JSONHandler(http.StatusOK, testutil.CompletionBody("A title")))
	h := NewHandle(serverConfig(srv.URL), nil)

	reply, err := h.SendMessage(context.Background(), Input{Text: "name this"})

	require.NoError(t, err)
	assert.Equal(t, "A title", reply)
	require.Equal(t, 1, srv.Hits())
	body := srv.Requests()[0].Body
	assert.Equal(t, false, body["stream"])
	assert.Equal(t, 1.0, body["top_p"])
	assert.Equal(t, 1000.0, body["max_tokens"])
}

func TestBlankKeyNeverReachesNetwork(t *testing.T) {
	srv := testutil.NewMockServer(t, testutil.JSONHandler(http.StatusOK, testutil.CompletionBody("nope")))

	for _, key := range []string{"", "  "} {
		cfg := serverConfig(srv.URL)
		cfg.APIKey = key

		h := NewHandle(cfg, nil)
		assert.Equal(t, HandleDegraded, h.Kind())

		_, err := h.SendMessage(context.Background(), Input{Text: "hi"})
		assert.ErrorIs(t, err, ErrEmptyCredential)

		_, err = h.SendMessageStream(context.Background(), Input{Text: "hi"}, nil)
		assert.ErrorIs(t, err, ErrEmptyCredential)

		// Going around the handle must not send either.
		_, err = Real(NewClient(cfg, nil)).SendMessage(context.Background(), Input{Text: "hi"})
		assert.ErrorIs(t, err, ErrEmptyCredential)
	}

	assert.Equal(t, 0, srv.Hits())
}

func TestSendMessageFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantHint bool
	}{
		{"insufficient balance", http.StatusPaymentRequired, `{"error":{"message":"Insufficient Balance"}}`, false},
		{"unauthorized", http.StatusUnauthorized, testutil.ErrorBody("Incorrect API key", "invalid_api_key"), true},
		{"invalid key code on 403", http.StatusForbidden, testutil.ErrorBody("bad key", "invalid_api_key"), true},
		{"server error with garbage body", http.StatusInternalServerError, "<html>oops</html>", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testutil.NewMockServer(t, testutil.JSONHandler(tt.status, tt.body))
			h := NewHandle(serverConfig(srv.URL), nil)

			reply, err := h.SendMessage(context.Background(), Input{Text: "hi"})

			require.NoError(t, err)
			assert.Contains(t, reply, SimulatedMarker)
			assert.Contains(t, reply, `"hi"`)
			if tt.wantHint {
				assert.Contains(t, reply, "check your API key settings")
			} else {
				assert.NotContains(t, reply, "check your API key settings")
			}
		})
	}
}

func TestStreamErrorsAreClassified(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "401 is an invalid credential",
			status: http.StatusUnauthorized,
			body:   "",
			check: func(t *testing.T, err error) {
				var target *InvalidCredentialError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, http.StatusUnauthorized, target.Status)
				assert.True(t, IsCredentialError(err))
			},
		},
		{
			name:   "balance",
			status: http.StatusPaymentRequired,
			body:   `{"error":{"message":"Insufficient Balance"}}`,
			check: func(t *testing.T, err error) {
				var target *BalanceError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, "Insufficient Balance", target.Message)
			},
		},
		{
			name:   "generic with message",
			status: http.StatusBadRequest,
			body:   testutil.ErrorBody("model not found", "model_not_found"),
			check: func(t *testing.T, err error) {
				var target *RequestError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, "model not found", target.Message)
			},
		},
		{
			name:   "generic unparsable",
			status: http.StatusBadGateway,
			body:   "bad gateway",
			check: func(t *testing.T, err error) {
				var target *RequestError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, "HTTP 502", target.Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testutil.NewMockServer(t, testutil.JSONHandler(tt.status, tt.body))
			h := NewHandle(serverConfig(srv.URL), nil)

			var updates []string
			partial, err := h.SendMessageStream(context.Background(), Input{Text: "hi"}, collect(&updates))

			tt.check(t, err)
			assert.Empty(t, partial)
			assert.Empty(t, updates)
		})
	}
}

func TestStreamOutlivesRequestTimeout(t *testing.T) {
	srv := testutil.NewMockServer(t, testutil.PacedStreamHandler(100*time.Millisecond,
		testutil.Frame("x0"), testutil.Frame("x1"), testutil.Frame("x2"),
		testutil.Frame("x3"), testutil.Frame("x4"), testutil.Done,
	))
	cfg := serverConfig(srv.URL)
	cfg.Timeout = 250 * time.Millisecond

	full, err := NewHandle(cfg, nil).SendMessageStream(context.Background(), Input{Text: "hi"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "x0x1x2x3x4", full)
}

func TestCompleteHonoursRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	srv := testutil.NewMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	cfg := serverConfig(srv.URL)
	cfg.Timeout = 100 * time.Millisecond

	_, err := NewClient(cfg, nil).Complete(context.Background(), Request{Model: cfg.Model})
	require.Error(t, err)
}

func TestCompleteWithoutChoices(t *testing.T) {
	srv := testutil.NewMockServer(t, testutil.JSONHandler(http.StatusOK, `{"choices":[]}`))

	reply, err := NewHandle(serverConfig(srv.URL), nil).SendMessage(context.Background(), Input{Text: "hi"})

	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestStreamUnavailable(t *testing.T) {
	cfg := serverConfig("https://unused.example.com")
	cfg.HTTPClient = &http.Client{Transport: testutil.NoBodyTransport{}}

	_, err := NewHandle(cfg, nil).SendMessageStream(context.Background(), Input{Text: "hi"}, nil)
	assert.ErrorIs(t, err, ErrStreamUnavailable)
}

func TestStreamCancellationKeepsPartial(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	srv := testutil.NewMockServer(t, testutil.BlockingStreamHandler(release, testutil.Frame("Hel")))
	h := NewHandle(serverConfig(srv.URL), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	partial, err := h.SendMessageStream(ctx, Input{Text: "hi"}, func(content string) {
		if content == "Hel" {
			cancel()
		}
	})

	require.Error(t, err)
	assert.Equal(t, "Hel", partial)
	assert.True(t, errors.Is(ctx.Err(), context.Canceled))
}

func TestDegradedHandleReason(t *testing.T) {
	reason := errors.New("supplier removed")
	h := Degraded(reason, nil)

	assert.Equal(t, HandleDegraded, h.Kind())
	assert.Equal(t, "degraded", h.Kind().String())
	assert.Equal(t, Config{}, h.Config())

	_, err := h.SendMessage(context.Background(), Input{Text: "x"})
	assert.ErrorIs(t, err, reason)
}
