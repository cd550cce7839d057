package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// RecordedRequest is what the mock server saw.
type RecordedRequest struct {
	Path          string
	Authorization string
	Body          map[string]any
}

// MockServer is an OpenAI-compatible endpoint for tests.
type MockServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest
	handler  http.HandlerFunc
}

// NewMockServer starts a server answering with handler. Requests are
// recorded before handler runs.
func NewMockServer(t *testing.T, handler http.HandlerFunc) *MockServer {
	t.Helper()
	m := &MockServer{handler: handler}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Close)
	return m
}

func (m *MockServer) serve(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(data, &body)

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
	})
	handler := m.handler
	m.mu.Unlock()

	handler(w, r)
}

// SetHandler swaps the response behaviour.
func (m *MockServer) SetHandler(h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// Requests returns a copy of everything received so far.
func (m *MockServer) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// Hits is the number of requests received.
func (m *MockServer) Hits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// StreamHandler writes each frame on its own line, flushing as it goes.
func StreamHandler(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, f := range frames {
			_, _ = io.WriteString(w, f+"\n\n")
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// BlockingStreamHandler writes frames and then waits for the client to go
// away, or for release to be closed.
func BlockingStreamHandler(release <-chan struct{}, frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		StreamHandler(frames...)(w, r)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}
}

// PacedStreamHandler writes frames one at a time with interval between them.
func PacedStreamHandler(interval time.Duration, frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		if flusher != nil {
			flusher.Flush()
		}
		for _, f := range frames {
			select {
			case <-time.After(interval):
			case <-r.Context().Done():
				return
			}
			_, _ = io.WriteString(w, f+"\n\n")
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// JSONHandler answers with status and body.
func JSONHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

// NoBodyTransport answers every request with 200 and http.NoBody.
type NoBodyTransport struct{}

func (NoBodyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:       http.NoBody,
		Request:    r,
	}, nil
}

// JoinFrames renders frames as a raw stream body.
func JoinFrames(frames ...string) string {
	return strings.Join(frames, "\n") + "\n"
}
