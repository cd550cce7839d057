package provider

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyCredential is returned before any network call when the API
	// key is blank. It is never replaced by a simulated reply.
	ErrEmptyCredential = errors.New("API key is empty")

	// ErrStreamUnavailable means the response carried no readable body.
	ErrStreamUnavailable = errors.New("response body is not readable as a stream")
)

// BalanceError reports that the supplier account has run out of credit.
type BalanceError struct {
	Status  int
	Message string
}

func (e *BalanceError) Error() string {
	return "insufficient balance: " + e.Message
}

// InvalidCredentialError reports a rejected API key (or HTTP 401).
type InvalidCredentialError struct {
	Status  int
	Message string
}

func (e *InvalidCredentialError) Error() string {
	return "invalid API key: " + e.Message
}

// RequestError is any other non-2xx response.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// FrameError is an error object delivered inside a stream frame. It ends
// the stream.
type FrameError struct {
	Message string
	Code    string
}

func (e *FrameError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream stream error (%s): %s", e.Code, e.Message)
	}
	return "upstream stream error: " + e.Message
}

// MalformedFrameError describes a frame that could not be decoded. It is
// logged and the stream continues.
type MalformedFrameError struct {
	Frame string
	Err   error
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed stream frame %q: %v", e.Frame, e.Err)
}

func (e *MalformedFrameError) Unwrap() error { return e.Err }

// errorEnvelope is the error body shape shared by OpenAI-compatible APIs.
type errorEnvelope struct {
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func (e *apiError) code() string {
	if e == nil || e.Code == nil {
		return ""
	}
	return fmt.Sprint(e.Code)
}

// classifyError maps a non-2xx response onto the error taxonomy. env may
// be nil when the body was not a recognisable envelope.
func classifyError(status int, env *apiError) error {
	msg := ""
	if env != nil {
		msg = env.Message
	}

	switch {
	case strings.Contains(strings.ToLower(msg), "insufficient balance") || status == 402:
		if msg == "" {
			msg = "Insufficient Balance"
		}
		return &BalanceError{Status: status, Message: msg}
	case env.code() == "invalid_api_key" || status == 401:
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", status)
		}
		return &InvalidCredentialError{Status: status, Message: msg}
	default:
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", status)
		}
		return &RequestError{Status: status, Message: msg}
	}
}

// IsCredentialError reports whether err means the key is missing or rejected.
func IsCredentialError(err error) bool {
	var invalid *InvalidCredentialError
	return errors.Is(err, ErrEmptyCredential) || errors.As(err, &invalid)
}
