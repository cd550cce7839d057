package provider

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

const doneToken = "[DONE]"

type streamFrame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error json.RawMessage `json:"error"`
}

func (f *streamFrame) content() string {
	if len(f.Choices) == 0 {
		return ""
	}
	return f.Choices[0].Delta.Content
}

// frameError decodes the error field, which is an object on most
// suppliers and a bare string on a few.
func (f *streamFrame) frameError() error {
	raw := strings.TrimSpace(string(f.Error))
	if raw == "" || raw == "null" {
		return nil
	}
	var obj apiError
	if err := json.Unmarshal(f.Error, &obj); err == nil {
		return &FrameError{Message: obj.Message, Code: obj.code()}
	}
	var s string
	if err := json.Unmarshal(f.Error, &s); err == nil {
		return &FrameError{Message: s}
	}
	return &FrameError{Message: raw}
}

// framePayload strips the SSE field name. ok is false for lines that carry
// no data (comments, event names, ids).
func framePayload(line string) (payload string, ok bool) {
	switch {
	case line == "":
		return "", false
	case strings.HasPrefix(line, ":"):
		return "", false
	case strings.HasPrefix(line, "data:"):
		return strings.TrimSpace(strings.TrimPrefix(line, "data:")), true
	case strings.HasPrefix(line, "event:"), strings.HasPrefix(line, "id:"), strings.HasPrefix(line, "retry:"):
		return "", false
	default:
		return line, true
	}
}

// ParseStream reads newline-delimited frames from r and rebuilds the reply.
//
// onUpdate receives the whole accumulated text after every frame that adds
// content, and once more when the stream ends. Frames that fail to decode
// are logged and skipped. A frame carrying an error field stops the stream.
// On error the text accumulated so far is returned alongside it.
func ParseStream(r io.Reader, logger *zap.Logger, onUpdate func(content string)) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	emit := func(s string) {
		if onUpdate != nil {
			onUpdate(s)
		}
	}

	br := bufio.NewReader(r)
	var buf strings.Builder
	frames := 0

	for {
		line, readErr := br.ReadString('\n')
		payload, ok := framePayload(strings.TrimSpace(line))
		if ok {
			if payload == doneToken {
				break
			}
			frames++

			var frame streamFrame
			if err := json.Unmarshal([]byte(payload), &frame); err != nil {
				logger.Warn("skipping stream frame",
					zap.Int("frame", frames),
					zap.Error(&MalformedFrameError{Frame: payload, Err: err}))
			} else {
				if ferr := frame.frameError(); ferr != nil {
					return buf.String(), ferr
				}
				if delta := frame.content(); delta != "" {
					buf.WriteString(delta)
					emit(buf.String())
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return buf.String(), fmt.Errorf("failed to read stream: %w", readErr)
		}
	}

	full := buf.String()
	emit(full)
	logger.Debug("stream finished", zap.Int("frames", frames), zap.Int("length", len(full)))
	return full, nil
}
