package provider

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"botchat/provider/testutil"
)

func collect(updates *[]string) func(string) {
	return func(s string) { *updates = append(*updates, s) }
}

func TestParseStreamRoundTrip(t *testing.T) {
	body := testutil.JoinFrames(
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: [DONE]`,
	)

	var updates []string
	full, err := ParseStream(strings.NewReader(body), nil, collect(&updates))

	require.NoError(t, err)
	assert.Equal(t, "Hello", full)
	assert.Equal(t, []string{"Hel", "Hello", "Hello"}, updates)
}

func TestParseStreamSkipsMalformedFrames(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	body := testutil.JoinFrames(
		": keep-alive",
		testutil.Frame("a"),
		"data: {not json",
		"event: message",
		testutil.Frame("b"),
		testutil.Done,
	)

	var updates []string
	full, err := ParseStream(strings.NewReader(body), zap.New(core), collect(&updates))

	require.NoError(t, err)
	assert.Equal(t, "ab", full)
	assert.Equal(t, []string{"a", "ab", "ab"}, updates)
	require.Equal(t, 1, logs.Len())

	field, ok := logs.All()[0].ContextMap()["error"]
	require.True(t, ok)
	assert.Contains(t, field, "malformed stream frame")
}

func TestParseStreamWithoutTerminator(t *testing.T) {
	body := testutil.Frame("x") + "\n" + testutil.Frame("y")

	var updates []string
	full, err := ParseStream(strings.NewReader(body), nil, collect(&updates))

	require.NoError(t, err)
	assert.Equal(t, "xy", full)
	assert.Equal(t, []string{"x", "xy", "xy"}, updates)
}

func TestParseStreamEmptyDeltas(t *testing.T) {
	body := testutil.JoinFrames(
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
		testutil.Frame("only"),
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		testutil.Done,
	)

	var updates []string
	full, err := ParseStream(strings.NewReader(body), nil, collect(&updates))

	require.NoError(t, err)
	assert.Equal(t, "only", full)
	assert.Equal(t, []string{"only", "only"}, updates)
}

func TestParseStreamErrorFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"object error", testutil.ErrorFrame("overloaded"), "overloaded"},
		{"string error", `data: {"error":"rate limited"}`, "rate limited"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := testutil.JoinFrames(testutil.Frame("par"), tt.frame, testutil.Frame("never"))

			var updates []string
			partial, err := ParseStream(strings.NewReader(body), nil, collect(&updates))

			var frameErr *FrameError
			require.ErrorAs(t, err, &frameErr)
			assert.Equal(t, tt.want, frameErr.Message)
			assert.Equal(t, "par", partial)
			assert.Equal(t, []string{"par"}, updates)
		})
	}
}

func TestParseStreamNullErrorFieldIsIgnored(t *testing.T) {
	body := testutil.JoinFrames(`data: {"choices":[{"delta":{"content":"ok"}}],"error":null}`, testutil.Done)

	full, err := ParseStream(strings.NewReader(body), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", full)
}

func TestParseStreamReadError(t *testing.T) {
	r := io.MultiReader(
		strings.NewReader(testutil.Frame("part")+"\n"),
		iotest.ErrReader(errors.New("connection reset")),
	)

	partial, err := ParseStream(r, nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, "part", partial)
}

func TestParseStreamUpdatesAreMonotonic(t *testing.T) {
	pieces := []string{"The", " quick", "", " brown", " 狐狸", " jumps", "\n", "over"}
	frames := make([]string, 0, len(pieces)+1)
	for _, p := range pieces {
		frames = append(frames, testutil.Frame(p))
	}
	frames = append(frames, testutil.Done)

	var updates []string
	full, err := ParseStream(strings.NewReader(testutil.JoinFrames(frames...)), nil, collect(&updates))
	require.NoError(t, err)

	assert.Equal(t, strings.Join(pieces, ""), full)
	require.NotEmpty(t, updates)
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, len(updates[i]), len(updates[i-1]))
		assert.True(t, strings.HasPrefix(updates[i], updates[i-1]))
	}
	assert.Equal(t, full, updates[len(updates)-1])
}
