package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelRef(t *testing.T) {
	tests := []struct {
		name         string
		ref          string
		wantSupplier string
		wantModel    string
		wantErr      bool
	}{
		{"simple", "deepseek/deepseek-chat", "deepseek", "deepseek-chat", false},
		{"model id with slash", "siliconflow/deepseek-ai/DeepSeek-V3", "siliconflow", "deepseek-ai/DeepSeek-V3", false},
		{"no separator", "gpt-4o", "", "", true},
		{"empty supplier", "/gpt-4o", "", "", true},
		{"empty model", "openai/", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			supplier, modelID, err := ParseModelRef(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSupplier, supplier)
			assert.Equal(t, tt.wantModel, modelID)
			assert.Equal(t, tt.ref, ModelRef(supplier, modelID))
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusStreaming, true},
		{StatusPending, StatusError, true},
		{StatusStreaming, StatusSent, true},
		{StatusStreaming, StatusError, true},
		{StatusSent, StatusStreaming, false},
		{StatusError, StatusSent, false},
		{StatusSent, StatusSent, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestNewSessionStartsWithPrologue(t *testing.T) {
	s := NewSession("chat-1", "", "Hello there")

	assert.Equal(t, DefaultSessionTitle, s.Title)
	require.Len(t, s.Messages, 1)
	first := s.Messages[0]
	assert.Equal(t, SenderBot, first.Sender)
	assert.Equal(t, StatusSent, first.Status)
	assert.Equal(t, "Hello there", first.Content)
	assert.Equal(t, s.ID, first.SessionID)
	assert.Equal(t, "chat-1", first.ChatID)
}

func TestChatCloneIsDeep(t *testing.T) {
	c := Chat{ID: "c", Sessions: []Session{NewSession("c", "", "")}}
	cp := c.Clone()
	cp.Sessions[0].Messages[0].Content = "changed"
	cp.Sessions[0].Title = "other"

	assert.Equal(t, DefaultPrologue, c.Sessions[0].Messages[0].Content)
	assert.Equal(t, DefaultSessionTitle, c.Sessions[0].Title)
}

func TestSupplierFindModel(t *testing.T) {
	s := Supplier{
		Name: "openai",
		ModelGroups: []ModelGroup{
			{ID: "g1", GroupName: "GPT-4", Models: []Model{{ID: "gpt-4o", Name: "GPT-4o"}}},
		},
	}

	m, ok := s.FindModel("gpt-4o")
	require.True(t, ok)
	assert.Equal(t, "GPT-4o", m.Name)

	_, ok = s.FindModel("missing")
	assert.False(t, ok)
}
