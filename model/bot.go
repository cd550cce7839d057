package model

import (
	"fmt"
	"strings"
	"time"
)

// RefSeparator joins a supplier name and a model id into a model reference.
const RefSeparator = "/"

// ModelRef returns the fully qualified reference "supplier/modelID".
func ModelRef(supplier, modelID string) string {
	return supplier + RefSeparator + modelID
}

// ParseModelRef splits a reference on its first separator. Model ids may
// themselves contain the separator (e.g. "deepseek-ai/DeepSeek-V3").
func ParseModelRef(ref string) (supplier, modelID string, err error) {
	supplier, modelID, ok := strings.Cut(ref, RefSeparator)
	if !ok || supplier == "" || modelID == "" {
		return "", "", fmt.Errorf("invalid model reference %q", ref)
	}
	return supplier, modelID, nil
}

// BotModel pins a bot to one supplier model.
type BotModel struct {
	SupplierID string `json:"supplierId"`
	ModelID    string `json:"modelId"`
}

// Ref returns the fully qualified model reference.
func (m BotModel) Ref() string {
	return ModelRef(m.SupplierID, m.ModelID)
}

// Bot is a persona: a system prompt, an opening line and an optional model.
type Bot struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Prompt      string    `json:"prompt,omitempty"`
	Prologue    string    `json:"prologue"`
	Avatar      string    `json:"avatar,omitempty"`
	Description string    `json:"description,omitempty"`
	IsDefault   bool      `json:"isDefault"`
	Model       *BotModel `json:"model,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Clone returns a copy that shares no pointers with b.
func (b Bot) Clone() Bot {
	out := b
	if b.Model != nil {
		m := *b.Model
		out.Model = &m
	}
	return out
}

// ModelRef returns the bot's model reference or "" when unbound.
func (b Bot) ModelRef() string {
	if b.Model == nil {
		return ""
	}
	return b.Model.Ref()
}
