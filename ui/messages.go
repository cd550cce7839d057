package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"botchat/catalog"
	"botchat/chat"
	"botchat/config"
	"botchat/conversation"
	"botchat/provider"
)

// storeChangedMsg tells the view to re-read its snapshot.
type storeChangedMsg struct{}

type replyMsg struct {
	sessionID string
	chatID    string
	reply     chat.Reply
	err       error
}

type titleMsg struct {
	title string
	err   error
}

type verifyMsg struct {
	results []provider.PingResult
}

type copiedMsg struct {
	err error
}

// waitForChange blocks until the store signals a change.
func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return storeChangedMsg{}
	}
}

func submitCmd(ctx context.Context, svc *chat.Service, sub chat.Submission) tea.Cmd {
	return func() tea.Msg {
		reply, err := svc.Submit(ctx, sub, nil)
		return replyMsg{chatID: sub.ChatID, sessionID: sub.SessionID, reply: reply, err: err}
	}
}

func autoTitleCmd(svc *chat.Service, chatID, sessionID string) tea.Cmd {
	return func() tea.Msg {
		title, err := svc.AutoTitle(context.Background(), chatID, sessionID)
		return titleMsg{title: title, err: err}
	}
}

func verifyCmd(cat *catalog.Catalog) tea.Cmd {
	return func() tea.Msg {
		return verifyMsg{results: cat.VerifyAll(context.Background())}
	}
}

func copyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{err: clipboard.WriteAll(text)}
	}
}

// errorText turns a send failure into a line for the status bar.
func errorText(err error) string {
	var (
		invalid *provider.InvalidCredentialError
		balance *provider.BalanceError
	)
	switch {
	case errors.Is(err, provider.ErrEmptyCredential):
		return "No API key for this supplier. Press ctrl+k to add one."
	case errors.As(err, &invalid):
		return "The API key was rejected. Press ctrl+k to update it."
	case errors.As(err, &balance):
		return "Insufficient balance on this supplier account."
	case errors.Is(err, conversation.ErrSessionBusy):
		return "A reply is still streaming in this session."
	case errors.Is(err, chat.ErrNoModel):
		return "This bot is not bound to a model."
	case errors.Is(err, context.Canceled):
		return "Reply cancelled."
	case errors.Is(err, config.ErrPassphraseRequired):
		return "The SSH key needs its passphrase before keys can be saved."
	default:
		return "Error: " + err.Error()
	}
}

// verifySummary renders "openai ok  deepseek failed" style results.
func verifySummary(results []provider.PingResult) string {
	if len(results) == 0 {
		return "No supplier has an API key yet."
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		state := "ok"
		if !r.Valid {
			state = "failed"
		}
		parts = append(parts, fmt.Sprintf("%s %s", r.Supplier, state))
	}
	return "Verified: " + strings.Join(parts, "  ")
}
