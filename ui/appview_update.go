package ui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"botchat/chat"
	"botchat/model"
)

func (a AppView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.layout()
		a.ready = true
		a.refresh(true)
		return a, nil

	case storeChangedMsg:
		a.refresh(a.viewport.AtBottom())
		return a, waitForChange(a.changes)

	case spinner.TickMsg:
		if !a.streaming {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		a.refresh(a.viewport.AtBottom())
		return a, cmd

	case replyMsg:
		a.streaming = false
		if a.cancelStream != nil {
			a.cancelStream()
			a.cancelStream = nil
		}
		a.refresh(true)
		if msg.err != nil {
			a.logger.Debug("reply failed", zap.String("session_id", msg.sessionID), zap.Error(msg.err))
			a.setError(errorText(msg.err))
			return a, nil
		}
		a.setStatus("")
		if s, err := a.store.Session(msg.chatID, msg.sessionID); err == nil && s.Title == model.DefaultSessionTitle {
			return a, autoTitleCmd(a.svc, msg.chatID, msg.sessionID)
		}
		return a, nil

	case titleMsg:
		if msg.err != nil {
			a.logger.Debug("auto title failed", zap.Error(msg.err))
		}
		return a, nil

	case verifyMsg:
		a.setStatus(verifySummary(msg.results))
		return a, nil

	case copiedMsg:
		if msg.err != nil {
			a.setError("Copy failed: " + msg.err.Error())
		} else {
			a.setStatus("Copied last reply")
		}
		return a, nil

	case tea.KeyMsg:
		if key.Matches(msg, a.keys.Quit) {
			if a.cancelStream != nil {
				a.cancelStream()
			}
			return a, tea.Quit
		}
		switch a.mode {
		case modeBots:
			return a.updateBots(msg)
		case modeKey:
			return a.updateKey(msg)
		case modeSearch:
			return a.updateSearch(msg)
		case modePassphrase:
			return a.updatePassphrase(msg)
		case modeHelp:
			a.mode = modeChat
			return a, nil
		}
		return a.updateChat(msg)
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	return a, cmd
}

func (a AppView) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := context.Background()

	switch {
	case key.Matches(msg, a.keys.Cancel):
		if a.cancelStream != nil {
			a.cancelStream()
			return a, nil
		}
		if _, ok := a.store.Quote(); ok {
			a.store.CancelQuote()
			a.setStatus("Quote removed")
		}
		return a, nil

	case key.Matches(msg, a.keys.Send):
		return a.send()

	case key.Matches(msg, a.keys.NewSession):
		if c, _, ok := a.store.Current(); ok {
			if _, err := a.store.NewSession(ctx, c.ID, ""); err != nil {
				a.setError(err.Error())
			}
		}
		a.refresh(true)
		return a, nil

	case key.Matches(msg, a.keys.DelSession):
		if a.streaming {
			a.setError("Wait for the reply to finish first.")
			return a, nil
		}
		if c, s, ok := a.store.Current(); ok {
			if err := a.store.DeleteSession(ctx, c.ID, s.ID); err != nil {
				a.setError(err.Error())
			}
		}
		a.refresh(true)
		return a, nil

	case key.Matches(msg, a.keys.NextSession):
		a.cycleSession(1)
		return a, nil

	case key.Matches(msg, a.keys.PrevSession):
		a.cycleSession(-1)
		return a, nil

	case key.Matches(msg, a.keys.Bots):
		a.mode = modeBots
		a.textarea.Blur()
		a.filterInput.SetValue("")
		a.filterInput.Focus()
		a.botMatches = a.filterBots("")
		a.botCursor = 0
		if c, _, ok := a.store.Current(); ok {
			for i, b := range a.botMatches {
				if b.ID == c.BotID {
					a.botCursor = i
				}
			}
		}
		return a, textinput.Blink

	case key.Matches(msg, a.keys.Quote):
		if m, ok := a.lastReply(); ok {
			a.store.SetQuote(m)
			a.setStatus("Quoting the last reply. Esc removes the quote.")
		}
		return a, nil

	case key.Matches(msg, a.keys.Copy):
		if m, ok := a.lastReply(); ok {
			return a, copyCmd(m.Content)
		}
		return a, nil

	case key.Matches(msg, a.keys.APIKey):
		supplier := a.currentSupplier()
		if supplier == "" {
			a.setError(errorText(chat.ErrNoModel))
			return a, nil
		}
		a.mode = modeKey
		a.keySupplier = supplier
		a.textarea.Blur()
		a.keyInput.SetValue("")
		a.keyInput.Focus()
		return a, textinput.Blink

	case key.Matches(msg, a.keys.Verify):
		a.setStatus("Verifying API keys...")
		return a, verifyCmd(a.catalog)

	case key.Matches(msg, a.keys.Export):
		if c, s, ok := a.store.Current(); ok {
			path, err := a.store.ExportSession(c.ID, s.ID, a.exportDir)
			if err != nil {
				a.setError(err.Error())
			} else {
				a.setStatus("Exported to " + path)
			}
		}
		return a, nil

	case key.Matches(msg, a.keys.Search):
		a.mode = modeSearch
		a.textarea.Blur()
		a.searchInput.SetValue("")
		a.searchInput.Focus()
		a.searchResults = nil
		a.searchCursor = 0
		return a, textinput.Blink

	case key.Matches(msg, a.keys.Help):
		a.mode = modeHelp
		return a, nil
	}

	switch msg.String() {
	case "pgup", "pgdown":
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	return a, cmd
}

func (a AppView) send() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(a.textarea.Value())
	if text == "" || a.streaming {
		return a, nil
	}
	c, s, ok := a.store.Current()
	if !ok {
		return a, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancelStream = cancel
	a.streaming = true
	a.textarea.Reset()
	a.setStatus("")

	sub := chat.Submission{ChatID: c.ID, SessionID: s.ID, Text: text}
	return a, tea.Batch(submitCmd(ctx, a.svc, sub), a.spinner.Tick)
}

func (a AppView) updateBots(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Cancel):
		a.closeOverlay()
		return a, nil

	case key.Matches(msg, a.keys.Up):
		if a.botCursor > 0 {
			a.botCursor--
		}
		return a, nil

	case key.Matches(msg, a.keys.Down):
		if a.botCursor < len(a.botMatches)-1 {
			a.botCursor++
		}
		return a, nil

	case key.Matches(msg, a.keys.Send):
		if len(a.botMatches) == 0 {
			return a, nil
		}
		b := a.botMatches[a.botCursor]
		if _, err := a.svc.SelectBot(context.Background(), b.ID); err != nil {
			a.setError(err.Error())
		} else {
			a.setStatus("")
		}
		a.closeOverlay()
		a.refresh(true)
		return a, nil
	}

	var cmd tea.Cmd
	a.filterInput, cmd = a.filterInput.Update(msg)
	a.botMatches = a.filterBots(a.filterInput.Value())
	if a.botCursor >= len(a.botMatches) {
		a.botCursor = max(len(a.botMatches)-1, 0)
	}
	return a, cmd
}

func (a AppView) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Cancel):
		a.closeOverlay()
		return a, nil

	case key.Matches(msg, a.keys.Send):
		sup, err := a.catalog.Supplier(a.keySupplier)
		if err != nil {
			a.setError(err.Error())
			a.closeOverlay()
			return a, nil
		}
		apiKey := strings.TrimSpace(a.keyInput.Value())
		a.keyInput.SetValue("")
		return a.saveKey(sup.Name, sup.Label, apiKey, sup.APIURL)
	}

	var cmd tea.Cmd
	a.keyInput, cmd = a.keyInput.Update(msg)
	return a, cmd
}

func (a AppView) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Cancel):
		a.closeOverlay()
		return a, nil

	case key.Matches(msg, a.keys.Up):
		if a.searchCursor > 0 {
			a.searchCursor--
		}
		return a, nil

	case key.Matches(msg, a.keys.Down):
		if a.searchCursor < len(a.searchResults)-1 {
			a.searchCursor++
		}
		return a, nil

	case key.Matches(msg, a.keys.Send):
		if len(a.searchResults) == 0 {
			return a, nil
		}
		hit := a.searchResults[a.searchCursor]
		ctx := context.Background()
		if c, err := a.store.Chat(hit.ChatID); err == nil {
			if err := a.bots.Select(ctx, c.BotID); err != nil {
				a.logger.Debug("bot of search hit not selectable", zap.String("bot_id", c.BotID), zap.Error(err))
			}
		}
		if err := a.store.SelectSession(ctx, hit.ChatID, hit.SessionID); err != nil {
			a.setError(err.Error())
		}
		a.closeOverlay()
		a.refresh(true)
		return a, nil
	}

	var cmd tea.Cmd
	a.searchInput, cmd = a.searchInput.Update(msg)
	a.searchResults = a.store.Search(a.searchInput.Value())
	if a.searchCursor >= len(a.searchResults) {
		a.searchCursor = max(len(a.searchResults)-1, 0)
	}
	return a, cmd
}

func (a *AppView) closeOverlay() {
	a.mode = modeChat
	a.filterInput.Blur()
	a.keyInput.Blur()
	a.searchInput.Blur()
	a.passInput.Blur()
	a.textarea.Focus()
}

func (a *AppView) layout() {
	contentWidth := a.width - sidebarWidth - 3
	if contentWidth < 20 {
		contentWidth = 20
	}
	a.textarea.SetWidth(contentWidth)

	// header, quote line, status bar
	vpHeight := a.height - a.textarea.Height() - 3
	if vpHeight < 3 {
		vpHeight = 3
	}
	a.viewport.Width = contentWidth
	a.viewport.Height = vpHeight
}

func (a *AppView) refresh(bottom bool) {
	if !a.ready {
		return
	}
	a.viewport.SetContent(a.renderSession())
	if bottom {
		a.viewport.GotoBottom()
	}
}

func (a *AppView) setStatus(s string) {
	a.status = s
	a.statusIsError = false
}

func (a *AppView) setError(s string) {
	a.status = s
	a.statusIsError = true
}

func (a *AppView) cycleSession(delta int) {
	c, s, ok := a.store.Current()
	if !ok || len(c.Sessions) < 2 {
		return
	}
	n := len(c.Sessions)
	next := (c.SessionIndex(s.ID) + delta + n) % n
	if err := a.store.SelectSession(context.Background(), c.ID, c.Sessions[next].ID); err != nil {
		a.setError(err.Error())
	}
	a.refresh(true)
}

// filterBots lists bots in section order, or by fuzzy rank when q is set.
func (a AppView) filterBots(q string) []model.Bot {
	if strings.TrimSpace(q) != "" {
		return a.bots.Search(q)
	}
	var out []model.Bot
	for _, section := range a.bots.Sections() {
		out = append(out, section.Bots...)
	}
	return out
}

func (a AppView) lastReply() (model.Message, bool) {
	_, s, ok := a.store.Current()
	if !ok {
		return model.Message{}, false
	}
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Sender == model.SenderAssistant && m.Status == model.StatusSent && m.Content != "" {
			return m, true
		}
	}
	return model.Message{}, false
}

func (a AppView) currentSupplier() string {
	c, _, ok := a.store.Current()
	if !ok {
		return ""
	}
	supplier, _, err := model.ParseModelRef(a.svc.ModelRef(c))
	if err != nil {
		return ""
	}
	return supplier
}
