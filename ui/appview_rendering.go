package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"botchat/model"
)

func (a AppView) View() string {
	if !a.ready {
		return "Loading..."
	}
	switch a.mode {
	case modeHelp:
		return a.renderHelp()
	case modePassphrase:
		return a.renderPassphrase()
	}

	sidebar := SidebarStyle.
		Width(sidebarWidth).
		Height(a.height - 1).
		MaxHeight(a.height).
		Render(a.renderSidebar())

	var main string
	switch a.mode {
	case modeBots:
		main = a.renderBotPicker()
	case modeKey:
		main = a.renderKeyEntry()
	case modeSearch:
		main = a.renderSearch()
	default:
		parts := []string{a.renderHeader(), a.viewport.View()}
		if q := a.renderQuote(); q != "" {
			parts = append(parts, q)
		}
		parts = append(parts, a.textarea.View(), a.renderStatus())
		main = lipgloss.JoinVertical(lipgloss.Left, parts...)
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, " ", main)
}

func (a AppView) renderSidebar() string {
	current := ""
	if c, _, ok := a.store.Current(); ok {
		current = c.BotID
	}

	var lines []string
	for _, section := range a.bots.Sections() {
		lines = append(lines, SectionStyle.Render(section.Letter))
		for _, b := range section.Bots {
			name := runewidth.Truncate(b.Name, sidebarWidth-3, "…")
			if b.ID == current {
				lines = append(lines, SelectedStyle.Render("▸ "+name))
			} else {
				lines = append(lines, "  "+name)
			}
		}
	}
	return strings.Join(lines, "\n")
}

func (a AppView) renderHeader() string {
	c, s, ok := a.store.Current()
	if !ok {
		return TitleStyle.Render("botchat")
	}
	ref := a.svc.ModelRef(c)
	if ref == "" {
		ref = "no model"
	}
	info := fmt.Sprintf("  %s (%d/%d)  %s", s.Title, c.SessionIndex(s.ID)+1, len(c.Sessions), ref)
	return TitleStyle.Render(c.Name) + DimStyle.Render(info)
}

func (a AppView) renderSession() string {
	c, s, ok := a.store.Current()
	if !ok {
		return DimStyle.Render("No conversation selected.")
	}
	width := a.viewport.Width
	blocks := make([]string, 0, len(s.Messages))
	for _, m := range s.Messages {
		blocks = append(blocks, a.renderMessage(m, c.Name, width))
	}
	return strings.Join(blocks, "\n\n")
}

func (a AppView) renderMessage(m model.Message, botName string, width int) string {
	body := lipgloss.NewStyle().Width(width).Render(m.Content)

	switch m.Sender {
	case model.SenderBot:
		return DimStyle.Width(width).Render(m.Content)

	case model.SenderUser:
		head := UserStyle.Render("You")
		if m.Quoted() {
			head += "\n" + QuoteStyle.Render(runewidth.Truncate(oneLine(m.QuoteContent), width-4, "..."))
		}
		return head + "\n" + body
	}

	head := AssistantStyle.Bold(true).Render(botName)
	switch m.Status {
	case model.StatusPending:
		return head + "\n" + a.spinner.View()
	case model.StatusStreaming:
		return head + " " + a.spinner.View() + "\n" + body
	case model.StatusError:
		if m.Content == "" {
			return head + " " + ErrorStyle.Render("(failed)")
		}
		return head + " " + ErrorStyle.Render("(failed)") + "\n" + body
	}
	return head + "\n" + body
}

func (a AppView) renderQuote() string {
	q, ok := a.store.Quote()
	if !ok {
		return ""
	}
	return QuoteStyle.Render(runewidth.Truncate(oneLine(q.Content), a.viewport.Width-4, "..."))
}

func (a AppView) renderStatus() string {
	if a.status != "" {
		if a.statusIsError {
			return ErrorStyle.Render(a.status)
		}
		return StatusStyle.Render(a.status)
	}
	if a.streaming {
		return HelpStyle.Render(FormatFooter("Esc", "Stop"))
	}
	return HelpStyle.Render(FormatFooter("Enter", "Send", "Alt+Enter", "Newline", "Ctrl+O", "Bots", "Alt+H", "Help"))
}

func (a AppView) renderBotPicker() string {
	lines := []string{TitleStyle.Render("Bots"), a.filterInput.View(), ""}
	if len(a.botMatches) == 0 {
		lines = append(lines, DimStyle.Render("No matching bots"))
	}
	for i, b := range a.botMatches {
		ref := b.ModelRef()
		if ref == "" {
			ref = "no model"
		}
		line := b.Name + DimStyle.Render("  "+ref)
		if i == a.botCursor {
			line = SelectedStyle.Render("▸ "+b.Name) + DimStyle.Render("  "+ref)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	lines = append(lines, "", HelpStyle.Render(FormatFooter("↑/↓", "Navigate", "Enter", "Open", "Esc", "Close")))
	return strings.Join(lines, "\n")
}

func (a AppView) renderSearch() string {
	lines := []string{TitleStyle.Render("Search messages"), a.searchInput.View(), ""}
	if a.searchInput.Value() != "" && len(a.searchResults) == 0 {
		lines = append(lines, DimStyle.Render("No matches"))
	}
	width := a.viewport.Width
	for i, hit := range a.searchResults {
		where := DimStyle.Render(runewidth.Truncate(hit.ChatName+" / "+hit.SessionTitle, width/2, "…"))
		preview := runewidth.Truncate(hit.Preview, width/2, "...")
		if i == a.searchCursor {
			lines = append(lines, SelectedStyle.Render("▸ ")+HighlightStyle.Render(preview)+"  "+where)
		} else {
			lines = append(lines, "  "+preview+"  "+where)
		}
	}
	lines = append(lines, "", HelpStyle.Render(FormatFooter("↑/↓", "Navigate", "Enter", "Open", "Esc", "Close")))
	return strings.Join(lines, "\n")
}

func (a AppView) renderKeyEntry() string {
	label := a.keySupplier
	if sup, err := a.catalog.Supplier(a.keySupplier); err == nil {
		label = sup.Label
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		a.renderHeader(),
		"",
		TitleStyle.Render("API key for "+label),
		a.keyInput.View(),
		"",
		HelpStyle.Render(FormatFooter("Enter", "Save", "Esc", "Cancel")),
	)
}

func (a AppView) renderHelp() string {
	green := lipgloss.NewStyle().Bold(true).Foreground(successColor)
	blue := lipgloss.NewStyle().Foreground(accentColor)

	bindings := []key.Binding{
		a.keys.Send, a.keys.Cancel, a.keys.NewSession, a.keys.DelSession,
		a.keys.NextSession, a.keys.PrevSession, a.keys.Bots, a.keys.Quote,
		a.keys.Copy, a.keys.APIKey, a.keys.Verify, a.keys.Export, a.keys.Search, a.keys.Quit,
	}
	lines := []string{green.Render("botchat " + a.version + " - Keyboard Shortcuts"), "", blue.Render("## Actions")}
	for _, b := range bindings {
		h := b.Help()
		lines = append(lines, fmt.Sprintf("• %-13s %s", h.Key, h.Desc))
	}
	lines = append(lines, "", HelpStyle.Render("Press any key to close"))

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, strings.Join(lines, "\n"))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
