package ui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"botchat/config"
)

const (
	emptyPassphraseText     = "Passphrase cannot be empty"
	incorrectPassphraseText = "Incorrect passphrase. Please try again."
)

// pendingKey is an API key save that failed for lack of a passphrase.
type pendingKey struct {
	supplier string
	apiKey   string
	apiURL   string
}

func (a *AppView) openPassphrase(pending *pendingKey) {
	a.mode = modePassphrase
	a.pending = pending
	a.passErr = ""
	a.textarea.Blur()
	a.passInput.SetValue("")
	a.passInput.Focus()
}

// saveKey stores an API key, asking for the SSH passphrase first when the
// credential store cannot encrypt without it.
func (a AppView) saveKey(supplier, label, apiKey, apiURL string) (tea.Model, tea.Cmd) {
	err := a.svc.UpdateSupplierConfig(context.Background(), supplier, apiKey, apiURL)
	switch {
	case errors.Is(err, config.ErrPassphraseRequired):
		a.openPassphrase(&pendingKey{supplier: supplier, apiKey: apiKey, apiURL: apiURL})
		return a, textinput.Blink
	case err != nil:
		a.setError(errorText(err))
	default:
		a.setStatus("Saved API key for " + label)
	}
	a.closeOverlay()
	return a, nil
}

func (a AppView) updatePassphrase(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Cancel):
		a.pending = nil
		a.passInput.SetValue("")
		a.closeOverlay()
		a.setStatus("Credentials stay locked. Saved API keys are unavailable.")
		return a, nil

	case key.Matches(msg, a.keys.Send):
		passphrase := a.passInput.Value()
		if strings.TrimSpace(passphrase) == "" {
			a.passErr = emptyPassphraseText
			return a, nil
		}
		if err := a.creds.Unlock(a.dataDir, passphrase); err != nil {
			a.logger.Debug("unlock failed", zap.String("key", a.creds.KeyPath()), zap.Error(err))
			a.passErr = incorrectPassphraseText
			a.passInput.SetValue("")
			return a, nil
		}
		a.catalog.ReloadCredentials()
		a.passInput.SetValue("")

		pending := a.pending
		a.pending = nil
		if pending == nil {
			a.closeOverlay()
			a.setStatus("Credentials unlocked")
			return a, nil
		}
		err := a.svc.UpdateSupplierConfig(context.Background(), pending.supplier, pending.apiKey, pending.apiURL)
		if err != nil {
			a.logger.Debug("key save after unlock failed", zap.String("supplier", pending.supplier), zap.Error(err))
			a.pending = pending
			a.passErr = incorrectPassphraseText
			return a, nil
		}
		a.closeOverlay()
		a.setStatus("Saved API key for " + pending.supplier)
		return a, nil
	}

	var cmd tea.Cmd
	a.passInput, cmd = a.passInput.Update(msg)
	return a, cmd
}

func (a AppView) renderPassphrase() string {
	keyPath := a.creds.KeyPath()
	lines := []string{
		TitleStyle.Render("SSH Key Passphrase Required"),
		"",
		"The SSH key is encrypted with a passphrase.",
		DimStyle.Render("Key: " + keyPath),
		"",
		a.passInput.View(),
	}
	if a.passErr != "" {
		lines = append(lines, "", ErrorStyle.Render(a.passErr))
	}
	lines = append(lines, "", HelpStyle.Render(FormatFooter("Enter", "Unlock", "Esc", "Skip")))

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accentColor).
		Padding(1, 2).
		Render(strings.Join(lines, "\n"))
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, box)
}
