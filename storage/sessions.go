package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"botchat/model"
)

// SessionTitleWidth is the display width of generated session titles.
const SessionTitleWidth = 30

// SanitizeFilename makes a session title safe to use in a file name.
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ', '\n', '\r', '\t':
			return '-'
		}
		return r
	}, name)

	name = strings.Trim(name, "-.")
	name = runewidth.Truncate(name, 50, "")

	if name == "" {
		name = "session"
	}

	return name
}

// GenerateExportPath returns a timestamped export file path inside dir,
// defaulting to ~/Downloads.
func GenerateExportPath(dir, title string) string {
	if dir == "" {
		homeDir := os.Getenv("HOME")
		if homeDir == "" {
			homeDir = os.Getenv("USERPROFILE")
		}
		dir = filepath.Join(homeDir, "Downloads")
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("botchat-session-%s-%s.json", SanitizeFilename(title), timestamp)

	return filepath.Join(dir, filename)
}

// SessionExport is the on-disk format of an exported session.
type SessionExport struct {
	ChatID     string        `json:"chatId"`
	ChatName   string        `json:"chatName"`
	Session    model.Session `json:"session"`
	ExportedAt time.Time     `json:"exportedAt"`
}

// ExportSession writes one session of a chat as indented JSON (0600).
func ExportSession(chat model.Chat, sessionID, exportPath string) error {
	idx := chat.SessionIndex(sessionID)
	if idx < 0 {
		return fmt.Errorf("session %s not found in chat %s", sessionID, chat.ID)
	}

	data, err := json.MarshalIndent(SessionExport{
		ChatID:     chat.ID,
		ChatName:   chat.Name,
		Session:    chat.Sessions[idx],
		ExportedAt: time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	if err := os.WriteFile(exportPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}

	return nil
}

// GenerateSessionName derives a title from the first user message,
// truncated by display width so CJK text is not cut mid-column.
func GenerateSessionName(firstMessage string) string {
	name := strings.Join(strings.Fields(firstMessage), " ")
	if name == "" {
		return fmt.Sprintf("Session %s", time.Now().Format("Jan 2, 3:04 PM"))
	}

	return runewidth.Truncate(name, SessionTitleWidth, "...")
}
