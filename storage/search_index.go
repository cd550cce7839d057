package storage

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	"botchat/model"
)

const previewWidth = 100

// MessageMatch is one search hit across all chats.
type MessageMatch struct {
	ChatID       string
	ChatName     string
	SessionID    string
	SessionTitle string
	MessageID    string
	Sender       model.Sender
	Preview      string
	Score        int
}

type messageSource struct {
	refs  []MessageMatch
	texts []string
}

func (s messageSource) String(i int) string { return s.texts[i] }
func (s messageSource) Len() int            { return len(s.texts) }

// SearchMessages fuzzy-matches query against every user and assistant
// message. Prologues are skipped. Results are ordered best match first.
func SearchMessages(chats []model.Chat, query string) []MessageMatch {
	query = strings.TrimSpace(query)
	if query == "" {
		return []MessageMatch{}
	}

	var src messageSource
	for _, c := range chats {
		for _, s := range c.Sessions {
			for _, m := range s.Messages {
				if m.Sender == model.SenderBot || m.Content == "" {
					continue
				}
				src.refs = append(src.refs, MessageMatch{
					ChatID:       c.ID,
					ChatName:     c.Name,
					SessionID:    s.ID,
					SessionTitle: s.Title,
					MessageID:    m.ID,
					Sender:       m.Sender,
				})
				src.texts = append(src.texts, m.Content)
			}
		}
	}

	found := fuzzy.FindFrom(query, src)

	matches := make([]MessageMatch, 0, len(found))
	for _, f := range found {
		m := src.refs[f.Index]
		m.Score = f.Score
		m.Preview = runewidth.Truncate(strings.Join(strings.Fields(f.Str), " "), previewWidth, "...")
		matches = append(matches, m)
	}
	return matches
}
