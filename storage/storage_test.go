package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botchat/model"
)

type record struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func recordID(r record) string { return r.ID }

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestKVImplementations(t *testing.T) {
	impls := map[string]func(t *testing.T) KV{
		"sqlite": func(t *testing.T) KV { return openTestDB(t).KV() },
		"memory": func(t *testing.T) KV { return NewMemoryKV() },
	}

	for name, newKV := range impls {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			kv := newKV(t)

			_, ok, err := kv.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Set(ctx, "a", []byte("one")))
			require.NoError(t, kv.Set(ctx, "a", []byte("two")))
			v, ok, err := kv.Get(ctx, "a")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "two", string(v))

			has, err := kv.Has(ctx, "a")
			require.NoError(t, err)
			assert.True(t, has)

			require.NoError(t, kv.Remove(ctx, "a"))
			has, err = kv.Has(ctx, "a")
			require.NoError(t, err)
			assert.False(t, has)

			require.NoError(t, kv.Set(ctx, "b", []byte("x")))
			require.NoError(t, kv.Clear(ctx))
			has, err = kv.Has(ctx, "b")
			require.NoError(t, err)
			assert.False(t, has)
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	var out []record
	ok, err := GetJSON(ctx, kv, "records", &out)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetJSON(ctx, kv, "records", []record{{ID: "1", Value: 5}}))
	ok, err = GetJSON(ctx, kv, "records", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []record{{ID: "1", Value: 5}}, out)

	require.NoError(t, kv.Set(ctx, "broken", []byte("{")))
	_, err = GetJSON(ctx, kv, "broken", &out)
	assert.Error(t, err)
}

func TestRepositoryImplementations(t *testing.T) {
	impls := map[string]func(t *testing.T) Repository[record]{
		"sqlite": func(t *testing.T) Repository[record] {
			return NewCollection(openTestDB(t), "records", recordID)
		},
		"memory": func(t *testing.T) Repository[record] {
			return NewMemoryRepository(recordID)
		},
	}

	for name, newRepo := range impls {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)

			require.NoError(t, repo.Create(ctx, record{ID: "a", Value: 1}))
			require.NoError(t, repo.Create(ctx, record{ID: "b", Value: 2}))
			assert.Error(t, repo.Create(ctx, record{ID: "a", Value: 9}))

			require.NoError(t, repo.Update(ctx, record{ID: "a", Value: 10}))
			err := repo.Update(ctx, record{ID: "zzz"})
			assert.ErrorIs(t, err, ErrNotFound)

			got, ok, err := repo.FindByID(ctx, "a")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, 10, got.Value)

			all, err := repo.FindAll(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)

			require.NoError(t, repo.Delete(ctx, "a"))
			_, ok, err = repo.FindByID(ctx, "a")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestCollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	first := NewCollection(db, "first", recordID)
	second := NewCollection(db, "second", recordID)

	require.NoError(t, first.Create(ctx, record{ID: "same"}))
	require.NoError(t, second.Create(ctx, record{ID: "same"}))

	all, err := first.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMigrationIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	ok, err := db.columnExists("records", "created_at")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello world", "hello-world"},
		{"a/b\\c:d", "a-b-c-d"},
		{"..hidden..", "hidden"},
		{"", "session"},
		{"???", "session"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestGenerateSessionName(t *testing.T) {
	assert.Equal(t, "short question", GenerateSessionName("  short\nquestion "))

	long := strings.Repeat("abcdefghij", 5)
	name := GenerateSessionName(long)
	assert.True(t, strings.HasSuffix(name, "..."))
	assert.LessOrEqual(t, runewidth.StringWidth(name), SessionTitleWidth)

	cjk := strings.Repeat("你好", 20)
	name = GenerateSessionName(cjk)
	assert.LessOrEqual(t, runewidth.StringWidth(name), SessionTitleWidth)

	assert.True(t, strings.HasPrefix(GenerateSessionName(""), "Session "))
}

func TestExportSession(t *testing.T) {
	chat := model.Chat{ID: "chat-1", Name: "Helper", Sessions: []model.Session{model.NewSession("chat-1", "First", "hi")}}
	path := GenerateExportPath(t.TempDir(), "First")

	require.NoError(t, ExportSession(chat, chat.Sessions[0].ID, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var exported SessionExport
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Equal(t, "chat-1", exported.ChatID)
	assert.Equal(t, "First", exported.Session.Title)

	assert.Error(t, ExportSession(chat, "missing", path))
}

func TestSearchMessages(t *testing.T) {
	s := model.NewSession("c1", "Trip", "welcome aboard")
	s.Messages = append(s.Messages,
		model.NewMessage("c1", s.ID, model.SenderUser, "plan a trip to Kyoto", model.StatusSent),
		model.NewMessage("c1", s.ID, model.SenderAssistant, "Kyoto is lovely in spring", model.StatusSent),
	)
	chats := []model.Chat{{ID: "c1", Name: "Travel", Sessions: []model.Session{s}}}

	matches := SearchMessages(chats, "kyoto")
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, "c1", m.ChatID)
		assert.Equal(t, "Trip", m.SessionTitle)
		assert.NotEqual(t, model.SenderBot, m.Sender)
	}

	assert.Empty(t, SearchMessages(chats, "welcome aboard"))
	assert.Empty(t, SearchMessages(chats, "   "))
}
