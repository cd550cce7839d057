package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned by Update and Delete for unknown ids.
var ErrNotFound = errors.New("record not found")

// Repository is CRUD access to one entity collection.
type Repository[T any] interface {
	Create(ctx context.Context, item T) error
	Update(ctx context.Context, item T) error
	Delete(ctx context.Context, id string) error
	FindAll(ctx context.Context) ([]T, error)
	FindByID(ctx context.Context, id string) (T, bool, error)
}

// Collection stores JSON-encoded entities of one kind in the records table.
type Collection[T any] struct {
	db   *DB
	name string
	id   func(T) string
}

// NewCollection binds a named collection; id extracts an entity's key.
func NewCollection[T any](db *DB, name string, id func(T) string) *Collection[T] {
	return &Collection[T]{db: db, name: name, id: id}
}

func (c *Collection[T]) Create(ctx context.Context, item T) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", c.name, err)
	}
	now := time.Now()
	_, err = c.db.exec(ctx,
		`INSERT INTO records (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		c.name, c.id(item), data, now, now)
	if err != nil {
		return fmt.Errorf("failed to create %s record: %w", c.name, err)
	}
	return nil
}

func (c *Collection[T]) Update(ctx context.Context, item T) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", c.name, err)
	}
	result, err := c.db.exec(ctx,
		`UPDATE records SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		data, time.Now(), c.name, c.id(item))
	if err != nil {
		return fmt.Errorf("failed to update %s record: %w", c.name, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", c.name, c.id(item), ErrNotFound)
	}
	return nil
}

func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	_, err := c.db.exec(ctx, `DELETE FROM records WHERE collection = ? AND id = ?`, c.name, id)
	return err
}

func (c *Collection[T]) FindAll(ctx context.Context) ([]T, error) {
	rows, err := c.db.db.QueryContext(ctx,
		`SELECT data FROM records WHERE collection = ? ORDER BY created_at, id`, c.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []T
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var item T
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, fmt.Errorf("failed to decode %s record: %w", c.name, err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func (c *Collection[T]) FindByID(ctx context.Context, id string) (T, bool, error) {
	var (
		item T
		data []byte
	)
	err := c.db.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE collection = ? AND id = ?`, c.name, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return item, false, nil
	}
	if err != nil {
		return item, false, err
	}
	if err := json.Unmarshal(data, &item); err != nil {
		return item, false, fmt.Errorf("failed to decode %s record: %w", c.name, err)
	}
	return item, true, nil
}

// MemoryRepository is a Repository kept in process memory.
type MemoryRepository[T any] struct {
	mu    sync.RWMutex
	id    func(T) string
	order []string
	items map[string]T
}

func NewMemoryRepository[T any](id func(T) string) *MemoryRepository[T] {
	return &MemoryRepository[T]{id: id, items: make(map[string]T)}
}

func (m *MemoryRepository[T]) Create(_ context.Context, item T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.id(item)
	if _, ok := m.items[key]; ok {
		return fmt.Errorf("record %s already exists", key)
	}
	m.items[key] = item
	m.order = append(m.order, key)
	return nil
}

func (m *MemoryRepository[T]) Update(_ context.Context, item T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.id(item)
	if _, ok := m.items[key]; !ok {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	m.items[key] = item
	return nil
}

func (m *MemoryRepository[T]) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return nil
	}
	delete(m.items, id)
	for i, k := range m.order {
		if k == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryRepository[T]) FindAll(_ context.Context) ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]T, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.items[k])
	}
	return out, nil
}

func (m *MemoryRepository[T]) FindByID(_ context.Context, id string) (T, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	return item, ok, nil
}
