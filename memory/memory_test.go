package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/store"
)

type memStorage struct {
	mu      sync.Mutex
	entries map[string]*store.Memory
}

func newMemStorage() *memStorage {
	return &memStorage{entries: make(map[string]*store.Memory)}
}

func (m *memStorage) UpsertMemory(_ context.Context, entry *store.Memory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.entries[entry.ID] = &cp
	return nil
}

func (m *memStorage) ListMemories(context.Context) ([]*store.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]*store.Memory, 0, len(m.entries))
	for _, e := range m.entries {
		cp := *e
		list = append(list, &cp)
	}
	return list, nil
}

func (m *memStorage) DeleteMemory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func TestSaveUpdateDelete(t *testing.T) {
	svc := NewService(newMemStorage())
	require.NoError(t, svc.Load(context.Background()))
	ctx := context.Background()

	entry, err := svc.Save(ctx, "user likes jazz")
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID)

	updated, err := svc.Update(ctx, entry.ID, "user likes bebop")
	require.NoError(t, err)
	require.Equal(t, "user likes bebop", updated.Content)

	require.NoError(t, svc.Delete(ctx, entry.ID))
	require.Empty(t, svc.List())
}

func TestSaveRejectsEmptyContent(t *testing.T) {
	svc := NewService(newMemStorage())
	_, err := svc.Save(context.Background(), "")
	require.Error(t, err)
}

func TestUnknownEntry(t *testing.T) {
	svc := NewService(newMemStorage())
	_, err := svc.Update(context.Background(), "nope", "x")
	require.ErrorIs(t, err, ErrMemoryNotFound)
	require.ErrorIs(t, svc.Delete(context.Background(), "nope"), ErrMemoryNotFound)
}

func TestLoadHydrates(t *testing.T) {
	storage := newMemStorage()
	svc := NewService(storage)
	_, err := svc.Save(context.Background(), "persisted note")
	require.NoError(t, err)

	fresh := NewService(storage)
	require.NoError(t, fresh.Load(context.Background()))
	list := fresh.List()
	require.Len(t, list, 1)
	require.Equal(t, "persisted note", list[0].Content)
}
