// Package memory implements the long-term memory bank the model reads and
// writes through tools. Entries are free text and load into every system
// prompt when the feature is enabled.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/parleyhq/parley/store"
)

var ErrMemoryNotFound = errors.New("memory not found")

// Storage is the persistence surface the service needs.
type Storage interface {
	UpsertMemory(ctx context.Context, memory *store.Memory) error
	ListMemories(ctx context.Context) ([]*store.Memory, error)
	DeleteMemory(ctx context.Context, id string) error
}

type Service struct {
	mu      sync.RWMutex
	storage Storage
	entries map[string]*store.Memory
}

func NewService(storage Storage) *Service {
	return &Service{storage: storage, entries: make(map[string]*store.Memory)}
}

func (s *Service) Load(ctx context.Context) error {
	entries, err := s.storage.ListMemories(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load memories")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*store.Memory, len(entries))
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return nil
}

func (s *Service) Save(ctx context.Context, content string) (*store.Memory, error) {
	if content == "" {
		return nil, errors.New("content required")
	}
	now := time.Now().Unix()
	entry := &store.Memory{
		ID:        shortuuid.New(),
		Content:   content,
		CreatedTs: now,
		UpdatedTs: now,
	}
	if err := s.storage.UpsertMemory(ctx, entry); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.mu.Unlock()
	cp := *entry
	return &cp, nil
}

func (s *Service) Update(ctx context.Context, id, content string) (*store.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrMemoryNotFound
	}
	entry.Content = content
	entry.UpdatedTs = time.Now().Unix()
	if err := s.storage.UpsertMemory(ctx, entry); err != nil {
		return nil, err
	}
	cp := *entry
	return &cp, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return ErrMemoryNotFound
	}
	if err := s.storage.DeleteMemory(ctx, id); err != nil {
		return err
	}
	delete(s.entries, id)
	return nil
}

// List returns all entries, oldest first.
func (s *Service) List() []*store.Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]*store.Memory, 0, len(s.entries))
	for _, e := range s.entries {
		cp := *e
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedTs < list[j].CreatedTs })
	return list
}
