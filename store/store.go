// Package store provides durable persistence for conversations, virtual
// filesystem nodes, memories and settings. The in-memory services own the
// live state; the store is a put/getAll/delete record surface behind them.
package store

import (
	"context"
	"database/sql"
)

// Driver is the database-specific persistence implementation.
type Driver interface {
	GetDB() *sql.DB
	Close() error
	Migrate(ctx context.Context) error

	UpsertConversation(ctx context.Context, record *ConversationRecord) error
	ListConversations(ctx context.Context) ([]*ConversationRecord, error)
	DeleteConversation(ctx context.Context, id string) error

	UpsertVFSNode(ctx context.Context, node *VFSNode) error
	ListVFSNodes(ctx context.Context) ([]*VFSNode, error)
	DeleteVFSNode(ctx context.Context, id string) error

	UpsertMemory(ctx context.Context, memory *Memory) error
	ListMemories(ctx context.Context) ([]*Memory, error)
	DeleteMemory(ctx context.Context, id string) error

	GetSettings(ctx context.Context) ([]byte, error)
	PutSettings(ctx context.Context, data []byte) error
}

// Store provides access to all persisted records.
type Store struct {
	driver Driver
}

// New creates a new instance of Store.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) UpsertConversation(ctx context.Context, record *ConversationRecord) error {
	return s.driver.UpsertConversation(ctx, record)
}

func (s *Store) ListConversations(ctx context.Context) ([]*ConversationRecord, error) {
	return s.driver.ListConversations(ctx)
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	return s.driver.DeleteConversation(ctx, id)
}

func (s *Store) UpsertVFSNode(ctx context.Context, node *VFSNode) error {
	return s.driver.UpsertVFSNode(ctx, node)
}

func (s *Store) ListVFSNodes(ctx context.Context) ([]*VFSNode, error) {
	return s.driver.ListVFSNodes(ctx)
}

func (s *Store) DeleteVFSNode(ctx context.Context, id string) error {
	return s.driver.DeleteVFSNode(ctx, id)
}

func (s *Store) UpsertMemory(ctx context.Context, memory *Memory) error {
	return s.driver.UpsertMemory(ctx, memory)
}

func (s *Store) ListMemories(ctx context.Context) ([]*Memory, error) {
	return s.driver.ListMemories(ctx)
}

func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	return s.driver.DeleteMemory(ctx, id)
}

func (s *Store) GetSettings(ctx context.Context) ([]byte, error) {
	return s.driver.GetSettings(ctx)
}

func (s *Store) PutSettings(ctx context.Context, data []byte) error {
	return s.driver.PutSettings(ctx, data)
}
