package vfs

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/store"
)

// memStorage is an in-memory node table for tests.
type memStorage struct {
	mu    sync.Mutex
	nodes map[string]*store.VFSNode
}

func newMemStorage() *memStorage {
	return &memStorage{nodes: make(map[string]*store.VFSNode)}
}

func (m *memStorage) UpsertVFSNode(_ context.Context, node *store.VFSNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *node
	m.nodes[node.ID] = &cp
	return nil
}

func (m *memStorage) ListVFSNodes(context.Context) ([]*store.VFSNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]*store.VFSNode, 0, len(m.nodes))
	for _, n := range m.nodes {
		cp := *n
		list = append(list, &cp)
	}
	return list, nil
}

func (m *memStorage) DeleteVFSNode(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, id)
	return nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(newMemStorage())
	require.NoError(t, svc.Load(context.Background()))
	return svc
}

func TestCreateAndList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	folder, err := svc.Create(ctx, "", "docs", store.VFSNodeFolder, "", "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, folder.ID, "notes.txt", store.VFSNodeFile, "hello", "text/plain")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "", "readme.md", store.VFSNodeFile, "", "text/markdown")
	require.NoError(t, err)

	root, err := svc.List("")
	require.NoError(t, err)
	require.Len(t, root, 2)
	// Folders sort before files.
	require.Equal(t, "docs", root[0].Name)
	require.Equal(t, "readme.md", root[1].Name)

	children, err := svc.List(folder.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, "notes.txt", children[0].Name)
}

func TestCreateRejectsDuplicateNames(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "", "a.txt", store.VFSNodeFile, "", "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "", "a.txt", store.VFSNodeFile, "", "")
	require.ErrorIs(t, err, ErrNameTaken)
}

func TestFolderContentRejected(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Create(context.Background(), "", "dir", store.VFSNodeFolder, "content", "")
	require.ErrorIs(t, err, ErrFolderContent)
}

func TestWriteOnlyFiles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	folder, err := svc.Create(ctx, "", "dir", store.VFSNodeFolder, "", "")
	require.NoError(t, err)
	_, err = svc.Write(ctx, folder.ID, "nope")
	require.ErrorIs(t, err, ErrNotFile)

	file, err := svc.Create(ctx, "", "f.txt", store.VFSNodeFile, "v1", "")
	require.NoError(t, err)
	updated, err := svc.Write(ctx, file.ID, "v2")
	require.NoError(t, err)
	require.Equal(t, "v2", updated.Content)
}

func TestMoveRejectsCycles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	outer, err := svc.Create(ctx, "", "outer", store.VFSNodeFolder, "", "")
	require.NoError(t, err)
	inner, err := svc.Create(ctx, outer.ID, "inner", store.VFSNodeFolder, "", "")
	require.NoError(t, err)

	_, err = svc.Move(ctx, outer.ID, inner.ID)
	require.ErrorIs(t, err, ErrCyclicMove)
	_, err = svc.Move(ctx, outer.ID, outer.ID)
	require.ErrorIs(t, err, ErrCyclicMove)
}

func TestDeleteRemovesSubtree(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	folder, err := svc.Create(ctx, "", "dir", store.VFSNodeFolder, "", "")
	require.NoError(t, err)
	file, err := svc.Create(ctx, folder.ID, "f.txt", store.VFSNodeFile, "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, folder.ID))
	_, err = svc.Get(folder.ID)
	require.ErrorIs(t, err, ErrNodeNotFound)
	_, err = svc.Get(file.ID)
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestLoadHydrates(t *testing.T) {
	storage := newMemStorage()
	svc := NewService(storage)
	require.NoError(t, svc.Load(context.Background()))

	node, err := svc.Create(context.Background(), "", "persisted.txt", store.VFSNodeFile, "body", "")
	require.NoError(t, err)

	fresh := NewService(storage)
	require.NoError(t, fresh.Load(context.Background()))
	got, err := fresh.Get(node.ID)
	require.NoError(t, err)
	require.Equal(t, "body", got.Content)
}
