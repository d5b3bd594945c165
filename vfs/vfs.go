// Package vfs implements the virtual filesystem the model manipulates
// through tools and the user manipulates through the API. Nodes form a tree
// keyed by id; the whole tree lives in memory and writes through to storage.
package vfs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/parleyhq/parley/store"
)

var (
	ErrNodeNotFound  = errors.New("node not found")
	ErrNotFolder     = errors.New("parent is not a folder")
	ErrNotFile       = errors.New("node is not a file")
	ErrNameTaken     = errors.New("name already exists in folder")
	ErrCyclicMove    = errors.New("cannot move a folder into itself")
	ErrEmptyName     = errors.New("name required")
	ErrFolderContent = errors.New("folders cannot hold content")
)

// Storage is the persistence surface the service needs.
type Storage interface {
	UpsertVFSNode(ctx context.Context, node *store.VFSNode) error
	ListVFSNodes(ctx context.Context) ([]*store.VFSNode, error)
	DeleteVFSNode(ctx context.Context, id string) error
}

type Service struct {
	mu      sync.RWMutex
	storage Storage
	nodes   map[string]*store.VFSNode
}

func NewService(storage Storage) *Service {
	return &Service{storage: storage, nodes: make(map[string]*store.VFSNode)}
}

// Load hydrates the tree from storage.
func (s *Service) Load(ctx context.Context) error {
	nodes, err := s.storage.ListVFSNodes(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load vfs nodes")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]*store.VFSNode, len(nodes))
	for _, n := range nodes {
		s.nodes[n.ID] = n
	}
	return nil
}

// Create adds a file or folder under parentID (empty for root).
func (s *Service) Create(ctx context.Context, parentID, name string, kind store.VFSNodeKind, content, mimeType string) (*store.VFSNode, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if kind == store.VFSNodeFolder && content != "" {
		return nil, ErrFolderContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkParentLocked(parentID); err != nil {
		return nil, err
	}
	if s.nameTakenLocked(parentID, name, "") {
		return nil, ErrNameTaken
	}

	now := time.Now().Unix()
	node := &store.VFSNode{
		ID:        shortuuid.New(),
		ParentID:  parentID,
		Name:      name,
		Kind:      kind,
		Content:   content,
		MimeType:  mimeType,
		CreatedTs: now,
		UpdatedTs: now,
	}
	if err := s.storage.UpsertVFSNode(ctx, node); err != nil {
		return nil, err
	}
	s.nodes[node.ID] = node
	cp := *node
	return &cp, nil
}

// Get returns a copy of the node.
func (s *Service) Get(id string) (*store.VFSNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	cp := *node
	return &cp, nil
}

// List returns the direct children of parentID (empty for root), folders
// first, then by name.
func (s *Service) List(parentID string) ([]*store.VFSNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if parentID != "" {
		parent, ok := s.nodes[parentID]
		if !ok {
			return nil, ErrNodeNotFound
		}
		if parent.Kind != store.VFSNodeFolder {
			return nil, ErrNotFolder
		}
	}
	children := make([]*store.VFSNode, 0)
	for _, n := range s.nodes {
		if n.ParentID == parentID {
			cp := *n
			children = append(children, &cp)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		if children[i].Kind != children[j].Kind {
			return children[i].Kind == store.VFSNodeFolder
		}
		return children[i].Name < children[j].Name
	})
	return children, nil
}

// Write replaces a file's content.
func (s *Service) Write(ctx context.Context, id, content string) (*store.VFSNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	if node.Kind != store.VFSNodeFile {
		return nil, ErrNotFile
	}
	node.Content = content
	node.UpdatedTs = time.Now().Unix()
	if err := s.storage.UpsertVFSNode(ctx, node); err != nil {
		return nil, err
	}
	cp := *node
	return &cp, nil
}

// Rename changes a node's name within its folder.
func (s *Service) Rename(ctx context.Context, id, name string) (*store.VFSNode, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	if s.nameTakenLocked(node.ParentID, name, id) {
		return nil, ErrNameTaken
	}
	node.Name = name
	node.UpdatedTs = time.Now().Unix()
	if err := s.storage.UpsertVFSNode(ctx, node); err != nil {
		return nil, err
	}
	cp := *node
	return &cp, nil
}

// Move reparents a node. Moving a folder into its own subtree is rejected.
func (s *Service) Move(ctx context.Context, id, parentID string) (*store.VFSNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	if err := s.checkParentLocked(parentID); err != nil {
		return nil, err
	}
	for cursor := parentID; cursor != ""; {
		if cursor == id {
			return nil, ErrCyclicMove
		}
		parent, ok := s.nodes[cursor]
		if !ok {
			break
		}
		cursor = parent.ParentID
	}
	if s.nameTakenLocked(parentID, node.Name, id) {
		return nil, ErrNameTaken
	}
	node.ParentID = parentID
	node.UpdatedTs = time.Now().Unix()
	if err := s.storage.UpsertVFSNode(ctx, node); err != nil {
		return nil, err
	}
	cp := *node
	return &cp, nil
}

// Delete removes a node and, for folders, its whole subtree.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return ErrNodeNotFound
	}
	for _, victim := range s.subtreeLocked(id) {
		if err := s.storage.DeleteVFSNode(ctx, victim); err != nil {
			return err
		}
		delete(s.nodes, victim)
	}
	return nil
}

func (s *Service) subtreeLocked(id string) []string {
	ids := []string{id}
	for i := 0; i < len(ids); i++ {
		for _, n := range s.nodes {
			if n.ParentID == ids[i] {
				ids = append(ids, n.ID)
			}
		}
	}
	return ids
}

func (s *Service) checkParentLocked(parentID string) error {
	if parentID == "" {
		return nil
	}
	parent, ok := s.nodes[parentID]
	if !ok {
		return ErrNodeNotFound
	}
	if parent.Kind != store.VFSNodeFolder {
		return ErrNotFolder
	}
	return nil
}

func (s *Service) nameTakenLocked(parentID, name, excludeID string) bool {
	for _, n := range s.nodes {
		if n.ParentID == parentID && n.Name == name && n.ID != excludeID {
			return true
		}
	}
	return false
}
