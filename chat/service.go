package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/parleyhq/parley/store"
)

var (
	// ErrConversationNotFound is returned when a conversation id is unknown.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrMessageNotFound is returned when a message id is unknown.
	ErrMessageNotFound = errors.New("message not found")
	// ErrInvalidMessage is returned when a message violates role invariants.
	ErrInvalidMessage = errors.New("invalid message for role")
)

// persistDebounce is how long writes may lag in-memory state. The in-memory
// store is the source of truth during a session, so a short lag is safe.
const persistDebounce = time.Second

// Persistence is the narrow driver surface the chat service needs.
type Persistence interface {
	UpsertConversation(ctx context.Context, record *store.ConversationRecord) error
	ListConversations(ctx context.Context) ([]*store.ConversationRecord, error)
	DeleteConversation(ctx context.Context, id string) error
}

// Service is the authoritative, ordered message store for all conversations
// in a session. Mutations are append or replace-in-place only; existing
// messages are never reordered.
type Service struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	order         []string // conversation ids, most recently created last

	persistence Persistence
	dirty       map[string]bool
	flushTimer  *time.Timer
}

// NewService creates a chat service backed by the given persistence driver.
// persistence may be nil for in-memory only operation (tests).
func NewService(persistence Persistence) *Service {
	return &Service{
		conversations: make(map[string]*Conversation),
		persistence:   persistence,
		dirty:         make(map[string]bool),
	}
}

// Load hydrates conversations from the persistence driver.
func (s *Service) Load(ctx context.Context) error {
	if s.persistence == nil {
		return nil
	}
	records, err := s.persistence.ListConversations(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		conv := &Conversation{
			ID:        r.ID,
			Title:     r.Title,
			Mode:      Mode(r.Mode),
			Pinned:    r.Pinned,
			CreatedTs: r.CreatedTs,
			UpdatedTs: r.UpdatedTs,
		}
		if len(r.MessagesJSON) > 0 {
			if err := json.Unmarshal(r.MessagesJSON, &conv.Messages); err != nil {
				slog.Warn("chat: skipping conversation with corrupt message log",
					"conversation_id", r.ID, "error", err)
				continue
			}
		}
		s.conversations[conv.ID] = conv
		s.order = append(s.order, conv.ID)
	}
	slog.Info("chat: conversations loaded", "count", len(s.conversations))
	return nil
}

// Create creates a new conversation in the given mode.
func (s *Service) Create(title string, mode Mode) *Conversation {
	if mode != ModeAuto {
		mode = ModeManual
	}
	if title == "" {
		title = "New chat"
	}
	now := time.Now().UnixMilli()
	conv := &Conversation{
		ID:        shortuuid.New(),
		Title:     title,
		Mode:      mode,
		CreatedTs: now,
		UpdatedTs: now,
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.order = append(s.order, conv.ID)
	s.markDirtyLocked(conv.ID)
	s.mu.Unlock()
	return conv
}

// Get returns the conversation with the given id.
func (s *Service) Get(id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// List returns all conversations, most recently updated first.
func (s *Service) List() []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*Conversation, 0, len(s.conversations))
	for _, id := range s.order {
		list = append(list, s.conversations[id])
	}
	for i := 0; i < len(list); i++ {
		for j := i + 1; j < len(list); j++ {
			if list[j].UpdatedTs > list[i].UpdatedTs {
				list[i], list[j] = list[j], list[i]
			}
		}
	}
	return list
}

// Delete removes a conversation from memory and storage.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.conversations[id]; !ok {
		s.mu.Unlock()
		return ErrConversationNotFound
	}
	delete(s.conversations, id)
	delete(s.dirty, id)
	for i, cid := range s.order {
		if cid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if s.persistence != nil {
		return s.persistence.DeleteConversation(ctx, id)
	}
	return nil
}

// Update applies conversation-level metadata changes.
func (s *Service) Update(id string, update *store.UpdateConversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	if update.Title != nil {
		conv.Title = *update.Title
	}
	if update.Mode != nil {
		conv.Mode = Mode(*update.Mode)
	}
	if update.Pinned != nil {
		conv.Pinned = *update.Pinned
	}
	s.touchLocked(conv)
	return nil
}

// Append adds a message to the end of the conversation log.
func (s *Service) Append(conversationID string, msg *Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	conv.Messages = append(conv.Messages, msg)
	s.touchLocked(conv)
	return nil
}

// Replace applies a partial update to a message in place. ID, Role and
// Timestamp are never changed and messages are never reordered.
func (s *Service) Replace(conversationID, messageID string, patch *MessagePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	for _, m := range conv.Messages {
		if m.ID == messageID {
			m.apply(patch)
			s.touchLocked(conv)
			return nil
		}
	}
	return ErrMessageNotFound
}

// TruncateBefore drops the target message and everything after it, leaving
// only the messages strictly before it. Used by regenerate.
func (s *Service) TruncateBefore(conversationID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	for i, m := range conv.Messages {
		if m.ID == messageID {
			conv.Messages = conv.Messages[:i]
			s.touchLocked(conv)
			return nil
		}
	}
	return ErrMessageNotFound
}

// History returns a copy of the conversation's message values, safe to read
// while the originals are mutated by an in-flight turn.
func (s *Service) History(conversationID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	history := make([]Message, len(conv.Messages))
	for i, m := range conv.Messages {
		history[i] = *m
	}
	return history, nil
}

// Message returns the message with the given id.
func (s *Service) Message(conversationID, messageID string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	for _, m := range conv.Messages {
		if m.ID == messageID {
			return m, nil
		}
	}
	return nil, ErrMessageNotFound
}

// Flush persists all dirty conversations immediately.
func (s *Service) Flush(ctx context.Context) {
	s.mu.Lock()
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	s.dirty = make(map[string]bool)
	records := make([]*store.ConversationRecord, 0, len(ids))
	for _, id := range ids {
		if conv, ok := s.conversations[id]; ok {
			if record, err := toRecord(conv); err == nil {
				records = append(records, record)
			} else {
				slog.Error("chat: failed to serialize conversation", "conversation_id", id, "error", err)
			}
		}
	}
	s.mu.Unlock()

	if s.persistence == nil {
		return
	}
	for _, record := range records {
		if err := s.persistence.UpsertConversation(ctx, record); err != nil {
			slog.Error("chat: failed to persist conversation",
				"conversation_id", record.ID, "error", err)
		}
	}
}

func (s *Service) touchLocked(conv *Conversation) {
	conv.UpdatedTs = time.Now().UnixMilli()
	s.markDirtyLocked(conv.ID)
}

func (s *Service) markDirtyLocked(id string) {
	s.dirty[id] = true
	if s.persistence == nil {
		return
	}
	if s.flushTimer == nil {
		s.flushTimer = time.AfterFunc(persistDebounce, func() {
			s.mu.Lock()
			s.flushTimer = nil
			s.mu.Unlock()
			s.Flush(context.Background())
		})
	}
}

func toRecord(conv *Conversation) (*store.ConversationRecord, error) {
	messagesJSON, err := json.Marshal(conv.Messages)
	if err != nil {
		return nil, err
	}
	return &store.ConversationRecord{
		ID:           conv.ID,
		Title:        conv.Title,
		Mode:         string(conv.Mode),
		Pinned:       conv.Pinned,
		MessagesJSON: messagesJSON,
		CreatedTs:    conv.CreatedTs,
		UpdatedTs:    conv.UpdatedTs,
	}, nil
}

// validate enforces the role/field exclusivity invariants: a function
// message never carries a pending tool call, a user message never carries a
// tool result or variants.
func validate(msg *Message) error {
	switch msg.Role {
	case RoleUser:
		if msg.ToolResult != nil || msg.PendingToolCall != nil || len(msg.Variants) > 0 {
			return ErrInvalidMessage
		}
	case RoleFunction:
		if msg.PendingToolCall != nil || len(msg.Variants) > 0 || len(msg.Attachments) > 0 {
			return ErrInvalidMessage
		}
	case RoleModel:
		if msg.ToolResult != nil {
			return ErrInvalidMessage
		}
	default:
		return ErrInvalidMessage
	}
	return nil
}
