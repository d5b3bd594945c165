package store

// ConversationRecord is the persisted form of a conversation. The message
// log is stored as a single JSON document; the in-memory chat service is the
// source of truth and writes may lag it by up to a second.
type ConversationRecord struct {
	ID           string
	Title        string
	Mode         string
	Pinned       bool
	MessagesJSON []byte
	CreatedTs    int64
	UpdatedTs    int64
}

// UpdateConversation carries conversation-level metadata changes.
type UpdateConversation struct {
	Title  *string
	Mode   *string
	Pinned *bool
}
