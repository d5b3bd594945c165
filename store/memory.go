package store

// Memory is one durable free-text memory entry, mutated by memory tools.
type Memory struct {
	ID        string
	Content   string
	CreatedTs int64
	UpdatedTs int64
}
