package v1

import (
	"encoding/json"
	"sync"

	"github.com/parleyhq/parley/chat"
)

// Broker fans message updates out to SSE subscribers, keyed by conversation.
// Slow subscribers drop events rather than block the orchestrator.
type Broker struct {
	mu          sync.Mutex
	subscribers map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{subscribers: make(map[string]map[chan []byte]struct{})}
}

// MessageUpdated implements orchestrator.Notifier.
func (b *Broker) MessageUpdated(conversationID string, msg *chat.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers[conversationID] {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Subscribe registers a listener for one conversation. The returned cancel
// func must be called when the client disconnects.
func (b *Broker) Subscribe(conversationID string) (<-chan []byte, func()) {
	ch := make(chan []byte, 64)

	b.mu.Lock()
	if b.subscribers[conversationID] == nil {
		b.subscribers[conversationID] = make(map[chan []byte]struct{})
	}
	b.subscribers[conversationID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subscribers[conversationID], ch)
		if len(b.subscribers[conversationID]) == 0 {
			delete(b.subscribers, conversationID)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}
