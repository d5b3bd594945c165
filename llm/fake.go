package llm

import (
	"context"
	"fmt"
	"sync"
)

// FakeTurn scripts one generation call of a FakeService.
type FakeTurn struct {
	// Deltas are streamed one event at a time before Usage/ToolCall/Err.
	Deltas   []string
	Usage    *Usage
	ToolCall *ToolCall
	Err      error
}

// FakeService is a scripted Service implementation for tests. Each call to
// StreamGenerate or Generate consumes the next scripted turn in order.
type FakeService struct {
	mu    sync.Mutex
	turns []FakeTurn
	calls int

	// Requests records every request received, for assertions.
	Requests []*Request
}

// NewFakeService creates a FakeService with the given scripted turns.
func NewFakeService(turns ...FakeTurn) *FakeService {
	return &FakeService{turns: turns}
}

// Calls returns how many generation calls were made.
func (f *FakeService) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeService) next(req *Request) (FakeTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	if f.calls >= len(f.turns) {
		return FakeTurn{}, fmt.Errorf("fake service: no scripted turn for call %d", f.calls+1)
	}
	turn := f.turns[f.calls]
	f.calls++
	return turn, nil
}

func (f *FakeService) StreamGenerate(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	turn, err := f.next(req)
	if err != nil {
		return nil, err
	}
	if turn.Err != nil && len(turn.Deltas) == 0 {
		return nil, turn.Err
	}

	events := make(chan StreamEvent, len(turn.Deltas)+2)
	go func() {
		defer close(events)
		for _, d := range turn.Deltas {
			select {
			case events <- StreamEvent{Delta: d}:
			case <-ctx.Done():
				return
			}
		}
		if turn.Err != nil {
			events <- StreamEvent{Err: turn.Err}
			return
		}
		if turn.Usage != nil {
			events <- StreamEvent{Usage: turn.Usage}
		}
		if turn.ToolCall != nil {
			events <- StreamEvent{ToolCall: turn.ToolCall}
		}
	}()
	return events, nil
}

func (f *FakeService) Generate(ctx context.Context, req *Request) (*Result, error) {
	turn, err := f.next(req)
	if err != nil {
		return nil, err
	}
	if turn.Err != nil {
		return nil, turn.Err
	}
	content := ""
	for _, d := range turn.Deltas {
		content += d
	}
	usage := Usage{}
	if turn.Usage != nil {
		usage = *turn.Usage
	}
	return &Result{Content: content, Usage: usage}, nil
}

var _ Service = (*FakeService)(nil)
