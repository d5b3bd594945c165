package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/chat"
	"github.com/parleyhq/parley/chat/tools"
	"github.com/parleyhq/parley/ledger"
	"github.com/parleyhq/parley/llm"
	"github.com/parleyhq/parley/settings"
)

// memStorage is an in-memory settings document for tests.
type memStorage struct {
	mu   sync.Mutex
	data []byte
}

func (m *memStorage) GetSettings(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, nil
}

func (m *memStorage) PutSettings(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	return nil
}

type fixture struct {
	o        *Orchestrator
	messages *chat.Service
	ledger   *ledger.Ledger
	settings *settings.Repository
	conv     *chat.Conversation
}

func newFixture(t *testing.T, mode chat.Mode, svc llm.Service) *fixture {
	t.Helper()
	messages := chat.NewService(nil)
	conv := messages.Create("test", mode)

	repo := settings.NewRepository(&memStorage{})
	bank := ledger.New(5)

	calc, err := tools.NewCalculator()
	require.NoError(t, err)
	registry := tools.NewRegistry([]tools.Tool{calc}, nil)
	executor := tools.NewExecutor(registry, nil, nil)

	o := New(svc, messages, registry, executor, repo, nil, bank, Config{Model: "test-model"})
	return &fixture{o: o, messages: messages, ledger: bank, settings: repo, conv: conv}
}

func (f *fixture) history(t *testing.T) []chat.Message {
	t.Helper()
	history, err := f.messages.History(f.conv.ID)
	require.NoError(t, err)
	return history
}

func (f *fixture) waitStatus(t *testing.T, messageID string, want chat.Status) chat.Message {
	t.Helper()
	var found chat.Message
	require.Eventually(t, func() bool {
		for _, m := range f.history(t) {
			if m.ID == messageID && m.Status == want {
				found = m
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond, "message %s never reached status %s", messageID, want)
	return found
}

// waitSettled waits until the conversation has length messages and the last
// one is a terminal model message.
func (f *fixture) waitSettled(t *testing.T, length int) []chat.Message {
	t.Helper()
	var history []chat.Message
	require.Eventually(t, func() bool {
		history = f.history(t)
		if len(history) != length {
			return false
		}
		last := history[len(history)-1]
		return last.Role == chat.RoleModel && last.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return history
}

func calculatorCall(expression string) *llm.ToolCall {
	return &llm.ToolCall{ID: "call-1", Name: tools.ToolCalculator, Arguments: `{"expression":"` + expression + `"}`}
}

func TestManualApprovalFlow(t *testing.T) {
	fake := llm.NewFakeService(
		llm.FakeTurn{ToolCall: calculatorCall("2+2")},
		llm.FakeTurn{Deltas: []string{"The answer is 4."}, Usage: &llm.Usage{PromptTokens: 10, CompletionTokens: 5}},
	)
	f := newFixture(t, chat.ModeManual, fake)

	_, modelMsg, err := f.o.SendMessage(f.conv.ID, "What is 2+2?", nil)
	require.NoError(t, err)

	pending := f.waitStatus(t, modelMsg.ID, chat.StatusWaitingApproval)
	require.NotNil(t, pending.PendingToolCall)
	require.Equal(t, tools.ToolCalculator, pending.PendingToolCall.Name)
	require.Equal(t, "2+2", pending.PendingToolCall.Args["expression"])

	before := f.ledger.Balance()
	require.NoError(t, f.o.Approve(f.conv.ID, modelMsg.ID))

	history := f.waitSettled(t, 4)
	fn := history[2]
	require.Equal(t, chat.RoleFunction, fn.Role)
	require.Equal(t, int64(4), fn.ToolResult.Result)
	// "2+2" is one token, "4" is one token, calculator family, 10% markup.
	expectedCost := 2 * 0.0000025 * 1.1
	require.InDelta(t, expectedCost, fn.ToolResult.Cost, 1e-12)
	require.InDelta(t, expectedCost, before-f.ledger.Balance(), 1e-12)

	require.Equal(t, chat.StatusDone, history[3].Status)
	require.Equal(t, "The answer is 4.", history[3].Text)
}

func TestApproveIsSingleResolution(t *testing.T) {
	fake := llm.NewFakeService(
		llm.FakeTurn{ToolCall: calculatorCall("2+2")},
		llm.FakeTurn{Deltas: []string{"done"}},
	)
	f := newFixture(t, chat.ModeManual, fake)

	_, modelMsg, err := f.o.SendMessage(f.conv.ID, "compute", nil)
	require.NoError(t, err)
	f.waitStatus(t, modelMsg.ID, chat.StatusWaitingApproval)

	require.NoError(t, f.o.Approve(f.conv.ID, modelMsg.ID))
	f.waitSettled(t, 4)
	balance := f.ledger.Balance()

	err = f.o.Approve(f.conv.ID, modelMsg.ID)
	require.ErrorIs(t, err, ErrAlreadyResolved)
	err = f.o.Reject(f.conv.ID, modelMsg.ID)
	require.ErrorIs(t, err, ErrAlreadyResolved)

	// No double-debit and no second function message.
	require.Equal(t, balance, f.ledger.Balance())
	count := 0
	for _, m := range f.history(t) {
		if m.Role == chat.RoleFunction {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestRejectInjectsDenialAndContinues(t *testing.T) {
	fake := llm.NewFakeService(
		llm.FakeTurn{ToolCall: calculatorCall("2+2")},
		llm.FakeTurn{Deltas: []string{"Understood, no tools."}},
	)
	f := newFixture(t, chat.ModeManual, fake)

	_, modelMsg, err := f.o.SendMessage(f.conv.ID, "compute", nil)
	require.NoError(t, err)
	f.waitStatus(t, modelMsg.ID, chat.StatusWaitingApproval)

	before := f.ledger.Balance()
	require.NoError(t, f.o.Reject(f.conv.ID, modelMsg.ID))

	history := f.waitSettled(t, 4)
	fn := history[2]
	require.Equal(t, chat.RoleFunction, fn.Role)
	require.Equal(t, chat.StatusDone, fn.Status)
	require.Equal(t, RejectionResult, fn.ToolResult.Result)
	require.Equal(t, 0.0, fn.ToolResult.Cost)
	require.Equal(t, before, f.ledger.Balance())
	require.Equal(t, chat.StatusDone, history[3].Status)
}

func TestAutoModeChainsTools(t *testing.T) {
	fake := llm.NewFakeService(
		llm.FakeTurn{ToolCall: calculatorCall("2+2")},
		llm.FakeTurn{Deltas: []string{"All done."}},
	)
	f := newFixture(t, chat.ModeAuto, fake)

	_, _, err := f.o.SendMessage(f.conv.ID, "compute", nil)
	require.NoError(t, err)

	history := f.waitSettled(t, 4)
	require.Equal(t, chat.StatusDone, history[1].Status)
	require.NotNil(t, history[1].PendingToolCall)
	require.Equal(t, int64(4), history[2].ToolResult.Result)
	require.Equal(t, "All done.", history[3].Text)
	require.Equal(t, 2, fake.Calls())
}

func TestToolFailureIsNotATurnError(t *testing.T) {
	// Empty expression makes the calculator fail; the executor degrades it
	// to the error-string result and the chain continues.
	fake := llm.NewFakeService(
		llm.FakeTurn{ToolCall: calculatorCall("")},
		llm.FakeTurn{Deltas: []string{"That did not work."}},
	)
	f := newFixture(t, chat.ModeAuto, fake)

	_, _, err := f.o.SendMessage(f.conv.ID, "compute", nil)
	require.NoError(t, err)

	history := f.waitSettled(t, 4)
	fn := history[2]
	require.Equal(t, chat.StatusDone, fn.Status)
	require.Equal(t, tools.ErrorResult, fn.ToolResult.Result)
	require.Equal(t, chat.StatusDone, history[3].Status)
}

// gatedService lets a test feed stream events one at a time.
type gatedService struct {
	events chan llm.StreamEvent
}

func (g *gatedService) StreamGenerate(context.Context, *llm.Request) (<-chan llm.StreamEvent, error) {
	return g.events, nil
}

func (g *gatedService) Generate(context.Context, *llm.Request) (*llm.Result, error) {
	return nil, errors.New("not scripted")
}

func TestStopPreservesPartialText(t *testing.T) {
	gated := &gatedService{events: make(chan llm.StreamEvent)}
	f := newFixture(t, chat.ModeManual, gated)

	_, modelMsg, err := f.o.SendMessage(f.conv.ID, "tell me a story", nil)
	require.NoError(t, err)

	for _, delta := range []string{"once ", "upon ", "a time"} {
		gated.events <- llm.StreamEvent{Delta: delta}
	}
	require.Eventually(t, func() bool {
		for _, m := range f.history(t) {
			if m.ID == modelMsg.ID && m.Text == "once upon a time" {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)

	before := f.ledger.Balance()
	f.o.Stop(f.conv.ID)
	close(gated.events)

	final := f.waitStatus(t, modelMsg.ID, chat.StatusAborted)
	require.Equal(t, "once upon a time"+StoppedMarker, final.Text)
	require.Equal(t, before, f.ledger.Balance())

	// A second stop on the resolved turn is a no-op.
	f.o.Stop(f.conv.ID)
}

func TestContextLimitErrorIsSpecific(t *testing.T) {
	fake := llm.NewFakeService(
		llm.FakeTurn{Err: errors.New("request rejected: maximum context length exceeded")},
	)
	f := newFixture(t, chat.ModeManual, fake)

	before := f.ledger.Balance()
	_, modelMsg, err := f.o.SendMessage(f.conv.ID, "huge", nil)
	require.NoError(t, err)

	final := f.waitStatus(t, modelMsg.ID, chat.StatusError)
	require.Equal(t, ContextLimitErrorText, final.Text)
	require.Equal(t, before, f.ledger.Balance())
}

func TestGenericErrorText(t *testing.T) {
	fake := llm.NewFakeService(llm.FakeTurn{Err: errors.New("connection reset")})
	f := newFixture(t, chat.ModeManual, fake)

	_, modelMsg, err := f.o.SendMessage(f.conv.ID, "hello", nil)
	require.NoError(t, err)

	final := f.waitStatus(t, modelMsg.ID, chat.StatusError)
	require.Equal(t, GenericErrorText, final.Text)
}

func TestRegenerateRoundTrip(t *testing.T) {
	fake := llm.NewFakeService(
		llm.FakeTurn{Deltas: []string{"first answer"}},
		llm.FakeTurn{Deltas: []string{"second answer"}},
	)
	f := newFixture(t, chat.ModeManual, fake)

	_, modelMsg, err := f.o.SendMessage(f.conv.ID, "question", nil)
	require.NoError(t, err)
	f.waitStatus(t, modelMsg.ID, chat.StatusDone)
	original := f.history(t)

	regenerated, err := f.o.Regenerate(f.conv.ID, modelMsg.ID)
	require.NoError(t, err)
	f.waitStatus(t, regenerated.ID, chat.StatusDone)

	history := f.history(t)
	require.Len(t, history, len(original))
	require.NotEqual(t, modelMsg.ID, history[len(history)-1].ID)
	require.Equal(t, "second answer", history[len(history)-1].Text)
	// Everything before the regenerated message is untouched.
	for i := 0; i < len(history)-1; i++ {
		require.Equal(t, original[i].ID, history[i].ID)
	}
}

func TestSendRejectedWhileTurnUnresolved(t *testing.T) {
	fake := llm.NewFakeService(llm.FakeTurn{ToolCall: calculatorCall("2+2")})
	f := newFixture(t, chat.ModeManual, fake)

	_, modelMsg, err := f.o.SendMessage(f.conv.ID, "compute", nil)
	require.NoError(t, err)
	f.waitStatus(t, modelMsg.ID, chat.StatusWaitingApproval)

	_, _, err = f.o.SendMessage(f.conv.ID, "another", nil)
	require.ErrorIs(t, err, ErrTurnInFlight)
}

func TestTenthTurnRunsProbe(t *testing.T) {
	fake := llm.NewFakeService(
		llm.FakeTurn{Deltas: []string{"variant one"}, Usage: &llm.Usage{PromptTokens: 8, CompletionTokens: 4}},
		llm.FakeTurn{Deltas: []string{"variant two"}, Usage: &llm.Usage{PromptTokens: 8, CompletionTokens: 4}},
	)
	f := newFixture(t, chat.ModeManual, fake)

	// Seed nine settled user turns so the next send is the tenth.
	for i := 0; i < 9; i++ {
		require.NoError(t, f.messages.Append(f.conv.ID, &chat.Message{
			ID: "u" + string(rune('a'+i)), Role: chat.RoleUser, Text: "q", Status: chat.StatusSent,
		}))
		require.NoError(t, f.messages.Append(f.conv.ID, &chat.Message{
			ID: "m" + string(rune('a'+i)), Role: chat.RoleModel, Text: "a", Status: chat.StatusDone,
		}))
	}

	_, modelMsg, err := f.o.SendMessage(f.conv.ID, "tenth question", nil)
	require.NoError(t, err)

	pending := f.waitStatus(t, modelMsg.ID, chat.StatusWaitingVariantSelection)
	require.Len(t, pending.Variants, 2)
	require.Equal(t, probeTones[0], pending.Variants[0].Tone)
	require.Equal(t, probeTones[1], pending.Variants[1].Tone)

	chosen := pending.Variants[1]
	require.NoError(t, f.o.SelectVariant(f.conv.ID, modelMsg.ID, chosen.ID))

	final := f.waitStatus(t, modelMsg.ID, chat.StatusDone)
	require.Equal(t, chosen.Text, final.Text)
	require.Empty(t, final.Variants)
	require.Contains(t, f.settings.Get().Preferences, "User prefers warm and detailed tone")

	// Selecting again must fail: the suspension is resolved.
	err = f.o.SelectVariant(f.conv.ID, modelMsg.ID, chosen.ID)
	require.ErrorIs(t, err, ErrNotAwaitingSelection)
}

func TestProbeFailsWhole(t *testing.T) {
	fake := llm.NewFakeService(
		llm.FakeTurn{Deltas: []string{"only one side"}},
		llm.FakeTurn{Err: errors.New("boom")},
	)
	f := newFixture(t, chat.ModeManual, fake)

	for i := 0; i < 9; i++ {
		require.NoError(t, f.messages.Append(f.conv.ID, &chat.Message{
			ID: "u" + string(rune('a'+i)), Role: chat.RoleUser, Text: "q", Status: chat.StatusSent,
		}))
		require.NoError(t, f.messages.Append(f.conv.ID, &chat.Message{
			ID: "m" + string(rune('a'+i)), Role: chat.RoleModel, Text: "a", Status: chat.StatusDone,
		}))
	}

	_, modelMsg, err := f.o.SendMessage(f.conv.ID, "tenth question", nil)
	require.NoError(t, err)

	final := f.waitStatus(t, modelMsg.ID, chat.StatusError)
	require.Empty(t, final.Variants)
}

func TestHistorySerialization(t *testing.T) {
	fake := llm.NewFakeService(llm.FakeTurn{Deltas: []string{"final"}})
	f := newFixture(t, chat.ModeManual, fake)

	require.NoError(t, f.messages.Append(f.conv.ID, &chat.Message{
		ID: "u1", Role: chat.RoleUser, Text: "What is 2+2?", Status: chat.StatusSent,
	}))
	require.NoError(t, f.messages.Append(f.conv.ID, &chat.Message{
		ID: "m1", Role: chat.RoleModel, Status: chat.StatusDone,
		PendingToolCall: &chat.ToolCall{ID: "c1", Name: tools.ToolCalculator, Args: map[string]any{"expression": "2+2"}},
	}))
	require.NoError(t, f.messages.Append(f.conv.ID, &chat.Message{
		ID: "f1", Role: chat.RoleFunction, Status: chat.StatusDone,
		ToolResult: &chat.ToolResult{ID: "c1", Name: tools.ToolCalculator, Result: int64(4)},
	}))

	_, modelMsg, err := f.o.SendMessage(f.conv.ID, "thanks", nil)
	require.NoError(t, err)
	f.waitStatus(t, modelMsg.ID, chat.StatusDone)

	require.Len(t, fake.Requests, 1)
	serialized := fake.Requests[0].Messages
	require.Len(t, serialized, 4)
	require.Equal(t, "user", serialized[0].Role)
	// The pending call becomes an assistant action note.
	require.Equal(t, "assistant", serialized[1].Role)
	require.Contains(t, serialized[1].Content, tools.ToolCalculator)
	require.Contains(t, serialized[1].Content, "2+2")
	// The tool result becomes a user-role note prefixed with the tool name.
	require.Equal(t, "user", serialized[2].Role)
	require.Contains(t, serialized[2].Content, tools.ToolCalculator)
	require.Equal(t, "user", serialized[3].Role)
	require.Equal(t, "thanks", serialized[3].Content)
}
