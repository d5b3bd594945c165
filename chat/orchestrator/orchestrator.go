// Package orchestrator drives model turns: it serializes history, consumes
// the generation stream, intercepts tool calls for approval or auto
// execution, charges the ledger, and exposes the approve/reject/select/stop
// control surface. Turns within one conversation are strictly sequential.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/parleyhq/parley/chat"
	"github.com/parleyhq/parley/chat/tools"
	"github.com/parleyhq/parley/ledger"
	"github.com/parleyhq/parley/llm"
	"github.com/parleyhq/parley/memory"
	"github.com/parleyhq/parley/metrics"
	"github.com/parleyhq/parley/settings"
)

// Every probeInterval-th user turn (1-indexed) runs the A/B prober instead
// of a normal generation.
const probeInterval = 10

const (
	// StoppedMarker is appended to partial text when the user aborts a turn.
	StoppedMarker = "\n\n[Stopped by user]"

	// GenericErrorText replaces the message text on an unclassified failure.
	GenericErrorText = "Sorry, something went wrong while generating a response. Please try regenerating the message."

	// ContextLimitErrorText is shown when the request exceeds the model's
	// maximum context size. It must stay distinct from the generic text.
	ContextLimitErrorText = "This conversation has exceeded the model's maximum context size. Please start a new conversation, or remove attachments and regenerate."

	// RejectionResult is the tool result injected when the user rejects a
	// pending tool call. Rejection is a successful tool turn, not an error.
	RejectionResult = "The user declined this tool call."
)

var (
	ErrTurnInFlight         = errors.New("a turn is already in progress for this conversation")
	ErrAlreadyResolved      = errors.New("tool call already resolved")
	ErrNotAwaitingApproval  = errors.New("message is not awaiting approval")
	ErrNotAwaitingSelection = errors.New("message is not awaiting variant selection")
	ErrVariantNotFound      = errors.New("variant not found")
)

// Notifier receives message updates as turns progress. The HTTP layer uses
// it to push server-sent events.
type Notifier interface {
	MessageUpdated(conversationID string, msg *chat.Message)
}

type nopNotifier struct{}

func (nopNotifier) MessageUpdated(string, *chat.Message) {}

// Config carries the generation model and its per-token prices.
type Config struct {
	Model       string
	InputPrice  float64
	OutputPrice float64
}

type Orchestrator struct {
	llm      llm.Service
	messages *chat.Service
	registry *tools.Registry
	executor *tools.Executor
	settings *settings.Repository
	memories *memory.Service
	ledger   *ledger.Ledger
	notifier Notifier
	logger   *slog.Logger
	cfg      Config

	mu     sync.Mutex
	active map[string]context.CancelFunc // conversation id -> cancel for the in-flight turn
}

func New(svc llm.Service, messages *chat.Service, registry *tools.Registry, executor *tools.Executor,
	repo *settings.Repository, memories *memory.Service, bank *ledger.Ledger, cfg Config) *Orchestrator {
	return &Orchestrator{
		llm:      svc,
		messages: messages,
		registry: registry,
		executor: executor,
		settings: repo,
		memories: memories,
		ledger:   bank,
		notifier: nopNotifier{},
		logger:   slog.Default(),
		cfg:      cfg,
		active:   make(map[string]context.CancelFunc),
	}
}

// SetNotifier registers the message-update sink. Must be called before the
// first turn starts.
func (o *Orchestrator) SetNotifier(n Notifier) {
	if n != nil {
		o.notifier = n
	}
}

// SetLogger overrides the default logger.
func (o *Orchestrator) SetLogger(l *slog.Logger) {
	if l != nil {
		o.logger = l
	}
}

// SendMessage appends the user's message and starts a model turn. Every
// probeInterval-th user turn runs the A/B prober instead. Returns the user
// message and the in-flight model message.
func (o *Orchestrator) SendMessage(conversationID, text string, attachments []chat.Attachment) (*chat.Message, *chat.Message, error) {
	conv, err := o.messages.Get(conversationID)
	if err != nil {
		return nil, nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.ensureIdleLocked(conversationID); err != nil {
		return nil, nil, err
	}

	userMsg := &chat.Message{
		ID:          shortuuid.New(),
		Role:        chat.RoleUser,
		Text:        text,
		Timestamp:   time.Now().UnixMilli(),
		Status:      chat.StatusSending,
		Attachments: attachments,
	}
	if err := o.messages.Append(conversationID, userMsg); err != nil {
		return nil, nil, err
	}
	// The in-memory append is the send; there is no further hop to wait on.
	sent := chat.StatusSent
	if err := o.messages.Replace(conversationID, userMsg.ID, &chat.MessagePatch{Status: &sent}); err != nil {
		return nil, nil, err
	}
	userMsg.Status = chat.StatusSent
	o.notify(conversationID, userMsg.ID)

	modelMsg, err := o.appendModelMessage(conversationID)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.active[conversationID] = cancel

	if conv.UserTurnCount()%probeInterval == 0 {
		go func() {
			defer o.clearActive(conversationID)
			o.runProbe(ctx, conversationID, modelMsg.ID)
		}()
	} else {
		go func() {
			defer o.clearActive(conversationID)
			o.runTurn(ctx, conversationID, modelMsg.ID)
		}()
	}
	return userMsg, modelMsg, nil
}

// Approve executes the pending tool call on a waiting_approval message and
// runs a follow-up turn. A second approve or reject of the same call fails
// with ErrAlreadyResolved.
func (o *Orchestrator) Approve(conversationID, messageID string) error {
	return o.resolveApproval(conversationID, messageID, true)
}

// Reject declines the pending tool call. The denial is injected as a normal
// tool result and a follow-up turn lets the model react to it.
func (o *Orchestrator) Reject(conversationID, messageID string) error {
	return o.resolveApproval(conversationID, messageID, false)
}

func (o *Orchestrator) resolveApproval(conversationID, messageID string, approved bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[conversationID]; busy {
		return ErrTurnInFlight
	}

	msg, err := o.messages.Message(conversationID, messageID)
	if err != nil {
		return err
	}
	if msg.Status != chat.StatusWaitingApproval {
		if msg.PendingToolCall != nil && msg.Status == chat.StatusDone {
			return ErrAlreadyResolved
		}
		return ErrNotAwaitingApproval
	}
	call := msg.PendingToolCall
	if call == nil {
		return ErrNotAwaitingApproval
	}

	// Single-resolution transition: flip to done before anything slow runs
	// so a concurrent approve/reject observes the resolved state.
	done := chat.StatusDone
	if err := o.messages.Replace(conversationID, messageID, &chat.MessagePatch{Status: &done}); err != nil {
		return err
	}
	o.notify(conversationID, messageID)

	ctx, cancel := context.WithCancel(context.Background())
	o.active[conversationID] = cancel
	go func() {
		defer o.clearActive(conversationID)
		o.executeToolTurn(ctx, conversationID, call, approved)
	}()
	return nil
}

// SelectVariant resolves a waiting_variant_selection message: the chosen
// text becomes the message text, the preference is recorded durably, and the
// combined probe cost is debited.
func (o *Orchestrator) SelectVariant(conversationID, messageID, variantID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	msg, err := o.messages.Message(conversationID, messageID)
	if err != nil {
		return err
	}
	if msg.Status != chat.StatusWaitingVariantSelection {
		return ErrNotAwaitingSelection
	}
	var chosen *chat.Variant
	for i := range msg.Variants {
		if msg.Variants[i].ID == variantID {
			chosen = &msg.Variants[i]
			break
		}
	}
	if chosen == nil {
		return ErrVariantNotFound
	}

	cost := tools.GenerationCost(msg.PromptTokens, msg.CompletionTokens,
		o.cfg.InputPrice, o.cfg.OutputPrice, o.textCredentialed())
	done := chat.StatusDone
	if err := o.messages.Replace(conversationID, messageID, &chat.MessagePatch{
		Text:          &chosen.Text,
		Status:        &done,
		Cost:          &cost,
		ClearVariants: true,
	}); err != nil {
		return err
	}
	o.debit(cost, "probe generation")
	o.notify(conversationID, messageID)

	note := fmt.Sprintf("User prefers %s tone", chosen.Tone)
	if err := o.settings.AddPreference(context.Background(), note); err != nil {
		o.logger.Error("failed to record preference", "error", err)
	}
	metrics.ProbesTotal.WithLabelValues("selected").Inc()
	return nil
}

// Stop cancels the in-flight turn for the conversation, if any. Idempotent.
func (o *Orchestrator) Stop(conversationID string) {
	o.mu.Lock()
	cancel, ok := o.active[conversationID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
}

// Regenerate discards the target message and everything after it, then runs
// a fresh turn from the truncated history. This is the sole retry mechanism.
func (o *Orchestrator) Regenerate(conversationID, messageID string) (*chat.Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.ensureIdleLocked(conversationID); err != nil {
		return nil, err
	}
	if err := o.messages.TruncateBefore(conversationID, messageID); err != nil {
		return nil, err
	}

	modelMsg, err := o.appendModelMessage(conversationID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.active[conversationID] = cancel
	go func() {
		defer o.clearActive(conversationID)
		o.runTurn(ctx, conversationID, modelMsg.ID)
	}()
	return modelMsg, nil
}

// runTurn is the turn loop. Auto-mode tool chaining is an explicit iteration
// with the cancellation check reachable at every boundary; there is no upper
// bound other than the provider's own context-length error.
func (o *Orchestrator) runTurn(ctx context.Context, conversationID, messageID string) {
	conv, err := o.messages.Get(conversationID)
	if err != nil {
		o.logger.Error("turn aborted, conversation vanished", "conversation_id", conversationID)
		return
	}

	for {
		if ctx.Err() != nil {
			o.finishAborted(conversationID, messageID, "", 0)
			return
		}

		outcome := o.streamOnce(ctx, conversationID, messageID)
		if outcome.call == nil || outcome.failed {
			return
		}

		if conv.Mode == chat.ModeManual {
			waiting := chat.StatusWaitingApproval
			if err := o.messages.Replace(conversationID, messageID, &chat.MessagePatch{
				Status:          &waiting,
				PendingToolCall: outcome.call,
			}); err != nil {
				o.logger.Error("failed to suspend for approval", "error", err)
			}
			o.notify(conversationID, messageID)
			return
		}

		// Auto mode: record the call, close this message, execute, then
		// continue the loop with a fresh model message.
		done := chat.StatusDone
		if err := o.messages.Replace(conversationID, messageID, &chat.MessagePatch{
			Status:          &done,
			PendingToolCall: outcome.call,
		}); err != nil {
			o.logger.Error("failed to finalize tool-call message", "error", err)
			return
		}
		o.notify(conversationID, messageID)

		o.appendToolResult(ctx, conversationID, outcome.call, true)

		next, err := o.appendModelMessage(conversationID)
		if err != nil {
			o.logger.Error("failed to append follow-up message", "error", err)
			return
		}
		messageID = next.ID
	}
}

// executeToolTurn handles the resume after approve/reject: inject the tool
// result, then run a follow-up turn.
func (o *Orchestrator) executeToolTurn(ctx context.Context, conversationID string, call *chat.ToolCall, approved bool) {
	o.appendToolResult(ctx, conversationID, call, approved)

	modelMsg, err := o.appendModelMessage(conversationID)
	if err != nil {
		o.logger.Error("failed to append follow-up message", "error", err)
		return
	}
	o.runTurn(ctx, conversationID, modelMsg.ID)
}

// appendToolResult executes (or denies) the call, appends the function
// message and debits the ledger. Tool failures surface as the error-string
// result and still count as a successful tool turn.
func (o *Orchestrator) appendToolResult(ctx context.Context, conversationID string, call *chat.ToolCall, approved bool) {
	var result any
	var cost float64
	if approved {
		execution := o.executor.Execute(ctx, call.Name, call.Args, o.memoryEnabled())
		result = execution.Result
		cost = execution.Cost
	} else {
		result = RejectionResult
	}

	fnMsg := &chat.Message{
		ID:        shortuuid.New(),
		Role:      chat.RoleFunction,
		Timestamp: time.Now().UnixMilli(),
		Status:    chat.StatusDone,
		ToolResult: &chat.ToolResult{
			ID:     call.ID,
			Name:   call.Name,
			Result: result,
			Cost:   cost,
		},
	}
	if err := o.messages.Append(conversationID, fnMsg); err != nil {
		o.logger.Error("failed to append tool result", "error", err)
		return
	}
	o.debit(cost, "tool "+call.Name)
	o.notify(conversationID, fnMsg.ID)
}

// streamOutcome is the result of consuming one generation stream.
type streamOutcome struct {
	call   *chat.ToolCall // non-nil when the model requested a tool
	failed bool           // terminal status already written (error/aborted/done)
}

// streamOnce opens one stream and consumes it to the first tool call,
// cancellation, error or completion. On plain completion it finalizes the
// message itself and reports failed=false, call=nil.
func (o *Orchestrator) streamOnce(ctx context.Context, conversationID, messageID string) streamOutcome {
	start := time.Now()
	req, err := o.buildRequest(conversationID, messageID)
	if err != nil {
		o.finishError(conversationID, messageID, err, time.Since(start))
		return streamOutcome{failed: true}
	}

	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	events, err := o.llm.StreamGenerate(streamCtx, req)
	if err != nil {
		if ctx.Err() != nil {
			o.finishAborted(conversationID, messageID, "", time.Since(start))
		} else {
			o.finishError(conversationID, messageID, err, time.Since(start))
		}
		return streamOutcome{failed: true}
	}

	var (
		text      strings.Builder
		usage     llm.Usage
		toolCall  *chat.ToolCall
		streamErr error
		cancelled bool
	)

consume:
	for event := range events {
		if ctx.Err() != nil {
			cancelled = true
			stopStream()
			break consume
		}
		if event.Err != nil {
			streamErr = event.Err
			break consume
		}
		if event.Usage != nil {
			// Last write wins, but never overwrite a real count with zero.
			if event.Usage.PromptTokens > 0 {
				usage.PromptTokens = event.Usage.PromptTokens
			}
			if event.Usage.CompletionTokens > 0 {
				usage.CompletionTokens = event.Usage.CompletionTokens
			}
		}
		if event.Delta != "" {
			text.WriteString(event.Delta)
			partial := text.String()
			if err := o.messages.Replace(conversationID, messageID, &chat.MessagePatch{Text: &partial}); err != nil {
				o.logger.Error("failed to apply stream delta", "error", err)
			}
			o.notify(conversationID, messageID)
		}
		if event.ToolCall != nil {
			// Stop consuming at the first tool call; later calls in the same
			// stream are deliberately not handled.
			toolCall = &chat.ToolCall{
				ID:   event.ToolCall.ID,
				Name: event.ToolCall.Name,
				Args: parseArgs(event.ToolCall.Arguments),
			}
			stopStream()
			break consume
		}
	}
	// Drain so the producer goroutine can exit.
	for range events {
	}
	duration := time.Since(start)

	if cancelled || ctx.Err() != nil {
		o.finishAborted(conversationID, messageID, text.String(), duration)
		return streamOutcome{failed: true}
	}
	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) {
			o.finishAborted(conversationID, messageID, text.String(), duration)
		} else {
			o.finishError(conversationID, messageID, streamErr, duration)
		}
		return streamOutcome{failed: true}
	}

	// Fallback estimation when the provider reported no usage.
	if usage.PromptTokens == 0 {
		usage.PromptTokens = llm.EstimateTokens(req.Messages)
	}
	if usage.CompletionTokens == 0 {
		usage.CompletionTokens = llm.EstimateTextTokens(text.String())
	}
	metrics.TokensTotal.WithLabelValues("prompt").Add(float64(usage.PromptTokens))
	metrics.TokensTotal.WithLabelValues("completion").Add(float64(usage.CompletionTokens))

	durationMs := duration.Milliseconds()
	if toolCall != nil {
		if err := o.messages.Replace(conversationID, messageID, &chat.MessagePatch{
			PromptTokens:     &usage.PromptTokens,
			CompletionTokens: &usage.CompletionTokens,
			DurationMs:       &durationMs,
		}); err != nil {
			o.logger.Error("failed to record usage", "error", err)
		}
		return streamOutcome{call: toolCall}
	}

	cost := tools.GenerationCost(usage.PromptTokens, usage.CompletionTokens,
		o.cfg.InputPrice, o.cfg.OutputPrice, o.textCredentialed())
	done := chat.StatusDone
	if err := o.messages.Replace(conversationID, messageID, &chat.MessagePatch{
		Status:           &done,
		PromptTokens:     &usage.PromptTokens,
		CompletionTokens: &usage.CompletionTokens,
		Cost:             &cost,
		DurationMs:       &durationMs,
	}); err != nil {
		o.logger.Error("failed to finalize message", "error", err)
	}
	o.debit(cost, "generation")
	o.notify(conversationID, messageID)
	o.observeTurn(chat.StatusDone, duration)
	return streamOutcome{}
}

func (o *Orchestrator) finishAborted(conversationID, messageID, partial string, duration time.Duration) {
	text := partial + StoppedMarker
	aborted := chat.StatusAborted
	durationMs := duration.Milliseconds()
	if err := o.messages.Replace(conversationID, messageID, &chat.MessagePatch{
		Text:       &text,
		Status:     &aborted,
		DurationMs: &durationMs,
	}); err != nil {
		o.logger.Error("failed to mark message aborted", "error", err)
	}
	o.notify(conversationID, messageID)
	o.observeTurn(chat.StatusAborted, duration)
}

// finishError writes the terminal error text. Context-limit failures get the
// specific guidance text; everything else gets the generic apology. No debit
// happens on the error path.
func (o *Orchestrator) finishError(conversationID, messageID string, cause error, duration time.Duration) {
	text := GenericErrorText
	if llm.IsContextLimit(cause) {
		text = ContextLimitErrorText
	}
	o.logger.Warn("turn failed", "conversation_id", conversationID,
		"message_id", messageID, "error", cause)

	failed := chat.StatusError
	durationMs := duration.Milliseconds()
	if err := o.messages.Replace(conversationID, messageID, &chat.MessagePatch{
		Text:       &text,
		Status:     &failed,
		DurationMs: &durationMs,
	}); err != nil {
		o.logger.Error("failed to mark message errored", "error", err)
	}
	o.notify(conversationID, messageID)
	o.observeTurn(chat.StatusError, duration)
}

// buildRequest serializes history into the transport shape. Tool activity is
// re-encoded as synthetic notes since the transport has no function role:
// pending calls become assistant action notes, tool results become user-role
// response notes prefixed with the tool name.
func (o *Orchestrator) buildRequest(conversationID, excludeMessageID string) (*llm.Request, error) {
	history, err := o.messages.History(conversationID)
	if err != nil {
		return nil, err
	}

	converted := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if m.ID == excludeMessageID {
			continue
		}
		switch m.Role {
		case chat.RoleUser:
			converted = append(converted, llm.Message{
				Role:        "user",
				Content:     m.Text,
				Attachments: convertAttachments(m.Attachments),
			})
		case chat.RoleModel:
			content := m.Text
			if m.PendingToolCall != nil {
				note := fmt.Sprintf("[Requested tool %s with arguments %s]",
					m.PendingToolCall.Name, marshalArgs(m.PendingToolCall.Args))
				if content != "" {
					content += "\n" + note
				} else {
					content = note
				}
			}
			if content == "" {
				continue
			}
			converted = append(converted, llm.Message{Role: "assistant", Content: content})
		case chat.RoleFunction:
			if m.ToolResult == nil {
				continue
			}
			note := fmt.Sprintf("[Tool %s responded: %s]",
				m.ToolResult.Name, marshalResult(m.ToolResult.Result))
			converted = append(converted, llm.Message{Role: "user", Content: note})
		}
	}

	return &llm.Request{
		Model:    o.cfg.Model,
		System:   o.systemInstruction(),
		Messages: converted,
		Tools:    o.registry.Descriptors(o.memoryEnabled()),
	}, nil
}

// systemInstruction assembles the base instruction, recorded preferences and
// saved memories (when the feature is on) into one system prompt.
func (o *Orchestrator) systemInstruction() string {
	current := o.settings.Get()

	var b strings.Builder
	b.WriteString(current.SystemInstruction)
	for _, p := range current.Preferences {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p)
	}
	if current.MemoryEnabled && o.memories != nil {
		entries := o.memories.List()
		if len(entries) > 0 {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString("Saved notes about the user:")
			for _, e := range entries {
				b.WriteString("\n- ")
				b.WriteString(e.Content)
			}
		}
	}
	return b.String()
}

func (o *Orchestrator) appendModelMessage(conversationID string) (*chat.Message, error) {
	msg := &chat.Message{
		ID:        shortuuid.New(),
		Role:      chat.RoleModel,
		Timestamp: time.Now().UnixMilli(),
		Status:    chat.StatusProcessing,
	}
	if err := o.messages.Append(conversationID, msg); err != nil {
		return nil, err
	}
	o.notify(conversationID, msg.ID)
	return msg, nil
}

// ensureIdleLocked rejects a new turn while a prior one is unresolved.
// Suspended messages (awaiting approval or variant selection) also block new
// turns; they must be resolved through their own operations first.
func (o *Orchestrator) ensureIdleLocked(conversationID string) error {
	if _, busy := o.active[conversationID]; busy {
		return ErrTurnInFlight
	}
	history, err := o.messages.History(conversationID)
	if err != nil {
		return err
	}
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role != chat.RoleModel {
			continue
		}
		if m.Status == chat.StatusWaitingApproval || m.Status == chat.StatusWaitingVariantSelection || m.Status == chat.StatusProcessing {
			return ErrTurnInFlight
		}
		break
	}
	return nil
}

func (o *Orchestrator) clearActive(conversationID string) {
	o.mu.Lock()
	if cancel, ok := o.active[conversationID]; ok {
		cancel()
		delete(o.active, conversationID)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) debit(amount float64, reason string) {
	if amount <= 0 {
		return
	}
	o.ledger.Debit(amount, reason)
	metrics.DebitsTotal.Add(amount)
}

func (o *Orchestrator) memoryEnabled() bool {
	return o.settings.Get().MemoryEnabled
}

func (o *Orchestrator) textCredentialed() bool {
	return o.settings.Get().Credentials.TextModel != ""
}

func (o *Orchestrator) notify(conversationID, messageID string) {
	msg, err := o.messages.Message(conversationID, messageID)
	if err != nil {
		return
	}
	cp := *msg
	o.notifier.MessageUpdated(conversationID, &cp)
}

func (o *Orchestrator) observeTurn(status chat.Status, duration time.Duration) {
	metrics.TurnsTotal.WithLabelValues(string(status)).Inc()
	metrics.TurnDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

func parseArgs(raw string) map[string]any {
	args := make(map[string]any)
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}

func marshalArgs(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func marshalResult(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	data, err := json.Marshal(result)
	if err != nil {
		return ""
	}
	return string(data)
}

func convertAttachments(attachments []chat.Attachment) []llm.Attachment {
	if len(attachments) == 0 {
		return nil
	}
	converted := make([]llm.Attachment, 0, len(attachments))
	for _, a := range attachments {
		converted = append(converted, llm.Attachment{MimeType: a.MimeType, Data: a.Data})
	}
	return converted
}
