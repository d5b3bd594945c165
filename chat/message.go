// Package chat holds the conversation data model and the in-memory message
// store that is the source of truth during a session.
package chat

// Mode gates whether tool calls require human approval.
type Mode string

const (
	// ModeManual requires explicit approval for every tool call.
	ModeManual Mode = "manual"
	// ModeAuto executes tool calls immediately without approval.
	ModeAuto Mode = "auto"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser     Role = "user"
	RoleModel    Role = "model"
	RoleFunction Role = "function"
)

// Status is the lifecycle state of a message.
//
// User messages move sending -> sent. Model messages move processing ->
// done | error | aborted | waiting_approval | waiting_variant_selection.
// Terminal states are never mutated backward; regenerate discards the
// message and creates a new one in its place.
type Status string

const (
	StatusSending                 Status = "sending"
	StatusSent                    Status = "sent"
	StatusProcessing              Status = "processing"
	StatusDone                    Status = "done"
	StatusError                   Status = "error"
	StatusAborted                 Status = "aborted"
	StatusWaitingApproval         Status = "waiting_approval"
	StatusWaitingVariantSelection Status = "waiting_variant_selection"
)

// IsTerminal reports whether the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusError || s == StatusAborted
}

// ToolCall is a tool invocation requested by the model. ID correlates the
// call to its eventual result across the approval boundary.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult is the outcome of exactly one tool invocation. Immutable once
// written.
type ToolResult struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Result any     `json:"result"`
	Cost   float64 `json:"cost,omitempty"`
}

// Attachment is an immutable inline payload carried by a sent user message.
type Attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

// Variant is one candidate answer produced by a preference probe.
type Variant struct {
	ID   string `json:"id"`
	Tone string `json:"tone"`
	Text string `json:"text"`
}

// Message is a single turn in a conversation.
type Message struct {
	ID               string       `json:"id"`
	Role             Role         `json:"role"`
	Text             string       `json:"text"`
	Timestamp        int64        `json:"timestamp"`
	Status           Status       `json:"status"`
	PromptTokens     int          `json:"promptTokens,omitempty"`
	CompletionTokens int          `json:"completionTokens,omitempty"`
	Cost             float64      `json:"cost,omitempty"`
	DurationMs       int64        `json:"durationMs,omitempty"`
	PendingToolCall  *ToolCall    `json:"pendingToolCall,omitempty"`
	ToolResult       *ToolResult  `json:"toolResult,omitempty"`
	Attachments      []Attachment `json:"attachments,omitempty"`
	Variants         []Variant    `json:"variants,omitempty"`
}

// Conversation is an ordered log of messages plus its metadata.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Mode      Mode       `json:"mode"`
	Pinned    bool       `json:"pinned,omitempty"`
	Messages  []*Message `json:"messages"`
	CreatedTs int64      `json:"createdTs"`
	UpdatedTs int64      `json:"updatedTs"`
}

// UserTurnCount returns the number of user-authored messages.
func (c *Conversation) UserTurnCount() int {
	count := 0
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			count++
		}
	}
	return count
}

// MessagePatch describes a partial update applied by Replace. ID, Role and
// Timestamp can never be patched.
type MessagePatch struct {
	Text             *string
	Status           *Status
	PromptTokens     *int
	CompletionTokens *int
	Cost             *float64
	DurationMs       *int64
	PendingToolCall  *ToolCall
	ToolResult       *ToolResult
	Variants         []Variant

	ClearPendingToolCall bool
	ClearVariants        bool
}

func (m *Message) apply(patch *MessagePatch) {
	if patch.Text != nil {
		m.Text = *patch.Text
	}
	if patch.Status != nil {
		m.Status = *patch.Status
	}
	if patch.PromptTokens != nil {
		m.PromptTokens = *patch.PromptTokens
	}
	if patch.CompletionTokens != nil {
		m.CompletionTokens = *patch.CompletionTokens
	}
	if patch.Cost != nil {
		m.Cost = *patch.Cost
	}
	if patch.DurationMs != nil {
		m.DurationMs = *patch.DurationMs
	}
	if patch.PendingToolCall != nil {
		m.PendingToolCall = patch.PendingToolCall
	}
	if patch.ClearPendingToolCall {
		m.PendingToolCall = nil
	}
	if patch.ToolResult != nil {
		m.ToolResult = patch.ToolResult
	}
	if patch.Variants != nil {
		m.Variants = patch.Variants
	}
	if patch.ClearVariants {
		m.Variants = nil
	}
}
