// Package llm wraps OpenAI-compatible chat providers behind a small
// generation-service interface used by the turn orchestrator.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Message represents a single turn sent to the generation service.
type Message struct {
	Role        string // system, user, assistant
	Content     string
	Attachments []Attachment
}

// Attachment is an inline payload carried by a user message.
type Attachment struct {
	MimeType string
	Data     string // base64
}

// Usage reports token counts for a single generation call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ToolDescriptor represents a function/tool available to the model.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  string // JSON Schema string
}

// ToolCall is a request from the model to invoke a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// StreamEvent is one increment of a streaming generation.
// Exactly one of Delta, Usage, ToolCall, Err is meaningful per event.
type StreamEvent struct {
	Delta    string
	Usage    *Usage
	ToolCall *ToolCall
	Err      error
}

// Request describes one generation call.
type Request struct {
	Model    string
	System   string
	Messages []Message
	Tools    []ToolDescriptor
}

// Result is the outcome of a non-streaming generation.
type Result struct {
	Content string
	Usage   Usage
}

// Service is the generation service interface.
type Service interface {
	// StreamGenerate opens a streaming generation. The returned channel is
	// closed when the stream ends; it is lazy, finite and not restartable.
	StreamGenerate(ctx context.Context, req *Request) (<-chan StreamEvent, error)

	// Generate performs a synchronous generation without tool support.
	Generate(ctx context.Context, req *Request) (*Result, error)
}

// Config represents generation service configuration.
type Config struct {
	Provider    string // openai, deepseek, openrouter, ollama or any compatible
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 4096
	Temperature float32 // default: 0.7
	Timeout     int     // request timeout in seconds (default: 300)
}

type service struct {
	client      *openai.Client
	maxTokens   int
	temperature float32
	timeout     int
}

var providerBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"deepseek":   "https://api.deepseek.com",
	"openrouter": "https://openrouter.ai/api/v1",
	"ollama":     "http://localhost:11434/v1",
}

// NewService creates a new generation Service.
func NewService(cfg *Config) (Service, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.HTTPClient = newHTTPClient()

	baseURL := cfg.BaseURL
	if baseURL == "" {
		if def, ok := providerBaseURLs[cfg.Provider]; ok {
			baseURL = def
		}
	}
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if cfg.Provider != "" {
		if _, ok := providerBaseURLs[cfg.Provider]; !ok {
			slog.Info("using generic OpenAI-compatible provider", "provider", cfg.Provider)
		}
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 300
	}

	return &service{
		client:      openai.NewClientWithConfig(clientConfig),
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
	}, nil
}

func (s *service) Generate(ctx context.Context, req *Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeout)*time.Second)
	defer cancel()

	startTime := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		Messages:    convertMessages(req.System, req.Messages),
	})
	if err != nil {
		slog.Error("llm: generate failed", "model", req.Model, "error", err)
		return nil, fmt.Errorf("generate failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from model")
	}

	slog.Debug("llm: generate completed",
		"model", req.Model,
		"total_tokens", resp.Usage.TotalTokens,
		"duration_ms", time.Since(startTime).Milliseconds(),
	)

	return &Result{
		Content: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (s *service) StreamGenerate(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	openaiReq := openai.ChatCompletionRequest{
		Model:         req.Model,
		MaxTokens:     s.maxTokens,
		Temperature:   s.temperature,
		Messages:      convertMessages(req.System, req.Messages),
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.Tool, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  json.RawMessage(t.Parameters),
				},
			}
		}
		openaiReq.Tools = tools
	}

	stream, err := s.client.CreateChatCompletionStream(ctx, openaiReq)
	if err != nil {
		slog.Error("llm: failed to open stream", "model", req.Model, "error", err)
		return nil, fmt.Errorf("open stream failed: %w", err)
	}

	events := make(chan StreamEvent, 8)
	go func() {
		defer close(events)
		defer func() { _ = stream.Close() }()

		send := func(ev StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		// Tool call fragments are assembled across deltas; the assembled
		// call is emitted once the model signals tool_calls as the finish
		// reason (or the stream ends with a pending call).
		var pending *ToolCall
		chunkCount := 0

		for {
			resp, err := stream.Recv()
			if err != nil {
				if strings.Contains(err.Error(), "EOF") {
					if pending != nil {
						send(StreamEvent{ToolCall: pending})
					}
					slog.Debug("llm: stream completed", "model", req.Model, "chunks", chunkCount)
					return
				}
				send(StreamEvent{Err: fmt.Errorf("stream recv failed: %w", err)})
				return
			}

			if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
				if !send(StreamEvent{Usage: &Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				}}) {
					return
				}
			}

			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]

			for _, tc := range choice.Delta.ToolCalls {
				if pending == nil {
					pending = &ToolCall{}
				}
				if tc.ID != "" {
					pending.ID = tc.ID
				}
				if tc.Function.Name != "" {
					pending.Name = tc.Function.Name
				}
				pending.Arguments += tc.Function.Arguments
			}

			if choice.Delta.Content != "" {
				chunkCount++
				if !send(StreamEvent{Delta: choice.Delta.Content}) {
					return
				}
			}

			if choice.FinishReason == openai.FinishReasonToolCalls && pending != nil {
				send(StreamEvent{ToolCall: pending})
				return
			}
		}
	}()

	return events, nil
}

func convertMessages(system string, messages []Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		converted = append(converted, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		} else if m.Role == "system" {
			role = openai.ChatMessageRoleSystem
		}

		if len(m.Attachments) == 0 {
			converted = append(converted, openai.ChatCompletionMessage{Role: role, Content: m.Content})
			continue
		}

		parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: m.Content}}
		for _, a := range m.Attachments {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", a.MimeType, a.Data),
				},
			})
		}
		converted = append(converted, openai.ChatCompletionMessage{Role: role, MultiContent: parts})
	}
	return converted
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Minute,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
