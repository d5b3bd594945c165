package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/parleyhq/parley/metrics"
)

// ErrorResult is the string result substituted for any tool failure. The
// model sees it as a normal tool response and may react to it; the turn
// itself never fails because a tool did.
const ErrorResult = "Error executing tool"

// CredentialCheck reports whether the user supplied their own credential for
// the named tool's capability, waiving its flat fee.
type CredentialCheck func(tool string) bool

// Execution is the outcome of one tool call: the result value (possibly the
// error string) and the amount to debit.
type Execution struct {
	Result any
	Cost   float64
}

// Executor dispatches tool calls against the registry. Every failure path,
// including panics and unknown tool names, degrades to ErrorResult; cost is
// charged for error results too since the turn is treated as successful.
type Executor struct {
	registry     *Registry
	credentialed CredentialCheck
	logger       *slog.Logger
}

func NewExecutor(registry *Registry, credentialed CredentialCheck, logger *slog.Logger) *Executor {
	if credentialed == nil {
		credentialed = func(string) bool { return false }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{registry: registry, credentialed: credentialed, logger: logger}
}

// Execute runs the named tool with the given args.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any, memoryEnabled bool) (execution Execution) {
	start := time.Now()
	payload := rawArgsPayload(args)
	outcome := "ok"

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool panicked", "tool", name, "panic", r)
			outcome = "panic"
			execution = e.settle(name, payload, ErrorResult)
		}
		metrics.ToolCallsTotal.WithLabelValues(name, outcome).Inc()
		metrics.ToolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	tool, ok := e.registry.Lookup(name, memoryEnabled)
	if !ok {
		e.logger.Warn("unknown tool requested", "tool", name)
		outcome = "unknown"
		return e.settle(name, payload, ErrorResult)
	}
	payload = tool.Payload(args)

	result, err := tool.Execute(ctx, args)
	if err != nil {
		e.logger.Warn("tool execution failed", "tool", name, "error", err)
		outcome = "error"
		return e.settle(name, payload, ErrorResult)
	}

	execution = e.settle(name, payload, result)
	e.logger.Debug("tool executed", "tool", name, "cost", execution.Cost,
		"duration", time.Since(start))
	return execution
}

func (e *Executor) settle(name, inputPayload string, result any) Execution {
	cost := Cost(name, inputPayload, serializeResult(result), e.credentialed(name))
	return Execution{Result: result, Cost: cost}
}

func rawArgsPayload(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	return string(data)
}
