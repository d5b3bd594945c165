package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/llm"
)

// stubTool is a scriptable tool for executor tests.
type stubTool struct {
	name    string
	result  any
	err     error
	panics  bool
	payload string
}

func (s *stubTool) Name() string { return s.name }

func (s *stubTool) Descriptor() llm.ToolDescriptor {
	return llm.ToolDescriptor{Name: s.name, Parameters: "{}"}
}

func (s *stubTool) Payload(map[string]any) string { return s.payload }

func (s *stubTool) Execute(context.Context, map[string]any) (any, error) {
	if s.panics {
		panic("boom")
	}
	return s.result, s.err
}

func TestExecutorSuccess(t *testing.T) {
	registry := NewRegistry([]Tool{&stubTool{name: ToolCalculator, result: int64(4), payload: "2+2"}}, nil)
	executor := NewExecutor(registry, nil, nil)

	execution := executor.Execute(context.Background(), ToolCalculator, map[string]any{"expression": "2+2"}, false)
	require.Equal(t, int64(4), execution.Result)
	// 1 input token + 1 output token, calculator family.
	require.InDelta(t, 2*perTokenRate*1.1, execution.Cost, 1e-12)
}

func TestExecutorConvertsFailureToErrorResult(t *testing.T) {
	registry := NewRegistry([]Tool{
		&stubTool{name: ToolCalculator, err: context.DeadlineExceeded, payload: "x"},
	}, nil)
	executor := NewExecutor(registry, nil, nil)

	execution := executor.Execute(context.Background(), ToolCalculator, nil, false)
	require.Equal(t, ErrorResult, execution.Result)
	// Error results still cost: the turn is treated as successful.
	require.Greater(t, execution.Cost, 0.0)
}

func TestExecutorRecoversPanics(t *testing.T) {
	registry := NewRegistry([]Tool{&stubTool{name: ToolCalculator, panics: true, payload: "x"}}, nil)
	executor := NewExecutor(registry, nil, nil)

	execution := executor.Execute(context.Background(), ToolCalculator, nil, false)
	require.Equal(t, ErrorResult, execution.Result)
}

func TestExecutorUnknownTool(t *testing.T) {
	registry := NewRegistry(nil, nil)
	executor := NewExecutor(registry, nil, nil)

	execution := executor.Execute(context.Background(), "no_such_tool", map[string]any{"a": 1.0}, false)
	require.Equal(t, ErrorResult, execution.Result)
}

func TestMemoryToolsGatedByFlag(t *testing.T) {
	base := []Tool{&stubTool{name: ToolCalculator}}
	mem := []Tool{&stubTool{name: ToolMemorySave}}
	registry := NewRegistry(base, mem)

	require.Len(t, registry.Descriptors(false), 1)
	require.Len(t, registry.Descriptors(true), 2)

	_, ok := registry.Lookup(ToolMemorySave, false)
	require.False(t, ok)
	_, ok = registry.Lookup(ToolMemorySave, true)
	require.True(t, ok)
}
