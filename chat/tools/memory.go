package tools

import (
	"context"
	"encoding/json"

	"github.com/parleyhq/parley/llm"
	"github.com/parleyhq/parley/memory"
)

type memoryTool struct {
	name        string
	description string
	parameters  string
	run         func(ctx context.Context, args map[string]any) (any, error)
}

func (t *memoryTool) Name() string { return t.name }

func (t *memoryTool) Descriptor() llm.ToolDescriptor {
	return llm.ToolDescriptor{Name: t.name, Description: t.description, Parameters: t.parameters}
}

func (t *memoryTool) Payload(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	return string(data)
}

func (t *memoryTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return t.run(ctx, args)
}

// MemoryTools returns the memory-mutation tool bindings. They only enter the
// registry when the memory feature flag is on.
func MemoryTools(svc *memory.Service) []Tool {
	return []Tool{
		&memoryTool{
			name:        ToolMemorySave,
			description: "Save a durable note about the user for future conversations.",
			parameters: `{
				"type": "object",
				"properties": {"content": {"type": "string"}},
				"required": ["content"]
			}`,
			run: func(ctx context.Context, args map[string]any) (any, error) {
				return svc.Save(ctx, stringArg(args, "content"))
			},
		},
		&memoryTool{
			name:        ToolMemoryUpdate,
			description: "Update a saved note by id.",
			parameters: `{
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"content": {"type": "string"}
				},
				"required": ["id", "content"]
			}`,
			run: func(ctx context.Context, args map[string]any) (any, error) {
				return svc.Update(ctx, stringArg(args, "id"), stringArg(args, "content"))
			},
		},
		&memoryTool{
			name:        ToolMemoryDelete,
			description: "Delete a saved note by id.",
			parameters: `{
				"type": "object",
				"properties": {"id": {"type": "string"}},
				"required": ["id"]
			}`,
			run: func(ctx context.Context, args map[string]any) (any, error) {
				if err := svc.Delete(ctx, stringArg(args, "id")); err != nil {
					return nil, err
				}
				return "deleted", nil
			},
		},
	}
}
