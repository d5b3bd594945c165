package tools

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/parleyhq/parley/llm"
	"github.com/parleyhq/parley/store"
	"github.com/parleyhq/parley/vfs"
)

// fsTool binds one virtual-filesystem operation to the tool surface. All six
// operations share the JSON-args payload convention for token accounting.
type fsTool struct {
	name        string
	description string
	parameters  string
	run         func(ctx context.Context, args map[string]any) (any, error)
}

func (t *fsTool) Name() string { return t.name }

func (t *fsTool) Descriptor() llm.ToolDescriptor {
	return llm.ToolDescriptor{Name: t.name, Description: t.description, Parameters: t.parameters}
}

func (t *fsTool) Payload(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	return string(data)
}

func (t *fsTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return t.run(ctx, args)
}

// FSTools returns the virtual-filesystem tool bindings.
func FSTools(svc *vfs.Service) []Tool {
	return []Tool{
		&fsTool{
			name:        ToolFSCreate,
			description: "Create a file or folder in the user's workspace.",
			parameters: `{
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"parentId": {"type": "string", "description": "Parent folder id, empty for root"},
					"kind": {"type": "string", "enum": ["file", "folder"]},
					"content": {"type": "string", "description": "Initial file content"}
				},
				"required": ["name", "kind"]
			}`,
			run: func(ctx context.Context, args map[string]any) (any, error) {
				kind := store.VFSNodeKind(stringArg(args, "kind"))
				if kind != store.VFSNodeFile && kind != store.VFSNodeFolder {
					return nil, errors.Errorf("unknown node kind: %s", stringArg(args, "kind"))
				}
				node, err := svc.Create(ctx, stringArg(args, "parentId"), stringArg(args, "name"),
					kind, stringArg(args, "content"), stringArg(args, "mimeType"))
				if err != nil {
					return nil, err
				}
				return node, nil
			},
		},
		&fsTool{
			name:        ToolFSRead,
			description: "Read a file's content by id.",
			parameters: `{
				"type": "object",
				"properties": {"id": {"type": "string"}},
				"required": ["id"]
			}`,
			run: func(_ context.Context, args map[string]any) (any, error) {
				node, err := svc.Get(stringArg(args, "id"))
				if err != nil {
					return nil, err
				}
				if node.Kind != store.VFSNodeFile {
					return nil, vfs.ErrNotFile
				}
				return node.Content, nil
			},
		},
		&fsTool{
			name:        ToolFSEdit,
			description: "Replace a file's content.",
			parameters: `{
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"content": {"type": "string"}
				},
				"required": ["id", "content"]
			}`,
			run: func(ctx context.Context, args map[string]any) (any, error) {
				return svc.Write(ctx, stringArg(args, "id"), stringArg(args, "content"))
			},
		},
		&fsTool{
			name:        ToolFSRename,
			description: "Rename a file or folder.",
			parameters: `{
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"name": {"type": "string"}
				},
				"required": ["id", "name"]
			}`,
			run: func(ctx context.Context, args map[string]any) (any, error) {
				return svc.Rename(ctx, stringArg(args, "id"), stringArg(args, "name"))
			},
		},
		&fsTool{
			name:        ToolFSDelete,
			description: "Delete a file, or a folder and everything inside it.",
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
		&fsTool{
			name:        ToolFSList,
			description: "List the children of a folder (or the root when no folder id is given).",
			parameters: `{
				"type": "object",
				"properties": {"parentId": {"type": "string"}}
			}`,
			run: func(_ context.Context, args map[string]any) (any, error) {
				return svc.List(stringArg(args, "parentId"))
			},
		},
	}
}
