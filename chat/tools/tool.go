// Package tools implements the closed catalog of tools the model may call:
// web search, calculator, media generation, virtual-filesystem and memory
// operations. The executor converts every failure into a string result so
// tool errors never escalate to turn-level errors.
package tools

import (
	"context"

	"github.com/parleyhq/parley/llm"
)

// Tool names form a closed set; the registry rejects everything else.
const (
	ToolWebSearch     = "web_search"
	ToolCalculator    = "calculator"
	ToolGenerateImage = "generate_image"
	ToolGenerateAudio = "generate_audio"
	ToolFSCreate      = "fs_create"
	ToolFSRead        = "fs_read"
	ToolFSEdit        = "fs_edit"
	ToolFSRename      = "fs_rename"
	ToolFSDelete      = "fs_delete"
	ToolFSList        = "fs_list"
	ToolMemorySave    = "memory_save"
	ToolMemoryUpdate  = "memory_update"
	ToolMemoryDelete  = "memory_delete"
)

// Tool is one executable capability.
type Tool interface {
	Name() string
	Descriptor() llm.ToolDescriptor

	// Payload returns the canonical input text used for token accounting.
	Payload(args map[string]any) string

	Execute(ctx context.Context, args map[string]any) (any, error)
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
