package api

import (
	"context"

	"leoactivation/pkg/llm"
)

// Tool defines the structural interface for any capability that the
// routing pipeline can execute. It includes metadata for prompt injection
// (declaration conversion) and the execution logic itself.
type Tool interface {
	// Name returns the unique tool identifier (e.g., "get_current_weather").
	Name() string
	// Description returns the natural-language summary shown to the LLM.
	Description() string
	// Parameters returns the declared argument list for schema conversion.
	Parameters() []llm.ParamSpec
	// Execute performs the actual tool logic using the provided argument map.
	// The result map should carry at least a "status" key.
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// ToolRegistry defines the interface for managing and accessing tools.
type ToolRegistry interface {
	Register(tool Tool)
	Unregister(name string)
	Get(name string) (Tool, bool)
	GetAll() []Tool
	// Specs returns backend-agnostic declarations for every registered tool.
	Specs() []llm.ToolSpec
}
