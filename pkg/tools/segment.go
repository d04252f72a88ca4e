package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"leoactivation/pkg/api"
	"leoactivation/pkg/llm"
)

// SegmentTool manages LEO CDP segments. Actions are applied to the
// backing store so later activations see a consistent catalog.
type SegmentTool struct {
	store api.Store
}

func NewSegmentTool(store api.Store) *SegmentTool {
	return &SegmentTool{store: store}
}

// Name implements api.Tool
func (t *SegmentTool) Name() string {
	return "manage_leo_segment"
}

// Description implements api.Tool
func (t *SegmentTool) Description() string {
	return "Create, update, or delete a LEO CDP segment."
}

// Parameters implements api.Tool
func (t *SegmentTool) Parameters() []llm.ParamSpec {
	return []llm.ParamSpec{
		{Name: "recipient_segment", Type: "string", Description: "The name or the ID of the target segment", Required: true},
		{Name: "action", Type: "string", Description: "The management action", Enum: []string{"create", "update", "delete"}},
	}
}

// Execute implements api.Tool
func (t *SegmentTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	segment, _ := args["recipient_segment"].(string)
	if strings.TrimSpace(segment) == "" {
		return nil, fmt.Errorf("recipient_segment must be a non-empty string")
	}

	action := "create"
	if a, ok := args["action"].(string); ok && a != "" {
		action = strings.ToLower(a)
	}

	slog.Info("🛠️ Managing segment", "segment", segment, "action", action)

	switch action {
	case "create":
		if _, err := t.store.CreateSegment(ctx, segment); err != nil {
			return nil, fmt.Errorf("create segment: %w", err)
		}
	case "update":
		if _, err := t.store.UpdateSegment(ctx, segment); err != nil {
			return nil, fmt.Errorf("update segment: %w", err)
		}
	case "delete":
		if err := t.store.DeleteSegment(ctx, segment); err != nil {
			return nil, fmt.Errorf("delete segment: %w", err)
		}
	default:
		return map[string]any{
			"status":  "error",
			"message": fmt.Sprintf("Unsupported action: %s", action),
		}, nil
	}

	return map[string]any{
		"status":  "success",
		"segment": segment,
		"action":  action,
	}, nil
}
