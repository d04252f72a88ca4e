package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"leoactivation/pkg/channels"
	"leoactivation/pkg/llm"
)

// ActivationTool sends a campaign message to a segment through one of
// the configured marketing channels. Channel resolution and error
// absorption happen inside the channel manager, so this tool always
// returns a status map.
type ActivationTool struct {
	manager *channels.Manager
}

func NewActivationTool(manager *channels.Manager) *ActivationTool {
	return &ActivationTool{manager: manager}
}

// Name implements api.Tool
func (t *ActivationTool) Name() string {
	return "activate_channel"
}

// Description implements api.Tool
func (t *ActivationTool) Description() string {
	return "LEO CDP activation tool for sending a message to a segment via a marketing channel " +
		"(email, zalo, facebook, mobile_push, web_push, or telegram)."
}

// Parameters implements api.Tool
func (t *ActivationTool) Parameters() []llm.ParamSpec {
	return []llm.ParamSpec{
		{Name: "channel", Type: "string", Description: "Channel type, aliases like 'zalo' or 'fb' are accepted", Required: true},
		{Name: "recipient_segment", Type: "string", Description: "The target segment name or ID for activation", Required: true},
		{Name: "message", Type: "string", Description: "The content message to send", Required: true},
		{Name: "title", Type: "string", Description: "Optional title for push notifications and email subject"},
	}
}

// Execute implements api.Tool
func (t *ActivationTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	channel, _ := args["channel"].(string)
	if strings.TrimSpace(channel) == "" {
		return map[string]any{"status": "error", "message": "`channel` must be a non-empty string"}, nil
	}
	segment, _ := args["recipient_segment"].(string)
	if strings.TrimSpace(segment) == "" {
		return map[string]any{"status": "error", "message": "`recipient_segment` must be a non-empty string"}, nil
	}
	message, _ := args["message"].(string)
	if strings.TrimSpace(message) == "" {
		return map[string]any{"status": "error", "message": "`message` must be a non-empty string"}, nil
	}

	opts := map[string]any{"title": "Notification"}
	if title, ok := args["title"].(string); ok && title != "" {
		opts["title"] = title
	}

	slog.Info("📣 Activation requested", "channel", channel, "segment", segment, "message_len", len(message))

	result := t.manager.Execute(ctx, channel, segment, message, opts)
	if result == nil {
		return nil, fmt.Errorf("channel manager returned no result")
	}
	return result, nil
}
