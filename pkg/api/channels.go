package api

import (
	"context"
)

// ActivationChannel defines the standardized interface for marketing
// delivery platforms (email, Zalo OA, Facebook Page, push, Telegram).
type ActivationChannel interface {
	// Key returns the canonical channel key (e.g., "zalo_oa").
	Key() string
	// Send delivers a message to every recipient of the target segment.
	// The returned map carries at least a "status" key; transport errors
	// are returned as error and absorbed by the activation manager.
	Send(ctx context.Context, segment, message string, opts map[string]any) (map[string]any, error)
}
