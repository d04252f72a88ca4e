package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"leoactivation/pkg/api"
	"leoactivation/pkg/llm"
)

// EnrichmentTool triggers segment-level data analysis. Identifiers come
// in two forms, "name:..." and "key:...", and a bare string is treated
// as a name.
type EnrichmentTool struct {
	store api.Store
}

func NewEnrichmentTool(store api.Store) *EnrichmentTool {
	return &EnrichmentTool{store: store}
}

// Name implements api.Tool
func (t *EnrichmentTool) Name() string {
	return "analyze_segment"
}

// Description implements api.Tool
func (t *EnrichmentTool) Description() string {
	return "Analyze all data profiles belonging to a specific customer segment. " +
		"Accepts 'name:<segment name>' or 'key:<segment key>' identifiers."
}

// Parameters implements api.Tool
func (t *EnrichmentTool) Parameters() []llm.ParamSpec {
	return []llm.ParamSpec{
		{Name: "segment", Type: "string", Description: "The segment name or segment key to analyze", Required: true},
	}
}

// Execute implements api.Tool
func (t *EnrichmentTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	identifier, _ := args["segment"].(string)
	if strings.TrimSpace(identifier) == "" {
		return nil, fmt.Errorf("segment must be a non-empty string")
	}

	slog.Info("🛠️ Analyzing segment", "identifier", identifier)

	result := map[string]any{
		"segment_identifier": identifier,
		"result":             "Analysis complete",
	}

	// Keyed identifiers resolve outside the local store, profile stats
	// are only available for name lookups.
	name, isName := splitIdentifier(identifier)
	if !isName {
		return result, nil
	}

	count, err := t.store.CountProfiles(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("count profiles: %w", err)
	}
	result["profile_count"] = count
	return result, nil
}

// splitIdentifier strips the "name:"/"key:" prefix and reports whether
// the identifier addresses a segment by name.
func splitIdentifier(identifier string) (string, bool) {
	switch {
	case strings.HasPrefix(identifier, "name:"):
		return strings.TrimPrefix(identifier, "name:"), true
	case strings.HasPrefix(identifier, "key:"):
		return strings.TrimPrefix(identifier, "key:"), false
	default:
		return identifier, true
	}
}
