package tools

import (
	"context"
	"fmt"
	"time"

	"leoactivation/pkg/llm"
)

// DateTool reports the current date, optionally shifted by an offset in
// days. Grounding the model with real dates keeps relative expressions
// like "tomorrow" accurate.
type DateTool struct {
	now func() time.Time // Injectable clock for tests
}

func NewDateTool() *DateTool {
	return &DateTool{now: time.Now}
}

// Name implements api.Tool
func (t *DateTool) Name() string {
	return "get_date"
}

// Description implements api.Tool
func (t *DateTool) Description() string {
	return "Get today's date, or a date offset by a number of days (e.g. 1 for tomorrow, -1 for yesterday)."
}

// Parameters implements api.Tool
func (t *DateTool) Parameters() []llm.ParamSpec {
	return []llm.ParamSpec{
		{Name: "offset_days", Type: "number", Description: "Days to add to today. 0 or omitted means today."},
	}
}

// Execute implements api.Tool
func (t *DateTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	offset := 0
	if v, ok := args["offset_days"]; ok {
		switch n := v.(type) {
		case float64:
			offset = int(n)
		case int:
			offset = n
		default:
			return nil, fmt.Errorf("offset_days must be a number, got %T", v)
		}
	}

	day := t.now().AddDate(0, 0, offset)
	return map[string]any{
		"status":  "success",
		"date":    day.Format("2006-01-02"),
		"weekday": day.Weekday().String(),
	}, nil
}
