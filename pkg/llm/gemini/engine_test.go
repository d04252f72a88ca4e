package gemini

import (
	"testing"

	"leoactivation/pkg/llm"

	"google.golang.org/genai"
)

func TestConvertMessagesRolesAndSystem(t *testing.T) {
	t.Parallel()

	g := &GeminiEngine{}
	contents, system := g.convertMessages([]llm.Message{
		llm.NewSystemMessage("be brief"),
		llm.NewUserMessage("hi"),
		llm.NewAssistantMessage("hello"),
		llm.NewToolMessage("get_date", `{"status":"success"}`),
	})

	if system == nil || system.Parts[0].Text != "be brief" {
		t.Fatalf("system turn not lifted to SystemInstruction: %+v", system)
	}
	if len(contents) != 3 {
		t.Fatalf("contents length = %d, want 3", len(contents))
	}
	if contents[0].Role != "user" || contents[1].Role != "model" {
		t.Fatalf("role mapping wrong: %q, %q", contents[0].Role, contents[1].Role)
	}

	// 工具結果必須以 FunctionResponse part 掛在 user 角色下
	toolTurn := contents[2]
	if toolTurn.Role != "user" {
		t.Fatalf("tool turn role = %q, want user", toolTurn.Role)
	}
	fr := toolTurn.Parts[0].FunctionResponse
	if fr == nil || fr.Name != "get_date" {
		t.Fatalf("tool turn missing FunctionResponse: %+v", toolTurn.Parts[0])
	}
}

func TestConvertMessagesDropsEmptyTurns(t *testing.T) {
	t.Parallel()

	g := &GeminiEngine{}
	contents, _ := g.convertMessages([]llm.Message{
		llm.NewUserMessage("first"),
		llm.NewAssistantMessage(""),
		llm.NewUserMessage("second"),
	})

	if len(contents) != 2 {
		t.Fatalf("contents length = %d, want 2 (empty turn dropped)", len(contents))
	}
	if contents[0].Parts[0].Text != "first" || contents[1].Parts[0].Text != "second" {
		t.Fatal("surviving turns were reordered or altered")
	}
}

func TestConvertMessagesCoercesFirstTurnToUser(t *testing.T) {
	t.Parallel()

	g := &GeminiEngine{}
	contents, _ := g.convertMessages([]llm.Message{
		llm.NewAssistantMessage("welcome back"),
		llm.NewUserMessage("thanks"),
	})

	if len(contents) != 2 {
		t.Fatalf("contents length = %d, want 2", len(contents))
	}
	if contents[0].Role != "user" {
		t.Fatalf("first turn role = %q, want user", contents[0].Role)
	}
	// 就地改角色，不重排內容
	if contents[0].Parts[0].Text != "welcome back" {
		t.Fatalf("first turn content changed: %q", contents[0].Parts[0].Text)
	}
}

func TestConvertMessagesReplaysToolCalls(t *testing.T) {
	t.Parallel()

	record := llm.NewAssistantMessage("")
	record.ToolCalls = []llm.ToolCall{
		{ID: "c1", Name: "get_current_weather", Arguments: map[string]any{"location": "Hanoi"}},
	}

	g := &GeminiEngine{}
	contents, _ := g.convertMessages([]llm.Message{
		llm.NewUserMessage("weather in Hanoi?"),
		record,
		llm.NewToolMessage("get_current_weather", `{"status":"success"}`),
	})

	if len(contents) != 3 {
		t.Fatalf("contents length = %d, want 3", len(contents))
	}
	fc := contents[1].Parts[0].FunctionCall
	if fc == nil || fc.Name != "get_current_weather" {
		t.Fatalf("assistant record missing FunctionCall replay: %+v", contents[1].Parts[0])
	}
}

func TestExtractToolCallsBeforeAnyGeneration(t *testing.T) {
	t.Parallel()

	g := &GeminiEngine{}
	if calls := g.ExtractToolCalls(nil); len(calls) != 0 {
		t.Fatalf("ExtractToolCalls(nil) = %+v, want empty", calls)
	}
	if calls := g.ExtractToolCalls(llm.EmptyGeneration(g)); len(calls) != 0 {
		t.Fatalf("ExtractToolCalls(empty) = %+v, want empty", calls)
	}
}

func TestExtractToolCallsFromResponse(t *testing.T) {
	t.Parallel()

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []*genai.Part{
					{Text: "checking"},
					{FunctionCall: &genai.FunctionCall{
						Name: "get_current_weather",
						Args: map[string]any{"location": "Da Nang"},
					}},
				},
			},
		}},
	}

	g := &GeminiEngine{}
	calls := g.ExtractToolCalls(llm.NewGeneration("checking", resp, g))
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].Name != "get_current_weather" || calls[0].Arguments["location"] != "Da Nang" {
		t.Fatalf("unexpected call: %+v", calls[0])
	}
}
