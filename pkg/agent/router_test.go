package agent

import (
	"context"
	"errors"
	"testing"

	"leoactivation/pkg/api"
	"leoactivation/pkg/config"
	"leoactivation/pkg/llm"
)

//----------------------------------------------------------------
// Stubs
//----------------------------------------------------------------

// stubResponse 是一次預錄的生成結果
type stubResponse struct {
	text  string
	calls []llm.ToolCall
}

// stubEngine 依序回放預錄結果，並記錄每次收到的對話
type stubEngine struct {
	name      string
	responses []stubResponse
	seen      [][]llm.Message
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Generate(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec) *llm.Generation {
	cp := make([]llm.Message, len(messages))
	copy(cp, messages)
	s.seen = append(s.seen, cp)

	if len(s.responses) == 0 {
		return llm.EmptyGeneration(s)
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	if resp.text == "" && len(resp.calls) == 0 {
		return llm.EmptyGeneration(s)
	}
	return llm.NewGeneration(resp.text, resp.calls, s)
}

func (s *stubEngine) ExtractToolCalls(gen *llm.Generation) []llm.ToolCall {
	if gen == nil {
		return []llm.ToolCall{}
	}
	if calls, ok := gen.Raw.([]llm.ToolCall); ok {
		return calls
	}
	return []llm.ToolCall{}
}

func (s *stubEngine) IsTransientError(err error) bool { return false }

// funcTool 以閉包實作 api.Tool
type funcTool struct {
	name string
	fn   func(ctx context.Context, args map[string]any) (map[string]any, error)
}

func (t *funcTool) Name() string                { return t.name }
func (t *funcTool) Description() string         { return t.name }
func (t *funcTool) Parameters() []llm.ParamSpec { return nil }
func (t *funcTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	return t.fn(ctx, args)
}

// fakeRegistry 是測試用的最小 ToolRegistry
type fakeRegistry struct {
	tools map[string]api.Tool
}

func newFakeRegistry(tools ...api.Tool) *fakeRegistry {
	r := &fakeRegistry{tools: map[string]api.Tool{}}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

func (r *fakeRegistry) Register(tool api.Tool) { r.tools[tool.Name()] = tool }
func (r *fakeRegistry) Unregister(name string) { delete(r.tools, name) }
func (r *fakeRegistry) Get(name string) (api.Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}
func (r *fakeRegistry) GetAll() []api.Tool {
	var all []api.Tool
	for _, t := range r.tools {
		all = append(all, t)
	}
	return all
}
func (r *fakeRegistry) Specs() []llm.ToolSpec {
	var specs []llm.ToolSpec
	for name := range r.tools {
		specs = append(specs, llm.ToolSpec{Name: name, Description: name})
	}
	return specs
}

func testSysCfg() *config.SystemConfig {
	cfg := config.DefaultSystemConfig()
	cfg.ToolTimeoutMs = 1000
	return cfg
}

func userConv(text string) []llm.Message {
	return []llm.Message{llm.NewUserMessage(text)}
}

//----------------------------------------------------------------
// Scenarios
//----------------------------------------------------------------

func TestWeatherScenario(t *testing.T) {
	t.Parallel()

	weatherCall := llm.ToolCall{
		Name:      "get_current_weather",
		Arguments: map[string]any{"location": "Ho Chi Minh City", "unit": "celsius"},
	}
	structured := &stubEngine{
		name:      "functiongemma",
		responses: []stubResponse{{calls: []llm.ToolCall{weatherCall}}},
	}
	reasoning := &stubEngine{
		name:      "gemini",
		responses: []stubResponse{{text: "It is 32 degrees and sunny in Ho Chi Minh City."}},
	}

	executed := false
	registry := newFakeRegistry(&funcTool{
		name: "get_current_weather",
		fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			executed = true
			if args["location"] != "Ho Chi Minh City" {
				t.Errorf("unexpected location: %v", args["location"])
			}
			return map[string]any{"status": "success", "temperature": 32.0}, nil
		},
	})

	router := NewAgentRouter(&llm.EngineSet{Structured: structured, Reasoning: reasoning}, registry, "auto", testSysCfg())
	result := router.HandleMessage(context.Background(), userConv("What's the weather in Ho Chi Minh City?"))

	if !executed {
		t.Fatalf("tool was never executed")
	}
	if result.Answer != "It is 32 degrees and sunny in Ho Chi Minh City." {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
	if len(result.Debug.Calls) != 1 || result.Debug.Calls[0].Name != "get_current_weather" {
		t.Fatalf("unexpected debug calls: %+v", result.Debug.Calls)
	}
	if len(result.Debug.Data) != 1 || result.Debug.Data[0].Response["status"] != "success" {
		t.Fatalf("unexpected debug data: %+v", result.Debug.Data)
	}

	// 合成器要看到：原始對話 + 帶 ToolCalls 的 assistant 回合 + tool 結果回合
	if len(reasoning.seen) != 1 {
		t.Fatalf("expected 1 synthesis call, got %d", len(reasoning.seen))
	}
	augmented := reasoning.seen[0]
	if len(augmented) != 3 {
		t.Fatalf("expected 3 messages in augmented conversation, got %d", len(augmented))
	}
	if augmented[1].Role != llm.RoleAssistant || len(augmented[1].ToolCalls) != 1 {
		t.Fatalf("missing assistant tool-call record: %+v", augmented[1])
	}
	if augmented[2].Role != llm.RoleTool || augmented[2].Name != "get_current_weather" {
		t.Fatalf("missing tool result turn: %+v", augmented[2])
	}
}

func TestNoToolsGoesStraightToAnswer(t *testing.T) {
	t.Parallel()

	reasoning := &stubEngine{
		name:      "gemini",
		responses: []stubResponse{{text: "Hello! How can I help?"}},
	}
	structured := &stubEngine{name: "functiongemma"}

	router := NewAgentRouter(&llm.EngineSet{Structured: structured, Reasoning: reasoning}, newFakeRegistry(), "auto", testSysCfg())
	result := router.HandleMessage(context.Background(), userConv("hi"))

	if result.Answer != "Hello! How can I help?" {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
	if len(result.Debug.Calls) != 0 || len(result.Debug.Data) != 0 {
		t.Fatalf("expected empty debug, got %+v", result.Debug)
	}
	// 沒有工具時偵測器就是合成器，同一筆生成直接當回答
	if len(reasoning.seen) != 1 {
		t.Fatalf("expected exactly 1 generation, got %d", len(reasoning.seen))
	}
	if len(structured.seen) != 0 {
		t.Fatalf("structured engine should not be touched, got %d calls", len(structured.seen))
	}
}

func TestEmptySynthesisFallsBackToOtherEngine(t *testing.T) {
	t.Parallel()

	structured := &stubEngine{
		name: "functiongemma",
		responses: []stubResponse{
			{calls: []llm.ToolCall{{Name: "get_date", Arguments: map[string]any{}}}},
			{text: "Today is 2026-08-24."}, // fallback 合成
		},
	}
	reasoning := &stubEngine{
		name:      "gemini",
		responses: []stubResponse{}, // 合成直接失敗
	}

	registry := newFakeRegistry(&funcTool{
		name: "get_date",
		fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"status": "success", "date": "2026-08-24"}, nil
		},
	})

	router := NewAgentRouter(&llm.EngineSet{Structured: structured, Reasoning: reasoning}, registry, "auto", testSysCfg())
	result := router.HandleMessage(context.Background(), userConv("what day is it?"))

	if result.Answer != "Today is 2026-08-24." {
		t.Fatalf("expected fallback answer, got %q", result.Answer)
	}
}

func TestDetectionTextIsLastResort(t *testing.T) {
	t.Parallel()

	structured := &stubEngine{
		name: "functiongemma",
		responses: []stubResponse{
			{text: "raw detection text", calls: []llm.ToolCall{{Name: "get_date", Arguments: map[string]any{}}}},
			// fallback 合成也失敗
		},
	}
	reasoning := &stubEngine{name: "gemini"} // 合成失敗

	registry := newFakeRegistry(&funcTool{
		name: "get_date",
		fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"status": "success"}, nil
		},
	})

	router := NewAgentRouter(&llm.EngineSet{Structured: structured, Reasoning: reasoning}, registry, "auto", testSysCfg())
	result := router.HandleMessage(context.Background(), userConv("what day is it?"))

	if result.Answer != "raw detection text" {
		t.Fatalf("expected detection text as last resort, got %q", result.Answer)
	}
}

func TestEmptyDetectionStillReachesFallback(t *testing.T) {
	t.Parallel()

	// 沒有工具時偵測器 == 合成器（reasoning），而它什麼都生不出來；
	// 空偵測不能當回答，fallback 引擎必須被問到
	reasoning := &stubEngine{name: "gemini"}
	structured := &stubEngine{
		name:      "functiongemma",
		responses: []stubResponse{{text: "Fallback answer"}},
	}

	router := NewAgentRouter(&llm.EngineSet{Structured: structured, Reasoning: reasoning}, newFakeRegistry(), "auto", testSysCfg())
	result := router.HandleMessage(context.Background(), userConv("hi"))

	if result.Answer != "Fallback answer" {
		t.Fatalf("expected fallback engine answer, got %q", result.Answer)
	}
	if len(structured.seen) != 1 {
		t.Fatalf("fallback engine should be asked exactly once, got %d", len(structured.seen))
	}
	// 偵測 + 合成兩次嘗試都落在 reasoning 引擎
	if len(reasoning.seen) != 2 {
		t.Fatalf("expected detection + synthesis on reasoning engine, got %d", len(reasoning.seen))
	}
}

func TestEverythingFailedYieldsEmptyAnswer(t *testing.T) {
	t.Parallel()

	structured := &stubEngine{name: "functiongemma"}
	reasoning := &stubEngine{name: "gemini"}

	router := NewAgentRouter(&llm.EngineSet{Structured: structured, Reasoning: reasoning}, newFakeRegistry(), "auto", testSysCfg())
	result := router.HandleMessage(context.Background(), userConv("hi"))

	if result == nil {
		t.Fatalf("result must never be nil")
	}
	if result.Answer != "" {
		t.Fatalf("expected empty answer, got %q", result.Answer)
	}
}

func TestUnknownToolIsSkipped(t *testing.T) {
	t.Parallel()

	structured := &stubEngine{
		name: "functiongemma",
		responses: []stubResponse{{calls: []llm.ToolCall{
			{Name: "no_such_tool", Arguments: map[string]any{}},
			{Name: "get_date", Arguments: map[string]any{}},
		}}},
	}
	reasoning := &stubEngine{
		name:      "gemini",
		responses: []stubResponse{{text: "done"}},
	}

	registry := newFakeRegistry(&funcTool{
		name: "get_date",
		fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"status": "success"}, nil
		},
	})

	router := NewAgentRouter(&llm.EngineSet{Structured: structured, Reasoning: reasoning}, registry, "auto", testSysCfg())
	result := router.HandleMessage(context.Background(), userConv("do things"))

	// Calls 記全部，Data 只記有解析到的
	if len(result.Debug.Calls) != 2 {
		t.Fatalf("expected 2 recorded calls, got %d", len(result.Debug.Calls))
	}
	if len(result.Debug.Data) != 1 || result.Debug.Data[0].Name != "get_date" {
		t.Fatalf("unexpected resolved data: %+v", result.Debug.Data)
	}
}

func TestToolPanicIsAbsorbed(t *testing.T) {
	t.Parallel()

	structured := &stubEngine{
		name:      "functiongemma",
		responses: []stubResponse{{calls: []llm.ToolCall{{Name: "explode", Arguments: map[string]any{}}}}},
	}
	reasoning := &stubEngine{
		name:      "gemini",
		responses: []stubResponse{{text: "something went wrong but I survived"}},
	}

	registry := newFakeRegistry(&funcTool{
		name: "explode",
		fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			panic("boom")
		},
	})

	router := NewAgentRouter(&llm.EngineSet{Structured: structured, Reasoning: reasoning}, registry, "auto", testSysCfg())
	result := router.HandleMessage(context.Background(), userConv("explode"))

	if result.Answer == "" {
		t.Fatalf("panic must not prevent synthesis")
	}
	if len(result.Debug.Data) != 1 || result.Debug.Data[0].Response["status"] != "error" {
		t.Fatalf("expected error result for panicking tool: %+v", result.Debug.Data)
	}
}

func TestToolErrorBecomesErrorResult(t *testing.T) {
	t.Parallel()

	structured := &stubEngine{
		name:      "functiongemma",
		responses: []stubResponse{{calls: []llm.ToolCall{{Name: "flaky", Arguments: map[string]any{}}}}},
	}
	reasoning := &stubEngine{
		name:      "gemini",
		responses: []stubResponse{{text: "noted"}},
	}

	registry := newFakeRegistry(&funcTool{
		name: "flaky",
		fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return nil, errors.New("upstream unavailable")
		},
	})

	router := NewAgentRouter(&llm.EngineSet{Structured: structured, Reasoning: reasoning}, registry, "auto", testSysCfg())
	result := router.HandleMessage(context.Background(), userConv("try it"))

	if len(result.Debug.Data) != 1 {
		t.Fatalf("expected 1 resolved result, got %d", len(result.Debug.Data))
	}
	resp := result.Debug.Data[0].Response
	if resp["status"] != "error" || resp["message"] != "upstream unavailable" {
		t.Fatalf("unexpected error result: %+v", resp)
	}
}

func TestPinnedModeUsesSingleEngine(t *testing.T) {
	t.Parallel()

	structured := &stubEngine{name: "functiongemma"}
	reasoning := &stubEngine{
		name: "gemini",
		responses: []stubResponse{
			{calls: []llm.ToolCall{{Name: "get_date", Arguments: map[string]any{}}}},
			{text: "pinned answer"},
		},
	}

	registry := newFakeRegistry(&funcTool{
		name: "get_date",
		fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"status": "success"}, nil
		},
	})

	router := NewAgentRouter(&llm.EngineSet{Structured: structured, Reasoning: reasoning}, registry, "gemini", testSysCfg())
	result := router.HandleMessage(context.Background(), userConv("date please"))

	if result.Answer != "pinned answer" {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
	if len(structured.seen) != 0 {
		t.Fatalf("pinned mode must not touch the other engine")
	}
	if len(reasoning.seen) != 2 {
		t.Fatalf("expected detection + synthesis on pinned engine, got %d", len(reasoning.seen))
	}
}

func TestToolsDisabledSkipsDetectionTools(t *testing.T) {
	t.Parallel()

	structured := &stubEngine{name: "functiongemma"}
	reasoning := &stubEngine{
		name:      "gemini",
		responses: []stubResponse{{text: "plain answer"}},
	}

	registry := newFakeRegistry(&funcTool{
		name: "get_date",
		fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"status": "success"}, nil
		},
	})

	sysCfg := testSysCfg()
	sysCfg.EnableTools = false

	router := NewAgentRouter(&llm.EngineSet{Structured: structured, Reasoning: reasoning}, registry, "auto", sysCfg)
	result := router.HandleMessage(context.Background(), userConv("date please"))

	if result.Answer != "plain answer" {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
	// 工具停用時偵測不帶宣告，structured 引擎不應被選中
	if len(structured.seen) != 0 {
		t.Fatalf("structured engine should be idle when tools are disabled")
	}
}
