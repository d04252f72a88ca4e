package llm

import (
	"context"
	"errors"
	"testing"
)

// fakeEngine 可腳本化的引擎替身
type fakeEngine struct {
	name      string
	failures  int   // 前 N 次 Generate 失敗
	err       error // 失敗時附帶的後端錯誤
	transient bool  // IsTransientError 的回答
	text      string
	calls     []ToolCall
	genCount  int
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Generate(ctx context.Context, messages []Message, tools []ToolSpec) *Generation {
	f.genCount++
	if f.genCount <= f.failures {
		if f.err != nil {
			return FailedGeneration(f, f.err)
		}
		return EmptyGeneration(f)
	}
	return NewGeneration(f.text, f.text, f)
}

func (f *fakeEngine) ExtractToolCalls(gen *Generation) []ToolCall {
	if gen == nil || gen.Raw == nil {
		return []ToolCall{}
	}
	return f.calls
}

func (f *fakeEngine) IsTransientError(err error) bool { return f.transient }

func TestChainFirstSuccessShortCircuits(t *testing.T) {
	t.Parallel()

	primary := &fakeEngine{name: "primary", text: "hello"}
	backup := &fakeEngine{name: "backup", text: "backup"}
	chain := &Chain{Engines: []Engine{primary, backup}, MaxRetries: 3}

	gen := chain.Generate(context.Background(), nil, nil)
	if gen.Failed() {
		t.Fatal("expected success from primary engine")
	}
	if gen.Text != "hello" {
		t.Fatalf("Text = %q, want %q", gen.Text, "hello")
	}
	if backup.genCount != 0 {
		t.Fatalf("backup engine was called %d times, want 0", backup.genCount)
	}
}

func TestChainRetriesThenFallsBack(t *testing.T) {
	t.Parallel()

	primary := &fakeEngine{name: "primary", failures: 99}
	backup := &fakeEngine{name: "backup", failures: 1, text: "recovered"}
	chain := &Chain{Engines: []Engine{primary, backup}, MaxRetries: 2}

	gen := chain.Generate(context.Background(), nil, nil)
	if gen.Failed() {
		t.Fatal("expected backup engine to recover")
	}
	if gen.Text != "recovered" {
		t.Fatalf("Text = %q, want %q", gen.Text, "recovered")
	}
	if primary.genCount != 2 {
		t.Fatalf("primary attempts = %d, want 2", primary.genCount)
	}
	if backup.genCount != 2 {
		t.Fatalf("backup attempts = %d, want 2", backup.genCount)
	}
}

func TestChainAllFailedReturnsEmptyGeneration(t *testing.T) {
	t.Parallel()

	chain := &Chain{
		Engines:    []Engine{&fakeEngine{name: "a", failures: 99}, &fakeEngine{name: "b", failures: 99}},
		MaxRetries: 1,
	}

	gen := chain.Generate(context.Background(), nil, nil)
	if gen == nil {
		t.Fatal("Generate must never return nil")
	}
	if !gen.Failed() {
		t.Fatal("expected a failed generation")
	}
	if gen.Text != "" {
		t.Fatalf("failed generation Text = %q, want empty", gen.Text)
	}
}

func TestChainNonTransientErrorSkipsRetries(t *testing.T) {
	t.Parallel()

	// 壞金鑰這類錯誤重試不會好，必須立刻換下一個引擎
	primary := &fakeEngine{
		name:     "primary",
		failures: 99,
		err:      errors.New("401 invalid api key"),
	}
	backup := &fakeEngine{name: "backup", text: "rescued"}
	chain := &Chain{Engines: []Engine{primary, backup}, MaxRetries: 3}

	gen := chain.Generate(context.Background(), nil, nil)
	if gen.Failed() || gen.Text != "rescued" {
		t.Fatalf("expected backup answer, got %+v", gen)
	}
	if primary.genCount != 1 {
		t.Fatalf("primary attempts = %d, want 1 (no retry on non-transient error)", primary.genCount)
	}
}

func TestChainTransientErrorIsRetried(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{
		name:      "flaky",
		failures:  1,
		err:       errors.New("503 service unavailable"),
		transient: true,
		text:      "back online",
	}
	chain := &Chain{Engines: []Engine{engine}, MaxRetries: 3}

	gen := chain.Generate(context.Background(), nil, nil)
	if gen.Failed() || gen.Text != "back online" {
		t.Fatalf("expected recovery after transient error, got %+v", gen)
	}
	if engine.genCount != 2 {
		t.Fatalf("attempts = %d, want 2", engine.genCount)
	}
}

func TestChainExtractDelegatesToOrigin(t *testing.T) {
	t.Parallel()

	primary := &fakeEngine{name: "primary", failures: 99}
	backup := &fakeEngine{
		name: "backup",
		text: "done",
		calls: []ToolCall{
			{ID: "c1", Name: "get_date", Arguments: map[string]any{}},
		},
	}
	chain := &Chain{Engines: []Engine{primary, backup}, MaxRetries: 1}

	gen := chain.Generate(context.Background(), nil, nil)
	calls := chain.ExtractToolCalls(gen)
	if len(calls) != 1 || calls[0].Name != "get_date" {
		t.Fatalf("expected delegation to the producing engine, got %+v", calls)
	}

	// nil 與無來源的 Generation 都必須安全
	if got := chain.ExtractToolCalls(nil); len(got) != 0 {
		t.Fatalf("ExtractToolCalls(nil) = %+v, want empty", got)
	}
	if got := chain.ExtractToolCalls(&Generation{}); len(got) != 0 {
		t.Fatalf("ExtractToolCalls(no origin) = %+v, want empty", got)
	}
}

func TestChatHistoryEnsureSystemMessage(t *testing.T) {
	t.Parallel()

	h := NewChatHistory()
	h.Add(NewUserMessage("hi"))
	h.EnsureSystemMessage("you are helpful")

	msgs := h.GetMessages()
	if len(msgs) != 2 {
		t.Fatalf("history length = %d, want 2", len(msgs))
	}
	if msgs[0].Role != RoleSystem || msgs[0].Content != "you are helpful" {
		t.Fatalf("system message not prepended: %+v", msgs[0])
	}

	// 重複呼叫只更新內容，不新增訊息
	h.EnsureSystemMessage("updated prompt")
	msgs = h.GetMessages()
	if len(msgs) != 2 {
		t.Fatalf("history length after update = %d, want 2", len(msgs))
	}
	if msgs[0].Content != "updated prompt" {
		t.Fatalf("system message content = %q, want %q", msgs[0].Content, "updated prompt")
	}
}

func TestChatHistoryCopyIsolation(t *testing.T) {
	t.Parallel()

	h := NewChatHistory()
	h.Add(NewUserMessage("original"))

	msgs := h.GetMessages()
	msgs[0].Content = "mutated"

	if got := h.GetMessages()[0].Content; got != "original" {
		t.Fatalf("history was mutated through the returned copy: %q", got)
	}
}
