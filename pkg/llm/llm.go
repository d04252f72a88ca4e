package llm

import (
	"context"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json 用於 package llm 內部的 JSON 處理，統一使用 json-iterator
var json = jsoniter.ConfigCompatibleWithStandardLibrary

//----------------------------------------------------------------
// Engine - 通用 LLM 引擎介面
//----------------------------------------------------------------

// Engine 通用 LLM 引擎介面。
// 兩種後端（結構化 function calling 與行內標籤編碼）都收斂到這個契約，
// 上層的 AgentRouter 不需要知道差異。
type Engine interface {
	// Name 回傳引擎識別名稱（例如 "gemini", "functiongemma"）
	Name() string

	// Generate 執行一次非串流生成。
	// 永不回傳 error：後端失敗時回傳空的 Generation（Text == "", Raw == nil），
	// 失敗細節記錄到 log，後端錯誤經由 Generation.Err 供 Chain 判讀。
	Generate(ctx context.Context, messages []Message, tools []ToolSpec) *Generation

	// ExtractToolCalls 從指定的 Generation 解析工具調用。
	// 永不失敗：gen 為 nil、或該次生成沒有任何調用時，回傳空清單。
	ExtractToolCalls(gen *Generation) []ToolCall

	// IsTransientError 判斷是否為暫時性錯誤 (如 503, Rate Limit)。
	// Chain 以此決定失敗後是重試同一引擎、還是直接換下一個。
	IsTransientError(err error) bool
}

// Generation 表示單次生成的結果。
// Raw 保存該次呼叫的原始回應，工具調用解析只讀取這裡，
// 不依賴引擎內部狀態，因此併發請求之間不會互相污染。
type Generation struct {
	Text string // 已去除前後空白的回應文字（失敗時為空字串）
	Raw  any    // 後端原始回應（失敗時為 nil）

	err    error  // 失敗時的後端錯誤，Chain 判斷可否重試時使用
	origin Engine // 產生此結果的引擎，Chain 委派解析時使用
}

// NewGeneration 建立一筆生成結果並綁定來源引擎
func NewGeneration(text string, raw any, origin Engine) *Generation {
	return &Generation{Text: text, Raw: raw, origin: origin}
}

// EmptyGeneration 建立一筆失敗結果（Text 空、Raw nil、無錯誤診斷）
func EmptyGeneration(origin Engine) *Generation {
	return &Generation{origin: origin}
}

// FailedGeneration 建立一筆帶後端錯誤的失敗結果
func FailedGeneration(origin Engine, err error) *Generation {
	return &Generation{origin: origin, err: err}
}

// Err 回傳造成失敗的後端錯誤（成功或無診斷時為 nil）
func (g *Generation) Err() error {
	if g == nil {
		return nil
	}
	return g.err
}

// Origin 回傳產生此結果的引擎（可能為 nil）
func (g *Generation) Origin() Engine {
	if g == nil {
		return nil
	}
	return g.origin
}

// Failed 判斷該次生成是否完全失敗（沒拿到任何原始回應）
func (g *Generation) Failed() bool {
	return g == nil || g.Raw == nil
}

//----------------------------------------------------------------
// Chain - 同角色多引擎分級嘗試
//----------------------------------------------------------------

// Chain 將多個 Engine 串成一條嘗試鏈（多組 API Key / 多模型分級容錯）。
// 自己也實作 Engine，對上層完全透明。
type Chain struct {
	Engines    []Engine
	MaxRetries int
	RetryDelay time.Duration
}

// Name 回傳鏈中第一個引擎的名稱
func (c *Chain) Name() string {
	if len(c.Engines) == 0 {
		return "chain"
	}
	return c.Engines[0].Name()
}

// Generate 依序嘗試每個引擎，拿到有效回應就停。
// 全部失敗時回傳空 Generation，符合 Engine 永不回傳 error 的契約。
func (c *Chain) Generate(ctx context.Context, messages []Message, tools []ToolSpec) *Generation {
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	for i, engine := range c.Engines {
		if i > 0 {
			slog.Warn("⚠️ Previous engine failed. Trying fallback engine", "engine", engine.Name(), "index", i+1)
		}

		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				slog.Info("🔄 Retrying engine", "engine", engine.Name(), "attempt", retry, "max", maxRetries)
				select {
				case <-ctx.Done():
					return EmptyGeneration(engine)
				case <-time.After(time.Duration(retry-1) * c.RetryDelay):
				}
			}

			gen := engine.Generate(ctx, messages, tools)
			if !gen.Failed() {
				return gen
			}
			// 非暫時性錯誤（壞金鑰、4xx）重試也不會好，直接換下一個引擎
			if err := gen.Err(); err != nil && !engine.IsTransientError(err) {
				slog.Warn("⚠️ Non-transient failure, skipping retries", "engine", engine.Name(), "error", err)
				break
			}
		}
	}

	var last Engine
	if len(c.Engines) > 0 {
		last = c.Engines[len(c.Engines)-1]
	}
	return EmptyGeneration(last)
}

// ExtractToolCalls 委派給產生該 Generation 的引擎解析
func (c *Chain) ExtractToolCalls(gen *Generation) []ToolCall {
	if gen == nil || gen.origin == nil {
		return []ToolCall{}
	}
	return gen.origin.ExtractToolCalls(gen)
}

// IsTransientError 實作 Engine 介面。
// Chain 失敗意味著所有成員都失敗了，視為非暫時性。
func (c *Chain) IsTransientError(err error) bool {
	return false
}
