package agent

import (
	"context"
	"log/slog"
	"time"

	"leoactivation/pkg/api"
	"leoactivation/pkg/config"
	"leoactivation/pkg/llm"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//----------------------------------------------------------------
// RouterResult - 統一回傳結構
//----------------------------------------------------------------

// RouterResult 是一次請求處理的完整結果。
// Answer 只有在所有引擎與回退全數失敗時才會是空字串。
type RouterResult struct {
	Answer string      `json:"answer"`
	Debug  RouterDebug `json:"debug"`
}

// RouterDebug 保存偵測與執行的完整軌跡。
// Calls 是偵測到的「全部」調用（含被略過的未知工具），
// Data 只收實際被解析執行的結果，所以長度可能比 Calls 短。
type RouterDebug struct {
	Calls []llm.ToolCall `json:"calls"`
	Data  []ToolResult   `json:"data"`
}

// ToolResult 是單一工具執行的結果快照
type ToolResult struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

//----------------------------------------------------------------
// AgentRouter - 調度狀態機
//----------------------------------------------------------------

// 狀態機：SELECT_DETECTOR → DETECT_INTENT → (EXECUTE_TOOLS)?
//   → SELECT_SYNTHESIZER → SYNTHESIZE → (FALLBACK_SYNTHESIZE)? → DONE

// AgentRouter 把自然語言請求調度到工具偵測與回答合成兩個階段。
// 偵測偏好 structured 引擎，合成偏好 reasoning 引擎；
// mode 釘選特定引擎時，兩個階段都用它。
type AgentRouter struct {
	engines  *llm.EngineSet
	registry api.ToolRegistry
	mode     string
	sysCfg   *config.SystemConfig
}

// NewAgentRouter 建立一個路由器。mode 為 "auto" 或引擎名稱。
func NewAgentRouter(engines *llm.EngineSet, registry api.ToolRegistry, mode string, sysCfg *config.SystemConfig) *AgentRouter {
	if mode == "" {
		mode = "auto"
	}
	return &AgentRouter{
		engines:  engines,
		registry: registry,
		mode:     mode,
		sysCfg:   sysCfg,
	}
}

// HandleMessage 驅動整個狀態機。
// 永不回傳 error：所有失敗都被吸收，最壞情況是 Answer 為空字串。
func (r *AgentRouter) HandleMessage(ctx context.Context, conversation []llm.Message) *RouterResult {
	result := &RouterResult{
		Debug: RouterDebug{
			Calls: []llm.ToolCall{},
			Data:  []ToolResult{},
		},
	}

	var specs []llm.ToolSpec
	if r.sysCfg == nil || r.sysCfg.EnableTools {
		specs = r.registry.Specs()
	}

	// --- SELECT_DETECTOR ---
	detector := r.selectDetector(specs)
	if detector == nil {
		slog.Error("No engine available for detection")
		return result
	}
	slog.Debug("State: SELECT_DETECTOR", "engine", detector.Name(), "tools", len(specs))

	// --- DETECT_INTENT ---
	detection := detector.Generate(ctx, conversation, specs)
	calls := detector.ExtractToolCalls(detection)
	result.Debug.Calls = calls
	slog.Debug("State: DETECT_INTENT", "calls", len(calls), "text_len", len(detection.Text))

	working := conversation

	// --- EXECUTE_TOOLS ---
	if len(calls) > 0 {
		// 先記一條帶 ToolCalls 的 assistant 回合，工具結果才接得上
		record := llm.NewAssistantMessage(detection.Text)
		record.ToolCalls = calls
		working = append(append([]llm.Message{}, conversation...), record)

		for _, tc := range calls {
			toolResult, resolved := r.executeCall(ctx, tc)
			if !resolved {
				continue // 未知工具：記 log 後略過，不進 Data
			}
			result.Debug.Data = append(result.Debug.Data, ToolResult{
				Name:     tc.Name,
				Response: toolResult,
			})

			resultJSON, err := json.MarshalToString(toolResult)
			if err != nil {
				resultJSON = "success"
			}
			toolMsg := llm.NewToolMessage(tc.Name, resultJSON)
			toolMsg.ToolCallID = tc.ID
			working = append(working, toolMsg)
		}
	}

	// --- SELECT_SYNTHESIZER ---
	synthesizer := r.selectSynthesizer()
	slog.Debug("State: SELECT_SYNTHESIZER", "engine", engineName(synthesizer))

	// 偵測階段沒有工具調用、而偵測器就是合成器時，
	// 這次生成已經是最終回答，不必重打一次。
	// 偵測文字為空不算回答，仍要走合成與 fallback 鏈
	if len(calls) == 0 && synthesizer == detector && detection.Text != "" {
		result.Answer = detection.Text
		slog.Debug("State: DONE", "answer_len", len(result.Answer), "source", "detection")
		return result
	}

	// --- SYNTHESIZE ---
	// 帶同一份工具目錄，讓模型知道結果是哪些工具產生的
	if synthesizer != nil {
		synthesis := synthesizer.Generate(ctx, working, specs)
		result.Answer = synthesis.Text
	}

	// --- FALLBACK_SYNTHESIZE ---
	if result.Answer == "" {
		if fallback := r.fallbackSynthesizer(synthesizer); fallback != nil {
			slog.Warn("⚠️ Synthesis empty, trying fallback engine", "engine", fallback.Name())
			synthesis := fallback.Generate(ctx, working, specs)
			result.Answer = synthesis.Text
		}
	}

	// 最後手段：直接用偵測階段的文字
	if result.Answer == "" && detection.Text != "" {
		slog.Warn("⚠️ All synthesis failed, falling back to detection text")
		result.Answer = detection.Text
	}

	slog.Debug("State: DONE", "answer_len", len(result.Answer), "tools_run", len(result.Debug.Data))
	return result
}

// executeCall 解析並執行單一工具調用。
// resolved 為 false 表示工具不存在（被略過）；
// 執行錯誤與 panic 都被吸收成 status error 的結果。
func (r *AgentRouter) executeCall(ctx context.Context, tc llm.ToolCall) (response map[string]any, resolved bool) {
	tool, ok := r.registry.Get(tc.Name)
	if !ok {
		slog.Warn("⚠️ Unknown tool call skipped", "name", tc.Name)
		return nil, false
	}

	runCtx := ctx
	if r.sysCfg != nil && r.sysCfg.ToolTimeoutMs > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(r.sysCfg.ToolTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Tool execution panicked", "tool", tc.Name, "error", rec)
			response = map[string]any{
				"status":  "error",
				"message": "internal tool panic",
			}
			resolved = true
		}
	}()

	slog.Info("🛠️ Executing tool", "name", tc.Name, "args", tc.Arguments)
	res, err := tool.Execute(runCtx, tc.Arguments)
	if err != nil {
		slog.Error("Tool execution error", "name", tc.Name, "error", err)
		return map[string]any{
			"status":  "error",
			"message": err.Error(),
		}, true
	}
	if res == nil {
		res = map[string]any{"status": "success"}
	}
	return res, true
}

//----------------------------------------------------------------
// Engine selection
//----------------------------------------------------------------

// selectDetector 挑偵測引擎：
// 釘選模式用釘選引擎；auto 模式下工具存在時優先 structured
func (r *AgentRouter) selectDetector(specs []llm.ToolSpec) llm.Engine {
	if pinned := r.pinnedEngine(); pinned != nil {
		return pinned
	}
	if len(specs) > 0 && r.engines.Structured != nil {
		return r.engines.Structured
	}
	if r.engines.Reasoning != nil {
		return r.engines.Reasoning
	}
	return r.engines.Structured
}

// selectSynthesizer 挑合成引擎：auto 模式永遠偏好 reasoning
func (r *AgentRouter) selectSynthesizer() llm.Engine {
	if pinned := r.pinnedEngine(); pinned != nil {
		return pinned
	}
	if r.engines.Reasoning != nil {
		return r.engines.Reasoning
	}
	return r.engines.Structured
}

// fallbackSynthesizer 回傳「另一個」引擎作為合成回退
func (r *AgentRouter) fallbackSynthesizer(used llm.Engine) llm.Engine {
	if r.engines.Structured != nil && r.engines.Structured != used {
		return r.engines.Structured
	}
	if r.engines.Reasoning != nil && r.engines.Reasoning != used {
		return r.engines.Reasoning
	}
	return nil
}

// pinnedEngine 解析 mode 釘選。接受引擎名稱或角色名稱。
func (r *AgentRouter) pinnedEngine() llm.Engine {
	switch r.mode {
	case "", "auto":
		return nil
	case llm.EngineRoleStructured:
		return r.engines.Structured
	case llm.EngineRoleReasoning:
		return r.engines.Reasoning
	}
	if r.engines.Structured != nil && r.engines.Structured.Name() == r.mode {
		return r.engines.Structured
	}
	if r.engines.Reasoning != nil && r.engines.Reasoning.Name() == r.mode {
		return r.engines.Reasoning
	}
	slog.Warn("⚠️ Unknown router mode, falling back to auto", "mode", r.mode)
	return nil
}

func engineName(e llm.Engine) string {
	if e == nil {
		return "none"
	}
	return e.Name()
}
