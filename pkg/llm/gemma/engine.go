package gemma

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leoactivation/pkg/config"
	"leoactivation/pkg/llm"

	"github.com/ollama/ollama/api"
)

// GemmaEngine 透過 Ollama 跑 FunctionGemma（工具偵測特化）。
// 模型很小，工具調用全靠行內標記，見 codec.go。
type GemmaEngine struct {
	client     *api.Client
	model      string
	options    map[string]any
	timeout    time.Duration
	debugDumps bool
}

// NewGemmaEngine creates a FunctionGemma engine backed by an Ollama server.
func NewGemmaEngine(model, baseURL string, sys *config.SystemConfig, options map[string]any) (*GemmaEngine, error) {
	if model == "" {
		return nil, fmt.Errorf("gemma: model id is required")
	}
	if baseURL == "" {
		baseURL = sys.OllamaDefaultURL
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("gemma: invalid base URL: %w", err)
	}

	// 本地模型載入可能很慢，client 本身不設 timeout，由 Generate 的 context 控制
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 0,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   0,
	}

	slog.Info("FunctionGemma engine initialized", "model", model, "base_url", baseURL)

	return &GemmaEngine{
		client:     api.NewClient(u, httpClient),
		model:      model,
		options:    options,
		timeout:    time.Duration(sys.LLMTimeoutMs) * time.Millisecond,
		debugDumps: sys.DebugResponses,
	}, nil
}

// Name implements llm.Engine
func (e *GemmaEngine) Name() string {
	return "functiongemma"
}

// Generate implements llm.Engine.Generate
func (e *GemmaEngine) Generate(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec) *llm.Generation {
	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	apiMessages := e.convertMessages(messages, tools)

	streamVal := false
	req := &api.ChatRequest{
		Model:    e.model,
		Messages: apiMessages,
		Options:  e.options,
		Stream:   &streamVal,
	}

	slog.Debug("[Gemma] Generating", "model", e.model, "messages", len(apiMessages), "tools", len(tools))

	var last api.ChatResponse
	got := false
	err := e.client.Chat(runCtx, req, func(resp api.ChatResponse) error {
		last = resp
		got = true
		return nil
	})
	if err != nil || !got {
		slog.Error("[Gemma] Generation failed", "model", e.model, "error", err)
		return llm.FailedGeneration(e, err)
	}

	debugger := llm.NewResponseDebugger(ctx, "functiongemma", e.debugDumps)
	debugger.WriteRaw(last)
	debugger.Close()

	slog.Debug("[Gemma] Usage", "model", e.model,
		"prompt_tokens", last.PromptEvalCount,
		"completion_tokens", last.EvalCount,
		"done_reason", last.DoneReason)

	return llm.NewGeneration(strings.TrimSpace(last.Message.Content), last, e)
}

// ExtractToolCalls implements llm.Engine.ExtractToolCalls.
// 調用編碼在回應文字裡，直接解析 Generation 的文字即可。
func (e *GemmaEngine) ExtractToolCalls(gen *llm.Generation) []llm.ToolCall {
	if gen == nil {
		return []llm.ToolCall{}
	}

	calls := ParseToolCalls(gen.Text)
	for _, tc := range calls {
		slog.Info("[Gemma] 🛠️ Tool call detected", "name", tc.Name)
	}
	return calls
}

// convertMessages converts messages to Ollama API format.
// 工具宣告併入系統前言；tool 結果降級成使用者文字；
// 帶 ToolCalls 的 assistant 回合重新編碼成行內標記。
func (e *GemmaEngine) convertMessages(messages []llm.Message, tools []llm.ToolSpec) []api.Message {
	var apiMsgs []api.Message

	declarations := RenderDeclarations(tools)
	systemSeen := false

	for _, m := range messages {
		if m.IsEmpty() {
			continue // 略過空訊息
		}

		switch m.Role {
		case llm.RoleSystem:
			content := m.Content
			if declarations != "" {
				content = content + "\n\n" + declarations
			}
			apiMsgs = append(apiMsgs, api.Message{Role: "system", Content: content})
			systemSeen = true

		case llm.RoleTool:
			apiMsgs = append(apiMsgs, api.Message{
				Role:    "user",
				Content: RenderToolResult(m.Name, m.Content),
			})

		case llm.RoleAssistant:
			content := m.Content
			for _, tc := range m.ToolCalls {
				if content != "" {
					content += "\n"
				}
				content += RenderCall(tc)
			}
			apiMsgs = append(apiMsgs, api.Message{Role: "assistant", Content: content})

		default:
			apiMsgs = append(apiMsgs, api.Message{Role: "user", Content: m.Content})
		}
	}

	// 對話沒帶系統回合時，宣告自成一條系統前言
	if !systemSeen && declarations != "" {
		apiMsgs = append([]api.Message{{Role: "system", Content: declarations}}, apiMsgs...)
	}

	return apiMsgs
}

// IsTransientError implements the llm.Engine interface
func (e *GemmaEngine) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()

	// 1. Connection related errors (Connection refused, reset)
	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "connection reset") {
		return true
	}

	// 2. High load
	if strings.Contains(strings.ToLower(errMsg), "overloaded") {
		return true
	}

	return false
}
