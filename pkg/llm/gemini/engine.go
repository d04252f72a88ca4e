package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"leoactivation/pkg/config"
	"leoactivation/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/genai"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// 預設取樣溫度，偏保守以穩定工具參數的格式
const defaultTemperature float32 = 0.4

// GeminiEngine Google Gemini API engine（推理/合成特化）
type GeminiEngine struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
	debugDumps  bool
}

// NewGeminiEngine creates a Gemini engine with a single model and API key.
// Missing credentials are a configuration error and fail immediately.
func NewGeminiEngine(apiKey, model string, sys *config.SystemConfig, options map[string]any) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("gemini: model id is required")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	temperature := defaultTemperature
	if t, ok := options["temperature"].(float64); ok {
		temperature = float32(t)
	}

	return &GeminiEngine{
		client:      client,
		model:       model,
		temperature: temperature,
		timeout:     time.Duration(sys.LLMTimeoutMs) * time.Millisecond,
		debugDumps:  sys.DebugResponses,
	}, nil
}

// Name implements llm.Engine
func (g *GeminiEngine) Name() string {
	return "gemini"
}

// Generate implements llm.Engine.Generate.
// 後端錯誤一律吞掉並回傳空 Generation，由上層決定 fallback。
func (g *GeminiEngine) Generate(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec) *llm.Generation {
	runCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	contents, systemInstruction := g.convertMessages(messages)
	genaiTools := convertTools(tools)

	slog.Debug("[Gemini] Generating", "model", g.model, "contents", len(contents), "tools", len(tools))

	resp, err := g.client.Models.GenerateContent(runCtx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Tools:             genaiTools,
		Temperature:       genai.Ptr(g.temperature),
	})
	if err != nil {
		slog.Error("[Gemini] Generation failed", "model", g.model, "error", err)
		return llm.FailedGeneration(g, err)
	}

	debugger := llm.NewResponseDebugger(ctx, "gemini", g.debugDumps)
	debugger.WriteRaw(resp)
	debugger.Close()

	if resp.UsageMetadata != nil {
		slog.Debug("[Gemini] Usage", "model", g.model,
			"prompt_tokens", resp.UsageMetadata.PromptTokenCount,
			"completion_tokens", resp.UsageMetadata.CandidatesTokenCount,
			"total_tokens", resp.UsageMetadata.TotalTokenCount)
	}

	return llm.NewGeneration(strings.TrimSpace(collectText(resp)), resp, g)
}

// ExtractToolCalls implements llm.Engine.ExtractToolCalls.
// 只讀取傳入 Generation 的原始回應，與引擎內部狀態無關。
func (g *GeminiEngine) ExtractToolCalls(gen *llm.Generation) []llm.ToolCall {
	calls := []llm.ToolCall{}
	if gen == nil {
		return calls
	}
	resp, ok := gen.Raw.(*genai.GenerateContentResponse)
	if !ok || resp == nil {
		return calls
	}

	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.FunctionCall == nil {
				continue
			}
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			calls = append(calls, llm.ToolCall{
				ID:        part.FunctionCall.ID,
				Name:      part.FunctionCall.Name,
				Arguments: args,
			})
			slog.Info("[Gemini] 🛠️ Tool call detected", "name", part.FunctionCall.Name)
		}
	}
	return calls
}

// collectText 聚合所有 candidate 的純文字部分（略過 thought）
func collectText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				sb.WriteString(part.Text)
			}
		}
	}
	return sb.String()
}

// convertTools 將通用 ToolSpec 轉為 genai 宣告格式
func convertTools(tools []llm.ToolSpec) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}

	var fds []*genai.FunctionDeclaration
	for _, t := range tools {
		props, required := t.SchemaProperties()
		schema := map[string]any{
			"type":       "object",
			"properties": props,
		}
		if len(required) > 0 {
			schema["required"] = required
		}

		fd := &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
		}
		// 經由 JSON 轉換繞過 SDK 的 Schema 型別差異
		schemaB, _ := json.Marshal(schema)
		var genaiSchema genai.Schema
		if err := json.Unmarshal(schemaB, &genaiSchema); err == nil {
			fd.Parameters = &genaiSchema
		}
		fds = append(fds, fd)
	}

	return []*genai.Tool{{FunctionDeclarations: fds}}
}

// convertMessages converts message list to GenAI format.
// Gemini 只有 user/model 兩種角色：
//   - system 抽出作為 SystemInstruction
//   - tool 結果以 FunctionResponse part 掛在 user 角色下
//   - 空訊息直接略過
//   - 轉換後首條訊息若不是 user，就地改為 user（不重排順序）
func (g *GeminiEngine) convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var genaiContents []*genai.Content
	var systemInstruction *genai.Content

	for _, msg := range messages {
		if msg.IsEmpty() {
			continue // 略過空訊息
		}

		switch msg.Role {
		case llm.RoleSystem:
			systemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: msg.Content}},
			}

		case llm.RoleTool:
			result := msg.Content
			if result == "" {
				result = "success"
			}
			genaiContents = append(genaiContents, &genai.Content{
				Role: "user", // Tool results are part of user role in Gemini
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						Name:     msg.Name,
						Response: map[string]any{"result": result},
					},
				}},
			})

		case llm.RoleAssistant:
			var parts []*genai.Part
			// Gemini 要求先回放 FunctionCall，工具結果才接得上
			for _, tc := range msg.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   tc.ID,
						Name: tc.Name,
						Args: tc.Arguments,
					},
				})
			}
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			genaiContents = append(genaiContents, &genai.Content{
				Role:  "model",
				Parts: parts,
			})

		default: // user
			genaiContents = append(genaiContents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}

	// 首條必須是 user，否則 API 會拒絕整段對話
	if len(genaiContents) > 0 && genaiContents[0].Role != "user" {
		genaiContents[0].Role = "user"
	}

	return genaiContents, systemInstruction
}

// IsTransientError implements the llm.Engine interface
func (g *GeminiEngine) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()

	// 1. Google API common 503 Service Unavailable / Overloaded
	if strings.Contains(errMsg, "503") || strings.Contains(strings.ToLower(errMsg), "overloaded") {
		return true
	}

	// 2. 429 Too Many Requests (Rate Limit)
	if strings.Contains(errMsg, "429") || strings.Contains(strings.ToLower(errMsg), "resource exhausted") {
		return true
	}

	// 3. 500 Internal Error (Occasional Google Gemini crashes)
	if strings.Contains(errMsg, "500") || strings.Contains(strings.ToLower(errMsg), "internal error") {
		return true
	}

	return false
}
