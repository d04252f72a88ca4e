package openaicompat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"leoactivation/pkg/config"
	"leoactivation/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultTemperature = 0.4

// OpenAIEngine 相容 OpenAI Chat Completions 協定的引擎。
// 工具調用走結構化 tool_calls，可當替代的 structured 引擎使用。
type OpenAIEngine struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
	debugDumps  bool
}

// NewOpenAIEngine creates an engine for any OpenAI-schema provider.
func NewOpenAIEngine(apiKey, model, baseURL string, sys *config.SystemConfig, options map[string]any) (*OpenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model id is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	temperature := defaultTemperature
	if t, ok := options["temperature"].(float64); ok {
		temperature = t
	}

	return &OpenAIEngine{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: temperature,
		timeout:     time.Duration(sys.LLMTimeoutMs) * time.Millisecond,
		debugDumps:  sys.DebugResponses,
	}, nil
}

// Name implements llm.Engine
func (e *OpenAIEngine) Name() string {
	return "openai"
}

// Generate implements llm.Engine.Generate
func (e *OpenAIEngine) Generate(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec) *llm.Generation {
	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Messages:    e.convertMessages(messages),
		Model:       openai.ChatModel(e.model),
		Temperature: openai.Float(e.temperature),
	}
	if converted := convertTools(tools); len(converted) > 0 {
		params.Tools = converted
	}

	slog.Debug("[OpenAI] Generating", "model", e.model, "messages", len(params.Messages), "tools", len(tools))

	completion, err := e.client.Chat.Completions.New(runCtx, params)
	if err != nil {
		slog.Error("[OpenAI] Generation failed", "model", e.model, "error", err)
		return llm.FailedGeneration(e, err)
	}

	debugger := llm.NewResponseDebugger(ctx, "openai", e.debugDumps)
	debugger.WriteRaw(completion)
	debugger.Close()

	text := ""
	if len(completion.Choices) > 0 {
		text = completion.Choices[0].Message.Content
	}

	return llm.NewGeneration(strings.TrimSpace(text), completion, e)
}

// ExtractToolCalls implements llm.Engine.ExtractToolCalls
func (e *OpenAIEngine) ExtractToolCalls(gen *llm.Generation) []llm.ToolCall {
	calls := []llm.ToolCall{}
	if gen == nil {
		return calls
	}
	completion, ok := gen.Raw.(*openai.ChatCompletion)
	if !ok || completion == nil || len(completion.Choices) == 0 {
		return calls
	}

	for _, tc := range completion.Choices[0].Message.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			slog.Warn("[OpenAI] Failed to parse tool call arguments", "name", tc.Function.Name, "error", err)
			args = map[string]any{}
		}
		calls = append(calls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
		slog.Info("[OpenAI] 🛠️ Tool call detected", "name", tc.Function.Name)
	}
	return calls
}

// convertTools 將通用 ToolSpec 轉為 OpenAI function schema
func convertTools(tools []llm.ToolSpec) []openai.ChatCompletionToolUnionParam {
	var converted []openai.ChatCompletionToolUnionParam
	for _, t := range tools {
		props, required := t.SchemaProperties()
		parameters := openai.FunctionParameters{
			"type":       "object",
			"properties": props,
		}
		if len(required) > 0 {
			parameters["required"] = required
		}

		converted = append(converted, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  parameters,
		}))
	}
	return converted
}

// convertMessages converts the conversation to Chat Completions params.
// OpenAI 原生支援四種角色，轉換最直接：
//   - tool 結果走 ToolMessage 並帶 tool_call_id
//   - 帶 ToolCalls 的 assistant 回合以結構化形式回放
//   - 空訊息一樣丟棄
func (e *OpenAIEngine) convertMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	var converted []openai.ChatCompletionMessageParamUnion

	for _, m := range messages {
		if m.IsEmpty() {
			continue
		}

		switch m.Role {
		case llm.RoleSystem:
			converted = append(converted, openai.SystemMessage(m.Content))

		case llm.RoleTool:
			content := m.Content
			if content == "" {
				content = "success"
			}
			callID := m.ToolCallID
			if callID == "" {
				callID = m.Name
			}
			converted = append(converted, openai.ToolMessage(content, callID))

		case llm.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				converted = append(converted, openai.AssistantMessage(m.Content))
				continue
			}

			assistant := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				argsB, err := json.Marshal(tc.Arguments)
				if err != nil {
					argsB = []byte("{}")
				}
				callID := tc.ID
				if callID == "" {
					callID = tc.Name
				}
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: callID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: string(argsB),
						},
					},
				})
			}
			converted = append(converted, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})

		default:
			converted = append(converted, openai.UserMessage(m.Content))
		}
	}

	return converted
}

// IsTransientError implements the llm.Engine interface
func (e *OpenAIEngine) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "rate limit") {
		return true
	}
	if strings.Contains(errMsg, "503") || strings.Contains(errMsg, "overloaded") {
		return true
	}
	if strings.Contains(errMsg, "500") || strings.Contains(errMsg, "internal error") {
		return true
	}

	return false
}
