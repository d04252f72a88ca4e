package gemma

import (
	"fmt"
	"strconv"
	"strings"

	"leoactivation/pkg/llm"
)

// FunctionGemma 不支援結構化 function calling，
// 工具調用以行內控制標記編碼在回應文字中：
//
//	<start_function_call>call:get_current_weather{location:<escape>Ho Chi Minh City<escape>,unit:<escape>celsius<escape>}<end_function_call>
//
// 字串參數以 <escape> 包裹，數字與布林值直接裸寫。
const (
	startCallToken = "<start_function_call>"
	endCallToken   = "<end_function_call>"
	escapeToken    = "<escape>"
	callPrefix     = "call:"
)

//----------------------------------------------------------------
// Decode - 從回應文字解析工具調用
//----------------------------------------------------------------

// ParseToolCalls 掃描文字中的所有行內工具調用。
// 格式破損的片段直接略過，永不報錯。
func ParseToolCalls(text string) []llm.ToolCall {
	calls := []llm.ToolCall{}

	rest := text
	for {
		start := strings.Index(rest, startCallToken)
		if start < 0 {
			break
		}
		rest = rest[start+len(startCallToken):]

		end := strings.Index(rest, endCallToken)
		if end < 0 {
			break
		}
		body := strings.TrimSpace(rest[:end])
		rest = rest[end+len(endCallToken):]

		call, ok := parseCallBody(body)
		if !ok {
			continue
		}
		calls = append(calls, call)
	}

	return calls
}

// parseCallBody 解析 "call:name{...}" 主體
func parseCallBody(body string) (llm.ToolCall, bool) {
	if !strings.HasPrefix(body, callPrefix) {
		return llm.ToolCall{}, false
	}
	body = body[len(callPrefix):]

	open := strings.Index(body, "{")
	close := strings.LastIndex(body, "}")
	if open < 0 || close < open {
		return llm.ToolCall{}, false
	}

	name := strings.TrimSpace(body[:open])
	if name == "" {
		return llm.ToolCall{}, false
	}

	args := parseArgs(body[open+1 : close])
	return llm.ToolCall{Name: name, Arguments: args}, true
}

// parseArgs 解析 "key:<escape>value<escape>,key2:123" 形式的參數串。
// <escape> 區段內的逗號屬於字串值，不能當分隔符切開。
func parseArgs(raw string) map[string]any {
	args := map[string]any{}

	for _, pair := range splitTopLevel(raw) {
		colon := strings.Index(pair, ":")
		if colon < 0 {
			continue
		}
		key := strings.TrimSpace(pair[:colon])
		if key == "" {
			continue
		}
		args[key] = decodeValue(strings.TrimSpace(pair[colon+1:]))
	}

	return args
}

// splitTopLevel 以逗號切分參數，跳過 <escape> 包裹的區段
func splitTopLevel(raw string) []string {
	var parts []string
	var sb strings.Builder
	escaped := false

	i := 0
	for i < len(raw) {
		if strings.HasPrefix(raw[i:], escapeToken) {
			escaped = !escaped
			sb.WriteString(escapeToken)
			i += len(escapeToken)
			continue
		}
		if raw[i] == ',' && !escaped {
			parts = append(parts, sb.String())
			sb.Reset()
			i++
			continue
		}
		sb.WriteByte(raw[i])
		i++
	}
	if sb.Len() > 0 {
		parts = append(parts, sb.String())
	}
	return parts
}

// decodeValue 還原單一參數值：<escape> 包裹為字串，其餘嘗試數字/布林
func decodeValue(raw string) any {
	if strings.HasPrefix(raw, escapeToken) && strings.HasSuffix(raw, escapeToken) && len(raw) >= 2*len(escapeToken) {
		return raw[len(escapeToken) : len(raw)-len(escapeToken)]
	}

	if raw == "true" {
		return true
	}
	if raw == "false" {
		return false
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}

	// 裸字串（模型偶爾會忘記 escape）
	return raw
}

//----------------------------------------------------------------
// Encode - 宣告前言與歷史回放
//----------------------------------------------------------------

// RenderDeclarations 將工具宣告渲染成系統前言。
// 270M 的小模型只認這種提示格式，不吃 JSON Schema。
func RenderDeclarations(tools []llm.ToolSpec) string {
	if len(tools) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("You can call functions to get information. To call a function, reply with exactly:\n")
	sb.WriteString(startCallToken + callPrefix + "function_name{param:" + escapeToken + "string value" + escapeToken + ",count:3}" + endCallToken + "\n")
	sb.WriteString("Wrap string values in " + escapeToken + " tokens. Numbers and booleans are written bare.\n\n")
	sb.WriteString("Available functions:\n")

	for _, t := range tools {
		sb.WriteString("- " + t.Name + "(")
		for i, p := range t.Parameters {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.Name + ": " + p.Type)
			if len(p.Enum) > 0 {
				sb.WriteString(" [" + strings.Join(p.Enum, "|") + "]")
			}
		}
		sb.WriteString("): " + t.Description + "\n")
	}

	return sb.String()
}

// RenderCall 將一筆工具調用編碼回行內標記，用於歷史回放
func RenderCall(tc llm.ToolCall) string {
	var sb strings.Builder
	sb.WriteString(startCallToken + callPrefix + tc.Name + "{")

	first := true
	for key, val := range tc.Arguments {
		if !first {
			sb.WriteString(",")
		}
		first = false
		sb.WriteString(key + ":")
		switch v := val.(type) {
		case string:
			sb.WriteString(escapeToken + v + escapeToken)
		default:
			sb.WriteString(fmt.Sprintf("%v", v))
		}
	}

	sb.WriteString("}" + endCallToken)
	return sb.String()
}

// RenderToolResult 將工具結果渲染成使用者口吻的文字回合。
// FunctionGemma 沒有原生的 tool response 概念，只能走文字。
func RenderToolResult(name, content string) string {
	if content == "" {
		content = "success"
	}
	return fmt.Sprintf("Result of %s: %s", name, content)
}
