package llm

import (
	"time"
)

//----------------------------------------------------------------
// Message - 通用訊息結構
//----------------------------------------------------------------

// Message 表示一條對話訊息
type Message struct {
	Role      string `json:"role"`    // "user", "assistant", "system", "tool"
	Content   string `json:"content"` // 文字內容
	Timestamp int64  `json:"timestamp,omitempty"`

	// Name 關聯此訊息所屬的工具名稱（僅 role: tool 時有效）
	Name string `json:"name,omitempty"`

	// ToolCallID 關聯此結果所屬的調用 ID（OpenAI 風格後端需要）
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolCalls 包含 LLM 產生的工具調用請求（僅 role: assistant 時有效）
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall 表示 LLM 產生的工具調用請求。
// Arguments 保持已解析的 map 形式，由各引擎負責與後端格式互轉。
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

//----------------------------------------------------------------
// ToolSpec - 後端無關的工具宣告
//----------------------------------------------------------------

// ToolSpec 描述一個可供 LLM 調用的工具。
// 各引擎將其轉換為自家的宣告格式（genai.FunctionDeclaration、
// OpenAI function schema、或 FunctionGemma 的系統前言）。
type ToolSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []ParamSpec `json:"parameters,omitempty"`
}

// ParamSpec 描述工具的單一參數
type ParamSpec struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // "string", "number", "integer", "boolean"
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// SchemaProperties 將參數清單轉成 JSON Schema 的 properties/required 形式。
// OpenAI 與 Gemini 的宣告格式都吃這種結構。
func (s ToolSpec) SchemaProperties() (map[string]any, []string) {
	props := make(map[string]any, len(s.Parameters))
	var required []string
	for _, p := range s.Parameters {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return props, required
}

//----------------------------------------------------------------
// Helper Functions - Message
//----------------------------------------------------------------

// NewTextMessage 建立純文字訊息
func NewTextMessage(role, text string) Message {
	return Message{
		Role:      role,
		Content:   text,
		Timestamp: time.Now().Unix(),
	}
}

// NewSystemMessage 建立系統訊息
func NewSystemMessage(text string) Message {
	return NewTextMessage(RoleSystem, text)
}

// NewUserMessage 建立使用者訊息
func NewUserMessage(text string) Message {
	return NewTextMessage(RoleUser, text)
}

// NewAssistantMessage 建立助理訊息
func NewAssistantMessage(text string) Message {
	return NewTextMessage(RoleAssistant, text)
}

// NewToolMessage 建立工具結果訊息（name 為工具名稱）
func NewToolMessage(name, text string) Message {
	msg := NewTextMessage(RoleTool, text)
	msg.Name = name
	return msg
}

// IsEmpty 判斷訊息是否沒有任何有效內容。
// 空訊息在送往後端前會被所有引擎一致地丟棄。
func (m Message) IsEmpty() bool {
	return m.Content == "" && len(m.ToolCalls) == 0
}
