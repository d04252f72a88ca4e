package llm

import (
	"leoactivation/pkg/config"
)

// ProviderGroupConfig 定義一組模型的配置，作為 Factory 的輸入標準
type ProviderGroupConfig struct {
	Type    string         `json:"type"`
	Role    string         `json:"role,omitempty"` // "structured" | "reasoning"，留空時依 Type 推斷
	APIKeys []string       `json:"api_keys,omitempty"`
	Models  []string       `json:"models"`
	BaseURL string         `json:"base_url,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// ProviderFactory 定義建立 LLM Engine 的工廠介面
type ProviderFactory interface {
	// Create 根據配置建立一組 atomic engines。
	// 缺少 API Key 或模型名稱時必須立刻回傳 error（fail-fast），
	// 不允許建出半殘的引擎等到請求時才爆炸。
	Create(groupConfig ProviderGroupConfig, systemConfig *config.SystemConfig) ([]Engine, error)
}

// 全域 Provider 註冊表
var providerRegistry = make(map[string]ProviderFactory)

// defaultRoles 記錄各 Provider 類型預設的引擎角色
var defaultRoles = make(map[string]string)

// RegisterProvider 註冊一個 Provider Factory 及其預設角色
func RegisterProvider(name string, factory ProviderFactory, defaultRole string) {
	providerRegistry[name] = factory
	defaultRoles[name] = defaultRole
}

// GetProviderFactory 取得指定名稱的 Provider Factory
func GetProviderFactory(name string) (ProviderFactory, bool) {
	f, ok := providerRegistry[name]
	return f, ok
}

// DefaultRole 回傳 Provider 類型的預設引擎角色
func DefaultRole(providerType string) string {
	if role, ok := defaultRoles[providerType]; ok {
		return role
	}
	return EngineRoleReasoning
}
