package llm

import (
	"fmt"
	"log/slog"
	"time"

	"leoactivation/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

// EngineSet 保存依角色分類後的引擎。
// Structured 擅長工具偵測，Reasoning 擅長自然語言合成，
// 兩者都可能是單一引擎或一條 Chain。
type EngineSet struct {
	Structured Engine
	Reasoning  Engine
}

// NewFromConfig 根據設定檔建立引擎組。
// 任何一組配置無效都直接回傳 error，啟動期就把問題暴露出來。
func NewFromConfig(rawLLM jsoniter.RawMessage, system *config.SystemConfig) (*EngineSet, error) {
	if rawLLM == nil {
		return nil, fmt.Errorf("missing 'llm' config")
	}

	var groups []ProviderGroupConfig
	if err := json.Unmarshal(rawLLM, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse 'llm' config: %v", err)
	}

	byRole := map[string][]Engine{}

	for _, group := range groups {
		slog.Info("Loading LLM group", "type", group.Type, "models", len(group.Models))

		factory, ok := GetProviderFactory(group.Type)
		if !ok {
			return nil, fmt.Errorf("unknown provider type: %s", group.Type)
		}

		engines, err := factory.Create(group, system)
		if err != nil {
			return nil, fmt.Errorf("failed to create engines for %s: %w", group.Type, err)
		}

		role := group.Role
		if role == "" {
			role = DefaultRole(group.Type)
		}
		if role != EngineRoleStructured && role != EngineRoleReasoning {
			return nil, fmt.Errorf("invalid engine role %q for provider %s", role, group.Type)
		}

		byRole[role] = append(byRole[role], engines...)
	}

	set := &EngineSet{
		Structured: assemble(byRole[EngineRoleStructured], system),
		Reasoning:  assemble(byRole[EngineRoleReasoning], system),
	}

	if set.Structured == nil && set.Reasoning == nil {
		return nil, fmt.Errorf("no LLM engines could be initialized")
	}

	slog.Info("✅ LLM engines initialized",
		"structured", len(byRole[EngineRoleStructured]),
		"reasoning", len(byRole[EngineRoleReasoning]))

	return set, nil
}

// assemble 將同角色的引擎打包：零個回 nil、一個直接回傳、多個包成 Chain
func assemble(engines []Engine, system *config.SystemConfig) Engine {
	switch len(engines) {
	case 0:
		return nil
	case 1:
		return engines[0]
	default:
		return &Chain{
			Engines:    engines,
			MaxRetries: system.MaxRetries,
			RetryDelay: time.Duration(system.RetryDelayMs) * time.Millisecond,
		}
	}
}
