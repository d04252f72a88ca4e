package gemma

import (
	"fmt"

	"leoactivation/pkg/config"
	"leoactivation/pkg/llm"
)

// GemmaFactory handles creation of FunctionGemma engines
type GemmaFactory struct{}

// Create implements ProviderFactory
func (f *GemmaFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.Engine, error) {
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("gemma: at least one model is required")
	}

	var engines []llm.Engine
	for _, model := range cfg.Models {
		engine, err := NewGemmaEngine(model, cfg.BaseURL, sys, cfg.Options)
		if err != nil {
			return nil, err
		}
		engines = append(engines, engine)
	}
	return engines, nil
}

func init() {
	llm.RegisterProvider("functiongemma", &GemmaFactory{}, llm.EngineRoleStructured)
}
