package openaicompat

import (
	"fmt"

	"leoactivation/pkg/config"
	"leoactivation/pkg/llm"
)

// OpenAIFactory handles creation of OpenAI-compatible engines
type OpenAIFactory struct{}

// Create implements ProviderFactory
func (f *OpenAIFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.Engine, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("openai: at least one api key is required")
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("openai: at least one model is required")
	}

	var engines []llm.Engine
	for _, model := range cfg.Models {
		for _, key := range cfg.APIKeys {
			engine, err := NewOpenAIEngine(key, model, cfg.BaseURL, sys, cfg.Options)
			if err != nil {
				return nil, err
			}
			engines = append(engines, engine)
		}
	}
	return engines, nil
}

func init() {
	llm.RegisterProvider("openai", &OpenAIFactory{}, llm.EngineRoleStructured)
}
