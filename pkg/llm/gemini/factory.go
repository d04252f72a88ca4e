package gemini

import (
	"fmt"

	"leoactivation/pkg/config"
	"leoactivation/pkg/llm"
)

// GeminiFactory handles creation of Gemini engines
type GeminiFactory struct{}

// Create implements ProviderFactory
func (f *GeminiFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.Engine, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("gemini: at least one api key is required")
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("gemini: at least one model is required")
	}

	var engines []llm.Engine

	// Cartesian Product: Models x Keys (prioritize models)
	for _, model := range cfg.Models {
		for _, key := range cfg.APIKeys {
			engine, err := NewGeminiEngine(key, model, sys, cfg.Options)
			if err != nil {
				return nil, err
			}
			engines = append(engines, engine)
		}
	}
	return engines, nil
}

func init() {
	llm.RegisterProvider("gemini", &GeminiFactory{}, llm.EngineRoleReasoning)
}
