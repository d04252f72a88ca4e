package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// Config defines the global application configuration structure.
// This structure maps directly to the config.json file and holds
// business-level settings like channel credentials and LLM provider choices.
type Config struct {
	// LLM holds the provider group configuration (engines, keys, models)
	// for the routing pipeline in raw JSON.
	LLM jsoniter.RawMessage `json:"llm"`
	// Router holds routing behavior settings (mode pinning).
	Router RouterConfig `json:"router"`
	// Server holds the HTTP/WebSocket gateway settings.
	Server ServerConfig `json:"server"`
	// Channels contains a map of activation channel identifiers
	// (e.g., "email", "zalo_oa") to their configuration payloads in raw JSON.
	Channels map[string]jsoniter.RawMessage `json:"channels"`
	// Database holds the optional Postgres connection settings for the
	// segment/profile store. Empty DSN falls back to the in-memory store.
	Database DatabaseConfig `json:"database"`
	// SystemPrompt is the global persona/instruction string injected
	// as the initial system message in every conversation.
	SystemPrompt string `json:"system_prompt"`
}

// RouterConfig 控制引擎選擇策略
type RouterConfig struct {
	// Mode 為 "auto" 時依階段自動挑引擎；
	// 指定引擎名稱（如 "gemini"）時兩個階段都釘選該引擎。
	Mode string `json:"mode"`
}

// ServerConfig 定義對外 API 的監聽參數
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DatabaseConfig 定義 Postgres 連線參數
type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

// Validate ensures the configuration structure contains all mandatory fields.
// It acts as a primary guard before the system proceeds to initialization.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 {
		return fmt.Errorf("mandatory 'llm' configuration is missing or empty")
	}
	return nil
}

// SystemConfig defines engine-level technical parameters.
// These settings are usually stored in system.json and control the
// performance, reliability, and technical behavior of the engine layer.
type SystemConfig struct {
	// MaxRetries is the number of times an engine chain will attempt to
	// recover from a failed generation before moving to the next engine.
	MaxRetries int `json:"max_retries"`
	// RetryDelayMs is the duration to wait (in milliseconds) between
	// consecutive retry attempts.
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs is the hard cutoff time (in milliseconds) for an
	// LLM request. The context will be cancelled if exceeded.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// ToolTimeoutMs is the per-call cutoff (in milliseconds) for a single
	// tool execution during the EXECUTE_TOOLS stage.
	ToolTimeoutMs int `json:"tool_timeout_ms"`
	// OllamaDefaultURL is the fallback endpoint used when connecting
	// to a local Ollama instance if no specific URL is provided.
	OllamaDefaultURL string `json:"ollama_default_url"`
	// HTTPTimeoutMs is the timeout (in milliseconds) applied to outbound
	// HTTP calls made by tools and activation channels.
	HTTPTimeoutMs int `json:"http_timeout_ms"`
	// DebugResponses enables saving every raw LLM response to the /debug
	// folder for inspection and troubleshooting purposes.
	DebugResponses bool `json:"debug_responses"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
	// EnableTools globally toggles the tool calling (agentic) functionality.
	// If false, every request goes straight to synthesis without detection.
	EnableTools bool `json:"enable_tools"`
}

// DefaultSystemConfig returns a SystemConfig pointer initialized with hardcoded
// safe default values. This is used as a fallback when the system.json file
// is missing or corrupt, ensuring the engine can always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxRetries:       3,
		RetryDelayMs:     500,
		LLMTimeoutMs:     120000,
		ToolTimeoutMs:    30000,
		OllamaDefaultURL: "http://localhost:11434",
		HTTPTimeoutMs:    6000,
		LogLevel:         "info",
		EnableTools:      true,
	}
}

// Load reads and parses the JSON configuration files from the current working directory.
// It first attempts to load 'config.json' (app config). If this file is missing, it returns an error.
// Then it calls LoadSystemConfig to load 'system.json'.
// Returns pointers to the loaded Config and SystemConfig, or an error if the mandatory app config fails.
func Load() (*Config, *SystemConfig, error) {
	// 1. Load Application Config
	appPath := "config.json"
	if _, err := os.Stat(appPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file '%s' not found. please create one", appPath)
	}

	appFile, err := os.ReadFile(appPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(appFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// 1a. Validate structure integrity
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	// 1b. Fill router/server defaults
	if cfg.Router.Mode == "" {
		cfg.Router.Mode = "auto"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}

	// 2. Load System Config independently
	sysCfg := LoadSystemConfig("system.json")

	return &cfg, sysCfg, nil
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg // File not found, use defaults
	}

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(file, cfg); err != nil {
		return cfg // Parse failed, use defaults
	}

	return cfg
}
