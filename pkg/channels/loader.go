package channels

import (
	"log/slog"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LoadFromConfig acts as the central orchestration point for dynamic
// channel initialization. It iterates through the provided configuration
// map, resolves factories, and registers the resulting channels with
// the Manager.
func LoadFromConfig(m *Manager, configs map[string]jsoniter.RawMessage, deps Deps) {
	for name, rawConfig := range configs {
		factory, ok := GetChannelFactory(NormalizeKey(name))
		if !ok {
			slog.Warn("Unknown channel type", "name", name)
			continue
		}

		channel, err := factory.Create(rawConfig, deps)
		if err != nil {
			slog.Error("Failed to create channel", "name", name, "error", err)
			continue
		}

		// If Create returns nil (e.g., certain conditions not met but not an error), skip
		if channel == nil {
			continue
		}

		m.Register(channel)
		slog.Info("Channel registered", "name", channel.Key())
	}
}
