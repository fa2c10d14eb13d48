package config

import "askrelay/internal/domain"

const (
	DefaultOllamaEndpoint = "http://localhost:11434"
	DefaultOllamaModel    = "llama3:latest"
)

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			RequestTimeoutSeconds: 30,
			ClientTimeoutSeconds:  35,
			ChunkDelayMs:          25,
			RetryAttempts:         0,
			RateLimitPerMinute:    0,
			RateLimitBurst:        5,
			Theme:                 "dark",
		},
		Settings: DefaultSettings(),
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 8765,
			Path: "/ws",
		},
		History: HistoryConfig{
			DBPath:     "~/.askrelay/history.db",
			MaxEntries: 50,
		},
	}
}

// DefaultSettings is the configuration record used before the user has
// saved anything.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		Provider:       domain.ProviderGemini,
		OllamaEndpoint: DefaultOllamaEndpoint,
		OllamaModel:    DefaultOllamaModel,
	}
}

// withSettingsDefaults fills empty Ollama fields so a partially written
// record still produces a usable request.
func withSettingsDefaults(s domain.Settings) domain.Settings {
	if s.Provider == "" {
		s.Provider = domain.ProviderGemini
	}
	s.Provider = normalizeProvider(s.Provider)
	if s.OllamaEndpoint == "" {
		s.OllamaEndpoint = DefaultOllamaEndpoint
	}
	if s.OllamaModel == "" {
		s.OllamaModel = DefaultOllamaModel
	}
	return s
}
