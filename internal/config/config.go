package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"askrelay/internal/domain"
)

// Config is the root configuration for askrelay.
type Config struct {
	General  GeneralConfig   `json:"general" yaml:"general"`
	Settings domain.Settings `json:"settings" yaml:"settings"`
	Gateway  GatewayConfig   `json:"gateway" yaml:"gateway"`
	History  HistoryConfig   `json:"history" yaml:"history"`
}

type GeneralConfig struct {
	LogLevel              string `json:"logLevel" yaml:"logLevel"`
	LogFile               string `json:"logFile,omitempty" yaml:"logFile,omitempty"` // optional log file path
	RequestTimeoutSeconds int    `json:"requestTimeoutSeconds" yaml:"requestTimeoutSeconds"`
	ClientTimeoutSeconds  int    `json:"clientTimeoutSeconds" yaml:"clientTimeoutSeconds"`
	ChunkDelayMs          int    `json:"chunkDelayMs" yaml:"chunkDelayMs"`
	RetryAttempts         int    `json:"retryAttempts" yaml:"retryAttempts"`
	RateLimitPerMinute    int    `json:"rateLimitPerMinute" yaml:"rateLimitPerMinute"` // 0 disables
	RateLimitBurst        int    `json:"rateLimitBurst" yaml:"rateLimitBurst"`
	Theme                 string `json:"theme,omitempty" yaml:"theme,omitempty"` // "dark" | "light"
}

type GatewayConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	Path string `json:"path" yaml:"path"`
	URL  string `json:"url,omitempty" yaml:"url,omitempty"` // used by --remote clients; derived from host/port/path when empty
}

// Addr is the listen address for the gateway server.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// Endpoint is the WebSocket URL clients dial.
func (g GatewayConfig) Endpoint() string {
	if g.URL != "" {
		return g.URL
	}
	host := g.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("ws://%s:%d%s", host, g.Port, g.Path)
}

type HistoryConfig struct {
	DBPath     string `json:"dbPath" yaml:"dbPath"`
	MaxEntries int    `json:"maxEntries" yaml:"maxEntries"`
}

// DefaultConfigDir returns the default config directory (~/.askrelay).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".askrelay"
	}
	return filepath.Join(home, ".askrelay")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// isYAML reports whether path should be read and written as YAML.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.History.DBPath = ExpandPath(cfg.History.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Settings.Provider = normalizeProvider(cfg.Settings.Provider)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	cp := *cfg
	cp.Settings.Provider = normalizeProvider(cp.Settings.Provider)

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(&cp)
	} else {
		data, err = json.MarshalIndent(&cp, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	// API keys live in this file.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values. Credentials are not
// checked here; see ValidateSettings.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.RequestTimeoutSeconds < 1 || cfg.General.RequestTimeoutSeconds > 600 {
		errs = append(errs, "general.requestTimeoutSeconds must be between 1 and 600")
	}
	if cfg.General.ClientTimeoutSeconds < cfg.General.RequestTimeoutSeconds {
		errs = append(errs, "general.clientTimeoutSeconds must be >= general.requestTimeoutSeconds")
	}
	if cfg.General.ChunkDelayMs < 0 || cfg.General.ChunkDelayMs > 1000 {
		errs = append(errs, "general.chunkDelayMs must be between 0 and 1000")
	}
	if cfg.General.RetryAttempts < 0 || cfg.General.RetryAttempts > 1 {
		errs = append(errs, "general.retryAttempts must be 0 or 1")
	}
	if cfg.General.RateLimitPerMinute < 0 {
		errs = append(errs, "general.rateLimitPerMinute must be >= 0")
	}
	if cfg.General.RateLimitPerMinute > 0 && cfg.General.RateLimitBurst < 1 {
		errs = append(errs, "general.rateLimitBurst must be >= 1 when rate limiting is enabled")
	}
	switch cfg.General.Theme {
	case "", "dark", "light":
	default:
		errs = append(errs, "general.theme must be one of: dark, light")
	}

	if _, err := domain.ParseProviderKind(string(cfg.Settings.Provider)); err != nil {
		errs = append(errs, "settings.provider must be one of: gemini, openai, ollama")
	}

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		errs = append(errs, "gateway.port must be between 0 and 65535")
	}
	if !strings.HasPrefix(cfg.Gateway.Path, "/") {
		errs = append(errs, "gateway.path must start with /")
	}

	if cfg.History.MaxEntries < 1 {
		errs = append(errs, "history.maxEntries must be >= 1")
	}
	if cfg.History.DBPath == "" {
		errs = append(errs, "history.dbPath is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// normalizeProvider maps "OpenAI" or " ollama " to its canonical kind and
// leaves unknown values for Validate to report.
func normalizeProvider(p domain.ProviderKind) domain.ProviderKind {
	if k, err := domain.ParseProviderKind(string(p)); err == nil {
		return k
	}
	return p
}

// ValidateSettings applies the settings form rules to a configuration record.
func ValidateSettings(s domain.Settings) error {
	var errs []string

	switch normalizeProvider(s.Provider) {
	case domain.ProviderGemini:
		key := strings.TrimSpace(s.GeminiAPIKey)
		if key == "" {
			errs = append(errs, "Please enter your Gemini API key")
		} else if len(key) < 20 {
			errs = append(errs, "Gemini API key seems too short. Please check it.")
		}
	case domain.ProviderOpenAI:
		if strings.TrimSpace(s.OpenAIAPIKey) == "" {
			errs = append(errs, "Please enter your OpenAI API key")
		}
	case domain.ProviderOllama:
		if strings.TrimSpace(s.OllamaEndpoint) == "" {
			errs = append(errs, "Please enter the Ollama endpoint")
		}
		if strings.TrimSpace(s.OllamaModel) == "" {
			errs = append(errs, "Please enter the Ollama model name")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown provider %q", s.Provider))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
