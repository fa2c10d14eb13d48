package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"askrelay/internal/domain"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_RequestTimeout_Bounds(t *testing.T) {
	cfg := Defaults()
	cfg.General.RequestTimeoutSeconds = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for requestTimeoutSeconds=0")
	}

	cfg = Defaults()
	cfg.General.RequestTimeoutSeconds = 1
	cfg.General.ClientTimeoutSeconds = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("requestTimeoutSeconds=1 should be valid: %v", err)
	}
}

func TestValidate_ClientTimeoutShorterThanAdapter(t *testing.T) {
	cfg := Defaults()
	cfg.General.ClientTimeoutSeconds = cfg.General.RequestTimeoutSeconds - 1
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error when client timeout < request timeout")
	}
	if !strings.Contains(err.Error(), "clientTimeoutSeconds") {
		t.Fatalf("error should name the field, got: %v", err)
	}
}

func TestValidate_RateLimit(t *testing.T) {
	cfg := Defaults()
	cfg.General.RateLimitPerMinute = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative rateLimitPerMinute")
	}

	cfg = Defaults()
	cfg.General.RateLimitPerMinute = 20
	cfg.General.RateLimitBurst = 0
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "rateLimitBurst") {
		t.Fatalf("expected rateLimitBurst error, got: %v", err)
	}

	cfg.General.RateLimitBurst = 3
	if err := Validate(cfg); err != nil {
		t.Fatalf("rate limit 20/min burst 3 should be valid: %v", err)
	}
}

func TestValidate_RetryAttempts(t *testing.T) {
	for _, n := range []int{0, 1} {
		cfg := Defaults()
		cfg.General.RetryAttempts = n
		if err := Validate(cfg); err != nil {
			t.Fatalf("retryAttempts=%d should be valid: %v", n, err)
		}
	}
	cfg := Defaults()
	cfg.General.RetryAttempts = 2
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for retryAttempts=2")
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Port = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Gateway.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_UnknownProvider(t *testing.T) {
	cfg := Defaults()
	cfg.Settings.Provider = "claude"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.History.MaxEntries = 0
	cfg.General.LogLevel = "verbose"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "history.maxEntries") || !strings.Contains(err.Error(), "general.logLevel") {
		t.Fatalf("expected both problems reported, got: %v", err)
	}
}

// --- ValidateSettings ---

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		s       domain.Settings
		wantErr bool
	}{
		{"gemini ok", domain.Settings{Provider: domain.ProviderGemini, GeminiAPIKey: "AIzaSyA-0123456789abcdef"}, false},
		{"gemini missing", domain.Settings{Provider: domain.ProviderGemini}, true},
		{"gemini short", domain.Settings{Provider: domain.ProviderGemini, GeminiAPIKey: "AIza-short"}, true},
		{"openai ok", domain.Settings{Provider: domain.ProviderOpenAI, OpenAIAPIKey: "sk-x"}, false},
		{"openai missing", domain.Settings{Provider: domain.ProviderOpenAI, OpenAIAPIKey: "   "}, true},
		{"ollama ok", domain.Settings{Provider: domain.ProviderOllama, OllamaEndpoint: DefaultOllamaEndpoint, OllamaModel: "llama3:latest"}, false},
		{"ollama no model", domain.Settings{Provider: domain.ProviderOllama, OllamaEndpoint: DefaultOllamaEndpoint}, true},
		{"unknown", domain.Settings{Provider: "bard"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSettings(tt.s)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateSettings() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	original := Defaults()
	original.Settings.Provider = domain.ProviderOllama
	original.Settings.OllamaModel = "mistral:7b"

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Settings.Provider != domain.ProviderOllama {
		t.Fatalf("expected ollama, got %q", loaded.Settings.Provider)
	}
	if loaded.Settings.OllamaModel != "mistral:7b" {
		t.Fatalf("expected mistral:7b, got %q", loaded.Settings.OllamaModel)
	}
}

func TestLoadSave_YAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	original := Defaults()
	original.Settings.OpenAIAPIKey = "sk-yaml-test"
	original.Gateway.Port = 9999

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		t.Fatalf("expected YAML output, got JSON:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Settings.OpenAIAPIKey != "sk-yaml-test" || loaded.Gateway.Port != 9999 {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"settings": {"provider": "openai", "openaiApiKey": "sk-1"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.General.RequestTimeoutSeconds != 30 || cfg.History.MaxEntries != 50 {
		t.Fatalf("defaults lost: %+v", cfg.General)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"general": {
			"requestTimeoutSeconds": 0
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for requestTimeoutSeconds=0")
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_ASKRELAY_GEMINI_KEY", "AIza-from-env-0123456789")

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"settings": {
			"provider": "gemini",
			"geminiApiKey": "${TEST_ASKRELAY_GEMINI_KEY}",
			"ollamaEndpoint": "${TEST_ASKRELAY_UNSET:-http://127.0.0.1:11434}"
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Settings.GeminiAPIKey != "AIza-from-env-0123456789" {
		t.Fatalf("expected key from env, got %q", cfg.Settings.GeminiAPIKey)
	}
	if cfg.Settings.OllamaEndpoint != "http://127.0.0.1:11434" {
		t.Fatalf("expected default endpoint, got %q", cfg.Settings.OllamaEndpoint)
	}
}

// --- Providers ---

func TestLoad_NormalizesProviderCase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"settings":{"provider":" OpenAI ","openaiApiKey":"sk-x"}}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Settings.Provider != domain.ProviderOpenAI {
		t.Fatalf("expected provider %q, got %q", domain.ProviderOpenAI, cfg.Settings.Provider)
	}

	s, err := NewFileProvider(path).Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Provider != domain.ProviderOpenAI {
		t.Fatalf("file provider returned %q", s.Provider)
	}
}

func TestSave_WritesCanonicalProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Defaults()
	if err := SetByPath(cfg, "settings.provider", "Ollama"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"provider": "ollama"`) {
		t.Fatalf("expected canonical provider in file, got:\n%s", raw)
	}
}

func TestValidateSettings_MixedCaseProvider(t *testing.T) {
	s := domain.Settings{Provider: "OpenAI", OpenAIAPIKey: "sk-x"}
	if err := ValidateSettings(s); err != nil {
		t.Fatalf("expected mixed-case provider to validate, got: %v", err)
	}
}

func TestFileProvider_RereadsOnEveryGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Defaults()
	cfg.Settings.Provider = domain.ProviderGemini
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	p := NewFileProvider(path)
	s, err := p.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Provider != domain.ProviderGemini {
		t.Fatalf("expected gemini, got %q", s.Provider)
	}

	cfg.Settings.Provider = domain.ProviderOllama
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	s, err = p.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Provider != domain.ProviderOllama {
		t.Fatalf("edit not picked up: got %q", s.Provider)
	}
}

func TestFileProvider_MissingFileReturnsDefaults(t *testing.T) {
	p := NewFileProvider(filepath.Join(t.TempDir(), "absent.json"))
	s, err := p.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Provider != domain.ProviderGemini || s.OllamaEndpoint != DefaultOllamaEndpoint || s.OllamaModel != DefaultOllamaModel {
		t.Fatalf("unexpected defaults: %+v", s)
	}
}

func TestFileProvider_SetPreservesOtherSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Defaults()
	cfg.Gateway.Port = 9100
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	p := NewFileProvider(path)
	if err := p.Set(domain.Settings{Provider: domain.ProviderOpenAI, OpenAIAPIKey: "sk-new"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Gateway.Port != 9100 {
		t.Fatalf("gateway section clobbered: %+v", loaded.Gateway)
	}
	if loaded.Settings.OpenAIAPIKey != "sk-new" {
		t.Fatalf("settings not saved: %+v", loaded.Settings)
	}
}

func TestStaticProvider_FillsOllamaDefaults(t *testing.T) {
	p := NewStaticProvider(domain.Settings{Provider: domain.ProviderOllama})
	s, _ := p.Get()
	if s.OllamaEndpoint != DefaultOllamaEndpoint || s.OllamaModel != DefaultOllamaModel {
		t.Fatalf("unexpected: %+v", s)
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "settings.provider")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "gemini" {
		t.Fatalf("expected 'gemini', got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	cfg := Defaults()
	_, err := GetByPath(cfg, "nonexistent.path")
	if err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestSetByPath_ValidPath(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "settings.provider", "ollama"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.Settings.Provider != domain.ProviderOllama {
		t.Fatalf("expected 'ollama', got %q", cfg.Settings.Provider)
	}
}

func TestSetByPath_BoolConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "settings.ollamaNativeStream", "true"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if !cfg.Settings.OllamaNativeStream {
		t.Fatal("expected settings.ollamaNativeStream=true")
	}
}

func TestSetByPath_IntConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "history.maxEntries", "20"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if cfg.History.MaxEntries != 20 {
		t.Fatalf("expected 20, got %d", cfg.History.MaxEntries)
	}
}

func TestSetByPath_UnknownPath(t *testing.T) {
	cfg := Defaults()
	for _, path := range []string{"settings.provder", "nonexistent", "gateway.port.extra", ""} {
		if err := SetByPath(cfg, path, "ollama"); err == nil {
			t.Errorf("expected error for path %q", path)
		}
	}
	if cfg.Settings.Provider != domain.ProviderGemini {
		t.Fatalf("failed set changed provider to %q", cfg.Settings.Provider)
	}
}

func TestSetByPath_DigitsIntoStringField(t *testing.T) {
	cfg := Defaults()
	key := "12345678901234567890"
	if err := SetByPath(cfg, "settings.geminiApiKey", key); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.Settings.GeminiAPIKey != key {
		t.Fatalf("expected %q, got %q", key, cfg.Settings.GeminiAPIKey)
	}
}

func TestSetByPath_RejectsBadValueType(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "gateway.port", "eighty"); err == nil {
		t.Fatal("expected error for non-integer port")
	}
	if err := SetByPath(cfg, "settings.ollamaNativeStream", "maybe"); err == nil {
		t.Fatal("expected error for non-bool value")
	}
	if cfg.Gateway.Port != 8765 {
		t.Fatalf("port changed to %d", cfg.Gateway.Port)
	}
}

func TestSetByPath_SectionRejected(t *testing.T) {
	if err := SetByPath(Defaults(), "gateway", "x"); err == nil {
		t.Fatal("expected error when setting a whole section")
	}
}

func TestSetByPath_OmittedField(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "general.logFile", "/tmp/askrelay.log"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.General.LogFile != "/tmp/askrelay.log" {
		t.Fatalf("unexpected logFile %q", cfg.General.LogFile)
	}
}

// --- Sanitize ---

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Settings.GeminiAPIKey = "AIzaSyA-0123456789abcdef"
	cfg.Settings.OpenAIAPIKey = "sk-1234567890abcdefghijklmnop"

	sanitized := Sanitize(cfg)

	if sanitized.Settings.GeminiAPIKey == cfg.Settings.GeminiAPIKey {
		t.Fatal("gemini key should be masked")
	}
	if sanitized.Settings.OpenAIAPIKey != "sk-1****mnop" {
		t.Fatalf("unexpected mask: %q", sanitized.Settings.OpenAIAPIKey)
	}
	if cfg.Settings.OpenAIAPIKey != "sk-1234567890abcdefghijklmnop" {
		t.Fatal("original config should not be modified")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Settings.OpenAIAPIKey = "short"
	if got := Sanitize(cfg).Settings.OpenAIAPIKey; got != "***" {
		t.Fatalf("short secret should be '***', got %q", got)
	}
}

// --- ListPaths ---

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	paths := ListPaths(Defaults())
	for _, expected := range []string{"general.logLevel", "general.logFile", "settings.provider", "settings.ollamaNativeStream", "gateway.port", "gateway.url", "history.maxEntries"} {
		if _, ok := paths[expected]; !ok {
			t.Errorf("missing expected path: %s", expected)
		}
	}
	if paths["gateway.port"] != 8765 {
		t.Errorf("expected gateway.port 8765, got %v (%T)", paths["gateway.port"], paths["gateway.port"])
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-abc123")
	result := ExpandEnvVars(`{"apiKey": "${TEST_API_KEY}"}`)
	expected := `{"apiKey": "sk-abc123"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR_12345")
	result := ExpandEnvVars(`{"port": "${NONEXISTENT_VAR_12345:-8080}"}`)
	expected := `{"port": "8080"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")
	result := ExpandEnvVars(`"${TOTALLY_UNSET_VAR_XYZ}"`)
	expected := `"${TOTALLY_UNSET_VAR_XYZ}"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DollarSignWithoutBraces(t *testing.T) {
	input := `"$HOME is not substituted"`
	if result := ExpandEnvVars(input); result != input {
		t.Fatalf("expected no change for bare $VAR, got %q", result)
	}
}

// --- Gateway ---

func TestGatewayEndpoint(t *testing.T) {
	g := GatewayConfig{Host: "0.0.0.0", Port: 8765, Path: "/ws"}
	if got := g.Endpoint(); got != "ws://127.0.0.1:8765/ws" {
		t.Fatalf("unexpected endpoint %q", got)
	}
	g.URL = "ws://relay.lan:9000/ws"
	if got := g.Endpoint(); got != "ws://relay.lan:9000/ws" {
		t.Fatalf("explicit url ignored: %q", got)
	}
}
