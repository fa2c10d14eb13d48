package domain

import (
	"context"
	"fmt"
	"strings"
)

// ProviderKind names one of the supported LLM backends.
type ProviderKind string

const (
	ProviderGemini ProviderKind = "gemini"
	ProviderOpenAI ProviderKind = "openai"
	ProviderOllama ProviderKind = "ollama"
)

// ProviderKinds lists every backend in the order they are offered to users.
var ProviderKinds = []ProviderKind{ProviderGemini, ProviderOpenAI, ProviderOllama}

// ParseProviderKind normalizes user input ("Gemini", " ollama ") to a ProviderKind.
func ParseProviderKind(s string) (ProviderKind, error) {
	k := ProviderKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ProviderKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q (want one of: gemini, openai, ollama)", s)
}

// Label is the human-facing provider name used in error messages.
func (k ProviderKind) Label() string {
	switch k {
	case ProviderGemini:
		return "Gemini"
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderOllama:
		return "Ollama"
	default:
		return string(k)
	}
}

// Settings is the configuration record written by the settings form and read
// by the dispatcher once per request.
type Settings struct {
	Provider           ProviderKind `json:"provider" yaml:"provider"`
	GeminiAPIKey       string       `json:"geminiApiKey" yaml:"geminiApiKey"`
	OpenAIAPIKey       string       `json:"openaiApiKey" yaml:"openaiApiKey"`
	OllamaEndpoint     string       `json:"ollamaEndpoint" yaml:"ollamaEndpoint"`
	OllamaModel        string       `json:"ollamaModel" yaml:"ollamaModel"`
	OllamaNativeStream bool         `json:"ollamaNativeStream,omitempty" yaml:"ollamaNativeStream,omitempty"`
}

// Credential returns the API key relevant to the active provider.
// Ollama has no credential and always returns "".
func (s Settings) Credential() string {
	switch s.Provider {
	case ProviderGemini:
		return s.GeminiAPIKey
	case ProviderOpenAI:
		return s.OpenAIAPIKey
	default:
		return ""
	}
}

// SettingsProvider supplies the current configuration record. Implementations
// must return a fresh snapshot on every call; the core never writes settings.
type SettingsProvider interface {
	Get() (Settings, error)
	Set(Settings) error
}

// Adapter translates one backend's wire protocol into plain text.
//
// Ask returns the complete response text. When chunks is non-nil the adapter
// also sends the text on it in upstream order before returning. Ask never
// closes chunks and never sends on it after returning.
type Adapter interface {
	Name() string
	Ask(ctx context.Context, prompt string, chunks chan<- string) (string, error)
	Healthy(ctx context.Context) error
}
