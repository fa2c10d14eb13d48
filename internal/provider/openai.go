package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"askrelay/internal/domain"
)

const (
	openaiDefaultBase  = "https://api.openai.com/v1"
	openaiDefaultModel = "gpt-3.5-turbo"
)

// OpenAI calls the chat completions endpoint with a single user message.
type OpenAI struct {
	apiKey  string
	apiBase string
	model   string
	opts    Options
	logger  *slog.Logger
}

type OpenAIConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Options Options
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.APIBase == "" {
		cfg.APIBase = openaiDefaultBase
	}
	if cfg.Model == "" {
		cfg.Model = openaiDefaultModel
	}
	opts := cfg.Options.withDefaults()
	return &OpenAI{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		model:   cfg.Model,
		opts:    opts,
		logger:  opts.Logger,
	}
}

func (o *OpenAI) Name() string { return string(domain.ProviderOpenAI) }

func (o *OpenAI) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.opts.Client.Do(req)
	if err != nil {
		return fmt.Errorf("openai not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("openai: invalid API key")
	}
	if !succeeded(resp.StatusCode) {
		return fmt.Errorf("openai returned %d", resp.StatusCode)
	}
	return nil
}

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens"`
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) Ask(ctx context.Context, prompt string, chunks chan<- string) (string, error) {
	body, err := json.Marshal(oaiRequest{
		Model:       o.model,
		Messages:    []oaiMessage{{Role: "user", Content: prompt}},
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	text, err := doWithRetry(ctx, o.opts.Retries, o.logger, domain.ProviderOpenAI, func() (string, error) {
		return o.call(ctx, body)
	})
	if err != nil {
		return "", err
	}
	o.logger.Debug("openai response", "model", o.model, "chars", len(text), "latency", time.Since(start))

	emitChunks(ctx, chunks, text, o.opts.ChunkDelay)
	return text, nil
}

func (o *OpenAI) call(ctx context.Context, body []byte) (string, error) {
	status, respBody, err := fetch(ctx, o.opts.Client, o.opts.Timeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiBase+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
		return req, nil
	})
	if err != nil {
		return "", callError(domain.ProviderOpenAI, err, o.opts.Timeout,
			fmt.Sprintf("Network error contacting OpenAI: %v", err))
	}

	if !succeeded(status) {
		return "", statusError(domain.ProviderOpenAI, status, openaiStatusMessage(status, string(respBody)))
	}

	var or oaiResponse
	if err := json.Unmarshal(respBody, &or); err != nil {
		return "", shapeError(domain.ProviderOpenAI, "Invalid response from OpenAI: no choices", err)
	}
	if len(or.Choices) == 0 {
		return "", shapeError(domain.ProviderOpenAI, "Invalid response from OpenAI: no choices", nil)
	}
	content := or.Choices[0].Message.Content
	if content == "" {
		return "", shapeError(domain.ProviderOpenAI, "Invalid response from OpenAI: empty message", nil)
	}
	return content, nil
}

func openaiStatusMessage(status int, body string) string {
	switch {
	case status == http.StatusUnauthorized:
		return "Invalid OpenAI API key. Check your settings."
	case status == http.StatusTooManyRequests:
		return "OpenAI rate limit or quota exceeded. Check your plan and billing."
	case status >= 500 && status <= 599:
		return "OpenAI server error. Try again later."
	default:
		return fmt.Sprintf("HTTP %d: %s", status, body)
	}
}
