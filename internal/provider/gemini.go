package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"askrelay/internal/domain"
)

const (
	geminiDefaultBase  = "https://generativelanguage.googleapis.com"
	geminiDefaultModel = "gemini-2.0-flash"
)

// Gemini calls the Generative Language generateContent endpoint.
type Gemini struct {
	apiKey  string
	apiBase string
	model   string
	opts    Options
	logger  *slog.Logger
}

type GeminiConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Options Options
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.APIBase == "" {
		cfg.APIBase = geminiDefaultBase
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	opts := cfg.Options.withDefaults()
	return &Gemini{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		model:   cfg.Model,
		opts:    opts,
		logger:  opts.Logger,
	}
}

func (g *Gemini) Name() string { return string(domain.ProviderGemini) }

func (g *Gemini) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+"/v1beta/models?key="+url.QueryEscape(g.apiKey), nil)
	if err != nil {
		return err
	}
	resp, err := g.opts.Client.Do(req)
	if err != nil {
		return fmt.Errorf("gemini not reachable: %w", err)
	}
	defer resp.Body.Close()
	if !succeeded(resp.StatusCode) {
		return fmt.Errorf("gemini returned %d: %s", resp.StatusCode, geminiStatusMessage(resp.StatusCode, ""))
	}
	return nil
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// geminiResponse keeps text as a pointer so a part without "text" is told
// apart from an empty answer.
type geminiResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) endpoint() string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.apiBase, g.model, url.QueryEscape(g.apiKey))
}

func (g *Gemini) Ask(ctx context.Context, prompt string, chunks chan<- string) (string, error) {
	body, err := json.Marshal(geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	text, err := doWithRetry(ctx, g.opts.Retries, g.logger, domain.ProviderGemini, func() (string, error) {
		return g.call(ctx, body)
	})
	if err != nil {
		return "", err
	}
	g.logger.Debug("gemini response", "model", g.model, "chars", len(text), "latency", time.Since(start))

	emitChunks(ctx, chunks, text, g.opts.ChunkDelay)
	return text, nil
}

func (g *Gemini) call(ctx context.Context, body []byte) (string, error) {
	status, respBody, err := fetch(ctx, g.opts.Client, g.opts.Timeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", callError(domain.ProviderGemini, err, g.opts.Timeout,
			fmt.Sprintf("Network error contacting Gemini: %v", err))
	}

	if !succeeded(status) {
		return "", statusError(domain.ProviderGemini, status, geminiStatusMessage(status, string(respBody)))
	}

	var gr geminiResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return "", shapeError(domain.ProviderGemini, "Invalid response from Gemini: no content", err)
	}
	if len(gr.Candidates) == 0 || gr.Candidates[0].Content == nil || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", shapeError(domain.ProviderGemini, "Invalid response from Gemini: no content", nil)
	}
	text := gr.Candidates[0].Content.Parts[0].Text
	if text == nil {
		return "", shapeError(domain.ProviderGemini, "Invalid response from Gemini: no content", nil)
	}
	return *text, nil
}

func geminiStatusMessage(status int, body string) string {
	switch status {
	case http.StatusBadRequest:
		return "Invalid request. Check your API key format."
	case http.StatusUnauthorized:
		return "Invalid API key. Check your Gemini API key in settings."
	case http.StatusForbidden:
		return "Access denied. Make sure the Generative Language API is enabled for this key."
	case http.StatusNotFound:
		return "Model endpoint not found. Your API key may be invalid."
	case http.StatusTooManyRequests:
		return "Gemini rate limit exceeded: your API quota is used up. Try again later."
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return "Gemini server error. Try again later."
	default:
		return fmt.Sprintf("HTTP %d: %s", status, body)
	}
}
