package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"askrelay/internal/domain"
)

const (
	ollamaDefaultBase  = "http://localhost:11434"
	ollamaDefaultModel = "llama3:latest"
)

// Ollama calls a local Ollama server's /api/generate endpoint.
type Ollama struct {
	apiBase      string
	model        string
	nativeStream bool
	opts         Options
	logger       *slog.Logger
}

type OllamaConfig struct {
	APIBase string
	Model   string
	// NativeStream asks Ollama for NDJSON and forwards fragments as they
	// arrive instead of chunking the finished text locally.
	NativeStream bool
	Options      Options
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.APIBase == "" {
		cfg.APIBase = ollamaDefaultBase
	}
	if cfg.Model == "" {
		cfg.Model = ollamaDefaultModel
	}
	opts := cfg.Options.withDefaults()
	return &Ollama{
		apiBase:      strings.TrimRight(cfg.APIBase, "/"),
		model:        cfg.Model,
		nativeStream: cfg.NativeStream,
		opts:         opts,
		logger:       opts.Logger,
	}
}

func (o *Ollama) Name() string { return string(domain.ProviderOllama) }

func (o *Ollama) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.apiBase+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.opts.Client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not reachable: %w", err)
	}
	defer resp.Body.Close()
	if !succeeded(resp.StatusCode) {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

// Models lists the models installed on the server (GET /api/tags).
func (o *Ollama) Models(ctx context.Context) ([]string, error) {
	status, body, err := fetch(ctx, o.opts.Client, o.opts.Timeout, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, o.apiBase+"/api/tags", nil)
	})
	if err != nil {
		return nil, fmt.Errorf("ollama not reachable: %w", err)
	}
	if !succeeded(status) {
		return nil, fmt.Errorf("ollama returned status %d", status)
	}
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// HasModel reports whether the configured model is installed. A model
// named without a tag matches its ":latest" entry.
func (o *Ollama) HasModel(ctx context.Context) (bool, error) {
	models, err := o.Models(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m == o.model || m == o.model+":latest" {
			return true, nil
		}
	}
	return false, nil
}

// PullHint is the user-facing advice for a model that is not installed.
func (o *Ollama) PullHint() string {
	return fmt.Sprintf("Model %q not found. Did you pull it? Try: ollama pull %s", o.model, o.model)
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// ollamaResponse is decoded loosely so a non-string "response" can be told
// apart from a missing one.
type ollamaResponse struct {
	Response json.RawMessage `json:"response"`
	Done     bool            `json:"done"`
	Error    string          `json:"error,omitempty"`
}

func (r ollamaResponse) text() (string, bool) {
	if len(r.Response) == 0 || r.Response[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(r.Response, &s); err != nil {
		return "", false
	}
	return s, true
}

func (o *Ollama) Ask(ctx context.Context, prompt string, chunks chan<- string) (string, error) {
	streaming := o.nativeStream && chunks != nil
	body, err := json.Marshal(ollamaRequest{Model: o.model, Prompt: prompt, Stream: streaming})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	if streaming {
		text, err := o.stream(ctx, body, chunks)
		if err != nil {
			return "", err
		}
		o.logger.Debug("ollama stream finished", "model", o.model, "chars", len(text), "latency", time.Since(start))
		return text, nil
	}

	text, err := doWithRetry(ctx, o.opts.Retries, o.logger, domain.ProviderOllama, func() (string, error) {
		return o.call(ctx, body)
	})
	if err != nil {
		return "", err
	}
	o.logger.Debug("ollama response", "model", o.model, "chars", len(text), "latency", time.Since(start))

	emitChunks(ctx, chunks, text, o.opts.ChunkDelay)
	return text, nil
}

func (o *Ollama) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiBase+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (o *Ollama) connectMessage() string {
	return fmt.Sprintf("Cannot connect to Ollama at %s. Is it running?", o.apiBase)
}

func (o *Ollama) statusError(status int) error {
	if status == http.StatusNotFound {
		return statusError(domain.ProviderOllama, status, o.PullHint())
	}
	return statusError(domain.ProviderOllama, status, fmt.Sprintf("Ollama returned HTTP %d", status))
}

func (o *Ollama) call(ctx context.Context, body []byte) (string, error) {
	status, respBody, err := fetch(ctx, o.opts.Client, o.opts.Timeout, func(ctx context.Context) (*http.Request, error) {
		return o.newRequest(ctx, body)
	})
	if err != nil {
		return "", callError(domain.ProviderOllama, err, o.opts.Timeout, o.connectMessage())
	}
	if !succeeded(status) {
		return "", o.statusError(status)
	}

	var or ollamaResponse
	if err := json.Unmarshal(respBody, &or); err != nil {
		return "", shapeError(domain.ProviderOllama, "Invalid response format from Ollama", err)
	}
	text, ok := or.text()
	if !ok {
		return "", shapeError(domain.ProviderOllama, "Invalid response format from Ollama", nil)
	}
	return text, nil
}

// stream reads the NDJSON body line by line, forwarding each fragment. The
// timeout covers the whole exchange, not just the first byte.
func (o *Ollama) stream(ctx context.Context, body []byte, chunks chan<- string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	fail := func(err error) error {
		if ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			err = errTimedOut
		}
		return callError(domain.ProviderOllama, err, o.opts.Timeout, o.connectMessage())
	}

	req, err := o.newRequest(reqCtx, body)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	resp, err := o.opts.Client.Do(req)
	if err != nil {
		return "", fail(err)
	}
	defer resp.Body.Close()

	if !succeeded(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", o.statusError(resp.StatusCode)
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frag ollamaResponse
		if err := json.Unmarshal(line, &frag); err != nil {
			return "", shapeError(domain.ProviderOllama, "Invalid response format from Ollama", err)
		}
		if frag.Error != "" {
			return "", shapeError(domain.ProviderOllama, "Ollama error: "+frag.Error, nil)
		}
		text, ok := frag.text()
		if !ok {
			return "", shapeError(domain.ProviderOllama, "Invalid response format from Ollama", nil)
		}
		if text != "" {
			full.WriteString(text)
			select {
			case chunks <- text:
			case <-reqCtx.Done():
				return "", fail(reqCtx.Err())
			}
		}
		if frag.Done {
			return full.String(), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fail(err)
	}
	if full.Len() == 0 {
		return "", shapeError(domain.ProviderOllama, "Invalid response format from Ollama", nil)
	}
	return full.String(), nil
}
