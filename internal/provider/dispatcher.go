package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"askrelay/internal/domain"
	"askrelay/internal/metrics"
)

// Constructor builds an adapter from one configuration snapshot.
type Constructor func(s domain.Settings, opts Options) domain.Adapter

// constructors is the single table of supported backends. Adding a backend
// means one adapter file and one entry here.
var constructors = map[domain.ProviderKind]Constructor{
	domain.ProviderGemini: func(s domain.Settings, opts Options) domain.Adapter {
		return NewGemini(GeminiConfig{APIKey: s.GeminiAPIKey, Options: opts})
	},
	domain.ProviderOpenAI: func(s domain.Settings, opts Options) domain.Adapter {
		return NewOpenAI(OpenAIConfig{APIKey: s.OpenAIAPIKey, Options: opts})
	},
	domain.ProviderOllama: func(s domain.Settings, opts Options) domain.Adapter {
		return NewOllama(OllamaConfig{
			APIBase:      s.OllamaEndpoint,
			Model:        s.OllamaModel,
			NativeStream: s.OllamaNativeStream,
			Options:      opts,
		})
	},
}

// requiresCredential lists the backends that refuse to run without an API key.
var requiresCredential = map[domain.ProviderKind]bool{
	domain.ProviderGemini: true,
	domain.ProviderOpenAI: true,
}

// Dispatcher routes each prompt to the adapter selected by the current
// settings.
type Dispatcher struct {
	settings     domain.SettingsProvider
	opts         Options
	constructors map[domain.ProviderKind]Constructor
	limiter      *RateLimiter
	logger       *slog.Logger
}

type DispatcherConfig struct {
	Settings domain.SettingsProvider
	Options  Options
	Limiter  *RateLimiter // optional; nil disables throttling
	Logger   *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Options.Logger == nil {
		cfg.Options.Logger = cfg.Logger
	}
	table := make(map[domain.ProviderKind]Constructor, len(constructors))
	for k, c := range constructors {
		table[k] = c
	}
	return &Dispatcher{
		settings:     cfg.Settings,
		opts:         cfg.Options.withDefaults(),
		constructors: table,
		limiter:      cfg.Limiter,
		logger:       cfg.Logger,
	}
}

// RegisterConstructor adds or replaces the adapter for kind. Call it before
// the dispatcher is shared between goroutines.
func (d *Dispatcher) RegisterConstructor(kind domain.ProviderKind, ctor Constructor) {
	d.constructors[kind] = ctor
}

// snapshot reads the settings with the provider name in canonical form, so a
// hand-written "OpenAI" still finds its constructor.
func (d *Dispatcher) snapshot() (domain.Settings, error) {
	s, err := d.settings.Get()
	if err != nil {
		return s, err
	}
	if k, perr := domain.ParseProviderKind(string(s.Provider)); perr == nil {
		s.Provider = k
	}
	return s, nil
}

// Adapter builds the adapter for the current settings without calling it.
func (d *Dispatcher) Adapter() (domain.Adapter, domain.Settings, error) {
	s, err := d.snapshot()
	if err != nil {
		return nil, s, &domain.Error{
			Kind:    domain.KindConfig,
			Message: fmt.Sprintf("Cannot read settings: %v", err),
			Cause:   err,
		}
	}
	ctor, ok := d.constructors[s.Provider]
	if !ok {
		return nil, s, &domain.Error{
			Kind:     domain.KindConfig,
			Provider: s.Provider,
			Message:  fmt.Sprintf("Unknown provider %q. Open settings to choose one.", s.Provider),
		}
	}
	return ctor(s, d.opts), s, nil
}

// Dispatch reads a fresh settings snapshot, runs the matching adapter and
// returns its outcome as a Result. chunks may be nil.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt string, chunks chan<- string) domain.Result {
	s, err := d.snapshot()
	if err != nil {
		return d.fail("", &domain.Error{
			Kind:    domain.KindConfig,
			Message: fmt.Sprintf("Cannot read settings: %v", err),
			Cause:   err,
		})
	}

	if requiresCredential[s.Provider] && s.Credential() == "" {
		return d.fail(s.Provider, domain.NewError(domain.KindConfig, s.Provider,
			"%s API key not configured. Open settings to add it.", s.Provider.Label()))
	}

	ctor, ok := d.constructors[s.Provider]
	if !ok {
		return d.fail(s.Provider, domain.NewError(domain.KindConfig, s.Provider,
			"Unknown provider %q. Open settings to choose one.", s.Provider))
	}
	adapter := ctor(s, d.opts)

	// Waiting for a token counts against the request budget.
	wctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	err = d.limiter.Wait(wctx)
	cancel()
	if err != nil {
		return d.fail(s.Provider, &domain.Error{
			Kind:     domain.KindRateLimited,
			Provider: s.Provider,
			Message:  "Too many requests. Please wait a moment and try again.",
			Cause:    err,
		})
	}

	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	start := time.Now()
	text, err := adapter.Ask(ctx, prompt, chunks)
	elapsed := time.Since(start)
	metrics.UpstreamLatency(string(s.Provider)).Observe(elapsed.Seconds())

	if err != nil {
		d.logger.Warn("dispatch failed", "provider", s.Provider, "kind", domain.KindOf(err), "error", err, "latency", elapsed)
		return d.fail(s.Provider, err)
	}

	metrics.RequestsTotal(string(s.Provider), "ok").Inc()
	d.logger.Info("dispatch ok", "provider", s.Provider, "prompt_chars", len(prompt), "response_chars", len(text), "latency", elapsed)
	return domain.Success(text)
}

func (d *Dispatcher) fail(p domain.ProviderKind, err error) domain.Result {
	provider := string(p)
	if provider == "" {
		provider = "unknown"
	}
	metrics.RequestsTotal(provider, string(domain.KindOf(err))).Inc()
	if domain.IsKind(err, domain.KindConfig) {
		d.logger.Info("dispatch rejected", "provider", p, "error", err)
	}
	return domain.Failure(err)
}

// Healthy probes the backend selected by the current settings.
func (d *Dispatcher) Healthy(ctx context.Context) error {
	adapter, _, err := d.Adapter()
	if err != nil {
		return err
	}
	return adapter.Healthy(ctx)
}
