// Package gateway accepts ask requests, dispatches them to the configured
// backend and relays chunks and the final result back to clients.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"askrelay/internal/bus"
	"askrelay/internal/domain"
	"askrelay/internal/metrics"
)

// Dispatcher runs one prompt against the active backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, prompt string, chunks chan<- string) domain.Result
}

// Gateway validates inbound messages and serves each accepted request on its
// own goroutine. Requests run under the gateway's lifetime context, so a
// client going away does not stop them.
type Gateway struct {
	ctx        context.Context
	dispatcher Dispatcher
	hub        *bus.Hub
	logger     *slog.Logger
	wg         sync.WaitGroup
}

type Config struct {
	Dispatcher Dispatcher
	Hub        *bus.Hub
	Logger     *slog.Logger
}

// New creates a gateway whose requests live until ctx ends.
func New(ctx context.Context, cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Hub == nil {
		cfg.Hub = bus.NewHub(bus.HubConfig{Logger: cfg.Logger})
	}
	return &Gateway{
		ctx:        ctx,
		dispatcher: cfg.Dispatcher,
		hub:        cfg.Hub,
		logger:     cfg.Logger,
	}
}

// Hub is where stream-chunk frames are published.
func (g *Gateway) Hub() *bus.Hub { return g.hub }

// Handle processes one raw inbound message. A malformed message is answered
// through reply before Handle returns, and Handle reports false. Otherwise
// Handle returns true at once and reply is called exactly once later, after
// every chunk for the request has been published.
func (g *Gateway) Handle(raw []byte, reply func(domain.Response)) bool {
	req, err := domain.DecodeAsk(raw)
	if err != nil {
		metrics.RejectedTotal.Inc()
		var env domain.Envelope
		_ = json.Unmarshal(raw, &env)
		g.logger.Debug("rejected message", "id", env.ID, "bytes", len(raw))
		reply(domain.Response{Type: domain.MessageResult, ID: env.ID, OK: false, Error: domain.MsgInvalidFormat})
		return false
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	g.wg.Add(1)
	go g.serve(req, reply)
	return true
}

// Wait blocks until every accepted request has replied.
func (g *Gateway) Wait() { g.wg.Wait() }

func (g *Gateway) serve(req domain.AskRequest, reply func(domain.Response)) {
	defer g.wg.Done()

	log := g.logger.With("id", req.ID)
	log.Debug("request accepted", "prompt_chars", len(req.Prompt))

	chunks := make(chan string, 16)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		n := 0
		for c := range chunks {
			g.hub.Publish(domain.NewChunk(req.ID, c))
			metrics.ChunksForwarded.Inc()
			n++
		}
		log.Debug("chunks forwarded", "count", n)
	}()

	result := g.dispatch(req.Prompt, chunks)
	close(chunks)
	<-forwarded

	reply(result.Response(req.ID))
}

func (g *Gateway) dispatch(prompt string, chunks chan<- string) (result domain.Result) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("dispatch panic", "panic", r)
			result = domain.Failure(fmt.Errorf("Unexpected error: %v", r))
		}
	}()
	return g.dispatcher.Dispatch(g.ctx, prompt, chunks)
}
