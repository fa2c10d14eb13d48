// Package client is the UI side of the relay: it validates questions, sends
// them to a gateway, renders chunks and records successful answers.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"askrelay/internal/domain"
)

// MaxQuestionLength is the longest accepted question, in characters.
const MaxQuestionLength = 5000

const defaultClientTimeout = 35 * time.Second

// Listener receives frames pushed by the gateway.
type Listener interface {
	Frames() <-chan domain.Frame
	Close()
}

// Transport carries requests to a gateway.
type Transport interface {
	// Subscribe opens a chunk listener. Callers must Close it.
	Subscribe() (Listener, error)
	// Request sends req and waits for its final response.
	Request(ctx context.Context, req domain.AskRequest) (domain.Response, error)
}

// Orchestrator runs one question at a time from the user's side.
type Orchestrator struct {
	transport Transport
	history   domain.History
	timeout   time.Duration
	logger    *slog.Logger
}

type Config struct {
	Transport Transport
	History   domain.History // optional
	Timeout   time.Duration  // caller-side budget; keep >= the adapter timeout
	Logger    *slog.Logger
}

func New(cfg Config) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultClientTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		transport: cfg.Transport,
		history:   cfg.History,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
	}
}

// ValidateQuestion trims q and checks its length.
func ValidateQuestion(q string) (string, error) {
	q = strings.TrimSpace(q)
	if n := utf8.RuneCountInString(q); n == 0 || n > MaxQuestionLength {
		return "", &domain.Error{
			Kind:    domain.KindValidation,
			Message: fmt.Sprintf("Please enter a valid question (1-%d characters)", MaxQuestionLength),
		}
	}
	return q, nil
}

type requestOutcome struct {
	resp domain.Response
	err  error
}

// Ask sends question and returns the final answer. Every chunk for this
// request is passed to render as it arrives; render may be nil. On success
// the exchange is appended to history.
func (o *Orchestrator) Ask(ctx context.Context, question string, render func(chunk string)) (string, error) {
	q, err := ValidateQuestion(question)
	if err != nil {
		return "", err
	}
	if render == nil {
		render = func(string) {}
	}

	req := domain.AskRequest{Type: domain.MessageAsk, ID: uuid.NewString(), Prompt: q}
	log := o.logger.With("id", req.ID)

	listener, err := o.transport.Subscribe()
	if err != nil {
		return "", fmt.Errorf("open listener: %w", err)
	}
	defer listener.Close()

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcome := make(chan requestOutcome, 1)
	go func() {
		resp, err := o.transport.Request(reqCtx, req)
		outcome <- requestOutcome{resp: resp, err: err}
	}()

	timer := time.NewTimer(o.timeout)
	defer timer.Stop()

	handle := func(f domain.Frame) {
		if c, ok := f.(domain.ChunkEvent); ok && c.ID == req.ID {
			render(c.Chunk)
		}
	}

	for {
		select {
		case f := <-listener.Frames():
			handle(f)

		case out := <-outcome:
			// Chunks queued ahead of the result belong before it.
			for drained := false; !drained; {
				select {
				case f := <-listener.Frames():
					handle(f)
				default:
					drained = true
				}
			}
			return o.finish(ctx, q, out, log)

		case <-timer.C:
			log.Warn("request timed out", "timeout", o.timeout)
			return "", &domain.Error{
				Kind:    domain.KindTimeout,
				Message: fmt.Sprintf("Request timeout after %ds. The gateway may not be running.", int(o.timeout.Seconds())),
			}

		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (o *Orchestrator) finish(ctx context.Context, question string, out requestOutcome, log *slog.Logger) (string, error) {
	if out.err != nil {
		log.Warn("request failed", "err", out.err)
		return "", out.err
	}
	if out.resp.Type == "" && !out.resp.OK && out.resp.Error == "" {
		return "", errors.New("No response from gateway")
	}
	if !out.resp.OK {
		msg := out.resp.Error
		if msg == "" {
			msg = "Unknown error occurred"
		}
		return "", errors.New(msg)
	}

	if o.history != nil {
		if err := o.history.Append(ctx, question, out.resp.Data); err != nil {
			log.Warn("history append failed", "err", err)
		}
	}
	return out.resp.Data, nil
}
