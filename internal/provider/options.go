package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"askrelay/internal/domain"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultChunkDelay     = 25 * time.Millisecond
)

// Options are the knobs shared by every adapter.
type Options struct {
	Timeout    time.Duration // per network call; 0 means 30s
	ChunkDelay time.Duration // pause between simulated chunks; negative disables
	Retries    int           // extra attempts for transport and 5xx failures
	Client     *http.Client
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultRequestTimeout
	}
	if o.ChunkDelay == 0 {
		o.ChunkDelay = defaultChunkDelay
	}
	if o.ChunkDelay < 0 {
		o.ChunkDelay = 0
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Client == nil {
		o.Client = SharedHTTPClient()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// callError classifies a failure that happened before any HTTP status was
// received. transportMsg is the user-facing text for network failures.
func callError(p domain.ProviderKind, err error, timeout time.Duration, transportMsg string) error {
	switch {
	case errors.Is(err, errTimedOut):
		return &domain.Error{
			Kind:     domain.KindTimeout,
			Provider: p,
			Message:  fmt.Sprintf("%s request timed out after %ds", p.Label(), seconds(timeout)),
			Cause:    err,
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &domain.Error{
			Kind:     domain.KindCanceled,
			Provider: p,
			Message:  fmt.Sprintf("%s request canceled", p.Label()),
			Cause:    err,
		}
	default:
		return &domain.Error{Kind: domain.KindTransport, Provider: p, Message: transportMsg, Cause: err}
	}
}

func statusError(p domain.ProviderKind, status int, msg string) error {
	return &domain.Error{Kind: domain.KindUpstreamStatus, Provider: p, Status: status, Message: msg}
}

func shapeError(p domain.ProviderKind, msg string, cause error) error {
	return &domain.Error{Kind: domain.KindUpstreamShape, Provider: p, Message: msg, Cause: cause}
}
