package provider

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"askrelay/internal/domain"
)

// retryBackoff is the fixed pause between attempts.
var retryBackoff = time.Second

// retryable reports whether a failed attempt may be re-issued: transport
// failures and 5xx statuses only. Timeouts, 404 and every other 4xx are final.
func retryable(err error) bool {
	e, ok := domain.AsError(err)
	if !ok {
		return false
	}
	switch e.Kind {
	case domain.KindTransport:
		return true
	case domain.KindUpstreamStatus:
		return e.Status >= http.StatusInternalServerError
	default:
		return false
	}
}

// doWithRetry runs call once plus up to retries more times while the
// failure is retryable.
func doWithRetry(ctx context.Context, retries int, logger *slog.Logger, provider domain.ProviderKind, call func() (string, error)) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			logger.Warn("retrying request", "provider", provider, "attempt", attempt+1, "backoff", retryBackoff)
			select {
			case <-ctx.Done():
				return "", lastErr
			case <-time.After(retryBackoff):
			}
		}

		text, err := call()
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable(err) {
			return "", err
		}
		if attempt < retries {
			logger.Warn("request failed, will retry", "provider", provider, "error", err)
		}
	}

	return "", lastErr
}
