package client

import (
	"context"
	"encoding/json"
	"fmt"

	"askrelay/internal/domain"
	"askrelay/internal/gateway"
)

// Local talks to an in-process gateway.
type Local struct {
	gw *gateway.Gateway
}

func NewLocal(gw *gateway.Gateway) *Local {
	return &Local{gw: gw}
}

func (l *Local) Subscribe() (Listener, error) {
	return l.gw.Hub().Subscribe(256), nil
}

func (l *Local) Request(ctx context.Context, req domain.AskRequest) (domain.Response, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return domain.Response{}, fmt.Errorf("marshal request: %w", err)
	}
	done := make(chan domain.Response, 1)
	l.gw.Handle(raw, func(resp domain.Response) { done <- resp })

	select {
	case resp := <-done:
		return resp, nil
	case <-ctx.Done():
		return domain.Response{}, ctx.Err()
	}
}
