package main

import (
	"context"
	"time"

	"askrelay/internal/client"
	"askrelay/internal/config"
	"askrelay/internal/gateway"
	"askrelay/internal/history"
	"askrelay/internal/provider"
)

// session wires an Orchestrator to either an in-process gateway or a remote
// one, plus the history store.
type session struct {
	orch    *client.Orchestrator
	history *history.Store
	remote  *client.Remote
	gw      *gateway.Gateway
	cancel  context.CancelFunc
}

func openHistory(cfg *config.Config) (*history.Store, error) {
	return history.Open(history.Config{
		Path:       cfg.History.DBPath,
		MaxEntries: cfg.History.MaxEntries,
		Logger:     logger,
	})
}

func newSession(ctx context.Context, cfg *config.Config, remote bool) (*session, error) {
	store, err := openHistory(cfg)
	if err != nil {
		return nil, err
	}

	s := &session{history: store}
	var transport client.Transport
	if remote {
		r, err := client.Dial(ctx, cfg.Gateway.Endpoint(), logger)
		if err != nil {
			store.Close()
			return nil, err
		}
		s.remote = r
		transport = r
	} else {
		gwCtx, cancel := context.WithCancel(context.Background())
		dispatcher := provider.NewDispatcher(provider.DispatcherConfig{
			Settings: config.NewFileProvider(resolveConfigPath()),
			Options:  providerOptions(cfg.General, logger),
			Limiter:  rateLimiter(cfg.General),
			Logger:   logger,
		})
		s.gw = gateway.New(gwCtx, gateway.Config{Dispatcher: dispatcher, Logger: logger})
		s.cancel = cancel
		transport = client.NewLocal(s.gw)
	}

	s.orch = client.New(client.Config{
		Transport: transport,
		History:   store,
		Timeout:   time.Duration(cfg.General.ClientTimeoutSeconds) * time.Second,
		Logger:    logger,
	})
	return s, nil
}

func (s *session) Close() {
	if s.remote != nil {
		s.remote.Close()
	}
	if s.gw != nil {
		s.cancel()
		s.gw.Wait()
		s.gw.Hub().Close()
	}
	s.history.Close()
}
