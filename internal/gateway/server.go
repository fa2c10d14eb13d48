package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"askrelay/internal/domain"
	"askrelay/internal/metrics"
)

const (
	writeWait       = 10 * time.Second
	maxMessageBytes = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// ServerConfig configures the WebSocket front end.
type ServerConfig struct {
	Addr     string // listen address, e.g. 127.0.0.1:8765
	Path     string // WebSocket endpoint path (default: /ws)
	Gateway  *Gateway
	Settings domain.SettingsProvider // reported by /status; optional
	Logger   *slog.Logger
}

// Server exposes a Gateway over WebSocket plus /status and /metrics.
type Server struct {
	addr     string
	path     string
	gw       *Gateway
	settings domain.SettingsProvider
	logger   *slog.Logger
	started  time.Time
	server   *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // local relay; bind to loopback to restrict access
	},
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		addr:     cfg.Addr,
		path:     cfg.Path,
		gw:       cfg.Gateway,
		settings: cfg.Settings,
		logger:   cfg.Logger,
		started:  time.Now(),
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// Handler returns the HTTP routes served by the gateway.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleUpgrade)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", metrics.Collector.Handler())
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("gateway listening", "addr", s.addr, "path", s.path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("gateway shutting down")
		s.gw.Hub().Close()
		s.closeAllClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("gateway listen: %w", err)
	}
}

// Clients returns the number of connected WebSocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
	metrics.WSClients.Inc()

	log := s.logger.With("remote", r.RemoteAddr)
	log.Info("websocket client connected")

	sub := s.gw.Hub().Subscribe(256)
	writerDone := make(chan struct{})
	go s.writeLoop(conn, sub.Frames(), sub.Done(), writerDone, log)

	defer func() {
		sub.Close()
		<-writerDone
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		metrics.WSClients.Dec()
		conn.Close()
		log.Info("websocket client disconnected")
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read error", "err", err)
			}
			return
		}
		// Replies go through the subscription so they stay behind the
		// request's chunks. A reply for a client that has gone is dropped.
		s.gw.Handle(message, func(resp domain.Response) {
			if !sub.Send(resp) {
				log.Debug("result not delivered", "id", resp.ID)
			}
		})
	}
}

// writeLoop is the only goroutine that writes to conn.
func (s *Server) writeLoop(conn *websocket.Conn, frames <-chan domain.Frame, done <-chan struct{}, exited chan<- struct{}, log *slog.Logger) {
	defer close(exited)
	for {
		select {
		case f := <-frames:
			data, err := json.Marshal(f)
			if err != nil {
				log.Error("marshal frame", "err", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug("websocket write failed", "err", err)
				conn.Close() // unblocks the read loop
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) closeAllClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "gateway shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
}

type statusReport struct {
	Status        string `json:"status"`
	Provider      string `json:"provider,omitempty"`
	Clients       int    `json:"clients"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	Error         string `json:"error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report := statusReport{
		Status:        "ok",
		Clients:       s.Clients(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if s.settings != nil {
		if st, err := s.settings.Get(); err != nil {
			report.Status = "degraded"
			report.Error = err.Error()
		} else {
			report.Provider = string(st.Provider)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
