package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"askrelay/internal/domain"
)

const (
	remoteWriteWait    = 10 * time.Second
	listenerBuffer     = 256
	listenerSendWindow = 2 * time.Second
)

// ErrClosed is returned once the connection to the gateway has ended.
var ErrClosed = errors.New("gateway connection closed")

// Remote talks to a gateway over WebSocket. One reader goroutine routes
// chunks to listeners and results to the request that is waiting for them.
type Remote struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	pending   map[string]chan domain.Response
	listeners map[*remoteListener]struct{}
	err       error
	done      chan struct{}
}

// Dial connects to the gateway WebSocket endpoint at url.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Remote, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to gateway at %s: %w", url, err)
	}
	r := &Remote{
		conn:      conn,
		logger:    logger,
		pending:   make(map[string]chan domain.Response),
		listeners: make(map[*remoteListener]struct{}),
		done:      make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

type remoteListener struct {
	r      *Remote
	frames chan domain.Frame
	done   chan struct{}
	once   sync.Once
}

func (l *remoteListener) Frames() <-chan domain.Frame { return l.frames }

func (l *remoteListener) Close() {
	l.once.Do(func() {
		close(l.done)
		l.r.mu.Lock()
		delete(l.r.listeners, l)
		l.r.mu.Unlock()
	})
}

func (r *Remote) Subscribe() (Listener, error) {
	l := &remoteListener{
		r:      r,
		frames: make(chan domain.Frame, listenerBuffer),
		done:   make(chan struct{}),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.listeners[l] = struct{}{}
	return l, nil
}

func (r *Remote) Request(ctx context.Context, req domain.AskRequest) (domain.Response, error) {
	if req.ID == "" {
		return domain.Response{}, errors.New("request id is required")
	}
	ch := make(chan domain.Response, 1)

	r.mu.Lock()
	if r.err != nil {
		r.mu.Unlock()
		return domain.Response{}, r.err
	}
	r.pending[req.ID] = ch
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, req.ID)
		r.mu.Unlock()
	}()

	data, err := json.Marshal(req)
	if err != nil {
		return domain.Response{}, fmt.Errorf("marshal request: %w", err)
	}
	r.writeMu.Lock()
	r.conn.SetWriteDeadline(time.Now().Add(remoteWriteWait))
	err = r.conn.WriteMessage(websocket.TextMessage, data)
	r.writeMu.Unlock()
	if err != nil {
		return domain.Response{}, fmt.Errorf("send request: %w", err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-r.done:
		return domain.Response{}, r.closeErr()
	case <-ctx.Done():
		return domain.Response{}, ctx.Err()
	}
}

// Close sends a close frame and tears the connection down.
func (r *Remote) Close() error {
	r.writeMu.Lock()
	r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	r.writeMu.Unlock()
	err := r.conn.Close()
	<-r.done
	return err
}

func (r *Remote) closeErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Remote) readLoop() {
	defer close(r.done)
	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			r.err = fmt.Errorf("%w: %v", ErrClosed, err)
			r.mu.Unlock()
			return
		}

		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			r.logger.Warn("invalid frame from gateway", "err", err)
			continue
		}

		switch env.Type {
		case domain.MessageChunk:
			var c domain.ChunkEvent
			if err := json.Unmarshal(data, &c); err != nil {
				r.logger.Warn("invalid chunk from gateway", "err", err)
				continue
			}
			r.fanOut(c)

		case domain.MessageResult:
			var resp domain.Response
			if err := json.Unmarshal(data, &resp); err != nil {
				r.logger.Warn("invalid result from gateway", "err", err)
				continue
			}
			r.mu.Lock()
			ch, ok := r.pending[resp.ID]
			r.mu.Unlock()
			if ok {
				select {
				case ch <- resp:
				default:
					r.logger.Debug("duplicate result", "id", resp.ID)
				}
			} else {
				r.logger.Debug("result for unknown request", "id", resp.ID)
			}

		default:
			r.logger.Debug("ignoring frame", "type", env.Type)
		}
	}
}

// fanOut hands c to every listener. A listener that stays full past the
// send window misses the chunk.
func (r *Remote) fanOut(c domain.ChunkEvent) {
	r.mu.Lock()
	targets := make([]*remoteListener, 0, len(r.listeners))
	for l := range r.listeners {
		targets = append(targets, l)
	}
	r.mu.Unlock()

	for _, l := range targets {
		select {
		case l.frames <- c:
			continue
		case <-l.done:
			continue
		default:
		}
		timer := time.NewTimer(listenerSendWindow)
		select {
		case l.frames <- c:
		case <-l.done:
		case <-timer.C:
			r.logger.Debug("listener full, chunk dropped", "id", c.ID)
		}
		timer.Stop()
	}
}
