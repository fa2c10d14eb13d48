// Package bus fans gateway frames out to connected listeners.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"askrelay/internal/domain"
	"askrelay/internal/metrics"
)

const (
	defaultBuffer         = 64
	defaultPublishTimeout = 2 * time.Second
)

// Hub is an in-process broadcast hub. Every subscriber receives every
// published frame; frames sent to a single subscriber with Send are
// delivered in order with the published ones.
type Hub struct {
	mu             sync.RWMutex
	subs           map[uint64]*Subscription
	nextID         uint64
	closed         bool
	publishTimeout time.Duration
	logger         *slog.Logger
}

type HubConfig struct {
	PublishTimeout time.Duration
	Logger         *slog.Logger
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Hub{
		subs:           make(map[uint64]*Subscription),
		publishTimeout: cfg.PublishTimeout,
		logger:         cfg.Logger,
	}
}

// Subscription is one listener's view of the hub. Its frame channel is never
// closed; watch Done to learn when the subscription ends.
type Subscription struct {
	id     uint64
	hub    *Hub
	frames chan domain.Frame
	done   chan struct{}
	once   sync.Once
}

// Subscribe registers a listener with the given buffer size.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	s := &Subscription{
		hub:    h,
		frames: make(chan domain.Frame, buffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.once.Do(func() { close(s.done) })
		return s
	}
	h.nextID++
	s.id = h.nextID
	h.subs[s.id] = s
	return s
}

// Publish delivers f to every current subscriber and returns how many
// accepted it. A subscriber that stays full for the publish timeout, or that
// closes mid-delivery, misses the frame; that is logged and otherwise ignored.
func (h *Hub) Publish(f domain.Frame) int {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return 0
	}
	targets := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.deliver(f, h.publishTimeout) {
			delivered++
			continue
		}
		metrics.ChunksDropped.Inc()
		h.logger.Debug("frame not delivered", "subscriber", s.id, "type", f.FrameType(), "id", f.RequestID())
	}
	return delivered
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription. Later Publish calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]*Subscription)
	h.mu.Unlock()

	for _, s := range subs {
		s.once.Do(func() { close(s.done) })
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Frames is the stream of delivered frames.
func (s *Subscription) Frames() <-chan domain.Frame { return s.frames }

// Done is closed once the subscription has ended.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Send delivers f to this subscriber only, after anything already queued.
func (s *Subscription) Send(f domain.Frame) bool {
	return s.deliver(f, s.hub.publishTimeout)
}

// Close detaches the subscription from the hub. It is safe to call more
// than once and concurrently with Publish.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.hub.remove(s.id)
	})
}

func (s *Subscription) deliver(f domain.Frame, timeout time.Duration) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.frames <- f:
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s.frames <- f:
		return true
	case <-s.done:
		return false
	case <-timer.C:
		return false
	}
}
