package bus

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"askrelay/internal/domain"
)

func testHubLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestHub(timeout time.Duration) *Hub {
	return NewHub(HubConfig{PublishTimeout: timeout, Logger: testHubLogger()})
}

func recv(t *testing.T, s *Subscription) domain.Frame {
	t.Helper()
	select {
	case f := <-s.Frames():
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestHub_PublishReachesEverySubscriber(t *testing.T) {
	h := newTestHub(time.Second)
	a := h.Subscribe(4)
	b := h.Subscribe(4)
	defer a.Close()
	defer b.Close()

	if n := h.Publish(domain.NewChunk("r1", "hello ")); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	for _, s := range []*Subscription{a, b} {
		f := recv(t, s)
		c, ok := f.(domain.ChunkEvent)
		if !ok || c.ID != "r1" || c.Chunk != "hello " {
			t.Fatalf("unexpected frame %#v", f)
		}
	}
}

func TestHub_SendKeepsOrderAfterPublished(t *testing.T) {
	h := newTestHub(time.Second)
	s := h.Subscribe(8)
	defer s.Close()

	h.Publish(domain.NewChunk("r1", "a "))
	h.Publish(domain.NewChunk("r1", "b"))
	s.Send(domain.Success("a b").Response("r1"))

	want := []string{domain.MessageChunk, domain.MessageChunk, domain.MessageResult}
	for i, typ := range want {
		if got := recv(t, s).FrameType(); got != typ {
			t.Fatalf("frame %d: got %s, want %s", i, got, typ)
		}
	}
}

func TestHub_ClosedSubscriberIsSkipped(t *testing.T) {
	h := newTestHub(time.Second)
	live := h.Subscribe(1)
	gone := h.Subscribe(1)
	defer live.Close()

	gone.Close()
	gone.Close() // idempotent

	if n := h.Publish(domain.NewChunk("r", "x")); n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	if h.Len() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", h.Len())
	}
	if gone.Send(domain.NewChunk("r", "y")) {
		t.Fatal("send to closed subscription should fail")
	}
}

func TestHub_FullSubscriberDoesNotBlockForever(t *testing.T) {
	h := newTestHub(20 * time.Millisecond)
	s := h.Subscribe(1)
	defer s.Close()

	h.Publish(domain.NewChunk("r", "fills buffer"))

	start := time.Now()
	if n := h.Publish(domain.NewChunk("r", "dropped")); n != 0 {
		t.Fatalf("expected drop, got %d deliveries", n)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("publish blocked for %v", time.Since(start))
	}
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	h := newTestHub(time.Second)
	s := h.Subscribe(1)
	h.Close()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not ended by hub close")
	}
	if n := h.Publish(domain.NewChunk("r", "x")); n != 0 {
		t.Fatalf("publish after close delivered %d", n)
	}
	late := h.Subscribe(1)
	select {
	case <-late.Done():
	default:
		t.Fatal("subscribe after close should return an ended subscription")
	}
	s.Close()
}
