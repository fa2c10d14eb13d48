package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"askrelay/internal/domain"
)

func dialTestServer(t *testing.T, d Dispatcher) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	g := newTestGateway(d)
	srv := httptest.NewServer(NewServer(ServerConfig{Gateway: g, Logger: testLogger()}).Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, srv
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (domain.Envelope, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return env, data
}

func TestServer_StreamsChunksThenResult(t *testing.T) {
	conn, _ := dialTestServer(t, &fakeDispatcher{text: "hello big world"})

	if err := conn.WriteJSON(domain.AskRequest{Type: domain.MessageAsk, ID: "abc", Prompt: "hi"}); err != nil {
		t.Fatal(err)
	}

	var chunks strings.Builder
	for {
		env, data := readEnvelope(t, conn)
		if env.ID != "abc" {
			t.Fatalf("unexpected id in %s", data)
		}
		if env.Type == domain.MessageChunk {
			var c domain.ChunkEvent
			json.Unmarshal(data, &c)
			chunks.WriteString(c.Chunk)
			continue
		}
		var resp domain.Response
		json.Unmarshal(data, &resp)
		if !resp.OK || resp.Data != "hello big world" {
			t.Fatalf("unexpected result %s", data)
		}
		break
	}
	if chunks.String() != "hello big world" {
		t.Fatalf("chunks joined to %q", chunks.String())
	}
}

func TestServer_RejectsMalformed(t *testing.T) {
	conn, _ := dialTestServer(t, &fakeDispatcher{text: "x"})
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ask-ai","prompt":7,"id":"bad-1"}`))

	env, data := readEnvelope(t, conn)
	var resp domain.Response
	json.Unmarshal(data, &resp)
	if env.Type != domain.MessageResult || resp.OK || resp.Error != "Invalid message format" || resp.ID != "bad-1" {
		t.Fatalf("unexpected reply %s", data)
	}
}

func TestServer_Status(t *testing.T) {
	conn, srv := dialTestServer(t, &fakeDispatcher{text: "x"})
	// One round trip guarantees the connection is registered.
	conn.WriteMessage(websocket.TextMessage, []byte(`{}`))
	readEnvelope(t, conn)

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var report statusReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Status != "ok" || report.Clients != 1 {
		t.Fatalf("unexpected status %+v", report)
	}
}
