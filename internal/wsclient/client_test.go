package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/internal/websocket"
)

type recordedSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func (r *recordedSleep) get() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func newTestClient(url string, sleeper *recordedSleep) *Client {
	client := New(Config{URL: url, UserID: "user-1"}, zap.NewNop())
	client.sleep = sleeper.sleep
	return client
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	var dials atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sleeper := &recordedSleep{}
	client := newTestClient(wsURL(server), sleeper)

	err := client.Run(context.Background(), func(*websocket.ServerMessage) {})
	if !errors.Is(err, ErrReconnectFailed) {
		t.Fatalf("Expected ErrReconnectFailed, got %v", err)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second, 8 * time.Second, 10 * time.Second}
	got := sleeper.get()
	if len(got) != len(want) {
		t.Fatalf("Expected %d backoffs, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected backoff %d to be %v, got %v", i+1, want[i], got[i])
		}
	}
	if n := dials.Load(); n != 6 {
		t.Errorf("Expected 6 dials, got %d", n)
	}
}

func TestRunReconnectStartsNewSession(t *testing.T) {
	var connections atomic.Int32
	upgrader := gws.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("userId") != "user-1" {
			http.Error(w, "missing user", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := connections.Add(1)
		conn.WriteJSON(websocket.NewStatusMessage(websocket.StatusReady, fmt.Sprintf("session-%d", n)))
		if n == 1 {
			return
		}
		for {
			var msg websocket.ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			conn.WriteJSON(websocket.NewTranscriptMessage("heard " + msg.MimeType))
		}
	}))
	defer server.Close()

	sleeper := &recordedSleep{}
	client := newTestClient(wsURL(server), sleeper)

	messages := make(chan *websocket.ServerMessage, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Run(ctx, func(msg *websocket.ServerMessage) { messages <- msg })
	}()

	next := func() *websocket.ServerMessage {
		t.Helper()
		select {
		case msg := <-messages:
			return msg
		case <-time.After(2 * time.Second):
			t.Fatal("Timed out waiting for message")
			return nil
		}
	}

	if msg := next(); msg.SessionID != "session-1" {
		t.Fatalf("Expected session-1, got %+v", msg)
	}
	if msg := next(); msg.SessionID != "session-2" {
		t.Fatalf("Expected a new session after the drop, got %+v", msg)
	}
	if id := client.SessionID(); id != "session-2" {
		t.Errorf("Expected SessionID session-2, got %q", id)
	}

	if err := client.SendAudio([]byte("voice"), "audio/webm"); err != nil {
		t.Fatalf("Failed to send audio: %v", err)
	}
	if msg := next(); msg.Type != websocket.MessageTypeTranscript || msg.Text != "heard audio/webm" {
		t.Errorf("Expected transcript reply, got %+v", msg)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if got := sleeper.get(); len(got) != 1 || got[0] != 2*time.Second {
		t.Errorf("Expected a single 2s backoff, got %v", got)
	}
}

func TestRunStopsOnUnknownUser(t *testing.T) {
	upgrader := gws.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(websocket.NewErrorMessage(websocket.ErrorUserNotFound))
	}))
	defer server.Close()

	sleeper := &recordedSleep{}
	client := newTestClient(wsURL(server), sleeper)

	var received []*websocket.ServerMessage
	err := client.Run(context.Background(), func(msg *websocket.ServerMessage) {
		received = append(received, msg)
	})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("Expected ErrUserNotFound, got %v", err)
	}
	if len(received) != 1 || received[0].Type != websocket.MessageTypeError {
		t.Errorf("Expected the error message to reach the handler, got %v", received)
	}
	if got := sleeper.get(); len(got) != 0 {
		t.Errorf("Expected no reconnect, got %v", got)
	}
}

func TestSendAudioWithoutConnection(t *testing.T) {
	client := New(Config{URL: "ws://127.0.0.1:1/ws", UserID: "user-1"}, zap.NewNop())
	if err := client.SendAudio([]byte("voice"), ""); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if id := client.SessionID(); id != "" {
		t.Errorf("Expected no session, got %q", id)
	}
}
