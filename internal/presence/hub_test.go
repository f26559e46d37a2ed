package presence

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/pixie/internal/bus"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_SnapshotOnConnect(t *testing.T) {
	hub := NewHub("", zerolog.Nop(), WithSnapshot(func() any {
		return map[string]string{"mood": "playful"}
	}))
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	msg := read(t, conn)
	assert.Equal(t, TypeSnapshot, msg.Type)
	assert.Equal(t, map[string]any{"mood": "playful"}, msg.Data)
	assert.Equal(t, 1, hub.Clients())

	require.NoError(t, conn.WriteJSON(WSMessage{Type: TypeRefresh}))
	assert.Equal(t, TypeSnapshot, read(t, conn).Type)
}

func TestHub_Chat(t *testing.T) {
	hub := NewHub("", zerolog.Nop(),
		WithChat(func(ctx context.Context, text string) (string, error) {
			if text == "fail" {
				return "", errors.New("boom")
			}
			return "echo: " + text, nil
		}),
	)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: TypeChat, Content: "hello"}))
	msg := read(t, conn)
	assert.Equal(t, TypeReply, msg.Type)
	assert.Equal(t, "echo: hello", msg.Content)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: TypeChat, Content: "fail"}))
	msg = read(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "boom", msg.Content)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: TypeAsk}))
	msg = read(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Contains(t, msg.Content, "not supported")

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "dance"}))
	msg = read(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Contains(t, msg.Content, "dance")
}

func TestHub_Analyze(t *testing.T) {
	var (
		mu        sync.Mutex
		questions []string
	)
	hub := NewHub("", zerolog.Nop(),
		WithAnalyze(func(ctx context.Context, question string) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			questions = append(questions, question)
			return "I see a spreadsheet.", nil
		}),
	)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: TypeAnalyze}))
	msg := read(t, conn)
	assert.Equal(t, TypeReply, msg.Type)
	assert.Equal(t, "I see a spreadsheet.", msg.Content)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: TypeAnalyze, Content: "what's in B2?"}))
	read(t, conn)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"", "what's in B2?"}, questions)
}

func TestHub_AttachForwardsEvents(t *testing.T) {
	hub := NewHub("", zerolog.Nop(), WithSnapshot(func() any { return "state" }))
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()
	conn := dial(t, srv)
	read(t, conn) // initial snapshot

	b := bus.NewEventBus()
	unsubscribe := hub.Attach(b)
	defer unsubscribe()

	b.PublishSync(bus.Event{Type: bus.EventTypeSpoke, Data: map[string]any{"text": "hi"}})

	msg := read(t, conn)
	assert.Equal(t, TypeEvent, msg.Type)
	assert.Equal(t, string(bus.EventTypeSpoke), msg.Event)
	assert.Equal(t, map[string]any{"text": "hi"}, msg.Data)

	msg = read(t, conn)
	assert.Equal(t, TypeSnapshot, msg.Type)
	assert.Equal(t, "state", msg.Data)
}

func TestHub_DropsClosedClients(t *testing.T) {
	hub := NewHub("", zerolog.Nop())
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(WSMessage{Type: TypeLog, Content: "nobody listening"})
}

func TestHub_Run(t *testing.T) {
	hub := NewHub("127.0.0.1:0", zerolog.Nop(), WithMetrics())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()
	require.Eventually(t, func() bool { return hub.Addr() != "" }, 2*time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + hub.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + hub.Addr() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHub_RunBadAddr(t *testing.T) {
	hub := NewHub("256.0.0.1:bad", zerolog.Nop())
	err := hub.Run(context.Background())
	assert.Error(t, err)
}
