// Package presence serves the pet's state to overlay and chat panels over
// WebSocket and accepts typed chat in return.
package presence

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/pixie/internal/bus"
	"github.com/normanking/pixie/internal/logging"
	"github.com/normanking/pixie/internal/metrics"
)

// Message types exchanged with clients.
const (
	TypeSnapshot = "snapshot" // server → client: full presentation state
	TypeEvent    = "event"    // server → client: bus event
	TypeLog      = "log"      // server → client: log entry
	TypeReply    = "reply"    // server → client: answer to a chat message
	TypeError    = "error"    // server → client: request failed
	TypeChat     = "chat"     // client → server: user typed something
	TypeAsk      = "ask"      // client → server: listen for one spoken question
	TypeAnalyze  = "analyze"  // client → server: look at the screen, optional question
	TypeRefresh  = "refresh"  // client → server: resend the snapshot
)

const writeWait = 5 * time.Second

// WSMessage is the JSON frame used in both directions.
type WSMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Event   string `json:"event,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ChatFunc answers a chat message.
type ChatFunc func(ctx context.Context, text string) (string, error)

// SnapshotFunc returns the current presentation state.
type SnapshotFunc func() any

type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

func (c *client) send(msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// Hub fans presentation updates out to connected clients.
type Hub struct {
	addr     string
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	chat     ChatFunc
	ask      ChatFunc
	analyze  ChatFunc
	snapshot SnapshotFunc
	metrics  bool

	connMux sync.RWMutex
	conns   map[string]*client

	lnMu sync.Mutex
	ln   net.Listener
}

// Option configures a Hub.
type Option func(*Hub)

// WithChat sets the handler for chat messages.
func WithChat(fn ChatFunc) Option { return func(h *Hub) { h.chat = fn } }

// WithAsk sets the handler for ask requests. The text argument is empty.
func WithAsk(fn ChatFunc) Option { return func(h *Hub) { h.ask = fn } }

// WithAnalyze sets the handler for screen analysis requests. The text
// argument is the user's question and may be empty.
func WithAnalyze(fn ChatFunc) Option { return func(h *Hub) { h.analyze = fn } }

// WithSnapshot sets the snapshot source sent on connect and on refresh.
func WithSnapshot(fn SnapshotFunc) Option { return func(h *Hub) { h.snapshot = fn } }

// WithMetrics also serves Prometheus metrics on /metrics.
func WithMetrics() Option { return func(h *Hub) { h.metrics = true } }

// NewHub creates a hub that will listen on addr.
func NewHub(addr string, logger zerolog.Logger, opts ...Option) *Hub {
	h := &Hub{
		addr: addr,
		upgrader: websocket.Upgrader{
			// local overlay only; the default bind address is loopback
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "presence").Logger(),
		conns:  make(map[string]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handler returns the hub's HTTP routes.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.wsHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if h.metrics {
		mux.Handle("/metrics", metrics.Handler())
	}
	return mux
}

// Run serves until ctx is cancelled, then shuts the server down and closes
// every client connection.
func (h *Hub) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("presence listen %s: %w", h.addr, err)
	}
	h.lnMu.Lock()
	h.ln = ln
	h.lnMu.Unlock()

	server := &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()
	h.logger.Info().Str("addr", ln.Addr().String()).Msg("Presence hub listening")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.closeAll()
			return fmt.Errorf("presence serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	h.closeAll()
	return ctx.Err()
}

// Addr returns the bound address once Run is listening.
func (h *Hub) Addr() string {
	h.lnMu.Lock()
	defer h.lnMu.Unlock()
	if h.ln == nil {
		return ""
	}
	return h.ln.Addr().String()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.connMux.RLock()
	defer h.connMux.RUnlock()
	return len(h.conns)
}

// Broadcast sends msg to every client. Clients that fail to receive are
// dropped.
func (h *Hub) Broadcast(msg WSMessage) {
	h.connMux.RLock()
	clients := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		clients = append(clients, c)
	}
	h.connMux.RUnlock()

	for _, c := range clients {
		if err := c.send(msg); err != nil {
			h.drop(c.id)
		}
	}
}

// Attach forwards every bus event to clients. It returns the unsubscribe
// function.
func (h *Hub) Attach(b *bus.EventBus) func() {
	return b.SubscribeAll(func(e bus.Event) {
		h.Broadcast(WSMessage{Type: TypeEvent, Event: string(e.Type), Data: e.Data})
		if h.snapshot != nil && e.Type != bus.EventTypeShutdown {
			h.Broadcast(WSMessage{Type: TypeSnapshot, Data: h.snapshot()})
		}
	})
}

// ForwardLogs streams log entries to clients.
func (h *Hub) ForwardLogs(l *logging.Logger) {
	l.SetOnLog(func(e logging.LogEntry) {
		h.Broadcast(WSMessage{Type: TypeLog, Data: e})
	})
}

func (h *Hub) drop(id string) {
	h.connMux.Lock()
	c, ok := h.conns[id]
	delete(h.conns, id)
	h.connMux.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.connMux.Lock()
	conns := h.conns
	h.conns = make(map[string]*client)
	h.connMux.Unlock()
	for _, c := range conns {
		_ = c.conn.Close()
	}
}

func (h *Hub) wsHandler(rw http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{id: uuid.NewString(), conn: conn}
	h.connMux.Lock()
	h.conns[c.id] = c
	h.connMux.Unlock()
	defer h.drop(c.id)

	h.logger.Debug().Str("client", c.id).Msg("Client connected")
	if h.snapshot != nil {
		if err := c.send(WSMessage{Type: TypeSnapshot, Data: h.snapshot()}); err != nil {
			return
		}
	}

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug().Err(err).Str("client", c.id).Msg("WebSocket read ended")
			}
			return
		}
		h.handle(r.Context(), c, msg)
	}
}

func (h *Hub) handle(ctx context.Context, c *client, msg WSMessage) {
	var fn ChatFunc
	switch msg.Type {
	case TypeChat:
		if msg.Content == "" {
			return
		}
		fn = h.chat
	case TypeAsk:
		fn = h.ask
	case TypeAnalyze:
		fn = h.analyze
	case TypeRefresh:
		if h.snapshot != nil {
			_ = c.send(WSMessage{Type: TypeSnapshot, Data: h.snapshot()})
		}
		return
	default:
		_ = c.send(WSMessage{Type: TypeError, Content: fmt.Sprintf("unknown message type %q", msg.Type)})
		return
	}

	if fn == nil {
		_ = c.send(WSMessage{Type: TypeError, Content: msg.Type + " is not supported"})
		return
	}
	reply, err := fn(ctx, msg.Content)
	if err != nil {
		_ = c.send(WSMessage{Type: TypeError, Content: err.Error()})
		return
	}
	_ = c.send(WSMessage{Type: TypeReply, Content: reply})
}
