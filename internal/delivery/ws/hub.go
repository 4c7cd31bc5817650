package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var errSendTimeout = errors.New("send timed out")

// Conn is the subset of *websocket.Conn the hub uses.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

type client struct {
	id        string
	conn      Conn
	alive     atomic.Bool
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Hub keeps the set of live dashboard connections and pushes every new alert to them.
type Hub struct {
	upgrader     websocket.Upgrader
	heartbeat    time.Duration
	writeTimeout time.Duration
	logger       *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewHub(heartbeat, writeTimeout time.Duration, allowedOrigins []string, logger *zap.Logger) *Hub {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		heartbeat:    heartbeat,
		writeTimeout: writeTimeout,
		logger:       logger,
		clients:      make(map[*client]struct{}),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	c := h.register(conn)
	go h.readLoop(c)
}

func (h *Hub) register(conn Conn) *client {
	c := &client{id: uuid.NewString(), conn: conn}
	c.alive.Store(true)
	conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("websocket client connected", zap.String("client_id", c.id), zap.Int("clients", count))
	return c
}

// readLoop drains control frames so pongs are processed, and drops the client once the peer goes away.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c, "read", err)
			return
		}
	}
}

func (h *Hub) drop(c *client, reason string, err error) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
	if ok {
		h.logger.Info("websocket client removed", zap.String("client_id", c.id), zap.String("reason", reason), zap.Int("clients", count), zap.Error(err))
	}
}

func (h *Hub) snapshot() []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Name() string { return "websocket" }

func (h *Hub) Deliver(ctx context.Context, alert domain.Alert) error {
	return h.Broadcast(ctx, alert)
}

// Broadcast sends alert to every connected client concurrently. A client whose send fails or does
// not finish within the write timeout is closed and removed; the others are unaffected.
func (h *Hub) Broadcast(ctx context.Context, alert domain.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	clients := h.snapshot()
	var (
		wg        sync.WaitGroup
		delivered atomic.Int32
	)
	for _, c := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.send(ctx, c, payload); err != nil {
				h.drop(c, "send", err)
				return
			}
			delivered.Add(1)
		}()
	}
	wg.Wait()

	h.logger.Info("alert broadcast", zap.Uint("alert_id", alert.ID), zap.Int("clients", len(clients)), zap.Int32("delivered", delivered.Load()))
	return nil
}

func (h *Hub) send(ctx context.Context, c *client, payload []byte) error {
	result := make(chan error, 1)
	go func() {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		result <- c.conn.WriteMessage(websocket.TextMessage, payload)
	}()

	timer := time.NewTimer(h.writeTimeout)
	defer timer.Stop()
	select {
	case err := <-result:
		return err
	case <-timer.C:
		return errSendTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Start(ctx context.Context) {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()
	if h.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	h.cancel = cancel
	h.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				h.checkHeartbeats()
			}
		}
	}()
}

// Stop ends the heartbeat and closes every client.
func (h *Hub) Stop() {
	h.lifecycle.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.lifecycle.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			h.logger.Warn("timeout stopping websocket heartbeat")
		}
	}

	for _, c := range h.snapshot() {
		h.drop(c, "shutdown", nil)
	}
}

// checkHeartbeats closes clients that did not answer the previous ping and pings the rest.
func (h *Hub) checkHeartbeats() {
	for _, c := range h.snapshot() {
		if !c.alive.Swap(false) {
			h.drop(c, "heartbeat", nil)
			continue
		}
		if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
			h.drop(c, "ping", err)
		}
	}
}
