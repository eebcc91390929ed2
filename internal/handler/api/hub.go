package api

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"Qless/internal/domain/models"
	"Qless/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	subscriberBuffer = 64
	writeWait        = 10 * time.Second
)

// Hub streams job events to websocket clients. It is an EventSink: workers
// publish into it and every connected client receives a copy. Slow clients
// lose events instead of blocking workers.
type Hub struct {
	logger       *logger.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	dropped      atomic.Int64

	mu     sync.Mutex
	subs   map[chan models.JobEvent]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub(l *logger.Logger) *Hub {
	if l == nil {
		l = logger.Nop()
	}
	return &Hub{
		logger:       l,
		upgrader:     websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		pingInterval: 30 * time.Second,
		subs:         make(map[chan models.JobEvent]struct{}),
	}
}

// Publish fans ev out to every subscriber without blocking.
func (h *Hub) Publish(_ context.Context, ev models.JobEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Close disconnects every subscriber.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
	return nil
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many events were discarded for slow clients.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) subscribe() (chan models.JobEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan models.JobEvent, subscriberBuffer)
	h.subs[ch] = struct{}{}
	return ch, true
}

func (h *Hub) unsubscribe(ch chan models.JobEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// ServeWS upgrades the request and streams events as JSON text frames. The
// optional "queue" query parameter limits the stream to one queue.
func (h *Hub) ServeWS(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logger.Error(err))
		return nil
	}
	defer conn.Close()

	ch, ok := h.subscribe()
	if !ok {
		h.closeConn(conn, "shutting down")
		return nil
	}
	defer h.unsubscribe(ch)

	filter := c.QueryParam("queue")
	h.logger.Debug("websocket client connected",
		logger.String("remote", c.RealIP()),
		logger.String("queue", filter))

	// Reads only detect the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return nil
		case ev, ok := <-ch:
			if !ok {
				h.closeConn(conn, "shutting down")
				return nil
			}
			if filter != "" && ev.Queue != filter {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		}
	}
}

func (h *Hub) closeConn(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
