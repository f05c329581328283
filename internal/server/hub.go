package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/blingpick/blingpick/internal/picking"
)

const (
	subscriberBuffer = 16
	writeTimeout     = 5 * time.Second
)

// Hub fans session events out to websocket subscribers. A subscriber that
// falls behind by more than its buffer is disconnected rather than blocking
// the publisher.
type Hub struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
	done   chan struct{}
}

type subscriber struct {
	msgs      chan []byte
	closeSlow func()
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
		done:   make(chan struct{}),
	}
}

// Publish sends e to every subscriber without blocking. It matches
// picking.Options.OnEvent.
func (h *Hub) Publish(e picking.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("encoding session event", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		select {
		case sub.msgs <- data:
		default:
			go sub.closeSlow()
		}
	}
}

// Subscribers returns the number of connected streams.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

// Close ends every stream. Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.closed {
		h.closed = true
		close(h.done)
	}
}

// Serve upgrades the request to a websocket, writes greeting() as the first
// message, then relays events until the client leaves or the hub closes.
// The subscription is registered before the greeting is built, so no event
// between the two is lost.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, greeting func() any) error {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	sub := &subscriber{
		msgs: make(chan []byte, subscriberBuffer),
		closeSlow: func() {
			conn.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
		},
	}

	if !h.add(sub) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return nil
	}
	defer h.remove(sub)

	// The stream is write-only; CloseRead handles control frames and
	// cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	if greeting != nil {
		if err := writeJSON(ctx, conn, greeting()); err != nil {
			return err
		}
	}

	for {
		select {
		case msg := <-sub.msgs:
			if err := writeMessage(ctx, conn, msg); err != nil {
				return err
			}
		case <-h.done:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return nil
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}

			return ctx.Err()
		}
	}
}

func (h *Hub) add(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.subs[sub] = struct{}{}

	return true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs, sub)
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return wsjson.Write(ctx, conn, v)
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return conn.Write(ctx, websocket.MessageText, msg)
}
