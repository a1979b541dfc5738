package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"folio/internal/events"
)

const (
	// Events queued per connection before a slow client starts
	// dropping them
	streamBufferSize = 32

	streamWriteTimeout = 5 * time.Second
)

// StreamHandler pushes bus events to websocket clients at /api/stream.
// The dashboard uses it to refresh without polling.
type StreamHandler struct {
	bus *events.Bus
	log zerolog.Logger

	mu      sync.Mutex
	cancels map[int]context.CancelFunc
	nextID  int
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(bus *events.Bus, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		bus:     bus,
		log:     log.With().Str("handler", "stream").Logger(),
		cancels: make(map[int]context.CancelFunc),
	}
}

// ServeHTTP upgrades the request to a websocket and streams events
// until the client disconnects.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id := h.register(cancel)
	defer h.unregister(id)

	// Detect client-side close
	ctx = conn.CloseRead(ctx)

	queue := make(chan *events.Event, streamBufferSize)
	unsubscribe := h.bus.SubscribeAll(func(event *events.Event) {
		select {
		case queue <- event:
		default:
			// Slow consumer, drop rather than block publishers
		}
	})
	defer unsubscribe()

	h.log.Debug().Msg("Stream client connected")

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event := <-queue:
			writeCtx, writeCancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(writeCtx, conn, event)
			writeCancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("Stream write failed, dropping client")
				return
			}
		}
	}
}

// CloseAll disconnects every streaming client, used during shutdown
func (h *StreamHandler) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, cancel := range h.cancels {
		cancel()
	}
}

func (h *StreamHandler) register(cancel context.CancelFunc) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.cancels[id] = cancel
	return id
}

func (h *StreamHandler) unregister(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.cancels, id)
}
