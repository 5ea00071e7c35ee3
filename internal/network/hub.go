package network

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/custodia-rp/custody-server/internal/engine"
	"github.com/custodia-rp/custody-server/internal/events"
	"github.com/custodia-rp/custody-server/internal/platform/logger"
	"github.com/custodia-rp/custody-server/internal/platform/metrics"
)

// Hub maintains the set of active presentation clients and broadcasts
// custody events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex

	engine     *engine.Engine
	logger     *logger.Logger
	metrics    *metrics.Metrics
	sendBuffer int
}

// NewHub initializes a new WebSocket Hub.
func NewHub(eng *engine.Engine, m *metrics.Metrics, log *logger.Logger, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Hub{
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		engine:     eng,
		logger:     log,
		metrics:    m,
		sendBuffer: sendBuffer,
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket Hub shutting down.")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.metrics.RecordWSConnection(1)
			h.logger.Info("New WebSocket client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.metrics.RecordWSConnection(-1)
				h.logger.Info("WebSocket client disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastEvent serializes a custody event and sends it to all clients.
func (h *Hub) BroadcastEvent(event events.CustodyEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Errorf("Failed to serialize custody event for WebSocket broadcast: %v", err)
		return
	}
	h.broadcast <- payload
}

// broadcastable reports whether an event type is relevant for the
// presentation layer. Time ticks would flood clients for no benefit.
func broadcastable(t events.EventType) bool {
	switch t {
	case events.EventTypeArrest,
		events.EventTypeFineAssessed,
		events.EventTypeSentenceStarted,
		events.EventTypeSentenceCompleted,
		events.EventTypeSentenceStopped,
		events.EventTypeRelease:
		return true
	}
	return false
}

// StartEventPoller spawns a goroutine to follow the EventLog and push new
// custody events to the Hub. The Hub runs independently from the Engine's
// dispatch loop while picking up the same events.
func (h *Hub) StartEventPoller(ctx context.Context, eventLog *events.EventLog) {
	go func() {
		pollInterval := time.NewTicker(200 * time.Millisecond)
		defer pollInterval.Stop()

		lastProcessedEvent := 0

		for {
			select {
			case <-ctx.Done():
				return
			case <-pollInterval.C:
				allEvents := eventLog.Replay()
				if len(allEvents) > lastProcessedEvent {
					newEvents := allEvents[lastProcessedEvent:]
					for _, event := range newEvents {
						if broadcastable(event.Type) {
							h.BroadcastEvent(event)
						}
					}
					lastProcessedEvent = len(allEvents)
				}
			}
		}
	}()
}
