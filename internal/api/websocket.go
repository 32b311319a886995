package api

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sensornode/internal/report"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Subscription channels. ChannelReadings matches every reading,
// "readings.<sensor>" one sensor and "readings.<sensor>.<channel>" one
// channel of it. Alarms narrow the same way.
const (
	ChannelReadings = "readings"
	ChannelAlarms   = "alarms"
)

// WSMessage is the envelope of every frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Hub fans live readings and alarms out to WebSocket clients. It is a
// report.Sink, so the report stage writes to it directly.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	dropped atomic.Uint64
}

var _ report.Sink = (*Hub)(nil)

// NewHub creates a hub with no clients.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shut()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Write broadcasts each reading. It never fails; slow clients lose events.
func (h *Hub) Write(_ context.Context, readings []report.Reading) error {
	for _, r := range readings {
		h.publish(ChannelReadings, r, channelKeys(ChannelReadings, r.Sensor, r.Channel))
	}
	return nil
}

// Alarm broadcasts a threshold alarm.
func (h *Hub) Alarm(a report.Alarm) {
	h.publish(ChannelAlarms, a, channelKeys(ChannelAlarms, a.Sensor, a.Channel))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded because a client's
// buffer was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// channelKeys lists the subscription channels an event is delivered on,
// from the broadest to the narrowest.
func channelKeys(kind, sensor, channel string) []string {
	keys := []string{kind, kind + "." + sensor}
	if channel != "" {
		keys = append(keys, kind+"."+sensor+"."+channel)
	}
	return keys
}

func (h *Hub) publish(event string, payload any, keys []string) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal websocket event", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.wants(keys) && !c.enqueue(data) {
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// remove forgets c and closes its outbound queue. Safe to call twice.
func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.shut()
	h.logger.Debug("websocket client disconnected", "clients", n)
}
