package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
)

const wsQueueSize = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware owns origin checks.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsClient is one connection. Events queue on out until the write pump
// sends them.
type wsClient struct {
	conn *websocket.Conn
	out  chan []byte

	mu       sync.Mutex
	closed   bool
	channels map[string]struct{}
}

// wsInbound is a client frame with its payload left raw.
type wsInbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// wsTiming derives the deadlines of a connection from the config.
type wsTiming struct {
	ping      time.Duration // ping period
	readWait  time.Duration // time allowed between pongs
	writeWait time.Duration // time allowed for one write
}

func newWSTiming(cfg config.WebSocketConfig) wsTiming {
	return wsTiming{
		ping:      time.Duration(cfg.PingInterval) * time.Second,
		readWait:  time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second,
		writeWait: time.Duration(cfg.PongTimeout) * time.Second,
	}
}

// handleWebSocket upgrades the connection. Live readings are read-only
// and need no token.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		conn:     conn,
		out:      make(chan []byte, wsQueueSize),
		channels: make(map[string]struct{}),
	}
	s.hub.add(c)

	timing := newWSTiming(s.wsCfg)
	go c.writeLoop(timing)
	go func() {
		defer s.hub.remove(c)
		if err := c.readLoop(timing, int64(s.wsCfg.MaxMessageSize)); err != nil {
			s.logger.Warn("websocket read error", "error", err)
		}
	}()
}

// readLoop serves client requests until the connection drops. A normal
// close returns nil.
func (c *wsClient) readLoop(t wsTiming, limit int64) error {
	defer c.conn.Close()

	c.conn.SetReadLimit(limit)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(t.readWait)) }
	c.conn.SetPongHandler(extend)
	if err := extend(""); err != nil {
		return err
	}

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err
			}
			return nil
		}
		if err := extend(""); err != nil {
			return err
		}
		c.handle(frame)
	}
}

// writeLoop drains out and pings until out is closed or a write fails.
func (c *wsClient) writeLoop(t wsTiming) {
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(t.writeWait)); err != nil {
			return err
		}
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.out:
			if !ok {
				_ = write(websocket.CloseMessage, nil)
				return
			}
			if write(websocket.TextMessage, data) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (c *wsClient) handle(frame []byte) {
	var in wsInbound
	if err := json.Unmarshal(frame, &in); err != nil {
		c.reply("", WSTypeError, errorBody("invalid JSON message"))
		return
	}

	switch in.Type {
	case WSTypePing:
		c.reply(in.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if len(in.Payload) == 0 || json.Unmarshal(in.Payload, &sub) != nil {
			c.reply(in.ID, WSTypeError, errorBody("invalid "+in.Type+" payload"))
			return
		}
		c.update(in.Type == WSTypeSubscribe, sub.Channels)
		c.reply(in.ID, WSTypeResponse, map[string][]string{in.Type + "d": sub.Channels})
	default:
		c.reply(in.ID, WSTypeError, errorBody("unknown message type: "+in.Type))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"message": msg}
}

func (c *wsClient) update(subscribe bool, channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if subscribe {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
}

func (c *wsClient) wants(keys []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if _, ok := c.channels[k]; ok {
			return true
		}
	}
	return false
}

// enqueue queues data without blocking. It reports false when the queue
// is full or the client is gone.
func (c *wsClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

func (c *wsClient) shut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

func (c *wsClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err == nil {
		c.enqueue(data)
	}
}
