package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/mood-core/internal/infrastructure/config"
)

const (
	wsSendBuffer = 256

	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// wsClient is one WebSocket connection. The write loop owns conn writes;
// shutdown closes done, after which the write loop sends a close frame
// and closes conn, which in turn ends the read loop.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once

	mu       sync.RWMutex
	channels map[string]struct{}
}

func newWSClient(hub *Hub, conn *websocket.Conn) *wsClient {
	return &wsClient{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBuffer),
		done:     make(chan struct{}),
		channels: make(map[string]struct{}),
	}
}

func (c *wsClient) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// enqueue queues data without blocking. It reports false when the client
// is gone or its buffer is full.
func (c *wsClient) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *wsClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

// keepalive returns the ping interval and pong wait, defaulting unset values.
func keepalive(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping = time.Duration(cfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	pong = time.Duration(cfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = defaultPongTimeout
	}
	return ping, pong
}

func (c *wsClient) readLoop(cfg config.WebSocketConfig) {
	defer c.hub.remove(c)

	ping, pong := keepalive(cfg)
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ping + pong)) }

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	//nolint:errcheck // a failed deadline surfaces as a read error
	extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		//nolint:errcheck // a failed deadline surfaces as a read error
		extend()
		c.handle(data)
	}
}

func (c *wsClient) writeLoop(cfg config.WebSocketConfig) {
	ping, pong := keepalive(cfg)
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		//nolint:errcheck // a failed deadline surfaces as a write error
		c.conn.SetWriteDeadline(time.Now().Add(pong))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case <-c.done:
			//nolint:errcheck // peer may already be gone
			write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case data := <-c.send:
			if err := write(websocket.TextMessage, data); err != nil {
				c.shutdown()
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		}
	}
}

// handle dispatches one inbound frame.
func (c *wsClient) handle(data []byte) {
	var msg struct {
		Type    string             `json:"type"`
		ID      string             `json:"id"`
		Payload WSSubscribePayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(newWSMessage(WSTypeError, "", errorBody("invalid JSON message")))
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.reply(newWSMessage(WSTypePong, msg.ID, nil))
	case WSTypeSubscribe, WSTypeUnsubscribe:
		subscribe := msg.Type == WSTypeSubscribe
		c.mu.Lock()
		for _, ch := range msg.Payload.Channels {
			if subscribe {
				c.channels[ch] = struct{}{}
			} else {
				delete(c.channels, ch)
			}
		}
		c.mu.Unlock()

		key := "subscribed"
		if !subscribe {
			key = "unsubscribed"
		}
		c.reply(newWSMessage(WSTypeResponse, msg.ID, map[string]any{key: msg.Payload.Channels}))
	default:
		c.reply(newWSMessage(WSTypeError, msg.ID, errorBody("unknown message type: "+msg.Type)))
	}
}

func (c *wsClient) reply(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func errorBody(message string) map[string]string {
	return map[string]string{"message": message}
}
