package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/mood-core/internal/infrastructure/config"
	"github.com/nerrad567/mood-core/internal/infrastructure/logging"
	"github.com/nerrad567/mood-core/internal/infrastructure/mqtt"
)

// Message types exchanged with WebSocket clients.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Broadcast channels a client can subscribe to.
const (
	// ChannelConnection carries manager Connected/Disconnected events.
	ChannelConnection = "connection.state_changed"

	// ChannelMessage carries every inbound MQTT message.
	ChannelMessage = "mqtt.message"

	// ChannelLampState carries lamp.State after every change.
	ChannelLampState = "lamp.state_changed"
)

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe frames.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

func newWSMessage(msgType, id string, payload any) WSMessage {
	return WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
}

// eventChannel maps a manager event to its broadcast channel.
func eventChannel(t mqtt.EventType) string {
	if t == mqtt.EventMessage {
		return ChannelMessage
	}
	return ChannelConnection
}

// eventPayload renders a manager event for WebSocket clients. Binary
// payloads are reported by size only.
func eventPayload(ev mqtt.Event) map[string]any {
	p := map[string]any{
		"event": ev.Type.String(),
		"time":  ev.Time.UTC().Format(time.RFC3339Nano),
	}
	if ev.Type != mqtt.EventMessage {
		return p
	}
	p["topic"] = ev.Topic
	if utf8.Valid(ev.Payload) {
		p["payload"] = string(ev.Payload)
	} else {
		p["binary"] = true
		p["size"] = len(ev.Payload)
	}
	return p
}

// Hub fans broadcast events out to subscribed WebSocket clients.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
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
		c.shutdown()
	}
	if len(clients) > 0 {
		h.logger.Info("websocket clients disconnected", "count", len(clients))
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.shutdown()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// Broadcast sends payload to every client subscribed to channel. Clients
// whose send buffer is full miss the event.
func (h *Hub) Broadcast(channel string, payload any) {
	msg := newWSMessage(WSTypeEvent, "", payload)
	msg.EventType = channel
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshalling broadcast", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if c.subscribed(channel) && !c.enqueue(data) {
			h.logger.Debug("websocket client dropped event", "channel", channel)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the request and starts the client pumps.
//
// Clients subscribe with {"type":"subscribe","payload":{"channels":[...]}},
// or up front with ?channels=a,b on the upgrade request.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn)
	for _, ch := range strings.Split(r.URL.Query().Get("channels"), ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			client.channels[ch] = struct{}{}
		}
	}

	s.hub.add(client)
	go client.writeLoop(s.wsCfg)
	go client.readLoop(s.wsCfg)
}
