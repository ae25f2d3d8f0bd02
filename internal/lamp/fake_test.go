package lamp

import (
	"context"
	"sync"

	"github.com/nerrad567/mood-core/internal/infrastructure/mqtt"
)

type publishCall struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

// fakeBroker records what the controller asks of the manager and lets
// tests deliver events to registered handlers.
type fakeBroker struct {
	mu         sync.Mutex
	connected  bool
	publishes  []publishCall
	subscribed []string
	ops        []string
	handlers   map[mqtt.ListenerID]mqtt.EventHandler
	nextID     mqtt.ListenerID
	presence   *mqtt.Presence
	reinits    int
	publishErr error
	endpoint   mqtt.Endpoint
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		handlers: make(map[mqtt.ListenerID]mqtt.EventHandler),
		endpoint: mqtt.Endpoint{Address: "tcp://broker.local", Port: 1883, ClientID: "mood-test"},
	}
}

func (b *fakeBroker) Publish(_ context.Context, topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.publishes = append(b.publishes, publishCall{topic, string(payload), qos, retained})
	return nil
}

func (b *fakeBroker) SubscribeTo(topic mqtt.Topic) error {
	if err := topic.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = append(b.subscribed, topic.Name)
	b.ops = append(b.ops, "sub:"+topic.Name)
	return nil
}

func (b *fakeBroker) UnsubscribeFrom(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.subscribed[:0]
	for _, s := range b.subscribed {
		if s != name {
			kept = append(kept, s)
		}
	}
	b.subscribed = kept
	b.ops = append(b.ops, "unsub:"+name)
	return nil
}

func (b *fakeBroker) Register(handler mqtt.EventHandler) mqtt.ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[b.nextID] = handler
	return b.nextID
}

func (b *fakeBroker) Remove(id mqtt.ListenerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

func (b *fakeBroker) SetPresence(p *mqtt.Presence) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presence = p
}

func (b *fakeBroker) ReInit(context.Context) {
	b.mu.Lock()
	b.reinits++
	b.mu.Unlock()
	// A real manager reports the new session's outcome synchronously.
	b.deliver(mqtt.ConnectedEvent())
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) Endpoint() mqtt.Endpoint {
	return b.endpoint
}

func (b *fakeBroker) setConnected(connected bool) {
	b.mu.Lock()
	b.connected = connected
	b.mu.Unlock()
	if connected {
		b.deliver(mqtt.ConnectedEvent())
	} else {
		b.deliver(mqtt.DisconnectedEvent())
	}
}

// deliver calls every handler without holding the lock, like the dispatcher.
func (b *fakeBroker) deliver(ev mqtt.Event) []error {
	b.mu.Lock()
	handlers := make([]mqtt.EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (b *fakeBroker) message(topic, payload string) []error {
	return b.deliver(mqtt.MessageEvent(topic, []byte(payload)))
}

func (b *fakeBroker) published() []publishCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publishCall(nil), b.publishes...)
}

func (b *fakeBroker) operations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ops...)
}

func (b *fakeBroker) listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

// memoryHistory is an in-memory History.
type memoryHistory struct {
	mu          sync.Mutex
	entries     []HistoryEntry
	connections []ConnectionEntry
	err         error
}

func (h *memoryHistory) Record(_ context.Context, e HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.entries = append(h.entries, e)
	return nil
}

func (h *memoryHistory) Recent(_ context.Context, lampID string, limit int) ([]HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []HistoryEntry
	for i := len(h.entries) - 1; i >= 0 && len(out) < clampLimit(limit); i-- {
		if h.entries[i].LampID == lampID {
			out = append(out, h.entries[i])
		}
	}
	return out, nil
}

func (h *memoryHistory) RecordConnection(_ context.Context, e ConnectionEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections = append(h.connections, e)
	return nil
}

func (h *memoryHistory) RecentConnections(_ context.Context, _ int) ([]ConnectionEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ConnectionEntry(nil), h.connections...), nil
}

func (h *memoryHistory) recorded() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HistoryEntry(nil), h.entries...)
}

// recordingTelemetry captures telemetry writes.
type recordingTelemetry struct {
	mu     sync.Mutex
	states []string
	events []string
}

func (r *recordingTelemetry) WriteLampState(lampID, colour string, automatic bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mode := "manual"
	if automatic {
		mode = "auto"
	}
	r.states = append(r.states, lampID+" "+colour+" "+mode)
}

func (r *recordingTelemetry) WriteConnectionEvent(clientID, event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, clientID+" "+event)
}
