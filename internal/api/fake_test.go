package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/mood-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/mood-core/internal/lamp"
)

// fakeManager is an in-memory ConnectionManager.
type fakeManager struct {
	mu          sync.Mutex
	state       mqtt.State
	attempts    int
	endpoint    mqtt.Endpoint
	topics      []mqtt.Topic
	healthErr   error
	handlers    map[mqtt.ListenerID]mqtt.EventHandler
	nextID      mqtt.ListenerID
	connects    int
	disconnects int
	reinits     int
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		state: mqtt.StateConnected,
		endpoint: mqtt.Endpoint{
			Address:  "tcp://broker.local",
			Port:     1883,
			ClientID: "mood-1234abcd",
			Username: "lamp",
			Password: "s3cret",
		},
		handlers: make(map[mqtt.ListenerID]mqtt.EventHandler),
	}
}

func (m *fakeManager) Connect(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	m.state = mqtt.StateConnected
}

func (m *fakeManager) Disconnect(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	m.state = mqtt.StateDisconnected
}

func (m *fakeManager) ReInit(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reinits++
	m.state = mqtt.StateConnected
}

func (m *fakeManager) State() mqtt.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *fakeManager) IsConnected() bool {
	return m.State() == mqtt.StateConnected
}

func (m *fakeManager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func (m *fakeManager) Endpoint() mqtt.Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint
}

func (m *fakeManager) Topics() []mqtt.Topic {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mqtt.Topic(nil), m.topics...)
}

func (m *fakeManager) SubscribeTo(topic mqtt.Topic) error {
	if err := topic.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.topics {
		if t.Name == topic.Name {
			m.topics[i] = topic
			return nil
		}
	}
	m.topics = append(m.topics, topic)
	return nil
}

func (m *fakeManager) UnsubscribeFrom(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.topics {
		if t.Name == name {
			m.topics = append(m.topics[:i], m.topics[i+1:]...)
			break
		}
	}
	return nil
}

func (m *fakeManager) HealthCheck(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthErr
}

func (m *fakeManager) Register(handler mqtt.EventHandler) mqtt.ListenerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.handlers[m.nextID] = handler
	return m.nextID
}

func (m *fakeManager) Remove(id mqtt.ListenerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, id)
}

func (m *fakeManager) dispatch(ev mqtt.Event) {
	m.mu.Lock()
	handlers := make([]mqtt.EventHandler, 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()
	for _, h := range handlers {
		_ = h(ev)
	}
}

func (m *fakeManager) listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

// fakeLamp is an in-memory LampController.
type fakeLamp struct {
	mu       sync.Mutex
	state    lamp.State
	topics   mqtt.DeviceTopics
	err      error
	onChange func(lamp.State)
	colours  []lamp.Colour
	moods    []bool
	offs     int
}

func newFakeLamp() *fakeLamp {
	return &fakeLamp{
		state:  lamp.State{LampID: "1", Connected: true},
		topics: mqtt.NewDeviceTopics("huzzah", "1", mqtt.QoS1),
	}
}

func (l *fakeLamp) State() lamp.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *fakeLamp) Topics() mqtt.DeviceTopics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.topics
}

func (l *fakeLamp) SetColour(_ context.Context, colour lamp.Colour) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.colours = append(l.colours, colour)
	l.state.Colour = colour
	l.state.Automatic = false
	return nil
}

func (l *fakeLamp) Mood(_ context.Context, on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.moods = append(l.moods, on)
	l.state.Automatic = on
	return nil
}

func (l *fakeLamp) Off(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.offs++
	l.state.Colour = lamp.Black
	l.state.Automatic = false
	return nil
}

func (l *fakeLamp) SetDevice(_ context.Context, topic, id string) error {
	if topic == "" || id == "" {
		return lamp.ErrInvalidDevice
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.LampID = id
	l.topics = mqtt.NewDeviceTopics(topic, id, mqtt.QoS1)
	return nil
}

func (l *fakeLamp) OnChange(fn func(lamp.State)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = fn
}

func (l *fakeLamp) change(st lamp.State) {
	l.mu.Lock()
	l.state = st
	fn := l.onChange
	l.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

// fakeHistory serves canned history.
type fakeHistory struct {
	entries     []lamp.HistoryEntry
	connections []lamp.ConnectionEntry
	err         error
	lastLamp    string
	lastLimit   int
}

func (h *fakeHistory) Record(context.Context, lamp.HistoryEntry) error { return h.err }

func (h *fakeHistory) Recent(_ context.Context, lampID string, limit int) ([]lamp.HistoryEntry, error) {
	h.lastLamp, h.lastLimit = lampID, limit
	if h.err != nil {
		return nil, h.err
	}
	return h.entries, nil
}

func (h *fakeHistory) RecordConnection(context.Context, lamp.ConnectionEntry) error { return h.err }

func (h *fakeHistory) RecentConnections(_ context.Context, limit int) ([]lamp.ConnectionEntry, error) {
	h.lastLimit = limit
	if h.err != nil {
		return nil, h.err
	}
	return h.connections, nil
}

// fakeChecker is a HealthChecker returning a fixed error.
type fakeChecker struct{ err error }

func (c fakeChecker) HealthCheck(context.Context) error { return c.err }

var errStoreDown = errors.New("store down")
