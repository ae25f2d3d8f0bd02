package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errFakeRefused = errors.New("fake: connection refused")

// fakePublish records one Publish call.
type fakePublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// fakeToken completes immediately unless hang is set.
type fakeToken struct {
	err  error
	hang bool
}

func (t fakeToken) WaitTimeout(d time.Duration) bool {
	if t.hang {
		time.Sleep(d)
		return false
	}
	return true
}

func (t fakeToken) Error() error { return t.err }

// fakeTransport is an in-memory Transport for testing.
type fakeTransport struct {
	mu sync.Mutex

	connected  bool
	connectErr error
	cb         Callbacks

	endpoints []Endpoint
	opts      []ConnectOptions

	connectCalls    int
	disconnectCalls int

	active  map[string]byte
	ops     []string // "sub:<name>" and "unsub:<name>" in call order
	marks   []int    // len(ops) at each Connect call
	subErr  error
	publish []fakePublish
	pubErr  error
	pubHang bool

	// onSubscribe, if set, runs after each successful Subscribe.
	onSubscribe func(name string)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{active: make(map[string]byte)}
}

func (f *fakeTransport) Connect(ctx context.Context, endpoint Endpoint, opts ConnectOptions, cb Callbacks) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connectCalls++
	f.marks = append(f.marks, len(f.ops))
	f.endpoints = append(f.endpoints, endpoint)
	f.opts = append(f.opts, opts)

	if err := ctx.Err(); err != nil {
		return err
	}
	if f.connectErr != nil {
		return f.connectErr
	}

	f.connected = true
	f.cb = cb
	// A clean session starts with nothing subscribed.
	f.active = make(map[string]byte)
	return nil
}

func (f *fakeTransport) Disconnect(time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectCalls++
	f.connected = false
	f.active = make(map[string]byte)
}

func (f *fakeTransport) Subscribe(name string, qos byte) error {
	f.mu.Lock()
	f.ops = append(f.ops, "sub:"+name)
	if !f.connected {
		f.mu.Unlock()
		return ErrNotConnected
	}
	if f.subErr != nil {
		err := f.subErr
		f.mu.Unlock()
		return err
	}
	f.active[name] = qos
	hook := f.onSubscribe
	f.mu.Unlock()

	if hook != nil {
		hook(name)
	}
	return nil
}

func (f *fakeTransport) Unsubscribe(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "unsub:"+name)
	if !f.connected {
		return ErrNotConnected
	}
	delete(f.active, name)
	return nil
}

func (f *fakeTransport) Publish(name string, payload []byte, qos byte, retained bool) DeliveryToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publish = append(f.publish, fakePublish{Topic: name, Payload: payload, QoS: qos, Retained: retained})
	if !f.connected {
		return fakeToken{err: ErrNotConnected}
	}
	return fakeToken{err: f.pubErr, hang: f.pubHang}
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// drop simulates the broker going away.
func (f *fakeTransport) drop(err error) {
	f.mu.Lock()
	f.connected = false
	f.active = make(map[string]byte)
	cb := f.cb
	f.mu.Unlock()

	if cb.ConnectionLost != nil {
		cb.ConnectionLost(err)
	}
}

// deliver simulates an inbound message.
func (f *fakeTransport) deliver(topic string, payload []byte) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()

	if cb.MessageArrived != nil {
		cb.MessageArrived(topic, payload)
	}
}

func (f *fakeTransport) setConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

func (f *fakeTransport) activeTopics() map[string]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]byte, len(f.active))
	for k, v := range f.active {
		out[k] = v
	}
	return out
}

func (f *fakeTransport) publishes() []fakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakePublish, len(f.publish))
	copy(out, f.publish)
	return out
}

func (f *fakeTransport) operations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.ops))
	copy(out, f.ops)
	return out
}

// opsBeforeConnect returns the operations recorded before the n-th
// Connect call (1-based) since the last resetOps.
func (f *fakeTransport) opsBeforeConnect(n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n < 1 || n > len(f.marks) {
		return nil
	}
	return append([]string(nil), f.ops[:f.marks[n-1]]...)
}

func (f *fakeTransport) connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

func (f *fakeTransport) disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnectCalls
}

func (f *fakeTransport) resetOps() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = nil
	f.marks = nil
}

// eventRecorder collects events delivered to a listener.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *eventRecorder) count(t EventType) int {
	n := 0
	for _, got := range r.types() {
		if got == t {
			n++
		}
	}
	return n
}

// waitFor polls until cond holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out after %v waiting for %s", timeout, what)
}

// sameTopicSet reports whether active holds exactly topics.
func sameTopicSet(active map[string]byte, topics []Topic) bool {
	if len(active) != len(topics) {
		return false
	}
	for _, tp := range topics {
		qos, ok := active[tp.Name]
		if !ok || qos != tp.QoS {
			return false
		}
	}
	return true
}
