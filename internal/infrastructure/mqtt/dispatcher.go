package mqtt

import (
	"sync"
	"sync/atomic"
)

// EventHandler is the callback signature for listeners.
//
// Handlers run synchronously on the goroutine that raised the event: paho's
// callback goroutine for inbound messages and connection loss, the caller's
// goroutine for locally raised events. They should not block for extended
// periods as this delays delivery to later listeners and, for inbound
// messages, the transport itself.
//
// Returns:
//   - error: Logged; does not stop delivery to other listeners
type EventHandler func(Event) error

// ListenerID is the handle returned by Register and accepted by Remove.
type ListenerID uint64

// listener pairs a handler with its handle.
type listener struct {
	id      ListenerID
	handler EventHandler
}

// Dispatcher fans events out to registered listeners.
//
// The listener list is copy-on-write: Register and Remove publish a new
// slice, and Dispatch iterates the slice it loaded when delivery started.
// A listener added during delivery therefore does not see the in-flight
// event, and a listener removed during delivery does not change who
// receives it.
//
// Thread Safety:
//   - All methods are safe for concurrent use, including from inside a handler.
type Dispatcher struct {
	mu        sync.Mutex // serialises writers only
	listeners atomic.Pointer[[]listener]
	nextID    atomic.Uint64

	logger Logger
}

// NewDispatcher creates an empty dispatcher. A nil logger discards output.
func NewDispatcher(logger Logger) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	d := &Dispatcher{logger: logger}
	empty := []listener{}
	d.listeners.Store(&empty)
	return d
}

// Register adds handler to the end of the delivery order.
func (d *Dispatcher) Register(handler EventHandler) ListenerID {
	id := ListenerID(d.nextID.Add(1))

	d.mu.Lock()
	defer d.mu.Unlock()

	current := *d.listeners.Load()
	next := make([]listener, len(current), len(current)+1)
	copy(next, current)
	next = append(next, listener{id: id, handler: handler})
	d.listeners.Store(&next)

	return id
}

// Remove deregisters the listener. Unknown ids are ignored.
func (d *Dispatcher) Remove(id ListenerID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := *d.listeners.Load()
	next := make([]listener, 0, len(current))
	for _, l := range current {
		if l.id != id {
			next = append(next, l)
		}
	}
	if len(next) == len(current) {
		return
	}
	d.listeners.Store(&next)
}

// Len returns the number of registered listeners.
func (d *Dispatcher) Len() int {
	return len(*d.listeners.Load())
}

// Dispatch delivers ev to every listener registered when the call started,
// in registration order.
func (d *Dispatcher) Dispatch(ev Event) {
	for _, l := range *d.listeners.Load() {
		d.deliver(l, ev)
	}
}

// deliver invokes one handler with panic recovery.
func (d *Dispatcher) deliver(l listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("MQTT listener panic recovered",
				"listener", l.id,
				"event", ev.Type.String(),
				"topic", ev.Topic,
				"panic", r,
			)
		}
	}()

	if err := l.handler(ev); err != nil {
		d.logger.Warn("MQTT listener returned error",
			"listener", l.id,
			"event", ev.Type.String(),
			"topic", ev.Topic,
			"error", err,
		)
	}
}

// Channel registers a listener that forwards events into a buffered channel,
// for consumers that prefer message passing over callbacks.
//
// The forwarding never blocks the producer: when the buffer is full the event
// is dropped, counted, and a warning is logged. The returned cancel function
// removes the listener and closes the channel; it is safe to call more than once.
func (d *Dispatcher) Channel(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	var (
		mu      sync.RWMutex
		closed  bool
		dropped atomic.Uint64
	)

	id := d.Register(func(ev Event) error {
		mu.RLock()
		defer mu.RUnlock()
		if closed {
			return nil
		}
		select {
		case ch <- ev:
		default:
			n := dropped.Add(1)
			d.logger.Warn("MQTT event channel full, dropping event",
				"event", ev.Type.String(),
				"topic", ev.Topic,
				"dropped_total", n,
			)
		}
		return nil
	})

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.Remove(id)
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}

	return ch, cancel
}
