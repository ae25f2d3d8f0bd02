package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Manager owns the single broker connection of the process.
//
// It keeps the connection state, the broker endpoint and the subscription
// registry, hands control to a Scheduler when the connection is lost, and
// reports every lifecycle transition and inbound message through its
// Dispatcher.
//
// State machine:
//
//	Disconnected -> Connecting -> Connected
//	Connected -> Reconnecting -> Connected   (transient loss)
//	Reconnecting -> Disconnected             (explicit Disconnect only)
//
// Transport failures never surface as errors from the public API. They
// become state transitions, EventDisconnected and log entries. Only caller
// input errors (invalid topic, QoS or payload) are returned.
//
// Thread Safety:
//   - All methods are safe for concurrent use from application goroutines,
//     the retry goroutine and the transport's callback goroutine.
//   - connMu serialises connect, disconnect, re-init and subscription
//     changes. State reads are lock-free.
//   - Events are dispatched without holding connMu, so listeners may call
//     back into the Manager.
type Manager struct {
	transport  Transport
	registry   *Registry
	dispatcher *Dispatcher
	scheduler  *Scheduler
	logger     Logger

	publishTimeout    time.Duration
	disconnectTimeout time.Duration

	// cfgMu guards endpoint, connectOpts and presence so they can be read
	// while a handshake holds connMu.
	cfgMu       sync.RWMutex
	endpoint    Endpoint
	connectOpts ConnectOptions
	presence    *Presence

	connMu sync.Mutex
	state  stateHolder
	epoch  uint64 // bumped by every explicit Disconnect and ReInit

	// session is set once a connection has been attempted since the last reset.
	session atomic.Bool

	life       context.Context
	lifeCancel context.CancelFunc
	started    atomic.Bool
}

// NewManager creates a manager for endpoint on top of transport.
// The manager starts Disconnected; call Start to connect.
func NewManager(transport Transport, endpoint Endpoint, opts Options) *Manager {
	opts = opts.withDefaults()

	m := &Manager{
		transport:         transport,
		registry:          NewRegistry(opts.Topics...),
		dispatcher:        NewDispatcher(opts.Logger),
		logger:            opts.Logger,
		publishTimeout:    opts.PublishTimeout,
		disconnectTimeout: opts.DisconnectTimeout,
		endpoint:          endpoint,
		connectOpts:       opts.Connect,
		presence:          opts.Presence,
	}
	m.life, m.lifeCancel = context.WithCancel(context.Background())
	m.scheduler = NewScheduler(opts.Backoff, m.reconnect, opts.Logger)

	return m
}

// Start binds the manager's lifetime to ctx and opens the connection.
// Cancelling ctx stops any retry loop. Calling Start more than once has no
// further effect.
func (m *Manager) Start(ctx context.Context) {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	context.AfterFunc(ctx, m.lifeCancel)

	m.logger.Info("MQTT manager starting",
		"broker", m.Endpoint().URL(),
		"client_id", m.Endpoint().ClientID,
		"reconnect_base", m.scheduler.Backoff().Base,
	)
	m.Connect(ctx)
}

// Stop cancels retries, disconnects within timeout and waits for the retry
// goroutine to exit.
func (m *Manager) Stop(timeout time.Duration) {
	m.lifeCancel()
	m.Disconnect(timeout)
	m.scheduler.Wait()
	m.logger.Info("MQTT manager stopped")
}

// Connect opens the connection.
//
// On success all tracked topics are re-applied and then EventConnected is
// dispatched. On failure EventDisconnected is dispatched and the Scheduler
// takes over. Connect is a no-op when already connected.
func (m *Manager) Connect(ctx context.Context) {
	m.connMu.Lock()
	if m.state.get() == StateConnected {
		m.connMu.Unlock()
		return
	}
	ok := m.connectLocked(ctx)
	epoch := m.epoch
	m.connMu.Unlock()

	m.afterConnect(ok, epoch)
}

// ReInit applies a changed endpoint, options or topic set.
//
// When connected it unsubscribes every topic, closes the connection and
// reconnects. When not connected it skips the teardown and connects. Any
// running retry loop is cancelled first.
func (m *Manager) ReInit(ctx context.Context) {
	m.scheduler.Stop()

	m.connMu.Lock()
	m.epoch++
	if m.state.get() == StateConnected {
		if err := m.registry.Clear(m.transport); err != nil {
			m.logger.Warn("MQTT unsubscribe before re-init incomplete", "error", err)
		}
		m.closeLocked(m.disconnectTimeout)
	}
	m.state.set(StateDisconnected)
	m.session.Store(false)

	m.logger.Info("MQTT re-initialising", "broker", m.Endpoint().URL())
	ok := m.connectLocked(ctx)
	epoch := m.epoch
	m.connMu.Unlock()

	m.afterConnect(ok, epoch)
}

// Disconnect stops trying to be connected.
//
// It is a no-op when already Disconnected. Otherwise it cancels the retry
// loop before touching the transport, so the loop cannot reconnect behind
// the caller, then closes the connection bounded by timeout. Transport
// errors are logged, never returned.
func (m *Manager) Disconnect(timeout time.Duration) {
	m.scheduler.Stop()

	m.connMu.Lock()
	prev := m.state.get()
	if prev == StateDisconnected {
		m.connMu.Unlock()
		return
	}
	m.epoch++
	if prev == StateConnected || m.transport.IsConnected() {
		m.closeLocked(timeout)
	}
	m.state.set(StateDisconnected)
	m.connMu.Unlock()

	m.logger.Info("MQTT disconnected", "previous_state", prev.String())

	if prev == StateConnected {
		m.dispatcher.Dispatch(DisconnectedEvent())
	}
}

// Publish sends payload to topic.
//
// If no connection has been attempted yet, Publish makes one connect
// attempt first. If there is still no connection, EventDisconnected is the
// only signal and Publish returns nil. When connected it waits up to the
// publish timeout for the acknowledgment; timeouts and delivery errors are
// logged and swallowed.
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS or ErrPayloadTooLarge only
func (m *Manager) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: got %d", ErrInvalidQoS, qos)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes exceeds %d byte limit", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	}

	if !m.IsConnected() {
		if !m.session.Load() {
			// Connect reports its own failure.
			m.Connect(ctx)
			if !m.IsConnected() {
				m.logger.Debug("MQTT publish dropped, connect failed", "topic", topic)
				return nil
			}
		} else {
			m.logger.Debug("MQTT publish dropped, not connected", "topic", topic, "state", m.State().String())
			m.dispatcher.Dispatch(DisconnectedEvent())
			return nil
		}
	}

	token := m.transport.Publish(topic, payload, qos, retained)
	if !token.WaitTimeout(m.publishTimeout) {
		m.logger.Debug("MQTT publish acknowledgment timed out", "topic", topic, "timeout", m.publishTimeout)
		return nil
	}
	if err := token.Error(); err != nil {
		m.logger.Warn("MQTT publish failed", "topic", topic, "error", err)
	}
	return nil
}

// SubscribeTo tracks topic and, when connected, subscribes on the broker.
// Subscribing to an already tracked topic with the same QoS does nothing.
func (m *Manager) SubscribeTo(topic Topic) error {
	if err := topic.Validate(); err != nil {
		return err
	}

	m.connMu.Lock()
	defer m.connMu.Unlock()

	if !m.registry.Add(topic) {
		return nil
	}
	if m.state.get() != StateConnected {
		return nil
	}

	if err := m.transport.Subscribe(topic.Name, topic.QoS); err != nil {
		m.logger.Warn("MQTT subscribe failed, will retry on next connect", "topic", topic.Name, "error", err)
		return nil
	}
	m.registry.markApplied(topic.Name)
	m.logger.Debug("MQTT subscribed", "topic", topic.Name, "qos", topic.QoS)
	return nil
}

// UnsubscribeFrom stops tracking name and, when connected, unsubscribes on
// the broker. Unsubscribing an untracked name does nothing.
func (m *Manager) UnsubscribeFrom(name string) error {
	if name == "" {
		return ErrInvalidTopic
	}

	m.connMu.Lock()
	defer m.connMu.Unlock()

	if !m.registry.Remove(name) {
		return nil
	}
	if m.state.get() != StateConnected {
		return nil
	}

	if err := m.transport.Unsubscribe(name); err != nil {
		m.logger.Warn("MQTT unsubscribe failed", "topic", name, "error", err)
		return nil
	}
	m.registry.markRemoved(name)
	m.logger.Debug("MQTT unsubscribed", "topic", name)
	return nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	return m.state.get()
}

// IsConnected reports whether the manager is Connected.
func (m *Manager) IsConnected() bool {
	return m.state.get() == StateConnected
}

// ReconnectAttempts returns the number of attempts in the current retry episode.
func (m *Manager) ReconnectAttempts() int {
	if m.State() != StateReconnecting {
		return 0
	}
	return m.scheduler.Attempts()
}

// Endpoint returns the configured broker endpoint.
func (m *Manager) Endpoint() Endpoint {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.endpoint
}

// SetEndpoint replaces the broker endpoint. It takes effect on the next
// Connect or ReInit.
func (m *Manager) SetEndpoint(endpoint Endpoint) {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	m.endpoint = endpoint
}

// SetPresence replaces the status topic messages. It takes effect on the
// next Connect or ReInit. nil disables presence.
func (m *Manager) SetPresence(p *Presence) {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	m.presence = p
}

// Topics returns the tracked topics in subscription order.
func (m *Manager) Topics() []Topic {
	return m.registry.Topics()
}

// HealthCheck verifies the broker connection is up.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.IsConnected() || !m.transport.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Register adds a listener for connection and message events.
func (m *Manager) Register(handler EventHandler) ListenerID {
	return m.dispatcher.Register(handler)
}

// Remove deregisters a listener. It is safe to call from inside the
// listener itself.
func (m *Manager) Remove(id ListenerID) {
	m.dispatcher.Remove(id)
}

// Events returns a buffered channel of events and a cancel function.
// See Dispatcher.Channel.
func (m *Manager) Events(buffer int) (<-chan Event, func()) {
	return m.dispatcher.Channel(buffer)
}

// connectLocked performs one handshake and, on success, re-applies the
// registry before reporting Connected. Caller must hold connMu.
func (m *Manager) connectLocked(ctx context.Context) bool {
	m.cfgMu.RLock()
	endpoint := m.endpoint
	opts := m.connectOpts
	presence := m.presence
	m.cfgMu.RUnlock()

	if presence != nil {
		opts.Will = presence.will()
	}

	m.state.set(StateConnecting)
	m.session.Store(true)

	err := m.transport.Connect(ctx, endpoint, opts, Callbacks{
		ConnectionLost: m.handleConnectionLost,
		MessageArrived: m.handleMessage,
	})
	if err != nil {
		m.logger.Warn("MQTT connect failed",
			"broker", endpoint.URL(),
			"client_id", endpoint.ClientID,
			"error", err,
		)
		m.state.set(StateDisconnected)
		return false
	}

	if err := m.registry.Apply(m.transport); err != nil {
		m.logger.Warn("MQTT subscription re-apply incomplete", "error", err)
	}

	if presence != nil {
		m.publishRetained(presence.Topic, presence.Online)
	}

	m.state.set(StateConnected)
	m.logger.Info("MQTT connected",
		"broker", endpoint.URL(),
		"client_id", endpoint.ClientID,
		"topics", m.registry.Len(),
	)
	return true
}

// afterConnect dispatches the outcome of a connect and, on failure, hands
// off to the Scheduler unless the caller has disconnected since.
func (m *Manager) afterConnect(ok bool, epoch uint64) {
	if ok {
		m.scheduler.Stop()
		m.dispatcher.Dispatch(ConnectedEvent())
		return
	}

	m.dispatcher.Dispatch(DisconnectedEvent())
	m.startRetry(epoch, false)
}

// startRetry moves to Reconnecting and starts the retry loop, provided no
// explicit Disconnect or ReInit happened since epoch was read.
//
// Only a lost connection (lost true) may ask a running loop for a fresh
// episode; a failed manual Connect leaves a running loop on its schedule.
func (m *Manager) startRetry(epoch uint64, lost bool) {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.epoch != epoch || m.life.Err() != nil {
		return
	}
	switch m.state.get() {
	case StateDisconnected, StateReconnecting:
		m.state.set(StateReconnecting)
		if !lost && m.scheduler.Running() {
			return
		}
		m.scheduler.Start(m.life)
	}
}

// reconnect is the Scheduler's ReconnectFunc.
func (m *Manager) reconnect(ctx context.Context, attempt int) bool {
	m.connMu.Lock()
	if ctx.Err() != nil {
		m.connMu.Unlock()
		return false
	}
	if m.state.get() == StateConnected {
		m.connMu.Unlock()
		return true
	}

	m.logger.Info("MQTT reconnect attempt", "attempt", attempt)
	ok := m.connectLocked(ctx)
	cancelled := !ok && ctx.Err() != nil
	if !ok && !cancelled {
		m.state.set(StateReconnecting)
	}
	m.connMu.Unlock()

	switch {
	case ok:
		m.dispatcher.Dispatch(ConnectedEvent())
	case !cancelled:
		m.dispatcher.Dispatch(DisconnectedEvent())
	}
	return ok
}

// handleConnectionLost is the transport's connection-lost callback.
func (m *Manager) handleConnectionLost(err error) {
	m.connMu.Lock()
	if m.state.get() != StateConnected {
		m.connMu.Unlock()
		return
	}
	m.state.set(StateReconnecting)
	epoch := m.epoch
	m.connMu.Unlock()

	m.logger.Warn("MQTT connection lost", "error", err)
	m.dispatcher.Dispatch(DisconnectedEvent())
	m.startRetry(epoch, true)
}

// handleMessage is the transport's message-arrived callback.
func (m *Manager) handleMessage(topic string, payload []byte) {
	m.dispatcher.Dispatch(MessageEvent(topic, payload))
}

// closeLocked publishes the graceful offline status and closes the
// transport. Caller must hold connMu.
func (m *Manager) closeLocked(timeout time.Duration) {
	m.cfgMu.RLock()
	presence := m.presence
	m.cfgMu.RUnlock()

	if presence != nil && m.transport.IsConnected() {
		m.publishRetained(presence.Topic, presence.Offline)
	}
	m.transport.Disconnect(timeout)
}

// publishRetained sends a retained QoS 1 status message, best effort.
func (m *Manager) publishRetained(topic string, payload []byte) {
	token := m.transport.Publish(topic, payload, QoS1, true)
	if !token.WaitTimeout(m.publishTimeout) {
		m.logger.Debug("MQTT status publish timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		m.logger.Warn("MQTT status publish failed", "topic", topic, "error", err)
	}
}
