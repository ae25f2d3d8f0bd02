package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// PahoTransport implements Transport with paho.mqtt.golang.
//
// A new paho client is created on every Connect so that options such as the
// endpoint, credentials and Last Will always reflect the latest call.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type PahoTransport struct {
	mu     sync.RWMutex
	client pahomqtt.Client

	subscribeTimeout time.Duration
	logger           Logger
}

// NewPahoTransport returns an unconnected transport. A nil logger discards output.
func NewPahoTransport(logger Logger) *PahoTransport {
	if logger == nil {
		logger = noopLogger{}
	}
	return &PahoTransport{
		subscribeTimeout: defaultSubscribeTimeout,
		logger:           logger,
	}
}

// Connect opens a new paho connection and replaces any previous one.
//
// It blocks until the CONNACK arrives, the connect timeout expires, or ctx
// is cancelled.
func (p *PahoTransport) Connect(ctx context.Context, endpoint Endpoint, opts ConnectOptions, cb Callbacks) error {
	clientOpts := buildClientOptions(endpoint, opts)

	// Subscriptions are made without per-topic callbacks, so every message
	// arrives here, in broker order.
	clientOpts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if cb.MessageArrived != nil {
			cb.MessageArrived(msg.Topic(), msg.Payload())
		}
	})
	clientOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		p.logger.Debug("paho connection lost", "error", err)
		if cb.ConnectionLost != nil {
			cb.ConnectionLost(err)
		}
	})

	client := pahomqtt.NewClient(clientOpts)
	token := client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	p.mu.Lock()
	previous := p.client
	p.client = client
	p.mu.Unlock()

	if previous != nil && previous.IsConnectionOpen() {
		previous.Disconnect(0)
	}

	return nil
}

// Disconnect closes the connection, waiting up to timeout for in-flight work.
func (p *PahoTransport) Disconnect(timeout time.Duration) {
	client := p.current()
	if client == nil {
		return
	}
	if timeout < 0 {
		timeout = 0
	}
	client.Disconnect(uint(timeout.Milliseconds())) //nolint:gosec // non-negative, checked above
}

// Subscribe requests delivery of messages published to name.
func (p *PahoTransport) Subscribe(name string, qos byte) error {
	client := p.current()
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := client.Subscribe(name, qos, nil)
	if !token.WaitTimeout(p.subscribeTimeout) {
		return fmt.Errorf("%w: %q: %w", ErrSubscribeFailed, name, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrSubscribeFailed, name, err)
	}
	return nil
}

// Unsubscribe stops delivery for name.
func (p *PahoTransport) Unsubscribe(name string) error {
	client := p.current()
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := client.Unsubscribe(name)
	if !token.WaitTimeout(p.subscribeTimeout) {
		return fmt.Errorf("%w: %q: %w", ErrUnsubscribeFailed, name, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrUnsubscribeFailed, name, err)
	}
	return nil
}

// Publish sends payload to name. paho's token is returned as is.
func (p *PahoTransport) Publish(name string, payload []byte, qos byte, retained bool) DeliveryToken {
	client := p.current()
	if client == nil {
		return completedToken{err: ErrNotConnected}
	}
	return client.Publish(name, qos, retained, payload)
}

// IsConnected reports whether the paho connection is open.
func (p *PahoTransport) IsConnected() bool {
	client := p.current()
	return client != nil && client.IsConnectionOpen()
}

func (p *PahoTransport) current() pahomqtt.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

// completedToken is a DeliveryToken that is already done.
type completedToken struct {
	err error
}

func (t completedToken) WaitTimeout(time.Duration) bool { return true }
func (t completedToken) Error() error                   { return t.err }
