package mqtt

import (
	"context"
	"time"
)

// Transport is the capability set the Manager needs from a publish/subscribe
// client library. PahoTransport implements it on top of paho.mqtt.golang;
// tests use an in-memory fake.
//
// Implementations must be safe for concurrent use. Callbacks passed to
// Connect may be invoked from a goroutine owned by the transport.
type Transport interface {
	// Connect opens a connection to the endpoint, blocking for the duration
	// of the handshake. It replaces any previous connection.
	Connect(ctx context.Context, endpoint Endpoint, opts ConnectOptions, cb Callbacks) error

	// Disconnect closes the connection, waiting up to timeout for in-flight work.
	Disconnect(timeout time.Duration)

	// Subscribe requests delivery of messages published to name.
	Subscribe(name string, qos byte) error

	// Unsubscribe stops delivery for name.
	Unsubscribe(name string) error

	// Publish sends payload to name. The returned token completes when the
	// broker acknowledges delivery (immediately for QoS 0).
	Publish(name string, payload []byte, qos byte, retained bool) DeliveryToken

	// IsConnected reports whether the underlying connection is open.
	IsConnected() bool
}

// Callbacks receive inbound notifications from a Transport.
type Callbacks struct {
	// ConnectionLost is called once when an open connection drops.
	// It is not called for Disconnect.
	ConnectionLost func(err error)

	// MessageArrived is called for every message on a subscribed topic,
	// in the order the broker delivered them.
	MessageArrived func(topic string, payload []byte)
}

// DeliveryToken tracks completion of a publish. paho's Token satisfies it.
type DeliveryToken interface {
	// WaitTimeout blocks until completion or timeout; false means timed out.
	WaitTimeout(d time.Duration) bool

	// Error returns the delivery error, if any, once complete.
	Error() error
}

// Will is a Last Will and Testament message published by the broker when
// the client disconnects unexpectedly.
type Will struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// ConnectOptions are the per-connection transport options.
type ConnectOptions struct {
	// KeepAlive is the liveness ping interval negotiated with the broker.
	KeepAlive time.Duration

	// CleanSession discards broker-side session state on every connect.
	CleanSession bool

	// ConnectTimeout bounds the handshake.
	ConnectTimeout time.Duration

	// TLS switches a bare address to the ssl:// scheme.
	TLS bool

	// Will is optional.
	Will *Will
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
