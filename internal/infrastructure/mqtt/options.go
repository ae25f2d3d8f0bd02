package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mood-core/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for the handshake.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds the wait for a publish acknowledgment.
	// Publishing is best effort, so this is kept short.
	defaultPublishTimeout = 100 * time.Millisecond

	// defaultSubscribeTimeout bounds the wait for a SUBACK/UNSUBACK.
	defaultSubscribeTimeout = 5 * time.Second

	// defaultDisconnectTimeout is the time to wait for pending work on disconnect.
	defaultDisconnectTimeout = time.Second

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxPayloadSize caps a single publish at 1 MiB.
	maxPayloadSize = 1 << 20

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// secureSchemes select a TLS configuration in buildClientOptions.
var secureSchemes = []string{"ssl://", "tls://", "mqtts://", "wss://"}

// Options configures a Manager.
type Options struct {
	// Connect holds the per-connection transport options.
	Connect ConnectOptions

	// Topics seed the subscription registry.
	Topics []Topic

	// PublishTimeout bounds the wait for a publish acknowledgment.
	// Default: 100ms
	PublishTimeout time.Duration

	// DisconnectTimeout is used when the manager closes the transport on its own
	// (ReInit, Stop).
	// Default: 1s
	DisconnectTimeout time.Duration

	// Backoff is the reconnection schedule. A zero Base picks a random base
	// in [5s, 15s].
	Backoff Backoff

	// Presence, when set, publishes retained online/offline status messages
	// and registers the offline message as the Last Will.
	Presence *Presence

	// Logger is optional.
	Logger Logger
}

// withDefaults fills unset fields.
func (o Options) withDefaults() Options {
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = defaultPublishTimeout
	}
	if o.DisconnectTimeout <= 0 {
		o.DisconnectTimeout = defaultDisconnectTimeout
	}
	if o.Connect.ConnectTimeout <= 0 {
		o.Connect.ConnectTimeout = defaultConnectTimeout
	}
	if o.Connect.KeepAlive <= 0 {
		o.Connect.KeepAlive = defaultKeepAlive
	}
	if o.Backoff.Base <= 0 {
		o.Backoff.Base = RandomBase(DefaultBaseMin, DefaultBaseMax, time.Second)
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o
}

// Presence describes the retained status messages published on a device's
// status topic.
//
// Topic: <base>/<deviceID>/status
// QoS: 1 (guaranteed delivery)
// Retained: true (new subscribers see last status)
type Presence struct {
	Topic   string
	Online  []byte
	Offline []byte
	Will    []byte
}

// presencePayload is the JSON body of a status message.
type presencePayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewPresence builds the status messages for clientID on topic.
//
// The Will payload is published by the broker if the client disconnects
// unexpectedly (crash, network failure, etc.). This allows other services
// to detect when the controller goes offline.
func NewPresence(topic, clientID string) *Presence {
	return &Presence{
		Topic:   topic,
		Online:  buildPresencePayload("online", clientID, ""),
		Offline: buildPresencePayload("offline", clientID, "graceful_shutdown"),
		Will:    buildPresencePayload("offline", clientID, "unexpected_disconnect"),
	}
}

// will returns the Last Will for p.
func (p *Presence) will() *Will {
	return &Will{Topic: p.Topic, Payload: p.Will, QoS: QoS1, Retained: true}
}

func buildPresencePayload(status, clientID, reason string) []byte {
	//nolint:errchkjson // plain string fields cannot fail to encode
	data, _ := json.Marshal(presencePayload{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return data
}

// OptionsFromConfig builds the broker endpoint and manager options from the
// mqtt config section. statusTopic enables presence messages when
// cfg.Presence is set; pass "" to disable them.
func OptionsFromConfig(cfg config.MQTTConfig, statusTopic string) (Endpoint, Options) {
	endpoint := Endpoint{
		Address:  cfg.Broker.Address,
		Port:     cfg.Broker.Port,
		ClientID: cfg.Broker.ClientID,
		Username: cfg.Auth.Username,
		Password: cfg.Auth.Password,
	}

	opts := Options{
		Connect: ConnectOptions{
			KeepAlive:      time.Duration(cfg.KeepAlive) * time.Second,
			CleanSession:   cfg.CleanSession,
			ConnectTimeout: time.Duration(cfg.Timeouts.Connect) * time.Second,
			TLS:            cfg.Broker.TLS,
		},
		PublishTimeout:    time.Duration(cfg.Timeouts.PublishMS) * time.Millisecond,
		DisconnectTimeout: time.Duration(cfg.Timeouts.DisconnectMS) * time.Millisecond,
		Backoff: Backoff{
			Base: RandomBase(cfg.Reconnect.BaseMin, cfg.Reconnect.BaseMax, cfg.Reconnect.Unit),
		},
	}

	if cfg.Presence && statusTopic != "" {
		opts.Presence = NewPresence(statusTopic, endpoint.ClientID)
	}

	return endpoint, opts
}

// brokerURL renders the paho broker URL. A bare address gets ssl:// when
// TLS is requested and tcp:// otherwise.
func brokerURL(endpoint Endpoint, useTLS bool) string {
	address := strings.TrimSpace(endpoint.Address)
	if useTLS && !strings.Contains(address, "://") {
		address = "ssl://" + address
	}
	return Endpoint{Address: address, Port: endpoint.Port}.URL()
}

// isSecureURL reports whether url uses a TLS scheme.
func isSecureURL(url string) bool {
	lower := strings.ToLower(url)
	for _, scheme := range secureSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

// buildClientOptions creates paho options for one connection.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on address and TLS setting)
//   - Client ID for identification
//   - Authentication credentials (only when a username is set)
//   - Clean session and keepalive
//   - TLS configuration (for secure schemes)
//   - Last Will and Testament (if provided)
//
// paho's own reconnect logic is disabled: the Manager's Scheduler owns
// retries so that subscriptions and events stay consistent.
func buildClientOptions(endpoint Endpoint, opts ConnectOptions) *pahomqtt.ClientOptions {
	clientOpts := pahomqtt.NewClientOptions()

	url := brokerURL(endpoint, opts.TLS)
	clientOpts.AddBroker(url)

	clientOpts.SetClientID(endpoint.ClientID)

	if endpoint.HasCredentials() {
		clientOpts.SetUsername(endpoint.Username)
		clientOpts.SetPassword(endpoint.Password)
	}

	clientOpts.SetCleanSession(opts.CleanSession)

	clientOpts.SetAutoReconnect(false)
	clientOpts.SetConnectRetry(false)

	// Deliver messages one at a time in broker order.
	clientOpts.SetOrderMatters(true)

	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	clientOpts.SetConnectTimeout(connectTimeout)

	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	clientOpts.SetKeepAlive(keepAlive)

	if isSecureURL(url) {
		clientOpts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	if opts.Will != nil {
		clientOpts.SetBinaryWill(opts.Will.Topic, opts.Will.Payload, opts.Will.QoS, opts.Will.Retained)
	}

	return clientOpts
}
