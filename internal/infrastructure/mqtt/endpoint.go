package mqtt

import (
	"fmt"
	"strings"
)

// defaultScheme is prefixed to broker addresses that carry no scheme.
const defaultScheme = "tcp://"

// knownSchemes are the broker URL schemes accepted by paho.
var knownSchemes = []string{"tcp://", "ssl://", "tls://", "ws://", "wss://", "mqtt://", "mqtts://"}

// Endpoint identifies the broker and the identity used against it.
//
// An Endpoint is only read when a connection is opened. Changing it while
// connected has no effect until the next Connect or ReInit.
type Endpoint struct {
	// Address is the broker address including scheme, e.g. "tcp://broker.local".
	Address string

	// Port is the broker port, e.g. 1883.
	Port int

	// ClientID identifies this client to the broker. The broker drops an
	// older session that uses the same id, so it must be unique per device.
	ClientID string

	// Username is optional. Credentials are only sent when it is set.
	Username string

	// Password is sent together with Username.
	Password string
}

// NormaliseAddress prefixes a bare host with the tcp:// scheme.
//
// Example:
//
//	NormaliseAddress("iot.eclipse.org")       // "tcp://iot.eclipse.org"
//	NormaliseAddress("ssl://broker.local")    // unchanged
func NormaliseAddress(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	lower := strings.ToLower(address)
	for _, scheme := range knownSchemes {
		if strings.HasPrefix(lower, scheme) {
			return address
		}
	}
	return defaultScheme + address
}

// URL returns the broker URL in the form paho expects: scheme://host:port.
func (e Endpoint) URL() string {
	return fmt.Sprintf("%s:%d", NormaliseAddress(e.Address), e.Port)
}

// HasCredentials reports whether a username is configured.
func (e Endpoint) HasCredentials() bool {
	return e.Username != ""
}

// Redacted returns a copy safe for logging and API responses.
func (e Endpoint) Redacted() Endpoint {
	if e.Password != "" {
		e.Password = "********"
	}
	return e
}
