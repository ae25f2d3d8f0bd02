package mqtt

import "errors"

// Caller errors. Publish and the subscription calls return only these;
// broker and network failures become state changes, Disconnected events
// and log lines.
var (
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
	ErrInvalidQoS   = errors.New("mqtt: qos out of range")

	// ErrPayloadTooLarge is returned for payloads over maxPayloadSize.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")
)

// Transport errors. HealthCheck reports ErrNotConnected; Transport
// implementations wrap the library error with
// one of these so the Manager can log and classify it.
var (
	ErrNotConnected      = errors.New("mqtt: no broker session")
	ErrConnectionFailed  = errors.New("mqtt: connect rejected")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe rejected")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe rejected")
	ErrTimeout           = errors.New("mqtt: broker did not acknowledge in time")
)
