package mqtt

import "fmt"

// QoS levels.
const (
	// QoS0 is at most once delivery.
	QoS0 byte = 0

	// QoS1 is at least once delivery.
	QoS1 byte = 1

	// QoS2 is exactly once delivery.
	QoS2 byte = 2

	// maxQoS is the maximum QoS level supported.
	maxQoS = QoS2
)

// Topic is a subscription target: a topic name plus the QoS requested for it.
//
// Two Topics refer to the same subscription when their names are equal.
// QoS is carried per subscription and is not part of the identity, so
// subscribing to an existing name with a different QoS replaces the old entry.
//
// Names may contain '/'-separated segments. The manager never interprets
// them; only consumers do.
type Topic struct {
	Name string
	QoS  byte
}

// NewTopic returns a validated Topic.
//
// Returns:
//   - Topic: The topic value
//   - error: ErrInvalidTopic for an empty name, ErrInvalidQoS for qos > 2
func NewTopic(name string, qos byte) (Topic, error) {
	t := Topic{Name: name, QoS: qos}
	if err := t.Validate(); err != nil {
		return Topic{}, err
	}
	return t, nil
}

// Validate checks the topic name and QoS.
func (t Topic) Validate() error {
	if t.Name == "" {
		return ErrInvalidTopic
	}
	if t.QoS > maxQoS {
		return fmt.Errorf("%w: got %d for %q", ErrInvalidQoS, t.QoS, t.Name)
	}
	return nil
}

// Same reports whether t and other name the same subscription target.
func (t Topic) Same(other Topic) bool {
	return t.Name == other.Name
}

// String renders the topic as name@qos, e.g. "huzzah/1@0".
func (t Topic) String() string {
	return fmt.Sprintf("%s@%d", t.Name, t.QoS)
}

// DeviceTopics holds the two working topics derived from a base topic and a
// per-device suffix.
type DeviceTopics struct {
	// Incoming carries commands to the device: <base>/<deviceID>
	Incoming Topic

	// Outgoing carries reports from the device: <base>/<deviceID>/msg
	Outgoing Topic
}

// NewDeviceTopics builds the working topics for a device.
//
// Example:
//
//	NewDeviceTopics("huzzah", "1", mqtt.QoS0)
//	// Incoming: huzzah/1, Outgoing: huzzah/1/msg
func NewDeviceTopics(base, deviceID string, qos byte) DeviceTopics {
	incoming := fmt.Sprintf("%s/%s", base, deviceID)
	return DeviceTopics{
		Incoming: Topic{Name: incoming, QoS: qos},
		Outgoing: Topic{Name: incoming + "/msg", QoS: qos},
	}
}

// Status returns the presence topic for the device: <base>/<deviceID>/status
func (d DeviceTopics) Status() string {
	return d.Incoming.Name + "/status"
}

// All returns the incoming and outgoing topics in subscription order.
func (d DeviceTopics) All() []Topic {
	return []Topic{d.Incoming, d.Outgoing}
}
