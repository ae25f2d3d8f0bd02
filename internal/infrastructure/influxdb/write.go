package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementLampState       = "lamp_state"
	measurementConnectionEvent = "mqtt_connection"
)

// WriteLampState records the lamp's colour and mode.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteLampState("huzzah/1", "ff00aa", false)
func (c *Client) WriteLampState(lampID, colour string, automatic bool) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(lampStatePoint(lampID, colour, automatic, time.Now()))
}

// WriteConnectionEvent records a broker connection event such as
// "connected" or "disconnected" for the given client id.
func (c *Client) WriteConnectionEvent(clientID, event string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(connectionEventPoint(clientID, event, time.Now()))
}

func lampStatePoint(lampID, colour string, automatic bool, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementLampState,
		map[string]string{"lamp_id": lampID},
		map[string]interface{}{
			"colour":    colour,
			"automatic": automatic,
		},
		ts,
	)
}

func connectionEventPoint(clientID, event string, ts time.Time) *write.Point {
	// The event is a tag; count is always 1.
	return write.NewPoint(
		measurementConnectionEvent,
		map[string]string{
			"client_id": clientID,
			"event":     event,
		},
		map[string]interface{}{"count": 1},
		ts,
	)
}
