package lamp

import (
	"context"
	"time"
)

// History source values.
const (
	// SourceLamp marks a colour reported by the lamp on its outgoing topic.
	SourceLamp = "lamp"

	// SourceCommand marks a command observed on the incoming topic, from
	// this process or any other client.
	SourceCommand = "command"

	// SourceLocal marks a command issued through this controller.
	SourceLocal = "local"
)

// HistoryEntry is one recorded lamp state change.
type HistoryEntry struct {
	// ID is the auto-incremented primary key.
	ID int64 `json:"id"`

	// LampID is the lamp's incoming topic, e.g. "huzzah/1".
	LampID string `json:"lamp_id"`

	// Colour is six hex digits.
	Colour string `json:"colour"`

	Automatic bool `json:"automatic"`

	// Source identifies how the change was observed (lamp, command, local).
	Source string `json:"source"`

	// CreatedAt is the time of the change (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// ConnectionEntry is one recorded broker connection event.
type ConnectionEntry struct {
	ID        int64     `json:"id"`
	ClientID  string    `json:"client_id"`
	Event     string    `json:"event"`
	Broker    string    `json:"broker,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// History stores lamp state changes and connection events.
//
// Implementations must be safe for concurrent use.
type History interface {
	// Record persists a lamp state change. CreatedAt defaults to now.
	Record(ctx context.Context, entry HistoryEntry) error

	// Recent returns the newest entries for lampID, newest first.
	// limit defaults to 50 and is capped at 200.
	Recent(ctx context.Context, lampID string, limit int) ([]HistoryEntry, error)

	// RecordConnection persists a broker connection event.
	RecordConnection(ctx context.Context, entry ConnectionEntry) error

	// RecentConnections returns the newest connection events, newest first,
	// with the same limit rules as Recent.
	RecentConnections(ctx context.Context, limit int) ([]ConnectionEntry, error)
}

// Telemetry receives lamp and connection telemetry. Writes must not block.
type Telemetry interface {
	WriteLampState(lampID, colour string, automatic bool)
	WriteConnectionEvent(clientID, event string)
}
