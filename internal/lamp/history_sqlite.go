package lamp

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// SQLiteHistory implements History using the lamp_state_history and
// connection_events tables.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory creates a history store on an open, migrated database.
func NewSQLiteHistory(db *sql.DB) *SQLiteHistory {
	return &SQLiteHistory{db: db}
}

// Record inserts a lamp state change.
func (h *SQLiteHistory) Record(ctx context.Context, entry HistoryEntry) error {
	if entry.LampID == "" {
		return fmt.Errorf("lamp id is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := h.db.ExecContext(ctx,
		`INSERT INTO lamp_state_history (lamp_id, colour, automatic, source, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.LampID,
		entry.Colour,
		boolToInt(entry.Automatic),
		entry.Source,
		entry.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting lamp state history: %w", err)
	}
	return nil
}

// Recent returns the newest entries for lampID, newest first.
func (h *SQLiteHistory) Recent(ctx context.Context, lampID string, limit int) ([]HistoryEntry, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, lamp_id, colour, automatic, source, created_at
		 FROM lamp_state_history
		 WHERE lamp_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		lampID,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying lamp state history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var (
			e         HistoryEntry
			automatic int
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.LampID, &e.Colour, &automatic, &e.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning lamp state history: %w", err)
		}
		e.Automatic = automatic != 0
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lamp state history: %w", err)
	}
	return entries, nil
}

// RecordConnection inserts a broker connection event.
func (h *SQLiteHistory) RecordConnection(ctx context.Context, entry ConnectionEntry) error {
	if entry.Event == "" {
		return fmt.Errorf("event is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := h.db.ExecContext(ctx,
		`INSERT INTO connection_events (client_id, event, broker, created_at)
		 VALUES (?, ?, ?, ?)`,
		entry.ClientID,
		entry.Event,
		entry.Broker,
		entry.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting connection event: %w", err)
	}
	return nil
}

// RecentConnections returns the newest connection events, newest first.
func (h *SQLiteHistory) RecentConnections(ctx context.Context, limit int) ([]ConnectionEntry, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, client_id, event, broker, created_at
		 FROM connection_events
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying connection events: %w", err)
	}
	defer rows.Close()

	entries := []ConnectionEntry{}
	for rows.Next() {
		var (
			e         ConnectionEntry
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.ClientID, &e.Event, &e.Broker, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning connection event: %w", err)
		}
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connection events: %w", err)
	}
	return entries, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultHistoryLimit
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return limit
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
