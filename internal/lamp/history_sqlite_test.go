package lamp

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/mood-core/internal/infrastructure/config"
	"github.com/nerrad567/mood-core/internal/infrastructure/database"
	"github.com/nerrad567/mood-core/migrations"
)

func newTestHistory(t *testing.T) *SQLiteHistory {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if _, err := db.Migrate(ctx, migrations.FS()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteHistory(db.DB)
}

func TestSQLiteHistory_RecordAndRecent(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	entries := []HistoryEntry{
		{LampID: "huzzah/1", Colour: "ff00aa", Source: SourceLocal, CreatedAt: base},
		{LampID: "huzzah/1", Colour: "000000", Automatic: true, Source: SourceLamp, CreatedAt: base.Add(time.Second)},
		{LampID: "huzzah/2", Colour: "00ff00", Source: SourceCommand, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := h.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := h.Recent(ctx, "huzzah/1", 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent() len = %d, want 2", len(got))
	}
	if got[0].Colour != "000000" || !got[0].Automatic || got[0].Source != SourceLamp {
		t.Errorf("Recent()[0] = %+v, want newest lamp entry", got[0])
	}
	if !got[1].CreatedAt.Equal(base) {
		t.Errorf("Recent()[1].CreatedAt = %v, want %v", got[1].CreatedAt, base)
	}
	if got[1].ID == 0 {
		t.Error("Recent()[1].ID = 0, want assigned id")
	}
}

func TestSQLiteHistory_RecentEmpty(t *testing.T) {
	h := newTestHistory(t)

	got, err := h.Recent(context.Background(), "huzzah/9", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Recent() = %v, want empty non-nil slice", got)
	}
}

func TestSQLiteHistory_Limit(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	for i := range 5 {
		if err := h.Record(ctx, HistoryEntry{LampID: "huzzah/1", Colour: "000000", Source: SourceLamp,
			CreatedAt: time.Unix(int64(i), 0)}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := h.Recent(ctx, "huzzah/1", 3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("Recent(limit 3) len = %d, want 3", len(got))
	}
}

func TestSQLiteHistory_RecordRequiresLamp(t *testing.T) {
	h := newTestHistory(t)

	if err := h.Record(context.Background(), HistoryEntry{Colour: "000000"}); err == nil {
		t.Error("Record() without lamp id error = nil, want error")
	}
}

func TestSQLiteHistory_Connections(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	for _, ev := range []string{"connected", "disconnected", "connected"} {
		if err := h.RecordConnection(ctx, ConnectionEntry{ClientID: "mood-test", Event: ev, Broker: "tcp://localhost:1883"}); err != nil {
			t.Fatalf("RecordConnection() error = %v", err)
		}
	}
	if err := h.RecordConnection(ctx, ConnectionEntry{ClientID: "mood-test"}); err == nil {
		t.Error("RecordConnection() without event error = nil, want error")
	}

	got, err := h.RecentConnections(ctx, 2)
	if err != nil {
		t.Fatalf("RecentConnections() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("RecentConnections() len = %d, want 2", len(got))
	}
	if got[0].Event != "connected" || got[1].Event != "disconnected" {
		t.Errorf("RecentConnections() events = %s, %s; want connected, disconnected", got[0].Event, got[1].Event)
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-1, 50},
		{0, 50},
		{1, 1},
		{200, 200},
		{201, 200},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestController_WithSQLiteHistory(t *testing.T) {
	h := newTestHistory(t)
	broker := newFakeBroker()

	ctrl, err := NewController(broker, Options{Topic: "huzzah", DeviceID: "1", History: h})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	if err := ctrl.Attach(); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	broker.message("huzzah/1/msg", "95,0,63")

	got, err := h.Recent(context.Background(), "huzzah/1", 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 1 || got[0].Colour != "be007e" || !got[0].Automatic {
		t.Errorf("Recent() = %+v, want be007e automatic", got)
	}
}
