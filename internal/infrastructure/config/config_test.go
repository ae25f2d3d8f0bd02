package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
mqtt:
  broker:
    address: "iot.eclipse.org"
    port: 1883
    client_id: "mood-test"
  qos: 1
  reconnect:
    base_min: 2
    base_max: 4
    unit: "500ms"
lamp:
  topic: "huzzah"
  id: "7"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "0.0.0.0"
  port: 8080
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Address != "iot.eclipse.org" {
		t.Errorf("MQTT.Broker.Address = %q, want %q", cfg.MQTT.Broker.Address, "iot.eclipse.org")
	}
	if cfg.MQTT.Broker.ClientID != "mood-test" {
		t.Errorf("MQTT.Broker.ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, "mood-test")
	}
	if cfg.MQTT.Reconnect.Unit != 500*time.Millisecond {
		t.Errorf("MQTT.Reconnect.Unit = %v, want 500ms", cfg.MQTT.Reconnect.Unit)
	}
	if cfg.Lamp.ID != "7" {
		t.Errorf("Lamp.ID = %q, want %q", cfg.Lamp.ID, "7")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	// Unset sections keep their defaults.
	if cfg.MQTT.Timeouts.PublishMS != 100 {
		t.Errorf("MQTT.Timeouts.PublishMS = %d, want default 100", cfg.MQTT.Timeouts.PublishMS)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Lamp.Topic != "huzzah" {
		t.Errorf("Lamp.Topic = %q, want default", cfg.Lamp.Topic)
	}
}

func TestLoad_GeneratesClientID(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	id := cfg.MQTT.Broker.ClientID
	if !strings.HasPrefix(id, clientIDPrefix) || len(id) != len(clientIDPrefix)+8 {
		t.Errorf("ClientID = %q, want mood- followed by 8 characters", id)
	}

	other, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if other.MQTT.Broker.ClientID == id {
		t.Errorf("two loads generated the same client id %q", id)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
lamp:
  topic: ""
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for empty lamp.topic, got nil")
	}
}

func TestLoad_MalformedPortEnv(t *testing.T) {
	t.Setenv("MOOD_MQTT_PORT", "18a3")

	_, err := Load("")
	if err == nil {
		t.Error("Load() expected error for malformed MOOD_MQTT_PORT, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.MQTT.Broker.ClientID = "mood-test"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"missing broker address", func(c *Config) { c.MQTT.Broker.Address = " " }, true},
		{"invalid broker port", func(c *Config) { c.MQTT.Broker.Port = 0 }, true},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"negative keepalive", func(c *Config) { c.MQTT.KeepAlive = -1 }, true},
		{"zero base min", func(c *Config) { c.MQTT.Reconnect.BaseMin = 0 }, true},
		{"base max below min", func(c *Config) { c.MQTT.Reconnect.BaseMax = 2 }, true},
		{"zero unit", func(c *Config) { c.MQTT.Reconnect.Unit = 0 }, true},
		{"missing lamp id", func(c *Config) { c.Lamp.ID = "" }, true},
		{"wildcard lamp topic", func(c *Config) { c.Lamp.Topic = "huzzah/#" }, true},
		{"zero colour rate", func(c *Config) { c.Lamp.ColourRate = 0 }, true},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"database disabled without path", func(c *Config) {
			c.Database.Enabled = false
			c.Database.Path = ""
		}, false},
		{"influx enabled without bucket", func(c *Config) {
			c.InfluxDB.Enabled = true
			c.InfluxDB.Bucket = ""
		}, true},
		{"invalid api port high", func(c *Config) { c.API.Port = 70000 }, true},
		{"api disabled ignores port", func(c *Config) {
			c.API.Enabled = false
			c.API.Port = 0
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.QoS = 9
	cfg.Lamp.ID = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"mqtt.qos", "lamp.id"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q does not mention %s", err, want)
		}
	}
}

func TestAPITimeoutConfig(t *testing.T) {
	timeouts := APITimeoutConfig{Read: 30, Write: 45, Idle: 60}

	if got := timeouts.ReadTimeout().Seconds(); got != 30 {
		t.Errorf("ReadTimeout() = %v, want 30", got)
	}
	if got := timeouts.WriteTimeout().Seconds(); got != 45 {
		t.Errorf("WriteTimeout() = %v, want 45", got)
	}
	if got := timeouts.IdleTimeout().Seconds(); got != 60 {
		t.Errorf("IdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("MOOD_MQTT_ADDRESS", "ssl://mqtt.example.com")
	t.Setenv("MOOD_MQTT_PORT", "8883")
	t.Setenv("MOOD_MQTT_CLIENT_ID", "mood-kitchen")
	t.Setenv("MOOD_MQTT_USERNAME", "testuser")
	t.Setenv("MOOD_MQTT_PASSWORD", "testpass")
	t.Setenv("MOOD_LAMP_TOPIC", "lamps")
	t.Setenv("MOOD_LAMP_ID", "kitchen")
	t.Setenv("MOOD_DATABASE_PATH", "/custom/path.db")
	t.Setenv("MOOD_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("MOOD_API_HOST", "192.168.1.1")
	t.Setenv("MOOD_LOG_LEVEL", "debug")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"MQTT.Broker.Address", cfg.MQTT.Broker.Address, "ssl://mqtt.example.com"},
		{"MQTT.Broker.Port", cfg.MQTT.Broker.Port, 8883},
		{"MQTT.Broker.ClientID", cfg.MQTT.Broker.ClientID, "mood-kitchen"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"Lamp.Topic", cfg.Lamp.Topic, "lamps"},
		{"Lamp.ID", cfg.Lamp.ID, "kitchen"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Reconnect.BaseMin != 5 || cfg.MQTT.Reconnect.BaseMax != 15 {
		t.Errorf("defaultConfig reconnect base = [%d, %d], want [5, 15]",
			cfg.MQTT.Reconnect.BaseMin, cfg.MQTT.Reconnect.BaseMax)
	}
	if cfg.MQTT.Timeouts.PublishMS != 100 {
		t.Errorf("defaultConfig publish timeout = %dms, want 100ms", cfg.MQTT.Timeouts.PublishMS)
	}
	if cfg.Lamp.Topic != "huzzah" || cfg.Lamp.ID != "1" {
		t.Errorf("defaultConfig lamp = %s/%s, want huzzah/1", cfg.Lamp.Topic, cfg.Lamp.ID)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
}
