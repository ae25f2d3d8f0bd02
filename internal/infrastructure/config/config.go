package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// clientIDPrefix is prepended to generated MQTT client identifiers.
const clientIDPrefix = "mood-"

// Config is the root configuration structure for Mood Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Lamp      LampConfig      `yaml:"lamp"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker       MQTTBrokerConfig    `yaml:"broker"`
	Auth         MQTTAuthConfig      `yaml:"auth"`
	QoS          int                 `yaml:"qos"`
	KeepAlive    int                 `yaml:"keep_alive"` // seconds
	CleanSession bool                `yaml:"clean_session"`
	Timeouts     MQTTTimeoutConfig   `yaml:"timeouts"`
	Reconnect    MQTTReconnectConfig `yaml:"reconnect"`

	// Presence publishes retained online/offline status on <topic>/<id>/status
	// and registers the offline message as the Last Will.
	Presence bool `yaml:"presence"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	// Address is the broker host, optionally with a scheme (tcp://, ssl://, ws://).
	// A bare host gets tcp://, or ssl:// when TLS is set.
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	TLS     bool   `yaml:"tls"`

	// ClientID must be unique per device. Generated when empty.
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTimeoutConfig contains MQTT operation timeouts.
type MQTTTimeoutConfig struct {
	Connect      int `yaml:"connect"`       // seconds
	PublishMS    int `yaml:"publish_ms"`    // milliseconds
	DisconnectMS int `yaml:"disconnect_ms"` // milliseconds
}

// MQTTReconnectConfig contains MQTT reconnection settings.
//
// A base delay is drawn once per process uniformly from [BaseMin, BaseMax]
// units. Attempts 1-7 wait one base, 8-13 wait six, later attempts thirty.
type MQTTReconnectConfig struct {
	BaseMin int           `yaml:"base_min"`
	BaseMax int           `yaml:"base_max"`
	Unit    time.Duration `yaml:"unit"`
}

// LampConfig identifies the mood lamp this process controls.
type LampConfig struct {
	// Topic is the base topic. Commands go to <topic>/<id>,
	// reports arrive on <topic>/<id>/msg.
	Topic string `yaml:"topic"`
	ID    string `yaml:"id"`

	// ColourRate limits colour commands per second; ColourBurst allows
	// short bursts above it (e.g. dragging a colour picker).
	ColourRate  float64 `yaml:"colour_rate"`
	ColourBurst int     `yaml:"colour_burst"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//  4. Generated values (client id when still empty)
//
// Environment variables follow the pattern: MOOD_SECTION_KEY
// For example: MOOD_MQTT_ADDRESS, MOOD_LAMP_ID
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = GenerateClientID()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// GenerateClientID returns a random client identifier such as "mood-1f2e3d4c".
func GenerateClientID() string {
	return clientIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Address: "localhost",
				Port:    1883,
			},
			QoS:          0,
			KeepAlive:    60,
			CleanSession: true,
			Timeouts: MQTTTimeoutConfig{
				Connect:      10,
				PublishMS:    100,
				DisconnectMS: 1000,
			},
			Reconnect: MQTTReconnectConfig{
				BaseMin: 5,
				BaseMax: 15,
				Unit:    time.Second,
			},
			Presence: true,
		},
		Lamp: LampConfig{
			Topic:       "huzzah",
			ID:          "1",
			ColourRate:  10,
			ColourBurst: 5,
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/moodcore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			URL:           "http://localhost:8086",
			Org:           "mood",
			Bucket:        "moodcore",
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MOOD_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// MQTT
	if v := os.Getenv("MOOD_MQTT_ADDRESS"); v != "" {
		cfg.MQTT.Broker.Address = v
	}
	if v := os.Getenv("MOOD_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MOOD_MQTT_PORT %q: %w", v, err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("MOOD_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("MOOD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MOOD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Lamp
	if v := os.Getenv("MOOD_LAMP_TOPIC"); v != "" {
		cfg.Lamp.Topic = v
	}
	if v := os.Getenv("MOOD_LAMP_ID"); v != "" {
		cfg.Lamp.ID = v
	}

	// Database
	if v := os.Getenv("MOOD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("MOOD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("MOOD_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Logging
	if v := os.Getenv("MOOD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if strings.TrimSpace(c.MQTT.Broker.Address) == "" {
		errs = append(errs, "mqtt.broker.address is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.KeepAlive < 0 {
		errs = append(errs, "mqtt.keep_alive must not be negative")
	}
	if c.MQTT.Reconnect.BaseMin < 1 {
		errs = append(errs, "mqtt.reconnect.base_min must be at least 1")
	}
	if c.MQTT.Reconnect.BaseMax < c.MQTT.Reconnect.BaseMin {
		errs = append(errs, "mqtt.reconnect.base_max must not be less than base_min")
	}
	if c.MQTT.Reconnect.Unit <= 0 {
		errs = append(errs, "mqtt.reconnect.unit must be positive")
	}

	// Lamp validation
	if c.Lamp.Topic == "" {
		errs = append(errs, "lamp.topic is required")
	}
	if c.Lamp.ID == "" {
		errs = append(errs, "lamp.id is required")
	}
	if strings.ContainsAny(c.Lamp.Topic+c.Lamp.ID, "+#") {
		errs = append(errs, "lamp.topic and lamp.id must not contain MQTT wildcards")
	}
	if c.Lamp.ColourRate <= 0 {
		errs = append(errs, "lamp.colour_rate must be positive")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when enabled")
		}
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReadTimeout returns the read timeout as a Duration.
func (t APITimeoutConfig) ReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteTimeout returns the write timeout as a Duration.
func (t APITimeoutConfig) WriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleTimeout returns the keep-alive idle timeout as a Duration.
func (t APITimeoutConfig) IdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}
