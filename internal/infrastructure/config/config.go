package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultURI is the broker used when none is configured.
const DefaultURI = "tcp://localhost:1883"

// Config is the root configuration structure for mqtt2file.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Logging  LoggingConfig  `yaml:"logging"`
	Journal  JournalConfig  `yaml:"journal"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

// MQTTConfig contains broker connection and session settings.
type MQTTConfig struct {
	// URI is the broker address, e.g. tcp://localhost:1883 or wss://host/mqtt.
	URI string `yaml:"uri"`

	// ClientIDSuffix selects a persistent session when non-empty.
	ClientIDSuffix string `yaml:"client_id_suffix"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// KeepAlive is the MQTT keep alive in seconds.
	KeepAlive int `yaml:"keep_alive"`

	// ConnectTimeout bounds a single connection attempt, in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`

	// SessionExpiry is the session expiry interval in seconds for
	// persistent sessions. Default: 360000 (100 hours).
	SessionExpiry uint32 `yaml:"session_expiry"`

	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTReconnectConfig contains reconnection settings.
type MQTTReconnectConfig struct {
	// Attempts is the number of reconnection attempts after a lost
	// connection before giving up. Default: 12
	Attempts int `yaml:"attempts"`

	// Interval is the fixed wait before each attempt, in seconds. Default: 5
	Interval int `yaml:"interval"`
}

// BridgeConfig contains the topic-to-directory bridge settings.
type BridgeConfig struct {
	// TopicPrefix is subscribed to as "<prefix>/#".
	TopicPrefix string `yaml:"topic_prefix"`

	// Directory receives one file per message.
	Directory string `yaml:"directory"`

	// Timeout is the idle timeout in minutes. Default: 5
	Timeout int `yaml:"timeout"`

	// QueueSize bounds the number of received messages buffered ahead of
	// the file writer. Default: 100
	QueueSize int `yaml:"queue_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// JournalConfig contains the SQLite save journal settings.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB statistics sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, if path is not empty
//  3. Environment variables
//
// Environment variables follow the pattern: MQTT2FILE_SECTION_KEY
// For example: MQTT2FILE_MQTT_URI, MQTT2FILE_BRIDGE_DIRECTORY
//
// Load does not validate; the caller applies command-line flags first and
// then calls Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

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

	return cfg, nil
}

// Default returns a Config with the built-in defaults.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			URI:            DefaultURI,
			KeepAlive:      60,
			ConnectTimeout: 10,
			SessionExpiry:  360000,
			Reconnect: MQTTReconnectConfig{
				Attempts: 12,
				Interval: 5,
			},
		},
		Bridge: BridgeConfig{
			Timeout:   5,
			QueueSize: 100,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
		Journal: JournalConfig{
			Path:        "./data/mqtt2file.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	// MQTT
	if v := os.Getenv("MQTT2FILE_MQTT_URI"); v != "" {
		cfg.MQTT.URI = v
	}
	if v := os.Getenv("MQTT2FILE_MQTT_CLIENT_ID_SUFFIX"); v != "" {
		cfg.MQTT.ClientIDSuffix = v
	}
	if v := os.Getenv("MQTT2FILE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("MQTT2FILE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}

	// Bridge
	if v := os.Getenv("MQTT2FILE_BRIDGE_TOPIC_PREFIX"); v != "" {
		cfg.Bridge.TopicPrefix = v
	}
	if v := os.Getenv("MQTT2FILE_BRIDGE_DIRECTORY"); v != "" {
		cfg.Bridge.Directory = v
	}
	if v := os.Getenv("MQTT2FILE_BRIDGE_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MQTT2FILE_BRIDGE_TIMEOUT: %w", err)
		}
		cfg.Bridge.Timeout = n
	}

	// Logging
	if v := os.Getenv("MQTT2FILE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Journal
	if v := os.Getenv("MQTT2FILE_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}

	// InfluxDB
	if v := os.Getenv("MQTT2FILE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
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
	if c.MQTT.URI == "" {
		errs = append(errs, "mqtt.uri is required")
	} else if u, err := url.Parse(c.MQTT.URI); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("mqtt.uri %q must look like scheme://host[:port]", c.MQTT.URI))
	}
	if c.MQTT.KeepAlive < 0 || c.MQTT.KeepAlive > 65535 {
		errs = append(errs, "mqtt.keep_alive must be between 0 and 65535")
	}
	if c.MQTT.ConnectTimeout < 1 {
		errs = append(errs, "mqtt.connect_timeout must be at least 1 second")
	}
	if c.MQTT.Reconnect.Attempts < 1 {
		errs = append(errs, "mqtt.reconnect.attempts must be at least 1")
	}
	if c.MQTT.Reconnect.Interval < 0 {
		errs = append(errs, "mqtt.reconnect.interval must not be negative")
	}

	// Bridge validation
	if c.Bridge.TopicPrefix == "" {
		errs = append(errs, "bridge.topic_prefix is required")
	} else if strings.ContainsAny(c.Bridge.TopicPrefix, "#+") {
		errs = append(errs, "bridge.topic_prefix must not contain wildcards")
	}
	if c.Bridge.Directory == "" {
		errs = append(errs, "bridge.directory is required")
	}
	if c.Bridge.Timeout < 1 {
		errs = append(errs, "bridge.timeout must be at least 1 minute")
	}
	if c.Bridge.QueueSize < 1 {
		errs = append(errs, "bridge.queue_size must be at least 1")
	}

	// Optional sinks
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetIdleTimeout returns the bridge idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Bridge.Timeout) * time.Minute
}

// GetReconnectInterval returns the reconnect interval as a Duration.
func (c *Config) GetReconnectInterval() time.Duration {
	return time.Duration(c.MQTT.Reconnect.Interval) * time.Second
}

// GetConnectTimeout returns the per-attempt connect timeout as a Duration,
// falling back to 10s when unset.
func (m MQTTConfig) GetConnectTimeout() time.Duration {
	if m.ConnectTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(m.ConnectTimeout) * time.Second
}
