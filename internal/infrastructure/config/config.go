package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Variable store backends.
const (
	VariablesBackendFile   = "file"
	VariablesBackendSQLite = "sqlite"
)

// Config is the root configuration structure for relay.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Bindings   BindingsConfig   `yaml:"bindings"`
	Variables  VariablesConfig  `yaml:"variables"`
	Remote     RemoteConfig     `yaml:"remote"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
}

// ControllerConfig identifies this controller to targets and brokers.
type ControllerConfig struct {
	Name string `yaml:"name"`
}

// BindingsConfig locates the bindings file.
type BindingsConfig struct {
	Path string `yaml:"path"`

	// Watch reloads the file when it changes on disk.
	Watch bool `yaml:"watch"`

	// DebounceMS coalesces bursts of file events (milliseconds).
	DebounceMS int `yaml:"debounce_ms"`
}

// VariablesConfig selects where run-time variables are persisted.
type VariablesConfig struct {
	Backend string `yaml:"backend"` // file or sqlite
	Path    string `yaml:"path"`    // file backend only
}

// RemoteConfig contains settings for calls to target agents.
type RemoteConfig struct {
	Protocol          string          `yaml:"protocol"`
	Port              int             `yaml:"port"`
	TimeoutMS         int             `yaml:"timeout_ms"`
	TypeTextTimeoutMS int             `yaml:"type_text_timeout_ms"`
	TokenTTL          int             `yaml:"token_ttl"` // minutes
	TLS               RemoteTLSConfig `yaml:"tls"`
}

// RemoteTLSConfig contains the mutual TLS material for target calls.
type RemoteTLSConfig struct {
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings. The same secret signs outbound
// controller tokens and verifies inbound API tokens.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RELAY_SECTION_KEY
// For example: RELAY_DATABASE_PATH, RELAY_BINDINGS_PATH
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			Name: "relay-controller",
		},
		Bindings: BindingsConfig{
			Path:       "./configs/bindings.yaml",
			Watch:      true,
			DebounceMS: 250,
		},
		Variables: VariablesConfig{
			Backend: VariablesBackendFile,
			Path:    "./data/variables.yaml",
		},
		Remote: RemoteConfig{
			Protocol:          "https",
			Port:              5000,
			TimeoutMS:         3000,
			TypeTextTimeoutMS: 9000,
			TokenTTL:          60,
		},
		Database: DatabaseConfig{
			Path:        "./data/relay.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "relay-controller",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "relay",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
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
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RELAY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RELAY_CONTROLLER_NAME"); v != "" {
		cfg.Controller.Name = v
	}

	// Bindings
	if v := os.Getenv("RELAY_BINDINGS_PATH"); v != "" {
		cfg.Bindings.Path = v
	}
	if v := os.Getenv("RELAY_BINDINGS_WATCH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Bindings.Watch = b
		}
	}

	// Variables
	if v := os.Getenv("RELAY_VARIABLES_BACKEND"); v != "" {
		cfg.Variables.Backend = v
	}
	if v := os.Getenv("RELAY_VARIABLES_PATH"); v != "" {
		cfg.Variables.Path = v
	}

	// Remote
	if v := os.Getenv("RELAY_REMOTE_PROTOCOL"); v != "" {
		cfg.Remote.Protocol = v
	}
	if v := os.Getenv("RELAY_REMOTE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Remote.Port = p
		}
	}

	// Database
	if v := os.Getenv("RELAY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("RELAY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RELAY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RELAY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("RELAY_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("RELAY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv("RELAY_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Controller.Name == "" {
		errs = append(errs, "controller.name is required")
	}

	if c.Bindings.Path == "" {
		errs = append(errs, "bindings.path is required")
	}
	if c.Bindings.DebounceMS < 0 {
		errs = append(errs, "bindings.debounce_ms must not be negative")
	}

	switch c.Variables.Backend {
	case VariablesBackendFile:
		if c.Variables.Path == "" {
			errs = append(errs, "variables.path is required for the file backend")
		}
	case VariablesBackendSQLite:
	default:
		errs = append(errs, fmt.Sprintf("variables.backend must be %q or %q", VariablesBackendFile, VariablesBackendSQLite))
	}

	if c.Remote.Protocol != "http" && c.Remote.Protocol != "https" {
		errs = append(errs, "remote.protocol must be http or https")
	}
	if c.Remote.Port < 1 || c.Remote.Port > 65535 {
		errs = append(errs, "remote.port must be between 1 and 65535")
	}
	if c.Remote.TimeoutMS <= 0 || c.Remote.TypeTextTimeoutMS <= 0 {
		errs = append(errs, "remote timeouts must be positive")
	}
	if (c.Remote.TLS.CertFile == "") != (c.Remote.TLS.KeyFile == "") {
		errs = append(errs, "remote.tls.cert_file and remote.tls.key_file must be set together")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// The secret signs the tokens targets accept, so a weak one hands out
	// keyboard and process control on every target.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set RELAY_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetBindingsDebounce returns the watcher debounce as a Duration.
func (c *Config) GetBindingsDebounce() time.Duration {
	return time.Duration(c.Bindings.DebounceMS) * time.Millisecond
}

// Timeout returns the per-call timeout for ordinary remote calls.
func (r RemoteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

// TypeTextTimeout returns the per-call timeout for type-text calls.
func (r RemoteConfig) TypeTextTimeout() time.Duration {
	return time.Duration(r.TypeTextTimeoutMS) * time.Millisecond
}
