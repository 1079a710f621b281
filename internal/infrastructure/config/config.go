package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Homeworks Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Processor ProcessorConfig `yaml:"processor"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Forward   ForwardConfig   `yaml:"forward"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ProcessorConfig contains connection settings for the Homeworks processor.
// The processor speaks a line-oriented telnet-style protocol on port 23.
type ProcessorConfig struct {
	// Host is the processor's network address.
	Host string `yaml:"host"`

	// Port is the integration protocol port. Default: 23.
	Port int `yaml:"port"`

	// Username and Password are the integration login credentials.
	// Override with HOMEWORKS_USERNAME / HOMEWORKS_PASSWORD in production.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// CommandTimeout is the per-command reply timeout in seconds. Default: 5.
	CommandTimeout int `yaml:"command_timeout"`

	// NoResponseWindow is the settle time in milliseconds for commands the
	// processor never acknowledges. Default: 200.
	NoResponseWindow int `yaml:"no_response_window"`

	// MaxInFlight bounds the number of commands awaiting a reply on the
	// connection. The processor replies in send order, so the default of 1
	// gives strict request/reply ordering. Raise only if the firmware is
	// known to tolerate pipelining.
	MaxInFlight int `yaml:"max_in_flight"`

	// QueueSize is the capacity of the submission queue. Default: 64.
	QueueSize int `yaml:"queue_size"`

	// DispatchRetries is how many times a queued command is re-dispatched
	// after a connection loss before failing permanently. Default: 2.
	DispatchRetries int `yaml:"dispatch_retries"`

	// MaxLineLength bounds a single protocol line in bytes. A longer line
	// indicates a misbehaving device and forces a reconnect. Default: 2048.
	MaxLineLength int `yaml:"max_line_length"`

	// KeepaliveInterval is the heartbeat interval in seconds. Default: 60.
	KeepaliveInterval int `yaml:"keepalive_interval"`

	// Reconnect contains reconnection backoff settings.
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig contains reconnection backoff settings for the processor link.
type ReconnectConfig struct {
	// InitialDelay is the first backoff delay in milliseconds. Default: 250.
	InitialDelay int `yaml:"initial_delay"`

	// MaxDelay is the backoff ceiling in seconds. Default: 60.
	MaxDelay int `yaml:"max_delay"`
}

// DatabaseConfig contains settings for the device database cache.
//
// The processor publishes its programming database as XML over HTTP.
// Parsed areas and outputs are cached in SQLite so the tool surface
// keeps working while the processor is slow or unreachable.
type DatabaseConfig struct {
	// Path is the filesystem path to the SQLite cache file.
	Path string `yaml:"path"`

	// Address is the host serving DbXmlInfo.xml. Defaults to processor.host.
	Address string `yaml:"address"`

	// CacheOnly skips the XML fetch and serves the existing cache.
	CacheOnly bool `yaml:"cache_only"`

	// ExcludePaths drops entities whose hierarchy path starts with any of
	// these prefixes (e.g. "Equipment Room").
	ExcludePaths []string `yaml:"exclude_paths"`

	// Synonyms are groups of interchangeable words for name search,
	// e.g. ["lamp", "light", "lights"].
	Synonyms [][]string `yaml:"synonyms"`

	// Filters are name/subtype cleanup rules applied to entities as the
	// XML export is parsed, in order.
	Filters []FilterConfig `yaml:"filters"`
}

// FilterConfig selects a database cleanup filter by name with its
// arguments (see internal/database for the available filters).
type FilterConfig struct {
	Name string   `yaml:"name"`
	Args []string `yaml:"args"`
}

// MQTTConfig contains MQTT broker connection settings.
// The broker is optional; when disabled, unsolicited events are only
// available over the WebSocket stream.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP tool server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	// SendBuffer is the per-client outbound message buffer. When full the
	// oldest queued event is dropped and counted as an overrun.
	SendBuffer int `yaml:"send_buffer"`

	// PingInterval and PongTimeout are in seconds.
	PingInterval int `yaml:"ping_interval"`
	PongTimeout  int `yaml:"pong_timeout"`
}

// ForwardConfig contains downstream tool servers for forwarded invocations.
type ForwardConfig struct {
	// Timeout is the per-invocation forward timeout in seconds, applied
	// independently of whatever timeouts the downstream enforces. Default: 30.
	Timeout int `yaml:"timeout"`

	// Servers maps a name prefix to a downstream server. A tool named
	// "lighting/set_output_level" routes to the server "lighting" with the
	// downstream tool name "set_output_level".
	Servers map[string]ForwardServerConfig `yaml:"servers"`
}

// ForwardServerConfig describes one downstream tool server.
type ForwardServerConfig struct {
	// URL is the downstream server's HTTP endpoint,
	// e.g. "http://localhost:8061/mcp".
	URL string `yaml:"url"`
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
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HOMEWORKS_SECTION_KEY
// For example: HOMEWORKS_PROCESSOR_HOST, HOMEWORKS_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
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
		Processor: ProcessorConfig{
			Port:              23,
			Username:          "default",
			Password:          "default",
			CommandTimeout:    5,
			NoResponseWindow:  200,
			MaxInFlight:       1,
			QueueSize:         64,
			DispatchRetries:   2,
			MaxLineLength:     2048,
			KeepaliveInterval: 60,
			Reconnect: ReconnectConfig{
				InitialDelay: 250,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Path: "./data/homeworks.db",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "homeworks-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8060,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			SendBuffer:   256,
			PingInterval: 30,
			PongTimeout:  10,
		},
		Forward: ForwardConfig{
			Timeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HOMEWORKS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Processor
	if v := os.Getenv("HOMEWORKS_PROCESSOR_HOST"); v != "" {
		cfg.Processor.Host = v
	}
	if v := os.Getenv("HOMEWORKS_PROCESSOR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Processor.Port = port
		}
	}
	if v := os.Getenv("HOMEWORKS_USERNAME"); v != "" {
		cfg.Processor.Username = v
	}
	if v := os.Getenv("HOMEWORKS_PASSWORD"); v != "" {
		cfg.Processor.Password = v
	}

	// Database
	if v := os.Getenv("HOMEWORKS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("HOMEWORKS_DATABASE_ADDRESS"); v != "" {
		cfg.Database.Address = v
	}

	// MQTT
	if v := os.Getenv("HOMEWORKS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HOMEWORKS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HOMEWORKS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("HOMEWORKS_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("HOMEWORKS_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Processor.Host == "" {
		errs = append(errs, "processor.host is required")
	}
	if c.Processor.Port < 1 || c.Processor.Port > 65535 {
		errs = append(errs, "processor.port must be between 1 and 65535")
	}
	if c.Processor.MaxInFlight < 1 {
		errs = append(errs, "processor.max_in_flight must be at least 1")
	}
	if c.Processor.MaxLineLength < 64 {
		errs = append(errs, "processor.max_line_length must be at least 64")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	for name, srv := range c.Forward.Servers {
		if srv.URL == "" {
			errs = append(errs, fmt.Sprintf("forward.servers.%s.url is required", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DatabaseAddress returns the host serving the XML database,
// falling back to the processor host.
func (c *Config) DatabaseAddress() string {
	if c.Database.Address != "" {
		return c.Database.Address
	}
	return c.Processor.Host
}

// GetCommandTimeout returns the per-command timeout as a Duration.
func (c *ProcessorConfig) GetCommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeout) * time.Second
}

// GetNoResponseWindow returns the no-response settle window as a Duration.
func (c *ProcessorConfig) GetNoResponseWindow() time.Duration {
	return time.Duration(c.NoResponseWindow) * time.Millisecond
}

// GetKeepaliveInterval returns the heartbeat interval as a Duration.
func (c *ProcessorConfig) GetKeepaliveInterval() time.Duration {
	return time.Duration(c.KeepaliveInterval) * time.Second
}

// GetInitialDelay returns the initial reconnect backoff as a Duration.
func (c *ReconnectConfig) GetInitialDelay() time.Duration {
	return time.Duration(c.InitialDelay) * time.Millisecond
}

// GetMaxDelay returns the reconnect backoff ceiling as a Duration.
func (c *ReconnectConfig) GetMaxDelay() time.Duration {
	return time.Duration(c.MaxDelay) * time.Second
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

// GetTimeout returns the forwarding timeout as a Duration.
func (c *ForwardConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
