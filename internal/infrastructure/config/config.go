package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for LumiGrid Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Devices  DevicesConfig  `yaml:"devices"`
	Commands CommandsConfig `yaml:"commands"`
}

// SiteConfig contains deployment-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry history.
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

// DevicesConfig contains fleet-wide device settings.
type DevicesConfig struct {
	// MaxNodesPerGateway caps how many lighting nodes a single gateway
	// may own. Registrations beyond the cap are rejected.
	MaxNodesPerGateway int `yaml:"max_nodes_per_gateway"`

	// Bootstrap holds the values pushed to a gateway in its one-shot
	// bootstrap config immediately after it registers.
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// BootstrapConfig contains the gateway bootstrap config payload values.
type BootstrapConfig struct {
	MQTTBroker    string `yaml:"mqtt_broker"`
	MQTTPort      int    `yaml:"mqtt_port"`
	LoRaFrequency int    `yaml:"lora_frequency"`
	APN           string `yaml:"apn"`
}

// CommandsConfig contains control-command lifecycle settings.
type CommandsConfig struct {
	// AckDeadline is how long a PENDING command waits for a device ack
	// before the sweeper marks it EXPIRED (seconds).
	AckDeadline int `yaml:"ack_deadline"`

	// SweepInterval is how often the expiry sweeper runs (seconds).
	SweepInterval int `yaml:"sweep_interval"`

	// RetentionDays is how long command records are kept before being
	// purged from storage, regardless of ack status.
	RetentionDays int `yaml:"retention_days"`

	// FanOutConcurrency caps simultaneous in-flight publishes during a
	// per-node config fan-out.
	FanOutConcurrency int `yaml:"fan_out_concurrency"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LUMIGRID_SECTION_KEY
// For example: LUMIGRID_DATABASE_PATH, LUMIGRID_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "LumiGrid",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/lumigrid.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "lumigrid-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Devices: DevicesConfig{
			MaxNodesPerGateway: 50,
			Bootstrap: BootstrapConfig{
				MQTTBroker:    "localhost",
				MQTTPort:      1883,
				LoRaFrequency: 433000000,
				APN:           "internet",
			},
		},
		Commands: CommandsConfig{
			AckDeadline:       120,
			SweepInterval:     30,
			RetentionDays:     30,
			FanOutConcurrency: 5,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LUMIGRID_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("LUMIGRID_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("LUMIGRID_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LUMIGRID_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("LUMIGRID_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LUMIGRID_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("LUMIGRID_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	// Devices validation
	if c.Devices.MaxNodesPerGateway < 1 {
		errs = append(errs, "devices.max_nodes_per_gateway must be at least 1")
	}

	// Commands validation
	if c.Commands.AckDeadline < 1 {
		errs = append(errs, "commands.ack_deadline must be at least 1 second")
	}
	if c.Commands.SweepInterval < 1 {
		errs = append(errs, "commands.sweep_interval must be at least 1 second")
	}
	if c.Commands.RetentionDays < 1 {
		errs = append(errs, "commands.retention_days must be at least 1 day")
	}
	if c.Commands.FanOutConcurrency < 1 {
		errs = append(errs, "commands.fan_out_concurrency must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetAckDeadline returns the command ack deadline as a Duration.
func (c *Config) GetAckDeadline() time.Duration {
	return time.Duration(c.Commands.AckDeadline) * time.Second
}

// GetSweepInterval returns the expiry sweep interval as a Duration.
func (c *Config) GetSweepInterval() time.Duration {
	return time.Duration(c.Commands.SweepInterval) * time.Second
}

// GetRetention returns the command retention window as a Duration.
func (c *Config) GetRetention() time.Duration {
	return time.Duration(c.Commands.RetentionDays) * 24 * time.Hour
}
