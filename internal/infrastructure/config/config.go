package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the sensor node.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	History   HistoryConfig   `yaml:"history"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Sensors   []SensorConfig  `yaml:"sensors"`
}

// NodeConfig identifies the node in reports and topics.
type NodeConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled       bool                `yaml:"enabled"`
	Broker        MQTTBrokerConfig    `yaml:"broker"`
	Auth          MQTTAuthConfig      `yaml:"auth"`
	QoS           int                 `yaml:"qos"`
	Reconnect     MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix   string              `yaml:"topic_prefix"`
	PayloadFormat string              `yaml:"payload_format"`
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

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains live readings hub settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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

// HistoryConfig controls the local SQLite reading history.
type HistoryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Retention     time.Duration `yaml:"retention"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains the shared secret used to verify bearer tokens on
// mutating API routes.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// HardwareConfig selects the buses the drivers use.
type HardwareConfig struct {
	// Enabled opens the host buses. When false only simulated sensors can
	// be configured.
	Enabled    bool              `yaml:"enabled"`
	I2CBus     string            `yaml:"i2c_bus"`
	OneWireBus string            `yaml:"onewire_bus"`
	Power      PowerSourceConfig `yaml:"power"`
}

// PowerSourceConfig describes how the node learns whether it runs on
// external power.
type PowerSourceConfig struct {
	// Source is "static" or "gpio".
	Source string `yaml:"source"`
	// External is the fixed answer of the static source.
	External bool `yaml:"external"`
	// Pin is the GPIO sensing external power.
	Pin string `yaml:"pin"`
	// ActiveLow means a low pin level signals external power.
	ActiveLow bool `yaml:"active_low"`
}

// SchedulerConfig controls the director loop.
type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	// RestartMode is "exec" to re-execute the binary or "exit" to leave the
	// restart to the supervisor.
	RestartMode string `yaml:"restart_mode"`
}

// DeviceConfig describes one physical sensor.
type DeviceConfig struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"`
	// Module names the shared converter of pt100 probes.
	Module string `yaml:"module"`

	Address  uint16 `yaml:"address"`
	ROM      string `yaml:"rom"`
	Ref      int    `yaml:"ref"`
	Input    int    `yaml:"input"`
	PowerPin string `yaml:"power_pin"`
	Pin      string `yaml:"pin"`
	OutPin   string `yaml:"out_pin"`

	// Simulated driver.
	Base      []float64 `yaml:"base"`
	Step      float64   `yaml:"step"`
	FailEvery int       `yaml:"fail_every"`
}

// SensorConfig describes one builder: its device or group members, its
// pipeline and its channels.
type SensorConfig struct {
	DeviceConfig `yaml:",inline"`

	Policy           string          `yaml:"policy"`
	Members          []DeviceConfig  `yaml:"members"`
	Gate             string          `yaml:"gate"`
	RawMode          string          `yaml:"raw_mode"`
	Stages           []string        `yaml:"stages"`
	AlarmSkipMissing bool            `yaml:"alarm_skip_missing"`
	Channels         []ChannelConfig `yaml:"channels"`
}

// ChannelConfig describes one logical channel of a builder.
type ChannelConfig struct {
	Name           string      `yaml:"name"`
	Defaults       bool        `yaml:"defaults"`
	Unit           int         `yaml:"unit"`
	Power          float64     `yaml:"power"`
	Min            int16       `yaml:"min"`
	Max            int16       `yaml:"max"`
	CalibrationKey uint32      `yaml:"calibration_key"`
	RetryLimit     int         `yaml:"retry_limit"`
	FailLimit      int         `yaml:"fail_limit"`
	Alarm          AlarmConfig `yaml:"alarm"`
}

// AlarmConfig sets the threshold alarm of a channel. Unset bounds are not checked.
type AlarmConfig struct {
	Above *float64 `yaml:"above"`
	Below *float64 `yaml:"below"`
}

// Known drivers.
const (
	DriverSHT3x     = "sht3x"
	DriverSHT4x     = "sht4x"
	DriverDS18B20   = "ds18b20"
	DriverPT100     = "pt100"
	DriverMCS       = "mcs"
	DriverSimulated = "simulated"
)

var knownDrivers = map[string]bool{
	DriverSHT3x: true, DriverSHT4x: true, DriverDS18B20: true,
	DriverPT100: true, DriverMCS: true, DriverSimulated: true,
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SENSORNODE_SECTION_KEY
// For example: SENSORNODE_DATABASE_PATH, SENSORNODE_API_PORT
//
// Parameters:
//   - path: YAML file to read
//
// Returns:
//   - *Config: Validated configuration, sensors included
//   - error: If the file cannot be read or parsed, or fails Validate
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ID:   "node-001",
			Name: "Sensor Node",
		},
		Database: DatabaseConfig{
			Path:        "./data/sensornode.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "sensornode",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix:   "sensornode",
			PayloadFormat: "json",
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		History: HistoryConfig{
			Enabled:       true,
			Retention:     30 * 24 * time.Hour,
			PruneInterval: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
		Security: SecurityConfig{
			JWT: JWTConfig{Issuer: "sensornode"},
		},
		Hardware: HardwareConfig{
			Power: PowerSourceConfig{Source: "static"},
		},
		Scheduler: SchedulerConfig{
			PollInterval: 10 * time.Second,
			RestartMode:  "exit",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SENSORNODE_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SENSORNODE_NODE_ID"); v != "" {
		cfg.Node.ID = v
	}

	// Database
	if v := os.Getenv("SENSORNODE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SENSORNODE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SENSORNODE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SENSORNODE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("SENSORNODE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SENSORNODE_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SENSORNODE_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	// InfluxDB
	if v := os.Getenv("SENSORNODE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Scheduler
	if v := os.Getenv("SENSORNODE_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SENSORNODE_POLL_INTERVAL: %w", err)
		}
		cfg.Scheduler.PollInterval = d
	}

	if v := os.Getenv("SENSORNODE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	return nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	if c.Node.ID == "" {
		errs = append(errs, "node.id is required")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if f := c.MQTT.PayloadFormat; f != "json" && f != "cbor" {
		errs = append(errs, "mqtt.payload_format must be json or cbor")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when the api is enabled (set SENSORNODE_JWT_SECRET)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}

	if c.Scheduler.PollInterval < 0 {
		errs = append(errs, "scheduler.poll_interval must not be negative")
	}
	if m := c.Scheduler.RestartMode; m != "exec" && m != "exit" {
		errs = append(errs, "scheduler.restart_mode must be exec or exit")
	}

	switch c.Hardware.Power.Source {
	case "static":
	case "gpio":
		if c.Hardware.Power.Pin == "" {
			errs = append(errs, "hardware.power.pin is required for the gpio source")
		}
	default:
		errs = append(errs, "hardware.power.source must be static or gpio")
	}

	errs = append(errs, c.validateSensors()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateSensors() []string {
	var errs []string
	if len(c.Sensors) == 0 {
		errs = append(errs, "at least one sensor is required")
	}

	names := make(map[string]bool)
	device := func(where string, d DeviceConfig) {
		switch {
		case d.Name == "":
			errs = append(errs, where+": name is required")
		case names[d.Name]:
			errs = append(errs, fmt.Sprintf("%s: duplicate sensor name %q", where, d.Name))
		}
		names[d.Name] = true

		if !knownDrivers[d.Driver] {
			errs = append(errs, fmt.Sprintf("%s: unknown driver %q", where, d.Driver))
			return
		}
		if d.Driver != DriverSimulated && !c.Hardware.Enabled {
			errs = append(errs, fmt.Sprintf("%s: driver %s needs hardware.enabled", where, d.Driver))
		}
		if d.Driver == DriverPT100 && d.Module == "" {
			errs = append(errs, where+": pt100 needs a module")
		}
		if d.Driver == DriverMCS && (d.Pin == "" || d.OutPin == "") {
			errs = append(errs, where+": mcs needs pin and out_pin")
		}
	}

	for i, s := range c.Sensors {
		where := fmt.Sprintf("sensors[%d]", i)
		if s.Name != "" {
			where = fmt.Sprintf("sensors[%s]", s.Name)
		}

		switch s.Policy {
		case "", "standard":
			device(where, s.DeviceConfig)
			if len(s.Members) > 0 {
				errs = append(errs, where+": members need policy group")
			}
		case "group":
			if s.Name == "" {
				errs = append(errs, where+": name is required")
			}
			if len(s.Members) == 0 {
				errs = append(errs, where+": group needs members")
			}
			for j, m := range s.Members {
				device(fmt.Sprintf("%s.members[%d]", where, j), m)
			}
		default:
			errs = append(errs, fmt.Sprintf("%s: unknown policy %q", where, s.Policy))
		}

		if g := s.Gate; g != "" && g != "once" && g != "per_stage" {
			errs = append(errs, where+": gate must be once or per_stage")
		}
		if m := s.RawMode; m != "" && m != "broadcast" && m != "per_channel" {
			errs = append(errs, where+": raw_mode must be broadcast or per_channel")
		}

		if len(s.Channels) == 0 {
			errs = append(errs, where+": at least one channel is required")
		}
		for j, ch := range s.Channels {
			cw := fmt.Sprintf("%s.channels[%d]", where, j)
			if ch.Unit < 0 {
				errs = append(errs, cw+": unit must not be negative")
			}
			if ch.Min > ch.Max {
				errs = append(errs, cw+": min must not exceed max")
			}
			if ch.RetryLimit < 0 || ch.FailLimit < 0 {
				errs = append(errs, cw+": limits must not be negative")
			}
		}
	}
	return errs
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
