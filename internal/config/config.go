// Package config provides configuration loading and validation for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration constants.
const (
	DefaultServerHost      = "0.0.0.0"
	DefaultServerPort      = 8181
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultStartupGrace    = 5 * time.Second
	DefaultBroadcastPeriod = 30 * time.Second

	DefaultMissedThreshold = 3
	DefaultProbeInterval   = 30 * time.Second
	DefaultProbeTimeout    = 10 * time.Second
	DefaultRetryTimeout    = 5 * time.Second

	DefaultPushReconnectInitial = 1 * time.Second
	DefaultPushReconnectMax     = 30 * time.Second

	DefaultMongoDBTimeout     = 10 * time.Second
	DefaultMongoDBMaxPoolSize = 100

	DefaultRedisPoolSize = 10
)

// PushTransport selects the push channel implementation.
type PushTransport string

// Supported push transports.
const (
	// PushWebSocket subscribes to the service's WebSocket endpoint.
	PushWebSocket PushTransport = "websocket"

	// PushRedis subscribes to the service's Redis pub/sub channel.
	PushRedis PushTransport = "redis"

	// PushNone disables the push channel; the monitor runs pull-only.
	PushNone PushTransport = "none"
)

// SettingsBackend selects the settings provider implementation.
type SettingsBackend string

// Supported settings backends.
const (
	SettingsHTTP   SettingsBackend = "http"
	SettingsRedis  SettingsBackend = "redis"
	SettingsMongo  SettingsBackend = "mongo"
	SettingsMemory SettingsBackend = "memory"
)

// Config holds the complete application configuration.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Probe    ProbeConfig    `yaml:"probe"`
	Push     PushConfig     `yaml:"push"`
	Settings SettingsConfig `yaml:"settings"`
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	MongoDB  MongoDBConfig  `yaml:"mongodb"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// MetricsConfig holds Prometheus exposition configuration for the monitor
// daemon. The companion service serves /metrics on its main listener instead.
type MetricsConfig struct {
	// Addr is the listen address for the daemon's /metrics endpoint.
	// Empty disables the listener.
	Addr string `yaml:"addr" env:"METRICS_ADDR"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	// Name is the application name used in logs and metrics.
	Name string `yaml:"name" env:"APP_NAME"`
}

// MonitorConfig holds debounce/arbitration configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type MonitorConfig struct {
	// MissedThreshold is the number of consecutive failed probes required
	// before the monitor reports a disconnect.
	MissedThreshold uint `yaml:"missed_threshold" env:"MONITOR_MISSED_THRESHOLD"`

	// ProbeInterval is the period of the pull prober's timer.
	ProbeInterval time.Duration `yaml:"probe_interval" env:"MONITOR_PROBE_INTERVAL"`
}

// ProbeConfig holds pull prober configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type ProbeConfig struct {
	// BaseURL is the root URL of the monitored service.
	BaseURL string `yaml:"base_url" env:"PROBE_BASE_URL"`

	// Path is the health endpoint path resolved against BaseURL.
	Path string `yaml:"path" env:"PROBE_PATH"`

	// Timeout bounds a single probe request.
	Timeout time.Duration `yaml:"timeout" env:"PROBE_TIMEOUT"`

	// RetryTimeout bounds the single immediate retry on transport errors.
	RetryTimeout time.Duration `yaml:"retry_timeout" env:"PROBE_RETRY_TIMEOUT"`

	// RetryOnTransportError enables the single fast retry after a generic
	// transport error. Meant for hosts sitting on a diagnostics surface,
	// where one extra request is worth the faster verdict.
	RetryOnTransportError bool `yaml:"retry_on_transport_error" env:"PROBE_RETRY_ON_TRANSPORT_ERROR"`
}

// PushConfig holds push channel configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type PushConfig struct {
	Transport PushTransport `yaml:"transport" env:"PUSH_TRANSPORT"` // websocket | redis | none

	// URL is the WebSocket endpoint for the websocket transport.
	URL string `yaml:"url" env:"PUSH_URL"`

	// Channel is the pub/sub channel name for the redis transport.
	Channel string `yaml:"channel" env:"PUSH_CHANNEL"`

	// ReconnectInitial is the initial backoff between reconnect attempts.
	ReconnectInitial time.Duration `yaml:"reconnect_initial" env:"PUSH_RECONNECT_INITIAL"`

	// ReconnectMax caps the reconnect backoff.
	ReconnectMax time.Duration `yaml:"reconnect_max" env:"PUSH_RECONNECT_MAX"`
}

// SettingsConfig holds settings provider configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type SettingsConfig struct {
	Backend SettingsBackend `yaml:"backend" env:"SETTINGS_BACKEND"` // http | redis | mongo | memory

	// BaseURL is the settings API root for the http backend.
	BaseURL string `yaml:"base_url" env:"SETTINGS_BASE_URL"`

	// KeyPrefix namespaces keys in the redis backend.
	KeyPrefix string `yaml:"key_prefix" env:"SETTINGS_KEY_PREFIX"`

	// Collection is the MongoDB collection for the mongo backend.
	Collection string `yaml:"collection" env:"SETTINGS_COLLECTION"`
}

// ServerConfig holds companion service configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type ServerConfig struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`

	// StartupGrace is the window during which the health endpoint reports
	// "initializing" instead of "healthy".
	StartupGrace time.Duration `yaml:"startup_grace" env:"SERVER_STARTUP_GRACE"`

	// BroadcastPeriod is the interval between pushed health_status frames.
	BroadcastPeriod time.Duration `yaml:"broadcast_period" env:"SERVER_BROADCAST_PERIOD"`
}

// Address returns the full server address (host:port).
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisConfig holds Redis connection configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	PoolSize int    `yaml:"pool_size" env:"REDIS_POOL_SIZE"`
}

// MongoDBConfig holds MongoDB connection configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type MongoDBConfig struct {
	URI         string        `yaml:"uri" env:"MONGODB_URI"`
	Database    string        `yaml:"database" env:"MONGODB_DATABASE"`
	Timeout     time.Duration `yaml:"timeout" env:"MONGODB_TIMEOUT"`
	MaxPoolSize uint64        `yaml:"max_pool_size" env:"MONGODB_MAX_POOL_SIZE"`
}

// LogConfig holds logging configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`   // debug | info | warn | error
	Format string `yaml:"format" env:"LOG_FORMAT"` // json | text
}

// Configuration errors.
var (
	ErrConfigNotFound         = errors.New("configuration file not found")
	ErrConfigInvalid          = errors.New("invalid configuration")
	ErrInvalidDuration        = errors.New("invalid duration format")
	ErrInvalidLogLevel        = errors.New("invalid log level: must be debug, info, warn, or error")
	ErrInvalidLogFormat       = errors.New("invalid log format: must be json or text")
	ErrInvalidPushTransport   = errors.New("invalid push transport: must be websocket, redis, or none")
	ErrInvalidSettingsBackend = errors.New("invalid settings backend: must be http, redis, mongo, or memory")
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name: "uplink",
		},
		Monitor: MonitorConfig{
			MissedThreshold: DefaultMissedThreshold,
			ProbeInterval:   DefaultProbeInterval,
		},
		Probe: ProbeConfig{
			BaseURL:      "http://localhost:8181",
			Path:         "/api/health",
			Timeout:      DefaultProbeTimeout,
			RetryTimeout: DefaultRetryTimeout,
		},
		Push: PushConfig{
			Transport:        PushWebSocket,
			URL:              "ws://localhost:8181/api/ws",
			Channel:          "health_status",
			ReconnectInitial: DefaultPushReconnectInitial,
			ReconnectMax:     DefaultPushReconnectMax,
		},
		Settings: SettingsConfig{
			Backend:    SettingsHTTP,
			BaseURL:    "http://localhost:8181",
			KeyPrefix:  "settings:",
			Collection: "settings",
		},
		Server: ServerConfig{
			Host:            DefaultServerHost,
			Port:            DefaultServerPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			StartupGrace:    DefaultStartupGrace,
			BroadcastPeriod: DefaultBroadcastPeriod,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: DefaultRedisPoolSize,
		},
		MongoDB: MongoDBConfig{
			URI:         "mongodb://localhost:27017",
			Database:    "uplink",
			Timeout:     DefaultMongoDBTimeout,
			MaxPoolSize: DefaultMongoDBMaxPoolSize,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []error

	errs = c.validateMonitor(errs)
	errs = c.validateProbe(errs)
	errs = c.validatePush(errs)
	errs = c.validateSettings(errs)
	errs = c.validateServer(errs)
	errs = c.validateLog(errs)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, errors.Join(errs...))
	}

	return nil
}

// validateMonitor validates debounce/arbitration configuration.
func (c *Config) validateMonitor(errs []error) []error {
	if c.Monitor.MissedThreshold == 0 {
		errs = append(errs, errors.New("monitor.missed_threshold must be at least 1"))
	}
	if c.Monitor.ProbeInterval <= 0 {
		errs = append(errs, errors.New("monitor.probe_interval must be positive"))
	}
	return errs
}

// validateProbe validates pull prober configuration.
func (c *Config) validateProbe(errs []error) []error {
	if c.Probe.BaseURL == "" {
		errs = append(errs, errors.New("probe.base_url is required"))
	}
	if !strings.HasPrefix(c.Probe.Path, "/") {
		errs = append(errs, errors.New("probe.path must start with /"))
	}
	if c.Probe.Timeout <= 0 {
		errs = append(errs, errors.New("probe.timeout must be positive"))
	}
	if c.Probe.RetryTimeout <= 0 {
		errs = append(errs, errors.New("probe.retry_timeout must be positive"))
	}
	return errs
}

// validatePush validates push channel configuration.
func (c *Config) validatePush(errs []error) []error {
	switch c.Push.Transport {
	case PushWebSocket:
		if c.Push.URL == "" {
			errs = append(errs, errors.New("push.url is required for the websocket transport"))
		}
	case PushRedis:
		if c.Push.Channel == "" {
			errs = append(errs, errors.New("push.channel is required for the redis transport"))
		}
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis transport"))
		}
	case PushNone:
	default:
		errs = append(errs, fmt.Errorf("%w: got %q", ErrInvalidPushTransport, c.Push.Transport))
	}
	if c.Push.ReconnectInitial <= 0 {
		errs = append(errs, errors.New("push.reconnect_initial must be positive"))
	}
	if c.Push.ReconnectMax < c.Push.ReconnectInitial {
		errs = append(errs, errors.New("push.reconnect_max must be at least push.reconnect_initial"))
	}
	return errs
}

// validateSettings validates settings provider configuration.
func (c *Config) validateSettings(errs []error) []error {
	switch c.Settings.Backend {
	case SettingsHTTP:
		if c.Settings.BaseURL == "" {
			errs = append(errs, errors.New("settings.base_url is required for the http backend"))
		}
	case SettingsRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis backend"))
		}
	case SettingsMongo:
		if c.MongoDB.URI == "" {
			errs = append(errs, errors.New("mongodb.uri is required for the mongo backend"))
		}
		if c.MongoDB.Database == "" {
			errs = append(errs, errors.New("mongodb.database is required for the mongo backend"))
		}
		if c.Settings.Collection == "" {
			errs = append(errs, errors.New("settings.collection is required for the mongo backend"))
		}
	case SettingsMemory:
	default:
		errs = append(errs, fmt.Errorf("%w: got %q", ErrInvalidSettingsBackend, c.Settings.Backend))
	}
	return errs
}

// validateServer validates companion service configuration.
func (c *Config) validateServer(errs []error) []error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, errors.New("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server.write_timeout must be positive"))
	}
	if c.Server.BroadcastPeriod <= 0 {
		errs = append(errs, errors.New("server.broadcast_period must be positive"))
	}
	return errs
}

// validateLog validates logging configuration.
func (c *Config) validateLog(errs []error) []error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ErrInvalidLogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, ErrInvalidLogFormat)
	}
	return errs
}

// Load loads configuration from the default config file and environment variables.
func Load() (*Config, error) {
	return LoadFromPath("")
}

// LoadFromPath loads configuration from a specific file path.
// If path is empty, it tries to find the config file in standard locations.
func LoadFromPath(path string) (*Config, error) {
	loader := NewLoader()
	return loader.Load(path)
}

// Loader handles configuration loading from files and environment variables.
type Loader struct {
	configPaths []string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		configPaths: []string{
			"configs/config.yaml",
			"config.yaml",
			"/etc/uplink/config.yaml",
		},
	}
}

// WithConfigPaths sets custom config paths to search.
func (l *Loader) WithConfigPaths(paths []string) *Loader {
	l.configPaths = paths
	return l
}

// Load loads configuration from file and environment variables.
func (l *Loader) Load(path string) (*Config, error) {
	// Start with default config
	cfg := DefaultConfig()

	// Determine config file path
	configPath := path
	if configPath == "" {
		// Check CONFIG_PATH environment variable first
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			configPath = envPath
		} else {
			// Search in standard locations
			for _, p := range l.configPaths {
				if _, err := os.Stat(p); err == nil {
					configPath = p
					break
				}
			}
		}
	}

	// Load from file if found
	if configPath != "" {
		if err := l.loadFromFile(cfg, configPath); err != nil {
			// Only return error if path was explicitly specified
			if path != "" || os.Getenv("CONFIG_PATH") != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
			// Otherwise, continue with defaults + env vars
		}
	}

	// Override with environment variables
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate the final configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func (l *Loader) loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
		return fmt.Errorf("failed to parse config file: %w", unmarshalErr)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.loadEnvToStruct(reflect.ValueOf(cfg).Elem())
}

// loadEnvToStruct recursively loads environment variables into a struct.
func (l *Loader) loadEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := range v.NumField() {
		field := v.Field(i)
		fieldType := t.Field(i)

		// Handle embedded structs
		if field.Kind() == reflect.Struct {
			if err := l.loadEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		// Get env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		// Get environment variable value
		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		// Set field value based on type
		if err := l.setFieldFromEnv(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s from env %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

// setFieldFromEnv sets a struct field value from an environment variable string.
//
//nolint:exhaustive // We only support a subset of reflect.Kind for config values
func (l *Loader) setFieldFromEnv(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// Check if it's a time.Duration
		if field.Type() == reflect.TypeFor[time.Duration]() {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidDuration, value)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %s", value)
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid unsigned integer value: %s", value)
		}
		field.SetUint(u)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %s", value)
		}
		field.SetBool(b)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value: %s", value)
		}
		field.SetFloat(f)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// IsDevelopment returns true if the log level indicates a development environment.
func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.Log.Level) == "debug"
}
