// Package config manages application configuration loading and validation.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultModule = "OneSignalPush"

// BridgeConfig configures the plugin surface the host drives.
type BridgeConfig struct {
	AppID string `yaml:"appId"`
	// Module is the native module name every call targets.
	Module          string `yaml:"module"`
	ConsentRequired bool   `yaml:"consentRequired"`
	ConsentGiven    bool   `yaml:"consentGiven"`
	// LogLevel and AlertLevel use the native 0 (none) to 6 (verbose) scale.
	LogLevel   int `yaml:"logLevel"`
	AlertLevel int `yaml:"alertLevel"`
}

// TransportConfig configures the websocket link to the native host.
type TransportConfig struct {
	Endpoint             string        `yaml:"endpoint"`
	DialTimeout          time.Duration `yaml:"dialTimeout"`
	ReconnectInterval    time.Duration `yaml:"reconnectInterval"`
	MaxReconnectInterval time.Duration `yaml:"maxReconnectInterval"`
	PingInterval         time.Duration `yaml:"pingInterval"`
	ReadLimitBytes       int64         `yaml:"readLimitBytes"`
	RateLimit            float64       `yaml:"rateLimit"`
	RateBurst            int           `yaml:"rateBurst"`
}

func (c *TransportConfig) applyDefaults() {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	if c.Endpoint == "" {
		c.Endpoint = "ws://127.0.0.1:8787/bridge"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 500 * time.Millisecond
	}
	if c.MaxReconnectInterval <= 0 {
		c.MaxReconnectInterval = 20 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.ReadLimitBytes <= 0 {
		c.ReadLimitBytes = 2 * 1024 * 1024
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 16
	}
}

func (c TransportConfig) validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("endpoint scheme must be ws or wss")
	}
	if c.MaxReconnectInterval < c.ReconnectInterval {
		return fmt.Errorf("maxReconnectInterval must be >= reconnectInterval")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rateLimit must be >=0")
	}
	return nil
}

// DatabaseConfig controls PostgreSQL connectivity and migration behaviour.
type DatabaseConfig struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	RunMigrations     bool          `yaml:"runMigrations"`
}

func (c *DatabaseConfig) applyDefaults() {
	c.DSN = strings.TrimSpace(c.DSN)
	if c.MaxConns <= 0 {
		c.MaxConns = 4
	}
	if c.MinConns <= 0 {
		c.MinConns = 1
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = 30 * time.Second
	}
}

func (c DatabaseConfig) validate() error {
	if c.MaxConns <= 0 {
		return fmt.Errorf("maxConns must be >0")
	}
	if c.MinConns < 0 {
		return fmt.Errorf("minConns must be >=0")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("minConns must be <= maxConns")
	}
	return nil
}

// JournalConfig controls recording of bridge traffic. An empty database DSN
// keeps the journal in memory.
type JournalConfig struct {
	Enabled        bool           `yaml:"enabled"`
	Workers        int            `yaml:"workers"`
	Queue          int            `yaml:"queue"`
	MemoryCapacity int            `yaml:"memoryCapacity"`
	Database       DatabaseConfig `yaml:"database"`
}

// Persistent reports whether entries go to PostgreSQL.
func (c JournalConfig) Persistent() bool {
	return c.Enabled && c.Database.DSN != ""
}

// TelemetryConfig configures OTLP exporters (metrics only).
type TelemetryConfig struct {
	OTLPEndpoint  string `yaml:"otlpEndpoint"`
	ServiceName   string `yaml:"serviceName"`
	OTLPInsecure  bool   `yaml:"otlpInsecure"`
	EnableMetrics bool   `yaml:"enableMetrics"`
}

// ScriptsConfig defines where JavaScript sources run against the plugin are
// discovered.
type ScriptsConfig struct {
	Directory string `yaml:"directory"`
}

// ControlConfig configures the HTTP control API. An empty address disables it.
type ControlConfig struct {
	Addr string `yaml:"addr"`
}

func (c ControlConfig) validate() error {
	if c.Addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("addr: %w", err)
	}
	return nil
}

// AppConfig is the unified pushbridge configuration sourced from YAML.
type AppConfig struct {
	Environment Environment     `yaml:"environment"`
	Bridge      BridgeConfig    `yaml:"bridge"`
	Transport   TransportConfig `yaml:"transport"`
	Journal     JournalConfig   `yaml:"journal"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Scripts     ScriptsConfig   `yaml:"scripts"`
	Control     ControlConfig   `yaml:"control"`
}

// Default returns the configuration used when no file is supplied.
func Default() AppConfig {
	cfg := AppConfig{
		Environment: EnvDev,
		Bridge:      BridgeConfig{LogLevel: 4},
		Journal:     JournalConfig{Enabled: true},
		Telemetry:   TelemetryConfig{ServiceName: "pushbridge", EnableMetrics: true},
	}
	_ = cfg.normalise()
	return cfg
}

// Load reads and validates an AppConfig from the provided YAML file.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	_ = ctx

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	bytes, err := io.ReadAll(reader)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	cfg := AppConfig{
		Journal:   JournalConfig{Enabled: true},
		Telemetry: TelemetryConfig{EnableMetrics: true},
	}
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.normalise(); err != nil {
		return AppConfig{}, err
	}

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadOrDefault loads configPath when it exists and falls back to Default
// otherwise. The boolean reports whether a file was read.
func LoadOrDefault(ctx context.Context, configPath string) (AppConfig, bool, error) {
	if strings.TrimSpace(configPath) == "" {
		return Default(), false, nil
	}
	cfg, err := Load(ctx, configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), false, nil
		}
		return AppConfig{}, false, err
	}
	return cfg, true, nil
}

func (c *AppConfig) normalise() error {
	c.Environment = normalizeEnvironment(c.Environment)
	if c.Environment == "" {
		c.Environment = EnvDev
	}

	c.Bridge.AppID = strings.TrimSpace(c.Bridge.AppID)
	c.Bridge.Module = strings.TrimSpace(c.Bridge.Module)
	if c.Bridge.Module == "" {
		c.Bridge.Module = defaultModule
	}

	c.Transport.applyDefaults()

	if c.Journal.Workers <= 0 {
		c.Journal.Workers = 2
	}
	if c.Journal.Queue <= 0 {
		c.Journal.Queue = 1024
	}
	if c.Journal.MemoryCapacity <= 0 {
		c.Journal.MemoryCapacity = 4096
	}
	c.Journal.Database.applyDefaults()

	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "pushbridge"
	}

	c.Control.Addr = strings.TrimSpace(c.Control.Addr)

	if dir := strings.TrimSpace(c.Scripts.Directory); dir != "" {
		c.Scripts.Directory = filepath.Clean(dir)
	}
	return nil
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}

	if c.Bridge.Module != defaultModule {
		return fmt.Errorf("bridge module must be %s", defaultModule)
	}
	if c.Bridge.LogLevel < 0 || c.Bridge.LogLevel > 6 {
		return fmt.Errorf("bridge logLevel must be between 0 and 6")
	}
	if c.Bridge.AlertLevel < 0 || c.Bridge.AlertLevel > 6 {
		return fmt.Errorf("bridge alertLevel must be between 0 and 6")
	}

	if err := c.Transport.validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate(); err != nil {
			return fmt.Errorf("journal database: %w", err)
		}
	}

	if err := c.Control.validate(); err != nil {
		return fmt.Errorf("control: %w", err)
	}

	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		return fmt.Errorf("telemetry serviceName required")
	}
	return nil
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := strings.TrimSpace(path)
	candidate = filepath.Clean(candidate)

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
