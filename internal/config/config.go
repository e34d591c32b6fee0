// ABOUTME: Configuration loading and parsing for soap-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied after loading.
const (
	DefaultHTTPAddr       = "localhost:9090"
	DefaultInboundHost    = "localhost"
	DefaultInboundPort    = 8080
	DefaultWaitTimeout    = 15 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultWorkers        = 8
	DefaultQueueSize      = 64
	DefaultSubjectPrefix  = "soapgw"
	DefaultMetricsPath    = "/metrics"
	DefaultCodec          = "default"
)

// ErrNoConfig is returned by Find when no configuration file exists.
var ErrNoConfig = errors.New("no configuration file found")

// Config represents the complete soap-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Inbound   InboundConfig   `yaml:"inbound" toml:"inbound"`
	Outbound  OutboundConfig  `yaml:"outbound" toml:"outbound"`
	Fabric    FabricConfig    `yaml:"fabric" toml:"fabric"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds admin server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"` // gRPC health; empty disables
}

// InboundConfig publishes a fabric service as a SOAP endpoint
type InboundConfig struct {
	LocalService string `yaml:"local_service" toml:"local_service"`
	WSDLLocation string `yaml:"wsdl_location" toml:"wsdl_location"`
	Host         string `yaml:"host" toml:"host"`
	Port         int    `yaml:"port" toml:"port"`
	Context      string `yaml:"context" toml:"context"`
	Composer     string `yaml:"composer" toml:"composer"`
	Decomposer   string `yaml:"decomposer" toml:"decomposer"`

	WaitTimeout    time.Duration `yaml:"-" toml:"-"`
	WaitTimeoutRaw string        `yaml:"wait_timeout" toml:"wait_timeout"`
}

// Enabled reports whether an inbound endpoint is configured.
func (c InboundConfig) Enabled() bool { return c.LocalService != "" }

// OutboundConfig exposes a remote SOAP endpoint as a fabric service
type OutboundConfig struct {
	ServiceName string `yaml:"service_name" toml:"service_name"`
	RemoteWSDL  string `yaml:"remote_wsdl" toml:"remote_wsdl"`
	Composer    string `yaml:"composer" toml:"composer"`
	Decomposer  string `yaml:"decomposer" toml:"decomposer"`

	RequestTimeout    time.Duration `yaml:"-" toml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout" toml:"request_timeout"`
}

// Enabled reports whether an outbound service is configured.
func (c OutboundConfig) Enabled() bool { return c.ServiceName != "" }

// FabricConfig holds the in-memory fabric and optional NATS settings
type FabricConfig struct {
	Workers   int        `yaml:"workers" toml:"workers"`
	QueueSize int        `yaml:"queue_size" toml:"queue_size"`
	Builtins  *bool      `yaml:"builtins" toml:"builtins"` // register echo and hello; default true
	NATS      NATSConfig `yaml:"nats" toml:"nats"`
}

// BuiltinsEnabled reports whether builtin services are registered.
func (c FabricConfig) BuiltinsEnabled() bool { return c.Builtins == nil || *c.Builtins }

// NATSConfig connects the gateway to a NATS fabric. An empty URL keeps
// everything in process.
type NATSConfig struct {
	URL           string   `yaml:"url" toml:"url"`
	SubjectPrefix string   `yaml:"subject_prefix" toml:"subject_prefix"`
	Export        []string `yaml:"export" toml:"export"` // local services served on NATS
}

// DatabaseConfig holds the exchange journal location; empty disables it
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`

	// Retention bounds the journal's age; zero keeps every call.
	Retention    time.Duration `yaml:"-" toml:"-"`
	RetentionRaw string        `yaml:"retention" toml:"retention"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	cfg := Config{Metrics: MetricsConfig{Enabled: true}}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finish parses durations, applies defaults and validates.
func (c *Config) finish() error {
	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// Find returns the configuration file to load: SOAP_GATEWAY_CONFIG, then
// $XDG_CONFIG_HOME/soap-gateway/gateway.yaml, then
// ~/.config/soap-gateway/gateway.yaml.
func Find() (string, error) {
	if p := os.Getenv("SOAP_GATEWAY_CONFIG"); p != "" {
		return p, nil
	}
	var candidates []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "soap-gateway", "gateway.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "soap-gateway", "gateway.yaml"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrNoConfig
}

// DefaultPath is where init writes a new configuration.
func DefaultPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "soap-gateway", "gateway.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "soap-gateway", "gateway.yaml"), nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Inbound.Host == "" {
		c.Inbound.Host = DefaultInboundHost
	}
	if c.Inbound.Port == 0 {
		c.Inbound.Port = DefaultInboundPort
	}
	if c.Inbound.WaitTimeout == 0 {
		c.Inbound.WaitTimeout = DefaultWaitTimeout
	}
	if c.Outbound.RequestTimeout == 0 {
		c.Outbound.RequestTimeout = DefaultRequestTimeout
	}
	if c.Fabric.Workers == 0 {
		c.Fabric.Workers = DefaultWorkers
	}
	if c.Fabric.QueueSize == 0 {
		c.Fabric.QueueSize = DefaultQueueSize
	}
	if c.Fabric.NATS.SubjectPrefix == "" {
		c.Fabric.NATS.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Inbound.Enabled() && !c.Outbound.Enabled() {
		return errors.New("inbound.local_service or outbound.service_name is required")
	}

	if c.Inbound.Enabled() && c.Inbound.WSDLLocation == "" {
		return errors.New("inbound.wsdl_location is required when inbound.local_service is set")
	}
	if c.Inbound.Port < -1 || c.Inbound.Port > 65535 {
		return fmt.Errorf("inbound.port %d is out of range", c.Inbound.Port)
	}
	if c.Inbound.WaitTimeout < 0 {
		return fmt.Errorf("inbound.wait_timeout must be positive, got %s", c.Inbound.WaitTimeout)
	}

	if c.Outbound.Enabled() && c.Outbound.RemoteWSDL == "" {
		return errors.New("outbound.remote_wsdl is required when outbound.service_name is set")
	}
	if c.Outbound.RequestTimeout < 0 {
		return fmt.Errorf("outbound.request_timeout must be positive, got %s", c.Outbound.RequestTimeout)
	}
	if c.Inbound.Enabled() && c.Outbound.Enabled() && c.Inbound.LocalService == c.Outbound.ServiceName {
		return fmt.Errorf("outbound.service_name %q would shadow inbound.local_service", c.Outbound.ServiceName)
	}

	if c.Fabric.Workers < 0 || c.Fabric.QueueSize < 0 {
		return errors.New("fabric.workers and fabric.queue_size must not be negative")
	}

	if c.Database.Retention < 0 {
		return errors.New("database.retention must not be negative")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return errors.New("tailscale.hostname is required when tailscale is enabled")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Inbound.WaitTimeoutRaw != "" {
		cfg.Inbound.WaitTimeout, err = ParseDuration(cfg.Inbound.WaitTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing wait_timeout %q: %w", cfg.Inbound.WaitTimeoutRaw, err)
		}
	}

	if cfg.Outbound.RequestTimeoutRaw != "" {
		cfg.Outbound.RequestTimeout, err = ParseDuration(cfg.Outbound.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Outbound.RequestTimeoutRaw, err)
		}
	}

	if cfg.Database.RetentionRaw != "" {
		cfg.Database.Retention, err = ParseDuration(cfg.Database.RetentionRaw)
		if err != nil {
			return fmt.Errorf("parsing retention %q: %w", cfg.Database.RetentionRaw, err)
		}
	}

	return nil
}

// ParseDuration parses a Go duration string. A plain integer is read as
// milliseconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}
