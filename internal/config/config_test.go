// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, durations, options and validation

package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:9090"
  grpc_addr: "0.0.0.0:9091"

inbound:
  local_service: "publish-as-ws"
  wsdl_location: "/etc/soap-gateway/HelloWebService.wsdl"
  port: -1
  context: "services"
  composer: "envelope"
  wait_timeout: "2s"

outbound:
  service_name: "webservice-consumer"
  remote_wsdl: "http://localhost:8080/HelloWebService?wsdl"
  request_timeout: 1500

fabric:
  workers: 4
  nats:
    url: "nats://localhost:4222"
    export:
      - "publish-as-ws"

database:
  path: "./test.db"
  retention: "24h"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.GRPCAddr != "0.0.0.0:9091" {
		t.Errorf("Server.GRPCAddr = %q, want %q", cfg.Server.GRPCAddr, "0.0.0.0:9091")
	}
	if cfg.Inbound.LocalService != "publish-as-ws" {
		t.Errorf("Inbound.LocalService = %q, want %q", cfg.Inbound.LocalService, "publish-as-ws")
	}
	if cfg.Inbound.Port != -1 {
		t.Errorf("Inbound.Port = %d, want -1", cfg.Inbound.Port)
	}
	if cfg.Inbound.Composer != "envelope" {
		t.Errorf("Inbound.Composer = %q, want %q", cfg.Inbound.Composer, "envelope")
	}
	if cfg.Inbound.WaitTimeout != 2*time.Second {
		t.Errorf("Inbound.WaitTimeout = %v, want %v", cfg.Inbound.WaitTimeout, 2*time.Second)
	}
	if cfg.Outbound.RequestTimeout != 1500*time.Millisecond {
		t.Errorf("Outbound.RequestTimeout = %v, want %v", cfg.Outbound.RequestTimeout, 1500*time.Millisecond)
	}
	if cfg.Fabric.Workers != 4 {
		t.Errorf("Fabric.Workers = %d, want 4", cfg.Fabric.Workers)
	}
	if cfg.Fabric.QueueSize != DefaultQueueSize {
		t.Errorf("Fabric.QueueSize = %d, want default %d", cfg.Fabric.QueueSize, DefaultQueueSize)
	}
	if len(cfg.Fabric.NATS.Export) != 1 || cfg.Fabric.NATS.Export[0] != "publish-as-ws" {
		t.Errorf("Fabric.NATS.Export = %v, want [publish-as-ws]", cfg.Fabric.NATS.Export)
	}
	if cfg.Fabric.NATS.SubjectPrefix != DefaultSubjectPrefix {
		t.Errorf("Fabric.NATS.SubjectPrefix = %q, want %q", cfg.Fabric.NATS.SubjectPrefix, DefaultSubjectPrefix)
	}
	if !cfg.Fabric.BuiltinsEnabled() {
		t.Error("Fabric.BuiltinsEnabled() = false, want true by default")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Database.Retention != 24*time.Hour {
		t.Errorf("Database.Retention = %v, want 24h", cfg.Database.Retention)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics = %+v, want enabled on %s", cfg.Metrics, DefaultMetricsPath)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "gateway.toml", `
[outbound]
service_name = "webservice-consumer"
remote_wsdl = "http://localhost:8080/HelloWebService?wsdl"
request_timeout = "5s"

[fabric]
builtins = false

[metrics]
enabled = false
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Outbound.ServiceName != "webservice-consumer" {
		t.Errorf("Outbound.ServiceName = %q, want %q", cfg.Outbound.ServiceName, "webservice-consumer")
	}
	if cfg.Outbound.RequestTimeout != 5*time.Second {
		t.Errorf("Outbound.RequestTimeout = %v, want 5s", cfg.Outbound.RequestTimeout)
	}
	if cfg.Inbound.Enabled() {
		t.Error("Inbound.Enabled() = true, want false")
	}
	if cfg.Fabric.BuiltinsEnabled() {
		t.Error("Fabric.BuiltinsEnabled() = true, want false")
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want false")
	}
	if cfg.Server.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("Server.HTTPAddr = %q, want default %q", cfg.Server.HTTPAddr, DefaultHTTPAddr)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_WSDL", "/srv/hello.wsdl")
	t.Setenv("TEST_JWT_SECRET", "super-secret-key-that-is-long-enough")

	configPath := writeConfig(t, "config.yaml", `
inbound:
  local_service: "hello"
  wsdl_location: "${TEST_WSDL}"
auth:
  jwt_secret: "${TEST_JWT_SECRET}"
database:
  path: "${TEST_UNSET_VAR}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Inbound.WSDLLocation != "/srv/hello.wsdl" {
		t.Errorf("Inbound.WSDLLocation = %q, want %q", cfg.Inbound.WSDLLocation, "/srv/hello.wsdl")
	}
	if cfg.Auth.JWTSecret != "super-secret-key-that-is-long-enough" {
		t.Errorf("Auth.JWTSecret = %q, want expanded value", cfg.Auth.JWTSecret)
	}
	if cfg.Database.Path != "" {
		t.Errorf("Database.Path = %q, want empty for unset variable", cfg.Database.Path)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
inbound:
  local_service: "hello"
  wsdl_location: "hello.wsdl"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Inbound.Host != DefaultInboundHost || cfg.Inbound.Port != DefaultInboundPort {
		t.Errorf("Inbound = %s:%d, want %s:%d", cfg.Inbound.Host, cfg.Inbound.Port, DefaultInboundHost, DefaultInboundPort)
	}
	if cfg.Inbound.WaitTimeout != DefaultWaitTimeout {
		t.Errorf("Inbound.WaitTimeout = %v, want %v", cfg.Inbound.WaitTimeout, DefaultWaitTimeout)
	}
	if cfg.Outbound.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("Outbound.RequestTimeout = %v, want %v", cfg.Outbound.RequestTimeout, DefaultRequestTimeout)
	}
	if cfg.Fabric.Workers != DefaultWorkers {
		t.Errorf("Fabric.Workers = %d, want %d", cfg.Fabric.Workers, DefaultWorkers)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want info/text", cfg.Logging)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			file:    "config.yaml",
			content: "inbound: [unclosed",
			wantErr: "parsing config file",
		},
		{
			name:    "invalid toml",
			file:    "config.toml",
			content: "[inbound\nlocal_service = 1",
			wantErr: "parsing config file",
		},
		{
			name: "bad duration",
			file: "config.yaml",
			content: `
inbound:
  local_service: "hello"
  wsdl_location: "hello.wsdl"
  wait_timeout: "soon"`,
			wantErr: "wait_timeout",
		},
		{
			name: "negative wait timeout",
			file: "config.yaml",
			content: `
inbound:
  local_service: "hello"
  wsdl_location: "hello.wsdl"
  wait_timeout: -5`,
			wantErr: "wait_timeout must be positive",
		},
		{
			name: "negative retention",
			file: "config.yaml",
			content: `
inbound:
  local_service: "hello"
  wsdl_location: "hello.wsdl"
database:
  retention: "-1h"`,
			wantErr: "database.retention must not be negative",
		},
		{
			name:    "nothing to do",
			file:    "config.yaml",
			content: "logging:\n  level: debug\n",
			wantErr: "local_service or outbound.service_name",
		},
		{
			name:    "inbound without descriptor",
			file:    "config.yaml",
			content: "inbound:\n  local_service: hello\n",
			wantErr: "inbound.wsdl_location is required",
		},
		{
			name:    "outbound without descriptor",
			file:    "config.yaml",
			content: "outbound:\n  service_name: consumer\n",
			wantErr: "outbound.remote_wsdl is required",
		},
		{
			name: "outbound shadows inbound",
			file: "config.yaml",
			content: `
inbound:
  local_service: "hello"
  wsdl_location: "hello.wsdl"
outbound:
  service_name: "hello"
  remote_wsdl: "http://localhost:8080/hello?wsdl"`,
			wantErr: "shadow",
		},
		{
			name: "bad log format",
			file: "config.yaml",
			content: `
inbound:
  local_service: "hello"
  wsdl_location: "hello.wsdl"
logging:
  format: "xml"`,
			wantErr: "logging.format",
		},
		{
			name: "tailscale without hostname",
			file: "config.yaml",
			content: `
inbound:
  local_service: "hello"
  wsdl_location: "hello.wsdl"
tailscale:
  enabled: true`,
			wantErr: "tailscale.hostname",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() error = nil, want error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error = %v, want os.ErrNotExist", err)
	}
}

func TestLoad_Sample(t *testing.T) {
	t.Setenv("SOAP_GATEWAY_WSDL", "hello.wsdl")
	t.Setenv("SOAP_GATEWAY_JWT_SECRET", "")

	cfg, err := Load(writeConfig(t, "gateway.yaml", Sample))
	if err != nil {
		t.Fatalf("Load(Sample) error = %v", err)
	}
	if cfg.Inbound.LocalService != "hello" {
		t.Errorf("Inbound.LocalService = %q, want hello", cfg.Inbound.LocalService)
	}
	if cfg.Outbound.Enabled() {
		t.Error("sample enables outbound, want it commented out")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"15000", 15 * time.Second, false},
		{" 250 ", 250 * time.Millisecond, false},
		{"0", 0, false},
		{"1m30s", 90 * time.Second, false},
		{"-10", -10 * time.Millisecond, false},
		{"fast", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseOptions(t *testing.T) {
	cfg, err := ParseOptions(map[string]string{
		OptLocalService: "publish-as-ws",
		OptContext:      "services",
		OptPort:         "9080",
		OptWSDLLocation: "HelloWebService.wsdl",
		OptRemoteWSDL:   "http://localhost:9080/services/HelloWebService?wsdl",
		OptServiceName:  "webservice-consumer",
		OptComposer:     "envelope",
		OptWaitTimeout:  "30000",
	})
	if err != nil {
		t.Fatalf("ParseOptions() error = %v", err)
	}
	if cfg.Inbound.Port != 9080 || cfg.Inbound.Context != "services" {
		t.Errorf("Inbound = %+v, want port 9080 under services", cfg.Inbound)
	}
	if cfg.Inbound.WaitTimeout != 30*time.Second {
		t.Errorf("Inbound.WaitTimeout = %v, want 30s", cfg.Inbound.WaitTimeout)
	}
	if cfg.Inbound.Composer != "envelope" || cfg.Outbound.Composer != "envelope" {
		t.Errorf("composer not applied to both directions: %q %q", cfg.Inbound.Composer, cfg.Outbound.Composer)
	}
	if cfg.Inbound.Decomposer != "" {
		t.Errorf("Inbound.Decomposer = %q, want empty", cfg.Inbound.Decomposer)
	}
	if cfg.Outbound.ServiceName != "webservice-consumer" {
		t.Errorf("Outbound.ServiceName = %q", cfg.Outbound.ServiceName)
	}
}

func TestParseOptions_Errors(t *testing.T) {
	tests := []struct {
		name    string
		opts    map[string]string
		wantErr string
	}{
		{"bad port", map[string]string{OptLocalService: "a", OptWSDLLocation: "a.wsdl", OptPort: "http"}, "option port"},
		{"negative timeout", map[string]string{OptLocalService: "a", OptWSDLLocation: "a.wsdl", OptWaitTimeout: "-1"}, "must be positive"},
		{"empty", map[string]string{}, "is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOptions(tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ParseOptions() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseOptions_IgnoresUnknownKeys(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg, err := ParseOptions(map[string]string{
		OptLocalService: "publish-as-ws",
		OptWSDLLocation: "HelloWebService.wsdl",
		OptPublishAsWS:  "true",
		"colour":        "blue",
	})
	if err != nil {
		t.Fatalf("ParseOptions() error = %v", err)
	}
	if cfg.Inbound.LocalService != "publish-as-ws" {
		t.Errorf("Inbound.LocalService = %q", cfg.Inbound.LocalService)
	}
	if !strings.Contains(logs.String(), "option=colour") {
		t.Errorf("unknown key not logged: %s", logs.String())
	}
	if strings.Contains(logs.String(), OptPublishAsWS) {
		t.Errorf("publishAsWS should be accepted silently: %s", logs.String())
	}
}

func TestFind(t *testing.T) {
	t.Run("explicit env", func(t *testing.T) {
		t.Setenv("SOAP_GATEWAY_CONFIG", "/etc/soap-gateway/custom.yaml")
		got, err := Find()
		if err != nil || got != "/etc/soap-gateway/custom.yaml" {
			t.Errorf("Find() = %q, %v", got, err)
		}
	})

	t.Run("xdg", func(t *testing.T) {
		xdg := t.TempDir()
		t.Setenv("SOAP_GATEWAY_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", xdg)
		t.Setenv("HOME", t.TempDir())

		if _, err := Find(); !errors.Is(err, ErrNoConfig) {
			t.Fatalf("Find() error = %v, want ErrNoConfig", err)
		}

		path := filepath.Join(xdg, "soap-gateway", "gateway.yaml")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(Sample), 0o644); err != nil {
			t.Fatal(err)
		}
		got, err := Find()
		if err != nil || got != path {
			t.Errorf("Find() = %q, %v, want %q", got, err, path)
		}

		def, err := DefaultPath()
		if err != nil || def != path {
			t.Errorf("DefaultPath() = %q, %v, want %q", def, err, path)
		}
	})
}
