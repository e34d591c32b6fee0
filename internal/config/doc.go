// ABOUTME: Package documentation for gateway configuration.
// ABOUTME: Describes file formats, env expansion and flat options.

// Package config handles configuration loading for soap-gateway.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. The package provides validation and sensible defaults. Flat
// key/value gateway options can be mapped onto the same structure with
// ParseOptions.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from SOAP_GATEWAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/soap-gateway/gateway.yaml
//  3. ~/.config/soap-gateway/gateway.yaml
//
// A path ending in .toml is decoded as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${SOAP_GATEWAY_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax. A bare integer is
// read as milliseconds:
//
//	inbound:
//	  wait_timeout: 15000     # 15s
//	outbound:
//	  request_timeout: "30s"
//
// # Configuration Sections
//
// Inbound publishes a fabric service as a SOAP endpoint:
//
//	inbound:
//	  local_service: "publish-as-ws"
//	  wsdl_location: "/etc/soap-gateway/HelloWebService.wsdl"
//	  host: "localhost"
//	  port: 8080            # -1 picks a free port
//	  context: "services"   # endpoint path prefix
//
// Outbound exposes a remote SOAP endpoint as a fabric service:
//
//	outbound:
//	  service_name: "webservice-consumer"
//	  remote_wsdl: "http://localhost:8080/HelloWebService?wsdl"
//
// Fabric, with optional NATS:
//
//	fabric:
//	  workers: 8
//	  queue_size: 64
//	  nats:
//	    url: "nats://localhost:4222"
//	    export: ["hello"]
//
// The admin server, journal, auth, tailscale, logging and metrics sections
// follow the sample written by `soap-gateway init`.
//
// # Validation
//
// Load() and ParseOptions() validate:
//
//   - at least one of inbound.local_service or outbound.service_name
//   - inbound.wsdl_location when inbound is configured
//   - outbound.remote_wsdl when outbound is configured
//   - non-negative timeouts
//   - tailscale.hostname when tailscale is enabled
package config
