// ABOUTME: Flat key/value gateway options as used by component descriptors.
// ABOUTME: ParseOptions maps them onto the inbound and outbound sections.

package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Recognised option names.
const (
	OptLocalService = "localService"
	OptContext      = "context"
	OptPort         = "port"
	OptWSDLLocation = "wsdlLocation"
	OptRemoteWSDL   = "remoteWSDL"
	OptServiceName  = "serviceName"
	OptComposer     = "composer"
	OptDecomposer   = "decomposer"
	OptWaitTimeout  = "waitTimeout"
	OptHost         = "host"

	// OptPublishAsWS is accepted for older descriptors and has no effect;
	// publishing is implied by localService.
	OptPublishAsWS = "publishAsWS"
)

// ParseOptions builds a validated Config from flat gateway options.
// waitTimeout is in milliseconds; composer and decomposer apply to
// whichever direction is configured. Unknown keys are logged and ignored.
func ParseOptions(opts map[string]string) (*Config, error) {
	cfg := Config{Metrics: MetricsConfig{Enabled: true}}

	for key, raw := range opts {
		value := strings.TrimSpace(raw)
		switch key {
		case OptLocalService:
			cfg.Inbound.LocalService = value
		case OptContext:
			cfg.Inbound.Context = value
		case OptHost:
			cfg.Inbound.Host = value
		case OptPort:
			port, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("option %s: %w", key, err)
			}
			cfg.Inbound.Port = port
		case OptWSDLLocation:
			cfg.Inbound.WSDLLocation = value
		case OptRemoteWSDL:
			cfg.Outbound.RemoteWSDL = value
		case OptServiceName:
			cfg.Outbound.ServiceName = value
		case OptComposer:
			cfg.Inbound.Composer = value
			cfg.Outbound.Composer = value
		case OptDecomposer:
			cfg.Inbound.Decomposer = value
			cfg.Outbound.Decomposer = value
		case OptWaitTimeout:
			cfg.Inbound.WaitTimeoutRaw = value
		case OptPublishAsWS:
		default:
			slog.Default().Warn("ignoring unknown gateway option", "option", key)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
