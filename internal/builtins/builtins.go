// ABOUTME: Built-in fabric services and their registration on a service registry.
// ABOUTME: Defaults returns echo and hello; Register binds services by name.

package builtins

import (
	"fmt"
	"log/slog"

	"github.com/2389/soap-gateway/internal/exchange"
)

// Default service names.
const (
	EchoService  = "echo"
	HelloService = "hello"
)

// Registrar is the part of a fabric that accepts service registrations.
type Registrar interface {
	RegisterService(name string, h exchange.Handler) error
}

// Service is a named built-in provider.
type Service struct {
	Name    string
	Handler exchange.Handler
}

// Defaults returns the built-in services under their default names.
func Defaults(logger *slog.Logger) []Service {
	return []Service{
		{Name: EchoService, Handler: Echo(logger)},
		{Name: HelloService, Handler: Hello(logger)},
	}
}

// Register binds each service on r in order.
func Register(r Registrar, services ...Service) error {
	for _, s := range services {
		if err := r.RegisterService(s.Name, s.Handler); err != nil {
			return fmt.Errorf("registering builtin %s: %w", s.Name, err)
		}
	}
	return nil
}

func componentLogger(logger *slog.Logger, service string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", "builtins", "service", service)
}
