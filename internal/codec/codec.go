// ABOUTME: Composer/Decomposer contracts and the name-to-factory codec registry.
// ABOUTME: Resolution never fails; unknown codec names fall back to the default codec.

package codec

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/2389/soap-gateway/internal/exchange"
	"github.com/2389/soap-gateway/internal/soap"
)

// ErrTranslation is returned when a message cannot be mapped between its
// wire and internal forms.
var ErrTranslation = errors.New("translation error")

// DefaultName is the name of the codec used when none is configured.
const DefaultName = "default"

// Composer maps a wire request into an internal message.
type Composer interface {
	Compose(req *soap.Message) (*exchange.Message, error)
}

// Decomposer maps an internal message into a wire response.
type Decomposer interface {
	Decompose(msg *exchange.Message) (*soap.Message, error)
}

// ComposerFactory creates a Composer.
type ComposerFactory func() Composer

// DecomposerFactory creates a Decomposer.
type DecomposerFactory func() Decomposer

type registration struct {
	composer   ComposerFactory
	decomposer DecomposerFactory
}

var (
	registryMu sync.RWMutex
	registry   = map[string]registration{}
)

func init() {
	Register(DefaultName,
		func() Composer { return Passthrough{} },
		func() Decomposer { return Passthrough{} },
	)
	Register("passthrough",
		func() Composer { return Passthrough{} },
		func() Decomposer { return Passthrough{} },
	)
	Register("envelope",
		func() Composer { return Envelope{} },
		func() Decomposer { return Envelope{} },
	)
}

// Register makes a codec available under name. Either factory may be nil
// when the codec only works in one direction. Registering a name again
// replaces the previous factories.
func Register(name string, c ComposerFactory, d DecomposerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = registration{composer: c, decomposer: d}
}

// Names returns the registered codec names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveComposer returns the composer registered under name. An empty name
// selects the default; an unknown name is logged and also selects the default.
func ResolveComposer(name string, logger *slog.Logger) Composer {
	if name == "" {
		return Passthrough{}
	}
	registryMu.RLock()
	reg, ok := registry[name]
	registryMu.RUnlock()

	if !ok || reg.composer == nil {
		logResolveFailure(logger, "composer", name)
		return Passthrough{}
	}
	return reg.composer()
}

// ResolveDecomposer returns the decomposer registered under name, with the
// same fallback rules as ResolveComposer.
func ResolveDecomposer(name string, logger *slog.Logger) Decomposer {
	if name == "" {
		return Passthrough{}
	}
	registryMu.RLock()
	reg, ok := registry[name]
	registryMu.RUnlock()

	if !ok || reg.decomposer == nil {
		logResolveFailure(logger, "decomposer", name)
		return Passthrough{}
	}
	return reg.decomposer()
}

func logResolveFailure(logger *slog.Logger, kind, name string) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("unknown codec, falling back to default",
		"kind", kind,
		"codec", name,
		"default", DefaultName,
	)
}
