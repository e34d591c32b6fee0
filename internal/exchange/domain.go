// ABOUTME: In-memory service domain: service registry plus a worker pool that delivers exchanges
// ABOUTME: Providers run on pool workers; replies and faults reach consumers on separate goroutines

package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrServiceNotFound indicates no service is registered under the requested name.
var ErrServiceNotFound = errors.New("service not found")

// ErrServiceExists indicates a service with the same name is already registered.
var ErrServiceExists = errors.New("service already registered")

// ErrDomainClosed indicates the domain no longer accepts exchanges.
var ErrDomainClosed = errors.New("domain closed")

const (
	defaultWorkers   = 8
	defaultQueueSize = 64
)

// DomainConfig contains configuration options for a Domain.
type DomainConfig struct {
	Logger    *slog.Logger
	Workers   int
	QueueSize int
}

// delivery is one in message waiting for a pool worker.
type delivery struct {
	ex       *Exchange
	msg      *Message
	provider Handler
}

// Domain is an in-memory Fabric. Services register a Handler by name;
// consumers create exchanges against those names.
type Domain struct {
	logger *slog.Logger

	mu       sync.RWMutex
	services map[string]Handler

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan delivery
	done   chan struct{}

	closeMu sync.Mutex // protects closed and wg.Add for reply goroutines
	closed  bool
	wg      sync.WaitGroup
}

// NewDomain creates a Domain and starts its workers.
func NewDomain(cfg DomainConfig) *Domain {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Domain{
		logger:   logger,
		services: make(map[string]Handler),
		ctx:      ctx,
		cancel:   cancel,
		queue:    make(chan delivery, queueSize),
		done:     make(chan struct{}),
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// RegisterService makes h reachable under name.
func (d *Domain) RegisterService(name string, h Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.services[name]; exists {
		return fmt.Errorf("%w: %s", ErrServiceExists, name)
	}
	d.services[name] = h
	d.logger.Info("service registered", "service", name)
	return nil
}

// UnregisterService removes a service. Exchanges already in flight still complete.
func (d *Domain) UnregisterService(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.services[name]; ok {
		delete(d.services, name)
		d.logger.Info("service unregistered", "service", name)
	}
}

// HasService reports whether name is registered.
func (d *Domain) HasService(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.services[name]
	return ok
}

// Services returns the registered service names in sorted order.
func (d *Domain) Services() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.services))
	for name := range d.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateExchange implements Fabric.
func (d *Domain) CreateExchange(service string, pattern Pattern, reply Handler) (*Exchange, error) {
	if d.isClosed() {
		return nil, ErrDomainClosed
	}

	d.mu.RLock()
	provider, ok := d.services[service]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, service)
	}

	return New(uuid.NewString(), service, pattern, reply, &domainTransport{domain: d, provider: provider}), nil
}

// Close stops accepting exchanges and waits for workers and reply
// goroutines. Deliveries still queued are dropped. Safe to call multiple times.
func (d *Domain) Close() {
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		return
	}
	d.closed = true
	close(d.done)
	d.closeMu.Unlock()

	d.cancel()
	d.wg.Wait()
	d.logger.Info("domain closed", "dropped", len(d.queue))
}

func (d *Domain) isClosed() bool {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	return d.closed
}

// enqueue hands an in message to the worker pool. Blocks while the queue is
// full until ctx is done or the domain closes.
func (d *Domain) enqueue(ctx context.Context, dl delivery) error {
	if d.isClosed() {
		return ErrDomainClosed
	}
	select {
	case d.queue <- dl:
		return nil
	case <-d.done:
		return ErrDomainClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliverOut runs the consumer callback on its own goroutine.
func (d *Domain) deliverOut(ex *Exchange, fault bool) error {
	consumer := ex.Consumer()
	if consumer == nil {
		d.logger.Debug("no consumer for reply, dropping",
			"service", ex.Service(),
			"exchange_id", ex.ID(),
		)
		return nil
	}

	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		return ErrDomainClosed
	}
	d.wg.Add(1)
	d.closeMu.Unlock()

	go func() {
		defer d.wg.Done()
		defer d.recoverHandler(ex, "consumer")
		if fault {
			consumer.HandleFault(d.ctx, ex)
			return
		}
		if err := consumer.HandleMessage(d.ctx, ex); err != nil {
			d.logger.Warn("consumer failed to handle reply",
				"service", ex.Service(),
				"exchange_id", ex.ID(),
				"error", err,
			)
		}
	}()
	return nil
}

func (d *Domain) worker() {
	defer d.wg.Done()
	for {
		select {
		case dl := <-d.queue:
			d.runProvider(dl)
		case <-d.done:
			return
		}
	}
}

func (d *Domain) runProvider(dl delivery) {
	ex := dl.ex
	err := d.callProvider(dl)
	if err == nil {
		return
	}

	if ex.Pattern() != InOut {
		d.logger.Warn("in-only service failed",
			"service", ex.Service(),
			"exchange_id", ex.ID(),
			"error", err,
		)
		return
	}

	d.logger.Debug("service failed, sending fault",
		"service", ex.Service(),
		"exchange_id", ex.ID(),
		"error", err,
	)
	fault := NewMessage(err)
	if id := dl.msg.Header(HeaderCorrelationID); id != "" {
		fault.SetHeader(HeaderCorrelationID, id)
	}
	if sendErr := ex.SendFault(d.ctx, fault); sendErr != nil && !errors.Is(sendErr, ErrExchangeDone) {
		d.logger.Warn("failed to deliver fault",
			"service", ex.Service(),
			"exchange_id", ex.ID(),
			"error", sendErr,
		)
	}
}

// callProvider invokes the provider, converting panics into errors.
func (d *Domain) callProvider(dl delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("service %s panicked: %v", dl.ex.Service(), r)
		}
	}()
	return dl.provider.HandleMessage(d.ctx, dl.ex)
}

func (d *Domain) recoverHandler(ex *Exchange, role string) {
	if r := recover(); r != nil {
		d.logger.Error("handler panicked",
			"role", role,
			"service", ex.Service(),
			"exchange_id", ex.ID(),
			"panic", r,
		)
	}
}

// domainTransport routes an exchange through its owning Domain.
type domainTransport struct {
	domain   *Domain
	provider Handler
}

func (t *domainTransport) In(ctx context.Context, ex *Exchange, msg *Message) error {
	return t.domain.enqueue(ctx, delivery{ex: ex, msg: msg, provider: t.provider})
}

func (t *domainTransport) Out(_ context.Context, ex *Exchange, _ *Message, fault bool) error {
	return t.domain.deliverOut(ex, fault)
}
