// ABOUTME: Exchange fabric over NATS: in-only publishes, in-out uses request/reply.
// ABOUTME: Replies and faults are delivered to the exchange's reply handler.

package natsfabric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/2389/soap-gateway/internal/exchange"
)

const (
	// DefaultPrefix is the subject prefix services are addressed under.
	DefaultPrefix = "soapgw"

	// DefaultRequestTimeout bounds an in-out request on the wire.
	DefaultRequestTimeout = 30 * time.Second
)

// ErrFabricClosed is returned when creating exchanges after Close.
var ErrFabricClosed = errors.New("nats fabric closed")

// Config contains configuration options for the Fabric.
type Config struct {
	Prefix         string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Fabric implements exchange.Fabric on a NATS connection.
type Fabric struct {
	conn    *nats.Conn
	prefix  string
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ exchange.Fabric = (*Fabric)(nil)

// New creates a Fabric. The connection stays owned by the caller.
func New(conn *nats.Conn, cfg Config) *Fabric {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Fabric{
		conn:    conn,
		prefix:  prefix,
		timeout: timeout,
		logger:  logger.With("component", "natsfabric"),
	}
}

// Connect dials url with reconnect handling logged to logger.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("soap-gateway"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats %s: %w", url, err)
	}
	return conn, nil
}

// Subject returns the subject service is addressed under.
func (f *Fabric) Subject(service string) string {
	return f.prefix + "." + service
}

// CreateExchange creates an exchange addressed to service.
func (f *Fabric) CreateExchange(service string, pattern exchange.Pattern, reply exchange.Handler) (*exchange.Exchange, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, ErrFabricClosed
	}
	if f.conn == nil || f.conn.IsClosed() {
		return nil, nats.ErrConnectionClosed
	}
	return exchange.New(uuid.New().String(), service, pattern, reply, &transport{fabric: f}), nil
}

// Close waits for in-flight requests to finish.
func (f *Fabric) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.wg.Wait()
}

type transport struct {
	fabric *Fabric
}

// In publishes the in message. For in-out exchanges the request runs in the
// background and its answer is sent back through the exchange.
func (t *transport) In(ctx context.Context, ex *exchange.Exchange, msg *exchange.Message) error {
	f := t.fabric
	m, err := encode(f.Subject(ex.Service()), msg)
	if err != nil {
		return err
	}
	m.Header.Set(HeaderPattern, ex.Pattern().String())
	m.Header.Set(HeaderID, ex.ID())

	if ex.Pattern() != exchange.InOut {
		if err := f.conn.PublishMsg(m); err != nil {
			return fmt.Errorf("publishing to %s: %w", m.Subject, err)
		}
		return nil
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFabricClosed
	}
	f.wg.Add(1)
	f.mu.Unlock()

	// The caller's deadline may be shorter than ours; the bridge owns that wait.
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	go func() {
		defer f.wg.Done()
		defer cancel()
		f.request(reqCtx, ex, m)
	}()
	return nil
}

func (f *Fabric) request(ctx context.Context, ex *exchange.Exchange, m *nats.Msg) {
	resp, err := f.conn.RequestMsgWithContext(ctx, m)
	if err != nil {
		f.logger.Warn("request failed",
			"service", ex.Service(),
			"exchange_id", ex.ID(),
			"error", err,
		)
		fault := exchange.NewMessage(fmt.Errorf("nats request to %s: %w", m.Subject, err))
		if id := m.Header.Get(headerPrefix + exchange.HeaderCorrelationID); id != "" {
			fault.SetHeader(exchange.HeaderCorrelationID, id)
		}
		_ = ex.SendFault(ctx, fault)
		return
	}

	reply := decode(resp)
	if isFault(resp) {
		err = ex.SendFault(ctx, reply)
	} else {
		err = ex.Send(ctx, reply)
	}
	if err != nil {
		f.logger.Warn("failed to deliver reply",
			"service", ex.Service(),
			"exchange_id", ex.ID(),
			"error", err,
		)
	}
}

// Out hands the reply or fault to the exchange's consumer.
func (t *transport) Out(ctx context.Context, ex *exchange.Exchange, _ *exchange.Message, fault bool) error {
	consumer := ex.Consumer()
	if consumer == nil {
		return nil
	}
	if fault {
		consumer.HandleFault(ctx, ex)
		return nil
	}
	return consumer.HandleMessage(ctx, ex)
}
