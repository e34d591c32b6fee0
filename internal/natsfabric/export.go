// ABOUTME: Serves a local fabric service to NATS subscribers.
// ABOUTME: Requests become local exchanges; their replies are answered on the wire.

package natsfabric

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/2389/soap-gateway/internal/exchange"
)

// QueueGroup load-balances exports of the same service across gateways.
const QueueGroup = "soapgw"

// Export is a local service reachable over NATS.
type Export struct {
	sub     *nats.Subscription
	service string
	logger  *slog.Logger
}

// Export subscribes to service's subject and forwards each request to the
// same-named service on local.
func (f *Fabric) Export(ctx context.Context, local exchange.Fabric, service string) (*Export, error) {
	logger := f.logger.With("service", service)
	subject := f.Subject(service)

	sub, err := f.conn.QueueSubscribe(subject, QueueGroup, func(m *nats.Msg) {
		serve(ctx, local, service, m, f.conn, logger)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	logger.Info("exported service", "subject", subject)
	return &Export{sub: sub, service: service, logger: logger}, nil
}

// Stop drains the subscription.
func (e *Export) Stop() error {
	if err := e.sub.Drain(); err != nil {
		return fmt.Errorf("draining export of %s: %w", e.service, err)
	}
	e.logger.Info("export stopped")
	return nil
}

func serve(ctx context.Context, local exchange.Fabric, service string, m *nats.Msg, conn *nats.Conn, logger *slog.Logger) {
	pattern := parsePattern(m.Header.Get(HeaderPattern))
	if m.Reply == "" {
		pattern = exchange.InOnly
	}

	var reply exchange.Handler
	if pattern == exchange.InOut {
		reply = &responder{conn: conn, inbox: m.Reply, logger: logger}
	}

	ex, err := local.CreateExchange(service, pattern, reply)
	if err == nil {
		err = ex.Send(ctx, decode(m))
	}
	if err != nil {
		logger.Error("failed to dispatch nats request", "error", err)
		if pattern == exchange.InOut {
			respond(conn, m.Reply, exchange.NewMessage(err), true, logger)
		}
	}
}

// responder answers a NATS request with an exchange's reply or fault.
type responder struct {
	conn   *nats.Conn
	inbox  string
	logger *slog.Logger
}

func (r *responder) HandleMessage(_ context.Context, ex *exchange.Exchange) error {
	respond(r.conn, r.inbox, ex.Message(), false, r.logger)
	return nil
}

func (r *responder) HandleFault(_ context.Context, ex *exchange.Exchange) {
	respond(r.conn, r.inbox, ex.Message(), true, r.logger)
}

func respond(conn *nats.Conn, inbox string, msg *exchange.Message, fault bool, logger *slog.Logger) {
	m, err := encode(inbox, msg)
	if err != nil {
		logger.Error("failed to encode reply", "error", err)
		m, _ = encode(inbox, exchange.NewMessage(err.Error()))
		fault = true
	}
	if fault {
		m.Header.Set(HeaderFault, "true")
	}
	if err := conn.PublishMsg(m); err != nil {
		logger.Error("failed to publish reply", "error", err)
	}
}
