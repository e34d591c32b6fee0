// ABOUTME: Exchange, pattern and handler contracts of the internal service fabric
// ABOUTME: An exchange carries one in message and, for in-out, one reply or fault

package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoReplyExpected is returned when a reply is sent on an in-only exchange.
var ErrNoReplyExpected = errors.New("no reply expected for in-only exchange")

// ErrExchangeDone is returned when sending on an exchange that already completed.
var ErrExchangeDone = errors.New("exchange already completed")

// Pattern is the declared message exchange pattern.
type Pattern int

const (
	// InOnly is a one-way exchange: no reply or fault is delivered.
	InOnly Pattern = iota
	// InOut is a request-response exchange: exactly one reply or fault is delivered.
	InOut
)

func (p Pattern) String() string {
	switch p {
	case InOnly:
		return "in-only"
	case InOut:
		return "in-out"
	default:
		return fmt.Sprintf("pattern(%d)", int(p))
	}
}

// Handler receives exchanges. Providers get the in message through
// HandleMessage; consumers get the reply through HandleMessage and faults
// through HandleFault.
type Handler interface {
	HandleMessage(ctx context.Context, ex *Exchange) error
	HandleFault(ctx context.Context, ex *Exchange)
}

// HandlerFunc adapts a function to a Handler that ignores faults.
type HandlerFunc func(ctx context.Context, ex *Exchange) error

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(ctx context.Context, ex *Exchange) error {
	return f(ctx, ex)
}

// HandleFault does nothing.
func (f HandlerFunc) HandleFault(context.Context, *Exchange) {}

// Fabric creates exchanges addressed to a named service.
type Fabric interface {
	CreateExchange(service string, pattern Pattern, reply Handler) (*Exchange, error)
}

// Transport moves an exchange's messages. In delivers the in message to the
// provider; Out delivers the reply or fault back to the consumer.
type Transport interface {
	In(ctx context.Context, ex *Exchange, msg *Message) error
	Out(ctx context.Context, ex *Exchange, msg *Message, fault bool) error
}

type phase int

const (
	phaseNew phase = iota
	phaseIn
	phaseDone
)

// Exchange is a single conversation between a consumer and a service.
type Exchange struct {
	id        string
	service   string
	pattern   Pattern
	consumer  Handler
	transport Transport

	mu    sync.Mutex
	phase phase
	msg   *Message
	fault bool
}

// New creates an exchange. Fabrics call this; consumers use Fabric.CreateExchange.
func New(id, service string, pattern Pattern, consumer Handler, t Transport) *Exchange {
	return &Exchange{
		id:        id,
		service:   service,
		pattern:   pattern,
		consumer:  consumer,
		transport: t,
	}
}

// ID returns the exchange identifier.
func (e *Exchange) ID() string { return e.id }

// Service returns the target service name.
func (e *Exchange) Service() string { return e.service }

// Pattern returns the exchange pattern.
func (e *Exchange) Pattern() Pattern { return e.pattern }

// Consumer returns the reply handler supplied at creation.
func (e *Exchange) Consumer() Handler { return e.consumer }

// Message returns the most recently sent message.
func (e *Exchange) Message() *Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.msg
}

// IsFault reports whether the most recent message was sent as a fault.
func (e *Exchange) IsFault() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fault
}

// Send sends the in message on a new exchange, or the reply on an in-out
// exchange that has been received by its provider.
func (e *Exchange) Send(ctx context.Context, msg *Message) error {
	return e.send(ctx, msg, false)
}

// SendFault sends a fault back to the consumer of an in-out exchange.
func (e *Exchange) SendFault(ctx context.Context, msg *Message) error {
	return e.send(ctx, msg, true)
}

func (e *Exchange) send(ctx context.Context, msg *Message, fault bool) error {
	e.mu.Lock()
	switch e.phase {
	case phaseNew:
		if fault {
			e.mu.Unlock()
			return fmt.Errorf("fault on unsent exchange %s", e.id)
		}
		e.phase = phaseIn
		e.msg = msg
		e.mu.Unlock()
		return e.transport.In(ctx, e, msg)
	case phaseIn:
		if e.pattern != InOut {
			e.mu.Unlock()
			return ErrNoReplyExpected
		}
		e.phase = phaseDone
		e.msg = msg
		e.fault = fault
		e.mu.Unlock()
		return e.transport.Out(ctx, e, msg, fault)
	default:
		e.mu.Unlock()
		return ErrExchangeDone
	}
}
