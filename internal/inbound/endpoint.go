// ABOUTME: Inbound gateway endpoint: lifecycle around a published SOAP port and per-call dispatch.
// ABOUTME: The descriptor's one-way flag alone decides whether a call waits for a reply.

package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/soap-gateway/internal/bridge"
	"github.com/2389/soap-gateway/internal/codec"
	"github.com/2389/soap-gateway/internal/exchange"
	"github.com/2389/soap-gateway/internal/fault"
	"github.com/2389/soap-gateway/internal/soap"
	"github.com/2389/soap-gateway/internal/store"
	"github.com/2389/soap-gateway/internal/wsdl"
)

// ErrEndpointPublish indicates the endpoint could not be started.
var ErrEndpointPublish = errors.New("endpoint publish failed")

// State is the endpoint lifecycle state.
type State int

const (
	StateCreated State = iota
	StateStarted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DescriptorReader loads a service description and picks its port.
type DescriptorReader interface {
	Read(ctx context.Context, location string) (*wsdl.Definition, error)
	FirstPort(def *wsdl.Definition) (*wsdl.PortDescriptor, error)
}

// CallHandler receives wire calls from a published endpoint.
type CallHandler interface {
	HandleWireCall(ctx context.Context, call *Call) *Reply
}

// Publisher exposes a port on the wire and routes its calls to a handler.
type Publisher interface {
	Publish(ctx context.Context, def *wsdl.Definition, port *wsdl.PortDescriptor, h CallHandler) (EndpointHandle, error)
}

// EndpointHandle is a published endpoint.
type EndpointHandle interface {
	Address() string
	Stop(ctx context.Context) error
}

// Invoker sends an internal message and, for in-out, waits for the result.
type Invoker interface {
	Invoke(ctx context.Context, service string, pattern exchange.Pattern, msg *exchange.Message) (*bridge.Result, error)
}

// Call is one inbound wire request.
type Call struct {
	Request    *soap.Message
	SOAPAction string
}

// Reply is the endpoint's answer to a wire call. A nil Message on an in-out
// operation means no result arrived in time; the wire layer reports that as
// a timeout fault. A nil Message on a one-way operation means accepted.
type Reply struct {
	Message   *soap.Message
	Operation string
	OneWay    bool
	Fault     bool
}

// Config is the endpoint's resolved configuration.
type Config struct {
	LocalService string
	WSDLLocation string
}

// Deps are the endpoint's collaborators.
type Deps struct {
	Reader     DescriptorReader
	Publisher  Publisher
	Invoker    Invoker
	Composer   codec.Composer
	Decomposer codec.Decomposer
	Faults     *fault.Translator
	Journal    store.Journal // optional
	Logger     *slog.Logger
}

// Endpoint publishes a fabric service as a SOAP endpoint.
type Endpoint struct {
	cfg  Config
	deps Deps

	logger *slog.Logger

	mu     sync.RWMutex
	state  State
	def    *wsdl.Definition
	port   *wsdl.PortDescriptor
	handle EndpointHandle
}

// New creates an endpoint in the created state.
func New(cfg Config, deps Deps) *Endpoint {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "inbound", "service", cfg.LocalService)
	if deps.Composer == nil {
		deps.Composer = codec.Passthrough{}
	}
	if deps.Decomposer == nil {
		deps.Decomposer = codec.Passthrough{}
	}
	if deps.Faults == nil {
		deps.Faults = fault.NewTranslator(logger)
	}
	return &Endpoint{cfg: cfg, deps: deps, logger: logger}
}

// State returns the lifecycle state.
func (e *Endpoint) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Port returns the resolved port, or nil before Start.
func (e *Endpoint) Port() *wsdl.PortDescriptor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.port
}

// Address returns the published address, or "" when not started.
func (e *Endpoint) Address() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.handle == nil || e.state != StateStarted {
		return ""
	}
	return e.handle.Address()
}

// Start reads the service description and publishes its first port. On
// failure the endpoint stays in the created state.
func (e *Endpoint) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateCreated {
		return fmt.Errorf("%w: endpoint is %s", ErrEndpointPublish, e.state)
	}

	def, err := e.deps.Reader.Read(ctx, e.cfg.WSDLLocation)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %w", ErrEndpointPublish, e.cfg.WSDLLocation, err)
	}
	port, err := e.deps.Reader.FirstPort(def)
	if err != nil {
		return fmt.Errorf("%w: resolving port: %w", ErrEndpointPublish, err)
	}
	handle, err := e.deps.Publisher.Publish(ctx, def, port, e)
	if err != nil {
		return fmt.Errorf("%w: publishing %s: %w", ErrEndpointPublish, port.ServiceName, err)
	}

	e.def = def
	e.port = port
	e.handle = handle
	e.state = StateStarted

	e.logger.Info("endpoint published",
		"address", handle.Address(),
		"port", port.PortName,
		"operations", len(port.Operations),
	)
	return nil
}

// Stop unpublishes the endpoint. Stopping an endpoint that is not started
// logs a warning and does nothing.
func (e *Endpoint) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateStarted {
		state := e.state
		e.mu.Unlock()
		e.logger.Warn("stop ignored, endpoint not started", "state", state)
		return nil
	}
	handle := e.handle
	e.state = StateStopped
	e.mu.Unlock()

	// Unlocked: in-flight calls read the port while the listener drains.
	if err := handle.Stop(ctx); err != nil {
		return fmt.Errorf("stopping endpoint: %w", err)
	}
	e.logger.Info("endpoint stopped")
	return nil
}

// HandleWireCall implements CallHandler. It never panics; every failure is
// returned as a fault reply.
func (e *Endpoint) HandleWireCall(ctx context.Context, call *Call) (reply *Reply) {
	start := time.Now()
	rec := &store.CallRecord{
		Direction: store.DirectionInbound,
		Service:   e.cfg.LocalService,
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("wire call panicked", "panic", r)
			reply = faultReply(soap.NewFault(soap.CodeServer, "internal error"), rec.Operation, false)
			rec.Outcome = store.OutcomeError
			rec.Error = fmt.Sprint(r)
		}
		rec.Duration = time.Since(start)
		e.journal(rec)
	}()

	return e.dispatch(ctx, call, rec)
}

func (e *Endpoint) dispatch(ctx context.Context, call *Call, rec *store.CallRecord) *Reply {
	port := e.Port()
	if port == nil || call == nil || call.Request == nil {
		rec.Outcome = store.OutcomeError
		return faultReply(soap.NewFault(soap.CodeServer, "endpoint not started"), "", false)
	}

	element := ""
	if payload := call.Request.Payload(); payload != nil {
		element = payload.Tag
	}
	op, ok := port.Lookup(element, call.SOAPAction)
	if !ok {
		rec.Outcome = store.OutcomeTranslation
		rec.Operation = element
		e.logger.Warn("unknown operation", "element", element, "soap_action", call.SOAPAction)
		return faultReply(soap.NewFault(soap.CodeClient, fmt.Sprintf("unknown operation %q", element)), element, false)
	}
	rec.Operation = op.Name

	pattern := exchange.InOut
	if op.OneWay {
		pattern = exchange.InOnly
	}
	rec.Pattern = pattern.String()

	msg, err := e.deps.Composer.Compose(call.Request)
	if err != nil {
		if !errors.Is(err, codec.ErrTranslation) {
			err = fmt.Errorf("%w: %w", codec.ErrTranslation, err)
		}
		e.logger.Warn("compose failed", "operation", op.Name, "error", err)
		rec.Outcome = store.OutcomeTranslation
		rec.Error = err.Error()
		return faultReply(fault.FromError(err), op.Name, op.OneWay)
	}
	msg.SetHeader(exchange.HeaderOperation, op.Name)
	if call.SOAPAction != "" {
		msg.SetHeader(exchange.HeaderSOAPAction, call.SOAPAction)
	}

	e.logger.Info("→ wire call",
		"operation", op.Name,
		"pattern", pattern,
	)

	res, err := e.deps.Invoker.Invoke(ctx, e.cfg.LocalService, pattern, msg)
	rec.CorrelationID = msg.Header(exchange.HeaderCorrelationID)

	switch {
	case err == nil && op.OneWay:
		rec.Outcome = store.OutcomeAccepted
		return &Reply{Operation: op.Name, OneWay: true}
	case errors.Is(err, bridge.ErrCorrelationTimeout):
		rec.Outcome = store.OutcomeTimeout
		return &Reply{Operation: op.Name}
	case err != nil:
		rec.Outcome = store.OutcomeError
		if errors.Is(err, bridge.ErrFabricDispatch) {
			rec.Outcome = store.OutcomeDispatch
		}
		rec.Error = err.Error()
		f := fault.FromError(err)
		rec.FaultCode = f.Code
		return faultReply(f, op.Name, op.OneWay)
	}

	if res == nil {
		rec.Outcome = store.OutcomeTimeout
		return &Reply{Operation: op.Name}
	}

	if res.Fault {
		f := e.deps.Faults.Translate(res.Message)
		rec.Outcome = store.OutcomeFault
		rec.FaultCode = f.Code
		e.logger.Info("← fault", "operation", op.Name, "fault_code", f.Code)
		return faultReply(f, op.Name, false)
	}

	out, err := e.deps.Decomposer.Decompose(res.Message)
	if err != nil {
		e.logger.Error("decompose failed", "operation", op.Name, "error", err)
		rec.Outcome = store.OutcomeTranslation
		rec.Error = err.Error()
		return faultReply(soap.NewFault(soap.CodeServer, err.Error()), op.Name, false)
	}

	// A service may answer with a fault document as an ordinary reply.
	if sf, isFault := out.Fault(); isFault {
		rec.Outcome = store.OutcomeFault
		rec.FaultCode = sf.Code
		return &Reply{Message: out, Operation: op.Name, Fault: true}
	}

	rec.Outcome = store.OutcomeReply
	e.logger.Info("← reply", "operation", op.Name)
	return &Reply{Message: out, Operation: op.Name}
}

func (e *Endpoint) journal(rec *store.CallRecord) {
	if e.deps.Journal == nil {
		return
	}
	if rec.Pattern == "" {
		rec.Pattern = exchange.InOut.String()
	}
	// The request context may already be canceled here.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.deps.Journal.RecordCall(ctx, rec); err != nil {
		e.logger.Warn("failed to journal call", "error", err)
	}
}

func faultReply(f *soap.Fault, operation string, oneWay bool) *Reply {
	return &Reply{
		Message:   soap.NewFaultMessage(f),
		Operation: operation,
		OneWay:    oneWay,
		Fault:     true,
	}
}
