// ABOUTME: Outbound gateway: a fabric service backed by a remote SOAP endpoint.
// ABOUTME: In-out exchanges are answered with the remote reply or its fault.

package outbound

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/2389/soap-gateway/internal/codec"
	"github.com/2389/soap-gateway/internal/exchange"
	"github.com/2389/soap-gateway/internal/inbound"
	"github.com/2389/soap-gateway/internal/soap"
	"github.com/2389/soap-gateway/internal/store"
	"github.com/2389/soap-gateway/internal/wsdl"
)

// DefaultRequestTimeout bounds one remote call when none is configured.
const DefaultRequestTimeout = 30 * time.Second

const maxResponseBytes = 10 << 20

var (
	// ErrConsumerStart indicates the outbound service could not be started.
	ErrConsumerStart = errors.New("outbound start failed")

	// ErrRemoteCall indicates the remote endpoint could not be reached or
	// answered with something other than a SOAP envelope.
	ErrRemoteCall = errors.New("remote call failed")
)

// Registry is the part of a fabric that hosts services.
type Registry interface {
	RegisterService(name string, h exchange.Handler) error
	UnregisterService(name string)
}

// Config is the outbound gateway's resolved configuration.
type Config struct {
	ServiceName    string
	RemoteWSDL     string
	RequestTimeout time.Duration
}

// Deps are the outbound gateway's collaborators.
type Deps struct {
	Reader     inbound.DescriptorReader
	Registry   Registry
	Client     *http.Client
	Composer   codec.Composer
	Decomposer codec.Decomposer
	Journal    store.Journal // optional
	Logger     *slog.Logger
}

// Consumer registers ServiceName on the fabric and forwards its exchanges to
// the remote port.
type Consumer struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	mu    sync.RWMutex
	state inbound.State
	port  *wsdl.PortDescriptor

	// inflight tracks remote calls running off the fabric's worker pool.
	inflight sync.WaitGroup
}

var _ exchange.Handler = (*Consumer)(nil)

// New creates a consumer in the created state.
func New(cfg Config, deps Deps) *Consumer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "outbound", "service", cfg.ServiceName)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if deps.Client == nil {
		deps.Client = &http.Client{}
	}
	if deps.Composer == nil {
		deps.Composer = codec.Passthrough{}
	}
	if deps.Decomposer == nil {
		deps.Decomposer = codec.Passthrough{}
	}
	return &Consumer{cfg: cfg, deps: deps, logger: logger}
}

// State returns the lifecycle state.
func (c *Consumer) State() inbound.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Port returns the remote port, or nil before Start.
func (c *Consumer) Port() *wsdl.PortDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.port
}

// Start reads the remote description and registers the service.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != inbound.StateCreated {
		return fmt.Errorf("%w: consumer is %s", ErrConsumerStart, c.state)
	}
	def, err := c.deps.Reader.Read(ctx, c.cfg.RemoteWSDL)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %w", ErrConsumerStart, c.cfg.RemoteWSDL, err)
	}
	port, err := c.deps.Reader.FirstPort(def)
	if err != nil {
		return fmt.Errorf("%w: resolving port: %w", ErrConsumerStart, err)
	}
	if port.Address == "" {
		return fmt.Errorf("%w: port %s has no soap:address", ErrConsumerStart, port.PortName)
	}
	c.port = port
	if err := c.deps.Registry.RegisterService(c.cfg.ServiceName, c); err != nil {
		c.port = nil
		return fmt.Errorf("%w: %w", ErrConsumerStart, err)
	}
	c.state = inbound.StateStarted

	c.logger.Info("outbound service registered",
		"remote", port.Address,
		"operations", len(port.Operations),
	)
	return nil
}

// Stop unregisters the service and waits, until ctx is done, for remote
// calls still in flight. Stopping a consumer that is not started logs a
// warning and does nothing.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != inbound.StateStarted {
		state := c.state
		c.mu.Unlock()
		c.logger.Warn("stop ignored, consumer not started", "state", state)
		return nil
	}
	c.deps.Registry.UnregisterService(c.cfg.ServiceName)
	c.state = inbound.StateStopped
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for remote calls: %w", ctx.Err())
	}
	c.logger.Info("outbound service unregistered")
	return nil
}

// HandleMessage forwards the exchange's in message to the remote endpoint.
// The remote call runs on its own goroutine so a slow remote never holds a
// fabric worker; on in-out exchanges its failures reach the caller as faults.
func (c *Consumer) HandleMessage(ctx context.Context, ex *exchange.Exchange) error {
	c.mu.RLock()
	if c.state != inbound.StateStarted {
		c.mu.RUnlock()
		return errors.New("outbound service not started")
	}
	port := c.port
	c.inflight.Add(1)
	c.mu.RUnlock()

	go func() {
		defer c.inflight.Done()
		err := c.forward(ctx, ex, port)
		if err == nil || ex.Pattern() != exchange.InOut {
			return
		}
		if sendErr := ex.SendFault(ctx, c.reply(ex.Message(), err)); sendErr != nil && !errors.Is(sendErr, exchange.ErrExchangeDone) {
			c.logger.Warn("failed to deliver fault", "exchange_id", ex.ID(), "error", sendErr)
		}
	}()
	return nil
}

// forward performs one remote call and replies on in-out exchanges. A
// returned error has not been replied yet.
func (c *Consumer) forward(ctx context.Context, ex *exchange.Exchange, port *wsdl.PortDescriptor) (err error) {
	start := time.Now()
	rec := &store.CallRecord{
		Direction: store.DirectionOutbound,
		Service:   c.cfg.ServiceName,
		Pattern:   ex.Pattern().String(),
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("outbound %s panicked: %v", c.cfg.ServiceName, r)
		}
		if err != nil {
			rec.Outcome = store.OutcomeError
			if errors.Is(err, codec.ErrTranslation) {
				rec.Outcome = store.OutcomeTranslation
			}
			rec.Error = err.Error()
		}
		rec.Duration = time.Since(start)
		c.journal(rec)
	}()

	in := ex.Message()
	rec.CorrelationID = in.Header(exchange.HeaderCorrelationID)

	req, err := c.deps.Decomposer.Decompose(in)
	if err != nil {
		return err
	}
	op := c.operation(port, in, req)
	rec.Operation = op.Name

	resp, status, err := c.post(ctx, port.Address, op.SOAPAction, req)
	if ex.Pattern() != exchange.InOut {
		if err != nil {
			return err
		}
		rec.Outcome = store.OutcomeAccepted
		c.logger.Info("→ remote one-way", "operation", op.Name, "status", status)
		return nil
	}
	if err != nil {
		return err
	}

	if f, isFault := resp.Fault(); isFault {
		rec.Outcome = store.OutcomeFault
		rec.FaultCode = f.Code
		c.logger.Info("← remote fault", "operation", op.Name, "fault_code", f.Code)
		return ex.SendFault(ctx, c.reply(in, f.Element()))
	}

	out, err := c.deps.Composer.Compose(resp)
	if err != nil {
		return err
	}
	if id := rec.CorrelationID; id != "" {
		out.SetHeader(exchange.HeaderCorrelationID, id)
	}
	rec.Outcome = store.OutcomeReply
	c.logger.Info("← remote reply", "operation", op.Name, "status", status)
	return ex.Send(ctx, out)
}

// HandleFault is not used; the consumer only provides.
func (c *Consumer) HandleFault(context.Context, *exchange.Exchange) {}

// operation picks the remote operation from the operation header, falling
// back to the request element and SOAPAction. An unknown operation is sent
// without a SOAPAction.
func (c *Consumer) operation(port *wsdl.PortDescriptor, in *exchange.Message, req *soap.Message) wsdl.Operation {
	if name := in.Header(exchange.HeaderOperation); name != "" {
		if op, ok := port.Operations[name]; ok {
			return op
		}
	}
	element := ""
	if payload := req.Payload(); payload != nil {
		element = payload.Tag
	}
	if op, ok := port.Lookup(element, in.Header(exchange.HeaderSOAPAction)); ok {
		return op
	}
	c.logger.Debug("operation not in remote description", "element", element)
	return wsdl.Operation{Name: element}
}

func (c *Consumer) post(ctx context.Context, address, action string, req *soap.Message) (*soap.Message, int, error) {
	body, err := req.Bytes()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: encoding request: %w", codec.ErrTranslation, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, address, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrRemoteCall, err)
	}
	httpReq.Header.Set("Content-Type", soap.ContentType)
	httpReq.Header.Set("SOAPAction", strconv.Quote(action))

	httpResp, err := c.deps.Client.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrRemoteCall, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, httpResp.StatusCode, fmt.Errorf("%w: reading response: %w", ErrRemoteCall, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		if httpResp.StatusCode/100 == 2 {
			return soap.NewMessage(nil), httpResp.StatusCode, nil
		}
		return nil, httpResp.StatusCode, fmt.Errorf("%w: %s", ErrRemoteCall, httpResp.Status)
	}
	msg, err := soap.ParseMessage(bytes.NewReader(data))
	if err != nil {
		return nil, httpResp.StatusCode, fmt.Errorf("%w: %s: %w", ErrRemoteCall, httpResp.Status, err)
	}
	return msg, httpResp.StatusCode, nil
}

func (c *Consumer) reply(in *exchange.Message, content any) *exchange.Message {
	out := exchange.NewMessage(content)
	if id := in.Header(exchange.HeaderCorrelationID); id != "" {
		out.SetHeader(exchange.HeaderCorrelationID, id)
	}
	return out
}

func (c *Consumer) journal(rec *store.CallRecord) {
	if c.deps.Journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.deps.Journal.RecordCall(ctx, rec); err != nil {
		c.logger.Warn("failed to journal call", "error", err)
	}
}
