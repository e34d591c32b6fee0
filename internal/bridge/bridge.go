// ABOUTME: Correlates synchronous wire calls with asynchronous fabric replies.
// ABOUTME: Handles pending-call tokens, bounded waits, late-reply tombstones and shutdown.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/soap-gateway/internal/dedupe"
	"github.com/2389/soap-gateway/internal/exchange"
)

// ErrCorrelationTimeout indicates no reply arrived within the wait timeout.
var ErrCorrelationTimeout = errors.New("correlation timeout")

// ErrFabricDispatch indicates the fabric refused to create or send the exchange.
var ErrFabricDispatch = errors.New("fabric dispatch failed")

// ErrBridgeClosed indicates the bridge was closed while the call was waiting.
var ErrBridgeClosed = errors.New("bridge closed")

// DefaultTimeout is the default wait for an in-out reply.
const DefaultTimeout = 15 * time.Second

const (
	defaultTombstoneTTL  = 5 * time.Minute
	defaultTombstoneSize = 10_000
)

// Outcome classifies how a call through the bridge ended.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeReply    Outcome = "reply"
	OutcomeFault    Outcome = "fault"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeDispatch Outcome = "dispatch_error"
	OutcomeCanceled Outcome = "canceled"
	OutcomeClosed   Outcome = "closed"
)

// Observer receives call lifecycle events. Implementations must be safe for
// concurrent use.
type Observer interface {
	CallStarted(service string, pattern exchange.Pattern)
	CallFinished(service string, pattern exchange.Pattern, outcome Outcome, elapsed time.Duration)
	LateReply()
	DuplicateReply(service string)
}

// Result is the reply or fault delivered for an in-out call.
type Result struct {
	Token   string
	Message *exchange.Message
	Fault   bool
}

// PendingCall is one in-out call waiting for its reply.
type PendingCall struct {
	Token   string
	Service string
	Created time.Time

	slot   chan *Result
	filled bool // guarded by Bridge.mu
}

// Config contains configuration options for the Bridge.
type Config struct {
	Fabric   exchange.Fabric
	Logger   *slog.Logger
	Timeout  time.Duration
	Observer Observer

	// TombstoneTTL bounds how long an expired token is remembered so its
	// late reply can be recognized.
	TombstoneTTL time.Duration
	TombstoneMax int
}

// Bridge drives exchanges on a fabric on behalf of synchronous callers.
type Bridge struct {
	fabric   exchange.Fabric
	logger   *slog.Logger
	timeout  time.Duration
	observer Observer

	// expired remembers tokens whose callers gave up, keyed by token
	expired *dedupe.Cache[string]

	mu      sync.RWMutex
	pending map[string]*PendingCall
	closed  bool
}

// New creates a Bridge with the given configuration.
func New(cfg Config) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ttl := cfg.TombstoneTTL
	if ttl <= 0 {
		ttl = defaultTombstoneTTL
	}
	size := cfg.TombstoneMax
	if size <= 0 {
		size = defaultTombstoneSize
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &Bridge{
		fabric:   cfg.Fabric,
		logger:   logger,
		timeout:  timeout,
		observer: observer,
		expired:  dedupe.New[string](ttl, size),
		pending:  make(map[string]*PendingCall),
	}
}

// Timeout returns the configured reply wait.
func (b *Bridge) Timeout() time.Duration { return b.timeout }

// Invoke sends msg to service. In-only calls return (nil, nil) as soon as the
// fabric accepts the message. In-out calls block until the correlated reply
// or fault arrives, the wait timeout elapses, ctx is done, or the bridge closes.
func (b *Bridge) Invoke(ctx context.Context, service string, pattern exchange.Pattern, msg *exchange.Message) (*Result, error) {
	if b.isClosed() {
		return nil, ErrBridgeClosed
	}

	start := time.Now()
	b.observer.CallStarted(service, pattern)

	if pattern == exchange.InOnly {
		err := b.dispatch(ctx, service, pattern, nil, msg)
		outcome := OutcomeAccepted
		if err != nil {
			outcome = OutcomeDispatch
		}
		b.observer.CallFinished(service, pattern, outcome, time.Since(start))
		return nil, err
	}

	res, outcome, err := b.invokeInOut(ctx, service, msg)
	b.observer.CallFinished(service, pattern, outcome, time.Since(start))
	return res, err
}

func (b *Bridge) invokeInOut(ctx context.Context, service string, msg *exchange.Message) (*Result, Outcome, error) {
	call, err := b.createPendingCall(service)
	if err != nil {
		return nil, OutcomeClosed, err
	}
	defer b.closePendingCall(call.Token)

	msg.SetHeader(exchange.HeaderCorrelationID, call.Token)
	reply := &replyHandler{bridge: b, token: call.Token}
	if err := b.dispatch(ctx, service, exchange.InOut, reply, msg); err != nil {
		return nil, OutcomeDispatch, err
	}

	b.logger.Debug("  → waiting for reply",
		"service", service,
		"correlation_id", call.Token,
		"timeout", b.timeout,
	)

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case res, ok := <-call.slot:
		if !ok {
			return nil, OutcomeClosed, ErrBridgeClosed
		}
		outcome := OutcomeReply
		if res.Fault {
			outcome = OutcomeFault
		}
		b.logger.Debug("  ← reply received",
			"service", service,
			"correlation_id", call.Token,
			"fault", res.Fault,
		)
		return res, outcome, nil
	case <-timer.C:
		b.expire(call.Token)
		b.logger.Warn("no reply within wait timeout",
			"service", service,
			"correlation_id", call.Token,
			"timeout", b.timeout,
		)
		return nil, OutcomeTimeout, ErrCorrelationTimeout
	case <-ctx.Done():
		b.expire(call.Token)
		b.logger.Warn("caller gave up waiting for reply",
			"service", service,
			"correlation_id", call.Token,
			"error", ctx.Err(),
		)
		return nil, OutcomeCanceled, ctx.Err()
	}
}

// dispatch creates the exchange and sends the in message.
func (b *Bridge) dispatch(ctx context.Context, service string, pattern exchange.Pattern, reply exchange.Handler, msg *exchange.Message) error {
	ex, err := b.fabric.CreateExchange(service, pattern, reply)
	if err != nil {
		b.logger.Error("failed to create exchange",
			"service", service,
			"pattern", pattern,
			"error", err,
		)
		return fmt.Errorf("%w: create exchange for %s: %w", ErrFabricDispatch, service, err)
	}
	if err := ex.Send(ctx, msg); err != nil {
		b.logger.Error("failed to send exchange",
			"service", service,
			"pattern", pattern,
			"exchange_id", ex.ID(),
			"error", err,
		)
		return fmt.Errorf("%w: send to %s: %w", ErrFabricDispatch, service, err)
	}
	b.logger.Debug("  → dispatched",
		"service", service,
		"pattern", pattern,
		"exchange_id", ex.ID(),
	)
	return nil
}

// OnMessage fills the pending call for token with a reply.
func (b *Bridge) OnMessage(token string, msg *exchange.Message) {
	b.fill(token, &Result{Token: token, Message: msg})
}

// OnFault fills the pending call for token with a fault.
func (b *Bridge) OnFault(token string, msg *exchange.Message) {
	b.fill(token, &Result{Token: token, Message: msg, Fault: true})
}

// fill delivers res to its waiter. Only the first delivery for a token is
// kept; it never blocks.
func (b *Bridge) fill(token string, res *Result) {
	// Hold the lock while sending so closePendingCall cannot close the slot
	// between lookup and send.
	b.mu.Lock()
	call, ok := b.pending[token]
	if !ok {
		b.mu.Unlock()
		if b.expired.Take(token) {
			b.observer.LateReply()
			b.logger.Info("discarding late reply for expired call",
				"correlation_id", token,
				"fault", res.Fault,
			)
			return
		}
		b.logger.Warn("received reply for unknown call",
			"correlation_id", token,
			"fault", res.Fault,
		)
		return
	}

	// The waiter may already have drained the slot, so the flag and not the
	// buffer decides whether this is the first delivery.
	if !call.filled {
		call.filled = true
		call.slot <- res
		b.mu.Unlock()
	} else {
		b.mu.Unlock()
		b.observer.DuplicateReply(call.Service)
		b.logger.Warn("call already fulfilled, dropping duplicate delivery",
			"service", call.Service,
			"correlation_id", token,
			"fault", res.Fault,
		)
	}
}

func (b *Bridge) createPendingCall(service string) (*PendingCall, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBridgeClosed
	}
	call := &PendingCall{
		Token:   uuid.NewString(),
		Service: service,
		Created: time.Now(),
		slot:    make(chan *Result, 1),
	}
	b.pending[call.Token] = call
	return call, nil
}

func (b *Bridge) closePendingCall(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if call, ok := b.pending[token]; ok {
		close(call.slot)
		delete(b.pending, token)
	}
}

// expire removes the pending call and tombstones its token in one step so a
// reply racing the timeout is classified as late, not unknown.
func (b *Bridge) expire(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if call, ok := b.pending[token]; ok {
		close(call.slot)
		delete(b.pending, token)
		b.expired.Mark(token)
	}
}

func (b *Bridge) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// PendingCount returns the number of calls waiting for a reply.
func (b *Bridge) PendingCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pending)
}

// Pending returns a snapshot of the calls waiting for a reply.
func (b *Bridge) Pending() []PendingCall {
	b.mu.RLock()
	defer b.mu.RUnlock()

	calls := make([]PendingCall, 0, len(b.pending))
	for _, c := range b.pending {
		calls = append(calls, PendingCall{Token: c.Token, Service: c.Service, Created: c.Created})
	}
	return calls
}

// Close rejects new calls and unblocks every waiter with ErrBridgeClosed.
// Safe to call multiple times.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	cancelled := len(b.pending)
	for token, call := range b.pending {
		close(call.slot)
		delete(b.pending, token)
	}
	b.expired.Close()

	b.logger.Info("bridge closed", "pending_cancelled", cancelled)
}

// replyHandler is the fabric-facing callback bound to a single token.
type replyHandler struct {
	bridge *Bridge
	token  string
}

func (h *replyHandler) HandleMessage(_ context.Context, ex *exchange.Exchange) error {
	h.bridge.OnMessage(h.token, ex.Message())
	return nil
}

func (h *replyHandler) HandleFault(_ context.Context, ex *exchange.Exchange) {
	h.bridge.OnFault(h.token, ex.Message())
}

type nopObserver struct{}

func (nopObserver) CallStarted(string, exchange.Pattern)                          {}
func (nopObserver) CallFinished(string, exchange.Pattern, Outcome, time.Duration) {}
func (nopObserver) LateReply()                                                    {}
func (nopObserver) DuplicateReply(string)                                         {}
