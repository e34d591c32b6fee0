// ABOUTME: Tests for the in-memory domain: registration, in-only and in-out delivery, faults.
// ABOUTME: Validates phase rules on exchanges and shutdown behavior.

package exchange

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a consumer handler that captures the reply it receives.
type recorder struct {
	replies chan *Exchange
	faults  chan *Exchange
}

func newRecorder() *recorder {
	return &recorder{
		replies: make(chan *Exchange, 1),
		faults:  make(chan *Exchange, 1),
	}
}

func (r *recorder) HandleMessage(_ context.Context, ex *Exchange) error {
	r.replies <- ex
	return nil
}

func (r *recorder) HandleFault(_ context.Context, ex *Exchange) {
	r.faults <- ex
}

func setupDomain(t *testing.T) *Domain {
	t.Helper()
	d := NewDomain(DomainConfig{Logger: slog.Default(), Workers: 4, QueueSize: 8})
	t.Cleanup(d.Close)
	return d
}

func TestDomainRegisterService(t *testing.T) {
	d := setupDomain(t)

	echo := HandlerFunc(func(context.Context, *Exchange) error { return nil })
	require.NoError(t, d.RegisterService("echo", echo))
	assert.True(t, d.HasService("echo"))

	err := d.RegisterService("echo", echo)
	assert.ErrorIs(t, err, ErrServiceExists)

	require.NoError(t, d.RegisterService("another", echo))
	assert.Equal(t, []string{"another", "echo"}, d.Services())

	d.UnregisterService("echo")
	assert.False(t, d.HasService("echo"))

	_, err = d.CreateExchange("echo", InOut, nil)
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestDomainInOut(t *testing.T) {
	d := setupDomain(t)

	require.NoError(t, d.RegisterService("greeter", HandlerFunc(func(ctx context.Context, ex *Exchange) error {
		name, err := ContentAs[string](ex.Message())
		if err != nil {
			return err
		}
		return ex.Send(ctx, NewMessage("Hello "+name))
	})))

	rec := newRecorder()
	ex, err := d.CreateExchange("greeter", InOut, rec)
	require.NoError(t, err)
	require.NoError(t, ex.Send(context.Background(), NewMessage("Jimbo")))

	select {
	case got := <-rec.replies:
		s, err := ContentAs[string](got.Message())
		require.NoError(t, err)
		assert.Equal(t, "Hello Jimbo", s)
		assert.False(t, got.IsFault())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
	}

	// A second reply on a completed exchange is rejected.
	assert.ErrorIs(t, ex.Send(context.Background(), NewMessage("again")), ErrExchangeDone)
}

func TestDomainProviderErrorBecomesFault(t *testing.T) {
	d := setupDomain(t)

	boom := errors.New("boom")
	require.NoError(t, d.RegisterService("broken", HandlerFunc(func(context.Context, *Exchange) error {
		return boom
	})))

	rec := newRecorder()
	ex, err := d.CreateExchange("broken", InOut, rec)
	require.NoError(t, err)

	msg := NewMessage("x").SetHeader(HeaderCorrelationID, "token-1")
	require.NoError(t, ex.Send(context.Background(), msg))

	select {
	case got := <-rec.faults:
		assert.True(t, got.IsFault())
		assert.ErrorIs(t, got.Message().Content().(error), boom)
		assert.Equal(t, "token-1", got.Message().Header(HeaderCorrelationID))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fault")
	}
}

func TestDomainProviderPanicBecomesFault(t *testing.T) {
	d := setupDomain(t)

	require.NoError(t, d.RegisterService("panics", HandlerFunc(func(context.Context, *Exchange) error {
		panic("kaboom")
	})))

	rec := newRecorder()
	ex, err := d.CreateExchange("panics", InOut, rec)
	require.NoError(t, err)
	require.NoError(t, ex.Send(context.Background(), NewMessage("x")))

	select {
	case got := <-rec.faults:
		assert.Contains(t, got.Message().Content().(error).Error(), "kaboom")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fault")
	}
}

func TestDomainInOnly(t *testing.T) {
	d := setupDomain(t)

	var calls atomic.Int32
	replyErr := make(chan error, 1)
	require.NoError(t, d.RegisterService("sink", HandlerFunc(func(ctx context.Context, ex *Exchange) error {
		calls.Add(1)
		replyErr <- ex.Send(ctx, NewMessage("unexpected"))
		return nil
	})))

	rec := newRecorder()
	ex, err := d.CreateExchange("sink", InOnly, rec)
	require.NoError(t, err)
	require.NoError(t, ex.Send(context.Background(), NewMessage("fire")))

	select {
	case err := <-replyErr:
		assert.ErrorIs(t, err, ErrNoReplyExpected)
	case <-time.After(2 * time.Second):
		t.Fatal("provider never ran")
	}
	assert.Equal(t, int32(1), calls.Load())

	select {
	case <-rec.replies:
		t.Fatal("in-only exchange must not deliver a reply")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestExchangeFaultBeforeSend(t *testing.T) {
	d := setupDomain(t)
	require.NoError(t, d.RegisterService("svc", HandlerFunc(func(context.Context, *Exchange) error { return nil })))

	ex, err := d.CreateExchange("svc", InOut, nil)
	require.NoError(t, err)
	assert.Error(t, ex.SendFault(context.Background(), NewMessage("x")))
}

func TestDomainClose(t *testing.T) {
	d := NewDomain(DomainConfig{Logger: slog.Default(), Workers: 1, QueueSize: 1})
	require.NoError(t, d.RegisterService("svc", HandlerFunc(func(context.Context, *Exchange) error { return nil })))

	ex, err := d.CreateExchange("svc", InOnly, nil)
	require.NoError(t, err)

	d.Close()
	d.Close() // idempotent

	assert.ErrorIs(t, ex.Send(context.Background(), NewMessage("late")), ErrDomainClosed)
	_, err = d.CreateExchange("svc", InOnly, nil)
	assert.ErrorIs(t, err, ErrDomainClosed)
}

func TestPatternString(t *testing.T) {
	assert.Equal(t, "in-only", InOnly.String())
	assert.Equal(t, "in-out", InOut.String())
	assert.Equal(t, "pattern(7)", Pattern(7).String())
}
