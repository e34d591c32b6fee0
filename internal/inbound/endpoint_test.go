// ABOUTME: Tests for the inbound endpoint lifecycle and wire call dispatch.
// ABOUTME: Uses the sample descriptor, an in-memory domain and a fake publisher.

package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/soap-gateway/internal/bridge"
	"github.com/2389/soap-gateway/internal/builtins"
	"github.com/2389/soap-gateway/internal/codec"
	"github.com/2389/soap-gateway/internal/exchange"
	"github.com/2389/soap-gateway/internal/fault"
	"github.com/2389/soap-gateway/internal/soap"
	"github.com/2389/soap-gateway/internal/store"
	"github.com/2389/soap-gateway/internal/wsdl"
)

const (
	testService = "publish-as-ws"
	testWSDL    = "../wsdl/testdata/HelloWebService.wsdl"
)

type fakeHandle struct {
	mu      sync.Mutex
	stopped int
}

func (h *fakeHandle) Address() string { return "http://localhost:18080/HelloWebService" }

func (h *fakeHandle) Stop(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped++
	return nil
}

type fakePublisher struct {
	err     error
	handle  *fakeHandle
	handler CallHandler
}

func (p *fakePublisher) Publish(_ context.Context, _ *wsdl.Definition, _ *wsdl.PortDescriptor, h CallHandler) (EndpointHandle, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.handler = h
	p.handle = &fakeHandle{}
	return p.handle, nil
}

type invokerFunc func(ctx context.Context, service string, pattern exchange.Pattern, msg *exchange.Message) (*bridge.Result, error)

func (f invokerFunc) Invoke(ctx context.Context, service string, pattern exchange.Pattern, msg *exchange.Message) (*bridge.Result, error) {
	return f(ctx, service, pattern, msg)
}

type testEnv struct {
	endpoint  *Endpoint
	publisher *fakePublisher
	journal   *store.MockJournal
	domain    *exchange.Domain
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// setupEndpoint starts an endpoint whose local service is the hello builtin
// behind a real bridge. A non-nil invoker replaces the bridge.
func setupEndpoint(t *testing.T, invoker Invoker) *testEnv {
	t.Helper()
	logger := discardLogger()

	domain := exchange.NewDomain(exchange.DomainConfig{Logger: logger})
	t.Cleanup(domain.Close)
	require.NoError(t, builtins.Register(domain, builtins.Service{Name: testService, Handler: builtins.Hello(logger)}))

	if invoker == nil {
		b := bridge.New(bridge.Config{Fabric: domain, Logger: logger, Timeout: 2 * time.Second})
		t.Cleanup(b.Close)
		invoker = b
	}

	pub := &fakePublisher{}
	journal := store.NewMockJournal()
	ep := New(Config{LocalService: testService, WSDLLocation: testWSDL}, Deps{
		Reader:    wsdl.NewReader(nil, logger),
		Publisher: pub,
		Invoker:   invoker,
		Journal:   journal,
		Logger:    logger,
	})
	require.NoError(t, ep.Start(context.Background()))
	t.Cleanup(func() { _ = ep.Stop(context.Background()) })

	return &testEnv{endpoint: ep, publisher: pub, journal: journal, domain: domain}
}

func wireCall(t *testing.T, payload, action string) *Call {
	t.Helper()
	env := fmt.Sprintf(`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:test="http://test.ws/">`+
		`<soapenv:Header/><soapenv:Body>%s</soapenv:Body></soapenv:Envelope>`, payload)
	msg, err := soap.ParseMessageString(env)
	require.NoError(t, err)
	return &Call{Request: msg, SOAPAction: action}
}

func journaled(t *testing.T, j *store.MockJournal) *store.CallRecord {
	t.Helper()
	calls, err := j.ListCalls(context.Background(), store.CallFilter{})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	return calls[0]
}

func TestEndpointLifecycle(t *testing.T) {
	pub := &fakePublisher{}
	ep := New(Config{LocalService: testService, WSDLLocation: testWSDL}, Deps{
		Reader:    wsdl.NewReader(nil, discardLogger()),
		Publisher: pub,
		Invoker: invokerFunc(func(context.Context, string, exchange.Pattern, *exchange.Message) (*bridge.Result, error) {
			return nil, nil
		}),
		Logger: discardLogger(),
	})
	ctx := context.Background()

	assert.Equal(t, StateCreated, ep.State())
	assert.Nil(t, ep.Port())
	assert.Empty(t, ep.Address())

	// Stop before Start does nothing.
	require.NoError(t, ep.Stop(ctx))
	assert.Equal(t, StateCreated, ep.State())

	require.NoError(t, ep.Start(ctx))
	assert.Equal(t, StateStarted, ep.State())
	assert.Equal(t, "http://localhost:18080/HelloWebService", ep.Address())
	assert.Same(t, ep, pub.handler)

	port := ep.Port()
	require.NotNil(t, port)
	assert.Equal(t, "HelloWebService", port.ServiceName)
	assert.True(t, port.Operations["helloWS"].OneWay)
	assert.False(t, port.Operations["sayHello"].OneWay)

	err := ep.Start(ctx)
	assert.ErrorIs(t, err, ErrEndpointPublish)

	require.NoError(t, ep.Stop(ctx))
	assert.Equal(t, StateStopped, ep.State())
	assert.Empty(t, ep.Address())
	assert.Equal(t, 1, pub.handle.stopped)

	// A second Stop is a no-op.
	require.NoError(t, ep.Stop(ctx))
	assert.Equal(t, 1, pub.handle.stopped)
}

func TestEndpointStartFailures(t *testing.T) {
	tests := []struct {
		name     string
		location string
		pubErr   error
		wantErr  error
	}{
		{"missing descriptor", "testdata/does-not-exist.wsdl", nil, wsdl.ErrDescriptor},
		{"publisher refuses", testWSDL, errors.New("address already in use"), ErrEndpointPublish},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := New(Config{LocalService: testService, WSDLLocation: tt.location}, Deps{
				Reader:    wsdl.NewReader(nil, discardLogger()),
				Publisher: &fakePublisher{err: tt.pubErr},
				Logger:    discardLogger(),
			})
			err := ep.Start(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrEndpointPublish)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, StateCreated, ep.State())
		})
	}
}

func TestHandleWireCallReply(t *testing.T) {
	env := setupEndpoint(t, nil)

	reply := env.endpoint.HandleWireCall(context.Background(),
		wireCall(t, `<test:sayHello><arg0>Jimbo</arg0></test:sayHello>`, `"urn:sayHello"`))

	require.NotNil(t, reply.Message)
	assert.False(t, reply.Fault)
	assert.False(t, reply.OneWay)
	assert.Equal(t, "sayHello", reply.Operation)

	want, err := soap.ParseElement(`<test:sayHelloResponse xmlns:test="http://test.ws/"><return>Hello Jimbo</return></test:sayHelloResponse>`)
	require.NoError(t, err)
	assert.Empty(t, soap.DiffXML(want, reply.Message.Payload()))

	rec := journaled(t, env.journal)
	assert.Equal(t, store.DirectionInbound, rec.Direction)
	assert.Equal(t, testService, rec.Service)
	assert.Equal(t, "sayHello", rec.Operation)
	assert.Equal(t, "in-out", rec.Pattern)
	assert.Equal(t, store.OutcomeReply, rec.Outcome)
	assert.NotEmpty(t, rec.CorrelationID)
}

func TestHandleWireCallServiceFault(t *testing.T) {
	env := setupEndpoint(t, nil)

	reply := env.endpoint.HandleWireCall(context.Background(),
		wireCall(t, `<test:sayHello><arg0></arg0></test:sayHello>`, ""))

	require.NotNil(t, reply.Message)
	assert.True(t, reply.Fault)

	f, ok := reply.Message.Fault()
	require.True(t, ok)
	assert.Equal(t, "Server.AppError", f.Code)
	assert.Equal(t, "Invalid name", f.String)
	require.NotNil(t, f.Detail)
	assert.Equal(t, "Looks like you did not specify a name!", f.Detail.SelectElement("message").Text())
	assert.Equal(t, "1000", f.Detail.SelectElement("errorcode").Text())

	rec := journaled(t, env.journal)
	assert.Equal(t, store.OutcomeFault, rec.Outcome)
	assert.Equal(t, "Server.AppError", rec.FaultCode)
}

func TestHandleWireCallOneWay(t *testing.T) {
	var (
		mu      sync.Mutex
		pattern exchange.Pattern = -1
	)
	env := setupEndpoint(t, invokerFunc(func(_ context.Context, _ string, p exchange.Pattern, _ *exchange.Message) (*bridge.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		pattern = p
		return nil, nil
	}))

	reply := env.endpoint.HandleWireCall(context.Background(),
		wireCall(t, `<test:helloWS><arg0>Hello</arg0></test:helloWS>`, ""))

	assert.True(t, reply.OneWay)
	assert.Nil(t, reply.Message)
	assert.Equal(t, "helloWS", reply.Operation)
	mu.Lock()
	assert.Equal(t, exchange.InOnly, pattern)
	mu.Unlock()
	assert.Equal(t, store.OutcomeAccepted, journaled(t, env.journal).Outcome)
}

func TestHandleWireCallOneWayThroughBridge(t *testing.T) {
	env := setupEndpoint(t, nil)

	start := time.Now()
	reply := env.endpoint.HandleWireCall(context.Background(),
		wireCall(t, `<test:helloWS><arg0>Hello</arg0></test:helloWS>`, ""))
	assert.True(t, reply.OneWay)
	assert.Nil(t, reply.Message)
	assert.Less(t, time.Since(start), time.Second, "one-way calls must not wait for a reply")
}

func TestHandleWireCallTimeout(t *testing.T) {
	env := setupEndpoint(t, invokerFunc(func(context.Context, string, exchange.Pattern, *exchange.Message) (*bridge.Result, error) {
		return nil, bridge.ErrCorrelationTimeout
	}))

	reply := env.endpoint.HandleWireCall(context.Background(),
		wireCall(t, `<test:sayHello><arg0>Jimbo</arg0></test:sayHello>`, ""))

	assert.Nil(t, reply.Message, "a timeout is an empty result")
	assert.False(t, reply.OneWay)
	assert.Equal(t, store.OutcomeTimeout, journaled(t, env.journal).Outcome)
}

func TestHandleWireCallDispatchError(t *testing.T) {
	env := setupEndpoint(t, nil)
	env.domain.UnregisterService(testService)

	reply := env.endpoint.HandleWireCall(context.Background(),
		wireCall(t, `<test:sayHello><arg0>Jimbo</arg0></test:sayHello>`, ""))

	require.NotNil(t, reply.Message)
	f, ok := reply.Message.Fault()
	require.True(t, ok)
	assert.Equal(t, fault.CodeDispatch, f.Code)

	rec := journaled(t, env.journal)
	assert.Equal(t, store.OutcomeDispatch, rec.Outcome)
	assert.Equal(t, fault.CodeDispatch, rec.FaultCode)
}

type failingComposer struct{}

func (failingComposer) Compose(*soap.Message) (*exchange.Message, error) {
	return nil, errors.New("schema mismatch")
}

func TestHandleWireCallComposeError(t *testing.T) {
	invoked := false
	pub := &fakePublisher{}
	ep := New(Config{LocalService: testService, WSDLLocation: testWSDL}, Deps{
		Reader:    wsdl.NewReader(nil, discardLogger()),
		Publisher: pub,
		Invoker: invokerFunc(func(context.Context, string, exchange.Pattern, *exchange.Message) (*bridge.Result, error) {
			invoked = true
			return nil, nil
		}),
		Composer: failingComposer{},
		Logger:   discardLogger(),
	})
	require.NoError(t, ep.Start(context.Background()))

	reply := ep.HandleWireCall(context.Background(),
		wireCall(t, `<test:sayHello><arg0>Jimbo</arg0></test:sayHello>`, ""))

	assert.False(t, invoked, "compose failures never reach the fabric")
	f, ok := reply.Message.Fault()
	require.True(t, ok)
	assert.Equal(t, soap.CodeClient, f.Code)
	assert.Contains(t, f.String, "schema mismatch")
}

func TestHandleWireCallUnknownOperation(t *testing.T) {
	env := setupEndpoint(t, nil)

	reply := env.endpoint.HandleWireCall(context.Background(),
		wireCall(t, `<test:goodbye/>`, ""))

	f, ok := reply.Message.Fault()
	require.True(t, ok)
	assert.Equal(t, soap.CodeClient, f.Code)
	assert.Contains(t, f.String, "goodbye")
	assert.Equal(t, store.OutcomeTranslation, journaled(t, env.journal).Outcome)
}

func TestHandleWireCallRecoversPanics(t *testing.T) {
	env := setupEndpoint(t, invokerFunc(func(context.Context, string, exchange.Pattern, *exchange.Message) (*bridge.Result, error) {
		panic("provider exploded")
	}))

	var reply *Reply
	assert.NotPanics(t, func() {
		reply = env.endpoint.HandleWireCall(context.Background(),
			wireCall(t, `<test:sayHello><arg0>Jimbo</arg0></test:sayHello>`, ""))
	})
	f, ok := reply.Message.Fault()
	require.True(t, ok)
	assert.Equal(t, soap.CodeServer, f.Code)
	assert.Equal(t, store.OutcomeError, journaled(t, env.journal).Outcome)
}

func TestHandleWireCallEnvelopeCodec(t *testing.T) {
	logger := discardLogger()
	domain := exchange.NewDomain(exchange.DomainConfig{Logger: logger})
	t.Cleanup(domain.Close)
	require.NoError(t, builtins.Register(domain, builtins.Service{Name: "echo", Handler: builtins.Echo(logger)}))
	b := bridge.New(bridge.Config{Fabric: domain, Logger: logger, Timeout: 2 * time.Second})
	t.Cleanup(b.Close)

	ep := New(Config{LocalService: "echo", WSDLLocation: testWSDL}, Deps{
		Reader:     wsdl.NewReader(nil, logger),
		Publisher:  &fakePublisher{},
		Invoker:    b,
		Composer:   codec.ResolveComposer("envelope", logger),
		Decomposer: codec.ResolveDecomposer("envelope", logger),
		Logger:     logger,
	})
	require.NoError(t, ep.Start(context.Background()))

	call := wireCall(t, `<test:sayHello><arg0>Jimbo</arg0></test:sayHello>`, "urn:sayHello")
	reply := ep.HandleWireCall(context.Background(), call)
	require.NotNil(t, reply.Message)
	assert.True(t, soap.EqualXML(call.Request.Payload(), reply.Message.Payload()))
}
