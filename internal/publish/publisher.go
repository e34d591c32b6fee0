// ABOUTME: Publishes a described port as a SOAP 1.1 over HTTP endpoint.
// ABOUTME: One net/http server per endpoint; Stop releases its listener.

package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/2389/soap-gateway/internal/inbound"
	"github.com/2389/soap-gateway/internal/wsdl"
)

const (
	// DefaultPort is used when the configuration leaves the port unset.
	DefaultPort = 8080

	// DefaultHost is used when the configuration leaves the host unset.
	DefaultHost = "localhost"

	maxRequestBytes = 10 << 20
)

// ListenFunc opens the endpoint's listener.
type ListenFunc func(network, address string) (net.Listener, error)

// Middleware wraps the handler serving SOAP calls.
type Middleware func(http.Handler) http.Handler

// Config contains configuration options for a Publisher.
type Config struct {
	Host    string
	Port    int // 0 keeps DefaultPort; use -1 for an ephemeral port
	Context string

	// Listen replaces net.Listen, e.g. with a tailnet listener.
	Listen ListenFunc

	// Middleware wraps POSTed calls. Descriptor requests are not wrapped.
	Middleware []Middleware

	Logger *slog.Logger
}

// Publisher serves endpoints on plain net/http servers.
type Publisher struct {
	cfg    Config
	logger *slog.Logger
}

var _ inbound.Publisher = (*Publisher)(nil)

// New creates a Publisher.
func New(cfg Config) *Publisher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Listen == nil {
		cfg.Listen = net.Listen
	}
	return &Publisher{cfg: cfg, logger: logger.With("component", "publish")}
}

// Path returns the URL path an endpoint for serviceName is served on.
func Path(prefix, serviceName string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return "/" + prefix + serviceName
}

// Publish starts serving port and routes its calls to h.
func (p *Publisher) Publish(_ context.Context, def *wsdl.Definition, port *wsdl.PortDescriptor, h inbound.CallHandler) (inbound.EndpointHandle, error) {
	if def == nil || port == nil || h == nil {
		return nil, errors.New("publish: definition, port and handler are required")
	}

	bindPort := p.cfg.Port
	if bindPort < 0 {
		bindPort = 0
	}
	ln, err := p.cfg.Listen("tcp", net.JoinHostPort(p.cfg.Host, strconv.Itoa(bindPort)))
	if err != nil {
		return nil, fmt.Errorf("listening on %s:%d: %w", p.cfg.Host, bindPort, err)
	}

	actualPort := bindPort
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		actualPort = tcp.Port
	}
	path := Path(p.cfg.Context, port.ServiceName)
	address := "http://" + net.JoinHostPort(p.cfg.Host, strconv.Itoa(actualPort)) + path

	logger := p.logger.With("service", port.ServiceName, "address", address)
	eh := newEndpointHandler(def, port, h, address, logger)

	var calls http.Handler = http.HandlerFunc(eh.serveCall)
	for i := len(p.cfg.Middleware) - 1; i >= 0; i-- {
		calls = p.cfg.Middleware[i](calls)
	}
	eh.calls = calls

	mux := http.NewServeMux()
	mux.Handle(path, eh)

	hd := &Handle{
		address: address,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: ln,
		done:     make(chan struct{}),
		logger:   logger,
	}
	go hd.serve()

	logger.Info("endpoint listening", "listen_addr", ln.Addr().String())
	return hd, nil
}

// Handle is a published endpoint.
type Handle struct {
	address  string
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

var _ inbound.EndpointHandle = (*Handle)(nil)

func (h *Handle) serve() {
	defer close(h.done)
	if err := h.server.Serve(h.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		h.logger.Error("endpoint server failed", "error", err)
	}
}

// Address returns the endpoint URL.
func (h *Handle) Address() string { return h.address }

// Stop shuts the server down, waiting for in-flight calls until ctx is done.
// Once Stop returns the listener is closed.
func (h *Handle) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() {
		err := h.server.Shutdown(ctx)
		if err != nil {
			// Drain deadline hit; drop whatever is still running.
			_ = h.server.Close()
		}
		<-h.done
		h.stopErr = err
		h.logger.Info("endpoint closed")
	})
	return h.stopErr
}
