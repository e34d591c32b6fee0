// ABOUTME: Gateway orchestrator that wires the SOAP endpoints to the exchange fabric
// ABOUTME: Manages the inbound and outbound gateways, journal, NATS, tailnet and admin servers

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/soap-gateway/internal/auth"
	"github.com/2389/soap-gateway/internal/bridge"
	"github.com/2389/soap-gateway/internal/builtins"
	"github.com/2389/soap-gateway/internal/codec"
	"github.com/2389/soap-gateway/internal/config"
	"github.com/2389/soap-gateway/internal/exchange"
	"github.com/2389/soap-gateway/internal/fault"
	"github.com/2389/soap-gateway/internal/inbound"
	"github.com/2389/soap-gateway/internal/metrics"
	"github.com/2389/soap-gateway/internal/natsfabric"
	"github.com/2389/soap-gateway/internal/outbound"
	"github.com/2389/soap-gateway/internal/publish"
	"github.com/2389/soap-gateway/internal/store"
	"github.com/2389/soap-gateway/internal/wsdl"
)

// Gateway orchestrates the soap-gateway components.
// It owns the fabric, both gateway directions and the admin servers.
type Gateway struct {
	config *config.Config
	logger *slog.Logger

	domain  *exchange.Domain
	bridge  *bridge.Bridge
	journal store.Journal // nil when database.path is empty
	metrics *metrics.Metrics

	// natsConn and natsFabric are set when fabric.nats.url is configured
	natsConn   *nats.Conn
	natsFabric *natsfabric.Fabric
	exports    []*natsfabric.Export

	endpoint *inbound.Endpoint  // nil when inbound is not configured
	consumer *outbound.Consumer // nil when outbound is not configured

	health      *health.Server
	grpcServer  *grpc.Server
	httpServer  *http.Server
	tsnetServer *tsnet.Server

	mu        sync.Mutex
	httpLn    net.Listener
	grpcLn    net.Listener
	stopPrune func() // set while the retention loop runs
	started   bool
	serving   bool // Run owns the admin listeners
	shutdown  bool
}

// initJournal opens the exchange journal, or returns nil when none is configured.
func initJournal(cfg *config.Config) (store.Journal, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("SOAP_GATEWAY_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	if dbPath == "" {
		return nil, nil
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing journal: %w", err)
	}
	return s, nil
}

// initFabric returns the fabric the bridge sends on: NATS when configured,
// otherwise the in-process domain.
func (g *Gateway) initFabric() (exchange.Fabric, error) {
	natsCfg := g.config.Fabric.NATS
	if natsCfg.URL == "" {
		return g.domain, nil
	}

	conn, err := natsfabric.Connect(natsCfg.URL, g.logger.With("component", "nats"))
	if err != nil {
		return nil, err
	}
	g.natsConn = conn
	g.natsFabric = natsfabric.New(conn, natsfabric.Config{
		Prefix:         natsCfg.SubjectPrefix,
		RequestTimeout: g.config.Inbound.WaitTimeout,
		Logger:         g.logger,
	})
	g.logger.Info("using nats fabric", "url", natsCfg.URL, "subject_prefix", natsCfg.SubjectPrefix)
	return g.natsFabric, nil
}

// registerBuiltins adds the builtin services that do not collide with the
// outbound service name.
func (g *Gateway) registerBuiltins() error {
	if !g.config.Fabric.BuiltinsEnabled() {
		return nil
	}
	var services []builtins.Service
	for _, svc := range builtins.Defaults(g.logger) {
		if svc.Name == g.config.Outbound.ServiceName {
			g.logger.Warn("builtin shadowed by outbound service", "service", svc.Name)
			continue
		}
		services = append(services, svc)
	}
	return builtins.Register(g.domain, services...)
}

// publisherMiddleware builds the middleware chain for published SOAP calls.
func (g *Gateway) publisherMiddleware() ([]publish.Middleware, error) {
	var mw []publish.Middleware
	if g.config.Metrics.Enabled {
		mw = append(mw, g.metrics.Instrument)
	}
	if g.config.Auth.JWTSecret == "" {
		g.logger.Warn("SOAP endpoint auth disabled - no jwt_secret configured")
		return mw, nil
	}
	verifier, err := auth.NewJWTVerifier([]byte(g.config.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	mw = append(mw, auth.BearerMiddleware(verifier, g.config.Inbound.LocalService, g.logger))
	g.logger.Info("SOAP endpoint bearer auth enabled")
	return mw, nil
}

// listen opens an inbound endpoint listener on the tailnet when it is up.
func (g *Gateway) listen(network, address string) (net.Listener, error) {
	if g.tsnetServer != nil {
		return g.tsnetServer.Listen(network, address)
	}
	return net.Listen(network, address)
}

func (g *Gateway) newEndpoint(reader *wsdl.Reader) error {
	in := g.config.Inbound
	mw, err := g.publisherMiddleware()
	if err != nil {
		return err
	}

	host := in.Host
	if g.config.Tailscale.Enabled {
		host = g.config.Tailscale.Hostname
	}
	publisher := publish.New(publish.Config{
		Host:       host,
		Port:       in.Port,
		Context:    in.Context,
		Listen:     g.listen,
		Middleware: mw,
		Logger:     g.logger,
	})

	g.endpoint = inbound.New(inbound.Config{
		LocalService: in.LocalService,
		WSDLLocation: in.WSDLLocation,
	}, inbound.Deps{
		Reader:     reader,
		Publisher:  publisher,
		Invoker:    g.bridge,
		Composer:   codec.ResolveComposer(in.Composer, g.logger),
		Decomposer: codec.ResolveDecomposer(in.Decomposer, g.logger),
		Faults:     fault.NewTranslator(g.logger),
		Journal:    g.journal,
		Logger:     g.logger,
	})
	return nil
}

func (g *Gateway) newConsumer(reader *wsdl.Reader) {
	out := g.config.Outbound
	g.consumer = outbound.New(outbound.Config{
		ServiceName:    out.ServiceName,
		RemoteWSDL:     out.RemoteWSDL,
		RequestTimeout: out.RequestTimeout,
	}, outbound.Deps{
		Reader:     reader,
		Registry:   g.domain,
		Composer:   codec.ResolveComposer(out.Composer, g.logger),
		Decomposer: codec.ResolveDecomposer(out.Decomposer, g.logger),
		Journal:    g.journal,
		Logger:     g.logger,
	})
}

// New creates a new Gateway instance with the given configuration and logger.
// Nothing listens until Start or Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	journal, err := initJournal(cfg)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		config:  cfg,
		logger:  logger.With("component", "gateway"),
		journal: journal,
		metrics: metrics.New(),
		health:  health.NewServer(),
		domain: exchange.NewDomain(exchange.DomainConfig{
			Logger:    logger,
			Workers:   cfg.Fabric.Workers,
			QueueSize: cfg.Fabric.QueueSize,
		}),
	}

	if err := g.registerBuiltins(); err != nil {
		g.closeComponents()
		return nil, err
	}

	fabric, err := g.initFabric()
	if err != nil {
		g.closeComponents()
		return nil, err
	}

	g.bridge = bridge.New(bridge.Config{
		Fabric:   fabric,
		Logger:   logger,
		Timeout:  cfg.Inbound.WaitTimeout,
		Observer: g.metrics,
	})

	reader := wsdl.NewReader(nil, logger)
	if cfg.Inbound.Enabled() {
		if err := g.newEndpoint(reader); err != nil {
			g.closeComponents()
			return nil, err
		}
	}
	if cfg.Outbound.Enabled() {
		g.newConsumer(reader)
	}

	g.grpcServer = createGRPCServer(g.health)
	g.setServing(false)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.adminMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// Invoke sends msg to service on the gateway's fabric, exactly as a
// published endpoint would.
func (g *Gateway) Invoke(ctx context.Context, service string, pattern exchange.Pattern, msg *exchange.Message) (*bridge.Result, error) {
	return g.bridge.Invoke(ctx, service, pattern, msg)
}

// Domain returns the in-process fabric so embedders can register services.
func (g *Gateway) Domain() *exchange.Domain { return g.domain }

// Journal returns the exchange journal, or nil when disabled.
func (g *Gateway) Journal() store.Journal { return g.journal }

// InboundAddress returns the published SOAP endpoint address, or "".
func (g *Gateway) InboundAddress() string {
	if g.endpoint == nil {
		return ""
	}
	return g.endpoint.Address()
}

// AdminAddr returns the admin HTTP listener address once started.
func (g *Gateway) AdminAddr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.httpLn == nil {
		return ""
	}
	return g.httpLn.Addr().String()
}

// Start brings up the tailnet node, publishes the inbound endpoint, starts
// the outbound consumer, exports services on NATS and opens the admin
// listeners. On error everything already started is torn down.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return errors.New("gateway already started")
	}

	if err := g.start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		g.stopComponents(shutdownCtx)
		if g.tsnetServer != nil {
			_ = g.tsnetServer.Close()
			g.tsnetServer = nil
		}
		return err
	}
	g.started = true
	return nil
}

func (g *Gateway) start(ctx context.Context) error {
	if g.config.Tailscale.Enabled {
		if err := g.setupTailscale(ctx); err != nil {
			return err
		}
	}

	// Inbound first: an outbound consumer may read its descriptor.
	if g.endpoint != nil {
		if err := g.endpoint.Start(ctx); err != nil {
			return err
		}
		g.metrics.SetEndpointUp(string(store.DirectionInbound), g.config.Inbound.LocalService, true)
		if g.natsFabric == nil && !g.domain.HasService(g.config.Inbound.LocalService) && g.consumer == nil {
			g.logger.Warn("published service is not registered; calls will fault",
				"service", g.config.Inbound.LocalService,
				"registered", g.domain.Services(),
			)
		}
	}

	if g.consumer != nil {
		if err := g.consumer.Start(ctx); err != nil {
			return err
		}
		g.metrics.SetEndpointUp(string(store.DirectionOutbound), g.config.Outbound.ServiceName, true)
	}

	if err := g.startExports(); err != nil {
		return err
	}

	if err := g.setupAdminListeners(); err != nil {
		return err
	}

	g.startRetention()
	g.setServing(true)
	return nil
}

// startExports serves the configured local services on NATS.
func (g *Gateway) startExports() error {
	if g.natsFabric == nil {
		return nil
	}
	for _, service := range g.config.Fabric.NATS.Export {
		if !g.domain.HasService(service) {
			return fmt.Errorf("exporting %s: %w", service, exchange.ErrServiceNotFound)
		}
		// Exported handlers outlive Start's context.
		exp, err := g.natsFabric.Export(context.Background(), g.domain, service)
		if err != nil {
			return err
		}
		g.exports = append(g.exports, exp)
	}
	return nil
}

func (g *Gateway) setupAdminListeners() error {
	if g.tsnetServer != nil {
		g.warnIgnoredAddresses()
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			return fmt.Errorf("listening on tailscale admin port: %w", err)
		}
		g.httpLn = ln
		return nil
	}

	if g.config.Server.HTTPAddr != "" {
		ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
		if err != nil {
			return fmt.Errorf("listening on HTTP address: %w", err)
		}
		g.httpLn = ln
	}

	if g.config.Server.GRPCAddr != "" {
		ln, err := net.Listen("tcp", g.config.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listening on gRPC address: %w", err)
		}
		g.grpcLn = ln
	}
	return nil
}

func (g *Gateway) warnIgnoredAddresses() {
	if g.config.Server.GRPCAddr != "" || g.config.Server.HTTPAddr != "" {
		g.logger.Warn("server.grpc_addr and server.http_addr are ignored when tailscale is enabled",
			"grpc_addr", g.config.Server.GRPCAddr,
			"http_addr", g.config.Server.HTTPAddr,
		)
	}
}

// Run starts the gateway and serves until ctx is canceled or a server
// fails, then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.Start(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)

	g.mu.Lock()
	httpLn, grpcLn := g.httpLn, g.grpcLn
	g.serving = true
	g.mu.Unlock()

	if httpLn != nil {
		group.Go(func() error {
			g.logger.Info("admin HTTP server listening", "addr", httpLn.Addr().String())
			if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server: %w", err)
			}
			return nil
		})
	}
	if grpcLn != nil {
		group.Go(func() error {
			g.logger.Info("gRPC health server listening", "addr", grpcLn.Addr().String())
			if err := g.grpcServer.Serve(grpcLn); err != nil {
				return fmt.Errorf("gRPC server: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		if ctx.Err() != nil {
			g.logger.Info("context canceled, initiating shutdown")
		}
		return g.gracefulShutdown()
	})

	return group.Wait()
}

// gracefulShutdown performs a graceful shutdown with a timeout.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory for tailscale, using the configured value
// or defaulting to ~/.local/share/soap-gateway/tailscale.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "soap-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or TS_AUTHKEY env var.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscale brings up the tsnet node the endpoint and admin server listen on.
func (g *Gateway) setupTailscale(ctx context.Context) error {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		return fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)
	return nil
}

// logTailscaleStatus logs the tailscale node's IP and DNS name.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// appendCloseError appends a labeled error to the slice if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// stopComponents stops the gateway directions and exports in reverse start
// order. Safe to call on a partially started gateway.
func (g *Gateway) stopComponents(ctx context.Context) []error {
	var errs []error
	g.setServing(false)

	for _, exp := range g.exports {
		errs = appendCloseError(errs, "nats export", exp.Stop())
	}
	g.exports = nil

	if g.consumer != nil && g.consumer.State() == inbound.StateStarted {
		errs = appendCloseError(errs, "outbound stop", g.consumer.Stop(ctx))
		g.metrics.SetEndpointUp(string(store.DirectionOutbound), g.config.Outbound.ServiceName, false)
	}
	if g.endpoint != nil && g.endpoint.State() == inbound.StateStarted {
		errs = appendCloseError(errs, "inbound stop", g.endpoint.Stop(ctx))
		g.metrics.SetEndpointUp(string(store.DirectionInbound), g.config.Inbound.LocalService, false)
	}

	if g.httpLn != nil && !g.serving {
		errs = appendCloseError(errs, "admin listener", g.httpLn.Close())
		g.httpLn = nil
	}
	if g.grpcLn != nil && !g.serving {
		errs = appendCloseError(errs, "grpc listener", g.grpcLn.Close())
		g.grpcLn = nil
	}
	return errs
}

// closeComponents releases the fabric, NATS connection and journal.
func (g *Gateway) closeComponents() []error {
	var errs []error
	if g.bridge != nil {
		g.bridge.Close()
	}
	if g.natsFabric != nil {
		g.natsFabric.Close()
	}
	if g.natsConn != nil {
		g.natsConn.Close()
	}
	if g.domain != nil {
		g.domain.Close()
	}
	if g.journal != nil {
		errs = appendCloseError(errs, "journal close", g.journal.Close())
	}
	return errs
}

// shutdownGRPCServer gracefully stops the gRPC server, forcing stop if context expires.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// Shutdown gracefully shuts down the gateway. It unpublishes the endpoint
// first so no new calls arrive, then drains the fabric. Calling it twice is
// a no-op.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.shutdown {
		return nil
	}
	g.shutdown = true

	g.logger.Info("shutting down gateway")

	errs := g.stopComponents(ctx)

	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	g.health.Shutdown()
	g.shutdownGRPCServer(ctx)

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}

	g.stopRetention()
	errs = append(errs, g.closeComponents()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// ready reports whether every configured direction is started.
func (g *Gateway) ready() bool {
	if g.endpoint != nil && g.endpoint.State() != inbound.StateStarted {
		return false
	}
	if g.consumer != nil && g.consumer.State() != inbound.StateStarted {
		return false
	}
	return true
}

// services lists the fabric services this gateway answers for.
func (g *Gateway) services() []string {
	services := g.domain.Services()
	if g.endpoint != nil && !slices.Contains(services, g.config.Inbound.LocalService) {
		services = append(services, g.config.Inbound.LocalService)
	}
	return services
}
