// ABOUTME: Package documentation for the gateway orchestrator.
// ABOUTME: Describes component wiring, startup order and shutdown.

// Package gateway orchestrates the soap-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of soap-gateway. It owns
// the exchange fabric, the inbound endpoint that publishes a fabric service
// as SOAP, the outbound consumer that exposes a remote SOAP endpoint as a
// fabric service, the exchange journal and the admin servers.
//
// # Fabric
//
// Services run in an in-process exchange.Domain. When fabric.nats.url is
// set the bridge sends calls over NATS instead, and the services listed in
// fabric.nats.export are served on NATS from the local domain, so inbound
// and outbound gateways can run in different processes.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // Start, serve admin until ctx is done, Shutdown
//
// Start publishes the inbound endpoint before starting the outbound
// consumer, so a consumer may read the descriptor of an endpoint in the
// same process. Shutdown unpublishes first, then drains the fabric.
//
// # Admin HTTP API
//
//   - GET /health - Liveness check
//   - GET /health/ready - 200 once every configured direction is started
//   - GET /metrics - Prometheus metrics (metrics.enabled)
//   - GET /api/status - Endpoint states, services and pending calls
//   - GET /api/pending - In-out calls awaiting a reply
//   - GET /api/calls - Journaled calls (?service, ?direction, ?outcome, ?since, ?limit)
//   - GET /api/calls/stats - Journaled call counts by outcome (?service)
//
// The /api routes require a bearer token when auth.jwt_secret is set.
//
// # gRPC Health
//
// When server.grpc_addr is set the standard grpc.health.v1 service reports
// the server ("") and each configured direction by its fabric service name.
//
// # Tailscale
//
// With tailscale.enabled the published endpoint and the admin server listen
// on the tailnet node instead of local addresses.
package gateway
