// ABOUTME: Package documentation for the NATS exchange fabric.
// ABOUTME: Describes subjects, headers and service export.

// Package natsfabric carries fabric exchanges over NATS.
//
// Services are addressed as "<prefix>.<service>" (prefix "soapgw" by
// default). An in-only exchange is a plain publish. An in-out exchange is a
// NATS request; the response is delivered to the exchange's reply handler,
// as a fault when it carries the Soapgw-Fault header.
//
// Message content travels as the payload bytes. Exchange headers, including
// the correlation id, travel as NATS headers prefixed "Soapgw-H-".
//
// Export makes a service hosted on a local fabric (normally the in-memory
// exchange.Domain) reachable over NATS, so several gateways can share
// providers:
//
//	f := natsfabric.New(conn, natsfabric.Config{})
//	exp, err := f.Export(ctx, domain, "publish-as-ws")
//	defer exp.Stop()
package natsfabric
