// ABOUTME: Package documentation for the inbound gateway endpoint.
// ABOUTME: Describes the lifecycle and per-call dispatch.

// Package inbound exposes an internal fabric service as a SOAP endpoint.
//
// An Endpoint moves through created, started and stopped. Start reads the
// service description, resolves its first port and hands itself to a
// Publisher as the CallHandler. Each wire call is looked up in the port's
// operations; one-way operations are sent in-only and return at once,
// request-response operations wait on the bridge for the correlated reply.
package inbound
