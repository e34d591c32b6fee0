// ABOUTME: Package documentation for Prometheus metrics.
// ABOUTME: Describes the collectors and the bridge observer.

// Package metrics exposes gateway metrics in the Prometheus format.
//
// Metrics is passed to the bridge as its Observer, so every call updates
// soapgw_bridge_pending_calls, soapgw_bridge_calls_total{outcome} and
// soapgw_bridge_call_duration_seconds. Replies that arrive after a timeout
// are counted in soapgw_bridge_late_replies_total.
//
// Instrument wraps the published SOAP handler with request counters and
// Handler serves everything, plus Go runtime and process collectors, on the
// admin server's metrics path.
package metrics
