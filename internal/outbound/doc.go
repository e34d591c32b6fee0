// ABOUTME: Package documentation for the outbound gateway.
// ABOUTME: Describes how a remote SOAP port is exposed as a fabric service.

// Package outbound lets fabric services call a remote SOAP endpoint as if it
// were a local service.
//
// A Consumer reads the remote service description, registers ServiceName
// on the fabric and forwards every exchange it receives:
//
//  1. the in message is decomposed into a SOAP envelope
//  2. the operation is picked from the "operation" header, else from the
//     request element or SOAPAction
//  3. the envelope is POSTed to the port's soap:address with that
//     operation's SOAPAction
//  4. in-out: a Fault response is sent back as a fault holding the
//     soap:Fault element; any other response is composed and sent as the
//     reply. In-only: the response is discarded.
//
// Transport and translation failures are returned from HandleMessage; the
// fabric delivers them to in-out callers as faults.
package outbound
