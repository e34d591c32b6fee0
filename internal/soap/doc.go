// ABOUTME: Package documentation for SOAP envelope handling.
// ABOUTME: Describes parsing, building and comparing SOAP 1.1 messages.

// Package soap holds the wire-level document model of the gateway: SOAP 1.1
// envelopes, faults, and a few XML helpers built on etree.
//
// # Messages
//
// A Message wraps a parsed envelope. The gateway core never looks inside the
// payload; it only needs the first body element and, for responses, whether
// that element is a Fault:
//
//	msg, err := soap.ParseMessage(r.Body)
//	payload := msg.Payload()
//
// # Faults
//
// Fault models the SOAP 1.1 fault structure. Codes are stored without the
// envelope prefix and rendered as "soap:<code>":
//
//	f := soap.NewFault("Server.AppError", "Invalid name")
//	resp := soap.NewFaultMessage(f)
//
// # XML comparison
//
// EqualXML and DiffXML compare two element trees by namespace URI, local name,
// attributes and trimmed text, ignoring prefixes and whitespace-only text.
package soap
