// ABOUTME: Package documentation for the WSDL descriptor reader.
// ABOUTME: Describes port selection and operation lookup.

// Package wsdl reads WSDL 1.1 documents just far enough to publish and call
// a single SOAP port: the first service, its first port, the SOAP address,
// and each operation's SOAPAction, request element and one-way flag.
package wsdl
