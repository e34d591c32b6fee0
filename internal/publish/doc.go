// ABOUTME: Package documentation for the SOAP HTTP publisher.
// ABOUTME: Describes endpoint publishing, ?wsdl serving and status mapping.

// Package publish exposes inbound endpoints over HTTP.
//
// Each published port gets its own net/http server listening on the
// configured host and port. The endpoint path is "/" + context +
// service name, so a HelloWebService published with context "soap" is
// reachable at http://localhost:8080/soap/HelloWebService.
//
// # Requests
//
//   - POST: the body is parsed as a SOAP 1.1 envelope and handed to the
//     endpoint's CallHandler together with the SOAPAction header.
//   - GET ?wsdl: returns the service description with every soap:address
//     rewritten to the address actually listened on.
//
// # Status codes
//
//	200  reply envelope
//	202  one-way call accepted (no body)
//	400  body is not a SOAP envelope (Client fault)
//	500  fault envelope, including Server.Timeout when no reply arrived
//
// Middleware configured on the Publisher wraps POSTed calls only.
package publish
