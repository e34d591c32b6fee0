// ABOUTME: Package documentation for bearer token auth.
// ABOUTME: Describes token issue, verification and the HTTP middleware.

// Package auth provides bearer token authentication for published SOAP
// endpoints.
//
// # JWT Tokens
//
// Callers authenticate with HS256 JWTs signed with the configured
// auth.jwt_secret (at least MinSecretLength bytes). Tokens carry:
//
//   - sub: the calling principal
//   - iss: always "soap-gateway"
//   - exp: required expiration time
//   - svc: optional list of service names the token may call
//
// Tokens are minted with `soap-gateway token --sub NAME --ttl 24h`.
//
// # HTTP Middleware
//
// BearerMiddleware wraps the SOAP call handler of a published endpoint.
// Descriptor requests (?wsdl) are not wrapped. Rejected calls receive a
// SOAP Client fault with status 401, or 403 when the token's service scope
// excludes the endpoint.
package auth
