// ABOUTME: HTTP middleware for JWT authentication on published SOAP endpoints
// ABOUTME: Rejected calls get a 401 with a SOAP Client fault so SOAP clients can parse it

package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/soap-gateway/internal/soap"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// BearerMiddleware requires a valid bearer token scoped to service on every
// request it wraps. The verified claims are attached to the request context.
func BearerMiddleware(verifier TokenVerifier, service string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth", "service", service)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				reject(w, logger, http.StatusUnauthorized, errMsg, r)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				reject(w, logger, http.StatusUnauthorized, err.Error(), r)
				return
			}

			if !claims.Allows(service) {
				reject(w, logger, http.StatusForbidden, "token not valid for "+service, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func reject(w http.ResponseWriter, logger *slog.Logger, status int, reason string, r *http.Request) {
	logger.Warn("auth rejected",
		"reason", reason,
		"remote_addr", r.RemoteAddr,
		"status", status,
	)

	msg := "unauthorized"
	if status == http.StatusForbidden {
		msg = "forbidden"
	}
	body, err := soap.NewFaultMessage(soap.NewFault(soap.CodeClient, msg)).Bytes()
	if err != nil {
		http.Error(w, msg, status)
		return
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="soap-gateway"`)
	}
	w.Header().Set("Content-Type", soap.ContentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
