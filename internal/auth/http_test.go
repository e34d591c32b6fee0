// ABOUTME: Tests for the bearer token HTTP middleware
// ABOUTME: Covers token extraction, verification, service scope and SOAP fault responses

package auth

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/2389/soap-gateway/internal/soap"
)

func serveWithAuth(t *testing.T, authHeader string) (*httptest.ResponseRecorder, *Claims, string) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	var got *Claims
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/HelloWebService", strings.NewReader("<x/>"))
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	BearerMiddleware(newTestVerifier(t), "publish-as-ws", logger)(handler).ServeHTTP(rec, req)
	return rec, got, logs.String()
}

func TestBearerMiddleware_ValidToken(t *testing.T) {
	token, _ := newTestVerifier(t).Generate("client-1", time.Hour)

	rec, claims, _ := serveWithAuth(t, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if claims == nil || claims.Subject != "client-1" {
		t.Errorf("expected claims for client-1 in context, got %+v", claims)
	}
}

func TestBearerMiddleware_Rejections(t *testing.T) {
	verifier := newTestVerifier(t)
	scoped, _ := verifier.Generate("client-1", time.Hour, "other-service")
	expired, _ := verifier.Generate("client-1", -time.Minute)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantReason string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing authorization header"},
		{"basic auth", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "invalid authorization header format"},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, "empty token"},
		{"garbage", "Bearer nope", http.StatusUnauthorized, "invalid token"},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, "token expired"},
		{"wrong scope", "Bearer " + scoped, http.StatusForbidden, "token not valid for publish-as-ws"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, claims, logs := serveWithAuth(t, tt.header)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if claims != nil {
				t.Error("handler should not have been called")
			}
			if !strings.Contains(logs, tt.wantReason) {
				t.Errorf("logs %q missing reason %q", logs, tt.wantReason)
			}
			if ct := rec.Header().Get("Content-Type"); ct != soap.ContentType {
				t.Errorf("Content-Type = %q, want %q", ct, soap.ContentType)
			}

			msg, err := soap.ParseMessage(rec.Body)
			if err != nil {
				t.Fatalf("response is not a SOAP envelope: %v", err)
			}
			f, ok := msg.Fault()
			if !ok || f.Code != soap.CodeClient {
				t.Errorf("expected Client fault, got %+v", f)
			}
		})
	}
}

func TestBearerMiddleware_ChallengeHeader(t *testing.T) {
	rec, _, _ := serveWithAuth(t, "")
	if got := rec.Header().Get("WWW-Authenticate"); !strings.HasPrefix(got, "Bearer") {
		t.Errorf("WWW-Authenticate = %q, want Bearer challenge", got)
	}
}
