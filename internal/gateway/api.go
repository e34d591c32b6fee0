// ABOUTME: Admin HTTP API handlers for health, readiness and the exchange journal
// ABOUTME: Serves JSON views of services, pending calls and recorded calls

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/soap-gateway/internal/auth"
	"github.com/2389/soap-gateway/internal/store"
)

// StatusResponse is the JSON response for GET /api/status.
type StatusResponse struct {
	Ready          bool            `json:"ready"`
	Inbound        *EndpointStatus `json:"inbound,omitempty"`
	Outbound       *EndpointStatus `json:"outbound,omitempty"`
	Services       []string        `json:"services"`
	PendingCalls   int             `json:"pending_calls"`
	WaitTimeoutMS  int64           `json:"wait_timeout_ms"`
	JournalEnabled bool            `json:"journal_enabled"`
}

// EndpointStatus describes one gateway direction.
type EndpointStatus struct {
	Service string `json:"service"`
	State   string `json:"state"`
	Address string `json:"address,omitempty"`
}

// PendingCallResponse is one entry of GET /api/pending.
type PendingCallResponse struct {
	Token     string `json:"token"`
	Service   string `json:"service"`
	WaitingMS int64  `json:"waiting_ms"`
}

// CallResponse is one journaled call in GET /api/calls.
type CallResponse struct {
	ID            string `json:"id"`
	Direction     string `json:"direction"`
	Service       string `json:"service"`
	Operation     string `json:"operation,omitempty"`
	Pattern       string `json:"pattern"`
	Outcome       string `json:"outcome"`
	CorrelationID string `json:"correlation_id,omitempty"`
	FaultCode     string `json:"fault_code,omitempty"`
	Error         string `json:"error,omitempty"`
	DurationMS    int64  `json:"duration_ms"`
	CreatedAt     string `json:"created_at"`
}

// adminMux builds the admin HTTP routes.
func (g *Gateway) adminMux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	if g.config.Metrics.Enabled {
		mux.Handle(g.config.Metrics.Path, g.metrics.Handler())
	}

	api := map[string]http.HandlerFunc{
		"/api/status":      g.handleStatus,
		"/api/pending":     g.handlePending,
		"/api/calls":       g.handleListCalls,
		"/api/calls/stats": g.handleCallStats,
	}
	wrap := func(h http.Handler) http.Handler { return h }
	if g.config.Auth.JWTSecret != "" {
		if verifier, err := auth.NewJWTVerifier([]byte(g.config.Auth.JWTSecret)); err == nil {
			wrap = auth.BearerMiddleware(verifier, "admin", g.logger)
		} else {
			g.logger.Error("admin API disabled: invalid jwt secret", "error", err)
			return mux
		}
	}
	for path, h := range api {
		mux.Handle(path, wrap(h))
	}
	return mux
}

// handleHealth handles the /health endpoint, returning 200 OK if the server is running.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady handles the /health/ready endpoint.
// Returns 200 OK once every configured gateway direction is started.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if !g.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d pending)", g.bridge.PendingCount())
}

// handleStatus handles GET /api/status.
func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	resp := StatusResponse{
		Ready:          g.ready(),
		Services:       g.services(),
		PendingCalls:   g.bridge.PendingCount(),
		WaitTimeoutMS:  g.bridge.Timeout().Milliseconds(),
		JournalEnabled: g.journal != nil,
	}
	if g.endpoint != nil {
		resp.Inbound = &EndpointStatus{
			Service: g.config.Inbound.LocalService,
			State:   g.endpoint.State().String(),
			Address: g.endpoint.Address(),
		}
	}
	if g.consumer != nil {
		st := &EndpointStatus{
			Service: g.config.Outbound.ServiceName,
			State:   g.consumer.State().String(),
		}
		if port := g.consumer.Port(); port != nil {
			st.Address = port.Address
		}
		resp.Outbound = st
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// handlePending handles GET /api/pending, listing in-out calls awaiting a reply.
func (g *Gateway) handlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	now := time.Now()
	pending := g.bridge.Pending()
	resp := make([]PendingCallResponse, 0, len(pending))
	for _, p := range pending {
		resp = append(resp, PendingCallResponse{
			Token:     p.Token,
			Service:   p.Service,
			WaitingMS: now.Sub(p.Created).Milliseconds(),
		})
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// handleListCalls handles GET /api/calls.
// Supports ?service=, ?direction=, ?outcome=, ?since= (RFC3339) and ?limit=.
func (g *Gateway) handleListCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if g.journal == nil {
		g.sendJSONError(w, http.StatusNotFound, "journal disabled")
		return
	}

	filter, err := parseCallFilter(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	calls, err := g.journal.ListCalls(r.Context(), filter)
	if err != nil {
		g.logger.Error("failed to list calls", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to list calls")
		return
	}

	resp := make([]CallResponse, 0, len(calls))
	for _, c := range calls {
		resp = append(resp, CallResponse{
			ID:            c.ID,
			Direction:     string(c.Direction),
			Service:       c.Service,
			Operation:     c.Operation,
			Pattern:       c.Pattern,
			Outcome:       c.Outcome,
			CorrelationID: c.CorrelationID,
			FaultCode:     c.FaultCode,
			Error:         c.Error,
			DurationMS:    c.Duration.Milliseconds(),
			CreatedAt:     c.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// handleCallStats handles GET /api/calls/stats?service=X, counting calls by outcome.
func (g *Gateway) handleCallStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if g.journal == nil {
		g.sendJSONError(w, http.StatusNotFound, "journal disabled")
		return
	}

	counts, err := g.journal.CountByOutcome(r.Context(), r.URL.Query().Get("service"))
	if err != nil {
		g.logger.Error("failed to count calls", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to count calls")
		return
	}
	g.writeJSON(w, http.StatusOK, counts)
}

// parseCallFilter reads journal filters from the query string.
func parseCallFilter(r *http.Request) (store.CallFilter, error) {
	q := r.URL.Query()
	var f store.CallFilter

	if s := q.Get("service"); s != "" {
		f.Service = &s
	}
	if o := q.Get("outcome"); o != "" {
		f.Outcome = &o
	}
	if d := q.Get("direction"); d != "" {
		dir := store.Direction(strings.ToLower(d))
		if dir != store.DirectionInbound && dir != store.DirectionOutbound {
			return f, errors.New("direction must be inbound or outbound")
		}
		f.Direction = &dir
	}
	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return f, errors.New("since must be RFC3339")
		}
		f.Since = &since
	}
	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
		f.Limit = limit
	}
	return f, nil
}

// writeJSON writes v as a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}
