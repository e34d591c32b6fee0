// ABOUTME: HTTP handling for a published endpoint: SOAP POSTs and ?wsdl requests.
// ABOUTME: Maps endpoint replies to 200, 202 or 500 and bad envelopes to 400.

package publish

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/soap-gateway/internal/fault"
	"github.com/2389/soap-gateway/internal/inbound"
	"github.com/2389/soap-gateway/internal/soap"
	"github.com/2389/soap-gateway/internal/wsdl"
)

type endpointHandler struct {
	port   *wsdl.PortDescriptor
	target inbound.CallHandler
	calls  http.Handler
	logger *slog.Logger

	descriptor []byte
}

func newEndpointHandler(def *wsdl.Definition, port *wsdl.PortDescriptor, target inbound.CallHandler, address string, logger *slog.Logger) *endpointHandler {
	h := &endpointHandler{
		port:   port,
		target: target,
		logger: logger,
	}
	doc := def.WithAddress(address)
	doc.Indent(2)
	if b, err := doc.WriteToBytes(); err == nil {
		h.descriptor = b
	} else {
		logger.Error("failed to render service description", "error", err)
	}
	return h
}

func (h *endpointHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && isDescriptorRequest(r):
		h.serveDescriptor(w)
	case r.Method == http.MethodPost:
		h.calls.ServeHTTP(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func isDescriptorRequest(r *http.Request) bool {
	for key := range r.URL.Query() {
		if strings.EqualFold(key, "wsdl") {
			return true
		}
	}
	return false
}

func (h *endpointHandler) serveDescriptor(w http.ResponseWriter) {
	if h.descriptor == nil {
		http.Error(w, "service description unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", soap.ContentType)
	_, _ = w.Write(h.descriptor)
}

func (h *endpointHandler) serveCall(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "reading request", http.StatusBadRequest)
		return
	}
	req, err := soap.ParseMessage(bytes.NewReader(body))
	if err != nil {
		h.logger.Warn("rejecting malformed request", "error", err)
		writeMessage(w, http.StatusBadRequest, soap.NewFaultMessage(soap.NewFault(soap.CodeClient, err.Error())), h.logger)
		return
	}

	reply := h.target.HandleWireCall(r.Context(), &inbound.Call{
		Request:    req,
		SOAPAction: r.Header.Get("SOAPAction"),
	})

	switch {
	case reply == nil:
		writeMessage(w, http.StatusInternalServerError,
			soap.NewFaultMessage(soap.NewFault(soap.CodeServer, "internal error")), h.logger)
	case reply.Message == nil && reply.OneWay:
		w.WriteHeader(http.StatusAccepted)
	case reply.Message == nil:
		writeMessage(w, http.StatusInternalServerError,
			soap.NewFaultMessage(fault.Timeout(h.port.ServiceName)), h.logger)
	case reply.Fault:
		writeMessage(w, http.StatusInternalServerError, reply.Message, h.logger)
	case reply.OneWay:
		w.WriteHeader(http.StatusAccepted)
	default:
		writeMessage(w, http.StatusOK, reply.Message, h.logger)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg *soap.Message, logger *slog.Logger) {
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		logger.Error("failed to encode response", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", soap.ContentType)
	w.WriteHeader(status)
	_, _ = io.Copy(w, &buf)
}
