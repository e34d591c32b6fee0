// ABOUTME: Translates fabric fault messages and local errors into SOAP faults.
// ABOUTME: Passes through service-produced faults; falls back to a minimal Server fault on any failure.

package fault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/beevik/etree"

	"github.com/2389/soap-gateway/internal/bridge"
	"github.com/2389/soap-gateway/internal/codec"
	"github.com/2389/soap-gateway/internal/exchange"
	"github.com/2389/soap-gateway/internal/soap"
)

// Structured fault headers a service may set instead of producing XML.
const (
	HeaderCode   = "fault.code"
	HeaderString = "fault.string"
	HeaderDetail = "fault.detail"
)

// Fault codes used for local failures.
const (
	CodeTimeout  = soap.CodeServer + ".Timeout"
	CodeDispatch = soap.CodeServer + ".DispatchError"
)

const genericDescription = "internal error"

// Translator turns fault messages delivered by the fabric into SOAP faults.
type Translator struct {
	logger *slog.Logger
}

// NewTranslator creates a Translator.
func NewTranslator(logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{logger: logger}
}

// Translate maps msg to a SOAP fault. It never returns nil.
func (t *Translator) Translate(msg *exchange.Message) (f *soap.Fault) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("fault translation panicked", "panic", r)
			f = soap.NewFault(soap.CodeServer, genericDescription)
		}
	}()

	if msg == nil {
		return soap.NewFault(soap.CodeServer, genericDescription)
	}

	switch v := msg.Content().(type) {
	case *soap.Fault:
		return v
	case *soap.Message:
		if sf, ok := v.Fault(); ok {
			return sf
		}
	}

	if el, err := exchange.ContentAs[*etree.Element](msg); err == nil {
		if el.Tag == "Envelope" && el.NamespaceURI() == soap.EnvelopeNS {
			if env, err := soap.FromDocument(soap.NewDocument(el)); err == nil {
				el = env.Payload()
			}
		}
		if soap.IsFaultElement(el) {
			sf, err := soap.ParseFault(el)
			if err == nil {
				return sf
			}
			t.logger.Warn("service produced an unreadable fault element", "error", err)
		}
	}

	if code := msg.Header(HeaderCode); code != "" {
		return t.fromHeaders(msg, code)
	}

	if err, ok := msg.Content().(error); ok {
		return FromError(err)
	}

	text, err := exchange.ContentAs[string](msg)
	if err != nil || strings.TrimSpace(text) == "" {
		text = genericDescription
	}
	return soap.NewFault(soap.CodeServer, text)
}

func (t *Translator) fromHeaders(msg *exchange.Message, code string) *soap.Fault {
	desc := msg.Header(HeaderString)
	if desc == "" {
		desc = genericDescription
	}
	f := soap.NewFault(code, desc)

	detail := msg.Header(HeaderDetail)
	if detail == "" {
		return f
	}
	// The detail may hold several sibling entries, so parse it wrapped.
	wrapped, err := soap.ParseElement("<detail>" + detail + "</detail>")
	if err != nil {
		t.logger.Debug("fault detail is not XML, keeping text", "error", err)
		return f.WithDetailText(detail)
	}
	return f.WithDetail(wrapped.ChildElements()...)
}

// FromError maps a local failure to a SOAP fault.
func FromError(err error) *soap.Fault {
	var sf *soap.Fault
	switch {
	case err == nil:
		return soap.NewFault(soap.CodeServer, genericDescription)
	case errors.As(err, &sf):
		return sf
	case errors.Is(err, codec.ErrTranslation):
		return soap.NewFault(soap.CodeClient, err.Error())
	case errors.Is(err, bridge.ErrCorrelationTimeout), errors.Is(err, context.DeadlineExceeded):
		return soap.NewFault(CodeTimeout, "no reply received within the wait timeout")
	case errors.Is(err, bridge.ErrFabricDispatch):
		return soap.NewFault(CodeDispatch, err.Error())
	default:
		return soap.NewFault(soap.CodeServer, err.Error())
	}
}

// Timeout returns the fault sent for a request-response call that produced
// no result.
func Timeout(service string) *soap.Fault {
	return soap.NewFault(CodeTimeout, fmt.Sprintf("no reply from %s within the wait timeout", service))
}
