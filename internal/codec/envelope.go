// ABOUTME: Envelope codec: the whole SOAP envelope, headers included, is the internal content.
// ABOUTME: Decompose accepts either a full envelope or a bare payload element.

package codec

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/2389/soap-gateway/internal/exchange"
	"github.com/2389/soap-gateway/internal/soap"
)

// Envelope hands services the complete envelope so they can read SOAP headers.
type Envelope struct{}

// Compose implements Composer.
func (Envelope) Compose(req *soap.Message) (*exchange.Message, error) {
	if req == nil || req.Envelope() == nil {
		return nil, fmt.Errorf("%w: nil request", ErrTranslation)
	}

	msg := exchange.NewMessage(req.Document().Copy())
	if payload := req.Payload(); payload != nil {
		msg.SetHeader(exchange.HeaderOperation, payload.Tag)
	}
	return msg, nil
}

// Decompose implements Decomposer.
func (Envelope) Decompose(msg *exchange.Message) (*soap.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrTranslation)
	}
	el, err := exchange.ContentAs[*etree.Element](msg)
	if err != nil {
		// Not XML; the default rules may still know the type.
		return Passthrough{}.Decompose(msg)
	}
	if el.Tag != "Envelope" || el.NamespaceURI() != soap.EnvelopeNS {
		return soap.NewMessage(el), nil
	}

	out, err := soap.FromDocument(soap.NewDocument(el))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTranslation, err)
	}
	return out, nil
}
