// ABOUTME: Default structural codec: the body element travels as-is, header entries ride along.
// ABOUTME: Decompose wraps any XML content back into an envelope, restoring carried headers.

package codec

import (
	"encoding/base64"
	"fmt"

	"github.com/beevik/etree"

	"github.com/2389/soap-gateway/internal/exchange"
	"github.com/2389/soap-gateway/internal/soap"
)

// Passthrough embeds the body payload as the internal content without any
// schema validation. SOAP header entries travel in the HeaderSOAPHeader
// message header so a round trip reproduces the whole envelope.
type Passthrough struct{}

// Compose implements Composer. The content is an *etree.Document rooted at a
// detached copy of the single body element. A body with more than one element
// is rejected rather than truncated.
func (Passthrough) Compose(req *soap.Message) (*exchange.Message, error) {
	if req == nil || req.Body() == nil {
		return nil, fmt.Errorf("%w: nil request", ErrTranslation)
	}
	children := req.Body().ChildElements()
	switch len(children) {
	case 0:
		return nil, fmt.Errorf("%w: empty SOAP body", ErrTranslation)
	case 1:
	default:
		return nil, fmt.Errorf("%w: SOAP body has %d elements, want 1", ErrTranslation, len(children))
	}
	payload := children[0]

	msg := exchange.NewMessage(soap.NewDocument(payload))
	msg.SetHeader(exchange.HeaderOperation, payload.Tag)
	if header := req.Header(); header != nil && len(header.ChildElements()) > 0 {
		msg.SetHeader(exchange.HeaderSOAPHeader, encodeHeader(header))
	}
	return msg, nil
}

// Decompose implements Decomposer.
func (Passthrough) Decompose(msg *exchange.Message) (*soap.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrTranslation)
	}
	switch v := msg.Content().(type) {
	case *soap.Message:
		return v, nil
	case *soap.Fault:
		return soap.NewFaultMessage(v), nil
	}

	el, err := exchange.ContentAs[*etree.Element](msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTranslation, err)
	}
	out := soap.NewMessage(el)
	if encoded := msg.Header(exchange.HeaderSOAPHeader); encoded != "" {
		entries, err := decodeHeader(encoded)
		if err != nil {
			return nil, err
		}
		out.AddHeader(entries...)
	}
	return out, nil
}

// encodeHeader serializes header's entries, each carrying the namespace
// declarations it inherited from the envelope.
func encodeHeader(header *etree.Element) string {
	wrapper := etree.NewElement("entries")
	for _, entry := range header.ChildElements() {
		wrapper.AddChild(soap.Detach(entry))
	}
	return base64.StdEncoding.EncodeToString([]byte(soap.ElementString(wrapper)))
}

func decodeHeader(encoded string) ([]*etree.Element, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: soap header: %w", ErrTranslation, err)
	}
	wrapper, err := soap.ParseElementBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: soap header: %w", ErrTranslation, err)
	}
	return wrapper.ChildElements(), nil
}
