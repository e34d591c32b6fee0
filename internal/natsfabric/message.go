// ABOUTME: Encoding of fabric messages as NATS messages and back.
// ABOUTME: Exchange headers travel as NATS headers under a fixed prefix.

package natsfabric

import (
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/2389/soap-gateway/internal/exchange"
)

// NATS header names.
const (
	HeaderPattern = "Soapgw-Pattern"
	HeaderFault   = "Soapgw-Fault"
	HeaderID      = "Soapgw-Exchange-Id"

	headerPrefix = "Soapgw-H-"
)

// encode builds a NATS message for subject holding msg.
func encode(subject string, msg *exchange.Message) (*nats.Msg, error) {
	out := nats.NewMsg(subject)
	if msg == nil {
		return out, nil
	}
	if msg.Content() != nil {
		data, err := exchange.ContentAs[[]byte](msg)
		if err != nil {
			return nil, fmt.Errorf("encoding content: %w", err)
		}
		out.Data = data
	}
	for k, v := range msg.Headers() {
		out.Header.Set(headerPrefix+k, v)
	}
	return out, nil
}

// decode rebuilds a fabric message from m. Content is the payload as a
// string, or nil when the payload is empty.
func decode(m *nats.Msg) *exchange.Message {
	var content any
	if len(m.Data) > 0 {
		content = string(m.Data)
	}
	msg := exchange.NewMessage(content)
	for k, vs := range m.Header {
		if len(vs) == 0 {
			continue
		}
		if name, ok := strings.CutPrefix(k, headerPrefix); ok {
			msg.SetHeader(name, vs[0])
		}
	}
	return msg
}

func parsePattern(s string) exchange.Pattern {
	if s == exchange.InOnly.String() {
		return exchange.InOnly
	}
	return exchange.InOut
}

func isFault(m *nats.Msg) bool {
	return m.Header.Get(HeaderFault) == "true"
}
