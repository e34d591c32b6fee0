// ABOUTME: Internal fabric message with opaque content, headers and typed extraction
// ABOUTME: ContentAs converts between string, bytes and etree XML representations

package exchange

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/beevik/etree"

	"github.com/2389/soap-gateway/internal/soap"
)

// Well-known headers.
const (
	// HeaderCorrelationID carries the bridge's per-call correlation token.
	HeaderCorrelationID = "correlation-id"

	// HeaderOperation names the wire operation a message was composed from.
	HeaderOperation = "operation"

	// HeaderSOAPAction carries the SOAPAction of the originating wire call.
	HeaderSOAPAction = "soap-action"

	// HeaderSOAPHeader carries the wire envelope's header entries as
	// base64-encoded XML.
	HeaderSOAPHeader = "soap-header"
)

// ErrContentType is returned when message content cannot be converted to the
// requested type.
var ErrContentType = errors.New("unsupported content conversion")

// Message is the payload travelling through the fabric.
type Message struct {
	mu      sync.RWMutex
	content any
	headers map[string]string
}

// NewMessage creates a message holding content.
func NewMessage(content any) *Message {
	return &Message{content: content}
}

// Content returns the raw content.
func (m *Message) Content() any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.content
}

// SetContent replaces the content and returns the message.
func (m *Message) SetContent(v any) *Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content = v
	return m
}

// Header returns a header value, or "" if unset.
func (m *Message) Header(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.headers[key]
}

// SetHeader sets a header and returns the message.
func (m *Message) SetHeader(key, value string) *Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.headers == nil {
		m.headers = make(map[string]string)
	}
	m.headers[key] = value
	return m
}

// Headers returns a copy of all headers.
func (m *Message) Headers() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.headers)
}

// ContentAs extracts the message content as T. Exact type matches are
// returned as is; string, []byte, *etree.Element and *etree.Document are
// converted between each other.
func ContentAs[T any](m *Message) (T, error) {
	var zero T
	content := m.Content()
	if v, ok := content.(T); ok {
		return v, nil
	}

	var (
		out any
		err error
	)
	switch any(zero).(type) {
	case string:
		out, err = asString(content)
	case []byte:
		var s string
		s, err = asString(content)
		out = []byte(s)
	case *etree.Element:
		out, err = asElement(content)
	case *etree.Document:
		var el *etree.Element
		el, err = asElement(content)
		if err == nil {
			out = soap.NewDocument(el)
		}
	default:
		return zero, fmt.Errorf("%w: %T to %T", ErrContentType, content, zero)
	}
	if err != nil {
		return zero, err
	}
	return out.(T), nil
}

func asString(content any) (string, error) {
	switch v := content.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case *etree.Element:
		return soap.ElementString(v), nil
	case *etree.Document:
		return soap.ElementString(v.Root()), nil
	case error:
		return v.Error(), nil
	case fmt.Stringer:
		return v.String(), nil
	case nil:
		return "", fmt.Errorf("%w: nil content to string", ErrContentType)
	default:
		return "", fmt.Errorf("%w: %T to string", ErrContentType, content)
	}
}

func asElement(content any) (*etree.Element, error) {
	switch v := content.(type) {
	case *etree.Element:
		return soap.Detach(v), nil
	case *etree.Document:
		if v.Root() == nil {
			return nil, fmt.Errorf("%w: empty document", ErrContentType)
		}
		return soap.Detach(v.Root()), nil
	case string:
		return parseElement([]byte(v))
	case []byte:
		return parseElement(v)
	case nil:
		return nil, fmt.Errorf("%w: nil content to element", ErrContentType)
	default:
		return nil, fmt.Errorf("%w: %T to element", ErrContentType, content)
	}
}

func parseElement(b []byte) (*etree.Element, error) {
	el, err := soap.ParseElementBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentType, err)
	}
	return el, nil
}
