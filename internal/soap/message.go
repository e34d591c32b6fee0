// ABOUTME: SOAP 1.1 envelope parsing and construction on top of etree documents
// ABOUTME: Message is the opaque wire-level document passed through the gateway

package soap

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/beevik/etree"
)

const (
	// EnvelopeNS is the SOAP 1.1 envelope namespace.
	EnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"

	// Prefix is the namespace prefix used for envelopes built by the gateway.
	Prefix = "soap"

	// ContentType is the HTTP content type of SOAP 1.1 messages.
	ContentType = "text/xml; charset=utf-8"
)

// ErrMalformedEnvelope is returned when a document is not a SOAP 1.1 envelope.
var ErrMalformedEnvelope = errors.New("malformed SOAP envelope")

// Message is a SOAP envelope.
type Message struct {
	doc *etree.Document
}

// NewMessage builds an envelope whose body holds a detached copy of payload.
// A nil payload produces an empty body.
func NewMessage(payload *etree.Element) *Message {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	env := doc.CreateElement(Prefix + ":Envelope")
	env.CreateAttr("xmlns:"+Prefix, EnvelopeNS)
	body := env.CreateElement(Prefix + ":Body")
	if payload != nil {
		body.AddChild(Detach(payload))
	}
	return &Message{doc: doc}
}

// AddHeader appends detached copies of entries to the envelope's Header,
// creating the Header before Body when the envelope has none.
func (m *Message) AddHeader(entries ...*etree.Element) *Message {
	if len(entries) == 0 {
		return m
	}
	header := m.Header()
	if header == nil {
		env := m.Envelope()
		tag := "Header"
		if env.Space != "" {
			tag = env.Space + ":Header"
		}
		header = etree.NewElement(tag)
		env.InsertChildAt(m.Body().Index(), header)
	}
	for _, el := range entries {
		header.AddChild(Detach(el))
	}
	return m
}

// NewFaultMessage builds an envelope whose body holds f.
func NewFaultMessage(f *Fault) *Message {
	return NewMessage(f.Element())
}

// ParseMessage reads an envelope from r.
func ParseMessage(r io.Reader) (*Message, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return FromDocument(doc)
}

// ParseMessageString reads an envelope from s.
func ParseMessageString(s string) (*Message, error) {
	return ParseMessage(bytes.NewReader([]byte(s)))
}

// FromDocument validates that doc is an envelope with a body.
func FromDocument(doc *etree.Document) (*Message, error) {
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedEnvelope)
	}
	if root.Tag != "Envelope" || root.NamespaceURI() != EnvelopeNS {
		return nil, fmt.Errorf("%w: unexpected root element %q", ErrMalformedEnvelope, root.FullTag())
	}
	m := &Message{doc: doc}
	if m.Body() == nil {
		return nil, fmt.Errorf("%w: missing Body", ErrMalformedEnvelope)
	}
	return m, nil
}

// Document returns the underlying document.
func (m *Message) Document() *etree.Document {
	return m.doc
}

// Envelope returns the root element.
func (m *Message) Envelope() *etree.Element {
	return m.doc.Root()
}

// Header returns the Header element, or nil if the envelope has none.
func (m *Message) Header() *etree.Element {
	return m.child("Header")
}

// Body returns the Body element.
func (m *Message) Body() *etree.Element {
	return m.child("Body")
}

func (m *Message) child(name string) *etree.Element {
	env := m.Envelope()
	if env == nil {
		return nil
	}
	for _, el := range env.ChildElements() {
		if el.Tag == name && el.NamespaceURI() == EnvelopeNS {
			return el
		}
	}
	return nil
}

// Payload returns the first element inside Body, or nil for an empty body.
func (m *Message) Payload() *etree.Element {
	body := m.Body()
	if body == nil {
		return nil
	}
	children := body.ChildElements()
	if len(children) == 0 {
		return nil
	}
	return children[0]
}

// IsFault reports whether the body carries a SOAP Fault.
func (m *Message) IsFault() bool {
	return IsFaultElement(m.Payload())
}

// Fault parses the body fault. The boolean is false when the body is not a fault.
func (m *Message) Fault() (*Fault, bool) {
	if !m.IsFault() {
		return nil, false
	}
	f, err := ParseFault(m.Payload())
	if err != nil {
		return nil, false
	}
	return f, true
}

// WriteTo serializes the envelope to w.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	return m.doc.WriteTo(w)
}

// Bytes serializes the envelope.
func (m *Message) Bytes() ([]byte, error) {
	return m.doc.WriteToBytes()
}

// String serializes the envelope, returning "" on failure.
func (m *Message) String() string {
	s, err := m.doc.WriteToString()
	if err != nil {
		return ""
	}
	return s
}
