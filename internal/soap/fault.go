// ABOUTME: SOAP 1.1 Fault model with parsing from and rendering to XML elements
// ABOUTME: Fault codes are held without the envelope prefix and rendered as soap:<code>

package soap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// Standard SOAP 1.1 fault codes.
const (
	CodeClient = "Client"
	CodeServer = "Server"
)

// ErrNotFault is returned by ParseFault for elements that are not SOAP faults.
var ErrNotFault = errors.New("element is not a SOAP fault")

// Fault is a SOAP 1.1 fault.
type Fault struct {
	Code   string // e.g. "Server.AppError", without prefix
	String string
	Actor  string
	// Detail is the <detail> element; its children are the detail entries.
	Detail *etree.Element
}

// NewFault creates a fault with the given code and description.
func NewFault(code, description string) *Fault {
	return &Fault{Code: localName(code), String: description}
}

// WithDetail attaches detail entries to the fault and returns it.
func (f *Fault) WithDetail(entries ...*etree.Element) *Fault {
	if len(entries) == 0 {
		return f
	}
	if f.Detail == nil {
		f.Detail = etree.NewElement("detail")
	}
	for _, e := range entries {
		f.Detail.AddChild(Detach(e))
	}
	return f
}

// WithDetailText attaches a text-only detail to the fault and returns it.
func (f *Fault) WithDetailText(text string) *Fault {
	if text == "" {
		return f
	}
	if f.Detail == nil {
		f.Detail = etree.NewElement("detail")
	}
	f.Detail.CreateText(text)
	return f
}

// Error implements error so faults can travel through error returns.
func (f *Fault) Error() string {
	return fmt.Sprintf("soap fault %s: %s", f.Code, f.String)
}

// Element renders the fault as a self-contained soap:Fault element.
func (f *Fault) Element() *etree.Element {
	el := etree.NewElement(Prefix + ":Fault")
	el.CreateAttr("xmlns:"+Prefix, EnvelopeNS)

	code := f.Code
	if code == "" {
		code = CodeServer
	}
	el.CreateElement("faultcode").SetText(Prefix + ":" + code)
	el.CreateElement("faultstring").SetText(f.String)
	if f.Actor != "" {
		el.CreateElement("faultactor").SetText(f.Actor)
	}
	if f.Detail != nil {
		detail := Detach(f.Detail)
		detail.Space = ""
		detail.Tag = "detail"
		el.AddChild(detail)
	}
	return el
}

// IsFaultElement reports whether el looks like a SOAP Fault. The local name is
// matched case-insensitively since some services emit soap:fault.
func IsFaultElement(el *etree.Element) bool {
	if el == nil || !strings.EqualFold(el.Tag, "Fault") {
		return false
	}
	ns := el.NamespaceURI()
	return ns == EnvelopeNS || ns == ""
}

// ParseFault reads a fault from a Fault element.
func ParseFault(el *etree.Element) (*Fault, error) {
	if !IsFaultElement(el) {
		return nil, ErrNotFault
	}
	f := &Fault{}
	for _, child := range el.ChildElements() {
		switch strings.ToLower(child.Tag) {
		case "faultcode":
			f.Code = localName(strings.TrimSpace(child.Text()))
		case "faultstring":
			f.String = strings.TrimSpace(child.Text())
		case "faultactor":
			f.Actor = strings.TrimSpace(child.Text())
		case "detail":
			f.Detail = Detach(child)
		}
	}
	if f.Code == "" {
		return nil, fmt.Errorf("%w: missing faultcode", ErrNotFault)
	}
	return f, nil
}
