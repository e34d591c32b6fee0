// ABOUTME: XML helpers for detaching, parsing and comparing etree elements
// ABOUTME: Keeps in-scope namespace declarations when elements leave their document

package soap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// ErrNotXML is returned when a value cannot be parsed as an XML element.
var ErrNotXML = errors.New("not an XML document")

// ParseElement parses s and returns its root element, detached from the
// temporary document.
func ParseElement(s string) (*etree.Element, error) {
	return ParseElementBytes([]byte(s))
}

// ParseElementBytes parses b and returns its root element.
func ParseElementBytes(b []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotXML, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrNotXML)
	}
	return Detach(root), nil
}

// Detach returns a deep copy of el that carries every namespace declaration
// visible at el, so the copy resolves prefixes the same way outside its
// original document.
func Detach(el *etree.Element) *etree.Element {
	if el == nil {
		return nil
	}
	cp := el.Copy()
	declared := make(map[string]bool)
	for _, a := range cp.Attr {
		if isNamespaceDecl(a) {
			declared[a.FullKey()] = true
		}
	}
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			if !isNamespaceDecl(a) || declared[a.FullKey()] {
				continue
			}
			declared[a.FullKey()] = true
			cp.CreateAttr(a.FullKey(), a.Value)
		}
	}
	return cp
}

// NewDocument wraps a detached copy of el in a fresh document.
func NewDocument(el *etree.Element) *etree.Document {
	doc := etree.NewDocument()
	if el != nil {
		doc.SetRoot(Detach(el))
	}
	return doc
}

// ElementString serializes el without an XML declaration.
func ElementString(el *etree.Element) string {
	if el == nil {
		return ""
	}
	doc := etree.NewDocument()
	doc.SetRoot(Detach(el))
	s, err := doc.WriteToString()
	if err != nil {
		return ""
	}
	return s
}

func isNamespaceDecl(a etree.Attr) bool {
	return a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns")
}

// localName strips any prefix from a qualified name.
func localName(qname string) string {
	if i := strings.IndexByte(qname, ':'); i >= 0 {
		return qname[i+1:]
	}
	return qname
}

// xmlNode is the prefix-free shape two documents are compared on.
type xmlNode struct {
	Namespace string
	Name      string
	Attrs     map[string]string
	Text      string
	Children  []xmlNode
}

func normalize(el *etree.Element) xmlNode {
	n := xmlNode{
		Namespace: el.NamespaceURI(),
		Name:      el.Tag,
	}
	for _, a := range el.Attr {
		if isNamespaceDecl(a) {
			continue
		}
		if n.Attrs == nil {
			n.Attrs = make(map[string]string)
		}
		key := a.Key
		if a.Space != "" {
			key = "{" + a.NamespaceURI() + "}" + a.Key
		}
		n.Attrs[key] = a.Value
	}

	var text []string
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.Element:
			n.Children = append(n.Children, normalize(t))
		case *etree.CharData:
			if s := strings.TrimSpace(t.Data); s != "" {
				text = append(text, s)
			}
		}
	}
	n.Text = strings.Join(text, " ")
	return n
}

// EqualXML reports whether a and b have the same content, ignoring namespace
// prefixes, attribute order and whitespace-only text.
func EqualXML(a, b *etree.Element) bool {
	return DiffXML(a, b) == ""
}

// DiffXML returns a human-readable diff between a and b, or "" when they are
// content-equal.
func DiffXML(a, b *etree.Element) string {
	switch {
	case a == nil && b == nil:
		return ""
	case a == nil || b == nil:
		return fmt.Sprintf("one side is nil: %q vs %q", ElementString(a), ElementString(b))
	}
	return cmp.Diff(normalize(a), normalize(b), cmpopts.EquateEmpty())
}
