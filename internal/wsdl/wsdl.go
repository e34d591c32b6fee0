// ABOUTME: Reads WSDL 1.1 service descriptions and derives the first port's descriptor.
// ABOUTME: Operations without an output message are classified as one-way.

package wsdl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/beevik/etree"
)

// Namespaces recognised in service descriptions.
const (
	NS              = "http://schemas.xmlsoap.org/wsdl/"
	SOAPBindingNS   = "http://schemas.xmlsoap.org/wsdl/soap/"
	SOAP12BindingNS = "http://schemas.xmlsoap.org/wsdl/soap12/"
)

// ErrDescriptor indicates a service description that is unreachable or
// cannot be interpreted.
var ErrDescriptor = errors.New("service descriptor error")

// Definition is a parsed WSDL document.
type Definition struct {
	Location        string
	Name            string
	TargetNamespace string

	doc *etree.Document
}

// Document returns a copy of the parsed document.
func (d *Definition) Document() *etree.Document {
	return d.doc.Copy()
}

// WithAddress returns a copy of the document whose SOAP port addresses all
// point at address. Published endpoints serve this so clients reach the
// listener that actually answered.
func (d *Definition) WithAddress(address string) *etree.Document {
	doc := d.doc.Copy()
	root := doc.Root()
	for _, svc := range wsdlChildren(root, "service") {
		for _, port := range wsdlChildren(svc, "port") {
			if addr := soapAddress(port); addr != nil {
				addr.CreateAttr("location", address)
			}
		}
	}
	return doc
}

// Operation describes one port operation.
type Operation struct {
	Name            string
	OneWay          bool
	SOAPAction      string
	RequestElement  string
	ResponseElement string
}

// PortDescriptor is the part of a service description the gateway needs.
type PortDescriptor struct {
	TargetNamespace string
	ServiceName     string
	PortName        string
	Address         string
	Operations      map[string]Operation
}

// Lookup finds the operation for a request. A non-empty SOAPAction that
// matches an operation wins; otherwise the request element's local name is
// matched against each operation's request element and then its name.
// Operations are tried in name order, so ties resolve the same way every time.
func (p *PortDescriptor) Lookup(element, soapAction string) (Operation, bool) {
	names := slices.Sorted(maps.Keys(p.Operations))
	action := strings.Trim(soapAction, `"`)
	if action != "" {
		for _, name := range names {
			if op := p.Operations[name]; op.SOAPAction == action {
				return op, true
			}
		}
	}
	for _, name := range names {
		if op := p.Operations[name]; op.RequestElement == element {
			return op, true
		}
	}
	op, ok := p.Operations[element]
	return op, ok
}

// Reader loads service descriptions from files or URLs.
type Reader struct {
	client *http.Client
	logger *slog.Logger
}

// NewReader creates a Reader. A nil client uses http.DefaultClient.
func NewReader(client *http.Client, logger *slog.Logger) *Reader {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{client: client, logger: logger}
}

// Read loads and parses the description at location.
func (r *Reader) Read(ctx context.Context, location string) (*Definition, error) {
	rc, err := Open(ctx, r.client, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(rc); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrDescriptor, location, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "definitions" || root.NamespaceURI() != NS {
		return nil, fmt.Errorf("%w: %s is not a WSDL 1.1 definitions document", ErrDescriptor, location)
	}

	def := &Definition{
		Location:        location,
		Name:            root.SelectAttrValue("name", ""),
		TargetNamespace: root.SelectAttrValue("targetNamespace", ""),
		doc:             doc,
	}
	r.logger.Debug("read service description",
		"location", location,
		"target_namespace", def.TargetNamespace,
	)
	return def, nil
}

// FirstPort resolves the first port of the first service.
func (r *Reader) FirstPort(def *Definition) (*PortDescriptor, error) {
	if def == nil || def.doc == nil {
		return nil, fmt.Errorf("%w: nil definition", ErrDescriptor)
	}
	root := def.doc.Root()

	services := wsdlChildren(root, "service")
	if len(services) == 0 {
		return nil, fmt.Errorf("%w: no service in %s", ErrDescriptor, def.Location)
	}
	svc := services[0]
	ports := wsdlChildren(svc, "port")
	if len(ports) == 0 {
		return nil, fmt.Errorf("%w: service %s has no port", ErrDescriptor, svc.SelectAttrValue("name", ""))
	}
	port := ports[0]

	pd := &PortDescriptor{
		TargetNamespace: def.TargetNamespace,
		ServiceName:     svc.SelectAttrValue("name", ""),
		PortName:        port.SelectAttrValue("name", ""),
		Operations:      make(map[string]Operation),
	}
	if addr := soapAddress(port); addr != nil {
		pd.Address = addr.SelectAttrValue("location", "")
	}

	binding := named(root, "binding", localName(port.SelectAttrValue("binding", "")))
	if binding == nil {
		return nil, fmt.Errorf("%w: port %s references unknown binding %q",
			ErrDescriptor, pd.PortName, port.SelectAttrValue("binding", ""))
	}
	portType := named(root, "portType", localName(binding.SelectAttrValue("type", "")))
	if portType == nil {
		return nil, fmt.Errorf("%w: binding %s references unknown portType %q",
			ErrDescriptor, binding.SelectAttrValue("name", ""), binding.SelectAttrValue("type", ""))
	}

	actions := make(map[string]string)
	for _, bop := range wsdlChildren(binding, "operation") {
		for _, child := range bop.ChildElements() {
			if child.Tag == "operation" && isSOAPBindingNS(child.NamespaceURI()) {
				actions[bop.SelectAttrValue("name", "")] = child.SelectAttrValue("soapAction", "")
			}
		}
	}

	for _, op := range wsdlChildren(portType, "operation") {
		name := op.SelectAttrValue("name", "")
		input := wsdlChild(op, "input")
		output := wsdlChild(op, "output")
		if input == nil {
			// Notification and solicit-response operations are outbound only.
			r.logger.Debug("skipping operation without input", "operation", name)
			continue
		}
		o := Operation{
			Name:           name,
			OneWay:         output == nil,
			SOAPAction:     actions[name],
			RequestElement: messageElement(root, input, name),
		}
		if output != nil {
			o.ResponseElement = messageElement(root, output, name+"Response")
		}
		pd.Operations[name] = o
	}

	r.logger.Debug("resolved port",
		"service", pd.ServiceName,
		"port", pd.PortName,
		"address", pd.Address,
		"operations", len(pd.Operations),
	)
	return pd, nil
}

// messageElement returns the element name of the first part of the message
// referenced by ref, or fallback for rpc-style parts.
func messageElement(root, ref *etree.Element, fallback string) string {
	msg := named(root, "message", localName(ref.SelectAttrValue("message", "")))
	if msg == nil {
		return fallback
	}
	part := wsdlChild(msg, "part")
	if part == nil {
		return fallback
	}
	if el := part.SelectAttrValue("element", ""); el != "" {
		return localName(el)
	}
	return fallback
}

func wsdlChildren(parent *etree.Element, tag string) []*etree.Element {
	if parent == nil {
		return nil
	}
	var out []*etree.Element
	for _, c := range parent.ChildElements() {
		if c.Tag == tag && c.NamespaceURI() == NS {
			out = append(out, c)
		}
	}
	return out
}

func wsdlChild(parent *etree.Element, tag string) *etree.Element {
	if all := wsdlChildren(parent, tag); len(all) > 0 {
		return all[0]
	}
	return nil
}

func named(root *etree.Element, tag, name string) *etree.Element {
	for _, el := range wsdlChildren(root, tag) {
		if el.SelectAttrValue("name", "") == name {
			return el
		}
	}
	return nil
}

func soapAddress(port *etree.Element) *etree.Element {
	for _, c := range port.ChildElements() {
		if c.Tag == "address" && isSOAPBindingNS(c.NamespaceURI()) {
			return c
		}
	}
	return nil
}

func isSOAPBindingNS(ns string) bool {
	return ns == SOAPBindingNS || ns == SOAP12BindingNS
}

func localName(qname string) string {
	if i := strings.IndexByte(qname, ':'); i >= 0 {
		return qname[i+1:]
	}
	return qname
}
