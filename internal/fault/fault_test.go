// ABOUTME: Tests for fault translation from fabric messages and local errors.
// ABOUTME: Covers passthrough of service faults, header-built faults, error mapping and fallbacks.

package fault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/soap-gateway/internal/bridge"
	"github.com/2389/soap-gateway/internal/codec"
	"github.com/2389/soap-gateway/internal/exchange"
	"github.com/2389/soap-gateway/internal/soap"
)

const invalidNameFault = `<soap:fault xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
   <faultcode>soap:Server.AppError</faultcode>
   <faultstring>Invalid name</faultstring>
   <detail>
      <message>Looks like you did not specify a name!</message>
      <errorcode>1000</errorcode>
   </detail>
</soap:fault>`

const expectedFault = `<soap:Fault xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
   <faultcode>soap:Server.AppError</faultcode>
   <faultstring>Invalid name</faultstring>
   <detail>
      <message>Looks like you did not specify a name!</message>
      <errorcode>1000</errorcode>
   </detail>
</soap:Fault>`

func newTestTranslator() *Translator {
	return NewTranslator(slog.Default())
}

func TestTranslateServiceFaultXML(t *testing.T) {
	want, err := soap.ParseElement(expectedFault)
	require.NoError(t, err)

	f := newTestTranslator().Translate(exchange.NewMessage(invalidNameFault))
	assert.Equal(t, "Server.AppError", f.Code)
	assert.Equal(t, "Invalid name", f.String)
	assert.Empty(t, soap.DiffXML(want, f.Element()))
}

func TestTranslateFaultInsideEnvelope(t *testing.T) {
	env := `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>` +
		invalidNameFault + `</s:Body></s:Envelope>`

	f := newTestTranslator().Translate(exchange.NewMessage([]byte(env)))
	assert.Equal(t, "Server.AppError", f.Code)
}

func TestTranslateFaultValue(t *testing.T) {
	orig := soap.NewFault("Client.Bad", "bad input")
	assert.Same(t, orig, newTestTranslator().Translate(exchange.NewMessage(orig)))

	msg := soap.NewFaultMessage(orig)
	f := newTestTranslator().Translate(exchange.NewMessage(msg))
	assert.Equal(t, "Client.Bad", f.Code)
}

func TestTranslateFromHeaders(t *testing.T) {
	tests := []struct {
		name       string
		detail     string
		wantDetail string
	}{
		{
			name:       "xml detail entries",
			detail:     `<message>Looks like you did not specify a name!</message><errorcode>1000</errorcode>`,
			wantDetail: `<detail><message>Looks like you did not specify a name!</message><errorcode>1000</errorcode></detail>`,
		},
		{
			name:       "text detail",
			detail:     "name < 1 char",
			wantDetail: `<detail>name &lt; 1 char</detail>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := exchange.NewMessage(nil).
				SetHeader(HeaderCode, "Server.AppError").
				SetHeader(HeaderString, "Invalid name").
				SetHeader(HeaderDetail, tt.detail)

			f := newTestTranslator().Translate(msg)
			assert.Equal(t, "Server.AppError", f.Code)
			assert.Equal(t, "Invalid name", f.String)

			want, err := soap.ParseElement(tt.wantDetail)
			require.NoError(t, err)
			assert.Empty(t, soap.DiffXML(want, f.Detail))
		})
	}
}

func TestTranslateGeneric(t *testing.T) {
	tr := newTestTranslator()

	f := tr.Translate(exchange.NewMessage(errors.New("database unavailable")))
	assert.Equal(t, soap.CodeServer, f.Code)
	assert.Equal(t, "database unavailable", f.String)
	assert.Nil(t, f.Detail)

	f = tr.Translate(exchange.NewMessage("something broke"))
	assert.Equal(t, soap.CodeServer, f.Code)
	assert.Equal(t, "something broke", f.String)

	f = tr.Translate(exchange.NewMessage(struct{}{}))
	assert.Equal(t, "internal error", f.String)

	f = tr.Translate(nil)
	assert.Equal(t, soap.CodeServer, f.Code)

	// A fault-shaped element without a faultcode is not a usable fault.
	f = tr.Translate(exchange.NewMessage(`<Fault><faultstring>x</faultstring></Fault>`))
	assert.Equal(t, soap.CodeServer, f.Code)
}

type panickyStringer struct{}

func (panickyStringer) String() string { panic("boom") }

func TestTranslateRecoversPanics(t *testing.T) {
	var f *soap.Fault
	assert.NotPanics(t, func() {
		f = newTestTranslator().Translate(exchange.NewMessage(panickyStringer{}))
	})
	require.NotNil(t, f)
	assert.Equal(t, soap.CodeServer, f.Code)
	assert.Equal(t, "internal error", f.String)
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"translation", fmt.Errorf("%w: empty SOAP body", codec.ErrTranslation), soap.CodeClient},
		{"timeout", bridge.ErrCorrelationTimeout, CodeTimeout},
		{"deadline", context.DeadlineExceeded, CodeTimeout},
		{"dispatch", fmt.Errorf("%w: no route", bridge.ErrFabricDispatch), CodeDispatch},
		{"closed", bridge.ErrBridgeClosed, soap.CodeServer},
		{"wrapped fault", fmt.Errorf("remote: %w", soap.NewFault("Client.X", "x")), "Client.X"},
		{"nil", nil, soap.CodeServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, FromError(tt.err).Code)
		})
	}
}

func TestTimeoutFault(t *testing.T) {
	f := Timeout("publish-as-ws")
	assert.Equal(t, "Server.Timeout", f.Code)
	assert.Contains(t, f.String, "publish-as-ws")
}
