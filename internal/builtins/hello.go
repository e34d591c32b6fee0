// ABOUTME: Greeting service matching the sample HelloWebService descriptor.
// ABOUTME: An empty name is answered with an application fault.

package builtins

import (
	"context"
	"log/slog"

	"github.com/beevik/etree"

	"github.com/2389/soap-gateway/internal/exchange"
)

// HelloNamespace is the target namespace of the greeting service.
const HelloNamespace = "http://test.ws/"

const invalidNameFault = `<soap:fault xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">` +
	`<faultcode>soap:Server.AppError</faultcode>` +
	`<faultstring>Invalid name</faultstring>` +
	`<detail>` +
	`<message>Looks like you did not specify a name!</message>` +
	`<errorcode>1000</errorcode>` +
	`</detail>` +
	`</soap:fault>`

type helloHandler struct {
	logger *slog.Logger
}

// Hello returns the greeting provider.
func Hello(logger *slog.Logger) exchange.Handler {
	return &helloHandler{logger: componentLogger(logger, HelloService)}
}

func (h *helloHandler) HandleMessage(ctx context.Context, ex *exchange.Exchange) error {
	name := argument(ex.Message())

	if ex.Pattern() != exchange.InOut {
		h.logger.Info("hello", "name", name)
		return nil
	}

	if name == "" {
		return ex.SendFault(ctx, exchange.NewMessage(invalidNameFault))
	}
	resp := etree.NewElement("test:sayHelloResponse")
	resp.CreateAttr("xmlns:test", HelloNamespace)
	resp.CreateElement("return").SetText("Hello " + name)
	return ex.Send(ctx, exchange.NewMessage(resp))
}

func (h *helloHandler) HandleFault(context.Context, *exchange.Exchange) {}

// argument returns the text of the request's arg0 element, or "".
func argument(msg *exchange.Message) string {
	if msg == nil {
		return ""
	}
	el, err := exchange.ContentAs[*etree.Element](msg)
	if err != nil || el == nil {
		return ""
	}
	arg := el.FindElement(".//arg0")
	if arg == nil {
		return ""
	}
	return arg.Text()
}
