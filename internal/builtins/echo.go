// ABOUTME: Echo service: in-out exchanges get their own content back.
// ABOUTME: Used to smoke-test a deployment without a real provider.

package builtins

import (
	"context"
	"log/slog"

	"github.com/2389/soap-gateway/internal/exchange"
)

type echoHandler struct {
	logger *slog.Logger
}

// Echo returns the echo provider.
func Echo(logger *slog.Logger) exchange.Handler {
	return &echoHandler{logger: componentLogger(logger, EchoService)}
}

func (h *echoHandler) HandleMessage(ctx context.Context, ex *exchange.Exchange) error {
	in := ex.Message()
	if ex.Pattern() != exchange.InOut {
		h.logger.Debug("dropping one-way message", "exchange_id", ex.ID())
		return nil
	}

	reply := exchange.NewMessage(in.Content())
	for k, v := range in.Headers() {
		reply.SetHeader(k, v)
	}
	return ex.Send(ctx, reply)
}

func (h *echoHandler) HandleFault(context.Context, *exchange.Exchange) {}
