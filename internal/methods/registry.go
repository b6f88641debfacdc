package methods

import (
	"context"
	"errors"

	"github.com/luminapay/invoice-engine/internal/model"
	"github.com/luminapay/invoice-engine/internal/rates"
)

// ErrMethodUnavailable is the recognized "no viable configuration" failure.
// The resolver skips the method and records the reason; it never aborts the
// invoice on its own.
var ErrMethodUnavailable = errors.New("payment method unavailable")

// ResolveContext carries everything a handler may need while building the
// method-specific payment details, including the methods already selected for
// the same invoice (for cross-method wiring such as a lightning on-chain
// fallback).
type ResolveContext struct {
	Invoice  *model.InvoiceEntity
	Config   model.StorePaymentMethod
	Rate     rates.BidAsk
	Selected map[model.PaymentMethodID]*model.PaymentMethod
}

// Handler builds payment details for one payment method variant.
type Handler interface {
	ID() model.PaymentMethodID
	CreateDetails(ctx context.Context, rc *ResolveContext) (model.PaymentDetails, error)
}

// Registry holds one handler per PaymentMethodID. A method without a
// registered handler is simply not offered.
type Registry struct {
	handlers map[model.PaymentMethodID]Handler
}

func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[model.PaymentMethodID]Handler, len(handlers))}
	for _, h := range handlers {
		r.handlers[h.ID()] = h
	}
	return r
}

func (r *Registry) HandlerFor(id model.PaymentMethodID) (Handler, bool) {
	h, ok := r.handlers[id]
	return h, ok
}
