package methods

import (
	"context"
	"errors"
	"fmt"

	"github.com/luminapay/invoice-engine/internal/model"
)

// ErrNoAddress is returned by an AddressSource whose pool for the store ran
// dry.
var ErrNoAddress = errors.New("no unused address available")

// AddressSource hands out fresh deposit addresses for a store. The production
// implementation reserves them from the store's imported address pool.
type AddressSource interface {
	ReserveAddress(ctx context.Context, storeID, cryptoCode string) (string, error)
}

type OnChainHandler struct {
	id        model.PaymentMethodID
	addresses AddressSource
}

func NewOnChainHandler(cryptoCode string, addresses AddressSource) *OnChainHandler {
	return &OnChainHandler{
		id:        model.PaymentMethodID{CryptoCode: cryptoCode, Type: model.PaymentTypeOnChain},
		addresses: addresses,
	}
}

func (h *OnChainHandler) ID() model.PaymentMethodID { return h.id }

func (h *OnChainHandler) CreateDetails(ctx context.Context, rc *ResolveContext) (model.PaymentDetails, error) {
	addr, err := h.addresses.ReserveAddress(ctx, rc.Invoice.StoreID, h.id.CryptoCode)
	if err != nil {
		if errors.Is(err, ErrNoAddress) {
			return model.PaymentDetails{}, fmt.Errorf("%w: address pool for %s is empty", ErrMethodUnavailable, h.id.CryptoCode)
		}
		return model.PaymentDetails{}, fmt.Errorf("reserve %s address: %w", h.id.CryptoCode, err)
	}

	return model.PaymentDetails{
		Destination: addr,
		NetworkFee:  rc.Config.NetworkFee,
	}, nil
}
