package service

import (
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luminapay/invoice-engine/internal/dto"
	"github.com/luminapay/invoice-engine/internal/model"
)

// minExpirationWindow is the shortest expiration the legacy API accepts,
// measured from invoice creation time.
const minExpirationWindow = 30 * time.Second

// methodFilter is an allow-list derived from an explicit payment-method list
// on the request. A nil filter allows everything.
type methodFilter struct {
	allowed map[model.PaymentMethodID]struct{}
}

func newMethodFilter(ids []string) *methodFilter {
	if len(ids) == 0 {
		return nil
	}
	// A restriction was requested: entries that fail to parse are dropped,
	// and a list with no valid entries allows nothing rather than everything.
	allowed := make(map[model.PaymentMethodID]struct{})
	for _, raw := range ids {
		id, err := model.ParsePaymentMethodID(raw)
		if err != nil {
			continue
		}
		allowed[id] = struct{}{}
	}
	return &methodFilter{allowed: allowed}
}

func (f *methodFilter) Allows(id model.PaymentMethodID) bool {
	if f == nil {
		return true
	}
	_, ok := f.allowed[id]
	return ok
}

// buildFromLegacy normalizes a legacy flat request into the canonical entity.
func buildFromLegacy(store *model.Store, req *dto.LegacyCreateInvoiceRequest, now time.Time) (*model.InvoiceEntity, *methodFilter, error) {
	inv := newEntity(store, now)

	setPrice(inv, req.Price, req.Currency, store)

	if req.ExpirationTime != nil {
		if req.ExpirationTime.Before(now.Add(minExpirationWindow)) {
			return nil, nil, ErrInvalidExpiration
		}
		inv.ExpirationTime = req.ExpirationTime.UTC()
	}
	inv.MonitoringExpiration = inv.ExpirationTime.Add(store.MonitoringExpiry)

	if req.BuyerEmail != "" {
		if _, err := mail.ParseAddress(req.BuyerEmail); err != nil {
			return nil, nil, ErrInvalidEmail
		}
		inv.RefundEmail = req.BuyerEmail
	}

	inv.Metadata = model.InvoiceMetadata{
		OrderID:      req.OrderID,
		ItemDesc:     req.ItemDesc,
		PosData:      req.PosData,
		BuyerName:    req.BuyerName,
		BuyerEmail:   req.BuyerEmail,
		BuyerCountry: req.BuyerCountry,
	}

	if speed, ok := model.ParseSpeedPolicy(req.TransactionSpeed); ok {
		inv.SpeedPolicy = speed
	}
	if req.RedirectURL != "" {
		inv.RedirectURL = req.RedirectURL
	}
	if req.NotificationURL != "" {
		inv.NotificationURL = req.NotificationURL
	}

	return inv, newMethodFilter(req.SupportedTransactionCurrencies), nil
}

// buildFromModern normalizes a modern structured request. Unlike the legacy
// path, an out-of-range expiration falls back to the store default instead of
// failing.
func buildFromModern(store *model.Store, req *dto.CreateInvoiceRequest, now time.Time) (*model.InvoiceEntity, *methodFilter, error) {
	inv := newEntity(store, now)

	setPrice(inv, req.Amount, req.Currency, store)

	var filter *methodFilter
	if req.Checkout != nil {
		if req.Checkout.ExpirationMinutes != nil && *req.Checkout.ExpirationMinutes >= 1 {
			inv.ExpirationTime = now.Add(time.Duration(*req.Checkout.ExpirationMinutes) * time.Minute)
		}
		monitoring := store.MonitoringExpiry
		if req.Checkout.MonitoringMinutes != nil && *req.Checkout.MonitoringMinutes >= 0 {
			monitoring = time.Duration(*req.Checkout.MonitoringMinutes) * time.Minute
		}
		inv.MonitoringExpiration = inv.ExpirationTime.Add(monitoring)

		if speed, ok := model.ParseSpeedPolicy(req.Checkout.SpeedPolicy); ok {
			inv.SpeedPolicy = speed
		}
		if req.Checkout.RedirectURL != "" {
			inv.RedirectURL = req.Checkout.RedirectURL
		}
		if req.Checkout.NotificationURL != "" {
			inv.NotificationURL = req.Checkout.NotificationURL
		}
		filter = newMethodFilter(req.Checkout.PaymentMethods)
	} else {
		inv.MonitoringExpiration = inv.ExpirationTime.Add(store.MonitoringExpiry)
	}

	if req.Metadata != nil {
		if req.Metadata.BuyerEmail != "" {
			if _, err := mail.ParseAddress(req.Metadata.BuyerEmail); err != nil {
				return nil, nil, ErrInvalidEmail
			}
			inv.RefundEmail = req.Metadata.BuyerEmail
		}
		inv.Metadata = model.InvoiceMetadata{
			OrderID:      req.Metadata.OrderID,
			ItemDesc:     req.Metadata.ItemDesc,
			PosData:      req.Metadata.PosData,
			BuyerName:    req.Metadata.BuyerName,
			BuyerEmail:   req.Metadata.BuyerEmail,
			BuyerCountry: req.Metadata.BuyerCountry,
		}
	}

	return inv, filter, nil
}

func newEntity(store *model.Store, now time.Time) *model.InvoiceEntity {
	return &model.InvoiceEntity{
		ID:              uuid.NewString(),
		StoreID:         store.ID,
		Status:          model.InvoiceStatusNew,
		SpeedPolicy:     store.SpeedPolicy,
		CreatedAt:       now,
		ExpirationTime:  now.Add(store.InvoiceExpiry),
		RedirectURL:     store.DefaultRedirectURL,
		NotificationURL: store.DefaultNotificationURL,
		PaymentMethods:  make(map[model.PaymentMethodID]*model.PaymentMethod),
	}
}

// setPrice applies the price rules: nil price makes a top-up invoice at zero,
// otherwise the price is clamped at zero and rounded to the currency's
// display precision.
func setPrice(inv *model.InvoiceEntity, price *decimal.Decimal, currency string, store *model.Store) {
	inv.Currency = model.NormalizeCurrency(currency)
	if inv.Currency == "" {
		inv.Currency = model.NormalizeCurrency(store.DefaultCurrency)
	}
	if price == nil {
		inv.Type = model.InvoiceTypeTopUp
		inv.Price = decimal.Zero
		return
	}
	inv.Type = model.InvoiceTypeStandard
	p := *price
	if p.IsNegative() {
		p = decimal.Zero
	}
	inv.Price = model.RoundToCurrency(p, inv.Currency)
}
