package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type PaymentType string

const (
	PaymentTypeOnChain   PaymentType = "OnChain"
	PaymentTypeLightning PaymentType = "Lightning"
)

// PaymentMethodID identifies a payment method by crypto code and payment
// type, e.g. BTC-OnChain. It is the key for handler lookup and must be unique
// within an invoice.
type PaymentMethodID struct {
	CryptoCode string      `json:"crypto_code"`
	Type       PaymentType `json:"type"`
}

func (id PaymentMethodID) String() string {
	return id.CryptoCode + "-" + string(id.Type)
}

func ParsePaymentMethodID(s string) (PaymentMethodID, error) {
	code, typ, found := strings.Cut(s, "-")
	if !found || code == "" || typ == "" {
		return PaymentMethodID{}, fmt.Errorf("invalid payment method id %q", s)
	}
	switch PaymentType(typ) {
	case PaymentTypeOnChain, PaymentTypeLightning:
		return PaymentMethodID{CryptoCode: strings.ToUpper(code), Type: PaymentType(typ)}, nil
	}
	return PaymentMethodID{}, fmt.Errorf("unknown payment type %q", typ)
}

// CurrencyPair is the unit of rate lookup: base crypto code against a quote
// currency. Value equality makes it usable as a dedup and map key.
type CurrencyPair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

func NewCurrencyPair(base, quote string) CurrencyPair {
	return CurrencyPair{Base: NormalizeCurrency(base), Quote: NormalizeCurrency(quote)}
}

func (p CurrencyPair) String() string {
	return p.Base + "_" + p.Quote
}

func ParseCurrencyPair(s string) (CurrencyPair, error) {
	base, quote, found := strings.Cut(s, "_")
	if !found || base == "" || quote == "" {
		return CurrencyPair{}, fmt.Errorf("invalid currency pair %q", s)
	}
	return NewCurrencyPair(base, quote), nil
}

type PaymentDetails struct {
	Destination         string          `json:"destination"`
	PaymentHash         string          `json:"payment_hash,omitempty"`
	Bolt11              string          `json:"bolt11,omitempty"`
	NetworkFee          decimal.Decimal `json:"network_fee"`
	FallbackDestination string          `json:"fallback_destination,omitempty"`
}

// PaymentMethod is one concrete way to pay a given invoice.
type PaymentMethod struct {
	ID        PaymentMethodID `json:"id"`
	InvoiceID string          `json:"invoice_id"`
	Network   string          `json:"network"`
	Rate      decimal.Decimal `json:"rate"`
	Details   PaymentDetails  `json:"details"`
}

// DueAmount is the amount payable in the method's native crypto unit at the
// resolved rate, network fee included. Zero rate yields zero due.
func (pm *PaymentMethod) DueAmount(price decimal.Decimal) decimal.Decimal {
	if pm.Rate.IsZero() {
		return decimal.Zero
	}
	due := price.DivRound(pm.Rate, 8)
	return due.Add(pm.Details.NetworkFee)
}

// PaymentCriterion bounds the invoice amounts a method may be offered for.
// AboveNotBelow true means the due amount must be above Value.
type PaymentCriterion struct {
	MethodID      PaymentMethodID `json:"method_id"`
	Value         decimal.Decimal `json:"value"`
	Currency      string          `json:"currency"`
	AboveNotBelow bool            `json:"above_not_below"`
}
