package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Store struct {
	ID                      string        `json:"id"`
	Name                    string        `json:"name"`
	DefaultCurrency         string        `json:"default_currency"`
	DefaultCryptoCode       string        `json:"default_crypto_code"`
	SpeedPolicy             SpeedPolicy   `json:"speed_policy"`
	InvoiceExpiry           time.Duration `json:"invoice_expiry"`
	MonitoringExpiry        time.Duration `json:"monitoring_expiry"`
	DefaultRedirectURL      string        `json:"default_redirect_url,omitempty"`
	DefaultNotificationURL  string        `json:"default_notification_url,omitempty"`
	RateRules               string        `json:"rate_rules"`
	CreatedAt               time.Time     `json:"created_at"`
}

// StorePaymentMethod is one payment method a store has switched on, with its
// per-method settings.
type StorePaymentMethod struct {
	StoreID    string          `json:"store_id"`
	ID         PaymentMethodID `json:"id"`
	Enabled    bool            `json:"enabled"`
	Network    string          `json:"network"`
	NetworkFee decimal.Decimal `json:"network_fee"`
}
