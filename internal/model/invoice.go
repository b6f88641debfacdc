package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceType string

const (
	InvoiceTypeStandard InvoiceType = "Standard"
	InvoiceTypeTopUp    InvoiceType = "TopUp"
)

type InvoiceStatus string

// InvoiceStatusNew is the only status this service assigns. Later transitions
// belong to the payment monitor, not the creation pipeline.
const InvoiceStatusNew InvoiceStatus = "New"

type SpeedPolicy string

const (
	SpeedLow       SpeedPolicy = "low"
	SpeedLowMedium SpeedPolicy = "low-medium"
	SpeedMedium    SpeedPolicy = "medium"
	SpeedHigh      SpeedPolicy = "high"
)

// ParseSpeedPolicy recognizes the fixed transaction-speed vocabulary. Anything
// else reports ok=false so callers can fall back to the store default.
func ParseSpeedPolicy(s string) (SpeedPolicy, bool) {
	switch SpeedPolicy(s) {
	case SpeedLow, SpeedLowMedium, SpeedMedium, SpeedHigh:
		return SpeedPolicy(s), true
	}
	return "", false
}

type InvoiceMetadata struct {
	OrderID      string `json:"order_id,omitempty"`
	ItemDesc     string `json:"item_desc,omitempty"`
	PosData      string `json:"pos_data,omitempty"`
	BuyerName    string `json:"buyer_name,omitempty"`
	BuyerEmail   string `json:"buyer_email,omitempty"`
	BuyerCountry string `json:"buyer_country,omitempty"`
}

type InvoiceEntity struct {
	ID                   string          `json:"id"`
	StoreID              string          `json:"store_id"`
	Currency             string          `json:"currency"`
	Price                decimal.Decimal `json:"price"`
	Type                 InvoiceType     `json:"type"`
	Status               InvoiceStatus   `json:"status"`
	SpeedPolicy          SpeedPolicy     `json:"speed_policy"`
	CreatedAt            time.Time       `json:"created_at"`
	ExpirationTime       time.Time       `json:"expiration_time"`
	MonitoringExpiration time.Time       `json:"monitoring_expiration"`
	Metadata             InvoiceMetadata `json:"metadata"`
	RedirectURL          string          `json:"redirect_url,omitempty"`
	NotificationURL      string          `json:"notification_url,omitempty"`
	RefundEmail          string          `json:"refund_email,omitempty"`

	SupportedPaymentMethods []PaymentMethodID                  `json:"supported_payment_methods"`
	PaymentMethods          map[PaymentMethodID]*PaymentMethod `json:"payment_methods"`
	InternalTags            []string                           `json:"internal_tags,omitempty"`

	// Deprecated top-level mirrors of the chosen on-chain method, kept for
	// consumers of the legacy API.
	DepositAddress string          `json:"deposit_address,omitempty"`
	Rate           decimal.Decimal `json:"rate,omitempty"`
	TxFee          decimal.Decimal `json:"tx_fee,omitempty"`
}

// SetPaymentMethod records an accepted method, keeping PaymentMethods keys a
// subset of SupportedPaymentMethods.
func (inv *InvoiceEntity) SetPaymentMethod(pm *PaymentMethod) {
	if inv.PaymentMethods == nil {
		inv.PaymentMethods = make(map[PaymentMethodID]*PaymentMethod)
	}
	if _, known := inv.PaymentMethods[pm.ID]; !known {
		inv.SupportedPaymentMethods = append(inv.SupportedPaymentMethods, pm.ID)
	}
	inv.PaymentMethods[pm.ID] = pm
}

// PaymentRequired reports whether the invoice cannot exist without at least
// one usable payment method. A Standard invoice priced at zero needs none.
func (inv *InvoiceEntity) PaymentRequired() bool {
	if inv.Type == InvoiceTypeTopUp {
		return true
	}
	return inv.Price.IsPositive()
}

type LogSeverity string

const (
	SeverityInfo    LogSeverity = "Info"
	SeverityWarning LogSeverity = "Warning"
	SeverityError   LogSeverity = "Error"
)

type InvoiceLogEntry struct {
	Severity  LogSeverity `json:"severity"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}
