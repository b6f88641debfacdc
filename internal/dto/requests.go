package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// LegacyCreateInvoiceRequest is the flat shape accepted by the legacy
// POST /invoices endpoint. Nil Price means a top-up invoice.
type LegacyCreateInvoiceRequest struct {
	Price                          *decimal.Decimal `json:"price"`
	Currency                       string           `json:"currency"`
	OrderID                        string           `json:"orderId"`
	ItemDesc                       string           `json:"itemDesc"`
	PosData                        string           `json:"posData"`
	TransactionSpeed               string           `json:"transactionSpeed"`
	BuyerName                      string           `json:"buyerName"`
	BuyerEmail                     string           `json:"buyerEmail"`
	BuyerCountry                   string           `json:"buyerCountry"`
	RedirectURL                    string           `json:"redirectURL"`
	NotificationURL                string           `json:"notificationURL"`
	ExpirationTime                 *time.Time       `json:"expirationTime"`
	SupportedTransactionCurrencies []string         `json:"supportedTransactionCurrencies"`
}

// CreateInvoiceRequest is the structured shape of the modern API.
type CreateInvoiceRequest struct {
	Amount   *decimal.Decimal `json:"amount"`
	Currency string           `json:"currency"`
	Metadata *InvoiceMetadata `json:"metadata"`
	Checkout *CheckoutOptions `json:"checkout"`
}

type InvoiceMetadata struct {
	OrderID      string `json:"orderId"`
	ItemDesc     string `json:"itemDesc"`
	PosData      string `json:"posData"`
	BuyerName    string `json:"buyerName"`
	BuyerEmail   string `json:"buyerEmail" binding:"omitempty,email"`
	BuyerCountry string `json:"buyerCountry"`
}

type CheckoutOptions struct {
	SpeedPolicy       string   `json:"speedPolicy"`
	PaymentMethods    []string `json:"paymentMethods"`
	ExpirationMinutes *int     `json:"expirationMinutes" binding:"omitempty,gte=1"`
	MonitoringMinutes *int     `json:"monitoringMinutes" binding:"omitempty,gte=0"`
	RedirectURL       string   `json:"redirectURL"`
	NotificationURL   string   `json:"notificationURL"`
}
