package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/luminapay/invoice-engine/internal/model"
)

type PaymentMethodResponse struct {
	PaymentMethodID     string          `json:"paymentMethodId"`
	Network             string          `json:"network"`
	Rate                decimal.Decimal `json:"rate"`
	Destination         string          `json:"destination"`
	PaymentHash         string          `json:"paymentHash,omitempty"`
	Bolt11              string          `json:"bolt11,omitempty"`
	NetworkFee          decimal.Decimal `json:"networkFee"`
	FallbackDestination string          `json:"fallbackDestination,omitempty"`
}

type InvoiceLogResponse struct {
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type InvoiceResponse struct {
	ID                   string                  `json:"id"`
	StoreID              string                  `json:"storeId"`
	Currency             string                  `json:"currency"`
	Price                decimal.Decimal         `json:"price"`
	Type                 string                  `json:"type"`
	Status               string                  `json:"status"`
	SpeedPolicy          string                  `json:"speedPolicy"`
	CreatedAt            time.Time               `json:"createdAt"`
	ExpirationTime       time.Time               `json:"expirationTime"`
	MonitoringExpiration time.Time               `json:"monitoringExpiration"`
	Metadata             model.InvoiceMetadata   `json:"metadata"`
	RedirectURL          string                  `json:"redirectURL,omitempty"`
	NotificationURL      string                  `json:"notificationURL,omitempty"`
	InternalTags         []string                `json:"internalTags,omitempty"`
	PaymentMethods       []PaymentMethodResponse `json:"paymentMethods"`
	Logs                 []InvoiceLogResponse    `json:"logs,omitempty"`

	// Deprecated legacy mirrors of the on-chain method.
	DepositAddress string          `json:"depositAddress,omitempty"`
	Rate           decimal.Decimal `json:"rate,omitempty"`
	TxFee          decimal.Decimal `json:"txFee,omitempty"`
}

func NewInvoiceResponse(inv *model.InvoiceEntity, logs []model.InvoiceLogEntry) InvoiceResponse {
	resp := InvoiceResponse{
		ID:                   inv.ID,
		StoreID:              inv.StoreID,
		Currency:             inv.Currency,
		Price:                inv.Price,
		Type:                 string(inv.Type),
		Status:               string(inv.Status),
		SpeedPolicy:          string(inv.SpeedPolicy),
		CreatedAt:            inv.CreatedAt,
		ExpirationTime:       inv.ExpirationTime,
		MonitoringExpiration: inv.MonitoringExpiration,
		Metadata:             inv.Metadata,
		RedirectURL:          inv.RedirectURL,
		NotificationURL:      inv.NotificationURL,
		InternalTags:         inv.InternalTags,
		PaymentMethods:       make([]PaymentMethodResponse, 0, len(inv.SupportedPaymentMethods)),
		DepositAddress:       inv.DepositAddress,
		Rate:                 inv.Rate,
		TxFee:                inv.TxFee,
	}
	for _, id := range inv.SupportedPaymentMethods {
		pm := inv.PaymentMethods[id]
		resp.PaymentMethods = append(resp.PaymentMethods, PaymentMethodResponse{
			PaymentMethodID:     id.String(),
			Network:             pm.Network,
			Rate:                pm.Rate,
			Destination:         pm.Details.Destination,
			PaymentHash:         pm.Details.PaymentHash,
			Bolt11:              pm.Details.Bolt11,
			NetworkFee:          pm.Details.NetworkFee,
			FallbackDestination: pm.Details.FallbackDestination,
		})
	}
	for _, entry := range logs {
		resp.Logs = append(resp.Logs, InvoiceLogResponse{
			Severity:  string(entry.Severity),
			Message:   entry.Message,
			Timestamp: entry.Timestamp,
		})
	}
	return resp
}

type InvoiceListResponse struct {
	Invoices   []InvoiceResponse `json:"invoices"`
	Pagination Pagination        `json:"pagination"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}
