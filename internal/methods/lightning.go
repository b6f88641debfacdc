package methods

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/luminapay/invoice-engine/internal/model"
)

// LightningInvoice is what a node returns for a created BOLT11 offer.
type LightningInvoice struct {
	Bolt11      string `json:"bolt11"`
	PaymentHash string `json:"payment_hash"`
	Destination string `json:"destination"`
}

// LightningClient creates invoices on a store's lightning node. Amount zero
// requests an any-amount invoice.
type LightningClient interface {
	CreateInvoice(ctx context.Context, amountMsat int64, description string, expiry time.Duration) (LightningInvoice, error)
}

type LightningHandler struct {
	id     model.PaymentMethodID
	client LightningClient
}

func NewLightningHandler(cryptoCode string, client LightningClient) *LightningHandler {
	return &LightningHandler{
		id:     model.PaymentMethodID{CryptoCode: cryptoCode, Type: model.PaymentTypeLightning},
		client: client,
	}
}

func (h *LightningHandler) ID() model.PaymentMethodID { return h.id }

var msatPerCoin = decimal.NewFromInt(100_000_000_000)

func (h *LightningHandler) CreateDetails(ctx context.Context, rc *ResolveContext) (model.PaymentDetails, error) {
	var amountMsat int64
	if rc.Invoice.Type == model.InvoiceTypeStandard && rc.Invoice.Price.IsPositive() {
		due := rc.Invoice.Price.DivRound(rc.Rate.Rate(), 11)
		amountMsat = due.Mul(msatPerCoin).IntPart()
		if amountMsat <= 0 {
			return model.PaymentDetails{}, fmt.Errorf("%w: amount below 1 msat", ErrMethodUnavailable)
		}
	}

	description := rc.Invoice.Metadata.ItemDesc
	if description == "" {
		description = "Invoice " + rc.Invoice.ID
	}
	expiry := time.Until(rc.Invoice.ExpirationTime)
	if expiry <= 0 {
		return model.PaymentDetails{}, fmt.Errorf("%w: invoice already expired", ErrMethodUnavailable)
	}

	ln, err := h.client.CreateInvoice(ctx, amountMsat, description, expiry)
	if err != nil {
		return model.PaymentDetails{}, fmt.Errorf("create lightning invoice: %w", err)
	}

	details := model.PaymentDetails{
		Destination: ln.Destination,
		PaymentHash: ln.PaymentHash,
		Bolt11:      ln.Bolt11,
	}

	// Wire the on-chain fallback when the same invoice already carries an
	// on-chain method for this crypto.
	onchain := model.PaymentMethodID{CryptoCode: h.id.CryptoCode, Type: model.PaymentTypeOnChain}
	if pm, ok := rc.Selected[onchain]; ok {
		details.FallbackDestination = pm.Details.Destination
	}
	return details, nil
}

// RESTLightningClient talks to a node's REST gateway
// (POST {base}/v1/invoices).
type RESTLightningClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewRESTLightningClient(baseURL, apiKey string) *RESTLightningClient {
	return &RESTLightningClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *RESTLightningClient) CreateInvoice(ctx context.Context, amountMsat int64, description string, expiry time.Duration) (LightningInvoice, error) {
	if c.baseURL == "" {
		return LightningInvoice{}, errors.New("lightning node not configured")
	}

	payload, err := json.Marshal(map[string]any{
		"amount_msat": amountMsat,
		"description": description,
		"expiry_secs": int64(expiry.Seconds()),
	})
	if err != nil {
		return LightningInvoice{}, fmt.Errorf("encode invoice request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/invoices", bytes.NewReader(payload))
	if err != nil {
		return LightningInvoice{}, fmt.Errorf("build invoice request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return LightningInvoice{}, fmt.Errorf("call lightning node: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return LightningInvoice{}, fmt.Errorf("lightning node returned status %d", resp.StatusCode)
	}

	var ln LightningInvoice
	if err := json.NewDecoder(resp.Body).Decode(&ln); err != nil {
		return LightningInvoice{}, fmt.Errorf("decode lightning invoice: %w", err)
	}
	if ln.Bolt11 == "" {
		return LightningInvoice{}, errors.New("lightning node returned empty bolt11")
	}
	return ln, nil
}
