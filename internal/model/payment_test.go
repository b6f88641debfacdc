package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePaymentMethodID(t *testing.T) {
	t.Run("happy: on-chain", func(t *testing.T) {
		id, err := ParsePaymentMethodID("BTC-OnChain")
		require.NoError(t, err)
		assert.Equal(t, PaymentMethodID{CryptoCode: "BTC", Type: PaymentTypeOnChain}, id)
	})

	t.Run("happy: lowercase crypto code is normalized", func(t *testing.T) {
		id, err := ParsePaymentMethodID("btc-Lightning")
		require.NoError(t, err)
		assert.Equal(t, "BTC", id.CryptoCode)
	})

	t.Run("bad: unknown payment type", func(t *testing.T) {
		_, err := ParsePaymentMethodID("BTC-Teleport")
		assert.Error(t, err)
	})

	t.Run("bad: missing separator", func(t *testing.T) {
		_, err := ParsePaymentMethodID("BTC")
		assert.Error(t, err)
	})
}

func TestCurrencyPair(t *testing.T) {
	pair := NewCurrencyPair("btc", " usd ")
	assert.Equal(t, "BTC_USD", pair.String())

	parsed, err := ParseCurrencyPair("BTC_USD")
	require.NoError(t, err)
	assert.Equal(t, pair, parsed)

	_, err = ParseCurrencyPair("BTCUSD")
	assert.Error(t, err)
}

func TestPaymentMethod_DueAmount(t *testing.T) {
	pm := &PaymentMethod{
		ID:   PaymentMethodID{CryptoCode: "BTC", Type: PaymentTypeOnChain},
		Rate: decimal.NewFromInt(50000),
		Details: PaymentDetails{
			NetworkFee: decimal.RequireFromString("0.00002"),
		},
	}

	due := pm.DueAmount(decimal.NewFromInt(50))
	assert.True(t, due.Equal(decimal.RequireFromString("0.00102")), "got %s", due)

	pm.Rate = decimal.Zero
	assert.True(t, pm.DueAmount(decimal.NewFromInt(50)).IsZero())
}

func TestInvoiceEntity_SetPaymentMethod(t *testing.T) {
	inv := &InvoiceEntity{}
	id := PaymentMethodID{CryptoCode: "BTC", Type: PaymentTypeOnChain}

	inv.SetPaymentMethod(&PaymentMethod{ID: id})
	inv.SetPaymentMethod(&PaymentMethod{ID: id})

	assert.Len(t, inv.SupportedPaymentMethods, 1, "re-setting the same id must not duplicate")
	assert.Len(t, inv.PaymentMethods, 1)
}

func TestInvoiceEntity_PaymentRequired(t *testing.T) {
	topup := &InvoiceEntity{Type: InvoiceTypeTopUp}
	assert.True(t, topup.PaymentRequired())

	standard := &InvoiceEntity{Type: InvoiceTypeStandard, Price: decimal.NewFromInt(5)}
	assert.True(t, standard.PaymentRequired())

	free := &InvoiceEntity{Type: InvoiceTypeStandard, Price: decimal.Zero}
	assert.False(t, free.PaymentRequired(), "a zero-price standard invoice needs no payment")
}
