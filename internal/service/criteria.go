package service

import (
	"context"
	"strings"

	"github.com/luminapay/invoice-engine/internal/model"
	"github.com/luminapay/invoice-engine/internal/rates"
)

// enforceCriterion decides whether a built payment method stays on the
// invoice. The bound is converted into the method's native crypto unit using
// the bound currency's resolved rate. An empty bound currency means the bound
// is already in crypto units. An unresolvable bound-currency rate keeps the
// method and leaves a Warning on the trail.
func (s *InvoiceService) enforceCriterion(
	ctx context.Context,
	inv *model.InvoiceEntity,
	pm *model.PaymentMethod,
	crit model.PaymentCriterion,
	futures map[model.CurrencyPair]*rates.Pending,
	diag *diagnostics,
) bool {
	due := pm.DueAmount(inv.Price)
	bound := crit.Value

	boundCurrency := crit.Currency
	if boundCurrency == "" {
		boundCurrency = pm.ID.CryptoCode
	}

	if !strings.EqualFold(boundCurrency, pm.ID.CryptoCode) {
		pair := model.NewCurrencyPair(pm.ID.CryptoCode, boundCurrency)
		fut, ok := futures[pair]
		if !ok {
			diag.Warning("cannot verify %s bound for %s: no fetch issued for %s", boundCurrency, pm.ID, pair)
			return true
		}
		res, err := fut.Wait(ctx)
		if err != nil || !res.Available() {
			diag.Warning("cannot verify %s bound for %s: rate for %s unavailable", boundCurrency, pm.ID, pair)
			return true
		}
		// The quote is bound-currency units per crypto unit.
		bound = crit.Value.DivRound(res.BidAsk.Rate(), 8)
	}

	if crit.AboveNotBelow && due.LessThan(bound) {
		diag.Error("%s removed: amount due %s %s is below the configured minimum of %s %s",
			pm.ID, due, pm.ID.CryptoCode, crit.Value, boundCurrency)
		return false
	}
	if !crit.AboveNotBelow && due.GreaterThan(bound) {
		diag.Error("%s removed: amount due %s %s is above the configured maximum of %s %s",
			pm.ID, due, pm.ID.CryptoCode, crit.Value, boundCurrency)
		return false
	}
	return true
}
