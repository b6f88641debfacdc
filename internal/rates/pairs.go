package rates

import (
	"github.com/luminapay/invoice-engine/internal/model"
)

// RequiredPairs computes the minimal pair set an invoice needs: one
// (crypto, invoice currency) pair per candidate method plus one
// (criterion crypto, bound currency) pair per configured criterion. Pairs are
// deduplicated; insertion order is preserved so fetches start in a
// deterministic order.
func RequiredPairs(invoiceCurrency string, methods []model.PaymentMethodID, criteria []model.PaymentCriterion) []model.CurrencyPair {
	seen := make(map[model.CurrencyPair]struct{})
	var pairs []model.CurrencyPair

	add := func(pair model.CurrencyPair) {
		if _, dup := seen[pair]; dup {
			return
		}
		seen[pair] = struct{}{}
		pairs = append(pairs, pair)
	}

	for _, id := range methods {
		add(model.NewCurrencyPair(id.CryptoCode, invoiceCurrency))
	}
	for _, crit := range criteria {
		if crit.Currency != "" {
			add(model.NewCurrencyPair(crit.MethodID.CryptoCode, crit.Currency))
		}
	}
	return pairs
}
