package rates

import (
	"fmt"
	"strings"

	"github.com/luminapay/invoice-engine/internal/model"
)

// Rules maps currency pairs to the provider a store wants quotes from.
// The text form is one assignment per line:
//
//	BTC_USD = kraken
//	BTC_EUR = bitstamp
//	* = coingecko
//
// The wildcard entry covers every pair without an explicit line.
type Rules struct {
	entries  map[model.CurrencyPair]string
	wildcard string
}

func ParseRules(text string) (*Rules, error) {
	r := &Rules{entries: make(map[model.CurrencyPair]string)}
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lhs, rhs, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("rate rule line %d: missing '=' in %q", i+1, line)
		}
		lhs, rhs = strings.TrimSpace(lhs), strings.TrimSpace(rhs)
		if rhs == "" {
			return nil, fmt.Errorf("rate rule line %d: empty provider", i+1)
		}
		if lhs == "*" {
			r.wildcard = rhs
			continue
		}
		pair, err := model.ParseCurrencyPair(lhs)
		if err != nil {
			return nil, fmt.Errorf("rate rule line %d: %w", i+1, err)
		}
		r.entries[pair] = rhs
	}
	return r, nil
}

// RuleFor returns the provider for a pair together with the rule text that
// selected it, for diagnostics.
func (r *Rules) RuleFor(pair model.CurrencyPair) (provider, rule string, ok bool) {
	if p, found := r.entries[pair]; found {
		return p, pair.String() + " = " + p, true
	}
	if r.wildcard != "" {
		return r.wildcard, "* = " + r.wildcard, true
	}
	return "", "", false
}
