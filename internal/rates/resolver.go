package rates

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/luminapay/invoice-engine/internal/model"
)

// RateResult is the outcome of resolving one pair. It is always returned,
// never raised: total failure is expressed by a nil BidAsk plus the collected
// errors, so one pair cannot fail an unrelated one.
type RateResult struct {
	Pair           model.CurrencyPair
	BidAsk         *BidAsk
	Rule           string
	EvaluatedRule  string
	RuleErrors     []string
	ProviderErrors []error
}

// Available reports whether the pair resolved to a usable quote.
func (r *RateResult) Available() bool {
	return r.BidAsk != nil
}

// Pending is a single-pair rate fetch in flight. The result may be awaited by
// any number of callers.
type Pending struct {
	done   chan struct{}
	result RateResult
}

// Wait blocks until the fetch settles or the context is canceled.
func (p *Pending) Wait(ctx context.Context) (RateResult, error) {
	select {
	case <-p.done:
		return p.result, nil
	case <-ctx.Done():
		return RateResult{}, ctx.Err()
	}
}

type Resolver struct {
	source Source
}

func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// FetchRates starts one fetch per pair, all concurrently, and returns the
// in-flight handles keyed by pair. Callers await only the pairs they need.
func (r *Resolver) FetchRates(ctx context.Context, pairs []model.CurrencyPair, rules *Rules) map[model.CurrencyPair]*Pending {
	futures := make(map[model.CurrencyPair]*Pending, len(pairs))
	for _, pair := range pairs {
		if _, dup := futures[pair]; dup {
			continue
		}
		p := &Pending{done: make(chan struct{})}
		futures[pair] = p
		go func(pair model.CurrencyPair, p *Pending) {
			p.result = r.fetchOne(ctx, pair, rules)
			close(p.done)
		}(pair, p)
	}
	return futures
}

func (r *Resolver) fetchOne(ctx context.Context, pair model.CurrencyPair, rules *Rules) RateResult {
	result := RateResult{Pair: pair}

	provider, rule, ok := rules.RuleFor(pair)
	if !ok {
		result.RuleErrors = append(result.RuleErrors, fmt.Sprintf("no rate rule matches %s", pair))
		return result
	}
	result.Rule = rule

	quote, err := r.source.GetQuote(ctx, provider, pair)
	if err != nil {
		result.ProviderErrors = append(result.ProviderErrors, err)
		result.EvaluatedRule = fmt.Sprintf("%s => error(%s)", rule, provider)
		return result
	}

	result.BidAsk = &quote
	result.EvaluatedRule = fmt.Sprintf("%s => %s / %s", rule, quote.Bid, quote.Ask)
	return result
}

// SettleAll waits for every in-flight fetch and returns the settled results.
// Used by the post-creation diagnostics pass, which reports on every pair the
// invoice originally required rather than only the ones actually awaited.
func SettleAll(ctx context.Context, futures map[model.CurrencyPair]*Pending) []RateResult {
	results := make([]RateResult, 0, len(futures))
	g, gctx := errgroup.WithContext(ctx)
	settled := make(chan RateResult, len(futures))

	for _, p := range futures {
		p := p
		g.Go(func() error {
			res, err := p.Wait(gctx)
			if err != nil {
				return err
			}
			settled <- res
			return nil
		})
	}

	// Wait errors only on context cancellation; partial results still drain.
	_ = g.Wait()
	close(settled)
	for res := range settled {
		results = append(results, res)
	}
	return results
}
