package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/luminapay/invoice-engine/internal/model"
)

type BidAsk struct {
	Bid decimal.Decimal `json:"bid"`
	Ask decimal.Decimal `json:"ask"`
}

// Rate is the quote used to price invoices. Buyers pay at the bid.
func (ba BidAsk) Rate() decimal.Decimal {
	return ba.Bid
}

// Provider fetches a quote for one pair from one exchange.
type Provider interface {
	Name() string
	GetQuote(ctx context.Context, pair model.CurrencyPair) (BidAsk, error)
}

// Source resolves a quote given the provider name a rate rule selected.
type Source interface {
	GetQuote(ctx context.Context, provider string, pair model.CurrencyPair) (BidAsk, error)
}

type httpProvider struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewHTTPProvider talks to an exchange gateway exposing
// GET {base}/rates?provider={name}&pair=BTC_USD returning {"bid":..,"ask":..}.
func NewHTTPProvider(name, baseURL string) Provider {
	return &httpProvider{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *httpProvider) Name() string { return p.name }

func (p *httpProvider) GetQuote(ctx context.Context, pair model.CurrencyPair) (BidAsk, error) {
	u := fmt.Sprintf("%s/rates?provider=%s&pair=%s", p.baseURL, url.QueryEscape(p.name), pair)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return BidAsk{}, fmt.Errorf("build rate request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return BidAsk{}, fmt.Errorf("%s: fetch %s: %w", p.name, pair, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return BidAsk{}, fmt.Errorf("%s: fetch %s: unexpected status %d", p.name, pair, resp.StatusCode)
	}
	var quote BidAsk
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return BidAsk{}, fmt.Errorf("%s: decode %s quote: %w", p.name, pair, err)
	}
	if !quote.Bid.IsPositive() || !quote.Ask.IsPositive() {
		return BidAsk{}, fmt.Errorf("%s: non-positive quote for %s", p.name, pair)
	}
	return quote, nil
}

// ProviderSet routes quote requests to registered providers by name and
// caches quotes in redis with a short TTL. Cache failures are soft: a redis
// outage falls through to the provider.
type ProviderSet struct {
	providers map[string]Provider
	cache     *redis.Client
	cacheTTL  time.Duration
}

func NewProviderSet(cache *redis.Client, cacheTTL time.Duration, providers ...Provider) *ProviderSet {
	set := &ProviderSet{
		providers: make(map[string]Provider, len(providers)),
		cache:     cache,
		cacheTTL:  cacheTTL,
	}
	for _, p := range providers {
		set.providers[p.Name()] = p
	}
	return set
}

func (s *ProviderSet) GetQuote(ctx context.Context, provider string, pair model.CurrencyPair) (BidAsk, error) {
	p, ok := s.providers[provider]
	if !ok {
		return BidAsk{}, fmt.Errorf("unknown rate provider %q", provider)
	}

	key := "rate:" + provider + ":" + pair.String()
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key).Result(); err == nil {
			var quote BidAsk
			if err := json.Unmarshal([]byte(cached), &quote); err == nil {
				return quote, nil
			}
		}
	}

	quote, err := p.GetQuote(ctx, pair)
	if err != nil {
		return BidAsk{}, err
	}

	if s.cache != nil {
		payload, _ := json.Marshal(quote)
		if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
			log.Warn().Err(err).Str("pair", pair.String()).Msg("rate cache write failed")
		}
	}
	return quote, nil
}
