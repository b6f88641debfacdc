package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminapay/invoice-engine/internal/dto"
	"github.com/luminapay/invoice-engine/internal/events"
	"github.com/luminapay/invoice-engine/internal/methods"
	"github.com/luminapay/invoice-engine/internal/model"
	"github.com/luminapay/invoice-engine/internal/rates"
)

var (
	btcOnChain   = model.PaymentMethodID{CryptoCode: "BTC", Type: model.PaymentTypeOnChain}
	btcLightning = model.PaymentMethodID{CryptoCode: "BTC", Type: model.PaymentTypeLightning}
	ltcOnChain   = model.PaymentMethodID{CryptoCode: "LTC", Type: model.PaymentTypeOnChain}
)

type fakeStores struct {
	store    *model.Store
	methods  []model.StorePaymentMethod
	criteria []model.PaymentCriterion
	tags     []string
}

func (f *fakeStores) GetStore(ctx context.Context, storeID string) (*model.Store, error) {
	return f.store, nil
}

func (f *fakeStores) GetEnabledPaymentMethods(ctx context.Context, storeID string) ([]model.StorePaymentMethod, error) {
	return f.methods, nil
}

func (f *fakeStores) GetCriteria(ctx context.Context, storeID string) ([]model.PaymentCriterion, error) {
	return f.criteria, nil
}

func (f *fakeStores) GetAppTags(ctx context.Context, storeID string) ([]string, error) {
	return f.tags, nil
}

type fakeInvoiceStore struct {
	mu        sync.Mutex
	created   *model.InvoiceEntity
	terms     []string
	logs      []model.InvoiceLogEntry
	createErr error
}

func (f *fakeInvoiceStore) CreateInvoice(ctx context.Context, inv *model.InvoiceEntity, searchTerms []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = inv
	f.terms = searchTerms
	return nil
}

func (f *fakeInvoiceStore) AppendLogs(ctx context.Context, invoiceID string, entries []model.InvoiceLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, entries...)
	return nil
}

func (f *fakeInvoiceStore) GetInvoice(ctx context.Context, invoiceID string) (*model.InvoiceEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, nil
}

func (f *fakeInvoiceStore) GetLogs(ctx context.Context, invoiceID string) ([]model.InvoiceLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.InvoiceLogEntry(nil), f.logs...), nil
}

func (f *fakeInvoiceStore) ListInvoices(ctx context.Context, storeID string, limit, offset int) ([]*model.InvoiceEntity, int, error) {
	return nil, 0, nil
}

func (f *fakeInvoiceStore) persisted() *model.InvoiceEntity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func (f *fakeInvoiceStore) logCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logs)
}

func (f *fakeInvoiceStore) logMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := make([]string, len(f.logs))
	for i, e := range f.logs {
		msgs[i] = e.Message
	}
	return msgs
}

// quoteSource serves configured quotes and counts fetches per pair.
type quoteSource struct {
	mu     sync.Mutex
	quotes map[model.CurrencyPair]rates.BidAsk
	calls  map[model.CurrencyPair]int
}

func newQuoteSource(quotes map[model.CurrencyPair]rates.BidAsk) *quoteSource {
	return &quoteSource{quotes: quotes, calls: make(map[model.CurrencyPair]int)}
}

func (s *quoteSource) GetQuote(ctx context.Context, provider string, pair model.CurrencyPair) (rates.BidAsk, error) {
	s.mu.Lock()
	s.calls[pair]++
	quote, ok := s.quotes[pair]
	s.mu.Unlock()
	if !ok {
		return rates.BidAsk{}, fmt.Errorf("%s: no market for %s", provider, pair)
	}
	return quote, nil
}

func (s *quoteSource) callCount(pair model.CurrencyPair) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[pair]
}

// blockingSource holds every fetch until released, so an in-flight fetch can
// only be escaped through the caller's context.
type blockingSource struct {
	release chan struct{}
}

func (s *blockingSource) GetQuote(ctx context.Context, provider string, pair model.CurrencyPair) (rates.BidAsk, error) {
	<-s.release
	return rates.BidAsk{}, errors.New("exchange gone")
}

type stubHandler struct {
	id      model.PaymentMethodID
	details model.PaymentDetails
	err     error
	panics  bool
}

func (h *stubHandler) ID() model.PaymentMethodID { return h.id }

func (h *stubHandler) CreateDetails(ctx context.Context, rc *methods.ResolveContext) (model.PaymentDetails, error) {
	if h.panics {
		panic("handler exploded")
	}
	if h.err != nil {
		return model.PaymentDetails{}, h.err
	}
	return h.details, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.InvoiceCreatedEvent
}

func (p *recordingPublisher) PublishInvoiceCreated(ctx context.Context, event events.InvoiceCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func testStore() *model.Store {
	return &model.Store{
		ID:                "store_test",
		Name:              "Test Store",
		DefaultCurrency:   "USD",
		DefaultCryptoCode: "BTC",
		SpeedPolicy:       model.SpeedMedium,
		InvoiceExpiry:     15 * time.Minute,
		MonitoringExpiry:  time.Hour,
		RateRules:         "* = kraken",
	}
}

func storeMethods(ids ...model.PaymentMethodID) []model.StorePaymentMethod {
	out := make([]model.StorePaymentMethod, len(ids))
	for i, id := range ids {
		out[i] = model.StorePaymentMethod{StoreID: "store_test", ID: id, Enabled: true, Network: "mainnet"}
	}
	return out
}

func btcQuotes() map[model.CurrencyPair]rates.BidAsk {
	return map[model.CurrencyPair]rates.BidAsk{
		model.NewCurrencyPair("BTC", "USD"): {Bid: decimal.NewFromInt(50000), Ask: decimal.NewFromInt(50100)},
	}
}

type serviceFixture struct {
	svc      *InvoiceService
	stores   *fakeStores
	invoices *fakeInvoiceStore
	source   *quoteSource
	pub      *recordingPublisher
}

func newFixture(stores *fakeStores, source *quoteSource, handlers ...methods.Handler) *serviceFixture {
	invoices := &fakeInvoiceStore{}
	pub := &recordingPublisher{}
	svc := NewInvoiceService(stores, invoices, rates.NewResolver(source), methods.NewRegistry(handlers...), pub)
	return &serviceFixture{svc: svc, stores: stores, invoices: invoices, source: source, pub: pub}
}

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCreateInvoice_HappyPath(t *testing.T) {
	stores := &fakeStores{
		store:   testStore(),
		methods: storeMethods(btcOnChain, btcLightning),
		tags:    []string{"APP:pos_demo"},
	}
	fix := newFixture(stores, newQuoteSource(btcQuotes()),
		&stubHandler{id: btcOnChain, details: model.PaymentDetails{Destination: "bc1qaaa", NetworkFee: decimal.RequireFromString("0.00002")}},
		&stubHandler{id: btcLightning, details: model.PaymentDetails{Destination: "03node", Bolt11: "lnbc1test"}},
	)

	inv, err := fix.svc.CreateInvoice(context.Background(), "store_test", &dto.CreateInvoiceRequest{
		Amount:   price("50"),
		Currency: "USD",
	})
	require.NoError(t, err)

	assert.Equal(t, model.InvoiceTypeStandard, inv.Type)
	assert.Equal(t, model.InvoiceStatusNew, inv.Status)
	assert.Len(t, inv.PaymentMethods, 2)
	assert.True(t, inv.PaymentMethods[btcOnChain].Rate.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, []string{"APP:pos_demo"}, inv.InternalTags)

	// Legacy shim mirrors the on-chain method.
	assert.Equal(t, "bc1qaaa", inv.DepositAddress)
	assert.True(t, inv.Rate.Equal(decimal.NewFromInt(50000)))

	require.NotNil(t, fix.invoices.persisted())
	assert.Contains(t, fix.invoices.terms, inv.ID)
	assert.Contains(t, fix.invoices.terms, "bc1qaaa")
	assert.Equal(t, 1, fix.pub.count())

	// The diagnostics flush is detached; give it a moment.
	assert.Eventually(t, func() bool { return fix.invoices.logCount() > 0 },
		time.Second, 10*time.Millisecond, "log trail should be persisted after creation")
}

func TestCreateInvoice_RateFetchDedup(t *testing.T) {
	stores := &fakeStores{
		store:   testStore(),
		methods: storeMethods(btcOnChain, btcLightning),
		criteria: []model.PaymentCriterion{
			{MethodID: btcLightning, Value: decimal.NewFromInt(100), Currency: "USD", AboveNotBelow: false},
		},
	}
	source := newQuoteSource(btcQuotes())
	fix := newFixture(stores, source,
		&stubHandler{id: btcOnChain, details: model.PaymentDetails{Destination: "bc1qaaa"}},
		&stubHandler{id: btcLightning, details: model.PaymentDetails{Destination: "03node"}},
	)

	_, err := fix.svc.CreateInvoice(context.Background(), "store_test", &dto.CreateInvoiceRequest{
		Amount:   price("50"),
		Currency: "USD",
	})
	require.NoError(t, err)

	// Two methods plus a criterion all need BTC_USD; exactly one fetch.
	assert.Equal(t, 1, source.callCount(model.NewCurrencyPair("BTC", "USD")))
}

func TestCreateInvoice_MethodIsolation(t *testing.T) {
	t.Run("handler error does not sink sibling methods", func(t *testing.T) {
		stores := &fakeStores{
			store:   testStore(),
			methods: storeMethods(btcLightning, ltcOnChain),
		}
		quotes := btcQuotes()
		quotes[model.NewCurrencyPair("LTC", "USD")] = rates.BidAsk{Bid: decimal.NewFromInt(100), Ask: decimal.NewFromInt(101)}
		fix := newFixture(stores, newQuoteSource(quotes),
			&stubHandler{id: btcLightning, details: model.PaymentDetails{Destination: "03node"}},
			&stubHandler{id: ltcOnChain, err: errors.New("wallet rpc down")},
		)

		inv, err := fix.svc.CreateInvoice(context.Background(), "store_test", &dto.CreateInvoiceRequest{
			Amount:   price("50"),
			Currency: "USD",
		})
		require.NoError(t, err)
		assert.Len(t, inv.PaymentMethods, 1)
		assert.Contains(t, inv.PaymentMethods, btcLightning)
	})

	t.Run("handler panic does not sink sibling methods", func(t *testing.T) {
		stores := &fakeStores{
			store:   testStore(),
			methods: storeMethods(btcOnChain, ltcOnChain),
		}
		quotes := btcQuotes()
		quotes[model.NewCurrencyPair("LTC", "USD")] = rates.BidAsk{Bid: decimal.NewFromInt(100), Ask: decimal.NewFromInt(101)}
		fix := newFixture(stores, newQuoteSource(quotes),
			&stubHandler{id: btcOnChain, details: model.PaymentDetails{Destination: "bc1qaaa"}},
			&stubHandler{id: ltcOnChain, panics: true},
		)

		inv, err := fix.svc.CreateInvoice(context.Background(), "store_test", &dto.CreateInvoiceRequest{
			Amount:   price("50"),
			Currency: "USD",
		})
		require.NoError(t, err)
		assert.Len(t, inv.PaymentMethods, 1)
		assert.Contains(t, inv.PaymentMethods, btcOnChain)
	})
}

func TestCreateInvoice_ZeroUsableMethods(t *testing.T) {
	stores := &fakeStores{
		store:   testStore(),
		methods: storeMethods(btcOnChain, btcLightning),
	}
	// No quotes at all: every pair resolves unavailable.
	fix := newFixture(stores, newQuoteSource(nil),
		&stubHandler{id: btcOnChain},
		&stubHandler{id: btcLightning},
	)

	_, err := fix.svc.CreateInvoice(context.Background(), "store_test", &dto.CreateInvoiceRequest{
		Amount:   price("50"),
		Currency: "USD",
	})
	require.Error(t, err)

	var invErr *InvoiceError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, 400, invErr.Status)
	assert.Contains(t, invErr.Message, btcOnChain.String(), "diagnostic lists each attempted method")
	assert.Contains(t, invErr.Message, btcLightning.String())

	assert.Nil(t, fix.invoices.persisted(), "nothing persisted on fatal failure")
	assert.Zero(t, fix.pub.count())
}

func TestCreateInvoice_TopUp(t *testing.T) {
	stores := &fakeStores{
		store:   testStore(),
		methods: storeMethods(btcOnChain),
		criteria: []model.PaymentCriterion{
			// Would reject any due amount on a standard invoice.
			{MethodID: btcOnChain, Value: decimal.NewFromInt(1000000), Currency: "BTC", AboveNotBelow: true},
		},
	}
	fix := newFixture(stores, newQuoteSource(btcQuotes()),
		&stubHandler{id: btcOnChain, details: model.PaymentDetails{Destination: "bc1qaaa"}},
	)

	inv, err := fix.svc.CreateInvoice(context.Background(), "store_test", &dto.CreateInvoiceRequest{
		Currency: "USD",
		Metadata: &dto.InvoiceMetadata{PosData: "table=4"},
	})
	require.NoError(t, err)

	assert.Equal(t, model.InvoiceTypeTopUp, inv.Type)
	assert.True(t, inv.Price.IsZero())
	assert.Len(t, inv.PaymentMethods, 1, "criteria are ignored for top-up invoices")
}

func TestCreateInvoice_NoPaymentRequired(t *testing.T) {
	stores := &fakeStores{
		store:   testStore(),
		methods: storeMethods(btcOnChain),
	}
	// Source has no quotes; irrelevant since no method is needed.
	fix := newFixture(stores, newQuoteSource(nil), &stubHandler{id: btcOnChain})

	inv, err := fix.svc.CreateInvoice(context.Background(), "store_test", &dto.CreateInvoiceRequest{
		Amount:   price("0"),
		Currency: "USD",
	})
	require.NoError(t, err)
	assert.Empty(t, inv.PaymentMethods)
	require.NotNil(t, fix.invoices.persisted())
}

func TestCreateInvoice_CanceledRequest(t *testing.T) {
	t.Run("nothing is persisted when the caller cancels mid-fetch", func(t *testing.T) {
		stores := &fakeStores{
			store:   testStore(),
			methods: storeMethods(btcOnChain),
		}
		invoices := &fakeInvoiceStore{}
		pub := &recordingPublisher{}
		source := &blockingSource{release: make(chan struct{})}
		t.Cleanup(func() { close(source.release) })
		svc := NewInvoiceService(stores, invoices, rates.NewResolver(source),
			methods.NewRegistry(&stubHandler{id: btcOnChain}), pub)

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		_, err := svc.CreateInvoice(ctx, "store_test", &dto.CreateInvoiceRequest{
			Amount:   price("50"),
			Currency: "USD",
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, invoices.persisted(), "a canceled request must not leave a partial invoice")
		assert.Zero(t, pub.count())
	})

	t.Run("log flush outlives the caller's context", func(t *testing.T) {
		stores := &fakeStores{
			store:   testStore(),
			methods: storeMethods(btcOnChain),
		}
		fix := newFixture(stores, newQuoteSource(btcQuotes()),
			&stubHandler{id: btcOnChain, details: model.PaymentDetails{Destination: "bc1qaaa"}},
		)

		ctx, cancel := context.WithCancel(context.Background())
		_, err := fix.svc.CreateInvoice(ctx, "store_test", &dto.CreateInvoiceRequest{
			Amount:   price("50"),
			Currency: "USD",
		})
		require.NoError(t, err)
		cancel()

		assert.Eventually(t, func() bool { return fix.invoices.logCount() > 0 },
			time.Second, 10*time.Millisecond, "the trail must be written even after the caller is gone")
	})
}

func TestCreateInvoice_Criteria(t *testing.T) {
	setup := func(crit model.PaymentCriterion, quotes map[model.CurrencyPair]rates.BidAsk) (*serviceFixture, error) {
		stores := &fakeStores{
			store:    testStore(),
			methods:  storeMethods(btcOnChain),
			criteria: []model.PaymentCriterion{crit},
		}
		fix := newFixture(stores, newQuoteSource(quotes),
			&stubHandler{id: btcOnChain, details: model.PaymentDetails{Destination: "bc1qaaa"}},
		)
		_, err := fix.svc.CreateInvoice(context.Background(), "store_test", &dto.CreateInvoiceRequest{
			Amount:   price("500"),
			Currency: "USD",
		})
		return fix, err
	}

	// 500 USD at 50000 USD/BTC puts 0.01 BTC due.
	t.Run("above bound satisfied keeps the method", func(t *testing.T) {
		_, err := setup(model.PaymentCriterion{
			MethodID: btcOnChain, Value: decimal.RequireFromString("0.005"), Currency: "BTC", AboveNotBelow: true,
		}, btcQuotes())
		assert.NoError(t, err)
	})

	t.Run("above bound violated rejects the method", func(t *testing.T) {
		_, err := setup(model.PaymentCriterion{
			MethodID: btcOnChain, Value: decimal.RequireFromString("0.02"), Currency: "BTC", AboveNotBelow: true,
		}, btcQuotes())
		require.Error(t, err)
		var invErr *InvoiceError
		require.ErrorAs(t, err, &invErr)
		assert.Contains(t, invErr.Message, "bound")
	})

	t.Run("below bound violated rejects the method", func(t *testing.T) {
		// 100 EUR bound at 50000 EUR/BTC is 0.002 BTC; due 0.01 exceeds it.
		quotes := btcQuotes()
		quotes[model.NewCurrencyPair("BTC", "EUR")] = rates.BidAsk{Bid: decimal.NewFromInt(50000), Ask: decimal.NewFromInt(50100)}
		_, err := setup(model.PaymentCriterion{
			MethodID: btcOnChain, Value: decimal.NewFromInt(100), Currency: "EUR", AboveNotBelow: false,
		}, quotes)
		require.Error(t, err)
	})

	t.Run("empty bound currency is compared in crypto units", func(t *testing.T) {
		_, err := setup(model.PaymentCriterion{
			MethodID: btcOnChain, Value: decimal.RequireFromString("0.02"), Currency: "", AboveNotBelow: true,
		}, btcQuotes())
		require.Error(t, err, "a crypto-native bound must be enforced, not warned past")
		var invErr *InvoiceError
		require.ErrorAs(t, err, &invErr)
		assert.Contains(t, invErr.Message, "bound")
	})

	t.Run("unavailable bound rate keeps the method with a warning", func(t *testing.T) {
		// No BTC_EUR quote: the bound cannot be verified.
		fix, err := setup(model.PaymentCriterion{
			MethodID: btcOnChain, Value: decimal.NewFromInt(100), Currency: "EUR", AboveNotBelow: true,
		}, btcQuotes())
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			for _, msg := range fix.invoices.logMessages() {
				if strings.Contains(msg, "cannot verify") {
					return true
				}
			}
			return false
		}, time.Second, 10*time.Millisecond)
	})
}
