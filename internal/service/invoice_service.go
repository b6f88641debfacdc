package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/luminapay/invoice-engine/internal/dto"
	"github.com/luminapay/invoice-engine/internal/events"
	"github.com/luminapay/invoice-engine/internal/methods"
	"github.com/luminapay/invoice-engine/internal/model"
	"github.com/luminapay/invoice-engine/internal/rates"
)

type StoreSource interface {
	GetStore(ctx context.Context, storeID string) (*model.Store, error)
	GetEnabledPaymentMethods(ctx context.Context, storeID string) ([]model.StorePaymentMethod, error)
	GetCriteria(ctx context.Context, storeID string) ([]model.PaymentCriterion, error)
	GetAppTags(ctx context.Context, storeID string) ([]string, error)
}

type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv *model.InvoiceEntity, searchTerms []string) error
	AppendLogs(ctx context.Context, invoiceID string, entries []model.InvoiceLogEntry) error
	GetInvoice(ctx context.Context, invoiceID string) (*model.InvoiceEntity, error)
	GetLogs(ctx context.Context, invoiceID string) ([]model.InvoiceLogEntry, error)
	ListInvoices(ctx context.Context, storeID string, limit, offset int) ([]*model.InvoiceEntity, int, error)
}

type RateFetcher interface {
	FetchRates(ctx context.Context, pairs []model.CurrencyPair, rules *rates.Rules) map[model.CurrencyPair]*rates.Pending
}

type InvoiceService struct {
	stores    StoreSource
	invoices  InvoiceStore
	resolver  RateFetcher
	registry  *methods.Registry
	publisher events.Publisher
}

func NewInvoiceService(stores StoreSource, invoices InvoiceStore, resolver RateFetcher, registry *methods.Registry, publisher events.Publisher) *InvoiceService {
	return &InvoiceService{
		stores:    stores,
		invoices:  invoices,
		resolver:  resolver,
		registry:  registry,
		publisher: publisher,
	}
}

// CreateInvoiceLegacy handles the legacy flat request shape.
func (s *InvoiceService) CreateInvoiceLegacy(ctx context.Context, storeID string, req *dto.LegacyCreateInvoiceRequest) (*model.InvoiceEntity, error) {
	store, err := s.loadStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	inv, filter, err := buildFromLegacy(store, req, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return s.create(ctx, store, inv, filter)
}

// CreateInvoice handles the modern structured request shape.
func (s *InvoiceService) CreateInvoice(ctx context.Context, storeID string, req *dto.CreateInvoiceRequest) (*model.InvoiceEntity, error) {
	store, err := s.loadStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	inv, filter, err := buildFromModern(store, req, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return s.create(ctx, store, inv, filter)
}

func (s *InvoiceService) loadStore(ctx context.Context, storeID string) (*model.Store, error) {
	store, err := s.stores.GetStore(ctx, storeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load store %s: %w", storeID, err)
	}
	return store, nil
}

// create runs the pipeline: pair set, concurrent rate fetches, per-method
// resolution, the at-least-one check, persistence, event publish and the
// detached diagnostics flush.
func (s *InvoiceService) create(ctx context.Context, store *model.Store, inv *model.InvoiceEntity, filter *methodFilter) (*model.InvoiceEntity, error) {
	diag := newDiagnostics()
	diag.Info("creating invoice for %s %s", inv.Price, inv.Currency)

	rules, err := rates.ParseRules(store.RateRules)
	if err != nil {
		// Broken rules leave every pair unresolved; if nothing can be
		// built the aggregated failure below reports it.
		diag.Error("rate rules could not be parsed: %v", err)
		rules, _ = rates.ParseRules("")
	}

	enabled, err := s.stores.GetEnabledPaymentMethods(ctx, store.ID)
	if err != nil {
		return nil, fmt.Errorf("load payment methods: %w", err)
	}
	criteria, err := s.stores.GetCriteria(ctx, store.ID)
	if err != nil {
		return nil, fmt.Errorf("load payment criteria: %w", err)
	}

	var candidates []model.StorePaymentMethod
	var candidateIDs []model.PaymentMethodID
	for _, cfg := range enabled {
		if !filter.Allows(cfg.ID) {
			continue
		}
		candidates = append(candidates, cfg)
		candidateIDs = append(candidateIDs, cfg.ID)
	}

	pairs := rates.RequiredPairs(inv.Currency, candidateIDs, criteria)
	futures := s.resolver.FetchRates(ctx, pairs, rules)

	if inv.PaymentRequired() {
		stop := diag.Time("payment method detail creation")
		var failures *multierror.Error
		for _, cfg := range candidates {
			pm, reason, err := s.resolveMethod(ctx, inv, cfg, criteria, futures, diag)
			if err != nil {
				return nil, err
			}
			if pm != nil {
				inv.SetPaymentMethod(pm)
			} else if reason != "" {
				failures = multierror.Append(failures, errors.New(reason))
			}
		}
		stop()

		if len(inv.PaymentMethods) == 0 {
			msg := "no payment method available for this invoice"
			if failures != nil {
				msg = failures.Error()
			}
			return nil, &InvoiceError{Status: http.StatusBadRequest, Message: msg}
		}
	}

	s.applyLegacyShim(inv, store, diag)

	tags, err := s.stores.GetAppTags(ctx, store.ID)
	if err != nil {
		diag.Warning("could not load app tags: %v", err)
	}
	inv.InternalTags = append(inv.InternalTags, tags...)

	// A canceled request must never leave a partial invoice behind.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop := diag.Time("saving invoice")
	if err := s.invoices.CreateInvoice(ctx, inv, searchTerms(inv)); err != nil {
		return nil, fmt.Errorf("persist invoice: %w", err)
	}
	stop()

	if err := s.publisher.PublishInvoiceCreated(ctx, events.InvoiceCreatedEvent{
		InvoiceID: inv.ID,
		StoreID:   inv.StoreID,
		Status:    string(inv.Status),
		CreatedAt: inv.CreatedAt,
	}); err != nil {
		log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("invoice created event not published")
	}

	// The flush is detached from the request: a finished or canceled
	// caller must not lose log entries.
	go s.flushDiagnostics(context.WithoutCancel(ctx), inv.ID, diag, futures)

	return inv, nil
}

// resolveMethod builds one payment method. It returns a nil method with a
// human-readable reason on any per-method failure; only context cancellation
// propagates as an error.
func (s *InvoiceService) resolveMethod(
	ctx context.Context,
	inv *model.InvoiceEntity,
	cfg model.StorePaymentMethod,
	criteria []model.PaymentCriterion,
	futures map[model.CurrencyPair]*rates.Pending,
	diag *diagnostics,
) (pm *model.PaymentMethod, failReason string, err error) {
	id := cfg.ID

	// A handler fault must not take down sibling methods.
	defer func() {
		if r := recover(); r != nil {
			diag.Error("%s: handler panicked: %v", id, r)
			pm, failReason, err = nil, fmt.Sprintf("%s: internal failure while constructing payment method", id), nil
		}
	}()

	handler, ok := s.registry.HandlerFor(id)
	if !ok {
		diag.Warning("%s: no handler registered, method not offered", id)
		return nil, "", nil
	}

	pair := model.NewCurrencyPair(id.CryptoCode, inv.Currency)
	fut, ok := futures[pair]
	if !ok {
		diag.Warning("%s: no rate fetch issued for %s", id, pair)
		return nil, fmt.Sprintf("%s: no rate available for %s", id, pair), nil
	}
	res, waitErr := fut.Wait(ctx)
	if waitErr != nil {
		return nil, "", waitErr
	}
	if !res.Available() {
		diag.Warning("%s: rate for %s unavailable (rule %q)", id, pair, res.Rule)
		return nil, fmt.Sprintf("%s: no rate available for %s", id, pair), nil
	}

	candidate := &model.PaymentMethod{
		ID:        id,
		InvoiceID: inv.ID,
		Network:   cfg.Network,
		Rate:      res.BidAsk.Rate(),
	}

	details, detailErr := handler.CreateDetails(ctx, &methods.ResolveContext{
		Invoice:  inv,
		Config:   cfg,
		Rate:     *res.BidAsk,
		Selected: inv.PaymentMethods,
	})
	if detailErr != nil {
		if errors.Is(detailErr, context.Canceled) || errors.Is(detailErr, context.DeadlineExceeded) {
			return nil, "", detailErr
		}
		if errors.Is(detailErr, methods.ErrMethodUnavailable) {
			diag.Error("%s: %v", id, detailErr)
		} else {
			diag.Error("%s: unexpected failure building payment details: %+v", id, detailErr)
		}
		return nil, fmt.Sprintf("%s: %v", id, detailErr), nil
	}
	candidate.Details = details

	// Criteria only apply to Standard invoices; a top-up has no due amount
	// to compare yet.
	if inv.Type == model.InvoiceTypeStandard {
		for _, crit := range criteria {
			if crit.MethodID != id {
				continue
			}
			if !s.enforceCriterion(ctx, inv, candidate, crit, futures, diag) {
				return nil, fmt.Sprintf("%s: amount due is outside the configured bound", id), nil
			}
		}
	}

	diag.Info("%s: payment method ready, rate %s, destination %s", id, candidate.Rate, details.Destination)
	return candidate, "", nil
}

// applyLegacyShim mirrors the chosen on-chain method into the deprecated
// top-level fields consumed by older API clients. When no on-chain method was
// selected but the store's default crypto still has a method, the rate is
// mirrored so those clients keep working. Compatibility only.
func (s *InvoiceService) applyLegacyShim(inv *model.InvoiceEntity, store *model.Store, diag *diagnostics) {
	defaultOnChain := model.PaymentMethodID{CryptoCode: store.DefaultCryptoCode, Type: model.PaymentTypeOnChain}
	if pm, ok := inv.PaymentMethods[defaultOnChain]; ok {
		inv.DepositAddress = pm.Details.Destination
		inv.Rate = pm.Rate
		inv.TxFee = pm.Details.NetworkFee
		return
	}
	for _, id := range inv.SupportedPaymentMethods {
		if id.Type != model.PaymentTypeOnChain {
			continue
		}
		pm := inv.PaymentMethods[id]
		inv.DepositAddress = pm.Details.Destination
		inv.Rate = pm.Rate
		inv.TxFee = pm.Details.NetworkFee
		return
	}
	if pm, ok := inv.PaymentMethods[model.PaymentMethodID{CryptoCode: store.DefaultCryptoCode, Type: model.PaymentTypeLightning}]; ok {
		inv.Rate = pm.Rate
		diag.Info("no on-chain method selected, legacy fields carry the %s rate only", pm.ID)
	}
}

func searchTerms(inv *model.InvoiceEntity) []string {
	terms := []string{inv.ID}
	if inv.Metadata.OrderID != "" {
		terms = append(terms, inv.Metadata.OrderID)
	}
	if inv.Metadata.BuyerEmail != "" {
		terms = append(terms, inv.Metadata.BuyerEmail)
	}
	for _, id := range inv.SupportedPaymentMethods {
		if dest := inv.PaymentMethods[id].Details.Destination; dest != "" {
			terms = append(terms, dest)
		}
	}
	return terms
}

// flushDiagnostics settles every originally required pair, records the rate
// diagnostics and persists the accumulated trail. It runs off the response
// path; its failures are logged and never surfaced.
func (s *InvoiceService) flushDiagnostics(ctx context.Context, invoiceID string, diag *diagnostics, futures map[model.CurrencyPair]*rates.Pending) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("invoice_id", invoiceID).Msg("diagnostics flush panicked")
		}
	}()

	for _, res := range rates.SettleAll(ctx, futures) {
		if res.Available() {
			diag.Info("rate for %s: rule %q evaluated as %q", res.Pair, res.Rule, res.EvaluatedRule)
		} else {
			diag.Warning("rate for %s unresolved: rule %q evaluated as %q", res.Pair, res.Rule, res.EvaluatedRule)
		}
		for _, ruleErr := range res.RuleErrors {
			diag.Warning("rate rule issue for %s: %s", res.Pair, ruleErr)
		}
		for _, provErr := range res.ProviderErrors {
			diag.Error("rate fetch for %s failed: %v", res.Pair, provErr)
		}
	}

	if err := s.invoices.AppendLogs(ctx, invoiceID, diag.Entries()); err != nil {
		log.Error().Err(err).Str("invoice_id", invoiceID).Msg("could not persist invoice logs")
	}
}

// GetInvoice returns a persisted invoice with its log trail.
func (s *InvoiceService) GetInvoice(ctx context.Context, invoiceID string) (*model.InvoiceEntity, []model.InvoiceLogEntry, error) {
	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	logs, err := s.invoices.GetLogs(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	return inv, logs, nil
}

func (s *InvoiceService) ListInvoices(ctx context.Context, storeID string, limit, offset int) ([]*model.InvoiceEntity, int, error) {
	return s.invoices.ListInvoices(ctx, storeID, limit, offset)
}
