package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luminapay/invoice-engine/internal/model"
)

type StoreRepository struct {
	pool *pgxpool.Pool
}

func NewStoreRepository(pool *pgxpool.Pool) *StoreRepository {
	return &StoreRepository{pool: pool}
}

func (r *StoreRepository) GetStore(ctx context.Context, storeID string) (*model.Store, error) {
	store := &model.Store{}
	var expiryMin, monitoringMin int
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, default_currency, default_crypto_code, speed_policy,
			invoice_expiry_minutes, monitoring_expiry_minutes,
			COALESCE(default_redirect_url, ''), COALESCE(default_notification_url, ''),
			COALESCE(rate_rules, ''), created_at
		FROM stores WHERE id = $1`, storeID).
		Scan(&store.ID, &store.Name, &store.DefaultCurrency, &store.DefaultCryptoCode,
			&store.SpeedPolicy, &expiryMin, &monitoringMin,
			&store.DefaultRedirectURL, &store.DefaultNotificationURL,
			&store.RateRules, &store.CreatedAt)
	if err != nil {
		return nil, err
	}
	store.InvoiceExpiry = time.Duration(expiryMin) * time.Minute
	store.MonitoringExpiry = time.Duration(monitoringMin) * time.Minute
	return store, nil
}

// GetEnabledPaymentMethods returns the store's switched-on methods in a fixed
// order, so method resolution is deterministic regardless of rate timing.
func (r *StoreRepository) GetEnabledPaymentMethods(ctx context.Context, storeID string) ([]model.StorePaymentMethod, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT store_id, crypto_code, payment_type, enabled, network, network_fee
		FROM store_payment_methods
		WHERE store_id = $1 AND enabled
		ORDER BY crypto_code, payment_type`, storeID)
	if err != nil {
		return nil, fmt.Errorf("query store payment methods: %w", err)
	}
	defer rows.Close()

	var methods []model.StorePaymentMethod
	for rows.Next() {
		var pm model.StorePaymentMethod
		if err := rows.Scan(&pm.StoreID, &pm.ID.CryptoCode, &pm.ID.Type, &pm.Enabled, &pm.Network, &pm.NetworkFee); err != nil {
			return nil, fmt.Errorf("scan store payment method: %w", err)
		}
		methods = append(methods, pm)
	}
	return methods, rows.Err()
}

func (r *StoreRepository) GetCriteria(ctx context.Context, storeID string) ([]model.PaymentCriterion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT crypto_code, payment_type, bound_value, bound_currency, above_not_below
		FROM payment_criteria
		WHERE store_id = $1
		ORDER BY crypto_code, payment_type`, storeID)
	if err != nil {
		return nil, fmt.Errorf("query payment criteria: %w", err)
	}
	defer rows.Close()

	var criteria []model.PaymentCriterion
	for rows.Next() {
		var crit model.PaymentCriterion
		if err := rows.Scan(&crit.MethodID.CryptoCode, &crit.MethodID.Type, &crit.Value, &crit.Currency, &crit.AboveNotBelow); err != nil {
			return nil, fmt.Errorf("scan payment criterion: %w", err)
		}
		criteria = append(criteria, crit)
	}
	return criteria, rows.Err()
}

// GetAppTags returns the internal tags contributed by apps that mark every
// invoice of this store (point of sale, crowdfund).
func (r *StoreRepository) GetAppTags(ctx context.Context, storeID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT 'APP:' || id FROM apps WHERE store_id = $1 AND tag_all_invoices ORDER BY id`, storeID)
	if err != nil {
		return nil, fmt.Errorf("query app tags: %w", err)
	}
	tags, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect app tags: %w", err)
	}
	return tags, nil
}
