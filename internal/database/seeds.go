package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const demoStoreID = "store_demo"

// SeedData provisions a demo store for local development: BTC on-chain and
// lightning enabled, a lightning minimum criterion, rate rules and a small
// address pool. Idempotent: a second run is a no-op.
func SeedData(ctx context.Context, pool *pgxpool.Pool) error {
	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM stores").Scan(&count); err != nil {
		return fmt.Errorf("check existing data: %w", err)
	}
	if count > 0 {
		log.Info().Msg("seed data already exists, skipping")
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rateRules := "BTC_USD = kraken\nBTC_EUR = kraken\n* = coingecko"
	_, err = tx.Exec(ctx,
		`INSERT INTO stores (id, name, default_currency, default_crypto_code, speed_policy,
			invoice_expiry_minutes, monitoring_expiry_minutes, rate_rules)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		demoStoreID, "Demo Store", "USD", "BTC", "medium", 15, 60, rateRules)
	if err != nil {
		return fmt.Errorf("seed store: %w", err)
	}

	methods := [][]any{
		{demoStoreID, "BTC", "OnChain", true, "mainnet", "0.00002"},
		{demoStoreID, "BTC", "Lightning", true, "mainnet", "0"},
		{demoStoreID, "LTC", "OnChain", false, "mainnet", "0.0001"},
	}
	for _, m := range methods {
		_, err = tx.Exec(ctx,
			`INSERT INTO store_payment_methods (store_id, crypto_code, payment_type, enabled, network, network_fee)
			VALUES ($1, $2, $3, $4, $5, $6)`, m...)
		if err != nil {
			return fmt.Errorf("seed payment method: %w", err)
		}
	}

	// Lightning is only offered below 100 USD worth of BTC.
	_, err = tx.Exec(ctx,
		`INSERT INTO payment_criteria (store_id, crypto_code, payment_type, bound_value, bound_currency, above_not_below)
		VALUES ($1, 'BTC', 'Lightning', 100, 'USD', FALSE)`, demoStoreID)
	if err != nil {
		return fmt.Errorf("seed criterion: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO apps (id, store_id, app_type, tag_all_invoices)
		VALUES ('pos_demo', $1, 'pointofsale', TRUE)`, demoStoreID)
	if err != nil {
		return fmt.Errorf("seed app: %w", err)
	}

	batch := &pgx.Batch{}
	for i := 0; i < 20; i++ {
		batch.Queue(
			`INSERT INTO address_pool (store_id, crypto_code, address) VALUES ($1, 'BTC', $2)`,
			demoStoreID, fmt.Sprintf("bc1qdemo%012d", i))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed address pool: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit seed data: %w", err)
	}

	log.Info().Str("store_id", demoStoreID).Msg("seed data inserted")
	return nil
}
