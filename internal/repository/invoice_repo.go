package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luminapay/invoice-engine/internal/model"
)

type InvoiceRepository struct {
	pool *pgxpool.Pool
}

func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

// CreateInvoice persists the entity, its payment methods and search terms in
// one transaction. The entity must be final: nothing is written before the
// accept/reject decision.
func (r *InvoiceRepository) CreateInvoice(ctx context.Context, inv *model.InvoiceEntity, searchTerms []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin invoice transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	metadata, err := json.Marshal(inv.Metadata)
	if err != nil {
		return fmt.Errorf("encode invoice metadata: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO invoices (id, store_id, currency, price, type, status, speed_policy,
			created_at, expiration_time, monitoring_expiration, metadata,
			redirect_url, notification_url, refund_email, internal_tags,
			deposit_address, rate, tx_fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		inv.ID, inv.StoreID, inv.Currency, inv.Price, inv.Type, inv.Status, inv.SpeedPolicy,
		inv.CreatedAt, inv.ExpirationTime, inv.MonitoringExpiration, metadata,
		inv.RedirectURL, inv.NotificationURL, inv.RefundEmail, inv.InternalTags,
		inv.DepositAddress, inv.Rate, inv.TxFee)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}

	for _, id := range inv.SupportedPaymentMethods {
		pm := inv.PaymentMethods[id]
		details, err := json.Marshal(pm.Details)
		if err != nil {
			return fmt.Errorf("encode payment details for %s: %w", id, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO invoice_payment_methods (invoice_id, crypto_code, payment_type, network, rate, details)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			inv.ID, id.CryptoCode, id.Type, pm.Network, pm.Rate, details)
		if err != nil {
			return fmt.Errorf("insert payment method %s: %w", id, err)
		}
	}

	if len(searchTerms) > 0 {
		batch := &pgx.Batch{}
		for _, term := range searchTerms {
			batch.Queue(
				`INSERT INTO invoice_search_terms (invoice_id, term) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				inv.ID, term)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert search terms: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// AppendLogs attaches diagnostic entries to an already persisted invoice.
func (r *InvoiceRepository) AppendLogs(ctx context.Context, invoiceID string, entries []model.InvoiceLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(
			`INSERT INTO invoice_logs (invoice_id, severity, message, created_at) VALUES ($1, $2, $3, $4)`,
			invoiceID, entry.Severity, entry.Message, entry.Timestamp)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("append invoice logs: %w", err)
	}
	return nil
}

func (r *InvoiceRepository) GetInvoice(ctx context.Context, invoiceID string) (*model.InvoiceEntity, error) {
	inv := &model.InvoiceEntity{}
	var metadata []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, store_id, currency, price, type, status, speed_policy,
			created_at, expiration_time, monitoring_expiration, metadata,
			COALESCE(redirect_url, ''), COALESCE(notification_url, ''), COALESCE(refund_email, ''),
			internal_tags, COALESCE(deposit_address, ''), rate, tx_fee
		FROM invoices WHERE id = $1`, invoiceID).
		Scan(&inv.ID, &inv.StoreID, &inv.Currency, &inv.Price, &inv.Type, &inv.Status, &inv.SpeedPolicy,
			&inv.CreatedAt, &inv.ExpirationTime, &inv.MonitoringExpiration, &metadata,
			&inv.RedirectURL, &inv.NotificationURL, &inv.RefundEmail,
			&inv.InternalTags, &inv.DepositAddress, &inv.Rate, &inv.TxFee)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metadata, &inv.Metadata); err != nil {
		return nil, fmt.Errorf("decode invoice metadata: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT crypto_code, payment_type, network, rate, details
		FROM invoice_payment_methods WHERE invoice_id = $1
		ORDER BY crypto_code, payment_type`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("query invoice payment methods: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		pm := &model.PaymentMethod{InvoiceID: invoiceID}
		var details []byte
		if err := rows.Scan(&pm.ID.CryptoCode, &pm.ID.Type, &pm.Network, &pm.Rate, &details); err != nil {
			return nil, fmt.Errorf("scan invoice payment method: %w", err)
		}
		if err := json.Unmarshal(details, &pm.Details); err != nil {
			return nil, fmt.Errorf("decode payment details: %w", err)
		}
		inv.SetPaymentMethod(pm)
	}
	return inv, rows.Err()
}

func (r *InvoiceRepository) GetLogs(ctx context.Context, invoiceID string) ([]model.InvoiceLogEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT severity, message, created_at FROM invoice_logs
		WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("query invoice logs: %w", err)
	}
	defer rows.Close()

	var entries []model.InvoiceLogEntry
	for rows.Next() {
		var entry model.InvoiceLogEntry
		if err := rows.Scan(&entry.Severity, &entry.Message, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan invoice log: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListInvoices returns a page of a store's invoices, newest first, without
// their payment methods.
func (r *InvoiceRepository) ListInvoices(ctx context.Context, storeID string, limit, offset int) ([]*model.InvoiceEntity, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM invoices WHERE store_id = $1`, storeID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, store_id, currency, price, type, status, speed_policy,
			created_at, expiration_time, monitoring_expiration, metadata, internal_tags
		FROM invoices WHERE store_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, storeID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*model.InvoiceEntity
	for rows.Next() {
		inv := &model.InvoiceEntity{}
		var metadata []byte
		if err := rows.Scan(&inv.ID, &inv.StoreID, &inv.Currency, &inv.Price, &inv.Type, &inv.Status,
			&inv.SpeedPolicy, &inv.CreatedAt, &inv.ExpirationTime, &inv.MonitoringExpiration,
			&metadata, &inv.InternalTags); err != nil {
			return nil, 0, fmt.Errorf("scan invoice: %w", err)
		}
		if err := json.Unmarshal(metadata, &inv.Metadata); err != nil {
			return nil, 0, fmt.Errorf("decode invoice metadata: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, total, rows.Err()
}
