package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luminapay/invoice-engine/internal/methods"
)

// AddressRepository reserves deposit addresses from the per-store address
// pool. SKIP LOCKED keeps concurrent invoice creations from grabbing the same
// address.
type AddressRepository struct {
	pool *pgxpool.Pool
}

func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

func (r *AddressRepository) ReserveAddress(ctx context.Context, storeID, cryptoCode string) (string, error) {
	var address string
	err := r.pool.QueryRow(ctx,
		`UPDATE address_pool SET used = TRUE, used_at = NOW()
		WHERE id = (
			SELECT id FROM address_pool
			WHERE store_id = $1 AND crypto_code = $2 AND NOT used
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING address`, storeID, cryptoCode).Scan(&address)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", methods.ErrNoAddress
	}
	if err != nil {
		return "", fmt.Errorf("reserve address: %w", err)
	}
	return address, nil
}
