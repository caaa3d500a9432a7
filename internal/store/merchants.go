package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MerchantRepository persists registered merchants, supplemental to the
// named modules, letting Transaction.merchant_id resolve to a display
// name for payment notifications.
type MerchantRepository struct {
	db *pgxpool.Pool
}

func NewMerchantRepository(db *DB) *MerchantRepository {
	return &MerchantRepository{db: db.pool}
}

func (r *MerchantRepository) Register(ctx context.Context, m *Merchant) error {
	const q = `INSERT INTO merchants (id, name, phone, created_at) VALUES ($1,$2,$3,$4)
		ON CONFLICT (phone) DO UPDATE SET name = EXCLUDED.name`
	_, err := r.db.Exec(ctx, q, m.ID, m.Name, m.Phone, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to register merchant: %w", err)
	}
	return nil
}

func (r *MerchantRepository) GetByPhone(ctx context.Context, phone string) (*Merchant, error) {
	const q = `SELECT id, name, phone, created_at FROM merchants WHERE phone = $1`
	var m Merchant
	err := r.db.QueryRow(ctx, q, phone).Scan(&m.ID, &m.Name, &m.Phone, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get merchant %s: %w", phone, err)
	}
	return &m, nil
}
