package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransactionRepository persists ledger-settlement records.
type TransactionRepository struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db.pool}
}

const txColumns = `id, tx_id, sender_phone, sender_address, receiver_phone, receiver_address,
	amount, type, status, note, split_id, fund_id, merchant_id, payment_ref, created_at, confirmed_at`

func scanTx(row pgx.Row) (*Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.TxID, &t.SenderPhone, &t.SenderAddress, &t.ReceiverPhone, &t.ReceiverAddress,
		&t.Amount, &t.Type, &t.Status, &t.Note, &t.SplitID, &t.FundID, &t.MerchantID, &t.PaymentRef,
		&t.CreatedAt, &t.ConfirmedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepository) Create(ctx context.Context, t *Transaction) error {
	const q = `INSERT INTO transactions (id, tx_id, sender_phone, sender_address, receiver_phone,
		receiver_address, amount, type, status, note, split_id, fund_id, merchant_id, payment_ref, created_at, confirmed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	_, err := r.db.Exec(ctx, q, t.ID, t.TxID, t.SenderPhone, t.SenderAddress, t.ReceiverPhone,
		t.ReceiverAddress, t.Amount, t.Type, t.Status, t.Note, t.SplitID, t.FundID, t.MerchantID,
		t.PaymentRef, t.CreatedAt, t.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// MarkConfirmed sets status=CONFIRMED, tx_id, confirmed_at. Only valid
// from PENDING.
func (r *TransactionRepository) MarkConfirmed(ctx context.Context, id, txID string, confirmedAt time.Time) error {
	const q = `UPDATE transactions SET status = $2, tx_id = $3, confirmed_at = $4
		WHERE id = $1 AND status = 'PENDING'`
	tag, err := r.db.Exec(ctx, q, id, TxConfirmed, txID, confirmedAt)
	if err != nil {
		return fmt.Errorf("failed to mark transaction confirmed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed sets status=FAILED. Terminal; only valid from PENDING.
func (r *TransactionRepository) MarkFailed(ctx context.Context, id string) error {
	const q = `UPDATE transactions SET status = $2 WHERE id = $1 AND status = 'PENDING'`
	tag, err := r.db.Exec(ctx, q, id, TxFailed)
	if err != nil {
		return fmt.Errorf("failed to mark transaction failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, id)
	t, err := scanTx(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return t, nil
}

// History returns the most-recent-first list of transactions where phone
// is sender or receiver, per Payment Service's history(phone, limit).
func (r *TransactionRepository) History(ctx context.Context, phone string, limit int) ([]*Transaction, error) {
	const q = `SELECT ` + txColumns + ` FROM transactions
		WHERE sender_phone = $1 OR receiver_phone = $1
		ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, q, phone, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", phone, err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateTxInTx is Create run against an existing transaction handle, for
// callers that insert a Transaction inside a larger atomic write. Nothing
// in this module calls it.
func CreateTxInTx(ctx context.Context, tx pgx.Tx, t *Transaction) error {
	const q = `INSERT INTO transactions (id, tx_id, sender_phone, sender_address, receiver_phone,
		receiver_address, amount, type, status, note, split_id, fund_id, merchant_id, payment_ref, created_at, confirmed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	_, err := tx.Exec(ctx, q, t.ID, t.TxID, t.SenderPhone, t.SenderAddress, t.ReceiverPhone,
		t.ReceiverAddress, t.Amount, t.Type, t.Status, t.Note, t.SplitID, t.FundID, t.MerchantID,
		t.PaymentRef, t.CreatedAt, t.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction in tx: %w", err)
	}
	return nil
}
