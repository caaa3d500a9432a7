package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SplitRepository persists bill-split pools and per-participant shares.
type SplitRepository struct {
	db *pgxpool.Pool
}

func NewSplitRepository(db *DB) *SplitRepository {
	return &SplitRepository{db: db.pool}
}

// CreateWithPayments inserts a SplitBill and its SplitPayment rows in a
// single transaction, per §4.10 create semantics.
func (r *SplitRepository) CreateWithPayments(ctx context.Context, db *DB, bill *SplitBill, payments []*SplitPayment) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		const billQ = `INSERT INTO split_bills (id, initiator, total_amount, description, status, created_at, completed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`
		if _, err := tx.Exec(ctx, billQ, bill.ID, bill.Initiator, bill.TotalAmount, bill.Description,
			bill.Status, bill.CreatedAt, bill.CompletedAt); err != nil {
			return fmt.Errorf("failed to create split bill: %w", err)
		}

		const payQ = `INSERT INTO split_payments (id, split_bill_id, participant, amount, is_paid, tx_id, paid_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`
		for _, p := range payments {
			if _, err := tx.Exec(ctx, payQ, p.ID, p.SplitBillID, p.Participant, p.Amount, p.IsPaid, p.TxID, p.PaidAt); err != nil {
				return fmt.Errorf("failed to create split payment: %w", err)
			}
		}
		return nil
	})
}

func (r *SplitRepository) GetBill(ctx context.Context, id string) (*SplitBill, error) {
	const q = `SELECT id, initiator, total_amount, description, status, created_at, completed_at
		FROM split_bills WHERE id = $1`
	var b SplitBill
	err := r.db.QueryRow(ctx, q, id).Scan(&b.ID, &b.Initiator, &b.TotalAmount, &b.Description, &b.Status, &b.CreatedAt, &b.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get split bill %s: %w", id, err)
	}
	return &b, nil
}

func (r *SplitRepository) ListPayments(ctx context.Context, splitBillID string) ([]*SplitPayment, error) {
	const q = `SELECT id, split_bill_id, participant, amount, is_paid, tx_id, paid_at
		FROM split_payments WHERE split_bill_id = $1 ORDER BY participant`
	rows, err := r.db.Query(ctx, q, splitBillID)
	if err != nil {
		return nil, fmt.Errorf("failed to list split payments for %s: %w", splitBillID, err)
	}
	defer rows.Close()

	var out []*SplitPayment
	for rows.Next() {
		var p SplitPayment
		if err := rows.Scan(&p.ID, &p.SplitBillID, &p.Participant, &p.Amount, &p.IsPaid, &p.TxID, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("failed to scan split payment row: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *SplitRepository) GetPayment(ctx context.Context, splitBillID, participant string) (*SplitPayment, error) {
	const q = `SELECT id, split_bill_id, participant, amount, is_paid, tx_id, paid_at
		FROM split_payments WHERE split_bill_id = $1 AND participant = $2`
	var p SplitPayment
	err := r.db.QueryRow(ctx, q, splitBillID, participant).Scan(&p.ID, &p.SplitBillID, &p.Participant, &p.Amount, &p.IsPaid, &p.TxID, &p.PaidAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get split payment: %w", err)
	}
	return &p, nil
}

// ListByInitiator returns the split bills a phone initiated, per MY_SPLITS.
func (r *SplitRepository) ListByInitiator(ctx context.Context, initiator string) ([]*SplitBill, error) {
	const q = `SELECT id, initiator, total_amount, description, status, created_at, completed_at
		FROM split_bills WHERE initiator = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, q, initiator)
	if err != nil {
		return nil, fmt.Errorf("failed to list split bills for %s: %w", initiator, err)
	}
	defer rows.Close()

	var out []*SplitBill
	for rows.Next() {
		var b SplitBill
		if err := rows.Scan(&b.ID, &b.Initiator, &b.TotalAmount, &b.Description, &b.Status, &b.CreatedAt, &b.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan split bill row: %w", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// MarkPaidAndMaybeComplete marks one participant's share paid and, if that
// was the last unpaid non-initiator row, completes the bill — all inside
// one transaction per §4.5 (split completion + last SplitPayment.is_paid).
func (r *SplitRepository) MarkPaidAndMaybeComplete(ctx context.Context, db *DB, splitBillID, participant, txID string, paidAt time.Time) (completed bool, err error) {
	err = db.WithTx(ctx, func(tx pgx.Tx) error {
		const payQ = `UPDATE split_payments SET is_paid = true, tx_id = $3, paid_at = $4
			WHERE split_bill_id = $1 AND participant = $2 AND is_paid = false`
		tag, execErr := tx.Exec(ctx, payQ, splitBillID, participant, txID, paidAt)
		if execErr != nil {
			return fmt.Errorf("failed to mark split payment paid: %w", execErr)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		var initiator string
		if scanErr := tx.QueryRow(ctx, `SELECT initiator FROM split_bills WHERE id = $1`, splitBillID).Scan(&initiator); scanErr != nil {
			return fmt.Errorf("failed to load split bill initiator: %w", scanErr)
		}

		var unpaidNonInitiator int
		countQ := `SELECT COUNT(*) FROM split_payments WHERE split_bill_id = $1 AND participant <> $2 AND is_paid = false`
		if scanErr := tx.QueryRow(ctx, countQ, splitBillID, initiator).Scan(&unpaidNonInitiator); scanErr != nil {
			return fmt.Errorf("failed to count unpaid split payments: %w", scanErr)
		}

		if unpaidNonInitiator == 0 {
			completeQ := `UPDATE split_bills SET status = 'COMPLETED', completed_at = $2 WHERE id = $1 AND status = 'PENDING'`
			if _, execErr := tx.Exec(ctx, completeQ, splitBillID, paidAt); execErr != nil {
				return fmt.Errorf("failed to complete split bill: %w", execErr)
			}
			completed = true
		}
		return nil
	})
	return completed, err
}
