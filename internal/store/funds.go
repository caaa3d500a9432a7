package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FundRepository persists fundraising campaigns and their contributions.
type FundRepository struct {
	db *pgxpool.Pool
}

func NewFundRepository(db *DB) *FundRepository {
	return &FundRepository{db: db.pool}
}

const fundColumns = `id, creator, title, goal_amount, current_amount, is_goal_met, is_active, deadline, created_at`

func (r *FundRepository) Create(ctx context.Context, f *Fund) error {
	const q = `INSERT INTO funds (` + fundColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.db.Exec(ctx, q, f.ID, f.Creator, f.Title, f.GoalAmount, f.CurrentAmount, f.IsGoalMet, f.IsActive, f.Deadline, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create fund: %w", err)
	}
	return nil
}

func (r *FundRepository) GetByID(ctx context.Context, id string) (*Fund, error) {
	const q = `SELECT ` + fundColumns + ` FROM funds WHERE id = $1`
	var f Fund
	err := r.db.QueryRow(ctx, q, id).Scan(&f.ID, &f.Creator, &f.Title, &f.GoalAmount, &f.CurrentAmount, &f.IsGoalMet, &f.IsActive, &f.Deadline, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get fund %s: %w", id, err)
	}
	return &f, nil
}

func (r *FundRepository) ListActive(ctx context.Context) ([]*Fund, error) {
	const q = `SELECT ` + fundColumns + ` FROM funds WHERE is_active = true ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list active funds: %w", err)
	}
	defer rows.Close()

	var out []*Fund
	for rows.Next() {
		var f Fund
		if err := rows.Scan(&f.ID, &f.Creator, &f.Title, &f.GoalAmount, &f.CurrentAmount, &f.IsGoalMet, &f.IsActive, &f.Deadline, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fund row: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// Contribute records a FundContribution and atomically bumps
// current_amount, latching is_goal_met once it reaches goal_amount, per
// §4.12. Returns the fund's state after the update.
func (r *FundRepository) Contribute(ctx context.Context, db *DB, contribution *FundContribution) (*Fund, error) {
	var result Fund
	err := db.WithTx(ctx, func(tx pgx.Tx) error {
		const insQ = `INSERT INTO fund_contributions (id, fund_id, contributor, amount, tx_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)`
		if _, err := tx.Exec(ctx, insQ, contribution.ID, contribution.FundID, contribution.Contributor,
			contribution.Amount, contribution.TxID, contribution.CreatedAt); err != nil {
			return fmt.Errorf("failed to record fund contribution: %w", err)
		}

		const updQ = `UPDATE funds SET current_amount = current_amount + $2,
			is_goal_met = (current_amount + $2) >= goal_amount
			WHERE id = $1 AND is_active = true
			RETURNING ` + fundColumns
		row := tx.QueryRow(ctx, updQ, contribution.FundID, contribution.Amount)
		if err := row.Scan(&result.ID, &result.Creator, &result.Title, &result.GoalAmount,
			&result.CurrentAmount, &result.IsGoalMet, &result.IsActive, &result.Deadline, &result.CreatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to update fund totals: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
