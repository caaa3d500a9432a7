package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReliabilityRepository persists the per-phone commitment-fulfillment
// tally behind get_user_reliability and the Badge() presentation.
type ReliabilityRepository struct {
	db *pgxpool.Pool
}

func NewReliabilityRepository(db *DB) *ReliabilityRepository {
	return &ReliabilityRepository{db: db.pool}
}

const reliabilityColumns = `phone, total, fulfilled_on_time, fulfilled_late, missed, score`

func scanReliability(row pgx.Row) (*ReliabilityScore, error) {
	var s ReliabilityScore
	if err := row.Scan(&s.Phone, &s.Total, &s.FulfilledOnTime, &s.FulfilledLate, &s.Missed, &s.Score); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetOrCreate returns the phone's reliability row, inserting a zeroed
// one on first touch so every phone that has ever joined a commitment
// has a score, per §4.13's get_user_reliability.
func (r *ReliabilityRepository) GetOrCreate(ctx context.Context, phone string) (*ReliabilityScore, error) {
	row := r.db.QueryRow(ctx, `SELECT `+reliabilityColumns+` FROM reliability_scores WHERE phone = $1`, phone)
	s, err := scanReliability(row)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to get reliability score for %s: %w", phone, err)
	}

	const insQ = `INSERT INTO reliability_scores (phone, total, fulfilled_on_time, fulfilled_late, missed, score)
		VALUES ($1, 0, 0, 0, 0, 100)
		ON CONFLICT (phone) DO NOTHING`
	if _, err := r.db.Exec(ctx, insQ, phone); err != nil {
		return nil, fmt.Errorf("failed to create reliability score for %s: %w", phone, err)
	}

	row = r.db.QueryRow(ctx, `SELECT `+reliabilityColumns+` FROM reliability_scores WHERE phone = $1`, phone)
	return scanReliability(row)
}

// RecordOnTime bumps total and fulfilled_on_time for a RELEASED
// participation, then recomputes score, per the reliability scoring
// algorithm in §4.13.
func (r *ReliabilityRepository) RecordOnTime(ctx context.Context, phone string) error {
	return r.recordOutcome(ctx, phone, "fulfilled_on_time")
}

// RecordLocked bumps only total_commitments, for the "locked" action in
// §4.13's reliability algorithm: a participant's commitment count rises
// the moment they lock funds, ahead of whatever the commitment's eventual
// outcome turns out to be.
func (r *ReliabilityRepository) RecordLocked(ctx context.Context, phone string) error {
	if _, err := r.GetOrCreate(ctx, phone); err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, `UPDATE reliability_scores SET total = total + 1 WHERE phone = $1`, phone); err != nil {
		return fmt.Errorf("failed to record locked commitment for %s: %w", phone, err)
	}
	return r.recompute(ctx, phone)
}

// RecordReleased bumps only fulfilled_on_time, for a participant whose
// locked funds were released on schedule. total_commitments was already
// incremented by RecordLocked when they locked, so this must not double
// count it.
func (r *ReliabilityRepository) RecordReleased(ctx context.Context, phone string) error {
	if _, err := r.GetOrCreate(ctx, phone); err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, `UPDATE reliability_scores SET fulfilled_on_time = fulfilled_on_time + 1 WHERE phone = $1`, phone); err != nil {
		return fmt.Errorf("failed to record released commitment for %s: %w", phone, err)
	}
	return r.recompute(ctx, phone)
}

// RecordLate bumps total and fulfilled_late.
func (r *ReliabilityRepository) RecordLate(ctx context.Context, phone string) error {
	return r.recordOutcome(ctx, phone, "fulfilled_late")
}

// RecordMissed bumps total and missed, for participants left INVITED at
// release time.
func (r *ReliabilityRepository) RecordMissed(ctx context.Context, phone string) error {
	return r.recordOutcome(ctx, phone, "missed")
}

func (r *ReliabilityRepository) recordOutcome(ctx context.Context, phone, column string) error {
	if _, err := r.GetOrCreate(ctx, phone); err != nil {
		return err
	}

	// column is one of a fixed internal whitelist, never user input.
	q := fmt.Sprintf(`UPDATE reliability_scores SET total = total + 1, %s = %s + 1 WHERE phone = $1`, column, column)
	if _, err := r.db.Exec(ctx, q, phone); err != nil {
		return fmt.Errorf("failed to record reliability outcome for %s: %w", phone, err)
	}
	return r.recompute(ctx, phone)
}

// recompute derives score from the weighted formula: on-time counts
// fully, late counts half, missed counts zero, clamped to [0,100].
func (r *ReliabilityRepository) recompute(ctx context.Context, phone string) error {
	const q = `UPDATE reliability_scores
		SET score = GREATEST(0, LEAST(100,
			CASE WHEN total = 0 THEN 100
			ELSE (100 * (fulfilled_on_time * 2 + fulfilled_late)) / (total * 2)
			END))
		WHERE phone = $1`
	if _, err := r.db.Exec(ctx, q, phone); err != nil {
		return fmt.Errorf("failed to recompute reliability score for %s: %w", phone, err)
	}
	return nil
}
