package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrWrongState is returned when an operation's precondition on the
// commitment's current status column fails (the idempotency/terminality
// guard rails of §5 and §8).
var ErrWrongState = errors.New("store: commitment not in required state")

// CommitmentRepository persists PaymentCommitment + CommitmentParticipant
// rows. Every mutating method that must be serialized against concurrent
// lock_funds/release/cancel calls takes the row lock first, per §5's
// "acquires the row lock before inspecting participants."
type CommitmentRepository struct {
	db *pgxpool.Pool
}

func NewCommitmentRepository(db *DB) *CommitmentRepository {
	return &CommitmentRepository{db: db.pool}
}

const commitmentColumns = `id, organizer, title, description, amount_per_person, total_participants,
	deadline, escrow_address, encrypted_escrow_key, status, total_locked, participants_locked,
	released_at, released_tx_id, created_at`

func scanCommitment(row pgx.Row) (*PaymentCommitment, error) {
	var c PaymentCommitment
	err := row.Scan(&c.ID, &c.Organizer, &c.Title, &c.Description, &c.AmountPerPerson, &c.TotalParticipants,
		&c.Deadline, &c.EscrowAddress, &c.EncryptedEscrowKey, &c.Status, &c.TotalLocked, &c.ParticipantsLocked,
		&c.ReleasedAt, &c.ReleasedTxID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CommitmentRepository) Create(ctx context.Context, c *PaymentCommitment) error {
	const q = `INSERT INTO payment_commitments (` + commitmentColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err := r.db.Exec(ctx, q, c.ID, c.Organizer, c.Title, c.Description, c.AmountPerPerson, c.TotalParticipants,
		c.Deadline, c.EscrowAddress, c.EncryptedEscrowKey, c.Status, c.TotalLocked, c.ParticipantsLocked,
		c.ReleasedAt, c.ReleasedTxID, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create commitment: %w", err)
	}
	return nil
}

func (r *CommitmentRepository) GetByID(ctx context.Context, id string) (*PaymentCommitment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+commitmentColumns+` FROM payment_commitments WHERE id = $1`, id)
	c, err := scanCommitment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get commitment %s: %w", id, err)
	}
	return c, nil
}

// lockRow acquires the commitment's row lock for the duration of tx,
// returning the locked snapshot. Every multi-step commitment mutation
// starts here, per §5's row-lock serialization rule.
func lockRow(ctx context.Context, tx pgx.Tx, id string) (*PaymentCommitment, error) {
	row := tx.QueryRow(ctx, `SELECT `+commitmentColumns+` FROM payment_commitments WHERE id = $1 FOR UPDATE`, id)
	c, err := scanCommitment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock commitment %s: %w", id, err)
	}
	return c, nil
}

func (r *CommitmentRepository) GetParticipant(ctx context.Context, commitmentID, phone string) (*CommitmentParticipant, error) {
	const q = `SELECT id, commitment_id, phone, wallet_address, amount, status, lock_tx_id, release_tx_id,
		invited_at, locked_at, settled_at
		FROM commitment_participants WHERE commitment_id = $1 AND phone = $2`
	var p CommitmentParticipant
	err := r.db.QueryRow(ctx, q, commitmentID, phone).Scan(&p.ID, &p.CommitmentID, &p.Phone, &p.WalletAddress,
		&p.Amount, &p.Status, &p.LockTxID, &p.ReleaseTxID, &p.InvitedAt, &p.LockedAt, &p.SettledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return &p, nil
}

func (r *CommitmentRepository) ListParticipants(ctx context.Context, commitmentID string) ([]*CommitmentParticipant, error) {
	const q = `SELECT id, commitment_id, phone, wallet_address, amount, status, lock_tx_id, release_tx_id,
		invited_at, locked_at, settled_at
		FROM commitment_participants WHERE commitment_id = $1 ORDER BY invited_at`
	rows, err := r.db.Query(ctx, q, commitmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants for %s: %w", commitmentID, err)
	}
	defer rows.Close()

	var out []*CommitmentParticipant
	for rows.Next() {
		var p CommitmentParticipant
		if err := rows.Scan(&p.ID, &p.CommitmentID, &p.Phone, &p.WalletAddress, &p.Amount, &p.Status,
			&p.LockTxID, &p.ReleaseTxID, &p.InvitedAt, &p.LockedAt, &p.SettledAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// AddParticipant inserts an INVITED participant row if one doesn't
// already exist for (commitment, phone); idempotent per §4.13.
func (r *CommitmentRepository) AddParticipant(ctx context.Context, p *CommitmentParticipant) (*CommitmentParticipant, error) {
	existing, err := r.GetParticipant(ctx, p.CommitmentID, p.Phone)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	const q = `INSERT INTO commitment_participants
		(id, commitment_id, phone, wallet_address, amount, status, lock_tx_id, release_tx_id, invited_at, locked_at, settled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err = r.db.Exec(ctx, q, p.ID, p.CommitmentID, p.Phone, p.WalletAddress, p.Amount, p.Status,
		p.LockTxID, p.ReleaseTxID, p.InvitedAt, p.LockedAt, p.SettledAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add participant: %w", err)
	}
	return p, nil
}

// LockParticipant performs the atomic triple from §4.13's lock_funds:
// participant → LOCKED, commitment.participants_locked += 1,
// commitment.total_locked += amount. All inside one row-locked
// transaction so I1/I2 hold at the commit boundary.
func (r *CommitmentRepository) LockParticipant(ctx context.Context, db *DB, commitmentID, phone, lockTxID string, amount float64, lockedAt time.Time) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		c, err := lockRow(ctx, tx, commitmentID)
		if err != nil {
			return err
		}
		if c.Status != CommitmentActive {
			return ErrWrongState
		}

		const partQ = `UPDATE commitment_participants SET status = $3, lock_tx_id = $4, locked_at = $5
			WHERE commitment_id = $1 AND phone = $2 AND status = 'INVITED'`
		tag, err := tx.Exec(ctx, partQ, commitmentID, phone, ParticipantLocked, lockTxID, lockedAt)
		if err != nil {
			return fmt.Errorf("failed to lock participant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrWrongState
		}

		const commitQ = `UPDATE payment_commitments
			SET participants_locked = participants_locked + 1, total_locked = total_locked + $2
			WHERE id = $1 AND status = 'ACTIVE'`
		if _, err := tx.Exec(ctx, commitQ, commitmentID, amount); err != nil {
			return fmt.Errorf("failed to update commitment totals: %w", err)
		}
		return nil
	})
}

// ReleaseResult is the set of participants settled by Release, used by
// the service layer to drive reliability-score updates and
// notifications outside the transaction.
type ReleaseResult struct {
	Released []*CommitmentParticipant
	Missed   []*CommitmentParticipant
}

// Release performs release_commitment's atomic update: commitment →
// COMPLETED, every LOCKED participant → RELEASED, every INVITED
// participant → MISSED. Returns ErrWrongState if the commitment is not
// ACTIVE (idempotent-by-status, per §8's round-trip law).
func (r *CommitmentRepository) Release(ctx context.Context, db *DB, commitmentID, releasedTxID string, releasedAt time.Time) (*ReleaseResult, error) {
	var result ReleaseResult
	err := db.WithTx(ctx, func(tx pgx.Tx) error {
		c, err := lockRow(ctx, tx, commitmentID)
		if err != nil {
			return err
		}
		if c.Status != CommitmentActive {
			return ErrWrongState
		}

		participants, err := listParticipantsInTx(ctx, tx, commitmentID)
		if err != nil {
			return err
		}
		for _, p := range participants {
			switch p.Status {
			case ParticipantLocked:
				result.Released = append(result.Released, p)
			case ParticipantInvited:
				result.Missed = append(result.Missed, p)
			}
		}

		const releaseLocked = `UPDATE commitment_participants SET status = 'RELEASED', release_tx_id = $2, settled_at = $3
			WHERE commitment_id = $1 AND status = 'LOCKED'`
		if _, err := tx.Exec(ctx, releaseLocked, commitmentID, releasedTxID, releasedAt); err != nil {
			return fmt.Errorf("failed to release locked participants: %w", err)
		}

		const missInvited = `UPDATE commitment_participants SET status = 'MISSED', settled_at = $2
			WHERE commitment_id = $1 AND status = 'INVITED'`
		if _, err := tx.Exec(ctx, missInvited, commitmentID, releasedAt); err != nil {
			return fmt.Errorf("failed to mark invited participants missed: %w", err)
		}

		const commitQ = `UPDATE payment_commitments SET status = 'COMPLETED', released_at = $2, released_tx_id = $3
			WHERE id = $1 AND status = 'ACTIVE'`
		if _, err := tx.Exec(ctx, commitQ, commitmentID, releasedAt, releasedTxID); err != nil {
			return fmt.Errorf("failed to complete commitment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Cancel performs cancel_commitment's atomic update after refunds have
// been submitted on the ledger: commitment → CANCELED, each
// successfully-refunded participant → REFUNDED. refunds maps the phone of
// each participant whose refund transfer succeeded to its refund tx id;
// participants
// whose refund failed keep their LOCKED status (§4.13's "per-participant
// errors ... do not abort the batch").
func (r *CommitmentRepository) Cancel(ctx context.Context, db *DB, commitmentID string, refunds map[string]string, settledAt time.Time) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		c, err := lockRow(ctx, tx, commitmentID)
		if err != nil {
			return err
		}
		if c.Status != CommitmentActive {
			return ErrWrongState
		}

		for phone, releaseTxID := range refunds {
			const q = `UPDATE commitment_participants SET status = 'REFUNDED', release_tx_id = $3, settled_at = $4
				WHERE commitment_id = $1 AND phone = $2 AND status = 'LOCKED'`
			if _, err := tx.Exec(ctx, q, commitmentID, phone, releaseTxID, settledAt); err != nil {
				return fmt.Errorf("failed to mark participant refunded: %w", err)
			}
		}

		const commitQ = `UPDATE payment_commitments SET status = 'CANCELED' WHERE id = $1 AND status = 'ACTIVE'`
		if _, err := tx.Exec(ctx, commitQ, commitmentID); err != nil {
			return fmt.Errorf("failed to cancel commitment: %w", err)
		}
		return nil
	})
}

// MarkExpired transitions an ACTIVE commitment past its deadline (with
// no successful release) to EXPIRED, per the Open Question resolution in
// §9: the engine never does this autonomously, a caller must.
func (r *CommitmentRepository) MarkExpired(ctx context.Context, commitmentID string) error {
	const q = `UPDATE payment_commitments SET status = 'EXPIRED' WHERE id = $1 AND status = 'ACTIVE'`
	tag, err := r.db.Exec(ctx, q, commitmentID)
	if err != nil {
		return fmt.Errorf("failed to expire commitment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWrongState
	}
	return nil
}

func listParticipantsInTx(ctx context.Context, tx pgx.Tx, commitmentID string) ([]*CommitmentParticipant, error) {
	const q = `SELECT id, commitment_id, phone, wallet_address, amount, status, lock_tx_id, release_tx_id,
		invited_at, locked_at, settled_at
		FROM commitment_participants WHERE commitment_id = $1`
	rows, err := tx.Query(ctx, q, commitmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants in tx: %w", err)
	}
	defer rows.Close()

	var out []*CommitmentParticipant
	for rows.Next() {
		var p CommitmentParticipant
		if err := rows.Scan(&p.ID, &p.CommitmentID, &p.Phone, &p.WalletAddress, &p.Amount, &p.Status,
			&p.LockTxID, &p.ReleaseTxID, &p.InvitedAt, &p.LockedAt, &p.SettledAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// ListActivePastDeadline returns ACTIVE commitments whose deadline has
// passed, for the external deadline scheduler to drive.
func (r *CommitmentRepository) ListActivePastDeadline(ctx context.Context, now time.Time) ([]*PaymentCommitment, error) {
	const q = `SELECT ` + commitmentColumns + ` FROM payment_commitments WHERE status = 'ACTIVE' AND deadline < $1`
	rows, err := r.db.Query(ctx, q, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired commitments: %w", err)
	}
	defer rows.Close()

	var out []*PaymentCommitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan commitment row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
