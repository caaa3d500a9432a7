package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepository persists ticketed events.
type EventRepository struct {
	db *pgxpool.Pool
}

func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db.pool}
}

const eventColumns = `id, name, category, venue, date, ticket_price, total_capacity, tickets_sold, is_active`

func (r *EventRepository) GetByName(ctx context.Context, name string) (*Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE name = $1`
	var e Event
	err := r.db.QueryRow(ctx, q, name).Scan(&e.ID, &e.Name, &e.Category, &e.Venue, &e.Date, &e.TicketPrice, &e.TotalCapacity, &e.TicketsSold, &e.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event %s: %w", name, err)
	}
	return &e, nil
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	var e Event
	err := r.db.QueryRow(ctx, q, id).Scan(&e.ID, &e.Name, &e.Category, &e.Venue, &e.Date, &e.TicketPrice, &e.TotalCapacity, &e.TicketsSold, &e.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event %s: %w", id, err)
	}
	return &e, nil
}

func (r *EventRepository) ListActive(ctx context.Context) ([]*Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE is_active = true ORDER BY date`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Category, &e.Venue, &e.Date, &e.TicketPrice, &e.TotalCapacity, &e.TicketsSold, &e.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ErrSoldOut is returned by IncrementTicketsSold once capacity is reached.
var ErrSoldOut = errors.New("store: event is sold out")

// IncrementTicketsSold atomically bumps tickets_sold, refusing once the
// event is at capacity, per §4.11's "Increment Event.tickets_sold
// atomically".
func (r *EventRepository) IncrementTicketsSold(ctx context.Context, eventID string) error {
	const q = `UPDATE events SET tickets_sold = tickets_sold + 1
		WHERE id = $1 AND tickets_sold < total_capacity`
	tag, err := r.db.Exec(ctx, q, eventID)
	if err != nil {
		return fmt.Errorf("failed to increment tickets sold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSoldOut
	}
	return nil
}

// TicketRepository persists NFT-backed event tickets.
type TicketRepository struct {
	db *pgxpool.Pool
}

func NewTicketRepository(db *DB) *TicketRepository {
	return &TicketRepository{db: db.pool}
}

const ticketColumns = `id, owner, event_id, event_name, asset_id, ticket_number, is_valid, is_used, used_at, created_at`

func (r *TicketRepository) Create(ctx context.Context, t *Ticket) error {
	const q = `INSERT INTO tickets (` + ticketColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.db.Exec(ctx, q, t.ID, t.Owner, t.EventID, t.EventName, t.AssetID, t.TicketNumber, t.IsValid, t.IsUsed, t.UsedAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

func (r *TicketRepository) GetByNumber(ctx context.Context, ticketNumber string) (*Ticket, error) {
	const q = `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_number = $1`
	var t Ticket
	err := r.db.QueryRow(ctx, q, ticketNumber).Scan(&t.ID, &t.Owner, &t.EventID, &t.EventName, &t.AssetID, &t.TicketNumber, &t.IsValid, &t.IsUsed, &t.UsedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ticket %s: %w", ticketNumber, err)
	}
	return &t, nil
}

func (r *TicketRepository) ListByOwner(ctx context.Context, owner string) ([]*Ticket, error) {
	const q = `SELECT ` + ticketColumns + ` FROM tickets WHERE owner = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, q, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets for %s: %w", owner, err)
	}
	defer rows.Close()

	var out []*Ticket
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(&t.ID, &t.Owner, &t.EventID, &t.EventName, &t.AssetID, &t.TicketNumber, &t.IsValid, &t.IsUsed, &t.UsedAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ticket row: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// MarkUsed is idempotent once: the second call affects zero rows and
// returns ErrAlreadyExists so the service can surface a StateError.
func (r *TicketRepository) MarkUsed(ctx context.Context, ticketNumber string, usedAt time.Time) error {
	const q = `UPDATE tickets SET is_used = true, used_at = $2
		WHERE ticket_number = $1 AND is_used = false`
	tag, err := r.db.Exec(ctx, q, ticketNumber, usedAt)
	if err != nil {
		return fmt.Errorf("failed to mark ticket used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}
