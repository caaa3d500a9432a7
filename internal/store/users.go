package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("store: entity not found")
var ErrAlreadyExists = errors.New("store: entity already exists")

// UserRepository persists custodial accounts.
type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db.pool}
}

func (r *UserRepository) Create(ctx context.Context, u *User) error {
	const q = `INSERT INTO users (phone, address, encrypted_secret, display_name, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Exec(ctx, q, u.Phone, u.Address, u.EncryptedSecret, u.DisplayName, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*User, error) {
	const q = `SELECT phone, address, encrypted_secret, display_name, created_at
		FROM users WHERE phone = $1`
	var u User
	err := r.db.QueryRow(ctx, q, phone).Scan(&u.Phone, &u.Address, &u.EncryptedSecret, &u.DisplayName, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", phone, err)
	}
	return &u, nil
}

func (r *UserRepository) Exists(ctx context.Context, phone string) (bool, error) {
	const q = `SELECT 1 FROM users WHERE phone = $1`
	var one int
	err := r.db.QueryRow(ctx, q, phone).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check user existence %s: %w", phone, err)
	}
	return true, nil
}

// ContactRepository persists per-user nickname mappings.
type ContactRepository struct {
	db *pgxpool.Pool
}

func NewContactRepository(db *DB) *ContactRepository {
	return &ContactRepository{db: db.pool}
}

func (r *ContactRepository) Upsert(ctx context.Context, c *Contact) error {
	const q = `INSERT INTO contacts (id, owner_phone, nickname_lower, contact_phone, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_phone, nickname_lower)
		DO UPDATE SET contact_phone = EXCLUDED.contact_phone`
	_, err := r.db.Exec(ctx, q, c.ID, c.OwnerPhone, c.NicknameLower, c.ContactPhone, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}
	return nil
}

func (r *ContactRepository) Resolve(ctx context.Context, ownerPhone, nicknameLower string) (*Contact, error) {
	const q = `SELECT id, owner_phone, nickname_lower, contact_phone, created_at
		FROM contacts WHERE owner_phone = $1 AND nickname_lower = $2`
	var c Contact
	err := r.db.QueryRow(ctx, q, ownerPhone, nicknameLower).Scan(&c.ID, &c.OwnerPhone, &c.NicknameLower, &c.ContactPhone, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve contact: %w", err)
	}
	return &c, nil
}

func (r *ContactRepository) ListByOwner(ctx context.Context, ownerPhone string) ([]*Contact, error) {
	const q = `SELECT id, owner_phone, nickname_lower, contact_phone, created_at
		FROM contacts WHERE owner_phone = $1 ORDER BY nickname_lower`
	rows, err := r.db.Query(ctx, q, ownerPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts for %s: %w", ownerPhone, err)
	}
	defer rows.Close()

	var out []*Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.OwnerPhone, &c.NicknameLower, &c.ContactPhone, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contact row: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
