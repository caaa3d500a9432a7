// Package contact maps per-user nicknames to phone numbers, so a payer
// can write "pay 5 to mom" instead of a phone number. Grounded in
// store.ContactRepository and the router's need (spec §4.14) to resolve
// a PAY command's receiver_raw before it reaches the payment service.
package contact

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"chatpay-core/internal/apperr"
	"chatpay-core/internal/store"
)

type Service struct {
	contacts *store.ContactRepository
}

func NewService(contacts *store.ContactRepository) *Service {
	return &Service{contacts: contacts}
}

// Save records or updates a nickname for ownerPhone, per spec §4.4's
// Contact model (nickname lowercased for lookup).
func (s *Service) Save(ctx context.Context, ownerPhone, nickname, contactPhone string) (*store.Contact, error) {
	c := &store.Contact{
		ID:            uuid.New().String(),
		OwnerPhone:    ownerPhone,
		NicknameLower: strings.ToLower(strings.TrimSpace(nickname)),
		ContactPhone:  contactPhone,
	}
	if c.NicknameLower == "" {
		return nil, apperr.Validationf("nickname must not be empty")
	}
	if err := s.contacts.Upsert(ctx, c); err != nil {
		return nil, apperr.Wrap(err)
	}
	return c, nil
}

// Resolve looks up ownerPhone's contact book for nickname. Returns
// apperr.NotFound if ownerPhone has no contact by that name.
func (s *Service) Resolve(ctx context.Context, ownerPhone, nickname string) (*store.Contact, error) {
	c, err := s.contacts.Resolve(ctx, ownerPhone, strings.ToLower(strings.TrimSpace(nickname)))
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperr.NotFoundf("no contact named %q", nickname)
		}
		return nil, apperr.Wrap(err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, ownerPhone string) ([]*store.Contact, error) {
	out, err := s.contacts.ListByOwner(ctx, ownerPhone)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return out, nil
}

// ResolveReceiver implements the PAY command's receiver_raw resolution
// order from spec §4.6: a leading '+' is a phone, a 58-char token is a
// ledger address, anything else is looked up in ownerPhone's contacts.
func (s *Service) ResolveReceiver(ctx context.Context, ownerPhone, raw string) (phone, address string, err error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(trimmed, "+"):
		return trimmed, "", nil
	case len(trimmed) == 58:
		return "", strings.ToUpper(trimmed), nil
	default:
		c, rerr := s.Resolve(ctx, ownerPhone, trimmed)
		if rerr != nil {
			return "", "", rerr
		}
		return c.ContactPhone, "", nil
	}
}
