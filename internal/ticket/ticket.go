// Package ticket is the Ticket Service from spec §4.11: a ticket is an
// NFT ASA minted at purchase time and transferred to the buyer, with a
// Postgres row tracking its validity and redemption state. Grounded in
// the gift-card teacher's CreateNFT/TransferAsset usage and
// store.TicketRepository/EventRepository.
package ticket

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatpay-core/internal/apperr"
	"chatpay-core/internal/ledger"
	"chatpay-core/internal/store"
	"chatpay-core/internal/wallet"
)

type Service struct {
	events  *store.EventRepository
	tickets *store.TicketRepository
	wallet  *wallet.Service
	ledgerA ledger.Adapter
}

func NewService(events *store.EventRepository, tickets *store.TicketRepository, w *wallet.Service, adapter ledger.Adapter) *Service {
	return &Service{events: events, tickets: tickets, wallet: w, ledgerA: adapter}
}

// Purchase resolves eventIdentifier (by ID or name), checks that buyer's
// balance covers ticket_price+fee, mints a one-of-one NFT, and records the
// Ticket row. No transfer of the ticket price is made.
func (s *Service) Purchase(ctx context.Context, buyer, eventIdentifier string) (*store.Ticket, *store.Event, error) {
	event, err := s.resolveEvent(ctx, eventIdentifier)
	if err != nil {
		return nil, nil, err
	}
	if event.TicketsSold >= event.TotalCapacity || !event.IsActive {
		return nil, nil, apperr.Statef("event %s is sold out", event.Name)
	}

	bal, err := s.wallet.Balance(ctx, buyer)
	if err != nil {
		return nil, nil, err
	}
	if bal < event.TicketPrice+ledger.Fee {
		return nil, nil, apperr.InsufficientBalance("balance %.6f is less than %.6f (ticket price + fee)", bal, event.TicketPrice+ledger.Fee)
	}

	buyerAccount, err := s.wallet.GetOrCreate(ctx, buyer)
	if err != nil {
		return nil, nil, err
	}
	secret, err := s.wallet.Secret(ctx, buyer)
	if err != nil {
		return nil, nil, err
	}

	assetID, err := s.ledgerA.CreateNFT(ctx, secret, event.Name, ticketUnit(event.Name), 1, "")
	if err != nil {
		return nil, nil, classifyLedgerErr(err)
	}
	if _, err := s.ledgerA.OptInAsset(ctx, secret, assetID); err != nil {
		return nil, nil, classifyLedgerErr(err)
	}
	if _, err := s.ledgerA.TransferAsset(ctx, secret, buyerAccount.Address, assetID, 1); err != nil {
		return nil, nil, classifyLedgerErr(err)
	}

	ticket := &store.Ticket{
		ID:           uuid.New().String(),
		Owner:        buyer,
		EventID:      event.ID,
		EventName:    event.Name,
		AssetID:      assetID,
		TicketNumber: ticketNumber(event.Name),
		IsValid:      true,
		CreatedAt:    time.Now(),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, nil, apperr.Wrap(err)
	}
	if err := s.events.IncrementTicketsSold(ctx, event.ID); err != nil {
		return nil, nil, apperr.Wrap(err)
	}
	event.TicketsSold++
	return ticket, event, nil
}

// Verify reports whether ticketNumber is a live, unused, on-ledger-held
// ticket, per spec §4.11's verify() semantics.
func (s *Service) Verify(ctx context.Context, ticketNumber string) (bool, *store.Ticket, error) {
	t, err := s.tickets.GetByNumber(ctx, ticketNumber)
	if err != nil {
		if err == store.ErrNotFound {
			return false, nil, nil
		}
		return false, nil, apperr.Wrap(err)
	}
	if !t.IsValid || t.IsUsed {
		return false, t, nil
	}

	owner, err := s.wallet.GetOrCreate(ctx, t.Owner)
	if err != nil {
		return false, t, err
	}
	holdings, err := s.ledgerA.AccountAssets(ctx, owner.Address)
	if err != nil {
		return false, t, classifyLedgerErr(err)
	}
	for _, h := range holdings {
		if h.AssetID == t.AssetID && h.Amount > 0 {
			return true, t, nil
		}
	}
	return false, t, nil
}

func (s *Service) MarkUsed(ctx context.Context, ticketNumber string) error {
	if err := s.tickets.MarkUsed(ctx, ticketNumber, time.Now()); err != nil {
		if err == store.ErrAlreadyExists {
			return apperr.Statef("ticket %s was already used", ticketNumber)
		}
		return apperr.Wrap(err)
	}
	return nil
}

func (s *Service) ListMine(ctx context.Context, owner string) ([]*store.Ticket, error) {
	out, err := s.tickets.ListByOwner(ctx, owner)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return out, nil
}

func (s *Service) ListActiveEvents(ctx context.Context) ([]*store.Event, error) {
	out, err := s.events.ListActive(ctx)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return out, nil
}

func (s *Service) resolveEvent(ctx context.Context, identifier string) (*store.Event, error) {
	if e, err := s.events.GetByID(ctx, identifier); err == nil {
		return e, nil
	}
	e, err := s.events.GetByName(ctx, identifier)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperr.NotFoundf("no event %q", identifier)
		}
		return nil, apperr.Wrap(err)
	}
	return e, nil
}

// ticketNumber mints upper(event_name[:3])-hex12, per spec §4.11.
func ticketNumber(eventName string) string {
	prefix := strings.ToUpper(eventName)
	prefix = strings.ReplaceAll(prefix, " ", "")
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return prefix + "-" + hex.EncodeToString(buf)
}

func ticketUnit(eventName string) string {
	u := strings.ToUpper(eventName)
	u = strings.ReplaceAll(u, " ", "")
	if len(u) > 8 {
		u = u[:8]
	}
	return u + "TKT"
}

func classifyLedgerErr(err error) error {
	if ae, ok := apperr.As(err); ok {
		return ae
	}
	return apperr.LedgerTransient(err)
}
