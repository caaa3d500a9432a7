// Package split is the Split Bill Service from spec §4.10: an initiator
// creates a bill with one share per participant, each participant pays
// their own share as an ordinary ledger send, and the bill completes
// automatically once every non-initiator share is paid. Grounded in
// store.SplitRepository's CreateWithPayments/MarkPaidAndMaybeComplete and
// payment.Service's send flow.
package split

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chatpay-core/internal/apperr"
	"chatpay-core/internal/notify"
	"chatpay-core/internal/payment"
	"chatpay-core/internal/store"
)

type Service struct {
	repo     *store.SplitRepository
	db       *store.DB
	payments *payment.Service
	notifier *notify.Dispatcher
}

func NewService(repo *store.SplitRepository, db *store.DB, payments *payment.Service, notifier *notify.Dispatcher) *Service {
	return &Service{repo: repo, db: db, payments: payments, notifier: notifier}
}

// Create splits totalAmount evenly across the initiator plus every
// named participant (the initiator is always a participant per spec
// §4.10; duplicates are removed so N is the distinct-participant count)
// and notifies everyone but the initiator.
func (s *Service) Create(ctx context.Context, initiator, description string, totalAmount float64, participants []string) (*store.SplitBill, error) {
	all := dedupeWithInitiator(initiator, participants)
	if len(all) == 0 {
		return nil, apperr.Validationf("a split needs at least one participant")
	}
	share := totalAmount / float64(len(all))

	bill := &store.SplitBill{
		ID:          uuid.New().String(),
		Initiator:   initiator,
		TotalAmount: totalAmount,
		Description: description,
		Status:      store.SplitPending,
		CreatedAt:   time.Now(),
	}
	payments := make([]*store.SplitPayment, 0, len(all))
	for _, p := range all {
		payments = append(payments, &store.SplitPayment{
			ID:          uuid.New().String(),
			SplitBillID: bill.ID,
			Participant: p,
			Amount:      share,
		})
	}

	if err := s.repo.CreateWithPayments(ctx, s.db, bill, payments); err != nil {
		return nil, apperr.Wrap(err)
	}

	for _, p := range all {
		if p == initiator {
			continue
		}
		s.notifier.Send(ctx, p, renderInvite(bill, share))
	}
	return bill, nil
}

// dedupeWithInitiator returns initiator plus the distinct entries of
// participants, initiator first and in first-seen order otherwise.
func dedupeWithInitiator(initiator string, participants []string) []string {
	seen := map[string]bool{initiator: true}
	out := []string{initiator}
	for _, p := range participants {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// PayShare settles participant's share of splitBillID by sending it to
// the initiator, then marks the share paid and completes the bill once
// every non-initiator share has settled (spec §4.5 atomicity rule).
func (s *Service) PayShare(ctx context.Context, splitBillID, participant string) error {
	bill, err := s.repo.GetBill(ctx, splitBillID)
	if err != nil {
		if err == store.ErrNotFound {
			return apperr.NotFoundf("no split bill %s", splitBillID)
		}
		return apperr.Wrap(err)
	}
	if bill.Status != store.SplitPending {
		return apperr.Statef("split bill %s is %s, not PENDING", splitBillID, bill.Status)
	}

	share, err := s.repo.GetPayment(ctx, splitBillID, participant)
	if err != nil {
		if err == store.ErrNotFound {
			return apperr.NotFoundf("%s is not a participant of split %s", participant, splitBillID)
		}
		return apperr.Wrap(err)
	}
	if share.IsPaid {
		return apperr.Statef("%s already paid their share of split %s", participant, splitBillID)
	}

	tx, err := s.payments.Send(ctx, participant, bill.Initiator, share.Amount, "split:"+splitBillID)
	if err != nil {
		return err
	}

	completed, err := s.repo.MarkPaidAndMaybeComplete(ctx, s.db, splitBillID, participant, *tx.TxID, time.Now())
	if err != nil {
		return apperr.Wrap(err)
	}
	if completed {
		s.notifier.Send(ctx, bill.Initiator, renderCompleted(bill))
	}
	return nil
}

// Status is the read-only aggregate behind VIEW_SPLIT: the bill plus
// its per-participant shares.
type Status struct {
	Bill     *store.SplitBill
	Payments []*store.SplitPayment
}

func (s *Service) GetStatus(ctx context.Context, splitBillID string) (*Status, error) {
	bill, err := s.repo.GetBill(ctx, splitBillID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperr.NotFoundf("no split bill %s", splitBillID)
		}
		return nil, apperr.Wrap(err)
	}
	payments, err := s.repo.ListPayments(ctx, splitBillID)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return &Status{Bill: bill, Payments: payments}, nil
}

func (s *Service) ListMine(ctx context.Context, initiator string) ([]*store.SplitBill, error) {
	out, err := s.repo.ListByInitiator(ctx, initiator)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return out, nil
}

func renderInvite(bill *store.SplitBill, share float64) string {
	return fmt.Sprintf("you've been added to a split bill %q — your share is %.6f", bill.Description, share)
}

func renderCompleted(bill *store.SplitBill) string {
	return fmt.Sprintf("your split bill %q is fully paid", bill.Description)
}
