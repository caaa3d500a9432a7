// Package fund is the Fund Service from spec §4.12: a creator opens a
// campaign with a goal and deadline, contributors pay the creator
// directly over the ledger, and the campaign's running total and
// goal-met latch update atomically alongside each contribution. Grounded
// in store.FundRepository.Contribute and payment.Service's send flow.
package fund

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chatpay-core/internal/apperr"
	"chatpay-core/internal/notify"
	"chatpay-core/internal/payment"
	"chatpay-core/internal/store"
)

// DefaultDeadlineHours matches spec §4.12's default campaign duration.
const DefaultDeadlineHours = 168

type Service struct {
	repo     *store.FundRepository
	db       *store.DB
	payments *payment.Service
	notifier *notify.Dispatcher
}

func NewService(repo *store.FundRepository, db *store.DB, payments *payment.Service, notifier *notify.Dispatcher) *Service {
	return &Service{repo: repo, db: db, payments: payments, notifier: notifier}
}

// Create opens a new campaign. deadlineHours <= 0 defaults to 168
// (spec §4.12's "default 168").
func (s *Service) Create(ctx context.Context, creator, title string, goalAmount float64, deadlineHours int) (*store.Fund, error) {
	if goalAmount <= 0 {
		return nil, apperr.Validationf("fund goal must be greater than zero")
	}
	if deadlineHours <= 0 {
		deadlineHours = DefaultDeadlineHours
	}

	f := &store.Fund{
		ID:         uuid.New().String(),
		Creator:    creator,
		Title:      title,
		GoalAmount: goalAmount,
		IsActive:   true,
		Deadline:   time.Now().Add(time.Duration(deadlineHours) * time.Hour),
		CreatedAt:  time.Now(),
	}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, apperr.Wrap(err)
	}
	return f, nil
}

// Contribute pays amount from contributor to fundID's creator and records
// the contribution, rejecting inactive or expired campaigns.
func (s *Service) Contribute(ctx context.Context, fundID, contributor string, amount float64) (*store.Fund, error) {
	f, err := s.repo.GetByID(ctx, fundID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperr.NotFoundf("no fund %s", fundID)
		}
		return nil, apperr.Wrap(err)
	}
	if !f.IsActive {
		return nil, apperr.Statef("fund %s is no longer active", fundID)
	}
	if time.Now().After(f.Deadline) {
		return nil, apperr.Statef("fund %s's deadline has passed", fundID)
	}
	if amount <= 0 {
		return nil, apperr.Validationf("contribution amount must be greater than zero")
	}

	tx, err := s.payments.Send(ctx, contributor, f.Creator, amount, "fund:"+fundID)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.Contribute(ctx, s.db, &store.FundContribution{
		ID:          uuid.New().String(),
		FundID:      fundID,
		Contributor: contributor,
		Amount:      amount,
		TxID:        *tx.TxID,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if updated.IsGoalMet && !f.IsGoalMet {
		s.notifier.Send(ctx, f.Creator, "your fund \""+f.Title+"\" has reached its goal")
	}
	return updated, nil
}

func (s *Service) ListActive(ctx context.Context) ([]*store.Fund, error) {
	out, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return out, nil
}

func (s *Service) GetByID(ctx context.Context, fundID string) (*store.Fund, error) {
	f, err := s.repo.GetByID(ctx, fundID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperr.NotFoundf("no fund %s", fundID)
		}
		return nil, apperr.Wrap(err)
	}
	return f, nil
}
