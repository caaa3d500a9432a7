// Package commitment is the Commitment Escrow Engine from spec §4.13,
// the hardest subsystem: a fresh ledger account custodies every
// commitment's pooled funds, participants lock their stake into it, and
// the organizer collects the pool (or participants are refunded) once
// the commitment settles. Every multi-row mutation is grounded in
// store.CommitmentRepository's row-locked transactions; this package
// owns only the ledger calls and reliability/notification side effects
// those transactions can't perform for themselves.
package commitment

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"chatpay-core/internal/apperr"
	"chatpay-core/internal/audit"
	"chatpay-core/internal/crypto"
	"chatpay-core/internal/ledger"
	"chatpay-core/internal/notify"
	"chatpay-core/internal/store"
	"chatpay-core/internal/wallet"
)

type Service struct {
	repo        *store.CommitmentRepository
	reliability *store.ReliabilityRepository
	db          *store.DB
	wallet      *wallet.Service
	ledgerA     ledger.Adapter
	box         *crypto.Box
	notifier    *notify.Dispatcher
	audit       *audit.Logger
}

// WithAudit attaches the audit logger so commitment lifecycle events
// (create/release/cancel) are recorded for support/compliance lookup.
// Optional: nil leaves those events unrecorded.
func (s *Service) WithAudit(a *audit.Logger) *Service {
	s.audit = a
	return s
}

func (s *Service) record(ctx context.Context, actor, action, commitmentID, detail string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, actor, action, "commitment", commitmentID, detail, "")
}

func NewService(
	repo *store.CommitmentRepository,
	reliability *store.ReliabilityRepository,
	db *store.DB,
	w *wallet.Service,
	adapter ledger.Adapter,
	box *crypto.Box,
	notifier *notify.Dispatcher,
) *Service {
	return &Service{repo: repo, reliability: reliability, db: db, wallet: w, ledgerA: adapter, box: box, notifier: notifier}
}

// Create derives a fresh escrow account and persists a new ACTIVE
// commitment, per spec §4.13's create_commitment preconditions.
func (s *Service) Create(ctx context.Context, organizer, title, description string, amountPerPerson float64, totalParticipants int, deadline time.Time) (*store.PaymentCommitment, error) {
	if _, err := s.wallet.GetOrCreate(ctx, organizer); err != nil {
		return nil, err
	}
	if amountPerPerson <= 0 {
		return nil, apperr.Validationf("amount_per_person must be greater than zero")
	}
	if totalParticipants < 1 {
		return nil, apperr.Validationf("total_participants must be at least 1")
	}
	if !deadline.After(time.Now()) {
		return nil, apperr.Validationf("deadline must be in the future")
	}

	escrow, err := s.ledgerA.DeriveAccount(ctx)
	if err != nil {
		return nil, classifyLedgerErr(err)
	}
	encryptedKey, err := s.box.Encrypt(escrow.Secret)
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	c := &store.PaymentCommitment{
		ID:                 uuid.New().String(),
		Organizer:          organizer,
		Title:              title,
		Description:        description,
		AmountPerPerson:    amountPerPerson,
		TotalParticipants:  totalParticipants,
		Deadline:           deadline,
		EscrowAddress:      escrow.Address,
		EncryptedEscrowKey: encryptedKey,
		Status:             store.CommitmentActive,
		CreatedAt:          time.Now(),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, apperr.Wrap(err)
	}
	s.record(ctx, organizer, "commitment.create", c.ID, c.Title)
	return c, nil
}

// AddParticipant invites phone to commitmentID, auto-creating their
// wallet if absent so wallet_address is known up front. Idempotent.
func (s *Service) AddParticipant(ctx context.Context, commitmentID, phone string) (*store.CommitmentParticipant, error) {
	c, err := s.repo.GetByID(ctx, commitmentID)
	if err != nil {
		return nil, notFoundOrWrap(err, "commitment", commitmentID)
	}
	if c.Status != store.CommitmentActive {
		return nil, apperr.Statef("commitment %s is %s, not ACTIVE", commitmentID, c.Status)
	}
	if !time.Now().Before(c.Deadline) {
		return nil, apperr.Statef("commitment %s is past its deadline", commitmentID)
	}

	user, err := s.wallet.GetOrCreate(ctx, phone)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.AddParticipant(ctx, &store.CommitmentParticipant{
		ID:            uuid.New().String(),
		CommitmentID:  commitmentID,
		Phone:         phone,
		WalletAddress: user.Address,
		Amount:        c.AmountPerPerson,
		Status:        store.ParticipantInvited,
		InvitedAt:     time.Now(),
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return p, nil
}

// LockFunds transfers participantPhone's stake to commitmentID's escrow
// account and records it, per spec §4.13's lock_funds.
func (s *Service) LockFunds(ctx context.Context, commitmentID, participantPhone string) error {
	c, err := s.repo.GetByID(ctx, commitmentID)
	if err != nil {
		return notFoundOrWrap(err, "commitment", commitmentID)
	}
	if c.Status != store.CommitmentActive {
		return apperr.Statef("commitment %s is %s, not ACTIVE", commitmentID, c.Status)
	}
	if !time.Now().Before(c.Deadline) {
		return apperr.Statef("commitment %s is past its deadline", commitmentID)
	}

	if _, err := s.AddParticipant(ctx, commitmentID, participantPhone); err != nil {
		return err
	}
	participant, err := s.repo.GetParticipant(ctx, commitmentID, participantPhone)
	if err != nil {
		return notFoundOrWrap(err, "participant", participantPhone)
	}
	if participant.Status != store.ParticipantInvited {
		return apperr.Statef("%s already %s on commitment %s", participantPhone, participant.Status, commitmentID)
	}

	bal, err := s.wallet.Balance(ctx, participantPhone)
	if err != nil {
		return err
	}
	if bal < c.AmountPerPerson+ledger.Fee {
		return apperr.InsufficientBalance("balance %.6f is less than %.6f (amount + fee)", bal, c.AmountPerPerson+ledger.Fee)
	}

	secret, err := s.wallet.Secret(ctx, participantPhone)
	if err != nil {
		return err
	}

	txID, err := s.ledgerA.SendPayment(ctx, secret, c.EscrowAddress, c.AmountPerPerson, "commitment-lock:"+commitmentID)
	if err != nil {
		return classifyLedgerErr(err)
	}

	if err := s.repo.LockParticipant(ctx, s.db, commitmentID, participantPhone, txID, c.AmountPerPerson, time.Now()); err != nil {
		if err == store.ErrWrongState {
			return apperr.Statef("commitment %s could not accept the lock (state changed concurrently)", commitmentID)
		}
		return apperr.Wrap(err)
	}

	if err := s.reliability.RecordLocked(ctx, participantPhone); err != nil {
		return apperr.Wrap(err)
	}

	updated, err := s.repo.GetByID(ctx, commitmentID)
	if err == nil {
		s.notifier.Send(ctx, c.Organizer, progressMessage(updated))
	}
	return nil
}

// Release settles commitmentID: the escrow balance (minus the release
// fee) goes to the organizer, LOCKED participants become RELEASED,
// INVITED participants become MISSED, per spec §4.13's release_commitment.
func (s *Service) Release(ctx context.Context, commitmentID string) error {
	c, err := s.repo.GetByID(ctx, commitmentID)
	if err != nil {
		return notFoundOrWrap(err, "commitment", commitmentID)
	}
	if c.Status != store.CommitmentActive {
		return apperr.Statef("commitment %s is %s, not ACTIVE", commitmentID, c.Status)
	}

	escrowSecret, err := s.box.Decrypt(c.EncryptedEscrowKey)
	if err != nil {
		return apperr.Wrap(err)
	}
	escrowBalance, err := s.ledgerA.Balance(ctx, c.EscrowAddress)
	if err != nil {
		return classifyLedgerErr(err)
	}
	releaseAmount := escrowBalance - ledger.Fee
	if releaseAmount <= 0 {
		return apperr.Statef("commitment %s has no releasable escrow balance", commitmentID)
	}

	organizer, err := s.wallet.GetOrCreate(ctx, c.Organizer)
	if err != nil {
		return err
	}
	txID, err := s.ledgerA.SendPayment(ctx, escrowSecret, organizer.Address, releaseAmount, "commitment-release:"+commitmentID)
	if err != nil {
		return classifyLedgerErr(err)
	}

	result, err := s.repo.Release(ctx, s.db, commitmentID, txID, time.Now())
	if err != nil {
		if err == store.ErrWrongState {
			return apperr.Statef("commitment %s was already settled", commitmentID)
		}
		return apperr.Wrap(err)
	}

	for _, p := range result.Released {
		if rerr := s.reliability.RecordReleased(ctx, p.Phone); rerr != nil {
			return apperr.Wrap(rerr)
		}
		s.notifier.Send(ctx, p.Phone, "your locked funds for \""+c.Title+"\" were released to the organizer")
	}
	for _, p := range result.Missed {
		if rerr := s.reliability.RecordMissed(ctx, p.Phone); rerr != nil {
			return apperr.Wrap(rerr)
		}
		s.notifier.Send(ctx, p.Phone, "you missed locking funds for \""+c.Title+"\" before the deadline")
	}
	s.notifier.Send(ctx, c.Organizer, "commitment \""+c.Title+"\" has settled")
	s.record(ctx, c.Organizer, "commitment.release", commitmentID, txID)
	return nil
}

// Cancel refunds every LOCKED participant from escrow and marks the
// commitment CANCELED. Only the recorded organizer may call this.
// A failed per-participant refund is skipped rather than aborting the
// whole batch: the organizer gets a notification naming that participant,
// whose row stays LOCKED. The error itself is not stored on the
// participant row.
func (s *Service) Cancel(ctx context.Context, commitmentID, organizerPhone string) error {
	c, err := s.repo.GetByID(ctx, commitmentID)
	if err != nil {
		return notFoundOrWrap(err, "commitment", commitmentID)
	}
	if c.Organizer != organizerPhone {
		return apperr.Security("only the organizer may cancel commitment %s", commitmentID)
	}
	if c.Status != store.CommitmentActive {
		return apperr.Statef("commitment %s is %s, not ACTIVE", commitmentID, c.Status)
	}

	escrowSecret, err := s.box.Decrypt(c.EncryptedEscrowKey)
	if err != nil {
		return apperr.Wrap(err)
	}

	participants, err := s.repo.ListParticipants(ctx, commitmentID)
	if err != nil {
		return apperr.Wrap(err)
	}

	refunds := make(map[string]string)
	for _, p := range participants {
		if p.Status != store.ParticipantLocked {
			continue
		}
		txID, serr := s.ledgerA.SendPayment(ctx, escrowSecret, p.WalletAddress, p.Amount, "commitment-refund:"+commitmentID)
		if serr != nil {
			s.notifier.Send(ctx, c.Organizer, "refund to "+p.Phone+" failed and will need manual follow-up")
			continue
		}
		refunds[p.Phone] = txID
	}

	if err := s.repo.Cancel(ctx, s.db, commitmentID, refunds, time.Now()); err != nil {
		if err == store.ErrWrongState {
			return apperr.Statef("commitment %s changed state concurrently", commitmentID)
		}
		return apperr.Wrap(err)
	}

	for phone := range refunds {
		s.notifier.Send(ctx, phone, "your locked funds for \""+c.Title+"\" were refunded; the commitment was canceled")
	}
	s.record(ctx, organizerPhone, "commitment.cancel", commitmentID, "")
	return nil
}

// MarkExpiredPastDeadline drives the scheduler's deadline_tick: every
// ACTIVE commitment whose deadline has passed and wasn't released
// transitions to EXPIRED.
func (s *Service) MarkExpiredPastDeadline(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.repo.ListActivePastDeadline(ctx, now)
	if err != nil {
		return 0, apperr.Wrap(err)
	}
	count := 0
	for _, c := range expired {
		if err := s.repo.MarkExpired(ctx, c.ID); err != nil {
			if err == store.ErrWrongState {
				continue
			}
			return count, apperr.Wrap(err)
		}
		s.notifier.Send(ctx, c.Organizer, "commitment \""+c.Title+"\" expired before every participant locked funds")
		count++
	}
	return count, nil
}

// Tick is the scheduler's per-cycle entrypoint, invoking both
// release_commitment and deadline_tick from spec §4.13 across every
// commitment past its deadline: each is released if its escrow holds
// anything, and whatever remains ACTIVE afterward (nothing was ever
// locked, or every participant missed) is marked EXPIRED. If any release
// fails with an error other than a StateError (for example a ledger
// failure), Tick returns that error and expires nothing in that cycle, so
// the next tick tries the release again.
func (s *Service) Tick(ctx context.Context, now time.Time) (released, expired int, err error) {
	due, err := s.repo.ListActivePastDeadline(ctx, now)
	if err != nil {
		return 0, 0, apperr.Wrap(err)
	}
	var releaseErr error
	for _, c := range due {
		rerr := s.Release(ctx, c.ID)
		switch {
		case rerr == nil:
			released++
		case releaseErr == nil && apperr.KindOf(rerr) != apperr.State:
			releaseErr = rerr
		}
	}
	if releaseErr != nil {
		return released, 0, releaseErr
	}

	expired, err = s.MarkExpiredPastDeadline(ctx, now)
	return released, expired, err
}

// Status is the read-only aggregate from get_commitment_status: the
// commitment plus derived completion percentage and deadline countdown.
type Status struct {
	Commitment          *store.PaymentCommitment
	Locked              []*store.CommitmentParticipant
	Pending             []*store.CommitmentParticipant
	CompletionPercentage float64
	DaysUntilDeadline    float64
}

func (s *Service) GetStatus(ctx context.Context, commitmentID string) (*Status, error) {
	c, err := s.repo.GetByID(ctx, commitmentID)
	if err != nil {
		return nil, notFoundOrWrap(err, "commitment", commitmentID)
	}
	participants, err := s.repo.ListParticipants(ctx, commitmentID)
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	st := &Status{Commitment: c}
	for _, p := range participants {
		switch p.Status {
		case store.ParticipantLocked, store.ParticipantReleased:
			st.Locked = append(st.Locked, p)
		case store.ParticipantInvited:
			st.Pending = append(st.Pending, p)
		}
	}
	if c.TotalParticipants > 0 {
		st.CompletionPercentage = 100 * float64(c.ParticipantsLocked) / float64(c.TotalParticipants)
	}
	st.DaysUntilDeadline = math.Max(0, time.Until(c.Deadline).Hours()/24)
	return st, nil
}

// GetReliability returns/creates phone's reliability score, per
// get_user_reliability.
func (s *Service) GetReliability(ctx context.Context, phone string) (*store.ReliabilityScore, error) {
	score, err := s.reliability.GetOrCreate(ctx, phone)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return score, nil
}

// Badge labels a reliability score for display purposes only; it is not
// part of the engine's contract (spec §4.13 notes the badge thresholds
// are "purely presentational, not part of the contract").
func Badge(score int) string {
	switch {
	case score >= 90:
		return "Gold"
	case score >= 70:
		return "Silver"
	case score >= 50:
		return "Bronze"
	default:
		return "New"
	}
}

func progressMessage(c *store.PaymentCommitment) string {
	return "progress on \"" + c.Title + "\": " + strconv.Itoa(c.ParticipantsLocked) + "/" + strconv.Itoa(c.TotalParticipants) + " locked"
}

func notFoundOrWrap(err error, kind, id string) error {
	if err == store.ErrNotFound {
		return apperr.NotFoundf("no %s %s", kind, id)
	}
	return apperr.Wrap(err)
}

func classifyLedgerErr(err error) error {
	if ae, ok := apperr.As(err); ok {
		return ae
	}
	return apperr.LedgerTransient(err)
}
