//go:build integration

package commitment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpay-core/internal/crypto"
	"chatpay-core/internal/ledgertest"
	"chatpay-core/internal/notify"
	"chatpay-core/internal/store"
	"chatpay-core/internal/wallet"
	"chatpay-core/pkg/logger"
)

func init() { _ = logger.Init("test", "development", "", "") }

func setup(t *testing.T) (*Service, *ledgertest.Fake, *store.DB) {
	t.Helper()
	db := store.SetupTestDB(t)

	ledgerFake := ledgertest.New()
	box := crypto.NewBox("test-encryption-key-not-for-prod")
	users := store.NewUserRepository(db)
	walletSvc := wallet.NewService(users, ledgerFake, box)

	svc := NewService(
		store.NewCommitmentRepository(db),
		store.NewReliabilityRepository(db),
		db,
		walletSvc,
		ledgerFake,
		box,
		notify.NewDispatcher(notify.LogSender{}),
	)
	return svc, ledgerFake, db
}

func fundWallet(t *testing.T, ledgerFake *ledgertest.Fake, w *wallet.Service, phone string, amount float64) {
	t.Helper()
	u, err := w.GetOrCreate(context.Background(), phone)
	require.NoError(t, err)
	ledgerFake.Fund(u.Address, amount)
}

func TestCreateAddLockRelease(t *testing.T) {
	svc, ledgerFake, db := setup(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	users := store.NewUserRepository(db)
	box := crypto.NewBox("test-encryption-key-not-for-prod")
	w := wallet.NewService(users, ledgerFake, box)

	_, err := w.GetOrCreate(ctx, "+14155550001")
	require.NoError(t, err)

	c, err := svc.Create(ctx, "+14155550001", "Goa Trip", "annual trip", 100, 2, time.Now().Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, store.CommitmentActive, c.Status)
	assert.NotEmpty(t, c.EscrowAddress)

	fundWallet(t, ledgerFake, w, "+14155550002", 200)
	fundWallet(t, ledgerFake, w, "+14155550003", 200)

	_, err = svc.AddParticipant(ctx, c.ID, "+14155550002")
	require.NoError(t, err)
	_, err = svc.AddParticipant(ctx, c.ID, "+14155550003")
	require.NoError(t, err)

	require.NoError(t, svc.LockFunds(ctx, c.ID, "+14155550002"))

	updated, err := svc.repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ParticipantsLocked)
	assert.InDelta(t, 100, updated.TotalLocked, 0.000001)

	require.NoError(t, svc.Release(ctx, c.ID))

	final, err := svc.repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, store.CommitmentCompleted, final.Status)
	require.NotNil(t, final.ReleasedAt)

	locked, err := svc.repo.GetParticipant(ctx, c.ID, "+14155550002")
	require.NoError(t, err)
	assert.Equal(t, store.ParticipantReleased, locked.Status)
	require.NotNil(t, locked.ReleaseTxID)

	missed, err := svc.repo.GetParticipant(ctx, c.ID, "+14155550003")
	require.NoError(t, err)
	assert.Equal(t, store.ParticipantMissed, missed.Status)

	lockedReliability, err := svc.GetReliability(ctx, "+14155550002")
	require.NoError(t, err)
	assert.Equal(t, 1, lockedReliability.FulfilledOnTime)
	assert.Equal(t, 100, lockedReliability.Score)

	missedReliability, err := svc.GetReliability(ctx, "+14155550003")
	require.NoError(t, err)
	assert.Equal(t, 1, missedReliability.Missed)
	assert.Equal(t, 0, missedReliability.Score)
}

func TestReleaseIsIdempotentByStatus(t *testing.T) {
	svc, ledgerFake, db := setup(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	users := store.NewUserRepository(db)
	box := crypto.NewBox("test-encryption-key-not-for-prod")
	w := wallet.NewService(users, ledgerFake, box)
	_, err := w.GetOrCreate(ctx, "+14155550010")
	require.NoError(t, err)

	c, err := svc.Create(ctx, "+14155550010", "Weekend", "", 10, 1, time.Now().Add(time.Hour))
	require.NoError(t, err)
	// Release rejects an empty escrow, so give it something to settle.
	ledgerFake.Fund(c.EscrowAddress, 10)

	require.NoError(t, svc.Release(ctx, c.ID))
	err = svc.Release(ctx, c.ID)
	assert.Error(t, err)
}

func TestCancelRefundsLockedParticipants(t *testing.T) {
	svc, ledgerFake, db := setup(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	users := store.NewUserRepository(db)
	box := crypto.NewBox("test-encryption-key-not-for-prod")
	w := wallet.NewService(users, ledgerFake, box)
	_, err := w.GetOrCreate(ctx, "+14155550020")
	require.NoError(t, err)

	c, err := svc.Create(ctx, "+14155550020", "Camp", "", 50, 1, time.Now().Add(time.Hour))
	require.NoError(t, err)

	fundWallet(t, ledgerFake, w, "+14155550021", 100)
	_, err = svc.AddParticipant(ctx, c.ID, "+14155550021")
	require.NoError(t, err)
	require.NoError(t, svc.LockFunds(ctx, c.ID, "+14155550021"))

	require.NoError(t, svc.Cancel(ctx, c.ID, "+14155550020"))

	refunded, err := svc.repo.GetParticipant(ctx, c.ID, "+14155550021")
	require.NoError(t, err)
	assert.Equal(t, store.ParticipantRefunded, refunded.Status)

	final, err := svc.repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, store.CommitmentCanceled, final.Status)
}

func TestCancelRejectsNonOrganizer(t *testing.T) {
	svc, ledgerFake, db := setup(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	users := store.NewUserRepository(db)
	box := crypto.NewBox("test-encryption-key-not-for-prod")
	w := wallet.NewService(users, ledgerFake, box)
	_, err := w.GetOrCreate(ctx, "+14155550030")
	require.NoError(t, err)

	c, err := svc.Create(ctx, "+14155550030", "Trip", "", 10, 1, time.Now().Add(time.Hour))
	require.NoError(t, err)

	err = svc.Cancel(ctx, c.ID, "+14155559999")
	assert.Error(t, err)
}
