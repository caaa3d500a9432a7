//go:build integration

package fund

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpay-core/internal/crypto"
	"chatpay-core/internal/ledgertest"
	"chatpay-core/internal/notify"
	"chatpay-core/internal/payment"
	"chatpay-core/internal/store"
	"chatpay-core/internal/wallet"
	"chatpay-core/pkg/logger"
)

func init() { _ = logger.Init("test", "development", "", "") }

func setup(t *testing.T) (*Service, *ledgertest.Fake, *wallet.Service, *store.DB) {
	t.Helper()
	db := store.SetupTestDB(t)

	ledgerFake := ledgertest.New()
	box := crypto.NewBox("test-encryption-key-not-for-prod")
	users := store.NewUserRepository(db)
	w := wallet.NewService(users, ledgerFake, box)
	txs := store.NewTransactionRepository(db)
	paymentSvc := payment.NewService(w, users, txs, ledgerFake, nil)
	notifier := notify.NewDispatcher(notify.LogSender{})
	svc := NewService(store.NewFundRepository(db), db, paymentSvc, notifier)
	return svc, ledgerFake, w, db
}

func TestCreateDefaultsDeadline(t *testing.T) {
	svc, _, _, db := setup(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	f, err := svc.Create(ctx, "+14155553001", "new roof", 500, 0)
	require.NoError(t, err)
	assert.WithinDuration(t, f.CreatedAt.Add(DefaultDeadlineHours*3600e9), f.Deadline, 1e9)
}

func TestCreateRejectsNonPositiveGoal(t *testing.T) {
	svc, _, _, db := setup(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	_, err := svc.Create(ctx, "+14155553002", "bad fund", 0, 24)
	assert.Error(t, err)
}

func TestContributeAccumulatesAndLatchesGoalMet(t *testing.T) {
	svc, ledgerFake, w, db := setup(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	creator := "+14155553101"
	contributor1 := "+14155553102"
	contributor2 := "+14155553103"
	for _, phone := range []string{creator, contributor1, contributor2} {
		u, err := w.GetOrCreate(ctx, phone)
		require.NoError(t, err)
		ledgerFake.Fund(u.Address, 1000)
	}

	f, err := svc.Create(ctx, creator, "medical bills", 150, 24)
	require.NoError(t, err)

	updated, err := svc.Contribute(ctx, f.ID, contributor1, 100)
	require.NoError(t, err)
	assert.InDelta(t, 100, updated.CurrentAmount, 0.000001)
	assert.False(t, updated.IsGoalMet)

	updated, err = svc.Contribute(ctx, f.ID, contributor2, 75)
	require.NoError(t, err)
	assert.InDelta(t, 175, updated.CurrentAmount, 0.000001)
	assert.True(t, updated.IsGoalMet, "goal of 150 is exceeded by 175")

	creatorBal, err := w.Balance(ctx, creator)
	require.NoError(t, err)
	assert.InDelta(t, 1000+175, creatorBal, 0.000001)
}

func TestContributeRejectsAfterDeadline(t *testing.T) {
	svc, ledgerFake, w, db := setup(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	creator := "+14155553201"
	contributor := "+14155553202"
	for _, phone := range []string{creator, contributor} {
		u, err := w.GetOrCreate(ctx, phone)
		require.NoError(t, err)
		ledgerFake.Fund(u.Address, 1000)
	}

	f, err := svc.Create(ctx, creator, "already expired", 100, 1)
	require.NoError(t, err)

	_, err = db.Pool().Exec(ctx, `UPDATE funds SET deadline = now() - interval '1 hour' WHERE id = $1`, f.ID)
	require.NoError(t, err)

	_, err = svc.Contribute(ctx, f.ID, contributor, 50)
	assert.Error(t, err, "a contribution past the deadline must be rejected")
}
