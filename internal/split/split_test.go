//go:build integration

package split

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
	svc := NewService(store.NewSplitRepository(db), db, paymentSvc, notifier)
	return svc, ledgerFake, w, db
}

// TestSplitCompletesOnlyWhenAllNonInitiatorSharesPaid exercises the S2
// scenario from spec §8: an initiator plus three participants, with the
// bill completing only after the last non-initiator share settles.
func TestSplitCompletesOnlyWhenAllNonInitiatorSharesPaid(t *testing.T) {
	svc, ledgerFake, w, db := setup(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	initiator := "+14155552001"
	participants := []string{"+14155552002", "+14155552003", "+14155552004"}
	for _, phone := range append([]string{initiator}, participants...) {
		u, err := w.GetOrCreate(ctx, phone)
		require.NoError(t, err)
		ledgerFake.Fund(u.Address, 1000)
	}

	bill, err := svc.Create(ctx, initiator, "dinner", 400, participants)
	require.NoError(t, err)
	assert.Equal(t, store.SplitPending, bill.Status)

	st, err := svc.GetStatus(ctx, bill.ID)
	require.NoError(t, err)
	assert.Len(t, st.Payments, 4, "initiator plus 3 distinct participants")
	for _, p := range st.Payments {
		assert.InDelta(t, 100, p.Amount, 0.000001)
	}

	require.NoError(t, svc.PayShare(ctx, bill.ID, participants[0]))
	st, err = svc.GetStatus(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SplitPending, st.Bill.Status, "not all non-initiator shares paid yet")

	require.NoError(t, svc.PayShare(ctx, bill.ID, participants[1]))
	require.NoError(t, svc.PayShare(ctx, bill.ID, participants[2]))

	st, err = svc.GetStatus(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SplitCompleted, st.Bill.Status, "bill completes once all non-initiator shares are paid")

	initiatorBal, err := w.Balance(ctx, initiator)
	require.NoError(t, err)
	assert.InDelta(t, 1000+300, initiatorBal, 0.000001, "initiator collects 3 shares of 100")
}

func TestPayShareRejectsDoublePay(t *testing.T) {
	svc, ledgerFake, w, db := setup(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	initiator := "+14155552101"
	participant := "+14155552102"
	for _, phone := range []string{initiator, participant} {
		u, err := w.GetOrCreate(ctx, phone)
		require.NoError(t, err)
		ledgerFake.Fund(u.Address, 1000)
	}

	bill, err := svc.Create(ctx, initiator, "coffee", 20, []string{participant})
	require.NoError(t, err)

	require.NoError(t, svc.PayShare(ctx, bill.ID, participant))
	err = svc.PayShare(ctx, bill.ID, participant)
	assert.Error(t, err, "paying an already-paid share must fail")
}

func TestPayShareRejectsNonParticipant(t *testing.T) {
	svc, ledgerFake, w, db := setup(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	initiator := "+14155552201"
	participant := "+14155552202"
	stranger := "+14155552203"
	for _, phone := range []string{initiator, participant, stranger} {
		u, err := w.GetOrCreate(ctx, phone)
		require.NoError(t, err)
		ledgerFake.Fund(u.Address, 1000)
	}

	bill, err := svc.Create(ctx, initiator, "taxi", 30, []string{participant})
	require.NoError(t, err)

	err = svc.PayShare(ctx, bill.ID, stranger)
	assert.Error(t, err, "a non-participant must not be able to pay a share")
}
