//go:build integration

package payment

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpay-core/internal/crypto"
	"chatpay-core/internal/ledgertest"
	"chatpay-core/internal/queue"
	"chatpay-core/internal/store"
	"chatpay-core/internal/wallet"
	"chatpay-core/pkg/logger"
)

func init() { _ = logger.Init("test", "development", "", "") }

func setupPaymentTest(t *testing.T) (*Service, *ledgertest.Fake, *wallet.Service, *store.DB) {
	t.Helper()
	db := store.SetupTestDB(t)

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	require.NoError(t, rdb.FlushDB(context.Background()).Err())

	ledgerFake := ledgertest.New()
	box := crypto.NewBox("test-encryption-key-not-for-prod")
	users := store.NewUserRepository(db)
	w := wallet.NewService(users, ledgerFake, box)
	txs := store.NewTransactionRepository(db)
	q := queue.New(rdb)

	svc := NewService(w, users, txs, ledgerFake, q)
	return svc, ledgerFake, w, db
}

func TestSendSucceedsWhenBalanceCovers(t *testing.T) {
	svc, ledgerFake, w, db := setupPaymentTest(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	sender, err := w.GetOrCreate(ctx, "+14155551001")
	require.NoError(t, err)
	_, err = w.GetOrCreate(ctx, "+14155551002")
	require.NoError(t, err)
	ledgerFake.Fund(sender.Address, 50)

	tx, err := svc.Send(ctx, "+14155551001", "+14155551002", 10, "lunch")
	require.NoError(t, err)
	assert.Equal(t, store.TxConfirmed, tx.Status)
	require.NotNil(t, tx.TxID)

	bal, err := w.Balance(ctx, "+14155551002")
	require.NoError(t, err)
	assert.InDelta(t, 10, bal, 0.000001)
}

func TestSendRejectsInsufficientBalance(t *testing.T) {
	svc, _, w, db := setupPaymentTest(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	_, err := w.GetOrCreate(ctx, "+14155551010")
	require.NoError(t, err)
	_, err = w.GetOrCreate(ctx, "+14155551011")
	require.NoError(t, err)

	_, err = svc.Send(ctx, "+14155551010", "+14155551011", 5, "")
	assert.Error(t, err)
}

func TestSendQueuesOnTransientLedgerFailure(t *testing.T) {
	svc, ledgerFake, w, db := setupPaymentTest(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	sender, err := w.GetOrCreate(ctx, "+14155551020")
	require.NoError(t, err)
	_, err = w.GetOrCreate(ctx, "+14155551021")
	require.NoError(t, err)
	ledgerFake.Fund(sender.Address, 50)

	ledgerFake.FailNext = true

	_, err = svc.Send(ctx, "+14155551020", "+14155551021", 10, "")
	assert.Error(t, err)

	stats, err := svc.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Tiers[queue.Normal])
}

func TestSubmitQueuedDeliversPayload(t *testing.T) {
	svc, ledgerFake, w, db := setupPaymentTest(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	sender, err := w.GetOrCreate(ctx, "+14155551030")
	require.NoError(t, err)
	ledgerFake.Fund(sender.Address, 50)

	receiver, err := w.GetOrCreate(ctx, "+14155551031")
	require.NoError(t, err)

	require.NoError(t, svc.SubmitQueued(ctx, "+14155551030", receiver.Address, 10, "retry"))

	bal, err := w.Balance(ctx, "+14155551031")
	require.NoError(t, err)
	assert.InDelta(t, 10, bal, 0.000001)
}
