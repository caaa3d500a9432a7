//go:build integration

package ticket

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpay-core/internal/crypto"
	"chatpay-core/internal/ledgertest"
	"chatpay-core/internal/store"
	"chatpay-core/internal/wallet"
	"chatpay-core/pkg/logger"
)

func init() { _ = logger.Init("test", "development", "", "") }

// seedEvent inserts an Event row directly: event creation is an
// out-of-scope admin/seed operation per spec §1 ("demo fixtures"), so
// EventRepository exposes no Create — tests seed the row the same way
// the out-of-scope tooling would.
func seedEvent(t *testing.T, db *store.DB, name string, price float64, capacity int) string {
	t.Helper()
	id := uuid.New().String()
	_, err := db.Pool().Exec(context.Background(), `
		INSERT INTO events (id, name, category, venue, date, ticket_price, total_capacity, tickets_sold, is_active)
		VALUES ($1, $2, 'music', 'test venue', now(), $3, $4, 0, true)
	`, id, name, price, capacity)
	require.NoError(t, err)
	return id
}

func setup(t *testing.T) (*Service, *ledgertest.Fake, *store.DB) {
	t.Helper()
	db := store.SetupTestDB(t)

	ledgerFake := ledgertest.New()
	box := crypto.NewBox("test-encryption-key-not-for-prod")
	users := store.NewUserRepository(db)
	walletSvc := wallet.NewService(users, ledgerFake, box)
	svc := NewService(store.NewEventRepository(db), store.NewTicketRepository(db), walletSvc, ledgerFake)
	return svc, ledgerFake, db
}

func TestPurchaseVerifyMarkUsed(t *testing.T) {
	svc, ledgerFake, db := setup(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	seedEvent(t, db, "Goa Fest", 10, 1)

	walletSvc := wallet.NewService(store.NewUserRepository(db), ledgerFake, crypto.NewBox("test-encryption-key-not-for-prod"))
	u, err := walletSvc.GetOrCreate(ctx, "+14155550201")
	require.NoError(t, err)
	ledgerFake.Fund(u.Address, 100)

	tkt, event, err := svc.Purchase(ctx, "+14155550201", "Goa Fest")
	require.NoError(t, err)
	assert.Equal(t, "Goa Fest", event.Name)
	assert.Equal(t, 1, event.TicketsSold)
	assert.NotEmpty(t, tkt.AssetID)
	assert.True(t, tkt.IsValid)
	assert.False(t, tkt.IsUsed)

	ok, got, err := svc.Verify(ctx, tkt.TicketNumber)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, tkt.ID, got.ID)

	require.NoError(t, svc.MarkUsed(ctx, tkt.TicketNumber))
	err = svc.MarkUsed(ctx, tkt.TicketNumber)
	assert.Error(t, err, "a second mark_used must fail, per spec's idempotence law")

	ok, _, err = svc.Verify(ctx, tkt.TicketNumber)
	require.NoError(t, err)
	assert.False(t, ok, "a used ticket must not verify")
}

func TestPurchaseRejectsSoldOut(t *testing.T) {
	svc, ledgerFake, db := setup(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	seedEvent(t, db, "Sold Out Show", 10, 1)

	walletSvc := wallet.NewService(store.NewUserRepository(db), ledgerFake, crypto.NewBox("test-encryption-key-not-for-prod"))
	for _, phone := range []string{"+14155550301", "+14155550302"} {
		u, err := walletSvc.GetOrCreate(ctx, phone)
		require.NoError(t, err)
		ledgerFake.Fund(u.Address, 100)
	}

	_, _, err := svc.Purchase(ctx, "+14155550301", "Sold Out Show")
	require.NoError(t, err)

	_, _, err = svc.Purchase(ctx, "+14155550302", "Sold Out Show")
	assert.Error(t, err, "a second purchase past capacity must fail")
}
