//go:build integration

package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpay-core/internal/apperr"
	"chatpay-core/internal/crypto"
	"chatpay-core/internal/ledgertest"
	"chatpay-core/internal/store"
	"chatpay-core/pkg/logger"
)

func init() { _ = logger.Init("test", "development", "", "") }

func setupWalletTest(t *testing.T) (*Service, *ledgertest.Fake, *store.DB) {
	t.Helper()
	db := store.SetupTestDB(t)
	ledgerFake := ledgertest.New()
	box := crypto.NewBox("test-encryption-key-not-for-prod")
	users := store.NewUserRepository(db)
	return NewService(users, ledgerFake, box), ledgerFake, db
}

func TestGetOrCreate_DerivesOnFirstContact(t *testing.T) {
	svc, _, db := setupWalletTest(t)
	defer store.CleanupTestDB(t, db)

	u, err := svc.GetOrCreate(context.Background(), "+14155550001")
	require.NoError(t, err)
	assert.Equal(t, "+14155550001", u.Phone)
	assert.NotEmpty(t, u.Address)
	assert.NotEmpty(t, u.EncryptedSecret)
}

func TestGetOrCreate_IsIdempotent(t *testing.T) {
	svc, _, db := setupWalletTest(t)
	defer store.CleanupTestDB(t, db)

	first, err := svc.GetOrCreate(context.Background(), "+14155550002")
	require.NoError(t, err)

	second, err := svc.GetOrCreate(context.Background(), "+14155550002")
	require.NoError(t, err)
	assert.Equal(t, first.Address, second.Address)
}

func TestSecret_RoundTripsThroughEncryption(t *testing.T) {
	svc, _, db := setupWalletTest(t)
	defer store.CleanupTestDB(t, db)

	ctx := context.Background()
	_, err := svc.GetOrCreate(ctx, "+14155550003")
	require.NoError(t, err)

	secret, err := svc.Secret(ctx, "+14155550003")
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
}

func TestSecret_NoWalletIsNotFound(t *testing.T) {
	svc, _, db := setupWalletTest(t)
	defer store.CleanupTestDB(t, db)

	_, err := svc.Secret(context.Background(), "+19995550000")
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.NotFound, ae.Kind)
}

func TestBalance_DelegatesToLedger(t *testing.T) {
	svc, fake, db := setupWalletTest(t)
	defer store.CleanupTestDB(t, db)

	ctx := context.Background()
	u, err := svc.GetOrCreate(ctx, "+14155550004")
	require.NoError(t, err)
	fake.Fund(u.Address, 42.5)

	bal, err := svc.Balance(ctx, "+14155550004")
	require.NoError(t, err)
	assert.Equal(t, 42.5, bal)
}

func TestGetOrCreate_RetriesOnTransientDeriveFailure(t *testing.T) {
	svc, fake, db := setupWalletTest(t)
	defer store.CleanupTestDB(t, db)

	fake.FailNext = true
	u, err := svc.GetOrCreate(context.Background(), "+14155550005")
	require.NoError(t, err)
	assert.NotEmpty(t, u.Address)
}
