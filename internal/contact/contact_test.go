//go:build integration

package contact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpay-core/internal/store"
)

func setup(t *testing.T) (*Service, *store.DB) {
	t.Helper()
	db := store.SetupTestDB(t)
	return NewService(store.NewContactRepository(db)), db
}

func TestSaveAndResolveIsCaseInsensitive(t *testing.T) {
	svc, db := setup(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	_, err := svc.Save(ctx, "+14155554001", "Mom", "+14155554002")
	require.NoError(t, err)

	c, err := svc.Resolve(ctx, "+14155554001", "MOM")
	require.NoError(t, err)
	assert.Equal(t, "+14155554002", c.ContactPhone)
}

func TestSaveRejectsEmptyNickname(t *testing.T) {
	svc, db := setup(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	_, err := svc.Save(ctx, "+14155554003", "   ", "+14155554004")
	assert.Error(t, err)
}

func TestResolveReceiverOrder(t *testing.T) {
	svc, db := setup(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()

	owner := "+14155554101"
	_, err := svc.Save(ctx, owner, "dad", "+14155554102")
	require.NoError(t, err)

	phone, addr, err := svc.ResolveReceiver(ctx, owner, "+14155559999")
	require.NoError(t, err)
	assert.Equal(t, "+14155559999", phone)
	assert.Empty(t, addr)

	ledgerAddr := "ABCDEFGHIJKLMNOPQRSTUVWXYZABCDEFGHIJKLMNOPQRSTUVWXYZABCDEF"[:58]
	phone, addr, err = svc.ResolveReceiver(ctx, owner, ledgerAddr)
	require.NoError(t, err)
	assert.Empty(t, phone)
	assert.Len(t, addr, 58)

	phone, addr, err = svc.ResolveReceiver(ctx, owner, "dad")
	require.NoError(t, err)
	assert.Equal(t, "+14155554102", phone)
	assert.Empty(t, addr)

	_, _, err = svc.ResolveReceiver(ctx, owner, "nobody")
	assert.Error(t, err, "an unknown nickname must fail to resolve")
}
