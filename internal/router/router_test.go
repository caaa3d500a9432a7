//go:build integration

package router

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpay-core/internal/commitment"
	"chatpay-core/internal/contact"
	"chatpay-core/internal/conversation"
	"chatpay-core/internal/crypto"
	"chatpay-core/internal/fund"
	"chatpay-core/internal/ledgertest"
	"chatpay-core/internal/merchant"
	"chatpay-core/internal/notify"
	"chatpay-core/internal/payment"
	"chatpay-core/internal/ratelimit"
	"chatpay-core/internal/split"
	"chatpay-core/internal/store"
	"chatpay-core/internal/ticket"
	"chatpay-core/internal/wallet"
	"chatpay-core/pkg/logger"
)

func init() { _ = logger.Init("test", "development", "", "") }

func setupRouter(t *testing.T) (*Router, *store.DB) {
	t.Helper()
	db := store.SetupTestDB(t)

	ledgerFake := ledgertest.New()
	box := crypto.NewBox("test-encryption-key-not-for-prod")
	users := store.NewUserRepository(db)
	walletSvc := wallet.NewService(users, ledgerFake, box)
	txs := store.NewTransactionRepository(db)
	paymentSvc := payment.NewService(walletSvc, users, txs, ledgerFake, nil)
	notifier := notify.NewDispatcher(notify.LogSender{})
	splitSvc := split.NewService(store.NewSplitRepository(db), db, paymentSvc, notifier)
	fundSvc := fund.NewService(store.NewFundRepository(db), db, paymentSvc, notifier)
	ticketSvc := ticket.NewService(store.NewEventRepository(db), store.NewTicketRepository(db), walletSvc, ledgerFake)
	commitmentSvc := commitment.NewService(store.NewCommitmentRepository(db), store.NewReliabilityRepository(db), db, walletSvc, ledgerFake, box, notifier)
	contactSvc := contact.NewService(store.NewContactRepository(db))
	merchantSvc := merchant.NewService(store.NewMerchantRepository(db))

	r := New(conversation.NewStore(), ratelimit.New(nil, false, 0), walletSvc, paymentSvc, splitSvc, fundSvc, ticketSvc, commitmentSvc, contactSvc, merchantSvc, notifier)
	return r, db
}

func TestGuidedCommitmentFlow(t *testing.T) {
	r, db := setupRouter(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()
	phone := "+14155550101"

	reply := r.Handle(ctx, phone, "make a goa trip")
	assert.Contains(t, reply, "share (in ALGO)")

	reply = r.Handle(ctx, phone, "500")
	assert.Contains(t, reply, "participants")

	reply = r.Handle(ctx, phone, "5 people")
	assert.Contains(t, reply, "days")

	reply = r.Handle(ctx, phone, "7 days")
	assert.Contains(t, reply, "confirm")
	assert.Contains(t, reply, "500")
	assert.Contains(t, reply, "5")

	reply = r.Handle(ctx, phone, "yes")
	assert.Contains(t, strings.ToLower(reply), "commitment")
	require.False(t, r.conv.Active(phone), "flow should have cleared on completion")

	assert.NotEmpty(t, r.conv.GetContext(phone, "last_commitment_id"))
}

func TestGuidedCommitmentFlowCancel(t *testing.T) {
	r, db := setupRouter(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()
	phone := "+14155550102"

	reply := r.Handle(ctx, phone, "create Kokan Trip")
	assert.Contains(t, reply, "Kokan Trip")

	reply = r.Handle(ctx, phone, "1000")
	assert.Contains(t, reply, "participants")

	reply = r.Handle(ctx, phone, "cancel")
	assert.Equal(t, "okay, cancelled.", reply)
	assert.False(t, r.conv.Active(phone))

	// A follow-up message is parsed fresh, not fed back into the dead flow.
	reply = r.Handle(ctx, phone, "balance")
	assert.Contains(t, reply, "balance")
}

func TestOneShotCommitmentCreateStillWorks(t *testing.T) {
	r, db := setupRouter(t)
	defer db.Close()
	defer store.CleanupTestDB(t, db)
	ctx := context.Background()
	phone := "+14155550103"

	reply := r.Handle(ctx, phone, "/lock create Goa Trip 500 3 7")
	assert.Contains(t, reply, "goa trip")
	assert.False(t, r.conv.Active(phone), "one-shot creation must not start a guided flow")
}
