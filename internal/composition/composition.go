// Package composition is the startup composition root spec §9 calls for:
// it turns the source's module-level singletons (algorand_client,
// encryption_service, per-service globals) into one explicit
// construction pass, so every service below it takes its collaborators
// as constructor arguments instead of reaching for package state.
// Grounded in the gift-card teacher's cmd/api/main.go wiring order
// (cache -> database -> repositories), generalized from one entity to
// the full service graph this repo persists.
package composition

import (
	"context"
	"net/http"
	"time"

	"github.com/jinzhu/copier"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chatpay-core/internal/audit"
	"chatpay-core/internal/commitment"
	"chatpay-core/internal/config"
	"chatpay-core/internal/contact"
	"chatpay-core/internal/conversation"
	"chatpay-core/internal/crypto"
	"chatpay-core/internal/fund"
	"chatpay-core/internal/ledger"
	"chatpay-core/internal/merchant"
	"chatpay-core/internal/notify"
	"chatpay-core/internal/payment"
	"chatpay-core/internal/queue"
	"chatpay-core/internal/ratelimit"
	"chatpay-core/internal/router"
	"chatpay-core/internal/split"
	"chatpay-core/internal/store"
	"chatpay-core/internal/ticket"
	"chatpay-core/internal/wallet"
	"chatpay-core/pkg/logger"
)

// Services holds every collaborator the Router and the queue/scheduler
// workers need, all built once at process startup.
type Services struct {
	DB    *store.DB
	Redis *redis.Client
	Queue *queue.Queue

	Ledger ledger.Adapter
	Box    *crypto.Box

	Wallet      *wallet.Service
	Payments    *payment.Service
	Splits      *split.Service
	Funds       *fund.Service
	Tickets     *ticket.Service
	Commitments *commitment.Service
	Contacts    *contact.Service
	Merchants   *merchant.Service
	Audit       *audit.Logger

	Notifier *notify.Dispatcher
	Limiter  *ratelimit.Limiter
	Conv     *conversation.Store
	Router   *router.Router
}

// Build wires the full service graph from cfg. Callers (cmd/api,
// cmd/worker) own the returned Services' lifecycle and must call Close.
func Build(cfg *config.Config) (*Services, error) {
	// store.Config mirrors cfg.Database field-for-field; copier.Copy is
	// the teacher's own pattern for this mapping (cmd/api/main.go's
	// copier.Copy(&dbCfg, &Cfg.Database)).
	var dbCfg store.Config
	if err := copier.Copy(&dbCfg, &cfg.Database); err != nil {
		return nil, err
	}
	db, err := store.NewDB(dbCfg)
	if err != nil {
		return nil, err
	}

	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}

	rdb, err := newRedisClient(cfg.Redis.URL)
	if err != nil {
		db.Close()
		return nil, err
	}

	var ledgerCfg ledger.Config
	if err := copier.Copy(&ledgerCfg, &cfg.Ledger); err != nil {
		db.Close()
		return nil, err
	}
	ledgerAdapter := ledger.NewHTTPAdapter(ledgerCfg, &http.Client{Timeout: 15 * time.Second})

	box := crypto.NewBox(cfg.Encryption.Key)

	users := store.NewUserRepository(db)
	contacts := store.NewContactRepository(db)
	txs := store.NewTransactionRepository(db)
	splits := store.NewSplitRepository(db)
	funds := store.NewFundRepository(db)
	events := store.NewEventRepository(db)
	tickets := store.NewTicketRepository(db)
	commitments := store.NewCommitmentRepository(db)
	reliability := store.NewReliabilityRepository(db)
	merchants := store.NewMerchantRepository(db)
	auditRepo := store.NewAuditRepository(db)

	q := queue.New(rdb)
	notifier := notify.NewDispatcher()
	streamSender, err := notify.NewStreamSender(context.Background(), rdb)
	if err != nil {
		logger.Warn("outbound stream sender unavailable; notifications will only be logged", zap.Error(err))
	} else {
		notifier.Register(streamSender)
	}

	walletSvc := wallet.NewService(users, ledgerAdapter, box)
	paymentSvc := payment.NewService(walletSvc, users, txs, ledgerAdapter, q).WithMerchants(merchants)
	splitSvc := split.NewService(splits, db, paymentSvc, notifier)
	fundSvc := fund.NewService(funds, db, paymentSvc, notifier)
	ticketSvc := ticket.NewService(events, tickets, walletSvc, ledgerAdapter)
	auditLogger := audit.New(auditRepo)
	commitmentSvc := commitment.NewService(commitments, reliability, db, walletSvc, ledgerAdapter, box, notifier).WithAudit(auditLogger)
	contactSvc := contact.NewService(contacts)
	merchantSvc := merchant.NewService(merchants)

	limiter := ratelimit.New(rdb, cfg.RateLimit.Enabled, cfg.RateLimit.PerMinute)
	conv := conversation.NewStore()

	r := router.New(conv, limiter, walletSvc, paymentSvc, splitSvc, fundSvc, ticketSvc, commitmentSvc, contactSvc, merchantSvc, notifier)

	return &Services{
		DB:          db,
		Redis:       rdb,
		Queue:       q,
		Ledger:      ledgerAdapter,
		Box:         box,
		Wallet:      walletSvc,
		Payments:    paymentSvc,
		Splits:      splitSvc,
		Funds:       fundSvc,
		Tickets:     ticketSvc,
		Commitments: commitmentSvc,
		Contacts:    contactSvc,
		Merchants:   merchantSvc,
		Audit:       auditLogger,
		Notifier:    notifier,
		Limiter:     limiter,
		Conv:        conv,
		Router:      r,
	}, nil
}

// Close releases every pooled connection. Safe to call once, after the
// caller's inbound loop (webhook server, queue worker, scheduler) stops.
func (s *Services) Close() {
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	logger.Info("connected to redis")
	return client, nil
}
