// Command worker runs the two background loops the core depends on but
// that the request path never drives itself: the durable payment-retry
// queue worker (spec §4.4) and the commitment deadline scheduler (spec
// §4.13, "a scheduler external to the core calls release_commitment
// and/or deadline_tick when now > deadline"). Grounded in the gift-card
// teacher's cmd/worker/fund_card/main.go shape (config/cache/db wiring,
// a consumer goroutine, signal-driven graceful shutdown), generalized
// from its single stream consumer to this repo's two scheduled loops.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"chatpay-core/internal/composition"
	"chatpay-core/internal/config"
	"chatpay-core/internal/queue"
	"chatpay-core/pkg/logger"
)

// deadlineTickInterval bounds how stale a commitment's expiry can be
// before the scheduler notices; spec §4.13 leaves the cadence
// implementation-defined.
const deadlineTickInterval = 30 * time.Second

func main() {
	if err := run(); err != nil {
		logger.Fatal("worker exited", zap.Error(err))
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := logger.Init("chatpay-worker", cfg.App.Environment, cfg.Log.Level, cfg.Log.File); err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting chatpay-core worker", zap.String("environment", cfg.App.Environment))

	svc, err := composition.Build(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(2)

	paymentWorker := queue.NewWorker(svc.Queue, svc.Payments, 2*time.Second)
	go func() {
		defer wg.Done()
		logger.Info("payment retry worker started")
		paymentWorker.Run(ctx)
		logger.Info("payment retry worker stopped")
	}()

	go func() {
		defer wg.Done()
		runDeadlineScheduler(ctx, svc)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", zap.String("signal", sig.String()))

	cancel()
	wg.Wait()
	return nil
}

// runDeadlineScheduler calls commitment.Service.Tick on a fixed cadence,
// releasing commitments past their deadline and expiring those whose
// release finds no locked funds (spec §4.13's deadline_tick contract).
func runDeadlineScheduler(ctx context.Context, svc *composition.Services) {
	logger.Info("commitment deadline scheduler started", zap.Duration("interval", deadlineTickInterval))
	defer logger.Info("commitment deadline scheduler stopped")

	ticker := time.NewTicker(deadlineTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			released, expired, err := svc.Commitments.Tick(ctx, time.Now())
			if err != nil {
				logger.Error("commitment deadline tick failed", zap.Error(err))
				continue
			}
			if released > 0 || expired > 0 {
				logger.Info("commitment deadline tick",
					zap.Int("released", released),
					zap.Int("expired", expired),
				)
			}
		}
	}
}
