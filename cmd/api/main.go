// Command api is the core process's entrypoint: it loads configuration
// and builds the full service graph behind Router.Handle. The messaging
// transport adapters that actually receive webhooks and deliver replies
// are out-of-scope collaborators (spec §1, §6) maintained outside this
// module; this binary is what they are deployed in front of, and calls
// Router.Handle(ctx, userIdentifier, text) per inbound message. Grounded
// in the gift-card teacher's cmd/api/main.go startup sequence (logger ->
// config -> cache -> database -> ready), extended past its demo cache/db
// smoke calls into constructing the full service graph this repo
// persists.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"chatpay-core/internal/composition"
	"chatpay-core/internal/config"
	"chatpay-core/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := logger.Init("chatpay-api", cfg.App.Environment, cfg.Log.Level, cfg.Log.File); err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting chatpay-core api",
		zap.String("environment", cfg.App.Environment),
		zap.String("ledger_network", cfg.Ledger.Network),
	)

	svc, err := composition.Build(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	logger.Info("service graph ready; waiting for transport adapter to call Router.Handle",
		zap.Bool("rate_limit_enabled", cfg.RateLimit.Enabled),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	return nil
}
