package queue

import (
	"context"
	"errors"
	"time"

	"chatpay-core/internal/apperr"
	"chatpay-core/pkg/logger"

	"go.uber.org/zap"
)

// Submitter is the payment-sending collaborator the worker drives; the
// payment service implements it, kept as an interface here so this
// package never imports the service layer (spec §4.4's last paragraph:
// "a worker consumes tiers in priority order and calls Payment Service").
type Submitter interface {
	SubmitQueued(ctx context.Context, sender, receiver string, amount float64, note string) error
}

// Worker repeatedly drains the priority tiers high-to-normal-to-low,
// submitting each payload and rescheduling or dead-lettering on failure
// per the retryable/non-retryable split in spec §7's propagation rules.
type Worker struct {
	queue     *Queue
	submitter Submitter
	idle      time.Duration
}

func NewWorker(q *Queue, submitter Submitter, idle time.Duration) *Worker {
	if idle <= 0 {
		idle = time.Second
	}
	return &Worker{queue: q, submitter: submitter, idle: idle}
}

// Run blocks until ctx is cancelled, processing payloads as they become
// available and periodically promoting due delayed-retry entries.
func (w *Worker) Run(ctx context.Context) {
	promoteTicker := time.NewTicker(5 * time.Second)
	defer promoteTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-promoteTicker.C:
			if n, err := w.queue.PromoteDue(ctx); err != nil {
				logger.Error("failed to promote due retry payloads", zap.Error(err))
			} else if n > 0 {
				logger.Info("promoted due retry payloads", zap.Int("count", n))
			}
		default:
		}

		processed, err := w.processOne(ctx)
		if err != nil {
			logger.Error("queue worker tick failed", zap.Error(err))
		}
		if !processed {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.idle):
			}
		}
	}
}

// processOne drains exactly one payload from the highest-priority
// non-empty tier, if any, and reports whether it found work.
func (w *Worker) processOne(ctx context.Context) (bool, error) {
	for _, tier := range Tiers {
		payload, err := w.queue.Dequeue(ctx, tier, 0)
		if err != nil {
			return false, err
		}
		if payload == nil {
			continue
		}

		w.handle(ctx, *payload)
		return true, nil
	}
	return false, nil
}

func (w *Worker) handle(ctx context.Context, payload Payload) {
	err := w.submitter.SubmitQueued(ctx, payload.Sender, payload.Receiver, payload.Amount, payload.Note)
	if err == nil {
		logger.Info("queued payment submitted", zap.String("sender", payload.Sender), zap.String("receiver", payload.Receiver))
		return
	}

	var ae *apperr.Error
	if errors.As(err, &ae) && !ae.Retryable() {
		logger.Warn("queued payment failed permanently", zap.String("sender", payload.Sender), zap.Error(err))
		if derr := w.queue.DeadLetter(ctx, payload, err.Error()); derr != nil {
			logger.Error("failed to dead-letter non-retryable payload", zap.Error(derr))
		}
		return
	}

	if rerr := w.queue.Reschedule(ctx, payload, err.Error()); rerr != nil {
		logger.Error("failed to reschedule payload after transient failure", zap.Error(rerr))
	}
}
