package queue

import (
	"context"
	"fmt"
	"time"

	"chatpay-core/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// dlqRetention is how long a dead-lettered payload's key survives before
// Redis expires it, per spec §4.4 ("retained ≥7 days").
const dlqRetention = 7 * 24 * time.Hour

// retryBuckets are the fixed delay-bucket keys the reschedule schedule
// (5·2^(k-1), capped at 300s) lands on across the five default retry
// attempts, per spec §4.4's delay formula.
var retryBuckets = []int{5, 10, 20, 40, 80, 160, 300}

// Queue is the priority-tiered persistent queue described in spec §4.4,
// backed by the same *redis.Client the teacher's pkg/cache/pkg/queue
// wrap, using plain lists for the tiers/DLQ and sorted sets for the
// delayed-retry buckets (scored by next_attempt_at) so PromoteDue can
// cheaply find ready items without scanning every payload.
type Queue struct {
	client *redis.Client
}

func New(client *redis.Client) *Queue {
	return &Queue{client: client}
}

func tierKey(t Tier) string { return fmt.Sprintf("tx_queue:%s", t) }
func retryKey(delaySeconds int) string { return fmt.Sprintf("tx_queue:retry:%d", delaySeconds) }
func dlqKey(sender string, epoch int64) string { return fmt.Sprintf("tx_dlq:%s:%d", sender, epoch) }

// Enqueue appends payload to the given tier's queue.
func (q *Queue) Enqueue(ctx context.Context, tier Tier, payload Payload) error {
	payload.Priority = tier
	if payload.Status == "" {
		payload.Status = StatusQueued
	}
	if payload.MaxRetries == 0 {
		payload.MaxRetries = DefaultMaxRetries
	}
	if payload.EnqueuedAt.IsZero() {
		payload.EnqueuedAt = time.Now()
	}

	raw, err := payload.marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal queue payload: %w", err)
	}
	if err := q.client.LPush(ctx, tierKey(tier), raw).Err(); err != nil {
		logger.Error("failed to enqueue payload", zap.String("tier", string(tier)), zap.Error(err))
		return fmt.Errorf("failed to enqueue payload: %w", err)
	}
	return nil
}

// Dequeue pops the oldest payload from tier. If wait > 0 it blocks up to
// wait for an item to appear (BRPOP); wait == 0 polls non-blocking and
// returns (nil, nil) on an empty queue.
func (q *Queue) Dequeue(ctx context.Context, tier Tier, wait time.Duration) (*Payload, error) {
	var raw string
	var err error
	if wait > 0 {
		var res []string
		res, err = q.client.BRPop(ctx, wait, tierKey(tier)).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to dequeue from %s: %w", tier, err)
		}
		raw = res[1]
	} else {
		raw, err = q.client.RPop(ctx, tierKey(tier)).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to dequeue from %s: %w", tier, err)
		}
	}

	p, err := unmarshalPayload([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode queue payload: %w", err)
	}
	return &p, nil
}

// delayFor mirrors spec §4.4's reschedule formula: min(300s, 5·2^(retryCount-1)).
func delayFor(retryCount int) int {
	delay := 5
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if delay >= 300 {
			return 300
		}
	}
	return delay
}

// bucketFor snaps an arbitrary delay onto the nearest configured bucket
// key at or above it, so the fixed set of retry-bucket keys in
// retryBuckets covers every value delayFor can produce.
func bucketFor(delay int) int {
	for _, b := range retryBuckets {
		if delay <= b {
			return b
		}
	}
	return retryBuckets[len(retryBuckets)-1]
}

// Reschedule increments payload's retry_count; if that exceeds
// max_retries it moves to the dead-letter tier (retained ≥7 days),
// otherwise it is placed in a delayed-retry bucket to reappear via
// PromoteDue once its delay elapses, per spec §4.4.
func (q *Queue) Reschedule(ctx context.Context, payload Payload, lastErr string) error {
	payload.RetryCount++
	payload.LastError = lastErr
	now := time.Now()
	payload.LastRetryAt = &now

	if payload.RetryCount > payload.MaxRetries {
		payload.Status = StatusFailedPermanent
		return q.deadLetter(ctx, payload)
	}

	payload.Status = StatusFailedRetryable
	delay := delayFor(payload.RetryCount)
	nextAttempt := now.Add(time.Duration(delay) * time.Second)

	raw, err := payload.marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal rescheduled payload: %w", err)
	}

	key := retryKey(bucketFor(delay))
	if err := q.client.ZAdd(ctx, key, redis.Z{Score: float64(nextAttempt.Unix()), Member: raw}).Err(); err != nil {
		logger.Error("failed to reschedule payload", zap.String("bucket", key), zap.Error(err))
		return fmt.Errorf("failed to reschedule payload: %w", err)
	}
	return nil
}

// DeadLetter moves payload straight to the dead-letter tier, bypassing
// the retry-count check Reschedule applies. Callers use this for a
// non-retryable failure (apperr kinds other than LedgerTransient/
// Internal, per §7's propagation rules) that should never be retried
// but still needs the durable audit trail a dropped payload wouldn't
// leave behind.
func (q *Queue) DeadLetter(ctx context.Context, payload Payload, lastErr string) error {
	payload.Status = StatusFailedPermanent
	payload.LastError = lastErr
	now := time.Now()
	payload.LastRetryAt = &now
	return q.deadLetter(ctx, payload)
}

// deadLetter writes payload under its per-sender, per-epoch DLQ key with
// a 7-day expiry, per spec §4.4.
func (q *Queue) deadLetter(ctx context.Context, payload Payload) error {
	raw, err := payload.marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal dead-lettered payload: %w", err)
	}
	key := dlqKey(payload.Sender, time.Now().Unix())
	if err := q.client.Set(ctx, key, raw, dlqRetention).Err(); err != nil {
		logger.Error("failed to dead-letter payload", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to dead-letter payload: %w", err)
	}
	logger.Warn("payload moved to dead-letter queue", zap.String("sender", payload.Sender), zap.Int("retry_count", payload.RetryCount))
	return nil
}

// PromoteDue scans every retry bucket for entries whose next_attempt_at
// has elapsed and re-enqueues them onto their original priority tier,
// returning how many payloads were promoted. Intended to be called
// periodically by a background loop alongside the tier worker.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	now := float64(time.Now().Unix())
	promoted := 0

	for _, b := range retryBuckets {
		key := retryKey(b)
		due, err := q.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
		if err != nil {
			return promoted, fmt.Errorf("failed to scan retry bucket %s: %w", key, err)
		}

		for _, raw := range due {
			p, err := unmarshalPayload([]byte(raw))
			if err != nil {
				logger.Error("dropping unparseable retry payload", zap.String("bucket", key), zap.Error(err))
				q.client.ZRem(ctx, key, raw)
				continue
			}
			if err := q.Enqueue(ctx, p.Priority, p); err != nil {
				return promoted, err
			}
			if err := q.client.ZRem(ctx, key, raw).Err(); err != nil {
				return promoted, fmt.Errorf("failed to remove promoted payload from %s: %w", key, err)
			}
			promoted++
		}
	}
	return promoted, nil
}

// Stats reports the current length of every tier, every retry bucket,
// and an approximate dead-letter count (keys matching tx_dlq:*), per
// spec §4.4's stats() contract.
type Stats struct {
	Tiers        map[Tier]int64
	RetryQueues  map[int]int64
	DeadLettered int64
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Tiers: map[Tier]int64{}, RetryQueues: map[int]int64{}}

	for _, t := range Tiers {
		n, err := q.client.LLen(ctx, tierKey(t)).Result()
		if err != nil {
			return stats, fmt.Errorf("failed to read length of %s: %w", t, err)
		}
		stats.Tiers[t] = n
	}

	for _, b := range retryBuckets {
		n, err := q.client.ZCard(ctx, retryKey(b)).Result()
		if err != nil {
			return stats, fmt.Errorf("failed to read retry bucket %d: %w", b, err)
		}
		stats.RetryQueues[b] = n
	}

	var dlqCount int64
	iter := q.client.Scan(ctx, 0, "tx_dlq:*", 1000).Iterator()
	for iter.Next(ctx) {
		dlqCount++
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("failed to scan dead-letter keys: %w", err)
	}
	stats.DeadLettered = dlqCount

	return stats, nil
}
