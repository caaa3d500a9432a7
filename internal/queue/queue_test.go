package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDelayForMatchesSpecSchedule(t *testing.T) {
	// spec §8 S6: 5, 10, 20, 40, 80 seconds for attempts 1..5.
	assert.Equal(t, 5, delayFor(1))
	assert.Equal(t, 10, delayFor(2))
	assert.Equal(t, 20, delayFor(3))
	assert.Equal(t, 40, delayFor(4))
	assert.Equal(t, 80, delayFor(5))
}

func TestDelayForCapsAtMax(t *testing.T) {
	assert.Equal(t, 300, delayFor(8))
	assert.Equal(t, 300, delayFor(20))
}

func TestBucketForSnapsUpToConfiguredBucket(t *testing.T) {
	assert.Equal(t, 5, bucketFor(5))
	assert.Equal(t, 10, bucketFor(10))
	assert.Equal(t, 300, bucketFor(300))
}

func TestTierKeysMatchSpecLayout(t *testing.T) {
	assert.Equal(t, "tx_queue:high", tierKey(High))
	assert.Equal(t, "tx_queue:retry:10", retryKey(10))
	assert.Equal(t, "tx_dlq:+14155550001:42", dlqKey("+14155550001", 42))
}
