// Package queue is the durable retry queue behind spec §4.4: priority
// tiers, delayed-retry buckets, and a dead-letter tier, all living in the
// Redis the teacher already wired for pkg/cache/pkg/queue, generalized
// from the teacher's Streams-based notification queue to the spec's
// literal key layout (§6): tx_queue:{tier}, tx_queue:retry:{delaySeconds},
// tx_dlq:{sender}:{epoch}.
package queue

import (
	"encoding/json"
	"time"
)

// Tier is one of the three priority lanes a payload can sit in.
type Tier string

const (
	High   Tier = "high"
	Normal Tier = "normal"
	Low    Tier = "low"
)

// Tiers lists every priority lane in poll order, highest first, for the
// worker loop described in §4.4's last paragraph.
var Tiers = []Tier{High, Normal, Low}

// Status mirrors the payload schema's "status" field across its lifetime.
type Status string

const (
	StatusQueued          Status = "queued"
	StatusFailedRetryable  Status = "failed_retryable"
	StatusFailedPermanent  Status = "failed_permanently"
)

// Payload is the implementation of spec §4.4's JSON payload schema: a
// pending payment intent carried through the queue.
type Payload struct {
	Type         string    `json:"type"`
	Sender       string    `json:"sender"`
	Receiver     string    `json:"receiver"`
	Amount       float64   `json:"amount"`
	Note         string    `json:"note"`
	Priority     Tier      `json:"priority"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	Status       Status    `json:"status"`
	LastError    string    `json:"last_error,omitempty"`
	LastRetryAt  *time.Time `json:"last_retry_at,omitempty"`
}

// DefaultMaxRetries matches spec §8 scenario S6 (five total attempts).
const DefaultMaxRetries = 5

func (p Payload) marshal() ([]byte, error) { return json.Marshal(p) }

func unmarshalPayload(raw []byte) (Payload, error) {
	var p Payload
	err := json.Unmarshal(raw, &p)
	return p, err
}
