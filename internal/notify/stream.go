package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chatpay-core/pkg/logger"
)

// outboundStream is the Redis stream the pluggable transport adapters
// (spec §6: "transports are pluggable... core never constructs
// transport-specific wire payloads") consume from; this package only
// ever publishes a transport-agnostic envelope onto it.
const outboundStream = "chatpay:outbound"

// outboundGroup is declared so a transport adapter joining late (or
// restarting) replays from the stream's start rather than missing
// whatever was published before it first consumed.
const outboundGroup = "transport-adapters"

// outboundMaxLen caps the stream so an outbound transport that's down
// for a while doesn't grow it unbounded; the transport adapter is an
// out-of-scope collaborator this repo never blocks on.
const outboundMaxLen = 10000

type outboundEnvelope struct {
	UserIdentifier string `json:"user_identifier"`
	Text           string `json:"text"`
}

// StreamSender is a Sender that hands rendered replies to whichever
// transport adapter is deployed alongside the core over a Redis stream,
// rather than delivering them itself (transports stay out of this
// module's scope). Grounded in the gift-card teacher's pkg/queue
// StreamQueue, narrowed to the one call this domain actually makes
// (publish an outbound envelope) — the teacher's consumer-side
// Consume/XAutoClaim machinery belongs to the transport adapter on the
// other end of the stream, not to this repo.
type StreamSender struct {
	client *redis.Client
}

// NewStreamSender declares the consumer group (idempotent; safe to call
// even if a transport adapter already has) and returns a ready Sender.
func NewStreamSender(ctx context.Context, client *redis.Client) (*StreamSender, error) {
	if err := client.XGroupCreateMkStream(ctx, outboundStream, outboundGroup, "0").Err(); err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, err
	}
	return &StreamSender{client: client}, nil
}

func (s *StreamSender) Send(ctx context.Context, userIdentifier, text string) error {
	data, err := json.Marshal(outboundEnvelope{UserIdentifier: userIdentifier, Text: text})
	if err != nil {
		return err
	}
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: outboundStream,
		MaxLen: outboundMaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"data": data},
	}).Result()
	if err != nil {
		return err
	}
	logger.Debug("outbound notification published to stream", zap.String("to", userIdentifier), zap.String("message_id", id))
	return nil
}
