// Package notify is the outbound Notification Dispatcher from spec §4.14
// and §6: a single abstract send(user_identifier, rendered_text) surface
// so the split/fund/commitment engines never construct a transport-
// specific wire payload. Concrete transports register a Sender.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"chatpay-core/pkg/logger"
)

// Sender delivers one rendered message to a user over a concrete
// transport (SMS gateway, chat webhook reply, push notification).
type Sender interface {
	Send(ctx context.Context, userIdentifier, text string) error
}

// LogSender is the default Sender: it logs the outbound message instead
// of delivering it, used in tests and until a real transport is wired.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, userIdentifier, text string) error {
	logger.Info("outbound notification", zap.String("to", userIdentifier), zap.String("text", text))
	return nil
}

// Dispatcher fans a message out to every registered Sender; a transport
// failing to deliver never blocks another transport or the caller.
type Dispatcher struct {
	mu      sync.RWMutex
	senders []Sender
}

func NewDispatcher(senders ...Sender) *Dispatcher {
	if len(senders) == 0 {
		senders = []Sender{LogSender{}}
	}
	return &Dispatcher{senders: senders}
}

func (d *Dispatcher) Register(s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders = append(d.senders, s)
}

// Send delivers text to userIdentifier over every registered sender,
// logging (not returning) individual transport failures so one bad
// transport can't suppress a reply over the others.
func (d *Dispatcher) Send(ctx context.Context, userIdentifier, text string) {
	d.mu.RLock()
	senders := append([]Sender(nil), d.senders...)
	d.mu.RUnlock()

	for _, s := range senders {
		if err := s.Send(ctx, userIdentifier, text); err != nil {
			logger.Warn("notification delivery failed", zap.String("to", userIdentifier), zap.Error(err))
		}
	}
}
