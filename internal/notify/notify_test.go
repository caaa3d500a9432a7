package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"chatpay-core/pkg/logger"
)

func init() { _ = logger.Init("test", "development", "", "") }

type recordingSender struct {
	mu   sync.Mutex
	fail bool
	sent []string
}

func (r *recordingSender) Send(ctx context.Context, userIdentifier, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("simulated transport failure")
	}
	r.sent = append(r.sent, userIdentifier+":"+text)
	return nil
}

func TestDispatcher_FansOutToEverySender(t *testing.T) {
	a, b := &recordingSender{}, &recordingSender{}
	d := NewDispatcher(a, b)

	d.Send(context.Background(), "+14155550001", "hello")

	assert.Equal(t, []string{"+14155550001:hello"}, a.sent)
	assert.Equal(t, []string{"+14155550001:hello"}, b.sent)
}

func TestDispatcher_OneFailingSenderDoesNotBlockOthers(t *testing.T) {
	failing := &recordingSender{fail: true}
	ok := &recordingSender{}
	d := NewDispatcher(failing, ok)

	d.Send(context.Background(), "+14155550002", "hi")

	assert.Empty(t, failing.sent)
	assert.Equal(t, []string{"+14155550002:hi"}, ok.sent)
}

func TestDispatcher_RegisterAddsSenderAfterConstruction(t *testing.T) {
	d := NewDispatcher()
	late := &recordingSender{}
	d.Register(late)

	d.Send(context.Background(), "+14155550003", "added later")

	assert.Equal(t, []string{"+14155550003:added later"}, late.sent)
}

func TestDispatcher_DefaultsToLogSenderWhenNoneGiven(t *testing.T) {
	d := NewDispatcher()
	assert.Len(t, d.senders, 1)
	_, ok := d.senders[0].(LogSender)
	assert.True(t, ok)
}
