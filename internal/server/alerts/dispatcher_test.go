package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, a Alert) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func TestDispatcher_DeliversQueuedAlerts(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, mock.MatchedBy(func(a Alert) bool { return a.Kind == KindCanary })).Return(nil).Twice()

	d := NewDispatcher(sender, Options{Workers: 2, QueueSize: 4, Timeout: time.Second}, logging.NewDiscard())
	d.Start()

	assert.True(t, d.Submit(Alert{Kind: KindCanary, AccountID: "u-1"}))
	assert.True(t, d.Submit(Alert{Kind: KindCanary, AccountID: "u-2"}))
	d.Stop()

	sender.AssertExpectations(t)
}

func TestDispatcher_SendFailureIsSwallowed(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()

	d := NewDispatcher(sender, Options{Workers: 1, QueueSize: 1}, logging.NewDiscard())
	d.Start()
	assert.True(t, d.Submit(Alert{Kind: KindCoercion}))
	d.Stop()

	sender.AssertExpectations(t)
}

type blockingSender struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Alert
}

func (b *blockingSender) Send(ctx context.Context, a Alert) error {
	<-b.release
	b.mu.Lock()
	b.got = append(b.got, a)
	b.mu.Unlock()
	return nil
}

func TestDispatcher_FullQueueDropsWithoutBlocking(t *testing.T) {
	bs := &blockingSender{release: make(chan struct{})}
	d := NewDispatcher(bs, Options{Workers: 1, QueueSize: 1, Timeout: time.Second}, logging.NewDiscard())
	d.Start()

	require.True(t, d.Submit(Alert{Kind: KindLogin, AccountID: "1"}))
	// wait for the worker to take the first alert so the queue is empty again
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	require.True(t, d.Submit(Alert{Kind: KindLogin, AccountID: "2"}))

	done := make(chan bool)
	go func() { done <- d.Submit(Alert{Kind: KindLogin, AccountID: "3"}) }()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}

	close(bs.release)
	d.Stop()
	assert.Len(t, bs.got, 2)
}

func TestDispatcher_SubmitAfterStop(t *testing.T) {
	d := NewDispatcher(new(MockSender), Options{}, logging.NewDiscard())
	d.Start()
	d.Stop()
	d.Stop()

	assert.False(t, d.Submit(Alert{Kind: KindLogin}))
}

type panicSender struct{}

func (panicSender) Send(context.Context, Alert) error { panic("boom") }

func TestDispatcher_SenderPanicDoesNotKillWorker(t *testing.T) {
	d := NewDispatcher(panicSender{}, Options{Workers: 1, QueueSize: 2}, logging.NewDiscard())
	d.Start()
	d.Submit(Alert{Kind: KindLogin})
	d.Submit(Alert{Kind: KindLogin})
	assert.NotPanics(t, d.Stop)
}

func TestDispatcher_StampsCreatedAt(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, mock.MatchedBy(func(a Alert) bool { return !a.CreatedAt.IsZero() })).Return(nil).Once()

	d := NewDispatcher(sender, Options{}, logging.NewDiscard())
	d.Start()
	d.Submit(Alert{Kind: KindLogin})
	d.Stop()
	sender.AssertExpectations(t)
}
