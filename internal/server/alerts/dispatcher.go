package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/logging"
)

// Options sizes a Dispatcher.
type Options struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Dispatcher is a bounded worker pool in front of a Sender.
type Dispatcher struct {
	sender Sender
	opts   Options
	log    logging.Logger

	queue  chan Alert
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(sender Sender, opts Options, log logging.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Dispatcher{
		sender: sender,
		opts:   opts,
		log:    log,
		queue:  make(chan Alert, opts.QueueSize),
	}
}

// Start launches the workers. They exit after Stop once the queue is drained.
func (d *Dispatcher) Start() {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Submit enqueues a without waiting. A full queue or a stopped dispatcher
// drops the alert.
func (d *Dispatcher) Submit(a Alert) bool {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn(context.Background(), "alert dropped, dispatcher stopped", "kind", a.Kind)
		return false
	}

	select {
	case d.queue <- a:
		return true
	default:
		d.log.Warn(context.Background(), "alert dropped, queue full", "kind", a.Kind, "queue_size", d.opts.QueueSize)
		return false
	}
}

// Stop refuses new alerts and waits for queued ones to be attempted.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for a := range d.queue {
		d.deliver(a)
	}
}

func (d *Dispatcher) deliver(a Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.log.Error(ctx, "alert sender panic", "kind", a.Kind, "panic", r)
		}
	}()

	if err := d.sender.Send(ctx, a); err != nil {
		d.log.Warn(ctx, "alert delivery failed", "kind", a.Kind, "account_id", a.AccountID, "err", err)
		return
	}
	d.log.Debug(ctx, "alert delivered", "kind", a.Kind, "account_id", a.AccountID)
}
