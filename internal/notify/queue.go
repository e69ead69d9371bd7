package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/domain/order"
)

// QueueConfig controls the dispatch queue's concurrency and capacity.
type QueueConfig struct {
	// Workers is the number of delivery goroutines. Defaults to 4.
	Workers int
	// Buffer is the queue capacity. When full, new events are dropped
	// with a warning rather than blocking the caller. Defaults to 256.
	Buffer int
	// SendTimeout bounds a single delivery attempt. Defaults to 10s.
	SendTimeout time.Duration
}

// Queue is a bounded fire-and-forget dispatcher implementing
// order.Notifier. A fixed worker pool drains the queue; enqueueing never
// blocks and delivery failures are logged, never propagated.
type Queue struct {
	lg      *zap.Logger
	sender  Sender
	tasks   chan Event
	timeout time.Duration
	wg      sync.WaitGroup
}

var _ order.Notifier = (*Queue)(nil)

// NewQueue creates a dispatch queue and starts its workers. The workers
// stop after Close drains the queue.
func NewQueue(lg *zap.Logger, sender Sender, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	q := &Queue{
		lg:      lg,
		sender:  sender,
		tasks:   make(chan Event, cfg.Buffer),
		timeout: cfg.SendTimeout,
	}
	q.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go q.worker()
	}
	return q
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for ev := range q.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err := q.sender.Send(ctx, ev)
		cancel()

		if err != nil {
			q.lg.Error("notification dispatch failed",
				zap.String("event", string(ev.Type)),
				zap.Int64("order_id", ev.Order.ID),
				zap.Error(err),
			)
		}
	}
}

// Close stops accepting events, waits for in-flight deliveries to finish,
// and returns. Safe to call once.
func (q *Queue) Close() {
	close(q.tasks)
	q.wg.Wait()
}

func (q *Queue) enqueue(t EventType, o *order.Hydrated) {
	select {
	case q.tasks <- Event{Type: t, Order: o}:
	default:
		q.lg.Warn("notification queue full, dropping event",
			zap.String("event", string(t)),
			zap.Int64("order_id", o.ID),
		)
	}
}

// OrderCreated enqueues a creation notice.
func (q *Queue) OrderCreated(o *order.Hydrated) { q.enqueue(EventOrderCreated, o) }

// OrderShipped enqueues a shipment notice.
func (q *Queue) OrderShipped(o *order.Hydrated) { q.enqueue(EventOrderShipped, o) }

// OrderDelivered enqueues a delivery notice.
func (q *Queue) OrderDelivered(o *order.Hydrated) { q.enqueue(EventOrderDelivered, o) }

// OrderCancelled enqueues a cancellation notice.
func (q *Queue) OrderCancelled(o *order.Hydrated) { q.enqueue(EventOrderCancelled, o) }
