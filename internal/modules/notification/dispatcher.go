// README: Best-effort notification dispatcher: non-blocking enqueue, worker pool, durable record, then fan-out to senders.
package notification

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"hyperlocal/internal/logger"
	"hyperlocal/internal/types"
)

// Notifier is what the order state machine depends on. Implementations must
// not block and must not report failures to the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Recorder durably stores notifications.
type Recorder interface {
	Record(ctx context.Context, n Notification) error
	MarkSent(ctx context.Context, id types.ID) error
}

// Sender forwards a notification to a delivery transport (push, event bus).
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

const (
	defaultQueueSize = 1024
	defaultWorkers   = 4
	deliverTimeout   = 5 * time.Second
)

type Dispatcher struct {
	recorder Recorder
	senders  []Sender
	ids      types.IDGenerator
	clock    types.Clock
	ch       chan Notification
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewDispatcher(recorder Recorder, senders []Sender, ids types.IDGenerator, clock types.Clock, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if ids == nil {
		ids = types.RandomIDGenerator{}
	}
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &Dispatcher{
		recorder: recorder,
		senders:  senders,
		ids:      ids,
		clock:    clock,
		ch:       make(chan Notification, queueSize),
		stopCh:   make(chan struct{}),
	}
}

// Notify stamps and enqueues n. A full queue drops the notification.
func (d *Dispatcher) Notify(_ context.Context, n Notification) {
	if n.ID == "" {
		n.ID = d.ids.NewID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.clock.Now()
	}
	select {
	case d.ch <- n:
	default:
		logger.Warn("notification queue full, dropping",
			zap.String("user_id", string(n.UserID)),
			zap.String("type", string(n.Type())),
		)
	}
}

// Start launches workers and returns a stop function that drains what is
// already queued before returning (bounded by ctx).
func (d *Dispatcher) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = defaultWorkers
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return func(ctx context.Context) error {
		d.stopOnce.Do(func() { close(d.stopCh) })
		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case n := <-d.ch:
			d.deliver(n)
		case <-d.stopCh:
			for {
				select {
				case n := <-d.ch:
					d.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	fields := []zap.Field{
		zap.String("notification_id", string(n.ID)),
		zap.String("user_id", string(n.UserID)),
		zap.String("type", string(n.Type())),
	}

	recorded := true
	if d.recorder != nil {
		if err := d.recorder.Record(ctx, n); err != nil {
			recorded = false
			logger.Warn("notification record failed", append(fields, zap.Error(err))...)
		}
	}

	sent := false
	for _, s := range d.senders {
		if err := s.Send(ctx, n); err != nil {
			logger.Warn("notification send failed", append(fields, zap.Error(err))...)
			continue
		}
		sent = true
	}

	if sent && recorded && d.recorder != nil {
		if err := d.recorder.MarkSent(ctx, n.ID); err != nil {
			logger.Warn("notification mark sent failed", append(fields, zap.Error(err))...)
		}
	}
}
