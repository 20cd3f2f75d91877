package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher drains the notification queue with a fixed pool of workers.
type Dispatcher struct {
	queue     Queue
	transport Transport
	count     int
	log       *zap.SugaredLogger
	wg        sync.WaitGroup
}

func NewDispatcher(q Queue, transport Transport, count int, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		queue:     q,
		transport: transport,
		count:     count,
		log:       log,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.count; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	d.log.Infow("dispatch workers started", "count", d.count)
}

func (d *Dispatcher) Stop() {
	d.wg.Wait()
	d.log.Info("dispatch workers stopped")
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			n, err := d.queue.PopNotification(ctx, 2*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				d.log.Errorw("pop notification failed", "worker", id, "error", err)
				continue
			}

			if n == nil {
				continue
			}

			if err := d.transport.Deliver(ctx, n); err != nil {
				// Best effort: the record stays persisted unread.
				d.log.Errorw("notification delivery failed", "worker", id, "id", n.ID, "error", err)
			}
		}
	}
}
