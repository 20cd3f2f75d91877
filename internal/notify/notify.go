// Package notify implements the best-effort alert side channel. Emitting
// persists the notification and queues it; a pool of dispatch workers drains
// the queue and hands each notification to the delivery transport. Nothing in
// here may block or fail the state transition that triggered the alert.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ndemidova/callline/internal/calltask"
)

// Notification type strings written by the orchestration services.
const (
	TypeClarificationNeeded = "clarification_needed"
	TypeCallFailed          = "call_failed"
	TypeTaskCancelled       = "task_cancelled"
)

// Queue is the persistence side of the channel, implemented by the store.
type Queue interface {
	PushNotification(ctx context.Context, n *calltask.Notification) error
	PopNotification(ctx context.Context, timeout time.Duration) (*calltask.Notification, error)
}

// Transport delivers a notification to the user-facing channel (push, email,
// in-app). Delivery is external; failures are logged and the notification
// stays persisted unread.
type Transport interface {
	Deliver(ctx context.Context, n *calltask.Notification) error
}

// Emitter creates and queues notifications.
type Emitter struct {
	queue Queue
	log   *zap.SugaredLogger
}

func NewEmitter(q Queue, log *zap.SugaredLogger) *Emitter {
	return &Emitter{queue: q, log: log}
}

func (e *Emitter) Emit(ctx context.Context, ownerID, typ string, payload map[string]any) error {
	n := &calltask.Notification{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Type:      typ,
		Payload:   payload,
		Read:      false,
		CreatedAt: time.Now().UTC(),
	}

	if err := e.queue.PushNotification(ctx, n); err != nil {
		return err
	}

	e.log.Infow("notification queued", "id", n.ID, "owner", ownerID, "type", typ)
	return nil
}

// LogTransport is the default transport: it only logs the delivery. Real
// delivery channels plug in behind the Transport interface.
type LogTransport struct {
	log *zap.SugaredLogger
}

func NewLogTransport(log *zap.SugaredLogger) *LogTransport {
	return &LogTransport{log: log}
}

func (t *LogTransport) Deliver(ctx context.Context, n *calltask.Notification) error {
	t.log.Infow("notification delivered", "id", n.ID, "owner", n.OwnerID, "type", n.Type)
	return nil
}
