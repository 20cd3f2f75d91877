package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ndemidova/callline/internal/audit"
	"github.com/ndemidova/callline/internal/calltask"
	"github.com/ndemidova/callline/internal/notify"
	"github.com/ndemidova/callline/internal/store"
)

// Event is an asynchronous provider status report correlated by an opaque key.
// Delivery is at-least-once: events may arrive duplicated or out of order.
type Event struct {
	CorrelationKey string `json:"correlation_key"`
	ProviderStatus string `json:"provider_status"`
	Duration       int    `json:"duration,omitempty"`
	AnsweredBy     string `json:"answered_by,omitempty"`
}

// Ingestor applies provider events to sessions and propagates the task-side
// effects (progress, retry, terminal failure).
type Ingestor struct {
	store   *store.Store
	emitter *notify.Emitter
	audit   *audit.Recorder
	log     *zap.SugaredLogger
}

func NewIngestor(st *store.Store, em *notify.Emitter, rec *audit.Recorder, log *zap.SugaredLogger) *Ingestor {
	return &Ingestor{store: st, emitter: em, audit: rec, log: log}
}

// Ingest processes one provider event. The whole sequence runs under a lease
// on the correlation key so duplicated or concurrent deliveries serialize.
// An unknown correlation key is a benign race (provider retried before the
// session was registered) and is not an error.
func (i *Ingestor) Ingest(ctx context.Context, ev Event) error {
	return i.store.WithLock(ctx, "event:"+ev.CorrelationKey, func() error {
		return i.apply(ctx, ev)
	})
}

func (i *Ingestor) apply(ctx context.Context, ev Event) error {
	sess, err := i.store.GetSessionByProviderKey(ctx, ev.CorrelationKey)
	if err != nil {
		return err
	}
	if sess == nil {
		i.log.Infow("event for unknown session, ignoring", "key", ev.CorrelationKey, "provider_status", ev.ProviderStatus)
		return nil
	}

	mapped := calltask.MapProviderStatus(ev.ProviderStatus)

	// Terminal-state guard: once a session is terminal nothing moves it, and
	// redelivery of the same terminal event must not re-trigger retries or
	// notifications.
	if sess.Status.IsTerminal() {
		i.log.Infow("session already terminal, ignoring event",
			"session", sess.ID, "status", sess.Status, "provider_status", ev.ProviderStatus)
		return nil
	}

	prev := sess.Status
	sess.Status = mapped

	if mapped.IsTerminal() {
		now := time.Now().UTC()
		sess.EndedAt = &now
		if ev.Duration > 0 {
			sess.DurationSeconds = ev.Duration
		}
	}

	if mapped == calltask.SessionFailed {
		sess.FailureReason = failureReason(ev)
	}

	if err := i.store.UpdateSession(ctx, sess); err != nil {
		return err
	}

	if err := i.audit.Record(ctx, "session", sess.ID, string(prev), string(mapped), ev.ProviderStatus); err != nil {
		i.log.Errorw("audit write failed", "session", sess.ID, "error", err)
	}

	return i.applyTaskEffects(ctx, sess, mapped)
}

func (i *Ingestor) applyTaskEffects(ctx context.Context, sess *calltask.Session, mapped calltask.SessionStatus) error {
	return i.store.WithLock(ctx, "task:"+sess.TaskID, func() error {
		task, err := i.store.GetTask(ctx, sess.TaskID)
		if err != nil {
			return err
		}
		if task == nil {
			i.log.Warnw("session references missing task", "session", sess.ID, "task", sess.TaskID)
			return nil
		}

		switch mapped {
		case calltask.SessionFailed:
			return i.handleFailure(ctx, task, sess)
		default:
			// A live or completed call means the dialer picked the task up.
			// Task completion itself is decided by the post-call analysis
			// step, not by call teardown, so completed leaves the task
			// in_progress.
			if task.Status == calltask.TaskReadyToCall {
				return i.transitionTask(ctx, task, calltask.TaskInProgress, "", "call "+string(mapped))
			}
			return nil
		}
	})
}

// handleFailure consults the retry policy. The failed-session count is
// recomputed from persisted history, excluding the session that just failed:
// the policy bounds how many retries may follow prior failures.
func (i *Ingestor) handleFailure(ctx context.Context, task *calltask.Task, sess *calltask.Session) error {
	if task.Status.IsTerminal() {
		return nil
	}

	sessions, err := i.store.ListTaskSessions(ctx, task.ID)
	if err != nil {
		return err
	}

	prior := 0
	for _, s := range sessions {
		if s.ID != sess.ID && s.Status == calltask.SessionFailed {
			prior++
		}
	}

	settings, err := i.store.GetSettings(ctx, task.OwnerID)
	if err != nil {
		return err
	}

	if EvaluateRetry(settings, prior) {
		attempt := prior + 1
		reason := fmt.Sprintf("retry attempt %d", attempt)
		i.log.Infow("retry granted", "task", task.ID, "attempt", attempt)
		return i.transitionTask(ctx, task, calltask.TaskReadyToCall, reason, reason)
	}

	i.log.Infow("retry denied", "task", task.ID, "failed_attempts", prior,
		"auto_retry", settings.AutoRetryFailedCalls, "max_attempts", settings.MaxRetryAttempts)

	if err := i.transitionTask(ctx, task, calltask.TaskFailed, sess.FailureReason, sess.FailureReason); err != nil {
		return err
	}

	payload := map[string]any{
		"task_id": task.ID,
		"reason":  sess.FailureReason,
	}
	if err := i.emitter.Emit(ctx, task.OwnerID, notify.TypeCallFailed, payload); err != nil {
		i.log.Errorw("call-failed notification failed", "task", task.ID, "error", err)
	}

	return nil
}

func (i *Ingestor) transitionTask(ctx context.Context, task *calltask.Task, to calltask.TaskStatus, failureReason, auditReason string) error {
	prev := task.Status
	task.Status = to
	task.FailureReason = failureReason

	if err := i.store.UpdateTask(ctx, task); err != nil {
		return err
	}

	if err := i.audit.Record(ctx, "task", task.ID, string(prev), string(to), auditReason); err != nil {
		i.log.Errorw("audit write failed", "task", task.ID, "error", err)
	}

	return nil
}

// failureReason prefers the answering-machine classifier over the raw
// provider status.
func failureReason(ev Event) string {
	if ev.AnsweredBy != "" && ev.AnsweredBy != "human" {
		return "answered by " + ev.AnsweredBy
	}
	return "call " + ev.ProviderStatus
}
