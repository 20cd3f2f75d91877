package service

import (
	"context"
	"fmt"

	"github.com/ndemidova/callline/internal/calltask"
	"github.com/ndemidova/callline/internal/notify"
)

// CancelTask moves a non-terminal task to cancelled. Cancellation goes through
// the same audit and notification discipline as event-driven transitions.
func (s *CreateService) CancelTask(ctx context.Context, ownerID, taskID string) (*calltask.Task, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}

	var cancelled *calltask.Task
	err := s.store.WithLock(ctx, "task:"+taskID, func() error {
		task, err := s.store.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task == nil || task.OwnerID != ownerID {
			return ErrNotFound
		}
		if task.Status.IsTerminal() {
			return fmt.Errorf("%w: task is already %s", ErrValidation, task.Status)
		}

		prev := task.Status
		task.Status = calltask.TaskCancelled
		task.FailureReason = "cancelled by user"
		if err := s.store.UpdateTask(ctx, task); err != nil {
			return fmt.Errorf("persist cancellation: %w", err)
		}

		if err := s.audit.Record(ctx, "task", task.ID, string(prev), string(task.Status), "cancelled by user"); err != nil {
			s.log.Errorw("audit write failed", "task", task.ID, "error", err)
		}

		payload := map[string]any{"task_id": task.ID}
		if err := s.emitter.Emit(ctx, ownerID, notify.TypeTaskCancelled, payload); err != nil {
			s.log.Errorw("cancellation notification failed", "task", task.ID, "error", err)
		}

		cancelled = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}
