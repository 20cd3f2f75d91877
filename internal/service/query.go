package service

import (
	"context"
	"sort"

	"github.com/ndemidova/callline/internal/calltask"
	"github.com/ndemidova/callline/internal/store"
)

const DefaultListLimit = 50

type ListFilter struct {
	Status   string
	Priority string
	Limit    int
	Offset   int
}

// QueryService is the read-only side: no mutation, no side effects.
type QueryService struct {
	store *store.Store
}

func NewQueryService(st *store.Store) *QueryService {
	return &QueryService{store: st}
}

// ListTasks returns the owner's tasks matching the filter, newest first, plus
// the total match count before pagination.
func (s *QueryService) ListTasks(ctx context.Context, ownerID string, f ListFilter) ([]*calltask.Task, int, error) {
	if ownerID == "" {
		return nil, 0, ErrUnauthenticated
	}

	tasks, err := s.store.ListTasks(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]*calltask.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Status != "" && t.Status != calltask.TaskStatus(f.Status) {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		matched = append(matched, t)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	if offset >= total {
		return []*calltask.Task{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return matched[offset:end], total, nil
}

// GetTask fetches a single owner-scoped task.
func (s *QueryService) GetTask(ctx context.Context, ownerID, taskID string) (*calltask.Task, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil || task.OwnerID != ownerID {
		return nil, ErrNotFound
	}

	return task, nil
}
