package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ndemidova/callline/internal/audit"
	"github.com/ndemidova/callline/internal/calltask"
	"github.com/ndemidova/callline/internal/notify"
	"github.com/ndemidova/callline/internal/planner"
	"github.com/ndemidova/callline/internal/store"
)

const (
	maxTitleLen          = 100
	DefaultContactWindow = 50
	DefaultPlannerTimeout = 30 * time.Second
)

type CreateRequest struct {
	Instruction string
	ContactID   string
	PhoneNumber string
	Tone        string
	Priority    string
	MaxPrice    float64
}

type CreateResult struct {
	Task                  *calltask.Task
	Plan                  calltask.Plan
	Status                calltask.TaskStatus
	RequiresClarification bool
	MissingInfo           []string
}

// CreateService drives instruction → plan → persisted task. It owns the task
// lifecycle endpoints that are not event-driven (creation, cancellation).
type CreateService struct {
	store         *store.Store
	planner       planner.Planner
	emitter       *notify.Emitter
	audit         *audit.Recorder
	log           *zap.SugaredLogger
	plannerTimeout time.Duration
	contactWindow int
}

func NewCreateService(st *store.Store, pl planner.Planner, em *notify.Emitter, rec *audit.Recorder, log *zap.SugaredLogger) *CreateService {
	return &CreateService{
		store:         st,
		planner:       pl,
		emitter:       em,
		audit:         rec,
		log:           log,
		plannerTimeout: DefaultPlannerTimeout,
		contactWindow: DefaultContactWindow,
	}
}

// WithPlannerTimeout overrides the planning call timeout.
func (s *CreateService) WithPlannerTimeout(d time.Duration) *CreateService {
	s.plannerTimeout = d
	return s
}

// CreateTask runs the creation pipeline. Any planner or store failure aborts
// the whole operation with no task persisted; only the clarification
// notification is allowed to fail without failing the create.
func (s *CreateService) CreateTask(ctx context.Context, ownerID string, req CreateRequest) (*CreateResult, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(req.Instruction) == "" {
		return nil, fmt.Errorf("%w: raw_instruction is required", ErrValidation)
	}

	profile, err := s.store.GetProfile(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	contacts, err := s.store.GetContacts(ctx, ownerID, s.contactWindow)
	if err != nil {
		return nil, fmt.Errorf("fetch contacts: %w", err)
	}

	planCtx, cancel := context.WithTimeout(ctx, s.plannerTimeout)
	defer cancel()

	plan, err := s.planner.Plan(planCtx, req.Instruction, profile, contacts)
	if err != nil {
		return nil, fmt.Errorf("plan instruction: %w", err)
	}

	status := calltask.TaskReadyToCall
	if plan.NeedsUserInput() {
		status = calltask.TaskWaitingForUser
	}

	priority := req.Priority
	if priority == "" {
		priority = "normal"
	}

	task := &calltask.Task{
		ID:              uuid.New().String(),
		OwnerID:         ownerID,
		Title:           deriveTitle(plan.Goal, req.Instruction),
		Instruction:     req.Instruction,
		Status:          status,
		Priority:        priority,
		ContactID:       req.ContactID,
		PhoneNumber:     resolvePhone(req.PhoneNumber, plan),
		Tone:            firstNonEmpty(req.Tone, plan.Tone),
		MaxPrice:        firstNonZero(req.MaxPrice, plan.MaxPrice),
		HardConstraints: plan.HardConstraints,
		SoftPreferences: plan.SoftPreferences,
		Plan:            *plan,
	}

	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}

	if err := s.audit.Record(ctx, "task", task.ID, "", string(status), "created"); err != nil {
		s.log.Errorw("audit write failed", "task", task.ID, "error", err)
	}

	if status == calltask.TaskWaitingForUser {
		payload := map[string]any{
			"task_id":      task.ID,
			"missing_info": plan.MissingInfo,
			"questions":    plan.Questions,
		}
		if err := s.emitter.Emit(ctx, ownerID, notify.TypeClarificationNeeded, payload); err != nil {
			s.log.Errorw("clarification notification failed", "task", task.ID, "error", err)
		}
	}

	s.log.Infow("task created", "task", task.ID, "owner", ownerID, "status", status)

	return &CreateResult{
		Task:                  task,
		Plan:                  *plan,
		Status:                status,
		RequiresClarification: plan.RequiresClarification,
		MissingInfo:           plan.MissingInfo,
	}, nil
}

// deriveTitle takes the first 100 characters of the plan goal, falling back to
// the raw instruction when the goal is empty.
func deriveTitle(goal, instruction string) string {
	title := strings.TrimSpace(goal)
	if title == "" {
		title = strings.TrimSpace(instruction)
	}

	runes := []rune(title)
	if len(runes) > maxTitleLen {
		return string(runes[:maxTitleLen])
	}
	return title
}

// resolvePhone: an explicitly supplied number wins over the plan's contact.
func resolvePhone(explicit string, plan *calltask.Plan) string {
	if explicit != "" {
		return explicit
	}
	if plan.ContactInfo != nil {
		return plan.ContactInfo.Phone
	}
	return ""
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNonZero(a, b float64) float64 {
	if a != 0 {
		return a
	}
	return b
}
