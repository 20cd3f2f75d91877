package calltask

import (
	"time"
)

type TaskStatus string

const (
	TaskWaitingForUser TaskStatus = "waiting_for_user"
	TaskReadyToCall    TaskStatus = "ready_to_call"
	TaskInProgress     TaskStatus = "in_progress"
	TaskCompleted      TaskStatus = "completed"
	TaskFailed         TaskStatus = "failed"
	TaskCancelled      TaskStatus = "cancelled"
)

func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

type SessionStatus string

const (
	SessionInitiated SessionStatus = "initiated"
	SessionRinging   SessionStatus = "ringing"
	SessionConnected SessionStatus = "connected"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionCancelled
}

// ContactInfo is the phone contact a plan resolved for the call.
type ContactInfo struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Plan is the structured interpretation of a natural-language instruction.
// It is embedded into the Task at creation and never mutated afterwards.
type Plan struct {
	Goal                  string            `json:"goal"`
	Steps                 []string          `json:"steps"`
	Questions             []string          `json:"questions"`
	MissingInfo           []string          `json:"missing_info"`
	ContactInfo           *ContactInfo      `json:"contact_info,omitempty"`
	Tone                  string            `json:"tone,omitempty"`
	MaxPrice              float64           `json:"max_price,omitempty"`
	HardConstraints       map[string]string `json:"hard_constraints"`
	SoftPreferences       map[string]string `json:"soft_preferences"`
	RequiresClarification bool              `json:"requires_clarification"`
}

// NeedsUserInput reports whether the plan cannot proceed without the user
// answering questions or supplying missing information.
func (p *Plan) NeedsUserInput() bool {
	return len(p.MissingInfo) > 0 || p.RequiresClarification
}

// Task is a unit of work representing intent to place an outbound call.
type Task struct {
	ID                string            `json:"id"`
	OwnerID           string            `json:"owner_id"`
	Title             string            `json:"title"`
	Instruction       string            `json:"instruction"`
	Status            TaskStatus        `json:"status"`
	Priority          string            `json:"priority"`
	ContactID         string            `json:"contact_id,omitempty"`
	PhoneNumber       string            `json:"phone_number,omitempty"`
	Tone              string            `json:"tone,omitempty"`
	MaxPrice          float64           `json:"max_price,omitempty"`
	HardConstraints   map[string]string `json:"hard_constraints,omitempty"`
	SoftPreferences   map[string]string `json:"soft_preferences,omitempty"`
	NeedsConfirmation bool              `json:"needs_confirmation"`
	Plan              Plan              `json:"plan"`
	FailureReason     string            `json:"failure_reason,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Session is one concrete telephony attempt associated with a Task.
// ProviderKey is the opaque correlation key the provider reports events under.
type Session struct {
	ID              string        `json:"id"`
	TaskID          string        `json:"task_id"`
	ProviderKey     string        `json:"provider_key"`
	Status          SessionStatus `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	DurationSeconds int           `json:"duration_seconds,omitempty"`
	FailureReason   string        `json:"failure_reason,omitempty"`
}

// Contact is an address book entry passed to the planner for context.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Profile is the slice of the user record the planner needs.
type Profile struct {
	OwnerID  string `json:"owner_id"`
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Settings are the per-user knobs consulted by the retry policy.
type Settings struct {
	AutoRetryFailedCalls bool `json:"auto_retry_failed_calls"`
	MaxRetryAttempts     int  `json:"max_retry_attempts"`
}

// Notification is a best-effort alert handed to the delivery side channel.
type Notification struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
}
