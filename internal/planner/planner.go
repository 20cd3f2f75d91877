// Package planner turns a natural-language call instruction into a structured
// plan via an external OpenAI-compatible completion endpoint.
package planner

import (
	"context"

	"github.com/ndemidova/callline/internal/calltask"
)

// Planner converts an instruction plus user context into a Plan. Any error
// means no plan exists and the caller must abort whatever it was doing; a
// partially usable plan is never returned alongside an error.
type Planner interface {
	Plan(ctx context.Context, instruction string, profile calltask.Profile, contacts []calltask.Contact) (*calltask.Plan, error)
}
