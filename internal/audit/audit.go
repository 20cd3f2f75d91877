// Package audit keeps a durable trail of every task and session status
// transition for postmortem diagnostics. Writes are best-effort: a failed
// audit insert must never block the transition it describes, so callers log
// the returned error and move on.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const schema = `
CREATE TABLE IF NOT EXISTS transitions (
    id          VARCHAR(64) PRIMARY KEY,
    entity      VARCHAR(16) NOT NULL,
    entity_id   VARCHAR(64) NOT NULL,
    from_status VARCHAR(32) NOT NULL,
    to_status   VARCHAR(32) NOT NULL,
    reason      TEXT        NOT NULL,
    recorded_at DATETIME    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_entity ON transitions (entity, entity_id);
`

// Transition is one recorded status change.
type Transition struct {
	ID         string
	Entity     string
	EntityID   string
	FromStatus string
	ToStatus   string
	Reason     string
	RecordedAt time.Time
}

// Recorder writes transitions to a relational store. A nil Recorder is a
// valid no-op, matching the best-effort contract.
type Recorder struct {
	db *sql.DB
}

func NewRecorder(db *sql.DB) (*Recorder, error) {
	if db == nil {
		return nil, fmt.Errorf("nil db")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

func (r *Recorder) Record(ctx context.Context, entity, entityID, from, to, reason string) error {
	if r == nil || r.db == nil {
		return nil
	}

	query := `INSERT INTO transitions (id, entity, entity_id, from_status, to_status, reason, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		uuid.New().String(), entity, entityID, from, to, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// History returns the recorded transitions for one entity, oldest first.
func (r *Recorder) History(ctx context.Context, entity, entityID string) ([]Transition, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("nil recorder")
	}

	query := `SELECT id, entity, entity_id, from_status, to_status, reason, recorded_at
		FROM transitions WHERE entity = ? AND entity_id = ? ORDER BY recorded_at, id`
	rows, err := r.db.QueryContext(ctx, query, entity, entityID)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.ID, &t.Entity, &t.EntityID, &t.FromStatus, &t.ToStatus, &t.Reason, &t.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, t)
	}

	return out, rows.Err()
}
