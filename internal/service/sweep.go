package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ndemidova/callline/internal/store"
)

const DefaultStaleSessionAge = 15 * time.Minute

// Sweeper fails sessions the provider stopped reporting on. A stuck session
// is pushed through the normal ingest path with a synthetic timeout event, so
// the retry policy and notifications apply exactly as for a reported failure.
type Sweeper struct {
	store    *store.Store
	ingestor *Ingestor
	maxAge   time.Duration
	log      *zap.SugaredLogger
}

func NewSweeper(st *store.Store, in *Ingestor, maxAge time.Duration, log *zap.SugaredLogger) *Sweeper {
	if maxAge <= 0 {
		maxAge = DefaultStaleSessionAge
	}
	return &Sweeper{store: st, ingestor: in, maxAge: maxAge, log: log}
}

// Sweep fails every open session older than maxAge. Individual failures are
// logged and do not stop the sweep.
func (s *Sweeper) Sweep(ctx context.Context) {
	sessions, err := s.store.ListOpenSessions(ctx)
	if err != nil {
		s.log.Errorw("sweep: list open sessions failed", "error", err)
		return
	}

	cutoff := time.Now().UTC().Add(-s.maxAge)
	for _, sess := range sessions {
		if sess.StartedAt.After(cutoff) {
			continue
		}

		s.log.Infow("sweeping stale session", "session", sess.ID, "task", sess.TaskID, "started_at", sess.StartedAt)
		ev := Event{CorrelationKey: sess.ProviderKey, ProviderStatus: "timeout"}
		if err := s.ingestor.Ingest(ctx, ev); err != nil {
			s.log.Errorw("sweep: ingest timeout failed", "session", sess.ID, "error", err)
		}
	}
}
