package trace

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Turn accumulates steps for one conversation turn until sealed. A turn is
// used by a single pipeline goroutine; the mutex only guards against a
// misbehaving concurrent caller, not a supported access pattern.
type Turn struct {
	mu     sync.Mutex
	rec    *Record
	sealed bool
}

// TraceID returns the turn's public trace id.
func (t *Turn) TraceID() string { return t.rec.TraceID }

// Record appends one step. Calls after Seal are dropped.
func (t *Turn) Record(stage string, input, output interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return
	}
	t.rec.Steps = append(t.rec.Steps, Step{
		Seq:       len(t.rec.Steps) + 1,
		Stage:     stage,
		Input:     input,
		Output:    output,
		Timestamp: time.Now().UTC(),
	})
}

// Recorder creates turns and delivers sealed records to the local store and
// the optional shipper.
type Recorder struct {
	repo    Repository
	shipper Shipper
	logger  zerolog.Logger
}

// NewRecorder creates a Recorder. shipper may be nil.
func NewRecorder(repo Repository, shipper Shipper, logger zerolog.Logger) *Recorder {
	return &Recorder{repo: repo, shipper: shipper, logger: logger}
}

// Begin starts a new turn.
func (r *Recorder) Begin(userID string) *Turn {
	return &Turn{rec: &Record{
		TraceID:   NewTraceID(),
		UserID:    userID,
		StartedAt: time.Now().UTC(),
	}}
}

// Seal freezes the turn, stores the record locally, and ships it to the
// external collaborator in the background. Neither sink failure fails the
// turn; the sealed record is returned regardless.
func (r *Recorder) Seal(ctx context.Context, t *Turn, finalDisposition string) *Record {
	t.mu.Lock()
	if t.sealed {
		rec := t.rec
		t.mu.Unlock()
		return rec
	}
	t.sealed = true
	t.rec.FinalDisposition = finalDisposition
	t.rec.SealedAt = time.Now().UTC()
	rec := t.rec
	t.mu.Unlock()

	if err := r.repo.Store(ctx, rec); err != nil {
		r.logger.Error().Err(err).Str("trace_id", rec.TraceID).Msg("trace store failed")
	}

	if r.shipper != nil {
		go func(rec *Record) {
			shipCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.shipper.Ship(shipCtx, rec); err != nil {
				r.logger.Warn().Err(err).Str("trace_id", rec.TraceID).Msg("trace ship failed")
			}
		}(rec)
	}

	return rec
}

// Get retrieves a sealed record by its public id.
func (r *Recorder) Get(ctx context.Context, traceID string) (*Record, error) {
	return r.repo.GetByTraceID(ctx, traceID)
}
