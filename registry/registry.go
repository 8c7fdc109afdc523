// Package registry holds the authoritative in-memory set of jobs known to a
// dashboard session.
//
// The registry is owned by a single event loop and is not safe for
// concurrent use. Records are never removed: cancellation and failure are
// terminal statuses, not deletions.
package registry

import (
	"go.uber.org/zap"

	"github.com/teranos/scrapedash/errors"
	"github.com/teranos/scrapedash/job"
	"github.com/teranos/scrapedash/logger"
)

// Registry maps job id to record and remembers insertion order.
type Registry struct {
	records map[string]*job.Record
	order   []string
	logger  *zap.SugaredLogger
}

// New creates an empty registry.
func New(log *zap.SugaredLogger) *Registry {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Registry{
		records: make(map[string]*job.Record),
		logger:  log,
	}
}

// Upsert registers rec if its id is unseen and reports whether it did.
// For a known id the stored record is returned unchanged; callers mutate
// fields through ApplyStatus.
func (r *Registry) Upsert(rec job.Record) (*job.Record, bool) {
	if existing, ok := r.records[rec.ID]; ok {
		return existing, false
	}

	stored := rec.Clone()
	gated := stored.Fields().Gate(stored.Status)
	stored.Title, stored.Heading, stored.ImageSource, stored.ImagePath = nil, nil, nil, nil
	stored.Apply(gated)

	r.records[rec.ID] = &stored
	r.order = append(r.order, rec.ID)
	return &stored, true
}

// ApplyStatus moves an existing record to status and writes the fields that
// status allows. Unknown ids and non-monotonic transitions are logged and
// reported as ErrUnknownJob / ErrStaleTransition without touching state.
func (r *Registry) ApplyStatus(id string, status job.Status, fields job.Fields) (*job.Record, error) {
	rec, ok := r.records[id]
	if !ok {
		r.logger.Warnw("Status change for unknown job dropped",
			logger.FieldJobID, id,
			logger.FieldStatus, status,
		)
		return nil, errors.Wrapf(errors.ErrUnknownJob, "job %s", id)
	}

	if !rec.Status.CanTransition(status) {
		if rec.Status == status {
			r.logger.Debugw("Repeated status ignored",
				logger.FieldJobID, id,
				logger.FieldStatus, status,
			)
		} else {
			r.logger.Warnw("Unexpected status transition ignored",
				logger.FieldJobID, id,
				logger.FieldPrevStatus, rec.Status,
				logger.FieldStatus, status,
			)
		}
		return rec, errors.Wrapf(errors.ErrStaleTransition, "job %s: %s -> %s", id, rec.Status, status)
	}

	rec.Status = status
	rec.Apply(fields.Gate(status))
	return rec, nil
}

// Get returns the record for id.
func (r *Registry) Get(id string) (*job.Record, bool) {
	rec, ok := r.records[id]
	return rec, ok
}

// All returns the records in insertion order.
func (r *Registry) All() []*job.Record {
	out := make([]*job.Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id])
	}
	return out
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	return len(r.order)
}

// Count returns how many records have a status matching pred.
func (r *Registry) Count(pred func(job.Status) bool) int {
	n := 0
	for _, rec := range r.records {
		if pred(rec.Status) {
			n++
		}
	}
	return n
}
