// Package reconcile applies snapshot entries and push notifications to the
// job registry.
//
// Both origins go through the same creation rule: an id is registered at
// most once, and a repeated creation never re-renders the job. A creation
// changes membership and triggers a page recompute; a status change only
// updates one record in place.
package reconcile

import (
	"go.uber.org/zap"

	"github.com/teranos/scrapedash/errors"
	"github.com/teranos/scrapedash/job"
	"github.com/teranos/scrapedash/logger"
	"github.com/teranos/scrapedash/registry"
)

// Listener receives the consequences of reconciliation.
type Listener interface {
	// MembershipChanged is called once per creating event or snapshot batch
	// with every record in insertion order.
	MembershipChanged(records []*job.Record)

	// RecordUpdated is called after a record's status and fields changed in place.
	RecordUpdated(rec *job.Record)
}

// Stats counts reconciliation outcomes for a session.
type Stats struct {
	Created    int
	Updated    int
	Duplicates int
	Dropped    int
	Stale      int
}

// Reconciler is the single entry point for inbound job state.
type Reconciler struct {
	registry *registry.Registry
	listener Listener
	logger   *zap.SugaredLogger
	stats    Stats
}

// New creates a reconciler writing to reg and reporting to listener.
func New(reg *registry.Registry, listener Listener, log *zap.SugaredLogger) *Reconciler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reconciler{registry: reg, listener: listener, logger: log}
}

// Stats returns the outcome counters so far.
func (r *Reconciler) Stats() Stats {
	return r.stats
}

// ApplySnapshot reconciles a full listing. New ids are registered and
// announced with a single membership change. A known id is not created
// again, but a later status it carries is folded in as an in-place update so
// a manual refresh can catch up after the push channel is lost.
func (r *Reconciler) ApplySnapshot(entries []job.Record) int {
	created := 0
	for _, entry := range entries {
		ok, err := r.create(entry)
		if ok {
			created++
			continue
		}
		if errors.Is(err, errors.ErrDuplicateJob) {
			existing, _ := r.registry.Get(entry.ID)
			if existing.Status.CanTransition(entry.Status) {
				r.change(&job.StatusChange{ID: entry.ID, Status: entry.Status, Fields: entry.Fields()})
			}
		}
	}

	if created > 0 {
		r.listener.MembershipChanged(r.registry.All())
	}
	r.logger.Debugw("Snapshot reconciled",
		logger.FieldCount, len(entries),
		logger.FieldCreated, created,
	)
	return created
}

// Handle reconciles one push notification. The returned error is one of the
// benign outcomes (duplicate, unknown id, stale transition) and is only
// informational; the event has already been logged and dropped.
func (r *Reconciler) Handle(msg job.Message) error {
	switch m := msg.(type) {
	case *job.URLAdd:
		created, err := r.create(m.Record)
		if created {
			r.listener.MembershipChanged(r.registry.All())
		}
		return err

	case *job.StatusChange:
		return r.change(m)

	default:
		r.logger.Warnw("Unsupported message ignored", logger.FieldMessage, msg)
		return errors.Wrapf(errors.ErrMalformedMessage, "unsupported message %T", msg)
	}
}

func (r *Reconciler) create(rec job.Record) (bool, error) {
	if _, created := r.registry.Upsert(rec); !created {
		r.stats.Duplicates++
		r.logger.Debugw("Duplicate job creation ignored",
			logger.FieldJobID, rec.ID,
			logger.FieldStatus, rec.Status,
		)
		return false, errors.Wrapf(errors.ErrDuplicateJob, "job %s", rec.ID)
	}

	r.stats.Created++
	r.logger.Debugw("Job registered",
		logger.FieldJobID, rec.ID,
		logger.FieldURL, rec.URL,
		logger.FieldStatus, rec.Status,
	)
	return true, nil
}

func (r *Reconciler) change(m *job.StatusChange) error {
	rec, err := r.registry.ApplyStatus(m.ID, m.Status, m.Fields)
	switch {
	case errors.Is(err, errors.ErrUnknownJob):
		r.stats.Dropped++
		return err
	case err != nil:
		r.stats.Stale++
		return err
	}

	r.stats.Updated++
	r.listener.RecordUpdated(rec)
	return nil
}
