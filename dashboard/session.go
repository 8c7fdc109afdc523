// Package dashboard runs a dashboard session: one event loop that owns the
// job registry, paginator, reconciler and submission gate.
//
// Every state change happens inside a closure executed by the loop, so none
// of the owned components is locked. Network calls run on the caller's
// goroutine or a background goroutine, and their results are posted back to
// the loop. The push channel is dialled only once the initial snapshot has
// been applied.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/scrapedash/errors"
	"github.com/teranos/scrapedash/gate"
	"github.com/teranos/scrapedash/job"
	"github.com/teranos/scrapedash/logger"
	"github.com/teranos/scrapedash/paginate"
	"github.com/teranos/scrapedash/push"
	"github.com/teranos/scrapedash/reconcile"
	"github.com/teranos/scrapedash/registry"
)

// inboxSize bounds how many posted closures may wait for the loop.
const inboxSize = 64

// Backend is the request/response side of the scraping backend.
type Backend interface {
	FetchSnapshot(ctx context.Context) ([]job.Record, error)
	SubmitBatch(ctx context.Context, batch job.Batch) ([]job.Record, error)
	CancelJob(ctx context.Context, id string) error
}

// Subscriber opens the push channel.
type Subscriber interface {
	Dial(ctx context.Context) (push.Conn, error)
}

// Options configures a Session.
type Options struct {
	Backend    Backend
	Subscriber Subscriber // nil disables live updates
	Renderer   Renderer
	Notifier   Notifier
	PageSize   int
	Quota      int
	Logger     *zap.SugaredLogger
}

// Session is one dashboard. Create it with New and drive it with Run.
type Session struct {
	id         string
	backend    Backend
	subscriber Subscriber
	renderer   Renderer
	notifier   Notifier
	logger     *zap.SugaredLogger
	pushLogger *zap.SugaredLogger

	// Owned by the loop
	registry   *registry.Registry
	pages      *paginate.Paginator
	reconciler *reconcile.Reconciler
	gate       *gate.Gate
	attached   bool
	live       bool
	recomputes int

	ctx     context.Context
	cancel  context.CancelFunc
	inbox   chan func()
	stopped chan struct{}
	started atomic.Bool
	wg      sync.WaitGroup

	ready     chan struct{}
	readyOnce sync.Once
	readyErr  error
}

// New creates a session. Nothing touches the network until Run.
func New(opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = logger.ComponentLogger("dashboard")
	}
	id := uuid.New().String()
	log = log.With(logger.FieldSessionID, id)

	s := &Session{
		id:         id,
		backend:    opts.Backend,
		subscriber: opts.Subscriber,
		renderer:   opts.Renderer,
		notifier:   opts.Notifier,
		logger:     log,
		pushLogger: log.Named("push"),
		pages:      paginate.New(opts.PageSize),
		inbox:      make(chan func(), inboxSize),
		stopped:    make(chan struct{}),
		ready:      make(chan struct{}),
	}
	if s.renderer == nil {
		s.renderer = nopRenderer{}
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}

	s.registry = registry.New(log.Named("registry"))
	s.reconciler = reconcile.New(s.registry, listener{s}, log.Named("reconcile"))
	s.gate = gate.New(s.registry, opts.Quota)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Ready is closed once the initial snapshot has been applied or has failed.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Err returns the initial snapshot error. Only meaningful after Ready.
func (s *Session) Err() error {
	select {
	case <-s.ready:
		return s.readyErr
	default:
		return nil
	}
}

// Run executes the event loop until ctx ends. It fetches the snapshot,
// applies it, and then attaches the push channel.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("session already running")
	}

	go func() {
		select {
		case <-ctx.Done():
			s.cancel()
		case <-s.ctx.Done():
		}
	}()

	defer func() {
		s.cancel()
		close(s.stopped)
		s.wg.Wait()
		s.markReady(errors.ErrSessionStopped)
		s.logger.Debugw("Session stopped")
	}()

	s.logger.Infow("Session started")
	s.wg.Add(1)
	go s.bootstrap()

	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.ctx.Done():
			return nil
		}
	}
}

// Stop ends Run.
func (s *Session) Stop() {
	s.cancel()
}

func (s *Session) bootstrap() {
	defer s.wg.Done()

	start := time.Now()
	records, err := s.backend.FetchSnapshot(s.ctx)
	s.post(func() {
		defer s.markReady(err)
		if err != nil {
			s.logger.Warnw("Initial snapshot failed", logger.FieldError, err)
			s.notifier.Notify(Notice{Kind: NoticeError, Text: "Could not load jobs: " + errors.Advisory(err)})
			s.renderPage()
			return
		}

		if created := s.reconciler.ApplySnapshot(records); created == 0 {
			s.renderPage()
		}
		s.logger.Infow("Initial snapshot applied",
			logger.FieldCount, s.registry.Len(),
			logger.FieldDuration, time.Since(start).Milliseconds(),
		)
		s.attach()
	})
}

// attach starts the push reader. Runs on the loop.
func (s *Session) attach() {
	if s.attached || s.subscriber == nil {
		return
	}
	s.attached = true
	s.wg.Add(1)
	go s.listen()
}

func (s *Session) listen() {
	defer s.wg.Done()

	conn, err := s.subscriber.Dial(s.ctx)
	if err != nil {
		if s.ctx.Err() == nil {
			// never attached, so a later Refresh dials again
			s.post(func() {
				s.attached = false
				s.channelClosed(err)
			})
		}
		return
	}

	s.post(func() {
		s.live = true
		s.logger.Infow("Push channel attached")
	})

	err = push.Listen(s.ctx, conn, func(m job.Message) {
		s.post(func() { s.handle(m) })
	}, s.pushLogger)
	if s.ctx.Err() != nil {
		return
	}
	s.post(func() { s.channelClosed(err) })
}

func (s *Session) handle(m job.Message) {
	err := s.reconciler.Handle(m)
	if err != nil && !errors.IsBenign(err) {
		s.logger.Warnw("Push message not applied",
			logger.FieldMessage, m.Kind(),
			logger.FieldJobID, m.JobID(),
			logger.FieldError, err,
		)
	}
}

func (s *Session) channelClosed(err error) {
	s.live = false
	s.logger.Warnw("Live updates stopped", logger.FieldError, err)
	s.notifier.Notify(Notice{
		Kind: NoticeChannelClosed,
		Text: "Live updates stopped; the list may be stale until you refresh",
	})
	s.renderPage()
}

// Submit admits rows through the gate and, if accepted, sends one batch
// scheduled at at. The created jobs are reconciled like snapshot entries.
// Until the request completes its URLs count towards the quota, so
// concurrent calls cannot overrun it.
func (s *Session) Submit(ctx context.Context, rows []string, at time.Time) ([]job.Record, error) {
	var batch job.Batch
	err := s.exec(ctx, func() error {
		b, err := s.gate.AdmitBatch(rows, at)
		if err != nil {
			s.logger.Infow("Submission refused",
				logger.FieldActive, s.gate.InFlight(),
				logger.FieldQuota, s.gate.Quota(),
				logger.FieldError, err,
			)
			s.notifier.Notify(Notice{Kind: NoticeRefused, Text: errors.Advisory(err)})
			return err
		}
		batch = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	created, err := s.backend.SubmitBatch(s.ctx, batch)
	var out []job.Record
	cerr := s.complete(ctx, func() error {
		s.gate.Release(len(batch.URLs))
		if err != nil {
			kind := NoticeError
			if errors.Is(err, errors.ErrSubmissionRefused) {
				kind = NoticeRefused
			}
			s.logger.Warnw("Submit failed", logger.FieldError, err)
			s.notifier.Notify(Notice{Kind: kind, Text: errors.Advisory(err)})
			return err
		}

		s.reconciler.ApplySnapshot(created)
		for _, rec := range created {
			if stored, ok := s.registry.Get(rec.ID); ok {
				out = append(out, stored.Clone())
			}
		}
		s.notifier.Notify(Notice{Kind: NoticeInfo, Text: fmt.Sprintf("Submitted %d URL(s)", len(created))})
		return nil
	})
	return out, cerr
}

// Cancel requests cancellation of id. Jobs that are no longer active are
// refused locally and no request is sent.
func (s *Session) Cancel(ctx context.Context, id string) error {
	err := s.exec(ctx, func() error {
		if err := s.gate.CheckCancel(id); err != nil {
			s.notifier.Notify(Notice{Kind: NoticeIneligible, Text: errors.Advisory(err), JobID: id})
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = s.backend.CancelJob(s.ctx, id)
	return s.complete(ctx, func() error {
		if err != nil {
			s.logger.Warnw("Cancel request failed", logger.FieldJobID, id, logger.FieldError, err)
			s.notifier.Notify(Notice{Kind: NoticeError, Text: errors.Advisory(err), JobID: id})
			return err
		}
		s.logger.Infow("Cancellation requested", logger.FieldJobID, id)
		s.notifier.Notify(Notice{Kind: NoticeInfo, Text: "Cancellation requested", JobID: id})
		return nil
	})
}

// SelectPage shows page k.
func (s *Session) SelectPage(ctx context.Context, k int) error {
	return s.exec(ctx, func() error {
		if err := s.pages.Select(k); err != nil {
			return err
		}
		s.renderPage()
		return nil
	})
}

// Refresh fetches a new snapshot and reconciles it. If the push channel was
// never attached, because the initial snapshot or the dial failed, it is
// attached now. A channel that attached and later closed is not reopened.
func (s *Session) Refresh(ctx context.Context) error {
	records, err := s.backend.FetchSnapshot(s.ctx)
	return s.complete(ctx, func() error {
		if err != nil {
			s.notifier.Notify(Notice{Kind: NoticeError, Text: "Could not load jobs: " + errors.Advisory(err)})
			return err
		}
		if created := s.reconciler.ApplySnapshot(records); created == 0 {
			s.renderPage()
		}
		s.attach()
		return nil
	})
}

// Resize changes the page size and recomputes pages.
func (s *Session) Resize(ctx context.Context, size int) error {
	return s.exec(ctx, func() error {
		if size == s.pages.PageSize() {
			return nil
		}
		s.pages.SetPageSize(size)
		s.pages.Recompute(s.registry.All())
		s.logger.Infow("Page size changed", logger.FieldPageSize, s.pages.PageSize())
		s.renderPage()
		return nil
	})
}

// Records returns copies of every record in insertion order.
func (s *Session) Records(ctx context.Context) ([]job.Record, error) {
	var out []job.Record
	err := s.exec(ctx, func() error {
		for _, rec := range s.registry.All() {
			out = append(out, rec.Clone())
		}
		return nil
	})
	return out, err
}

// View returns the current page.
func (s *Session) View(ctx context.Context) (Page, error) {
	var page Page
	err := s.exec(ctx, func() error {
		page = s.page()
		return nil
	})
	return page, err
}

// Stats returns reconciliation counters and how many times pages were
// recomputed because membership changed.
func (s *Session) Stats(ctx context.Context) (reconcile.Stats, int, error) {
	var stats reconcile.Stats
	var recomputes int
	err := s.exec(ctx, func() error {
		stats = s.reconciler.Stats()
		recomputes = s.recomputes
		return nil
	})
	return stats, recomputes, err
}

func (s *Session) page() Page {
	view := s.pages.View()
	page := Page{
		View:     view,
		Total:    s.registry.Len(),
		InFlight: s.gate.InFlight(),
		Quota:    s.gate.Quota(),
		Live:     s.live,
	}
	for _, id := range view.Visible {
		if rec, ok := s.registry.Get(id); ok {
			page.Records = append(page.Records, rec.Clone())
		}
	}
	return page
}

func (s *Session) renderPage() {
	s.renderer.RenderPage(s.page())
}

func (s *Session) markReady(err error) {
	s.readyOnce.Do(func() {
		s.readyErr = err
		close(s.ready)
	})
}

// post hands fn to the loop. It returns false once the loop has stopped.
func (s *Session) post(fn func()) bool {
	select {
	case s.inbox <- fn:
		return true
	case <-s.stopped:
		return false
	}
}

// exec runs fn on the loop and waits for its result. A caller whose ctx
// ends first gets ctx.Err(); fn may still run.
func (s *Session) exec(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	select {
	case s.inbox <- func() { result <- fn() }:
	case <-s.stopped:
		return errors.ErrSessionStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.wait(ctx, result)
}

// complete delivers the outcome of a network call to the loop. Unlike exec
// the closure is always posted, so a finished request is never dropped.
func (s *Session) complete(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if !s.post(func() { result <- fn() }) {
		return errors.ErrSessionStopped
	}
	return s.wait(ctx, result)
}

func (s *Session) wait(ctx context.Context, result <-chan error) error {
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		select {
		case err := <-result:
			return err
		default:
			return errors.ErrSessionStopped
		}
	}
}

// listener adapts the session to reconcile.Listener.
type listener struct {
	s *Session
}

func (l listener) MembershipChanged(records []*job.Record) {
	l.s.pages.Recompute(records)
	l.s.recomputes++
	l.s.logger.Debugw("Pages recomputed",
		logger.FieldCount, len(records),
		logger.FieldPages, l.s.pages.Len(),
	)
	l.s.renderPage()
}

func (l listener) RecordUpdated(rec *job.Record) {
	l.s.renderer.RenderRecord(rec.Clone(), l.s.pages.Visible(rec.ID))
}
