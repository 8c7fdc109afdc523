// Package fakebackend is an in-memory scraping backend with the same routes
// and push messages as the real one. Jobs walk through the download, parse
// and image stages on a timer instead of touching the network.
package fakebackend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teranos/scrapedash/job"
	"github.com/teranos/scrapedash/logger"
)

// Defaults match the real backend
const (
	DefaultStep  = time.Second
	DefaultQuota = 5

	// MsgLimitExceeded is returned as error_message when too many jobs are unparsed
	MsgLimitExceeded = "Too many URLs are being processed at once"
)

// Options configures a Server
type Options struct {
	Step   time.Duration // delay between lifecycle stages
	Quota  int
	Logger *zap.SugaredLogger
}

// Server holds jobs and connected push clients
type Server struct {
	step     time.Duration
	quota    int
	logger   *zap.SugaredLogger
	router   chi.Router
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	jobs    map[string]*entry
	order   []string
	clients map[*client]struct{}
}

type entry struct {
	rec  job.Record
	stop chan struct{} // closed when cancellation succeeds
	// parsing cannot be interrupted; a cancel during it fails and the
	// pipeline keeps publishing
	cancelFailed bool
}

// New creates a Server. Call Close to stop job workers and push clients.
func New(opts Options) *Server {
	if opts.Step <= 0 {
		opts.Step = DefaultStep
	}
	if opts.Quota < 1 {
		opts.Quota = DefaultQuota
	}
	if opts.Logger == nil {
		opts.Logger = logger.ComponentLogger("fakebackend")
	}

	s := &Server{
		step:    opts.Step,
		quota:   opts.Quota,
		logger:  opts.Logger,
		jobs:    make(map[string]*entry),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)

	r.Get("/url/", s.handleList)
	r.Post("/url/", s.handleAdd)
	r.Post("/url/{uuid}/cancel/", s.handleCancel)
	r.Get("/events/", s.handleEvents)
	s.router = r
	return s
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops all job workers and disconnects push clients
func (s *Server) Close() {
	s.cancel()

	s.mu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Jobs returns a copy of every job in creation order
func (s *Server) Jobs() []job.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]job.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].rec.Clone())
	}
	return out
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	wires := make([]job.Wire, 0, len(s.order))
	for _, id := range s.order {
		wires = append(wires, job.ToWire(s.jobs[id].rec))
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, wires)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var batch job.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeJSON(w, http.StatusBadRequest, job.Refusal{Message: "Invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		writeJSON(w, http.StatusServiceUnavailable, job.Refusal{Message: "Server is shutting down"})
		return
	}

	active := 0
	for _, e := range s.jobs {
		if e.rec.Status.Active() {
			active++
		}
	}
	if active >= s.quota {
		s.logger.Infow("Submission refused",
			logger.FieldActive, active,
			logger.FieldQuota, s.quota,
		)
		// The real backend answers 200 with the refusal object
		writeJSON(w, http.StatusOK, job.Refusal{Message: MsgLimitExceeded})
		return
	}

	created := make([]job.Wire, 0, len(batch.URLs))
	for _, u := range batch.URLs {
		e := &entry{
			rec: job.Record{
				ID:          uuid.New().String(),
				URL:         u.URL,
				Status:      job.StatusDownloading,
				ScheduledAt: batch.Date.UTC(),
			},
			stop: make(chan struct{}),
		}
		s.jobs[e.rec.ID] = e
		s.order = append(s.order, e.rec.ID)

		// Same order as the real backend: status first, then the announcement
		s.publishLocked(&job.StatusChange{ID: e.rec.ID, Status: job.StatusDownloading})
		s.publishLocked(&job.URLAdd{Record: e.rec})

		s.wg.Add(1)
		go s.process(e.rec.ID, e.stop)
		created = append(created, job.ToWire(e.rec))
	}

	writeJSON(w, http.StatusOK, created)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok || e.rec.Status.Terminal() {
		w.WriteHeader(http.StatusOK)
		return
	}

	interruptible := e.rec.Status != job.StatusParsing
	e.rec.Status = job.StatusCancel
	s.publishLocked(&job.StatusChange{ID: id, Status: job.StatusCancel})

	if interruptible {
		close(e.stop)
		s.publishRawLocked(id, "cancelled", job.Fields{})
	} else {
		e.cancelFailed = true
		e.rec.Status = job.StatusFailToCancel
		s.publishLocked(&job.StatusChange{ID: id, Status: job.StatusFailToCancel})
	}
	s.logger.Infow("Job cancelled",
		logger.FieldJobID, id,
		"interrupted", interruptible,
	)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debugw("Request",
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldCode, ww.Status(),
			logger.FieldRequestID, middleware.GetReqID(r.Context()),
			logger.FieldDuration, time.Since(start).Milliseconds(),
		)
	})
}

// process walks one job through its lifecycle
func (s *Server) process(id string, stop <-chan struct{}) {
	defer s.wg.Done()

	s.mu.Lock()
	rec := s.jobs[id].rec
	s.mu.Unlock()

	if !s.pause(stop) {
		return
	}
	u, err := url.Parse(rec.URL)
	if err != nil || strings.HasSuffix(u.Hostname(), ".invalid") {
		msg := "Could not download URL content (no such host)"
		s.advance(id, job.StatusError, job.Fields{Error: &msg})
		return
	}
	if !s.advance(id, job.StatusDownloaded, job.Fields{}) {
		return
	}

	// Parsing waits for the scheduled time
	for time.Now().Before(rec.ScheduledAt) {
		if !s.pause(stop) {
			return
		}
	}
	if !s.advance(id, job.StatusParsing, job.Fields{}) {
		return
	}
	if !s.pause(s.ctx.Done()) {
		return
	}

	host := u.Hostname()
	title := "Title of " + host
	heading := "Welcome to " + host
	src := strings.TrimSuffix(rec.URL, "/") + "/logo.png"
	parsed := job.Fields{Title: &title, Heading: &heading, ImageSource: &src}
	if !s.advanceAs(id, job.StatusParsingDone, "done_parsing", parsed) {
		return
	}

	if !s.advance(id, job.StatusImageLoad, job.Fields{}) || !s.pause(stop) {
		return
	}
	imagePath := path.Join("images", id+"-"+path.Base(src))
	s.advance(id, job.StatusDone, job.Fields{Title: &title, Heading: &heading, ImageSource: &src, ImagePath: &imagePath})
}

// pause waits one step. It returns false when stop closes or the server shuts down.
func (s *Server) pause(stop <-chan struct{}) bool {
	t := time.NewTimer(s.step)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	case <-s.ctx.Done():
		return false
	}
}

func (s *Server) advance(id string, status job.Status, fields job.Fields) bool {
	return s.advanceAs(id, status, "", fields)
}

// advanceAs moves the job to status and publishes it, using wire as the
// status spelling when set. It returns false if the job was cancelled.
func (s *Server) advanceAs(id string, status job.Status, wire string, fields job.Fields) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.jobs[id]
	if e.rec.Status == job.StatusCancel && !e.cancelFailed {
		return false
	}

	e.rec.Status = status
	e.rec.Apply(fields)
	if wire != "" {
		s.publishRawLocked(id, wire, fields)
	} else {
		s.publishLocked(&job.StatusChange{ID: id, Status: status, Fields: fields})
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
