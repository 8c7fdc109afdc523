package fakebackend

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/scrapedash/backend"
	"github.com/teranos/scrapedash/dashboard"
	"github.com/teranos/scrapedash/errors"
	"github.com/teranos/scrapedash/job"
	"github.com/teranos/scrapedash/push"
)

type env struct {
	server  *Server
	client  *backend.Client
	dialer  push.Dialer
	session *dashboard.Session
}

func setup(t *testing.T, opts Options) *env {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	opts.Logger = log.Named("fake")

	srv := New(opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})

	client, err := backend.New(backend.Options{BaseURL: ts.URL, Timeout: 2 * time.Second, Logger: log.Named("backend")})
	require.NoError(t, err)

	return &env{
		server: srv,
		client: client,
		dialer: push.Dialer{URL: client.EventsURL(), HandshakeTimeout: 2 * time.Second},
	}
}

func (e *env) startSession(t *testing.T) {
	t.Helper()
	e.session = dashboard.New(dashboard.Options{
		Backend:    e.client,
		Subscriber: e.dialer,
		Logger:     zaptest.NewLogger(t).Sugar(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.session.Run(ctx)
	}()
	// Registered after setup's cleanup, so it runs first
	t.Cleanup(func() {
		cancel()
		<-done
	})

	<-e.session.Ready()
	require.NoError(t, e.session.Err())
	require.Eventually(t, func() bool {
		page, err := e.session.View(context.Background())
		return err == nil && page.Live
	}, 2*time.Second, 5*time.Millisecond)
}

func (e *env) status(t *testing.T, id string) job.Record {
	t.Helper()
	records, err := e.session.Records(context.Background())
	require.NoError(t, err)
	for _, r := range records {
		if r.ID == id {
			return r
		}
	}
	return job.Record{}
}

func TestLifecycleReachesDone(t *testing.T) {
	e := setup(t, Options{Step: 5 * time.Millisecond})
	e.startSession(t)

	created, err := e.session.Submit(context.Background(), []string{"https://example.com"}, time.Now())
	require.NoError(t, err)
	require.Len(t, created, 1)
	id := created[0].ID

	require.Eventually(t, func() bool {
		return e.status(t, id).Status == job.StatusDone
	}, 5*time.Second, 10*time.Millisecond)

	rec := e.status(t, id)
	assert.Equal(t, "Title of example.com", job.Value(rec.Title))
	assert.Equal(t, "Welcome to example.com", job.Value(rec.Heading))
	assert.Equal(t, "https://example.com/logo.png", job.Value(rec.ImageSource))
	assert.Equal(t, "images/"+id+"-logo.png", job.Value(rec.ImagePath))

	records, err := e.session.Records(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1, "url_add after the submit response is a duplicate")
}

func TestDownloadErrorCarriesText(t *testing.T) {
	e := setup(t, Options{Step: 5 * time.Millisecond})
	e.startSession(t)

	created, err := e.session.Submit(context.Background(), []string{"https://nowhere.invalid"}, time.Now())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return e.status(t, created[0].ID).Status == job.StatusError
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, e.status(t, created[0].ID).Error, "Could not download")
}

func TestSnapshotSeedsLateSession(t *testing.T) {
	e := setup(t, Options{Step: time.Hour})

	_, err := e.client.SubmitBatch(context.Background(), job.Batch{
		URLs: []job.BatchURL{{URL: "https://a.example"}, {URL: "https://b.example"}},
		Date: time.Now(),
	})
	require.NoError(t, err)

	e.startSession(t)
	records, err := e.session.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "https://a.example", records[0].URL)
	assert.Equal(t, job.StatusDownloading, records[1].Status)
}

func TestServerQuotaRefusal(t *testing.T) {
	e := setup(t, Options{Step: time.Hour, Quota: 2})

	batch := job.Batch{URLs: []job.BatchURL{{URL: "https://a.example"}, {URL: "https://b.example"}}, Date: time.Now()}
	_, err := e.client.SubmitBatch(context.Background(), batch)
	require.NoError(t, err)

	_, err = e.client.SubmitBatch(context.Background(), batch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSubmissionRefused))
	assert.Equal(t, MsgLimitExceeded, errors.Advisory(err))
	assert.Len(t, e.server.Jobs(), 2)
}

func TestCancelWhileDownloading(t *testing.T) {
	e := setup(t, Options{Step: time.Hour})
	e.startSession(t)

	created, err := e.session.Submit(context.Background(), []string{"https://slow.example"}, time.Now())
	require.NoError(t, err)
	id := created[0].ID

	require.NoError(t, e.session.Cancel(context.Background(), id))
	require.Eventually(t, func() bool {
		return e.status(t, id).Status == job.StatusCancel
	}, 2*time.Second, 10*time.Millisecond)

	// Already terminal: refused locally
	err = e.session.Cancel(context.Background(), id)
	assert.True(t, errors.Is(err, errors.ErrCancelIneligible))
}

func TestCancelUnknownIsHarmless(t *testing.T) {
	e := setup(t, Options{})
	require.NoError(t, e.client.CancelJob(context.Background(), "does-not-exist"))
}

func TestScheduledParseWaits(t *testing.T) {
	e := setup(t, Options{Step: 5 * time.Millisecond})
	e.startSession(t)

	created, err := e.session.Submit(context.Background(), []string{"https://later.example"}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	id := created[0].ID

	require.Eventually(t, func() bool {
		return e.status(t, id).Status == job.StatusDownloaded
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, job.StatusDownloaded, e.status(t, id).Status, "parsing waits for the scheduled time")
}
