package commands

import (
	"bytes"
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
	"github.com/teranos/scrapedash/internal/fakebackend"
	"github.com/teranos/scrapedash/job"
)

func TestParseCommand(t *testing.T) {
	at := time.Date(2026, 10, 17, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		line string
		want command
	}{
		{"", command{}},
		{"   ", command{}},
		{"help", command{name: "help"}},
		{"QUIT", command{name: "quit"}},
		{"q", command{name: "quit"}},
		{"refresh", command{name: "refresh"}},
		{"page 2", command{name: "page", page: 1}},
		{"resize 10", command{name: "resize", size: 10}},
		{"cancel 3f2a", command{name: "cancel", id: "3f2a"}},
		{"submit https://a.example @2026-10-17T18:00:00Z", command{name: "submit", urls: []string{"https://a.example"}, at: at}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand_SubmitDefaultsToNow(t *testing.T) {
	before := time.Now()
	got, err := parseCommand("submit https://a.example https://b.example")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, got.urls)
	assert.False(t, got.at.Before(before))
}

func TestParseCommand_Errors(t *testing.T) {
	for _, line := range []string{
		"page",
		"page 0",
		"page two",
		"resize -1",
		"submit",
		"submit @2026-10-17T18:00:00Z",
		"submit https://a.example @tomorrow",
		"cancel",
		"cancel a b",
		"refresh now",
		"scrape https://a.example",
	} {
		t.Run(line, func(t *testing.T) {
			_, err := parseCommand(line)
			assert.Error(t, err)
		})
	}
}

func TestResolveID(t *testing.T) {
	records := []job.Record{
		{ID: "3f2a0000-aaaa"},
		{ID: "3f2b0000-bbbb"},
		{ID: "77"},
		{ID: "770"},
	}

	id, err := resolveID(records, "3f2a")
	require.NoError(t, err)
	assert.Equal(t, "3f2a0000-aaaa", id)

	// an exact id wins over longer ids sharing it as a prefix
	id, err = resolveID(records, "77")
	require.NoError(t, err)
	assert.Equal(t, "77", id)

	_, err = resolveID(records, "3f")
	require.Error(t, err)
	assert.Contains(t, errors.FlattenHints(err), "2 jobs match")

	_, err = resolveID(records, "ffff")
	assert.True(t, errors.Is(err, errors.ErrUnknownJob))
}

// startSession runs a session against an in-memory backend whose jobs stay
// downloading for the duration of the test.
func startSession(t *testing.T) (*dashboard.Session, *fakebackend.Server) {
	t.Helper()

	log := zaptest.NewLogger(t).Sugar()
	fake := fakebackend.New(fakebackend.Options{Step: time.Hour, Logger: log.Named("fake")})
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(fake.Close)

	client, err := backend.New(backend.Options{BaseURL: srv.URL, Logger: log.Named("backend")})
	require.NoError(t, err)

	session := dashboard.New(dashboard.Options{
		Backend:  client,
		PageSize: 1,
		Logger:   log.Named("dashboard"),
	})
	done := make(chan error, 1)
	go func() { done <- session.Run(context.Background()) }()
	t.Cleanup(func() {
		session.Stop()
		<-done
	})

	select {
	case <-session.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("session never became ready")
	}
	require.NoError(t, session.Err())
	return session, fake
}

func TestExecute(t *testing.T) {
	session, fake := startSession(t)
	ctx := context.Background()
	var out bytes.Buffer

	quit, err := execute(ctx, session, "", "submit https://a.example https://b.example", &out)
	require.NoError(t, err)
	assert.False(t, quit)

	records, err := session.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	_, err = execute(ctx, session, "", "page 2", &out)
	require.NoError(t, err)
	view, err := session.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Active)

	_, err = execute(ctx, session, "", "page 5", &out)
	assert.True(t, errors.Is(err, errors.ErrPageOutOfRange))
	assert.Contains(t, errors.FlattenHints(err), "2 page(s)")

	_, err = execute(ctx, session, "", "cancel "+records[0].ID[:8], &out)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		for _, rec := range fake.Jobs() {
			if rec.ID == records[0].ID {
				return rec.Status == job.StatusCancel
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	_, err = execute(ctx, session, "", "cancel nope", &out)
	assert.True(t, errors.Is(err, errors.ErrUnknownJob))

	_, err = execute(ctx, session, "", "resize 2", &out)
	require.NoError(t, err)
	view, err = session.View(ctx)
	require.NoError(t, err)
	assert.Len(t, view.Pages, 1)

	_, err = execute(ctx, session, "", "help", &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "cancel ID")

	quit, err = execute(ctx, session, "", "quit", &out)
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestExecute_AfterStop(t *testing.T) {
	session, _ := startSession(t)
	session.Stop()

	require.Eventually(t, func() bool {
		quit, err := execute(context.Background(), session, "", "refresh", &bytes.Buffer{})
		return quit && errors.Is(err, errors.ErrSessionStopped)
	}, 5*time.Second, 10*time.Millisecond)
}
