package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/scrapedash/errors"
	"github.com/teranos/scrapedash/job"
)

type recorded struct {
	method    string
	path      string
	body      []byte
	requestID string
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, recorded{r.Method, r.URL.Path, body, r.Header.Get("X-Request-ID")})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Options{
		BaseURL: srv.URL + "/api",
		Timeout: 2 * time.Second,
		Logger:  zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)
	return c, &calls
}

func TestFetchSnapshot(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"uuid":"a","url":"https://a.example","status":"done","title":"A","h1":"A1","image_src":"/a.png","image_path":"media/a.png"},
			{"uuid":"","url":"https://broken.example","status":"done"},
			{"uuid":"b","url":"https://b.example","status":"downloading","title":"leaked"}
		]`))
	})

	records, err := c.FetchSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2, "malformed entry is skipped")

	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, job.StatusDone, records[0].Status)
	assert.Equal(t, "media/a.png", job.Value(records[0].ImagePath))
	assert.Nil(t, records[1].Title, "parse fields are gated by status")

	require.Len(t, *calls, 1)
	assert.Equal(t, http.MethodGet, (*calls)[0].method)
	assert.Equal(t, "/api/url/", (*calls)[0].path)
	assert.NotEmpty(t, (*calls)[0].requestID)
}

func TestFetchSnapshot_NotAList(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"nope"`))
	})

	_, err := c.FetchSnapshot(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedMessage))
}

func TestFetchSnapshot_ServerError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.FetchSnapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
}

func TestSubmitBatch(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"uuid":"n1","url":"https://x.example","status":"downloading","date":"2026-03-01T12:00:00Z"}]`))
	})

	batch := job.Batch{URLs: []job.BatchURL{{URL: "https://x.example"}}, Date: at}
	records, err := c.SubmitBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "n1", records[0].ID)
	assert.True(t, at.Equal(records[0].ScheduledAt))

	require.Len(t, *calls, 1)
	var sent map[string]any
	require.NoError(t, json.Unmarshal((*calls)[0].body, &sent))
	assert.Equal(t, []any{map[string]any{"url": "https://x.example"}}, sent["urls"])
	assert.Equal(t, "2026-03-01T12:00:00Z", sent["date"])
}

func TestSubmitBatch_Refused(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error_message":"Wait until 5 URLs are processed"}`))
	})

	_, err := c.SubmitBatch(context.Background(), job.Batch{URLs: []job.BatchURL{{URL: "https://x.example"}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSubmissionRefused))
	assert.Equal(t, "Wait until 5 URLs are processed", errors.Advisory(err))
}

func TestCancelJob(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	require.NoError(t, c.CancelJob(context.Background(), "abc"))
	require.Len(t, *calls, 1)
	assert.Equal(t, http.MethodPost, (*calls)[0].method)
	assert.Equal(t, "/api/url/abc/cancel/", (*calls)[0].path)
}

func TestEventsURL(t *testing.T) {
	c, err := New(Options{BaseURL: "https://scrape.example.com/api"})
	require.NoError(t, err)
	assert.Equal(t, "wss://scrape.example.com/api/events/", c.EventsURL())

	c, err = New(Options{BaseURL: "http://127.0.0.1:8000/"})
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8000/events/", c.EventsURL())
}

func TestNew_RejectsNonHTTP(t *testing.T) {
	_, err := New(Options{BaseURL: "ftp://example.com/"})
	assert.Error(t, err)
}

func TestRateLimiterHonoursContext(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	c.limiter.SetLimit(1.0 / 3600)
	c.limiter.SetBurst(1)

	_, err := c.FetchSnapshot(context.Background())
	require.NoError(t, err, "first request uses the burst")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.FetchSnapshot(ctx)
	assert.Error(t, err)
}
