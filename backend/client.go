// Package backend is the HTTP side of the scraping backend: snapshot fetch,
// batch submission and cancellation. The push channel lives in package push.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/scrapedash/errors"
	"github.com/teranos/scrapedash/job"
	"github.com/teranos/scrapedash/logger"
	"github.com/teranos/scrapedash/version"
)

// Route paths relative to the base URL
const (
	JobsPath   = "url/"
	EventsPath = "events/"
)

// maxBodyBytes bounds response bodies read from the backend
const maxBodyBytes = 4 << 20

// Options configures a Client
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int // 0 = unlimited
	Verbosity         int // logger.Verbosity*; bodies are logged at trace
	HTTPClient        *http.Client
	Logger            *zap.SugaredLogger
}

// Client talks to the backend's url/ routes
type Client struct {
	base      *url.URL
	http      *http.Client
	limiter   *rate.Limiter
	verbosity int
	logger    *zap.SugaredLogger
}

// New creates a Client. BaseURL must be an absolute http(s) URL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid backend URL %q", opts.BaseURL)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.Newf("backend URL must be http or https, got %q", opts.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), 1)
	}

	log := opts.Logger
	if log == nil {
		log = logger.ComponentLogger("backend")
	}

	return &Client{
		base:      base,
		http:      httpClient,
		limiter:   limiter,
		verbosity: opts.Verbosity,
		logger:    log,
	}, nil
}

// BaseURL returns the normalised base URL
func (c *Client) BaseURL() string {
	return c.base.String()
}

// EventsURL returns the websocket URL of the push channel
func (c *Client) EventsURL() string {
	return httpToWS(c.resolve(EventsPath))
}

// FetchSnapshot returns every job the backend knows, in backend order.
// Entries that fail validation are logged and skipped.
func (c *Client) FetchSnapshot(ctx context.Context) ([]job.Record, error) {
	body, _, err := c.do(ctx, http.MethodGet, JobsPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch snapshot")
	}

	var wires []job.Wire
	if err := json.Unmarshal(body, &wires); err != nil {
		return nil, errors.Wrapf(errors.ErrMalformedMessage, "snapshot is not a job list: %v", err)
	}
	return c.records(wires, "snapshot"), nil
}

// SubmitBatch posts a batch and returns the jobs the backend created. A
// refusal body maps to ErrSubmissionRefused carrying the backend's text as hint.
func (c *Client) SubmitBatch(ctx context.Context, batch job.Batch) ([]job.Record, error) {
	payload, err := json.Marshal(batch)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode batch")
	}

	body, _, err := c.do(ctx, http.MethodPost, JobsPath, payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to submit batch")
	}

	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		var refusal job.Refusal
		if err := json.Unmarshal(trimmed, &refusal); err != nil || refusal.Message == "" {
			return nil, errors.Wrap(errors.ErrMalformedMessage, "unexpected object in submit response")
		}
		return nil, errors.WithHint(errors.Wrap(errors.ErrSubmissionRefused, "backend refused batch"), refusal.Message)
	}

	var wires []job.Wire
	if err := json.Unmarshal(body, &wires); err != nil {
		return nil, errors.Wrapf(errors.ErrMalformedMessage, "submit response is not a job list: %v", err)
	}
	return c.records(wires, "submit"), nil
}

// CancelJob asks the backend to cancel id. The outcome arrives later as a
// status change on the push channel.
func (c *Client) CancelJob(ctx context.Context, id string) error {
	if _, _, err := c.do(ctx, http.MethodPost, JobsPath+id+"/cancel/", nil); err != nil {
		return errors.Wrapf(err, "failed to cancel job %s", id)
	}
	return nil
}

func (c *Client) records(wires []job.Wire, source string) []job.Record {
	out := make([]job.Record, 0, len(wires))
	for _, w := range wires {
		rec, err := w.Record()
		if err != nil {
			c.logger.Warnw("Skipping malformed job object",
				"source", source,
				logger.FieldJobID, w.ID,
				logger.FieldError, err,
			)
			continue
		}
		out = append(out, rec)
	}
	return out
}

// do performs one request, returning the body of a 2xx response
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, errors.Wrap(err, "rate limiter")
	}

	requestID := uuid.New().String()
	ctx = logger.WithRequestID(ctx, requestID)
	target := c.resolve(path)

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", version.Get().UserAgent())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log := logger.FromContext(ctx, c.logger)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warnw("Backend request failed",
			logger.FieldMethod, method,
			logger.FieldURL, target,
			logger.FieldError, err,
		)
		return nil, 0, errors.Wrapf(err, "%s %s", method, target)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, errors.Wrap(err, "failed to read response body")
	}

	if logger.ShouldOutput(c.verbosity, logger.OutputHTTPCalls) {
		log.Debugw("Backend request",
			logger.FieldMethod, method,
			logger.FieldURL, target,
			logger.FieldCode, resp.StatusCode,
			logger.FieldDuration, time.Since(start).Milliseconds(),
		)
	}
	if logger.ShouldOutput(c.verbosity, logger.OutputBodies) {
		log.Debugw("Backend response body", "request", string(payload), "response", string(body))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := errors.Newf("%s %s: unexpected status %d", method, target, resp.StatusCode)
		var refusal job.Refusal
		if json.Unmarshal(body, &refusal) == nil && refusal.Message != "" {
			err = errors.WithHint(err, refusal.Message)
		}
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (c *Client) resolve(path string) string {
	return c.base.ResolveReference(&url.URL{Path: path}).String()
}

// httpToWS converts http(s) URLs to ws(s) URLs.
func httpToWS(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
