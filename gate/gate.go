// Package gate decides locally whether a submission or a cancellation may be
// sent to the backend. It only reads job state.
package gate

import (
	"net/url"
	"strings"
	"time"

	"github.com/teranos/scrapedash/errors"
	"github.com/teranos/scrapedash/job"
)

// DefaultQuota is the number of unparsed jobs at which new submissions are refused.
const DefaultQuota = 5

// Reader is the part of the registry the gate needs.
type Reader interface {
	Get(id string) (*job.Record, bool)
	Count(pred func(job.Status) bool) int
}

// Gate validates submissions and cancellations.
type Gate struct {
	jobs  Reader
	quota int

	// URLs admitted whose submit request has not completed
	pending int
}

// New creates a gate over jobs. A quota below 1 falls back to DefaultQuota.
func New(jobs Reader, quota int) *Gate {
	if quota < 1 {
		quota = DefaultQuota
	}
	return &Gate{jobs: jobs, quota: quota}
}

// Quota returns the in-flight limit.
func (g *Gate) Quota() int {
	return g.quota
}

// InFlight returns how many jobs are still downloading or downloaded.
func (g *Gate) InFlight() int {
	return g.jobs.Count(job.Status.Active)
}

// Pending returns how many admitted URLs are still waiting for the backend.
func (g *Gate) Pending() int {
	return g.pending
}

// Release settles n admitted URLs once their submit request completed,
// successfully or not. Jobs the backend created are counted by the registry
// from then on.
func (g *Gate) Release(n int) {
	g.pending -= n
	if g.pending < 0 {
		g.pending = 0
	}
}

// AdmitBatch builds the submit request for rows scheduled at at. The quota
// is evaluated once, before any row is looked at, over registered jobs in
// flight plus URLs admitted earlier and not yet settled with Release. Rows
// are trimmed and blank rows skipped. An admitted batch stays pending until
// Release. Every refusal wraps errors.ErrSubmissionRefused and carries the
// advisory text as a hint.
func (g *Gate) AdmitBatch(rows []string, at time.Time) (job.Batch, error) {
	if active := g.InFlight() + g.pending; active >= g.quota {
		return job.Batch{}, errors.WithHintf(
			errors.Wrapf(errors.ErrSubmissionRefused, "%d of %d jobs in flight", active, g.quota),
			"Cannot start processing: %d submitted URLs are not parsed yet", active)
	}

	batch := job.Batch{Date: at.UTC()}
	for _, row := range rows {
		row = strings.TrimSpace(row)
		if row == "" {
			continue
		}
		if err := validateURL(row); err != nil {
			return job.Batch{}, errors.WithHintf(
				errors.Wrapf(errors.ErrSubmissionRefused, "invalid url %q: %v", row, err),
				"%q is not an http(s) URL", row)
		}
		batch.URLs = append(batch.URLs, job.BatchURL{URL: row})
	}

	if len(batch.URLs) == 0 {
		return job.Batch{}, errors.WithHint(
			errors.Wrap(errors.ErrSubmissionRefused, "no urls"),
			"Enter at least one URL")
	}
	g.pending += len(batch.URLs)
	return batch, nil
}

// CheckCancel reports whether a cancel request may be sent for id.
func (g *Gate) CheckCancel(id string) error {
	rec, ok := g.jobs.Get(id)
	if !ok {
		return errors.WithHintf(
			errors.Wrapf(errors.ErrCancelIneligible, "job %s is not known", id),
			"Unknown job %s", id)
	}
	if !rec.Status.Cancellable() {
		return errors.WithHintf(
			errors.Wrapf(errors.ErrCancelIneligible, "job %s is %s", id, rec.Status),
			"Cannot request cancellation: job is already %s", rec.Status)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Newf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
