package job

import (
	"strings"
	"time"

	"github.com/teranos/scrapedash/errors"
)

// Wire is the job object exchanged with the backend, in snapshots, submit
// responses and url_add payloads.
type Wire struct {
	ID          string  `json:"uuid"`
	URL         string  `json:"url"`
	Status      string  `json:"status"`
	Title       *string `json:"title"`
	Heading     *string `json:"h1"`
	ImageSource *string `json:"image_src"`
	ImagePath   *string `json:"image_path"`
	Error       *string `json:"error,omitempty"`
	Date        string  `json:"date,omitempty"`
}

// Record validates w and converts it, gating optional fields by status.
func (w Wire) Record() (Record, error) {
	if strings.TrimSpace(w.ID) == "" {
		return Record{}, errors.Wrap(ErrMalformed, "job object without uuid")
	}
	if strings.TrimSpace(w.URL) == "" {
		return Record{}, errors.Wrapf(ErrMalformed, "job %s without url", w.ID)
	}
	status, ok := ParseStatus(w.Status)
	if !ok {
		return Record{}, errors.Wrapf(ErrMalformed, "job %s has unknown status %q", w.ID, w.Status)
	}

	rec := Record{ID: w.ID, URL: w.URL, Status: status}
	if w.Date != "" {
		at, err := time.Parse(time.RFC3339Nano, w.Date)
		if err != nil {
			return Record{}, errors.Wrapf(ErrMalformed, "job %s has invalid date %q", w.ID, w.Date)
		}
		rec.ScheduledAt = at
	}
	rec.Apply(w.fields().Gate(status))
	return rec, nil
}

func (w Wire) fields() Fields {
	return Fields{
		Title:       w.Title,
		Heading:     w.Heading,
		ImageSource: w.ImageSource,
		ImagePath:   w.ImagePath,
		Error:       nonEmpty(w.Error),
	}
}

// ToWire converts a record back to its wire shape.
func ToWire(r Record) Wire {
	w := Wire{
		ID:          r.ID,
		URL:         r.URL,
		Status:      r.Status.String(),
		Title:       r.Title,
		Heading:     r.Heading,
		ImageSource: r.ImageSource,
		ImagePath:   r.ImagePath,
	}
	if r.Error != "" {
		e := r.Error
		w.Error = &e
	}
	if !r.ScheduledAt.IsZero() {
		w.Date = r.ScheduledAt.UTC().Format(time.RFC3339Nano)
	}
	return w
}

// BatchURL is one row of a submission.
type BatchURL struct {
	URL string `json:"url"`
}

// Batch is the body of a submit request.
type Batch struct {
	URLs []BatchURL `json:"urls"`
	Date time.Time  `json:"date"`
}

// Refusal is the body the backend returns instead of a job list when it
// declines a submission.
type Refusal struct {
	Message string `json:"error_message"`
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
