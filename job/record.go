package job

import "time"

// Record is one submitted URL tracked through its lifecycle.
//
// ID and URL never change once the record exists. Title, Heading and
// ImageSource are nil until the job is parsed; ImagePath is nil until done.
type Record struct {
	ID          string
	URL         string
	Status      Status
	Title       *string
	Heading     *string
	ImageSource *string
	ImagePath   *string
	Error       string
	ScheduledAt time.Time
}

// Fields carries the status-dependent optional values of a status change.
// A nil field leaves the stored value untouched.
type Fields struct {
	Title       *string
	Heading     *string
	ImageSource *string
	ImagePath   *string
	Error       *string
}

// Empty reports whether no optional value is set.
func (f Fields) Empty() bool {
	return f.Title == nil && f.Heading == nil && f.ImageSource == nil && f.ImagePath == nil && f.Error == nil
}

// Gate drops the fields that status does not allow yet.
func (f Fields) Gate(status Status) Fields {
	if !status.Parsed() {
		f.Title, f.Heading, f.ImageSource = nil, nil, nil
	}
	if status != StatusDone {
		f.ImagePath = nil
	}
	return f
}

// Apply writes the non-nil fields onto r. Callers gate first.
func (r *Record) Apply(f Fields) {
	if f.Title != nil {
		r.Title = f.Title
	}
	if f.Heading != nil {
		r.Heading = f.Heading
	}
	if f.ImageSource != nil {
		r.ImageSource = f.ImageSource
	}
	if f.ImagePath != nil {
		r.ImagePath = f.ImagePath
	}
	if f.Error != nil {
		r.Error = *f.Error
	}
}

// Fields returns the record's optional values.
func (r *Record) Fields() Fields {
	f := Fields{
		Title:       r.Title,
		Heading:     r.Heading,
		ImageSource: r.ImageSource,
		ImagePath:   r.ImagePath,
	}
	if r.Error != "" {
		e := r.Error
		f.Error = &e
	}
	return f
}

// Clone returns a copy that shares no pointers with r.
func (r *Record) Clone() Record {
	c := *r
	c.Title = cloneString(r.Title)
	c.Heading = cloneString(r.Heading)
	c.ImageSource = cloneString(r.ImageSource)
	c.ImagePath = cloneString(r.ImagePath)
	return c
}

// Value dereferences an optional field, returning "" for nil.
func Value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
