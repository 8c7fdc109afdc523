package job

import "strings"

// Status is the lifecycle state of a job as reported by the backend.
type Status string

const (
	StatusDownloading Status = "downloading"
	StatusDownloaded  Status = "downloaded"
	StatusParsing     Status = "parsing"
	StatusParsingDone Status = "parsing_done"
	StatusImageLoad   Status = "image_load"
	StatusDone        Status = "done"

	// Side branches, reachable from any non-terminal status.
	StatusError        Status = "error"
	StatusCancel       Status = "cancel"
	StatusFailToCancel Status = "fail_to_cancel"
)

// wireAliases maps backend spellings onto canonical statuses.
var wireAliases = map[string]Status{
	"done_parsing": StatusParsingDone,
	"cancelled":    StatusCancel,
}

// progress orders the main line. Side branches are absent.
var progress = map[Status]int{
	StatusDownloading: 0,
	StatusDownloaded:  1,
	StatusParsing:     2,
	StatusParsingDone: 3,
	StatusImageLoad:   4,
	StatusDone:        5,
}

// ParseStatus normalises a wire status. ok is false for anything outside the
// closed status set.
func ParseStatus(s string) (Status, bool) {
	s = strings.TrimSpace(s)
	if alias, ok := wireAliases[s]; ok {
		return alias, true
	}
	st := Status(s)
	if st.Valid() {
		return st, true
	}
	return "", false
}

// Valid reports whether s belongs to the closed status set.
func (s Status) Valid() bool {
	if _, ok := progress[s]; ok {
		return true
	}
	return s.sideBranch()
}

func (s Status) sideBranch() bool {
	switch s {
	case StatusError, StatusCancel, StatusFailToCancel:
		return true
	}
	return false
}

// Terminal reports whether no further transition is accepted from s.
func (s Status) Terminal() bool {
	return s == StatusDone || s.sideBranch()
}

// Active reports whether s counts towards the in-flight submission quota:
// the job has been accepted but not yet parsed.
func (s Status) Active() bool {
	return s == StatusDownloading || s == StatusDownloaded
}

// Cancellable reports whether a cancel request may still be sent for s.
func (s Status) Cancellable() bool {
	return s.Valid() && !s.Terminal()
}

// Parsed reports whether s has reached or passed parsing_done on the main line.
// Only then may title, heading and image source be populated.
func (s Status) Parsed() bool {
	rank, ok := progress[s]
	return ok && rank >= progress[StatusParsingDone]
}

// CanTransition reports whether a job at s may move to next. Transitions are
// monotonic: forward along the main line, or sideways into a side branch,
// and never out of a terminal status. Re-delivering the current status is
// not a transition.
func (s Status) CanTransition(next Status) bool {
	if !next.Valid() || s == next || s.Terminal() {
		return false
	}
	if next.sideBranch() {
		return true
	}
	from, ok := progress[s]
	if !ok {
		return false
	}
	return progress[next] > from
}

func (s Status) String() string {
	return string(s)
}
