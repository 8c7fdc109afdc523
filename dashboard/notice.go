package dashboard

import (
	"github.com/teranos/scrapedash/job"
	"github.com/teranos/scrapedash/paginate"
)

// NoticeKind classifies a user-facing message.
type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeRefused
	NoticeIneligible
	NoticeChannelClosed
	NoticeError
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeInfo:
		return "info"
	case NoticeRefused:
		return "refused"
	case NoticeIneligible:
		return "ineligible"
	case NoticeChannelClosed:
		return "channel_closed"
	case NoticeError:
		return "error"
	}
	return "unknown"
}

// Notice is an advisory message for the user.
type Notice struct {
	Kind  NoticeKind
	Text  string
	JobID string
}

// Page is everything needed to draw the dashboard.
type Page struct {
	paginate.View

	// Records holds the active page's records in order.
	Records  []job.Record
	Total    int
	InFlight int
	Quota    int
	Live     bool
}

// Renderer draws the dashboard. Calls arrive on the session loop, one at a time.
type Renderer interface {
	// RenderPage redraws the page list. Called after a membership change,
	// a page selection or a resize.
	RenderPage(page Page)

	// RenderRecord redraws one record in place. visible reports whether
	// it is on the active page.
	RenderRecord(rec job.Record, visible bool)
}

// Notifier shows advisory messages. Calls arrive on the session loop.
type Notifier interface {
	Notify(n Notice)
}

type nopRenderer struct{}

func (nopRenderer) RenderPage(Page)               {}
func (nopRenderer) RenderRecord(job.Record, bool) {}

type nopNotifier struct{}

func (nopNotifier) Notify(Notice) {}
