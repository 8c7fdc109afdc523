package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/scrapedash/dashboard"
	"github.com/teranos/scrapedash/job"
	"github.com/teranos/scrapedash/paginate"
)

func strPtr(s string) *string { return &s }

func TestFormatPager(t *testing.T) {
	page := dashboard.Page{
		View: paginate.View{
			Active: 1,
			Selectors: []paginate.Selector{
				{Index: 0, Label: "1"},
				{Index: 1, Label: "2", Active: true},
				{Index: 2, Label: "3"},
			},
		},
		Total:    7,
		InFlight: 2,
		Quota:    5,
		Live:     true,
	}
	assert.Equal(t, "page 1 [2] 3 | 7 jobs | 2/5 in flight | live", formatPager(page))

	empty := dashboard.Page{View: paginate.View{Active: -1}, Quota: 5}
	assert.Equal(t, "page - | 0 jobs | 0/5 in flight | offline", formatPager(empty))
}

func TestTableData(t *testing.T) {
	records := []job.Record{
		{ID: "0123456789abcdef", URL: "https://a.example", Status: job.StatusDone, Title: strPtr("A"), ImagePath: strPtr("images/a.png")},
		{ID: "short", URL: "https://b.invalid", Status: job.StatusError, Error: "no such host"},
	}

	data := tableData(records)

	assert.Len(t, data, 3)
	assert.Equal(t, []string{"ID", "URL", "Status", "Title", "Image"}, data[0])
	assert.Equal(t, []string{"01234567", "https://a.example", "done", "A", "images/a.png"}, data[1])
	assert.Equal(t, []string{"short", "https://b.invalid", "error (no such host)", "", ""}, data[2])
}

func TestStatusLabel_Scheduled(t *testing.T) {
	at := time.Date(2026, 10, 17, 18, 30, 0, 0, time.Local)
	rec := job.Record{Status: job.StatusDownloaded, ScheduledAt: at}

	assert.Equal(t, "downloaded, parse at 18:30:00", statusLabel(rec))
}

func TestTerminalView_Notify(t *testing.T) {
	var out bytes.Buffer
	view := NewTerminalView(&out, 0)

	view.Notify(dashboard.Notice{Kind: dashboard.NoticeIneligible, Text: "job already finished", JobID: "0123456789"})

	assert.Contains(t, out.String(), "01234567: job already finished")
}

func TestTerminalView_RenderRecordNeedsVerbosity(t *testing.T) {
	var out bytes.Buffer
	rec := job.Record{ID: "abc", Status: job.StatusParsing}

	NewTerminalView(&out, 0).RenderRecord(rec, true)
	assert.Empty(t, out.String())

	NewTerminalView(&out, 2).RenderRecord(rec, false)
	assert.Empty(t, out.String())

	NewTerminalView(&out, 2).RenderRecord(rec, true)
	assert.Contains(t, out.String(), "abc parsing")
}

func TestTerminalView_RenderEmptyPage(t *testing.T) {
	var out bytes.Buffer
	NewTerminalView(&out, 0).RenderPage(dashboard.Page{View: paginate.View{Active: -1}, Quota: 5})

	assert.Contains(t, out.String(), "No jobs yet")
	assert.Contains(t, out.String(), "page -")
}
