package commands

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pterm/pterm"

	"github.com/teranos/scrapedash/dashboard"
	"github.com/teranos/scrapedash/job"
	"github.com/teranos/scrapedash/logger"
)

// idWidth is how many characters of a job id are printed. Any unique
// prefix is accepted back by cancel.
const idWidth = 8

// TerminalView draws pages and notices with pterm. It implements
// dashboard.Renderer and dashboard.Notifier.
type TerminalView struct {
	mu        sync.Mutex
	out       io.Writer
	verbosity int
}

// NewTerminalView writes to out
func NewTerminalView(out io.Writer, verbosity int) *TerminalView {
	return &TerminalView{out: out, verbosity: verbosity}
}

// RenderPage prints the active page as a table followed by the pager line.
func (v *TerminalView) RenderPage(page dashboard.Page) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(page.Records) > 0 {
		table, err := pterm.DefaultTable.WithHasHeader().WithData(tableData(page.Records)).Srender()
		if err != nil {
			logger.Warnw("Failed to render page", logger.FieldError, err)
		} else {
			fmt.Fprintln(v.out, table)
		}
	} else {
		fmt.Fprintln(v.out, pterm.Gray("No jobs yet. Submit a URL with: submit <url>"))
	}
	fmt.Fprintln(v.out, formatPager(page))
}

// RenderRecord prints one line per status change of a visible record when
// push events are requested with -vv.
func (v *TerminalView) RenderRecord(rec job.Record, visible bool) {
	if !visible || !logger.ShouldOutput(v.verbosity, logger.OutputPushEvents) {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, "%s %s %s\n", pterm.Cyan("~"), shortID(rec.ID), statusLabel(rec))
}

// Notify prints an advisory with a prefix matching its kind.
func (v *TerminalView) Notify(n dashboard.Notice) {
	if !logger.ShouldOutput(v.verbosity, logger.OutputAdvisories) {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	text := n.Text
	if n.JobID != "" {
		text = fmt.Sprintf("%s: %s", shortID(n.JobID), text)
	}

	var printer pterm.PrefixPrinter
	switch n.Kind {
	case dashboard.NoticeInfo:
		printer = pterm.Info
	case dashboard.NoticeRefused, dashboard.NoticeIneligible, dashboard.NoticeChannelClosed:
		printer = pterm.Warning
	default:
		printer = pterm.Error
	}
	fmt.Fprintln(v.out, printer.Sprint(text))
}

// formatPager renders the page selector line, bracketing the active page.
func formatPager(page dashboard.Page) string {
	var b strings.Builder
	if len(page.Selectors) == 0 {
		b.WriteString("page -")
	} else {
		b.WriteString("page ")
		for i, sel := range page.Selectors {
			if i > 0 {
				b.WriteByte(' ')
			}
			if sel.Active {
				b.WriteString("[" + sel.Label + "]")
			} else {
				b.WriteString(sel.Label)
			}
		}
	}

	fmt.Fprintf(&b, " | %d jobs | %d/%d in flight", page.Total, page.InFlight, page.Quota)
	if page.Live {
		b.WriteString(" | live")
	} else {
		b.WriteString(" | offline")
	}
	return b.String()
}

// tableData builds the pterm table rows for records, header first.
func tableData(records []job.Record) pterm.TableData {
	data := pterm.TableData{{"ID", "URL", "Status", "Title", "Image"}}
	for _, rec := range records {
		data = append(data, []string{
			shortID(rec.ID),
			rec.URL,
			statusLabel(rec),
			job.Value(rec.Title),
			job.Value(rec.ImagePath),
		})
	}
	return data
}

func statusLabel(rec job.Record) string {
	switch {
	case rec.Status == job.StatusError && rec.Error != "":
		return fmt.Sprintf("%s (%s)", rec.Status, rec.Error)
	case rec.Status == job.StatusDownloaded && !rec.ScheduledAt.IsZero():
		return fmt.Sprintf("%s, parse at %s", rec.Status, rec.ScheduledAt.Local().Format("15:04:05"))
	}
	return string(rec.Status)
}

func shortID(id string) string {
	if len(id) <= idWidth {
		return id
	}
	return id[:idWidth]
}
