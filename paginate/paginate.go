// Package paginate partitions the registry's records into fixed-size pages
// and tracks which page is shown.
package paginate

import (
	"strconv"

	"github.com/teranos/scrapedash/errors"
	"github.com/teranos/scrapedash/job"
)

// DefaultPageSize is the number of jobs shown per page.
const DefaultPageSize = 3

// Selector is one page-selector control.
type Selector struct {
	Index  int
	Label  string
	Active bool
}

// View is the rendered state of the paginator.
type View struct {
	Pages     [][]string
	Active    int // -1 while there are no pages
	Visible   []string
	Selectors []Selector
}

// Paginator owns the page partition and the visibility of each record.
// Like the registry it belongs to one event loop.
type Paginator struct {
	size      int
	pages     [][]string
	selectors []Selector
	visible   map[string]bool
	active    int
}

// New creates a paginator. Sizes below 1 fall back to DefaultPageSize.
func New(size int) *Paginator {
	if size < 1 {
		size = DefaultPageSize
	}
	return &Paginator{size: size, visible: map[string]bool{}, active: -1}
}

// PageSize returns the current page capacity.
func (p *Paginator) PageSize() int {
	return p.size
}

// SetPageSize changes the page capacity. The partition is stale until the
// next Recompute.
func (p *Paginator) SetPageSize(size int) {
	if size < 1 {
		size = DefaultPageSize
	}
	p.size = size
}

// Partition splits ids into consecutive chunks of at most size, preserving order.
func Partition(ids []string, size int) [][]string {
	if size < 1 {
		size = DefaultPageSize
	}
	pages := make([][]string, 0, (len(ids)+size-1)/size)
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		page := make([]string, end-i)
		copy(page, ids[i:end])
		pages = append(pages, page)
	}
	return pages
}

// Recompute rebuilds the partition from records, in the order given, and
// re-selects the page that was active before. When that page no longer
// exists the last page is selected instead.
func (p *Paginator) Recompute(records []*job.Record) {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}

	p.pages = Partition(ids, p.size)
	p.selectors = make([]Selector, len(p.pages))
	for i := range p.pages {
		p.selectors[i] = Selector{Index: i, Label: strconv.Itoa(i + 1)}
	}
	p.visible = map[string]bool{}

	prev := p.active
	p.active = -1
	switch {
	case len(p.pages) == 0:
	case prev < 0:
		_ = p.Select(0)
	case prev >= len(p.pages):
		_ = p.Select(len(p.pages) - 1)
	default:
		_ = p.Select(prev)
	}
}

// Select shows exactly the records of page k and marks exactly its selector
// active. k must be a valid page index; out-of-range values are rejected
// without changing the view.
func (p *Paginator) Select(k int) error {
	if k < 0 || k >= len(p.pages) {
		return errors.Wrapf(errors.ErrPageOutOfRange, "page %d of %d", k, len(p.pages))
	}

	p.visible = make(map[string]bool, len(p.pages[k]))
	for _, id := range p.pages[k] {
		p.visible[id] = true
	}
	for i := range p.selectors {
		p.selectors[i].Active = i == k
	}
	p.active = k
	return nil
}

// Visible reports whether the record with id is on the active page.
func (p *Paginator) Visible(id string) bool {
	return p.visible[id]
}

// Active returns the active page index, or -1 when there are no pages.
func (p *Paginator) Active() int {
	return p.active
}

// Len returns the number of pages.
func (p *Paginator) Len() int {
	return len(p.pages)
}

// View returns a copy of the current state.
func (p *Paginator) View() View {
	v := View{
		Pages:     make([][]string, len(p.pages)),
		Active:    p.active,
		Selectors: make([]Selector, len(p.selectors)),
	}
	for i, page := range p.pages {
		v.Pages[i] = append([]string(nil), page...)
	}
	copy(v.Selectors, p.selectors)
	if p.active >= 0 {
		v.Visible = append([]string(nil), p.pages[p.active]...)
	}
	return v
}
