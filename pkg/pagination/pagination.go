// Package pagination tracks the page position of a bounded list.
//
// A Controller holds the current page, the page size and the total item count,
// and keeps the page inside [1, max(TotalPages, 1)] for every sequence of calls.
// It does no I/O and is not safe for concurrent use; owners serialize access.
package pagination

// Controller is a 1-based page cursor over a list of TotalItems entries.
type Controller struct {
	page       int
	pageSize   int
	totalItems int
}

// State is a JSON snapshot of a Controller.
type State struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
	HasPrev    bool `json:"has_prev"`
}

// New returns a controller positioned on page 1. A page size below 1 is treated as 1.
func New(pageSize int) *Controller {
	if pageSize < 1 {
		pageSize = 1
	}
	return &Controller{page: 1, pageSize: pageSize}
}

func (c *Controller) Page() int       { return c.page }
func (c *Controller) PageSize() int   { return c.pageSize }
func (c *Controller) TotalItems() int { return c.totalItems }

// TotalPages is ceil(TotalItems / PageSize); zero when the list is empty.
func (c *Controller) TotalPages() int {
	if c.totalItems <= 0 {
		return 0
	}
	return (c.totalItems + c.pageSize - 1) / c.pageSize
}

func (c *Controller) lastPage() int {
	if tp := c.TotalPages(); tp > 1 {
		return tp
	}
	return 1
}

// SetTotal records a new item count. When the current page no longer exists it
// is pulled back to the last page; the returned flag tells the caller so.
func (c *Controller) SetTotal(n int) (page int, clamped bool) {
	if n < 0 {
		n = 0
	}
	c.totalItems = n
	if last := c.lastPage(); c.page > last {
		c.page = last
		return c.page, true
	}
	return c.page, false
}

// SetPage moves to page n clamped into range and returns the resulting page.
func (c *Controller) SetPage(n int) int {
	switch last := c.lastPage(); {
	case n < 1:
		c.page = 1
	case n > last:
		c.page = last
	default:
		c.page = n
	}
	return c.page
}

// Next advances one page. It reports false at the last page.
func (c *Controller) Next() bool {
	if c.page >= c.lastPage() {
		return false
	}
	c.page++
	return true
}

// Previous moves back one page. It reports false on page 1.
func (c *Controller) Previous() bool {
	if c.page <= 1 {
		return false
	}
	c.page--
	return true
}

// Offset is the index of the first item on the current page.
func (c *Controller) Offset() int {
	return (c.page - 1) * c.pageSize
}

// Bounds returns the [start, end) slice indices of the current page within a
// list of length n, clamped to n.
func (c *Controller) Bounds(n int) (start, end int) {
	start = c.Offset()
	if start > n {
		start = n
	}
	end = start + c.pageSize
	if end > n {
		end = n
	}
	return start, end
}

func (c *Controller) State() State {
	return State{
		Page:       c.page,
		PerPage:    c.pageSize,
		Total:      c.totalItems,
		TotalPages: c.TotalPages(),
		HasMore:    c.page < c.TotalPages(),
		HasPrev:    c.page > 1,
	}
}

// Slice returns the current page of items.
func Slice[T any](c *Controller, items []T) []T {
	start, end := c.Bounds(len(items))
	return items[start:end]
}
