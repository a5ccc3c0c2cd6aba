// Package inbox runs notification inbox sessions: one Controller per actor
// holding the visible page, the selection and transient notices, plus the
// broadcaster, poller and registry that keep sessions and badge widgets in step.
//
// Every bulk mutation is followed by a refresh of the current page and a
// two-phase "notifications changed" broadcast (settle, then confirm after a
// short delay). The second emission covers badge counts read before the store
// has settled; it is an accommodation, not a consistency guarantee.
package inbox

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/NomadCrew/dojo-portal/errors"
	"github.com/NomadCrew/dojo-portal/logger"
	"github.com/NomadCrew/dojo-portal/pkg/pagination"
	"github.com/NomadCrew/dojo-portal/types"
	"go.uber.org/zap"
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateError   State = "error"
)

const (
	OpFetch       = "fetch"
	OpMarkRead    = "mark_read"
	OpDelete      = "delete"
	OpMarkAllRead = "mark_all_read"
	OpDeleteAll   = "delete_all"
)

// ErrNotLoggedIn is returned when a session is requested without an actor.
var ErrNotLoggedIn = apperrors.AuthenticationFailed("Not logged in")

// Notifier is told about every successful mutation.
type Notifier interface {
	NotificationsChanged(ctx context.Context, actor types.Actor, operation string)
}

type noopNotifier struct{}

func (noopNotifier) NotificationsChanged(context.Context, types.Actor, string) {}

// Snapshot is the view state returned to the page after every operation.
type Snapshot struct {
	Actor      string               `json:"actor"`
	State      State                `json:"state"`
	Items      []types.Notification `json:"items"`
	Pagination pagination.State     `json:"pagination"`
	Selected   []string             `json:"selected"`
	Notice     *Notice              `json:"notice,omitempty"`
	// PageClamped is set when the last load landed on a different page than
	// requested because the list is shorter (or the page was below 1).
	PageClamped bool `json:"pageClamped"`
}

type Options struct {
	PageSize  int
	NoticeTTL time.Duration
	Notifier  Notifier
}

// Controller is one actor's inbox session. It is safe for concurrent use;
// store calls run without the lock held.
type Controller struct {
	actor     types.Actor
	source    Source
	notifier  Notifier
	noticeTTL time.Duration
	now       func() time.Time
	log       *zap.SugaredLogger
	metrics   *metrics

	mu       sync.Mutex
	state    State
	items    []types.Notification
	pager    *pagination.Controller
	selected map[string]struct{}
	notice   *Notice
	clamped  bool
	// issued counts fetches started; applied is the newest one whose result
	// was kept. Older responses arriving late are dropped.
	issued  uint64
	applied uint64
}

func NewController(actor types.Actor, source Source, opts Options) *Controller {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	ttl := opts.NoticeTTL
	if ttl <= 0 {
		ttl = 3 * time.Second
	}

	return &Controller{
		actor:     actor,
		source:    source,
		notifier:  notifier,
		noticeTTL: ttl,
		now:       time.Now,
		log:       logger.GetLogger().Named("inbox").With("actor", actor.Key()),
		metrics:   newMetrics(),
		state:     StateIdle,
		pager:     pagination.New(opts.PageSize),
		selected:  make(map[string]struct{}),
	}
}

func (c *Controller) Actor() types.Actor {
	return c.actor
}

// FetchPage loads page n. On failure the previously loaded items stay in place
// and an error notice is set.
func (c *Controller) FetchPage(ctx context.Context, page int) (Snapshot, error) {
	err := c.load(ctx, page)
	c.record(OpFetch, err)
	return c.Snapshot(), err
}

// Refresh reloads the current page.
func (c *Controller) Refresh(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	page := c.pager.Page()
	c.mu.Unlock()
	return c.FetchPage(ctx, page)
}

// Next loads the following page. At the last page it returns the current view.
func (c *Controller) Next(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	page := c.pager.Page()
	hasNext := page < c.pager.TotalPages()
	c.mu.Unlock()

	if !hasNext {
		return c.Snapshot(), nil
	}
	return c.FetchPage(ctx, page+1)
}

// Previous loads the preceding page. On page 1 it returns the current view.
func (c *Controller) Previous(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	page := c.pager.Page()
	c.mu.Unlock()

	if page <= 1 {
		return c.Snapshot(), nil
	}
	return c.FetchPage(ctx, page-1)
}

// ToggleSelect flips id in the selection and reports whether it is now selected.
func (c *Controller) ToggleSelect(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.selected[id]; ok {
		delete(c.selected, id)
		return false
	}
	c.selected[id] = struct{}{}
	return true
}

// Selected returns the selected ids in sorted order.
func (c *Controller) Selected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedLocked()
}

func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = make(map[string]struct{})
}

// MarkRead marks ids as read, or the current selection when ids is empty.
func (c *Controller) MarkRead(ctx context.Context, ids []string) (Snapshot, error) {
	return c.mutate(ctx, mutation{
		op:         OpMarkRead,
		ids:        c.idsOrSelection(ids),
		apply:      c.source.MarkRead,
		failMsg:    msgMarkFailed,
		partialMsg: msgMarkPartial,
		remaining:  stillUnread,
	})
}

// DeleteSelected deletes ids, or the current selection when ids is empty.
func (c *Controller) DeleteSelected(ctx context.Context, ids []string) (Snapshot, error) {
	return c.mutate(ctx, mutation{
		op:         OpDelete,
		ids:        c.idsOrSelection(ids),
		apply:      c.source.Delete,
		failMsg:    msgDeleteFailed,
		partialMsg: msgDeletePartial,
		remaining:  stillPresent,
	})
}

// MarkAllRead collects every unread id with one fetch and marks them read in
// one call. The visible page is only a subset, so it cannot supply the ids.
func (c *Controller) MarkAllRead(ctx context.Context) (Snapshot, error) {
	all, err := c.source.All(ctx)
	if err != nil {
		c.fail(OpMarkAllRead, msgMarkFailed, err)
		return c.Snapshot(), err
	}

	ids := types.UnreadIDs(all)
	if len(ids) == 0 {
		c.record(OpMarkAllRead, nil)
		return c.Snapshot(), nil
	}

	return c.mutate(ctx, mutation{
		op:         OpMarkAllRead,
		ids:        ids,
		apply:      c.source.MarkRead,
		failMsg:    msgMarkFailed,
		partialMsg: msgMarkPartial,
		remaining:  stillUnread,
		wholeList:  true,
	})
}

// DeleteAll collects every id with one fetch and deletes them in one call.
func (c *Controller) DeleteAll(ctx context.Context) (Snapshot, error) {
	all, err := c.source.All(ctx)
	if err != nil {
		c.fail(OpDeleteAll, msgDeleteFailed, err)
		return c.Snapshot(), err
	}

	ids := types.NotificationIDs(all)
	if len(ids) == 0 {
		c.record(OpDeleteAll, nil)
		return c.Snapshot(), nil
	}

	return c.mutate(ctx, mutation{
		op:         OpDeleteAll,
		ids:        ids,
		apply:      c.source.Delete,
		failMsg:    msgDeleteFailed,
		partialMsg: msgDeletePartial,
		remaining:  stillPresent,
		wholeList:  true,
	})
}

// UnreadCount counts the actor's unread notifications across all pages.
func (c *Controller) UnreadCount(ctx context.Context) (int, error) {
	all, err := c.source.All(ctx)
	if err != nil {
		return 0, err
	}
	return countUnread(all), nil
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]types.Notification, len(c.items))
	copy(items, c.items)

	snap := Snapshot{
		Actor:      c.actor.Key(),
		State:      c.state,
		Items:      items,
		Pagination: c.pager.State(),
		Selected:   c.selectedLocked(),

		PageClamped: c.clamped,
	}
	if c.notice.activeAt(c.now()) {
		n := *c.notice
		snap.Notice = &n
	}
	return snap
}

type mutation struct {
	op         string
	ids        []string
	apply      func(ctx context.Context, ids []string) error
	failMsg    string
	partialMsg string
	remaining  func(items []types.Notification, ids []string) []string
	// wholeList checks the outcome against every notification, not just the
	// refreshed page.
	wholeList bool
}

func (c *Controller) mutate(ctx context.Context, m mutation) (Snapshot, error) {
	if len(m.ids) == 0 {
		return c.Snapshot(), apperrors.ValidationFailed(msgNothingToApply, m.op)
	}

	c.mu.Lock()
	onPage := len(stillPresent(c.items, m.ids)) == len(m.ids)
	c.mu.Unlock()

	if err := m.apply(ctx, m.ids); err != nil {
		c.fail(m.op, m.failMsg, err)
		return c.Snapshot(), err
	}

	c.ClearSelection()

	// A failed refresh leaves its own error notice; the mutation itself succeeded.
	loadErr := c.load(ctx, c.currentPage())
	c.notifier.NotificationsChanged(ctx, c.actor, m.op)

	if loadErr != nil {
		c.record(m.op, nil)
		return c.Snapshot(), nil
	}

	var left []string
	if m.wholeList || !onPage {
		// Ids off the visible page can only be checked against the full list.
		all, err := c.source.All(ctx)
		if err != nil {
			c.log.Warnw("Could not verify bulk mutation", "operation", m.op, "error", err)
			c.record(m.op, nil)
			return c.Snapshot(), nil
		}
		left = m.remaining(all, m.ids)
	} else {
		c.mu.Lock()
		left = m.remaining(c.items, m.ids)
		c.mu.Unlock()
	}

	if len(left) > 0 {
		c.mu.Lock()
		c.setNoticeLocked(NoticePartial, m.partialMsg)
		c.mu.Unlock()
	}

	if len(left) > 0 {
		c.log.Warnw("Bulk mutation left notifications in place",
			"operation", m.op, "requested", len(m.ids), "remaining", len(left))
		c.metrics.partialFailures.WithLabelValues(m.op).Inc()
		c.metrics.operations.WithLabelValues(m.op, "partial").Inc()
		return c.Snapshot(), apperrors.NewPartialFailure(m.op, left)
	}

	c.record(m.op, nil)
	return c.Snapshot(), nil
}

func (c *Controller) load(ctx context.Context, page int) error {
	c.mu.Lock()
	c.issued++
	gen := c.issued
	c.state = StateLoading
	pageSize := c.pager.PageSize()
	c.mu.Unlock()

	res, err := c.source.Fetch(ctx, page, pageSize)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen < c.applied {
		c.metrics.staleResponses.Inc()
		c.log.Debugw("Discarding stale inbox response", "generation", gen, "applied", c.applied)
		return nil
	}
	c.applied = gen

	if err != nil {
		c.state = StateError
		c.setNoticeLocked(NoticeError, msgFetchFailed)
		c.log.Warnw("Failed to load notifications", "page", page, "error", err)
		return err
	}

	c.items = res.Items
	c.pager.SetTotal(res.Total)
	c.clamped = c.pager.SetPage(res.Page) != page
	c.state = StateLoaded
	return nil
}

func (c *Controller) fail(op, msg string, err error) {
	c.mu.Lock()
	c.setNoticeLocked(NoticeError, msg)
	c.mu.Unlock()

	c.log.Warnw("Inbox operation failed", "operation", op, "error", err)
	c.record(op, err)
}

func (c *Controller) record(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.operations.WithLabelValues(op, outcome).Inc()
}

func (c *Controller) currentPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pager.Page()
}

func (c *Controller) idsOrSelection(ids []string) []string {
	if len(ids) > 0 {
		return ids
	}
	return c.Selected()
}

func (c *Controller) selectedLocked() []string {
	ids := make([]string, 0, len(c.selected))
	for id := range c.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Controller) setNoticeLocked(kind NoticeKind, msg string) {
	c.notice = &Notice{Kind: kind, Message: msg, ExpiresAt: c.now().Add(c.noticeTTL)}
}

func stillUnread(items []types.Notification, ids []string) []string {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var left []string
	for _, item := range items {
		if _, ok := want[item.ID]; ok && !item.Read {
			left = append(left, item.ID)
		}
	}
	return left
}

func stillPresent(items []types.Notification, ids []string) []string {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var left []string
	for _, item := range items {
		if _, ok := want[item.ID]; ok {
			left = append(left, item.ID)
		}
	}
	return left
}
