package inbox

import (
	"context"
	"sort"

	"github.com/NomadCrew/dojo-portal/pkg/pagination"
	"github.com/NomadCrew/dojo-portal/types"
)

// Store is the slice of the document store API the inbox needs.
// *portal.Client satisfies it.
type Store interface {
	UserNotifications(ctx context.Context, username string) ([]types.Notification, error)
	CoachNotifications(ctx context.Context, coachID string, page, limit int) (types.NotificationPage, error)
	MarkRead(ctx context.Context, actor types.Actor, ids []string) error
	DeleteNotifications(ctx context.Context, actor types.Actor, ids []string) error
}

// Page is one fetched page plus the position the source actually served.
type Page struct {
	Items []types.Notification
	Page  int
	Total int
}

// Source reads and mutates one actor's notifications. The two actor kinds
// paginate differently: users receive their whole list and are paged here,
// coaches are paged by the store.
type Source interface {
	Fetch(ctx context.Context, page, pageSize int) (Page, error)
	// All returns every notification of the actor with exactly one store call.
	All(ctx context.Context) ([]types.Notification, error)
	MarkRead(ctx context.Context, ids []string) error
	Delete(ctx context.Context, ids []string) error
}

// NewSource picks the source for the actor's kind. allLimit bounds the single
// request used to collect every coach notification.
func NewSource(store Store, actor types.Actor, allLimit int) Source {
	if actor.IsCoach() {
		return &coachSource{store: store, actor: actor, allLimit: allLimit}
	}
	return &userSource{store: store, actor: actor}
}

type userSource struct {
	store Store
	actor types.Actor
}

func (s *userSource) Fetch(ctx context.Context, page, pageSize int) (Page, error) {
	all, err := s.All(ctx)
	if err != nil {
		return Page{}, err
	}

	pager := pagination.New(pageSize)
	pager.SetTotal(len(all))
	pager.SetPage(page)

	return Page{
		Items: pagination.Slice(pager, all),
		Page:  pager.Page(),
		Total: len(all),
	}, nil
}

func (s *userSource) All(ctx context.Context) ([]types.Notification, error) {
	items, err := s.store.UserNotifications(ctx, s.actor.Username)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(items)
	return items, nil
}

func (s *userSource) MarkRead(ctx context.Context, ids []string) error {
	return s.store.MarkRead(ctx, s.actor, ids)
}

func (s *userSource) Delete(ctx context.Context, ids []string) error {
	return s.store.DeleteNotifications(ctx, s.actor, ids)
}

type coachSource struct {
	store    Store
	actor    types.Actor
	allLimit int
}

func (s *coachSource) Fetch(ctx context.Context, page, pageSize int) (Page, error) {
	if page < 1 {
		page = 1
	}
	res, err := s.store.CoachNotifications(ctx, s.actor.ID, page, pageSize)
	if err != nil {
		return Page{}, err
	}

	// The requested page vanished (items were removed since the last read):
	// serve the new last page instead of an empty one.
	if len(res.Items) == 0 && res.TotalPages > 0 && page > res.TotalPages {
		page = res.TotalPages
		res, err = s.store.CoachNotifications(ctx, s.actor.ID, page, pageSize)
		if err != nil {
			return Page{}, err
		}
	}

	return Page{Items: res.Items, Page: page, Total: res.Total}, nil
}

func (s *coachSource) All(ctx context.Context) ([]types.Notification, error) {
	res, err := s.store.CoachNotifications(ctx, s.actor.ID, 1, s.allLimit)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

func (s *coachSource) MarkRead(ctx context.Context, ids []string) error {
	return s.store.MarkRead(ctx, s.actor, ids)
}

func (s *coachSource) Delete(ctx context.Context, ids []string) error {
	return s.store.DeleteNotifications(ctx, s.actor, ids)
}

// sortNewestFirst orders by timestamp descending. Entries without a timestamp
// go last and keep their relative order.
func sortNewestFirst(items []types.Notification) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := items[i].Timestamp, items[j].Timestamp
		if ti.IsZero() || tj.IsZero() {
			return !ti.IsZero() && tj.IsZero()
		}
		return ti.After(tj)
	})
}

func countUnread(items []types.Notification) int {
	n := 0
	for _, item := range items {
		if !item.Read {
			n++
		}
	}
	return n
}
