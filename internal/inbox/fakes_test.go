package inbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/NomadCrew/dojo-portal/errors"
	"github.com/NomadCrew/dojo-portal/logger"
	"github.com/NomadCrew/dojo-portal/services"
	"github.com/NomadCrew/dojo-portal/types"
)

func init() {
	logger.IsTest = true
	resetMetricsForTesting()
}

var (
	kenji = types.Actor{Username: "kenji", Kind: types.ActorKindUser}
	sato  = types.Actor{ID: "c-42", Username: "sensei_sato", Kind: types.ActorKindCoach}
	epoch = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
)

// memStore is an in-memory document store. Ids listed in stuck survive
// mark-read and delete calls, mimicking a store that accepts but ignores them.
type memStore struct {
	mu            sync.Mutex
	notifications map[string][]types.Notification // by username or coach id
	stuck         map[string]bool
	failReads     error
	failWrites    error

	userFetches  int
	coachFetches []int // limits requested
	markCalls    [][]string
	deleteCalls  [][]string
}

func newMemStore() *memStore {
	return &memStore{
		notifications: make(map[string][]types.Notification),
		stuck:         make(map[string]bool),
	}
}

// seed stores n notifications for owner, newest first, the first unread ones unread.
func (s *memStore) seed(owner string, n, unread int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]types.Notification, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, types.Notification{
			ID:        fmt.Sprintf("n%d", i+1),
			Message:   fmt.Sprintf("Class update %d", i+1),
			Timestamp: epoch.Add(-time.Duration(i) * time.Hour),
			Read:      i >= unread,
		})
	}
	s.notifications[owner] = items
}

func (s *memStore) copyOf(owner string) []types.Notification {
	items := s.notifications[owner]
	out := make([]types.Notification, len(items))
	copy(out, items)
	return out
}

func (s *memStore) UserNotifications(_ context.Context, username string) ([]types.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userFetches++
	if s.failReads != nil {
		return nil, s.failReads
	}
	return s.copyOf(username), nil
}

func (s *memStore) CoachNotifications(_ context.Context, coachID string, page, limit int) (types.NotificationPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coachFetches = append(s.coachFetches, limit)
	if s.failReads != nil {
		return types.NotificationPage{}, s.failReads
	}
	all := s.copyOf(coachID)
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return types.NotificationPage{
		Items:      all[start:end],
		Total:      len(all),
		TotalPages: (len(all) + limit - 1) / limit,
	}, nil
}

func (s *memStore) owner(actor types.Actor) string {
	if actor.IsCoach() {
		return actor.ID
	}
	return actor.Username
}

func (s *memStore) MarkRead(_ context.Context, actor types.Actor, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markCalls = append(s.markCalls, append([]string(nil), ids...))
	if s.failWrites != nil {
		return s.failWrites
	}
	want := toSet(ids)
	items := s.notifications[s.owner(actor)]
	for i := range items {
		if want[items[i].ID] && !s.stuck[items[i].ID] {
			items[i].Read = true
		}
	}
	return nil
}

func (s *memStore) DeleteNotifications(_ context.Context, actor types.Actor, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls = append(s.deleteCalls, append([]string(nil), ids...))
	if s.failWrites != nil {
		return s.failWrites
	}
	want := toSet(ids)
	owner := s.owner(actor)
	kept := s.notifications[owner][:0]
	for _, n := range s.notifications[owner] {
		if !want[n.ID] || s.stuck[n.ID] {
			kept = append(kept, n)
		}
	}
	s.notifications[owner] = kept
	return nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func upstreamErr() error {
	return apperrors.NewError(apperrors.UpstreamError, "fetch", "Document store request failed", 502)
}

// recordingNotifier captures NotificationsChanged and UnreadChanged calls.
type recordingNotifier struct {
	mu     sync.Mutex
	ops    []string
	counts []int
}

func (r *recordingNotifier) NotificationsChanged(_ context.Context, _ types.Actor, op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *recordingNotifier) UnreadChanged(_ context.Context, _ types.Actor, unread int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, unread)
}

func (r *recordingNotifier) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

func (r *recordingNotifier) Counts() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.counts...)
}

// immediateScheduler runs delayed jobs synchronously and records the delay.
type immediateScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *immediateScheduler) SubmitAfter(delay time.Duration, job services.Job) bool {
	s.mu.Lock()
	s.delays = append(s.delays, delay)
	s.mu.Unlock()
	_ = job.Execute(context.Background())
	return true
}
