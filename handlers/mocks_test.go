package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/NomadCrew/dojo-portal/internal/profile"
	"github.com/NomadCrew/dojo-portal/internal/verification"
	"github.com/NomadCrew/dojo-portal/logger"
	"github.com/NomadCrew/dojo-portal/middleware"
	"github.com/NomadCrew/dojo-portal/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
)

func init() {
	logger.IsTest = true
	gin.SetMode(gin.TestMode)
}

var (
	kenji = types.Actor{Username: "kenji", Kind: types.ActorKindUser}
	sato  = types.Actor{ID: "c-42", Username: "sensei_sato", Kind: types.ActorKindCoach}
)

// inboxStore is an in-memory document store for handler tests. Ids in stuck
// survive mark-read and delete calls.
type inboxStore struct {
	mu         sync.Mutex
	items      map[string][]types.Notification
	stuck      map[string]bool
	failReads  error
	failWrites error
}

func newInboxStore() *inboxStore {
	return &inboxStore{
		items: make(map[string][]types.Notification),
		stuck: make(map[string]bool),
	}
}

func (s *inboxStore) seed(owner string, n, unread int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	items := make([]types.Notification, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, types.Notification{
			ID:        fmt.Sprintf("n%d", i+1),
			Message:   fmt.Sprintf("Belt test reminder %d", i+1),
			Timestamp: base.Add(-time.Duration(i) * time.Hour),
			Read:      i >= unread,
		})
	}
	s.items[owner] = items
}

func (s *inboxStore) owner(actor types.Actor) string {
	if actor.IsCoach() {
		return actor.ID
	}
	return actor.Username
}

func (s *inboxStore) UserNotifications(_ context.Context, username string) ([]types.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads != nil {
		return nil, s.failReads
	}
	return append([]types.Notification(nil), s.items[username]...), nil
}

func (s *inboxStore) CoachNotifications(_ context.Context, coachID string, page, limit int) (types.NotificationPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads != nil {
		return types.NotificationPage{}, s.failReads
	}
	all := s.items[coachID]
	start := min((page-1)*limit, len(all))
	end := min(start+limit, len(all))
	return types.NotificationPage{
		Items:      append([]types.Notification(nil), all[start:end]...),
		Total:      len(all),
		TotalPages: (len(all) + limit - 1) / limit,
	}, nil
}

func (s *inboxStore) MarkRead(_ context.Context, actor types.Actor, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	items := s.items[s.owner(actor)]
	for i := range items {
		if want[items[i].ID] && !s.stuck[items[i].ID] {
			items[i].Read = true
		}
	}
	return nil
}

func (s *inboxStore) DeleteNotifications(_ context.Context, actor types.Actor, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	owner := s.owner(actor)
	var kept []types.Notification
	for _, n := range s.items[owner] {
		if !want[n.ID] || s.stuck[n.ID] {
			kept = append(kept, n)
		}
	}
	s.items[owner] = kept
	return nil
}

type MockProfileLoader struct {
	mock.Mock
}

func (m *MockProfileLoader) Load(ctx context.Context, actor types.Actor) *profile.View {
	args := m.Called(ctx, actor)
	return args.Get(0).(*profile.View)
}

func (m *MockProfileLoader) Payments(ctx context.Context, actor types.Actor) profile.Section[profile.Payments] {
	args := m.Called(ctx, actor)
	return args.Get(0).(profile.Section[profile.Payments])
}

type MockCodeVerifier struct {
	mock.Mock
}

func (m *MockCodeVerifier) Issue(ctx context.Context, email string) (verification.Issued, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(verification.Issued), args.Error(1)
}

func (m *MockCodeVerifier) Verify(ctx context.Context, email, code string) error {
	args := m.Called(ctx, email, code)
	return args.Error(0)
}

type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) CheckHealth(ctx context.Context) types.HealthCheck {
	args := m.Called(ctx)
	return args.Get(0).(types.HealthCheck)
}

func (m *MockHealthChecker) IsReady(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

// newTestRouter returns an engine with the error and actor middleware the
// real router installs in front of member routes.
func newTestRouter() (*gin.Engine, *gin.RouterGroup) {
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	return r, r.Group("/v1", middleware.ActorMiddleware())
}

func doRequest(r http.Handler, method, path string, actor *types.Actor, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, _ := http.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		req.Header.Set(middleware.HeaderActorUsername, actor.Username)
		req.Header.Set(middleware.HeaderActorKind, string(actor.Kind))
		if actor.ID != "" {
			req.Header.Set(middleware.HeaderActorID, actor.ID)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var out T
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}
