package inbox

import (
	"context"
	"testing"
	"time"

	"github.com/NomadCrew/dojo-portal/config"
	"github.com/NomadCrew/dojo-portal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInboxConfig() config.InboxConfig {
	return config.InboxConfig{
		UserPageSize:        5,
		CoachPageSize:       10,
		AllLimit:            allLimit,
		ConfirmDelayMS:      500,
		PollIntervalSeconds: 300,
		NoticeTTLSeconds:    3,
		SessionIdleMinutes:  30,
	}
}

func TestRegistry_SessionsAreCreatedLazilyAndReused(t *testing.T) {
	r := NewRegistry(newMemStore(), testInboxConfig(), nil)
	defer r.Close()

	first, err := r.Session(kenji)
	require.NoError(t, err)
	second, err := r.Session(kenji)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, r.Len())

	coach, err := r.Session(sato)
	require.NoError(t, err)
	assert.NotSame(t, first, coach)
	assert.Equal(t, 10, coach.Controller.pager.PageSize())
	assert.Equal(t, 5, first.Controller.pager.PageSize())

	found, ok := r.Lookup(sato.Key())
	assert.True(t, ok)
	assert.Same(t, coach, found)
}

func TestRegistry_RejectsMissingActor(t *testing.T) {
	r := NewRegistry(newMemStore(), testInboxConfig(), nil)
	defer r.Close()

	_, err := r.Session(types.Actor{Kind: types.ActorKindUser})
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = r.Session(types.Actor{Username: "sensei_sato", Kind: types.ActorKindCoach})
	assert.Error(t, err)
	assert.Zero(t, r.Len())
}

func TestRegistry_CoachIDChangeReplacesSession(t *testing.T) {
	r := NewRegistry(newMemStore(), testInboxConfig(), nil)
	defer r.Close()

	first, err := r.Session(sato)
	require.NoError(t, err)

	moved := sato
	moved.ID = "c-77"
	second, err := r.Session(moved)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, "c-77", second.Controller.Actor().ID)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_SweepEvictsIdleSessions(t *testing.T) {
	r := NewRegistry(newMemStore(), testInboxConfig(), nil)
	defer r.Close()

	now := epoch
	r.now = func() time.Time { return now }

	_, err := r.Session(kenji)
	require.NoError(t, err)
	now = now.Add(20 * time.Minute)
	_, err = r.Session(sato)
	require.NoError(t, err)

	now = now.Add(15 * time.Minute)
	assert.Equal(t, 1, r.Sweep())
	_, ok := r.Lookup(kenji.Key())
	assert.False(t, ok)
	_, ok = r.Lookup(sato.Key())
	assert.True(t, ok)
}

func TestRegistry_VisibilityAndRefreshUnread(t *testing.T) {
	store := newMemStore()
	store.seed("kenji", 4, 3)
	r := NewRegistry(store, testInboxConfig(), nil)
	defer r.Close()

	require.NoError(t, r.SetVisible(kenji, true))
	s, ok := r.Lookup(kenji.Key())
	require.True(t, ok)
	assert.True(t, s.Poller.Visible())

	unread, err := r.RefreshUnread(context.Background(), kenji)
	require.NoError(t, err)
	assert.Equal(t, 3, unread)
	// The visibility change also triggers a background poll.
	assert.Eventually(t, func() bool {
		return s.Controller.Snapshot().State == StateLoaded
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, r.SetVisible(types.Actor{}, true), ErrNotLoggedIn)
}

// slowStore holds user reads until release is closed, like a store call that
// only returns at its own timeout.
type slowStore struct {
	*memStore
	entered chan struct{}
	release chan struct{}
}

func (s *slowStore) UserNotifications(ctx context.Context, username string) ([]types.Notification, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return s.memStore.UserNotifications(ctx, username)
}

func TestRegistry_SweepDoesNotBlockLookupsOnInFlightPolls(t *testing.T) {
	store := &slowStore{
		memStore: newMemStore(),
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	r := NewRegistry(store, testInboxConfig(), nil)
	defer r.Close()

	now := epoch
	r.now = func() time.Time { return now }

	s, err := r.Session(kenji)
	require.NoError(t, err)
	s.Poller.SetVisible(true)
	<-store.entered

	now = now.Add(time.Hour)
	swept := make(chan int, 1)
	go func() { swept <- r.Sweep() }()

	aiko := types.Actor{Username: "aiko", Kind: types.ActorKindUser}
	created := make(chan error, 1)
	go func() {
		_, err := r.Session(aiko)
		created <- err
	}()

	select {
	case err := <-created:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session lookup waited for an evicted poller")
	}

	close(store.release)
	assert.Equal(t, 1, <-swept)
	_, ok := r.Lookup(kenji.Key())
	assert.False(t, ok)
	_, ok = r.Lookup(aiko.Key())
	assert.True(t, ok)
}
