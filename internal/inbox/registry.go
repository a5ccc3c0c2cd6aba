package inbox

import (
	"context"
	"sync"
	"time"

	"github.com/NomadCrew/dojo-portal/config"
	"github.com/NomadCrew/dojo-portal/logger"
	"github.com/NomadCrew/dojo-portal/types"
	"go.uber.org/zap"
)

// Session is a live inbox for one actor.
type Session struct {
	Controller *Controller
	Poller     *Poller
	lastSeen   time.Time
}

// Registry creates sessions on first use and evicts them after a period of
// inactivity. Sessions are keyed by Actor.Key.
type Registry struct {
	store       Store
	cfg         config.InboxConfig
	broadcaster *Broadcaster
	log         *zap.SugaredLogger
	metrics     *metrics
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewRegistry(store Store, cfg config.InboxConfig, broadcaster *Broadcaster) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		store:       store,
		cfg:         cfg,
		broadcaster: broadcaster,
		log:         logger.GetLogger().Named("inbox_registry"),
		metrics:     newMetrics(),
		now:         time.Now,
		sessions:    make(map[string]*Session),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Session returns the actor's session, creating it if needed.
func (r *Registry) Session(actor types.Actor) (*Session, error) {
	if actor.Username == "" {
		return nil, ErrNotLoggedIn
	}
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	key := actor.Key()

	r.mu.Lock()
	var replaced *Session
	if s, ok := r.sessions[key]; ok {
		// Coach reads are addressed by id; keep the newest one the gateway sent.
		if s.Controller.actor.ID == actor.ID {
			s.lastSeen = r.now()
			r.mu.Unlock()
			return s, nil
		}
		replaced = r.removeLocked(key)
	}

	s := r.newSessionLocked(actor)
	r.sessions[key] = s
	r.metrics.sessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if replaced != nil {
		replaced.Poller.Stop()
	}
	r.log.Debugw("Inbox session created", "actor", key)
	return s, nil
}

// Lookup returns an existing session without creating one.
func (r *Registry) Lookup(actorKey string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[actorKey]
	if ok {
		s.lastSeen = r.now()
	}
	return s, ok
}

func (r *Registry) newSessionLocked(actor types.Actor) *Session {
	pageSize := r.cfg.UserPageSize
	if actor.IsCoach() {
		pageSize = r.cfg.CoachPageSize
	}

	var notifier Notifier
	var unreadNotifier UnreadNotifier
	if r.broadcaster != nil {
		notifier = r.broadcaster
		unreadNotifier = r.broadcaster
	}

	controller := NewController(actor, NewSource(r.store, actor, r.cfg.AllLimit), Options{
		PageSize:  pageSize,
		NoticeTTL: r.cfg.NoticeTTL(),
		Notifier:  notifier,
	})
	poller := NewPoller(controller, unreadNotifier, r.cfg.PollInterval())
	poller.Start(r.ctx)

	return &Session{Controller: controller, Poller: poller, lastSeen: r.now()}
}

// SetVisible records whether the actor's page is on screen.
func (r *Registry) SetVisible(actor types.Actor, visible bool) error {
	s, err := r.Session(actor)
	if err != nil {
		return err
	}
	s.Poller.SetVisible(visible)
	return nil
}

// RefreshUnread reloads the actor's current page and returns the unread badge count.
func (r *Registry) RefreshUnread(ctx context.Context, actor types.Actor) (int, error) {
	s, err := r.Session(actor)
	if err != nil {
		return 0, err
	}
	if _, err := s.Controller.Refresh(ctx); err != nil {
		return 0, err
	}
	return s.Controller.UnreadCount(ctx)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than the configured timeout and
// returns how many were removed.
func (r *Registry) Sweep() int {
	idle := r.cfg.SessionIdleTimeout()
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var evicted []*Session
	for key, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			evicted = append(evicted, r.removeLocked(key))
		}
	}
	remaining := len(r.sessions)
	r.mu.Unlock()

	stopAll(evicted)
	if len(evicted) > 0 {
		r.log.Infow("Evicted idle inbox sessions", "count", len(evicted), "remaining", remaining)
	}
	return len(evicted)
}

// Run sweeps on interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close stops every session's poller.
func (r *Registry) Close() {
	r.cancel()

	r.mu.Lock()
	var closed []*Session
	for key := range r.sessions {
		closed = append(closed, r.removeLocked(key))
	}
	r.mu.Unlock()

	stopAll(closed)
}

// removeLocked drops the session from the map. Its poller is stopped by the
// caller once r.mu is released, since Stop waits for an in-flight poll.
func (r *Registry) removeLocked(key string) *Session {
	s := r.sessions[key]
	delete(r.sessions, key)
	r.metrics.sessions.Set(float64(len(r.sessions)))
	return s
}

func stopAll(sessions []*Session) {
	for _, s := range sessions {
		s.Poller.Stop()
	}
}
