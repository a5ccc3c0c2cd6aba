package inbox

import (
	"context"
	"sync"
	"time"

	"github.com/NomadCrew/dojo-portal/types"
)

// UnreadNotifier is told when a poll observes a different unread count.
type UnreadNotifier interface {
	UnreadChanged(ctx context.Context, actor types.Actor, unread int)
}

// Poller refreshes a session on an interval while the actor's page is visible.
// Becoming visible triggers an immediate refresh.
type Poller struct {
	controller *Controller
	notifier   UnreadNotifier
	interval   time.Duration

	mu         sync.Mutex
	visible    bool
	lastUnread int
	cancel     context.CancelFunc
	done       chan struct{}
	kick       chan struct{}
}

func NewPoller(controller *Controller, notifier UnreadNotifier, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Poller{
		controller: controller,
		notifier:   notifier,
		interval:   interval,
		lastUnread: -1,
		kick:       make(chan struct{}, 1),
	}
}

// Start runs the poll loop until ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if p.Visible() {
					p.poll(ctx)
				}
			case <-p.kick:
				p.poll(ctx)
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight poll to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SetVisible records page visibility. A hidden-to-visible change refreshes at once.
func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	wasVisible := p.visible
	p.visible = visible
	p.mu.Unlock()

	if visible && !wasVisible {
		select {
		case p.kick <- struct{}{}:
		default:
		}
	}
}

func (p *Poller) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

func (p *Poller) poll(ctx context.Context) {
	if _, err := p.controller.Refresh(ctx); err != nil {
		return
	}

	unread, err := p.controller.UnreadCount(ctx)
	if err != nil {
		p.controller.log.Debugw("Unread count poll failed", "error", err)
		return
	}

	p.mu.Lock()
	changed := unread != p.lastUnread
	p.lastUnread = unread
	p.mu.Unlock()

	if changed && p.notifier != nil {
		p.notifier.UnreadChanged(ctx, p.controller.Actor(), unread)
	}
}
