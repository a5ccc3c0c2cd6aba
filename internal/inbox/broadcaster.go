package inbox

import (
	"context"
	"time"

	"github.com/NomadCrew/dojo-portal/internal/events"
	"github.com/NomadCrew/dojo-portal/logger"
	"github.com/NomadCrew/dojo-portal/services"
	"github.com/NomadCrew/dojo-portal/types"
	"go.uber.org/zap"
)

const broadcastSource = "inbox"

// Scheduler runs a job after a delay. *services.WorkerPool satisfies it.
type Scheduler interface {
	SubmitAfter(delay time.Duration, job services.Job) bool
}

// Broadcaster emits NOTIFICATIONS_CHANGED on the actor's topic. Mutations
// publish a settle signal at once and a confirm signal after confirmDelay.
type Broadcaster struct {
	publisher    types.EventPublisher
	scheduler    Scheduler
	confirmDelay time.Duration
	log          *zap.SugaredLogger
	metrics      *metrics
}

func NewBroadcaster(publisher types.EventPublisher, scheduler Scheduler, confirmDelay time.Duration) *Broadcaster {
	return &Broadcaster{
		publisher:    publisher,
		scheduler:    scheduler,
		confirmDelay: confirmDelay,
		log:          logger.GetLogger().Named("inbox_broadcaster"),
		metrics:      newMetrics(),
	}
}

// NotificationsChanged implements Notifier.
func (b *Broadcaster) NotificationsChanged(ctx context.Context, actor types.Actor, operation string) {
	_ = b.emit(ctx, actor, types.NotificationsChangedEvent{
		Phase:     types.BroadcastPhaseSettle,
		Operation: operation,
	})

	confirm := services.Job{
		Name: "inbox-confirm-broadcast",
		Execute: func(jobCtx context.Context) error {
			return b.emit(jobCtx, actor, types.NotificationsChangedEvent{
				Phase:     types.BroadcastPhaseConfirm,
				Operation: operation,
			})
		},
	}
	if !b.scheduler.SubmitAfter(b.confirmDelay, confirm) {
		b.log.Warnw("Confirm broadcast not scheduled", "actor", actor.Key(), "operation", operation)
	}
}

// UnreadChanged publishes a poll-phase signal carrying the new unread count.
func (b *Broadcaster) UnreadChanged(ctx context.Context, actor types.Actor, unread int) {
	_ = b.emit(ctx, actor, types.NotificationsChangedEvent{
		Phase:       types.BroadcastPhasePoll,
		UnreadCount: &unread,
	})
}

func (b *Broadcaster) emit(ctx context.Context, actor types.Actor, payload types.NotificationsChangedEvent) error {
	err := events.PublishEvent(ctx, b.publisher, types.EventTypeNotificationsChanged, actor.Key(), broadcastSource, payload)
	if err != nil {
		b.log.Errorw("Failed to broadcast notifications change",
			"actor", actor.Key(), "phase", payload.Phase, "error", err)
		return err
	}
	b.metrics.broadcasts.WithLabelValues(string(payload.Phase)).Inc()
	return nil
}
