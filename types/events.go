package types

import (
	"context"
	"encoding/json"
	"time"

	"github.com/NomadCrew/dojo-portal/errors"
)

type EventType string

const (
	CategoryNotifications = "NOTIFICATIONS"
	CategoryProfile       = "PROFILE"
)

const (
	EventTypeNotificationsChanged  EventType = CategoryNotifications + "_CHANGED"
	EventTypeProfilePictureUpdated EventType = CategoryProfile + "_PICTURE_UPDATED"
)

// BroadcastPhase marks which emission of a settle-then-confirm pair an event is.
type BroadcastPhase string

const (
	BroadcastPhaseSettle  BroadcastPhase = "settle"
	BroadcastPhaseConfirm BroadcastPhase = "confirm"
	BroadcastPhasePoll    BroadcastPhase = "poll"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	ActorKey  string    `json:"actorKey"`
	Timestamp time.Time `json:"timestamp"`
	Version   int       `json:"version"`
}

// EventMetadata for tracking and debugging
type EventMetadata struct {
	CorrelationID string            `json:"correlationId,omitempty"`
	Source        string            `json:"source"`
	Tags          map[string]string `json:"tags,omitempty"`
}

type Event struct {
	BaseEvent
	Metadata EventMetadata   `json:"metadata"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

func (e Event) Validate() error {
	if e.ID == "" {
		return errors.ValidationFailed("invalid event", "event ID is required")
	}
	if e.Type == "" {
		return errors.ValidationFailed("invalid event", "event type is required")
	}
	if e.ActorKey == "" {
		return errors.ValidationFailed("invalid event", "actor key is required")
	}
	if e.Timestamp.IsZero() {
		return errors.ValidationFailed("invalid event", "timestamp is required")
	}
	return nil
}

// EventPublisher delivers events to the subscribers of one actor topic.
type EventPublisher interface {
	Publish(ctx context.Context, actorKey string, event Event) error
	Subscribe(ctx context.Context, actorKey string, subscriberID string, filters ...EventType) (<-chan Event, error)
	Unsubscribe(ctx context.Context, actorKey string, subscriberID string) error
}

type NotificationsChangedEvent struct {
	Phase       BroadcastPhase `json:"phase"`
	Operation   string         `json:"operation,omitempty"`
	UnreadCount *int           `json:"unreadCount,omitempty"`
}

type ProfilePictureUpdatedEvent struct {
	Username string `json:"username"`
	URL      string `json:"url"`
}
