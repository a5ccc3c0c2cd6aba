// Package events is the typed broadcast channel between inbox sessions and the
// badge widgets watching them. Topics are actor keys ("user:kenji").
//
// Bus delivers within one process. RedisPublisher fans out across instances
// through Redis pub/sub on channel "actor:<key>".
package events

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/NomadCrew/dojo-portal/errors"
	"github.com/NomadCrew/dojo-portal/types"
	"github.com/google/uuid"
)

// NewEvent builds an event with a fresh id and the payload marshalled as JSON.
func NewEvent(eventType types.EventType, actorKey, source string, payload interface{}) (types.Event, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return types.Event{}, apperrors.Wrap(err, apperrors.ServerError, "failed to marshal event payload")
		}
		raw = data
	}

	return types.Event{
		BaseEvent: types.BaseEvent{
			ID:        uuid.NewString(),
			Type:      eventType,
			ActorKey:  actorKey,
			Timestamp: time.Now().UTC(),
			Version:   1,
		},
		Metadata: types.EventMetadata{Source: source},
		Payload:  raw,
	}, nil
}

// PublishEvent builds an event and publishes it on the actor's topic.
func PublishEvent(ctx context.Context, publisher types.EventPublisher, eventType types.EventType, actorKey, source string, payload interface{}) error {
	event, err := NewEvent(eventType, actorKey, source, payload)
	if err != nil {
		return err
	}
	if err := publisher.Publish(ctx, actorKey, event); err != nil {
		return apperrors.Wrap(err, apperrors.ServerError, "failed to publish event")
	}
	return nil
}

func matchesFilters(event types.Event, filters []types.EventType) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if event.Type == f {
			return true
		}
	}
	return false
}

func withDefaults(event types.Event) types.Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Version == 0 {
		event.Version = 1
	}
	return event
}
