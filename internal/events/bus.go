package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NomadCrew/dojo-portal/logger"
	"github.com/NomadCrew/dojo-portal/types"
	"go.uber.org/zap"
)

// Bus is an in-process types.EventPublisher. Delivery never blocks the
// publisher: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[string]*busSubscription // topic -> subscriber id
	buffer  int
	closed  bool
	log     *zap.SugaredLogger
	metrics *metrics
}

type busSubscription struct {
	ch      chan types.Event
	filters []types.EventType
}

// NewBus creates a bus whose subscriber channels hold bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultConfig().EventBufferSize
	}
	return &Bus{
		subs:    make(map[string]map[string]*busSubscription),
		buffer:  bufferSize,
		log:     logger.GetLogger().Named("event_bus"),
		metrics: newMetrics(),
	}
}

func (b *Bus) Publish(ctx context.Context, topic string, event types.Event) error {
	start := time.Now()
	defer func() {
		b.metrics.publishLatency.Observe(time.Since(start).Seconds())
	}()

	event = withDefaults(event)
	if err := event.Validate(); err != nil {
		b.metrics.errorCount.WithLabelValues("publish", "validation").Inc()
		return fmt.Errorf("invalid event: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	for id, sub := range b.subs[topic] {
		if !matchesFilters(event, sub.filters) {
			continue
		}
		select {
		case sub.ch <- event:
			b.metrics.eventCount.WithLabelValues("receive", string(event.Type)).Inc()
		default:
			b.metrics.errorCount.WithLabelValues("process", "channel_full").Inc()
			b.log.Warnw("Dropped event due to full channel", "topic", topic, "subscriber", id, "eventType", event.Type)
		}
	}

	b.metrics.eventCount.WithLabelValues("publish", string(event.Type)).Inc()
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, topic, subscriberID string, filters ...types.EventType) (<-chan types.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	topicSubs, ok := b.subs[topic]
	if !ok {
		topicSubs = make(map[string]*busSubscription)
		b.subs[topic] = topicSubs
	}
	if _, exists := topicSubs[subscriberID]; exists {
		b.metrics.errorCount.WithLabelValues("subscribe", "duplicate").Inc()
		return nil, fmt.Errorf("subscription already exists for topic %s and subscriber %s", topic, subscriberID)
	}

	sub := &busSubscription{ch: make(chan types.Event, b.buffer), filters: filters}
	topicSubs[subscriberID] = sub
	b.metrics.activeSubscribers.Inc()
	return sub.ch, nil
}

func (b *Bus) Unsubscribe(ctx context.Context, topic, subscriberID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[topic][subscriberID]
	if !ok {
		return fmt.Errorf("no subscription found for topic %s and subscriber %s", topic, subscriberID)
	}

	close(sub.ch)
	delete(b.subs[topic], subscriberID)
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
	b.metrics.activeSubscribers.Dec()
	return nil
}

// SubscriberCount reports how many subscribers a topic has.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Close closes every subscriber channel. Later calls fail.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, topicSubs := range b.subs {
		for _, sub := range topicSubs {
			close(sub.ch)
			b.metrics.activeSubscribers.Dec()
		}
	}
	b.subs = make(map[string]map[string]*busSubscription)
	b.closed = true
}
