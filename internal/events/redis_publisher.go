package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/NomadCrew/dojo-portal/logger"
	"github.com/NomadCrew/dojo-portal/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Config struct {
	PublishTimeout   time.Duration
	SubscribeTimeout time.Duration
	EventBufferSize  int
}

func DefaultConfig() Config {
	return Config{
		PublishTimeout:   5 * time.Second,
		SubscribeTimeout: 10 * time.Second,
		EventBufferSize:  100,
	}
}

// ChannelName is the Redis channel carrying an actor topic.
func ChannelName(topic string) string {
	return "actor:" + topic
}

// RedisPublisher fans actor broadcasts out across service instances. A badge
// socket may be held by any instance, so every publish goes through Redis and
// each instance subscribes only to the actors it currently serves.
type RedisPublisher struct {
	rdb     *redis.Client
	log     *zap.SugaredLogger
	metrics *metrics
	cfg     Config

	mu     sync.Mutex
	actors map[string]*actorSubscription
	wg     sync.WaitGroup
}

// actorSubscription is one subscriber's Redis channel for one actor topic.
type actorSubscription struct {
	topic        string
	subscriberID string
	pubsub       *redis.PubSub
	cancel       context.CancelFunc
	once         sync.Once
}

func (s *actorSubscription) close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.pubsub.Close()
	})
	return err
}

func NewRedisPublisher(rdb *redis.Client, cfg ...Config) *RedisPublisher {
	c := DefaultConfig()
	if len(cfg) > 0 {
		c = cfg[0]
	}

	return &RedisPublisher{
		rdb:     rdb,
		log:     logger.GetLogger().Named("events"),
		metrics: newMetrics(),
		cfg:     c,
		actors:  make(map[string]*actorSubscription),
	}
}

func subscriptionKey(topic, subscriberID string) string {
	return topic + "|" + subscriberID
}

// Publish sends event on the actor's channel. No receivers is not an error:
// the actor simply has no badge open anywhere.
func (p *RedisPublisher) Publish(ctx context.Context, topic string, event types.Event) error {
	start := time.Now()
	defer func() {
		p.metrics.publishLatency.Observe(time.Since(start).Seconds())
	}()

	event = withDefaults(event)
	if err := event.Validate(); err != nil {
		p.metrics.errorCount.WithLabelValues("publish", "validation").Inc()
		return fmt.Errorf("invalid event: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.metrics.errorCount.WithLabelValues("publish", "marshal").Inc()
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()

	receivers, err := p.rdb.Publish(ctx, ChannelName(topic), data).Result()
	if err != nil {
		p.metrics.errorCount.WithLabelValues("publish", "redis").Inc()
		return fmt.Errorf("redis publish: %w", err)
	}
	if receivers == 0 {
		p.log.Debugw("No instance is serving actor", "actor", topic, "eventType", event.Type)
	}

	p.metrics.eventCount.WithLabelValues("publish", string(event.Type)).Inc()
	return nil
}

// Subscribe returns once Redis has confirmed the channel subscription, so an
// event published right after cannot be missed.
func (p *RedisPublisher) Subscribe(ctx context.Context, topic, subscriberID string, filters ...types.EventType) (<-chan types.Event, error) {
	start := time.Now()
	defer func() {
		p.metrics.subscribeLatency.Observe(time.Since(start).Seconds())
	}()

	key := subscriptionKey(topic, subscriberID)

	p.mu.Lock()
	if _, exists := p.actors[key]; exists {
		p.mu.Unlock()
		p.metrics.errorCount.WithLabelValues("subscribe", "duplicate").Inc()
		return nil, fmt.Errorf("actor %s already has subscriber %s", topic, subscriberID)
	}
	subCtx, cancel := context.WithCancel(context.Background())
	sub := &actorSubscription{
		topic:        topic,
		subscriberID: subscriberID,
		pubsub:       p.rdb.Subscribe(subCtx, ChannelName(topic)),
		cancel:       cancel,
	}
	p.actors[key] = sub
	p.mu.Unlock()

	confirmCtx, confirmCancel := context.WithTimeout(ctx, p.cfg.SubscribeTimeout)
	_, err := sub.pubsub.Receive(confirmCtx)
	confirmCancel()
	if err != nil {
		p.drop(key, sub)
		p.metrics.errorCount.WithLabelValues("subscribe", "redis").Inc()
		return nil, fmt.Errorf("subscribe to actor %s: %w", topic, err)
	}

	out := make(chan types.Event, p.cfg.EventBufferSize)
	p.metrics.activeSubscribers.Inc()
	p.wg.Add(1)
	go p.forward(subCtx, sub, out, filters)

	return out, nil
}

func (p *RedisPublisher) forward(ctx context.Context, sub *actorSubscription, out chan<- types.Event, filters []types.EventType) {
	defer p.wg.Done()
	defer func() {
		close(out)
		p.metrics.activeSubscribers.Dec()
		p.log.Debugw("Actor subscription closed", "actor", sub.topic, "subscriber", sub.subscriberID)
	}()

	messages := sub.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}

			var event types.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				p.metrics.errorCount.WithLabelValues("process", "unmarshal").Inc()
				p.log.Errorw("Discarding malformed event", "actor", sub.topic, "error", err)
				continue
			}
			if !matchesFilters(event, filters) {
				continue
			}

			select {
			case out <- event:
				p.metrics.eventCount.WithLabelValues("receive", string(event.Type)).Inc()
			default:
				p.metrics.errorCount.WithLabelValues("process", "channel_full").Inc()
				p.log.Warnw("Subscriber too slow, dropped event",
					"actor", sub.topic, "subscriber", sub.subscriberID, "eventType", event.Type)
			}
		}
	}
}

func (p *RedisPublisher) Unsubscribe(_ context.Context, topic, subscriberID string) error {
	key := subscriptionKey(topic, subscriberID)

	p.mu.Lock()
	sub, exists := p.actors[key]
	if exists {
		delete(p.actors, key)
	}
	p.mu.Unlock()

	if !exists {
		return fmt.Errorf("actor %s has no subscriber %s", topic, subscriberID)
	}
	if err := sub.close(); err != nil {
		p.log.Warnw("Closing actor subscription failed", "actor", topic, "error", err)
	}
	return nil
}

func (p *RedisPublisher) drop(key string, sub *actorSubscription) {
	p.mu.Lock()
	if p.actors[key] == sub {
		delete(p.actors, key)
	}
	p.mu.Unlock()
	_ = sub.close()
}

// Shutdown closes every actor subscription and waits for the forwarders.
func (p *RedisPublisher) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	subs := p.actors
	p.actors = make(map[string]*actorSubscription)
	p.mu.Unlock()

	for _, sub := range subs {
		_ = sub.close()
	}
	p.log.Infow("Closed actor subscriptions", "count", len(subs))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
