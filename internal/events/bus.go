package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/stacksapp/stacks-server/internal/id"
)

// Topic identifies an event stream on the bus.
type Topic string

// TopicBookAdded carries catalog additions to subscribers.
const TopicBookAdded Topic = "book.added"

// Event is a single published message on a topic.
type Event struct {
	Payload   any       `json:"payload"`
	Topic     Topic     `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// subscriptionBuffer is the per-subscription channel capacity. Publishing
// never blocks on a subscriber; events beyond this buffer are dropped.
const subscriptionBuffer = 64

// Subscription is a registered listener on a topic. Events arrive on C
// until Unsubscribe or Shutdown closes it.
type Subscription struct {
	ConnectedAt time.Time
	C           chan Event
	ID          string
	Topic       Topic

	bus       *Bus
	closeOnce sync.Once
}

// Unsubscribe removes the subscription from the bus and closes C.
// Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.closeOnce.Do(func() {
		s.bus.remove(s)
		close(s.C)
	})
}

// Bus fans out published events to topic subscribers.
//
// Publish delivers synchronously to the subscribers registered at the
// moment of the call, serialized per bus, so every subscriber on a topic
// observes events in the same order they were published.
type Bus struct {
	subscribers map[Topic]map[string]*Subscription
	logger      *slog.Logger

	// publishMu serializes Publish so concurrent publishers cannot
	// interleave deliveries to the same subscriber out of order.
	publishMu sync.Mutex
	mu        sync.RWMutex
	shutdown  bool
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[Topic]map[string]*Subscription),
		logger:      logger,
	}
}

// Subscribe registers a listener on a topic and returns its subscription.
func (b *Bus) Subscribe(topic Topic) (*Subscription, error) {
	subID, err := id.Generate("sub")
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		ID:          subID,
		Topic:       topic,
		C:           make(chan Event, subscriptionBuffer),
		ConnectedAt: time.Now(),
		bus:         b,
	}

	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		// Consume closeOnce so a deferred Unsubscribe on the dead
		// subscription cannot close C a second time.
		sub.closeOnce.Do(func() {
			close(sub.C)
		})
		return sub, nil
	}
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[string]*Subscription)
	}
	b.subscribers[topic][sub.ID] = sub
	total := len(b.subscribers[topic])
	b.mu.Unlock()

	b.logger.Debug("subscriber registered",
		slog.String("subscription_id", subID),
		slog.String("topic", string(topic)),
		slog.Int("topic_subscribers", total))
	return sub, nil
}

// Publish delivers an event to every subscriber currently registered on
// the topic. Slow subscribers whose buffers are full have the event
// dropped rather than blocking the publisher.
func (b *Bus) Publish(topic Topic, payload any) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	event := Event{
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	var delivered, dropped int

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.shutdown {
		return
	}

	for _, sub := range b.subscribers[topic] {
		select {
		case sub.C <- event:
			delivered++
		default:
			dropped++
			b.logger.Warn("dropped event for slow subscriber",
				slog.String("subscription_id", sub.ID),
				slog.String("topic", string(topic)))
		}
	}

	b.logger.Debug("event published",
		slog.String("topic", string(topic)),
		slog.Int("delivered", delivered),
		slog.Int("dropped", dropped))
}

// SubscriberCount returns the number of subscribers on a topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

// Shutdown closes every subscription and stops accepting new ones.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shutdown {
		return
	}
	b.shutdown = true

	var closed int
	for _, subs := range b.subscribers {
		for _, sub := range subs {
			sub.closeOnce.Do(func() {
				close(sub.C)
			})
			closed++
		}
	}
	b.subscribers = make(map[Topic]map[string]*Subscription)

	b.logger.Info("event bus shut down", slog.Int("subscriptions_closed", closed))
}

// remove deletes a subscription from the registry. Called by Unsubscribe.
func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[sub.Topic]
	if !ok {
		return
	}
	delete(subs, sub.ID)
	if len(subs) == 0 {
		delete(b.subscribers, sub.Topic)
	}
}
