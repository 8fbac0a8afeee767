package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/hazardfeed/pkg/log"
	"github.com/cuemby/hazardfeed/pkg/metrics"
	"github.com/cuemby/hazardfeed/pkg/types"
)

// EventType represents the type of event
type EventType string

const (
	EventNewPost    EventType = "new-post"
	EventZoneUpdate EventType = "zone-update"

	// EventSubscribed is written by stream transports as the first frame
	// once the broker subscription exists. It is never published.
	EventSubscribed EventType = "subscribed"
)

// OverflowPolicy decides what happens when a subscriber's buffer is full
type OverflowPolicy string

const (
	// DropOldest evicts the oldest buffered event to make room
	DropOldest OverflowPolicy = "drop-oldest"
	// Disconnect closes the subscription
	Disconnect OverflowPolicy = "disconnect"
)

// DefaultBufferSize is the per-subscriber buffer used when none is configured
const DefaultBufferSize = 64

// ErrSlowConsumer is reported by Subscription.Err after a disconnect due to
// overflow
var ErrSlowConsumer = errors.New("subscriber too slow, disconnected")

// Event is a broadcast notification. Payload holds the JSON encoding of a
// types.Post for new-post and of the full []types.Zone for zone-update.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEvent encodes v as the payload of a new event
func NewEvent(kind EventType, v any) (*Event, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}, nil
}

// NewPostEvent builds a new-post event carrying the stored post
func NewPostEvent(post *types.Post) (*Event, error) {
	return NewEvent(EventNewPost, post)
}

// NewZoneEvent builds a zone-update event carrying the full replacement
// collection
func NewZoneEvent(zones []types.Zone) (*Event, error) {
	if zones == nil {
		zones = []types.Zone{}
	}
	return NewEvent(EventZoneUpdate, zones)
}

// Post decodes the payload of a new-post event
func (e *Event) Post() (*types.Post, error) {
	if e.Type != EventNewPost {
		return nil, fmt.Errorf("event %s is %s, not %s", e.ID, e.Type, EventNewPost)
	}
	var post types.Post
	if err := json.Unmarshal(e.Payload, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// Zones decodes the payload of a zone-update event
func (e *Event) Zones() ([]types.Zone, error) {
	if e.Type != EventZoneUpdate {
		return nil, fmt.Errorf("event %s is %s, not %s", e.ID, e.Type, EventZoneUpdate)
	}
	zones := []types.Zone{}
	if err := json.Unmarshal(e.Payload, &zones); err != nil {
		return nil, err
	}
	return zones, nil
}

// Publisher is the publish handle injected into producers
type Publisher interface {
	Publish(event *Event)
}

// Subscription is one consumer's view of the event stream. C is closed when
// the subscription ends.
type Subscription struct {
	ID string
	C  <-chan *Event

	ch      chan *Event
	dropped atomic.Uint64
	err     atomic.Value
}

// Dropped returns how many events were evicted from this subscriber's buffer
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Err returns ErrSlowConsumer if the broker disconnected the subscription,
// nil otherwise
func (s *Subscription) Err() error {
	if err, ok := s.err.Load().(error); ok {
		return err
	}
	return nil
}

// Config holds broker settings
type Config struct {
	BufferSize int
	Overflow   OverflowPolicy
}

// Broker fans events out to every current subscriber
type Broker struct {
	mu          sync.Mutex
	subscribers map[*Subscription]struct{}
	bufferSize  int
	overflow    OverflowPolicy
	stopped     bool
}

// NewBroker creates a new event broker
func NewBroker(cfg Config) *Broker {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Overflow != Disconnect {
		cfg.Overflow = DropOldest
	}
	return &Broker{
		subscribers: make(map[*Subscription]struct{}),
		bufferSize:  cfg.BufferSize,
		overflow:    cfg.Overflow,
	}
}

// Stop closes every subscription. Later publishes are ignored and later
// subscriptions are returned already closed.
func (b *Broker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	for sub := range b.subscribers {
		b.remove(sub)
	}
}

// Subscribe creates a new subscription. Only events published after this
// call are delivered.
func (b *Broker) Subscribe() *Subscription {
	ch := make(chan *Event, b.bufferSize)
	sub := &Subscription{ID: uuid.New().String(), C: ch, ch: ch}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		close(ch)
		return sub
	}
	b.subscribers[sub] = struct{}{}
	metrics.Subscribers.Inc()
	return sub
}

// Unsubscribe removes a subscription and closes its channel. It is safe to
// call more than once.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(sub)
}

func (b *Broker) remove(sub *Subscription) {
	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub.ch)
	metrics.Subscribers.Dec()
}

// Publish delivers event to every subscriber without blocking. All
// subscribers observe events in the same order.
func (b *Broker) Publish(event *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	metrics.EventsPublished.WithLabelValues(string(event.Type)).Inc()

	for sub := range b.subscribers {
		select {
		case sub.ch <- event:
			continue
		default:
		}

		metrics.EventsDropped.WithLabelValues(string(b.overflow)).Inc()

		if b.overflow == Disconnect {
			sub.err.Store(ErrSlowConsumer)
			b.remove(sub)
			logger := log.WithSubscriberID(sub.ID)
			logger.Warn().
				Str("event_type", string(event.Type)).
				Msg("subscriber buffer full, disconnecting")
			continue
		}

		// Only receivers race with this block and they only free space.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- event:
		default:
		}
		sub.dropped.Add(1)
	}
}

// Stopped reports whether Stop has been called
func (b *Broker) Stopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
