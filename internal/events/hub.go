// Package events fans published price events out to connected listeners.
package events

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	TopicComparisonComplete = "price_comparison_complete"
	TopicPriceUpdate        = "price_update"
	EventSignificantChange  = "significant_price_change"
)

// ProductTopic is the room a product's significant change events go to.
func ProductTopic(productKey string) string {
	return "price_" + productKey
}

// OwnerTopic carries the change events that cleared one owner's own
// threshold.
func OwnerTopic(ownerID string) string {
	return "owner_" + ownerID
}

// Emitter publishes fire-and-forget events. Delivery is at most once.
type Emitter interface {
	Publish(topic string, payload any)
}

// Named payloads choose their own event name; others are named by topic.
type Named interface {
	EventName() string
}

type Event struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Name      string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type Subscription struct {
	ID     string
	C      <-chan Event
	ch     chan Event
	topics []string
}

func (s *Subscription) matches(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	for _, t := range s.topics {
		if prefix, ok := strings.CutSuffix(t, "*"); ok {
			if strings.HasPrefix(topic, prefix) {
				return true
			}
			continue
		}
		if t == topic {
			return true
		}
	}
	return false
}

// Hub is an in-process Emitter. Slow subscribers lose events rather than
// blocking publishers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	buffer int
	logger zerolog.Logger

	published atomic.Int64
	dropped   atomic.Int64
}

func NewHub(buffer int, logger zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
		logger: logger,
	}
}

func (h *Hub) Publish(topic string, payload any) {
	name := topic
	if n, ok := payload.(Named); ok {
		name = n.EventName()
	}
	ev := Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		Name:      name,
		Data:      payload,
		Timestamp: time.Now(),
	}
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if !s.matches(topic) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.dropped.Add(1)
			h.logger.Debug().Str("subscriber", s.ID).Str("topic", topic).Msg("Dropping event for slow subscriber")
		}
	}
}

// Subscribe registers a listener for the given topics; a topic ending in
// "*" matches by prefix and no topics means everything. The returned func
// unsubscribes and closes the channel.
func (h *Hub) Subscribe(topics ...string) (*Subscription, func()) {
	ch := make(chan Event, h.buffer)
	s := &Subscription{ID: uuid.NewString(), C: ch, ch: ch, topics: topics}

	h.mu.Lock()
	h.subs[s.ID] = s
	h.mu.Unlock()

	var once sync.Once
	return s, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, s.ID)
			h.mu.Unlock()
			close(ch)
		})
	}
}

type HubStats struct {
	Subscribers int   `json:"subscribers"`
	Published   int64 `json:"published"`
	Dropped     int64 `json:"dropped"`
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubStats{
		Subscribers: len(h.subs),
		Published:   h.published.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// LogEmitter writes events to the log instead of delivering them.
type LogEmitter struct {
	Logger zerolog.Logger
}

func (e LogEmitter) Publish(topic string, payload any) {
	e.Logger.Info().Str("topic", topic).Interface("payload", payload).Msg("Event published")
}
