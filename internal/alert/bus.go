// Package alert provides the process-wide, in-memory publish/subscribe
// channel that delivers impact alerts to the presentation layer.
//
// The bus is an explicitly constructed object created once at process
// start and living for the process lifetime. It holds no persistent
// state: subscribers registered after a publish never see that
// publication (at-most-once, no buffering or replay).
package alert

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sportsense/impactcore/internal/observability"
)

// TopicAlertTriggered is the topic the impact detector publishes on and
// the presentation layer subscribes to.
const TopicAlertTriggered = "ALERT_TRIGGERED"

// Handler receives a published payload. Handlers run synchronously on
// the publisher's goroutine, in registration order.
type Handler func(topic string, payload any)

// Token identifies a subscription for Unsubscribe.
type Token struct {
	topic string
	id    uint64
}

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is the in-process publish/subscribe primitive. Safe for concurrent
// use.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]subscription
	nextID  uint64
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewBus creates an alert bus. logger and metrics may be nil.
func NewBus(logger *slog.Logger, metrics *observability.Metrics) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:    make(map[string][]subscription),
		logger:  logger.With("component", "alert-bus"),
		metrics: metrics,
	}
}

// Subscribe registers handler for topic and returns its unsubscribe
// token. Handlers are invoked in registration order.
func (b *Bus) Subscribe(topic string, handler Handler) Token {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[topic] = append(b.subs[topic], subscription{id: b.nextID, handler: handler})
	return Token{topic: topic, id: b.nextID}
}

// Unsubscribe removes the subscription identified by token. Unknown
// tokens are ignored.
func (b *Bus) Unsubscribe(token Token) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[token.topic]
	for i, s := range subs {
		if s.id == token.id {
			b.subs[token.topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers payload to every subscriber currently registered for
// topic, synchronously and in registration order. A panic in one
// subscriber is recovered and logged, never propagated to the publisher
// or to sibling subscribers.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.RUnlock()

	if b.metrics != nil {
		b.metrics.AlertsPublished.Add(context.Background(), 1)
	}

	for _, s := range subs {
		b.deliver(topic, payload, s)
	}
}

func (b *Bus) deliver(topic string, payload any, s subscription) {
	defer func() {
		if r := recover(); r != nil {
			if b.metrics != nil {
				b.metrics.SubscriberPanics.Add(context.Background(), 1)
			}
			b.logger.Error("subscriber panicked",
				"topic", topic,
				"subscription", s.id,
				"panic", r,
			)
		}
	}()
	s.handler(topic, payload)
}
