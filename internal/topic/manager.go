package topic

import (
	"sync"

	"github.com/google/uuid"
)

// Subscriber is anything that can receive a published payload. The broker
// package implements this for actor-backed subscribers (C7
// ActorSystemSubscriber); it is declared here, not imported, to keep this
// package free of an actorcore dependency so the wildcard-matching core
// stays independently testable.
type Subscriber interface {
	Deliver(topicName string, payload any)
}

// SubscriptionID identifies one subscriber's binding to one filter.
type SubscriptionID string

type subscription struct {
	id         SubscriptionID
	filter     Filter
	subscriber Subscriber
}

// Manager tracks every active subscription and, on Publish, delivers to
// every subscriber whose filter matches the published topic. A single
// subscriber may hold multiple subscriptions (e.g. one per focus area);
// each is delivered to independently, so a subscriber registered under
// two overlapping filters receives the payload twice — callers that want
// at-most-once delivery should dedupe on their own subscriber ID.
type Manager struct {
	mu   sync.RWMutex
	subs []subscription
}

// NewManager creates an empty subscription manager.
func NewManager() *Manager {
	return &Manager{}
}

// Subscribe binds sub to every topic matching pattern and returns a
// SubscriptionID that can later be passed to Unsubscribe.
func (m *Manager) Subscribe(pattern string, sub Subscriber) (SubscriptionID, error) {
	filter, err := NewFilter(pattern)
	if err != nil {
		return "", err
	}

	id := SubscriptionID(uuid.NewString())

	m.mu.Lock()
	m.subs = append(m.subs, subscription{id: id, filter: filter, subscriber: sub})
	m.mu.Unlock()

	return id, nil
}

// Unsubscribe removes the subscription with the given ID. Returns false
// if no such subscription exists.
func (m *Manager) Unsubscribe(id SubscriptionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.subs {
		if s.id == id {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return true
		}
	}

	return false
}

// Publish delivers payload to every subscription whose filter matches
// topicName. Ordering guarantee: subscribers are notified in the order
// they were subscribed; delivery to each is synchronous and independent,
// so one slow subscriber's Deliver call delays the others published to in
// the same call — callers that need concurrent fan-out should make
// Deliver non-blocking (e.g. ActorSystemSubscriber.Deliver does a Tell,
// which is non-blocking past the mailbox).
func (m *Manager) Publish(topicName string, payload any) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	delivered := 0
	for _, s := range m.subs {
		if s.filter.Matches(topicName) {
			s.subscriber.Deliver(topicName, payload)
			delivered++
		}
	}

	return delivered
}

// MatchingSubscriptions returns the subscription IDs whose filter matches
// topicName, without delivering anything. Useful for introspection/tests.
func (m *Manager) MatchingSubscriptions(topicName string) []SubscriptionID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []SubscriptionID
	for _, s := range m.subs {
		if s.filter.Matches(topicName) {
			out = append(out, s.id)
		}
	}

	return out
}
