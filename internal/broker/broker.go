// Package broker implements the message broker (spec C5) and its
// actor-system bridge (spec C7 ActorSystemSubscriber): publish/subscribe
// messaging decoupled from direct actor addressing, layered over
// internal/topic's wildcard matcher.
package broker

import (
	"context"

	"github.com/roasbeef/substrate-rt/internal/actorcore"
	"github.com/roasbeef/substrate-rt/internal/topic"
)

// PublishedMessage is delivered to every actor subscribed to a matching
// topic. It embeds BaseMessage so actor behaviors can receive it like any
// other message.
type PublishedMessage struct {
	actorcore.BaseMessage

	// Topic is the concrete topic the payload was published to (not the
	// subscriber's filter pattern).
	Topic string

	// Payload is the published value, opaque to the broker.
	Payload any
}

// MessageType implements actorcore.Message.
func (PublishedMessage) MessageType() string { return "broker.PublishedMessage" }

// Priority implements actorcore.PriorityMessage: broker fan-out defaults
// to normal priority so it doesn't preempt an actor's own direct traffic.
func (PublishedMessage) Priority() actorcore.MessagePriority {
	return actorcore.PriorityNormal
}

// Broker is the system-wide publish/subscribe hub. It wraps a
// topic.Manager and adapts actor references into topic.Subscriber so an
// actor can subscribe with a single call.
type Broker struct {
	manager *topic.Manager
}

// New creates an empty Broker.
func New() *Broker {
	return &Broker{manager: topic.NewManager()}
}

// Publish delivers payload under topicName to every matching subscriber
// and returns the number of recipients.
func (b *Broker) Publish(topicName string, payload any) int {
	return b.manager.Publish(topicName, payload)
}

// SubscribeActor binds ref to every topic matching pattern. Delivery is a
// Tell of PublishedMessage{Topic, Payload} to ref, so it never blocks the
// broker on a slow subscriber's own processing — only on the mailbox
// accepting the envelope, per ref's configured backpressure policy.
func SubscribeActor[M actorcore.Message](
	b *Broker, pattern string, ref actorcore.TellOnlyRef[M], wrap func(PublishedMessage) M,
) (topic.SubscriptionID, error) {

	return b.manager.Subscribe(pattern, &actorSystemSubscriber[M]{
		ref:  ref,
		wrap: wrap,
	})
}

// Unsubscribe removes a subscription previously created by SubscribeActor.
func (b *Broker) Unsubscribe(id topic.SubscriptionID) bool {
	return b.manager.Unsubscribe(id)
}

// actorSystemSubscriber adapts an actorcore.TellOnlyRef into a
// topic.Subscriber (spec C7). wrap lets each subscribing actor receive
// the publish in its own message type rather than forcing every actor in
// the system to handle broker.PublishedMessage directly.
type actorSystemSubscriber[M actorcore.Message] struct {
	ref  actorcore.TellOnlyRef[M]
	wrap func(PublishedMessage) M
}

// Deliver implements topic.Subscriber.
func (s *actorSystemSubscriber[M]) Deliver(topicName string, payload any) {
	msg := PublishedMessage{Topic: topicName, Payload: payload}
	s.ref.Tell(context.Background(), s.wrap(msg))
}
