// Package component implements the WASM component host (spec C15-C17):
// the ComponentActor message contract, the spawner that wires a loaded
// component into the actor system/registry/capability guard, and the
// inter-component messaging layer (fire-and-forget, request-response,
// pub/sub) layered on top of internal/broker.
package component

import (
	"github.com/roasbeef/substrate-rt/internal/actorcore"
	"github.com/roasbeef/substrate-rt/internal/supervisor"
)

// Message is the sealed ComponentMessage request type a ComponentActor's
// mailbox accepts. Exactly one of Invoke/InterComponent/HealthCheck/
// Shutdown/Callback variants is meaningful per message. Kept as one
// concrete struct with a Kind tag (rather than five separate message
// types) so the actor system's single-message-type-per-actor contract
// (ActorBehavior[M, R]) can still express a five-way union.
type Message struct {
	actorcore.BaseMessage

	Kind MessageKind

	// Invoke fields.
	Function string
	Args     []byte

	// InterComponent fields.
	Sender  actorcore.ComponentID
	Payload []byte

	// Callback fields: delivered to the requester that issued a Request
	// once its correlated reply arrives, so it can route the result into
	// its own handle-callback export instead of blocking on it.
	CorrelationID  CorrelationID
	CallbackResult []byte
	CallbackErr    string
}

// MessageKind discriminates Message's active variant.
type MessageKind int

const (
	KindInvoke MessageKind = iota
	KindInterComponent
	KindHealthCheck
	KindShutdown
	KindCallback
)

// MessageType implements actorcore.Message.
func (Message) MessageType() string { return "component.Message" }

// Priority implements actorcore.PriorityMessage. HealthCheck and Shutdown
// are control-plane traffic and must not queue behind a backlog of data
// plane Invoke/InterComponent calls.
func (m Message) Priority() actorcore.MessagePriority {
	switch m.Kind {
	case KindShutdown:
		return actorcore.PriorityCritical
	case KindHealthCheck:
		return actorcore.PriorityHigh
	default:
		return actorcore.PriorityNormal
	}
}

// Invoke builds an Invoke request.
func Invoke(function string, args []byte) Message {
	return Message{Kind: KindInvoke, Function: function, Args: args}
}

// InterComponentMsg builds an InterComponent request.
func InterComponentMsg(sender actorcore.ComponentID, payload []byte) Message {
	return Message{Kind: KindInterComponent, Sender: sender, Payload: payload}
}

// HealthCheck builds a HealthCheck request.
func HealthCheck() Message { return Message{Kind: KindHealthCheck} }

// Shutdown builds a Shutdown request.
func Shutdown() Message { return Message{Kind: KindShutdown} }

// CallbackMsg builds the Callback delivery a Messenger sends back to a
// requester once id's correlated reply arrives. errMsg is empty on
// success.
func CallbackMsg(id CorrelationID, result []byte, errMsg string) Message {
	return Message{
		Kind:           KindCallback,
		CorrelationID:  id,
		CallbackResult: result,
		CallbackErr:    errMsg,
	}
}

// Reply is the sealed ComponentMessage response type: exactly one of
// Result (for Invoke), Status (for HealthCheck), or neither (a bare
// acknowledgement, for InterComponent/Shutdown/Callback) is populated.
type Reply struct {
	Result []byte
	Err    error

	Status supervisor.HealthStatus
}
