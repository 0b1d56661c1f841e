package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"

	"github.com/roasbeef/substrate-rt/internal/actorcore"
)

type recvMsg struct {
	actorcore.BaseMessage
	pub PublishedMessage
}

func (recvMsg) MessageType() string { return "recvMsg" }

func TestPublishSubscribeDeliversToMatchingActor(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got []string

	sys := actorcore.NewSystem(actorcore.DefaultSystemConfig())
	ref := actorcore.Spawn[recvMsg, any](sys, "/subscriber",
		actorcore.FunctionBehavior[recvMsg, any](
			func(_ context.Context, m recvMsg) fn.Result[any] {
				mu.Lock()
				got = append(got, m.pub.Topic)
				mu.Unlock()
				return fn.Ok[any](nil)
			}))

	b := New()
	_, err := SubscribeActor(b, "events.*", ref, func(p PublishedMessage) recvMsg {
		return recvMsg{pub: p}
	})
	require.NoError(t, err)

	delivered := b.Publish("events.alpha", "hello")
	require.Equal(t, 1, delivered)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, time.Millisecond)
}
