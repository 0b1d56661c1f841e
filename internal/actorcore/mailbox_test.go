package actorcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type testMsg struct {
	BaseMessage
	value    int
	priority MessagePriority
}

func (m *testMsg) MessageType() string       { return "testMsg" }
func (m *testMsg) Priority() MessagePriority { return m.priority }

func TestPriorityMailboxOrdering(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mb := NewPriorityMailbox[*testMsg, struct{}](ctx, 4, PolicyBlock)
	defer mb.Close()

	low := envelope[*testMsg, struct{}]{message: &testMsg{value: 1, priority: PriorityLow}}
	critical := envelope[*testMsg, struct{}]{message: &testMsg{value: 2, priority: PriorityCritical}}
	normal := envelope[*testMsg, struct{}]{message: &testMsg{value: 3, priority: PriorityNormal}}

	require.True(t, mb.Send(ctx, low))
	require.True(t, mb.Send(ctx, normal))
	require.True(t, mb.Send(ctx, critical))

	var order []int
	for env := range mb.Receive(ctx) {
		order = append(order, env.message.value)
		if len(order) == 3 {
			break
		}
	}

	require.Equal(t, []int{2, 3, 1}, order)
}

func TestPriorityMailboxDropNewPolicy(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mb := NewPriorityMailbox[*testMsg, struct{}](ctx, 1, PolicyDropNew)
	defer mb.Close()

	first := envelope[*testMsg, struct{}]{message: &testMsg{value: 1}}
	second := envelope[*testMsg, struct{}]{message: &testMsg{value: 2}}

	require.True(t, mb.Send(ctx, first))
	require.False(t, mb.Send(ctx, second))
	require.Equal(t, int64(1), mb.Metrics.Dropped())
}

func TestPriorityMailboxDropOldestPolicy(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mb := NewPriorityMailbox[*testMsg, struct{}](ctx, 1, PolicyDropOldest)
	defer mb.Close()

	first := envelope[*testMsg, struct{}]{message: &testMsg{value: 1}}
	second := envelope[*testMsg, struct{}]{message: &testMsg{value: 2}}

	require.True(t, mb.Send(ctx, first))
	require.True(t, mb.Send(ctx, second))

	var got int
	for env := range mb.Receive(ctx) {
		got = env.message.value
		break
	}
	require.Equal(t, 2, got, "oldest message should have been evicted")
}

func TestPriorityMailboxCloseDrain(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mb := NewPriorityMailbox[*testMsg, struct{}](ctx, 4, PolicyBlock)

	require.True(t, mb.Send(ctx, envelope[*testMsg, struct{}]{message: &testMsg{value: 1}}))
	mb.Close()

	require.False(t, mb.Send(ctx, envelope[*testMsg, struct{}]{message: &testMsg{value: 2}}))

	var drained []int
	for env := range mb.Drain() {
		drained = append(drained, env.message.value)
	}
	require.Equal(t, []int{1}, drained)
}
