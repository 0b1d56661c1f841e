package registry

import (
	"context"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"

	"github.com/roasbeef/substrate-rt/internal/actorcore"
)

type pingMsg struct{ actorcore.BaseMessage }

func (pingMsg) MessageType() string { return "ping" }

type echoBehavior struct{}

func (echoBehavior) Receive(_ context.Context, _ pingMsg) fn.Result[string] {
	return fn.Ok("pong")
}

func TestRegisterResolveTypeMismatch(t *testing.T) {
	t.Parallel()

	reg := New()
	key := NewServiceKey[pingMsg, string]("echo")

	sys := actorcore.NewSystem(actorcore.DefaultSystemConfig())
	ref := actorcore.Spawn[pingMsg, string](sys, "/echo/1", echoBehavior{})

	require.NoError(t, Register(reg, key, ref))
	require.Len(t, Resolve(reg, key), 1)

	badKey := NewServiceKey[pingMsg, int]("echo")
	badRef := actorcore.Spawn[pingMsg, int](sys, "/echo/2",
		actorcore.FunctionBehavior[pingMsg, int](
			func(_ context.Context, _ pingMsg) fn.Result[int] {
				return fn.Ok(0)
			}))
	err := Register(reg, badKey, badRef)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestPoolMemberRoundRobin(t *testing.T) {
	t.Parallel()

	reg := New()
	key := NewServiceKey[pingMsg, string]("pool")
	sys := actorcore.NewSystem(actorcore.DefaultSystemConfig())

	for i := 0; i < 3; i++ {
		ref := actorcore.Spawn[pingMsg, string](sys, "/pool/worker", echoBehavior{})
		require.NoError(t, Register(reg, key, ref))
	}

	seen := make(map[actorcore.ActorID]bool)
	for i := 0; i < 3; i++ {
		m, err := PoolMember(reg, key, RoundRobin)
		require.NoError(t, err)
		seen[m.ID()] = true
	}
	require.Len(t, seen, 3, "round robin should visit every member once per cycle")
}

func TestPoolMemberEmptyReturnsNotFound(t *testing.T) {
	t.Parallel()

	reg := New()
	key := NewServiceKey[pingMsg, string]("empty-pool")

	_, err := PoolMember(reg, key, RoundRobin)
	require.ErrorIs(t, err, ErrNotFound)
}
