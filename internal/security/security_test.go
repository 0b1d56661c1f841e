package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/substrate-rt/internal/capability"
)

func TestGuardAllowsGrantedAction(t *testing.T) {
	t.Parallel()

	g := NewGuard("writer", capability.Set{
		capability.New(capability.KindFilesystem, "/tmp/substrate_components/", capability.ActionWrite),
	})

	require.NoError(t, g.Check(
		capability.KindFilesystem, "/tmp/substrate_components/out.txt", capability.ActionWrite,
	))
}

func TestGuardDeniesUngrantedAction(t *testing.T) {
	t.Parallel()

	g := NewGuard("writer", capability.Set{
		capability.New(capability.KindFilesystem, "/tmp/substrate_components/", capability.ActionWrite),
	})

	err := g.Check(capability.KindFilesystem, "/etc/passwd", capability.ActionWrite)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCapabilityDenied)

	var denied *CapabilityDeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, "writer", denied.Component)
	require.Equal(t, "/etc/passwd", denied.Resource)
}

func TestNilGuardDeniesEverything(t *testing.T) {
	t.Parallel()

	var g *Guard
	err := g.Check(capability.KindTopic, "events.alpha", capability.ActionRead)
	require.ErrorIs(t, err, ErrCapabilityDenied)
}

func TestCheckContextUsesInstalledGuard(t *testing.T) {
	t.Parallel()

	g := NewGuard("reader", capability.Set{
		capability.New(capability.KindTopic, "events.*", capability.ActionRead),
	})
	ctx := WithGuard(context.Background(), g)

	require.NoError(t, CheckContext(ctx, capability.KindTopic, "events.alpha", capability.ActionRead))
	require.Error(t, CheckContext(ctx, capability.KindTopic, "events.alpha.beta", capability.ActionRead))
}

func TestCheckContextWithNoGuardInstalledIsDenied(t *testing.T) {
	t.Parallel()

	err := CheckContext(context.Background(), capability.KindStorage, "ns/key", capability.ActionRead)
	require.ErrorIs(t, err, ErrCapabilityDenied)
}

// TestGuardPropagatesThroughDerivedContext confirms the guard survives the
// same kind of suspension point an actor's merged lifecycle/call context
// introduces: deriving further contexts (timeouts, cancellation) from a
// guarded context must not lose the guard.
func TestGuardPropagatesThroughDerivedContext(t *testing.T) {
	t.Parallel()

	g := NewGuard("writer", capability.Set{
		capability.New(capability.KindFilesystem, "/tmp/x/", capability.ActionWrite),
	})
	ctx := WithGuard(context.Background(), g)

	child, cancel := context.WithCancel(ctx)
	defer cancel()

	require.NoError(t, CheckContext(
		child, capability.KindFilesystem, "/tmp/x/f", capability.ActionWrite,
	))
}
