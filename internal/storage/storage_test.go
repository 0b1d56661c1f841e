package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/substrate-rt/internal/actorcore"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	sqliteBackend, err := NewSqliteBackend(SqliteConfig{
		DatabaseFileName: filepath.Join(t.TempDir(), "kv.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { sqliteBackend.Close() })

	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"sqlite": sqliteBackend,
	}
}

func TestBackendGetMissingKeyReturnsErrKeyNotFound(t *testing.T) {
	t.Parallel()

	for name, b := range backends(t) {
		b := b
		t.Run(name, func(t *testing.T) {
			_, err := b.Get(context.Background(), "component:x", "missing")
			require.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func TestBackendSetThenGetRoundTrips(t *testing.T) {
	t.Parallel()

	for name, b := range backends(t) {
		b := b
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ns := "component:calc"

			require.NoError(t, b.Set(ctx, ns, "counter", []byte("1")))

			got, err := b.Get(ctx, ns, "counter")
			require.NoError(t, err)
			require.Equal(t, []byte("1"), got)

			require.NoError(t, b.Set(ctx, ns, "counter", []byte("2")))
			got, err = b.Get(ctx, ns, "counter")
			require.NoError(t, err)
			require.Equal(t, []byte("2"), got)
		})
	}
}

func TestBackendDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	for name, b := range backends(t) {
		b := b
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ns := "component:calc"

			require.NoError(t, b.Set(ctx, ns, "k", []byte("v")))
			require.NoError(t, b.Delete(ctx, ns, "k"))
			require.NoError(t, b.Delete(ctx, ns, "k"))

			_, err := b.Get(ctx, ns, "k")
			require.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func TestBackendListKeysOnlyReturnsOwnNamespace(t *testing.T) {
	t.Parallel()

	for name, b := range backends(t) {
		b := b
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, b.Set(ctx, "component:a", "k1", []byte("1")))
			require.NoError(t, b.Set(ctx, "component:a", "k2", []byte("2")))
			require.NoError(t, b.Set(ctx, "component:b", "k3", []byte("3")))

			keys, err := b.ListKeys(ctx, "component:a")
			require.NoError(t, err)
			require.ElementsMatch(t, []string{"k1", "k2"}, keys)
		})
	}
}

func TestBackendRejectsEmptyNamespace(t *testing.T) {
	t.Parallel()

	for name, b := range backends(t) {
		b := b
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.ErrorIs(t, b.Set(ctx, "", "k", []byte("v")), ErrNamespaceRequired)

			_, err := b.Get(ctx, "", "k")
			require.ErrorIs(t, err, ErrNamespaceRequired)

			_, err = b.ListKeys(ctx, "")
			require.ErrorIs(t, err, ErrNamespaceRequired)
		})
	}
}

func TestSqliteBackendPersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "kv.db")
	ctx := context.Background()

	first, err := NewSqliteBackend(SqliteConfig{DatabaseFileName: dbPath})
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "component:calc", "k", []byte("persisted")))
	require.NoError(t, first.Close())

	second, err := NewSqliteBackend(SqliteConfig{DatabaseFileName: dbPath})
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Get(ctx, "component:calc", "k")
	require.NoError(t, err)
	require.Equal(t, []byte("persisted"), got)
}

func TestComponentNamespaceIncludesComponentID(t *testing.T) {
	t.Parallel()

	require.Equal(t, "component:calc", ComponentNamespace(actorcore.NewComponentID("calc")))
}
