// Package storage implements the component-facing StorageBackend
// capability (spec C18): a namespaced key-value space with get/set/
// delete/list-keys operations. The runtime scopes every component to its
// own namespace ("component:<id>"); the backend itself is namespace-blind
// and simply stores whatever (namespace, key) pair it is given.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/roasbeef/substrate-rt/internal/actorcore"
)

// ErrKeyNotFound is returned by Get when no value exists under the given
// namespace and key.
var ErrKeyNotFound = errors.New("storage: key not found")

// ErrNamespaceRequired is returned when an operation is attempted with an
// empty namespace. A backend must never silently fall back to a global
// namespace.
var ErrNamespaceRequired = errors.New("storage: namespace required")

// Backend is the StorageBackend capability the core consumes: an async
// get/set/delete/list-keys space over (namespace, key) -> value. All
// methods are safe for concurrent use.
type Backend interface {
	// Get returns the value stored under (namespace, key), or
	// ErrKeyNotFound if no such entry exists.
	Get(ctx context.Context, namespace, key string) ([]byte, error)

	// Set stores value under (namespace, key), overwriting any existing
	// entry.
	Set(ctx context.Context, namespace, key string, value []byte) error

	// Delete removes (namespace, key). Deleting a key that does not
	// exist is not an error.
	Delete(ctx context.Context, namespace, key string) error

	// ListKeys returns every key currently stored under namespace, in
	// no particular order.
	ListKeys(ctx context.Context, namespace string) ([]string, error)

	// Close releases any resources (connections, file handles) held by
	// the backend.
	Close() error
}

// ComponentNamespace returns the namespace the runtime scopes id to. This
// is the only namespace a ComponentActor is permitted to address;
// internal/security's KindStorage capability check runs against this
// string, never against a caller-supplied namespace.
func ComponentNamespace(id actorcore.ComponentID) string {
	return fmt.Sprintf("component:%s", id.String())
}
