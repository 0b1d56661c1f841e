// Package security implements capability enforcement (spec C13): a guard
// carried in context.Context (task-local, surviving await points, unlike
// a goroutine-local store) that checks a component's storage accesses and
// the inter-component payloads it receives against its granted
// capability.Set before they proceed.
package security

import (
	"context"
	"fmt"

	"github.com/roasbeef/substrate-rt/internal/capability"
)

// ErrCapabilityDenied is wrapped by CapabilityDeniedError; present so
// callers can errors.Is against the general case without unpacking the
// structured fields.
var ErrCapabilityDenied = fmt.Errorf("security: capability denied")

// CapabilityDeniedError carries the specifics of a denied request for
// logging and for tests asserting on what, specifically, was denied.
type CapabilityDeniedError struct {
	Component string
	Kind      capability.Kind
	Resource  string
	Action    capability.Action
}

// Error implements error.
func (e *CapabilityDeniedError) Error() string {
	return fmt.Sprintf(
		"%s: component %q denied %v on resource %q",
		ErrCapabilityDenied, e.Component, e.Action, e.Resource,
	)
}

// Unwrap enables errors.Is(err, ErrCapabilityDenied).
func (e *CapabilityDeniedError) Unwrap() error {
	return ErrCapabilityDenied
}

// Guard is a component's security context: its identity and the
// capability set it was granted at spawn time. Guards are immutable once
// created; component.Actor builds its Guard once, when it is constructed,
// and no code path revokes or replaces a component's grants afterwards.
type Guard struct {
	Component string
	Grants    capability.Set
}

// NewGuard creates a Guard for componentName with the given grants.
func NewGuard(componentName string, grants capability.Set) *Guard {
	return &Guard{Component: componentName, Grants: grants}
}

// Check returns a CapabilityDeniedError if g does not permit action on
// resource, nil otherwise.
func (g *Guard) Check(kind capability.Kind, resource string, action capability.Action) error {
	if g == nil {
		return &CapabilityDeniedError{Component: "<none>", Kind: kind, Resource: resource, Action: action}
	}

	if g.Grants.Allows(kind, resource, action) {
		return nil
	}

	return &CapabilityDeniedError{
		Component: g.Component, Kind: kind, Resource: resource, Action: action,
	}
}

type guardContextKey struct{}

// WithGuard returns a child context carrying g. Because context.Context
// values propagate across goroutine boundaries started from ctx (and
// across the suspension points actorcore's merged contexts introduce),
// this is the task-local equivalent the Design Notes call for: the guard
// follows a single dispatch's logical flow, not the OS thread or
// goroutine that happens to execute it at any given instant.
func WithGuard(ctx context.Context, g *Guard) context.Context {
	return context.WithValue(ctx, guardContextKey{}, g)
}

// GuardFromContext extracts the Guard installed by WithGuard, or nil if
// none is present (callers must treat a nil Guard as "no access" via
// Guard.Check's nil receiver handling, never as "unrestricted").
func GuardFromContext(ctx context.Context) *Guard {
	g, _ := ctx.Value(guardContextKey{}).(*Guard)
	return g
}

// CheckContext checks the requested access against the Guard carried in
// ctx. Its callers are component.Actor's storage and inter-component
// handlers and middleware.SecurityMiddleware; mailbox sends (including
// Messenger.Send/Request) and registry lookups do not call it.
func CheckContext(
	ctx context.Context, kind capability.Kind, resource string, action capability.Action,
) error {
	return GuardFromContext(ctx).Check(kind, resource, action)
}
