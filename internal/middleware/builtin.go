package middleware

import (
	"context"
	"errors"

	"github.com/roasbeef/substrate-rt/internal/rterrors"
	"github.com/roasbeef/substrate-rt/internal/security"
)

// base provides the Name/Enabled/Priority bookkeeping every concrete
// Middleware in this file shares, so each one only needs to implement
// the hooks it actually cares about.
type base struct {
	name     string
	priority int
	enabled  bool
}

func (b *base) Name() string { return b.name }
func (b *base) Priority() int { return b.priority }
func (b *base) Enabled() bool { return b.enabled }

// SetEnabled flips this middleware on or off without removing it from
// the pipeline, per spec's "can be disabled".
func (b *base) SetEnabled(v bool) { b.enabled = v }

// SecurityMiddleware re-checks an Operation's capability requirement
// before exec runs, using whatever Guard security.WithGuard installed in
// ctx. It exists so callers that build Operations directly (rather than
// going through component.Actor's inline checks) still get the
// capability-gate contract for free by installing this middleware at a
// low priority number.
type SecurityMiddleware struct {
	*base
	NoopMiddleware
}

// NewSecurityMiddleware constructs a SecurityMiddleware at the given
// priority, enabled by default.
func NewSecurityMiddleware(priority int) *SecurityMiddleware {
	return &SecurityMiddleware{
		base: &base{name: "security", priority: priority, enabled: true},
	}
}

// BeforeExecution denies the operation outright if the context's Guard
// doesn't permit op.Action on op.Resource.
func (m *SecurityMiddleware) BeforeExecution(ctx context.Context, op Operation) error {
	return security.CheckContext(ctx, op.Kind, op.Resource, op.Action)
}

// HandleError reclassifies a capability denial as a SecurityViolation so
// Execute's retry loop never retries it, regardless of what category the
// underlying error would otherwise fall back to.
func (m *SecurityMiddleware) HandleError(_ context.Context, op Operation, err error) error {
	if err == nil {
		return nil
	}

	if rterrors.IsSecurityViolation(err) {
		return err
	}

	var denied *security.CapabilityDeniedError
	if errors.As(err, &denied) {
		return rterrors.New(rterrors.SecurityViolation, op.Name, err)
	}

	return err
}

// LoggingMiddleware emits a debug log line around every operation; it
// never vetoes or reclassifies anything, matching the teacher's pattern
// of keeping observability middleware side-effect-only.
type LoggingMiddleware struct {
	*base
	NoopMiddleware
}

// NewLoggingMiddleware constructs a LoggingMiddleware at the given
// priority, enabled by default.
func NewLoggingMiddleware(priority int) *LoggingMiddleware {
	return &LoggingMiddleware{
		base: &base{name: "logging", priority: priority, enabled: true},
	}
}

// BeforeExecution logs that op is about to run.
func (m *LoggingMiddleware) BeforeExecution(ctx context.Context, op Operation) error {
	log.DebugS(ctx, "middleware: executing operation", "operation", op.Name, "resource", op.Resource)
	return nil
}

// AfterExecution logs op's outcome.
func (m *LoggingMiddleware) AfterExecution(ctx context.Context, op Operation, err error) {
	if err != nil {
		log.DebugS(ctx, "middleware: operation failed", "operation", op.Name, "err", err)
		return
	}
	log.DebugS(ctx, "middleware: operation succeeded", "operation", op.Name)
}
