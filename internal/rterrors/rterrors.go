// Package rterrors implements the runtime's shared structured error
// taxonomy (spec §4.8, §7): a small set of error kinds every subsystem —
// mailbox, supervision, execution, security, middleware — categorizes
// its failures into, so callers can make one retry/escalate decision
// regardless of which subsystem raised the error.
package rterrors

import (
	"errors"
	"fmt"

	"github.com/roasbeef/substrate-rt/internal/security"
)

// Category classifies a TaxonomyError for retry and propagation
// decisions.
type Category int

const (
	// Fatal errors never retry and always stop the pipeline or actor.
	Fatal Category = iota

	// NonFatal errors may be retried per the caller's configured retry
	// policy.
	NonFatal

	// SecurityViolation is a capability or policy denial. Always fatal
	// to the current operation; never retried by middleware.
	SecurityViolation

	// Timeout reports a deadline exceeded. Retryable, like NonFatal.
	Timeout

	// Configuration reports a static misconfiguration (bad manifest,
	// missing wiring). Retrying without a config change cannot help.
	Configuration

	// Dependency reports an external collaborator's failure (storage
	// backend, broker bus, runtime engine).
	Dependency
)

// String implements fmt.Stringer.
func (c Category) String() string {
	switch c {
	case Fatal:
		return "fatal"
	case NonFatal:
		return "non-fatal"
	case SecurityViolation:
		return "security-violation"
	case Timeout:
		return "timeout"
	case Configuration:
		return "configuration"
	case Dependency:
		return "dependency"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// TaxonomyError wraps an underlying error with the Category and
// operation name it was raised under.
type TaxonomyError struct {
	Category Category
	Op       string
	Err      error
}

// New constructs a TaxonomyError.
func New(category Category, op string, err error) *TaxonomyError {
	return &TaxonomyError{Category: category, Op: op, Err: err}
}

// Error implements error.
func (e *TaxonomyError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Category, e.Err)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *TaxonomyError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a caller's retry policy may attempt this
// error again. SecurityViolation, Fatal, and Configuration are never
// retryable; NonFatal and Timeout are, leaving the decision of how many
// attempts and what delay to the caller's retry policy. Dependency
// failures are not retried automatically — callers that know their
// dependency is transient should wrap it as NonFatal instead.
func (e *TaxonomyError) Retryable() bool {
	switch e.Category {
	case NonFatal, Timeout:
		return true
	default:
		return false
	}
}

// CategoryOf returns the Category of err if it is (or wraps) a
// TaxonomyError, SecurityViolation if it is (or wraps) a capability
// denial raised outside the middleware pipeline (internal/security
// doesn't depend on this package, so its errors arrive uncategorized),
// and Fatal otherwise — an uncategorized error is treated as the most
// conservative category rather than silently retried.
func CategoryOf(err error) Category {
	var te *TaxonomyError
	if errors.As(err, &te) {
		return te.Category
	}

	if errors.Is(err, security.ErrCapabilityDenied) {
		return SecurityViolation
	}

	return Fatal
}

// IsSecurityViolation reports whether err is categorized
// SecurityViolation.
func IsSecurityViolation(err error) bool {
	return CategoryOf(err) == SecurityViolation
}
