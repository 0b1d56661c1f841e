package rterrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/substrate-rt/internal/capability"
	"github.com/roasbeef/substrate-rt/internal/security"
)

func TestTaxonomyErrorWrapsAndUnwraps(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: connection refused")
	err := New(Dependency, "broker.Publish", cause)

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "broker.Publish")
	require.Contains(t, err.Error(), "dependency")
}

func TestRetryableOnlyForNonFatalAndTimeout(t *testing.T) {
	t.Parallel()

	cases := []struct {
		category  Category
		retryable bool
	}{
		{Fatal, false},
		{NonFatal, true},
		{SecurityViolation, false},
		{Timeout, true},
		{Configuration, false},
		{Dependency, false},
	}

	for _, tc := range cases {
		err := New(tc.category, "op", errors.New("boom"))
		require.Equal(t, tc.retryable, err.Retryable(), "category %s", tc.category)
	}
}

func TestCategoryOfDefaultsToFatalForPlainErrors(t *testing.T) {
	t.Parallel()

	require.Equal(t, Fatal, CategoryOf(errors.New("unadorned")))
}

func TestCategoryOfRecognizesCapabilityDenial(t *testing.T) {
	t.Parallel()

	guard := security.NewGuard("writer", nil)
	err := guard.Check(capability.KindFilesystem, "/etc/passwd", capability.ActionWrite)
	require.Error(t, err)

	require.Equal(t, SecurityViolation, CategoryOf(err))
	require.True(t, IsSecurityViolation(err))
}

func TestCategoryOfPassesThroughTaxonomyErrorCategory(t *testing.T) {
	t.Parallel()

	err := New(Timeout, "engine.Execute", errors.New("deadline exceeded"))
	require.Equal(t, Timeout, CategoryOf(err))
}
