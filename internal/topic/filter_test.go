package topic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterMatches(t *testing.T) {
	t.Parallel()

	cases := []struct {
		pattern string
		topic   string
		match   bool
	}{
		{"plugins.alpha.events", "plugins.alpha.events", true},
		{"plugins.*.events", "plugins.alpha.events", true},
		{"plugins.*.events", "plugins.alpha.beta.events", false},
		{"plugins.#", "plugins.alpha", true},
		{"plugins.#", "plugins.alpha.beta.events", true},
		{"plugins.#", "plugins", true},
		{"plugins.*", "plugins.alpha.beta", false},
		{"a.b.c", "a.b", false},
	}

	for _, tc := range cases {
		f, err := NewFilter(tc.pattern)
		require.NoError(t, err)
		require.Equal(t, tc.match, f.Matches(tc.topic),
			"pattern=%q topic=%q", tc.pattern, tc.topic)
	}
}

func TestNewFilterRejectsInvalid(t *testing.T) {
	t.Parallel()

	for _, pattern := range []string{"", "a..b", "a.#.b", ".a"} {
		_, err := NewFilter(pattern)
		require.ErrorIs(t, err, ErrInvalidFilter, "pattern=%q", pattern)
	}
}
