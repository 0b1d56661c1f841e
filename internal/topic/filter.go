// Package topic implements MQTT-style topic filters and the subscriber
// manager used by the message broker (spec components C7, C8) to route
// published messages to every subscription whose filter matches.
package topic

import (
	"fmt"
	"strings"
)

// Separator divides a topic into hierarchical segments, e.g.
// "plugins.alpha.events".
const Separator = "."

// singleWildcard matches exactly one segment, e.g. "plugins.*.events"
// matches "plugins.alpha.events" but not "plugins.alpha.beta.events".
const singleWildcard = "*"

// multiWildcard matches zero or more trailing segments and is only valid
// as the final segment of a filter, e.g. "plugins.#" matches
// "plugins.alpha" and "plugins.alpha.events", and even the bare topic
// "plugins" ("#" may consume zero segments).
const multiWildcard = "#"

// ErrInvalidFilter is returned when a filter string violates the
// wildcard-placement rules (e.g. "#" not in final position, or empty
// segments from ".." or a trailing ".").
var ErrInvalidFilter = fmt.Errorf("topic: invalid filter")

// Filter is a parsed, validated topic filter pattern.
type Filter struct {
	raw      string
	segments []string
}

// NewFilter parses and validates pattern, rejecting "#" anywhere but the
// last segment and rejecting empty segments.
func NewFilter(pattern string) (Filter, error) {
	if pattern == "" {
		return Filter{}, fmt.Errorf("%w: empty pattern", ErrInvalidFilter)
	}

	segments := strings.Split(pattern, Separator)
	for i, seg := range segments {
		if seg == "" {
			return Filter{}, fmt.Errorf(
				"%w: empty segment in %q", ErrInvalidFilter, pattern,
			)
		}
		if seg == multiWildcard && i != len(segments)-1 {
			return Filter{}, fmt.Errorf(
				"%w: %q must be the final segment in %q",
				ErrInvalidFilter, multiWildcard, pattern,
			)
		}
	}

	return Filter{raw: pattern, segments: segments}, nil
}

// String returns the original pattern text.
func (f Filter) String() string { return f.raw }

// Matches reports whether topic satisfies this filter.
func (f Filter) Matches(topic string) bool {
	topicSegs := strings.Split(topic, Separator)

	return matchSegments(f.segments, topicSegs)
}

func matchSegments(filter, topic []string) bool {
	for i, fseg := range filter {
		if fseg == multiWildcard {
			// "#" consumes everything remaining, including a zero-
			// length remainder.
			return true
		}

		if i >= len(topic) {
			return false
		}

		if fseg != singleWildcard && fseg != topic[i] {
			return false
		}
	}

	// Filter exhausted without a "#": topic must be exactly as long.
	return len(filter) == len(topic)
}
