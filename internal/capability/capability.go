// Package capability implements the capability model (spec C12): typed
// resource-access grants and the pattern matchers that decide whether a
// requested resource falls inside a granted capability.
package capability

import (
	"path/filepath"
	"strings"

	"github.com/roasbeef/substrate-rt/internal/topic"
)

// Kind classifies the resource class a Capability grants access to.
type Kind int

const (
	// KindFilesystem grants access to paths matching a glob pattern.
	KindFilesystem Kind = iota

	// KindNetwork grants access to hosts matching a domain suffix
	// (e.g. "*.example.com").
	KindNetwork

	// KindTopic grants publish/subscribe access to topics matching an
	// MQTT-style pattern.
	KindTopic

	// KindStorage grants access to a storage namespace matching a
	// prefix.
	KindStorage
)

// Action is the operation being attempted against a resource.
type Action int

const (
	// ActionRead covers filesystem reads, topic subscribe, storage get.
	ActionRead Action = iota

	// ActionWrite covers filesystem writes, topic publish, storage put.
	ActionWrite

	// ActionExecute covers spawning a subprocess or invoking another
	// component.
	ActionExecute
)

// Capability is one grant: a resource-pattern matcher plus the set of
// Actions it permits.
type Capability struct {
	Kind    Kind
	Pattern string
	Actions map[Action]bool
}

// New creates a Capability granting the given actions over resources
// matching pattern.
func New(kind Kind, pattern string, actions ...Action) Capability {
	set := make(map[Action]bool, len(actions))
	for _, a := range actions {
		set[a] = true
	}

	return Capability{Kind: kind, Pattern: pattern, Actions: set}
}

// Allows reports whether this capability permits action on resource.
func (c Capability) Allows(kind Kind, resource string, action Action) bool {
	if kind != c.Kind || !c.Actions[action] {
		return false
	}

	return matchResource(kind, c.Pattern, resource)
}

func matchResource(kind Kind, pattern, resource string) bool {
	switch kind {
	case KindFilesystem, KindStorage:
		return matchPathPrefixOrGlob(pattern, resource)

	case KindNetwork:
		return matchDomainSuffix(pattern, resource)

	case KindTopic:
		f, err := topic.NewFilter(pattern)
		if err != nil {
			return false
		}
		return f.Matches(resource)

	default:
		return false
	}
}

// matchPathPrefixOrGlob supports both a plain path.Clean'd prefix check
// (the common case, e.g. "/tmp/substrate_components/") and a
// filepath.Match glob (e.g. "/data/*.json"), the same two styles
// checkWritePath and the reviewer's ignore-pattern matching use.
func matchPathPrefixOrGlob(pattern, resource string) bool {
	cleanResource := filepath.Clean(resource)

	if strings.ContainsAny(pattern, "*?[") {
		ok, err := filepath.Match(pattern, cleanResource)
		return err == nil && ok
	}

	cleanPattern := filepath.Clean(pattern)
	return cleanResource == cleanPattern ||
		strings.HasPrefix(cleanResource, cleanPattern+string(filepath.Separator))
}

// matchDomainSuffix matches "*.example.com" against "api.example.com",
// and an exact pattern (no leading "*.") against an exact host.
func matchDomainSuffix(pattern, host string) bool {
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return host == suffix || strings.HasSuffix(host, "."+suffix)
	}

	return pattern == host
}

// Set is an unordered collection of Capabilities granted to one
// component. Allows is true if ANY member capability permits the request
// (capability algebra is additive: union of grants, never intersection).
type Set []Capability

// Allows reports whether any capability in the set permits action on
// resource.
func (s Set) Allows(kind Kind, resource string, action Action) bool {
	for _, c := range s {
		if c.Allows(kind, resource, action) {
			return true
		}
	}

	return false
}
