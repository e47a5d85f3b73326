// Package policy provides the capability deny-list consulted by the
// sandbox interceptor before every dangerous runtime operation.
package policy

import (
	"fmt"
	"sort"
	"strings"
)

// Capability names a blockable runtime capability: a module name
// ("child_process"), a builtin function ("eval"), or a dotted member of an
// otherwise-importable module ("os.kill").
type Capability string

// Module returns the module part of a dotted member capability, or the
// capability itself when it has no member part.
func (c Capability) Module() string {
	s := string(c)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

// Member returns the member part of a dotted capability, or "".
func (c Capability) Member() string {
	s := string(c)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return ""
}

// Tier is the granularity at which a capability is blocked.
type Tier int

const (
	// TierAllowed means the capability is not on the deny-list. Unknown
	// names resolve here: the posture is deny-list, allow by default.
	TierAllowed Tier = iota

	// TierHardDenied blocks an entire module: importing it always fails.
	TierHardDenied

	// TierFunctionDenied replaces a specific builtin with a failing stub.
	TierFunctionDenied

	// TierSelectiveDenied stubs individual members of a module that stays
	// importable.
	TierSelectiveDenied
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierAllowed:
		return "allowed"
	case TierHardDenied:
		return "hard-denied"
	case TierFunctionDenied:
		return "function-denied"
	case TierSelectiveDenied:
		return "selectively-denied"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Policy is the static capability deny-list. It is constructed once at
// process entry, validated, and passed down explicitly; it is never mutated
// afterwards. Lookup is a pure function and must be consulted at every
// access point, not cached as a one-time gate, because the runtime permits
// re-binding names after interception is installed.
type Policy struct {
	hardDenied     map[Capability]bool
	functionDenied map[Capability]bool
	// selectiveDenied maps module name to the set of denied member names.
	selectiveDenied map[string]map[string]bool
}

// New builds a Policy from the three tiers. Callers should Validate the
// result before use.
func New(hard, function, selective []Capability) *Policy {
	p := &Policy{
		hardDenied:      make(map[Capability]bool, len(hard)),
		functionDenied:  make(map[Capability]bool, len(function)),
		selectiveDenied: make(map[string]map[string]bool),
	}
	for _, c := range hard {
		p.hardDenied[c] = true
	}
	for _, c := range function {
		p.functionDenied[c] = true
	}
	for _, c := range selective {
		mod, member := c.Module(), c.Member()
		if p.selectiveDenied[mod] == nil {
			p.selectiveDenied[mod] = make(map[string]bool)
		}
		if member != "" {
			p.selectiveDenied[mod][member] = true
		}
	}
	return p
}

// Lookup returns the denial tier for the given capability name. Unknown
// names are allowed by default.
func (p *Policy) Lookup(name Capability) Tier {
	if p.hardDenied[name] {
		return TierHardDenied
	}
	if p.functionDenied[name] {
		return TierFunctionDenied
	}
	if members, ok := p.selectiveDenied[name.Module()]; ok {
		if member := name.Member(); member != "" && members[member] {
			return TierSelectiveDenied
		}
	}
	return TierAllowed
}

// Denies reports whether the capability falls in any denial tier.
func (p *Policy) Denies(name Capability) bool {
	return p.Lookup(name) != TierAllowed
}

// DeniedMembers returns the sorted member names selectively denied on the
// given module, or nil when the module has no selective entries.
func (p *Policy) DeniedMembers(module string) []string {
	members := p.selectiveDenied[module]
	if len(members) == 0 {
		return nil
	}
	out := make([]string, 0, len(members))
	for m := range members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Tighten returns a new Policy with additional denials merged in. Denials
// are only ever added, never removed; a merge that lands a capability in a
// second tier is caught by Validate on the result.
func (p *Policy) Tighten(hard, function, selective []Capability) *Policy {
	var h, f, s []Capability
	for c := range p.hardDenied {
		h = append(h, c)
	}
	for c := range p.functionDenied {
		f = append(f, c)
	}
	for mod, members := range p.selectiveDenied {
		for m := range members {
			s = append(s, Capability(mod+"."+m))
		}
	}
	return New(append(h, hard...), append(f, function...), append(s, selective...))
}

// Validate checks the tier invariants: a capability appears in exactly one
// tier, and selectively-denied members belong to a module that is not
// hard-denied. A module hard-denied in one place and selectively stubbed in
// another is a configuration drift, not a tightening, and is rejected.
func (p *Policy) Validate() error {
	for c := range p.hardDenied {
		if p.functionDenied[c] {
			return fmt.Errorf("policy: %q is both hard-denied and function-denied", c)
		}
	}
	for mod := range p.selectiveDenied {
		if p.hardDenied[Capability(mod)] {
			return fmt.Errorf("policy: module %q is hard-denied but has selectively-denied members", mod)
		}
		if p.functionDenied[Capability(mod)] {
			return fmt.Errorf("policy: module %q is function-denied but has selectively-denied members", mod)
		}
	}
	return nil
}
