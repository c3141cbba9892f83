// Package auth collects Authorizer implementations beyond the
// zero-configuration origodb.AllowAll default. Callers wire one of these
// into an Engine's Config.Authorizer field; the engine itself never imports
// this package, so new implementations can be added here without ever
// touching the root package.
package auth

import "github.com/anthrax3/OrigoDB"

// Static is an Authorizer backed by a fixed allow-list of caller identities
// per Operation.Type. An empty allow-list for a type means every caller is
// denied that type; use "*" in the allow-list to allow every caller.
type Static struct {
	// Rules maps an Operation.Type (the Go type name of a Command or Query)
	// to the set of caller identities permitted to invoke it.
	Rules map[string]map[string]bool
}

// NewStatic builds a Static authorizer from a plain map of type name to
// allowed caller list, the shape callers most naturally write literals in.
func NewStatic(rules map[string][]string) *Static {
	s := &Static{Rules: make(map[string]map[string]bool, len(rules))}
	for typ, callers := range rules {
		set := make(map[string]bool, len(callers))
		for _, c := range callers {
			set[c] = true
		}
		s.Rules[typ] = set
	}
	return s
}

func (s *Static) Allows(op origodb.Operation, caller string) bool {
	callers, ok := s.Rules[op.Type]
	if !ok {
		return false
	}
	return callers["*"] || callers[caller]
}
