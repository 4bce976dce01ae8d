// Package scope implements OAuth2 scope-set operations. Scopes travel as
// space delimited strings on the wire and as ordered, de-duplicated slices
// internally. Set operations never care about ordering.
package scope

import "strings"

// Parse splits a space delimited scope string into a de-duplicated slice,
// preserving first-seen order.
func Parse(raw string) []string {
	return Normalize(strings.Fields(raw))
}

// Format joins scopes into the wire representation.
func Format(scopes []string) string {
	return strings.Join(Normalize(scopes), " ")
}

// Normalize trims entries, drops blanks and removes duplicates.
func Normalize(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Contains reports whether target is in scopes.
func Contains(scopes []string, target string) bool {
	for _, s := range scopes {
		if s == target {
			return true
		}
	}
	return false
}

// Subset reports whether every requested scope is present in granted. An
// empty request is always covered.
func Subset(requested, granted []string) bool {
	set := toSet(granted)
	for _, s := range Normalize(requested) {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

// Intersect returns the requested scopes that are also allowed, in request
// order.
func Intersect(requested, allowed []string) []string {
	set := toSet(allowed)
	out := make([]string, 0, len(requested))
	for _, s := range Normalize(requested) {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Union returns a followed by the scopes of b not already in a.
func Union(a, b []string) []string {
	combined := make([]string, 0, len(a)+len(b))
	combined = append(combined, a...)
	combined = append(combined, b...)
	return Normalize(combined)
}

func toSet(scopes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		set[strings.TrimSpace(s)] = struct{}{}
	}
	return set
}
