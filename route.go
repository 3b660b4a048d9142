package pagi

import (
	"regexp"
	"strings"
)

// segmentKind is the kind of a single compiled path segment.
type segmentKind uint8

// Segment kinds.
const (
	segStatic segmentKind = iota
	segParam
	segWildcard
)

// pathSegment is one tokenized piece of a route pattern. Static segments
// compare literally; param segments capture one path component (optionally
// constrained by a regexp); the wildcard segment, only legal as the last
// segment, captures the remainder of the path including slashes.
//
// This realizes spec.md §4.4's "one tokenizer for all forms"
// (`:name`/`{name}`/`{name:pattern}`/`*name`) as a single compiled
// representation, rather than `air`'s separate radix-tree node kinds.
type pathSegment struct {
	kind    segmentKind
	literal string
	name    string
	pattern *regexp.Regexp
}

// route is one registered endpoint: a method set, a compiled pattern, a
// `Handler`, and the middleware chain already folded in by the `Router`/
// `Group` that registered it.
//
// The method is stored as either an explicit set (spec.md §4.4 "List of
// methods: membership") or the wildcard flag (spec.md §4.4 "Wildcard `*`:
// matches any method; wildcard routes never contribute to a 405 `Allow`
// header").
type route struct {
	methods  map[string]bool
	wildcard bool
	pattern  string
	segments []pathSegment
	handler  Handler
	name     string
}

// parseMethods splits a registration method spec ("GET", "GET,POST", or
// "*") into the set/wildcard representation a route stores.
func parseMethods(method string) (methods map[string]bool, wildcard bool) {
	method = strings.TrimSpace(method)
	if method == "*" {
		return nil, true
	}
	methods = map[string]bool{}
	for _, m := range strings.Split(method, ",") {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m != "" {
			methods[m] = true
		}
	}
	return methods, false
}

// matchesMethod reports whether rt accepts method directly (not counting
// the HEAD-falls-back-to-GET rule, which is applied by the Router).
func (rt *route) matchesMethod(method string) bool {
	if rt.wildcard {
		return true
	}
	return rt.methods[method]
}

// compilePattern tokenizes a route pattern into its segments. Supported
// forms per segment: a literal, `:name` or `{name}` (unconstrained
// capture), `{name:regexp}` (constrained capture), and a trailing `*name`
// (greedy wildcard capturing the rest of the path).
func compilePattern(pattern string) ([]pathSegment, error) {
	if pattern == "" || pattern[0] != '/' {
		return nil, newError(KindConfiguration, "route pattern must start with /: "+pattern, nil)
	}

	parts := strings.Split(strings.Trim(pattern, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		return []pathSegment{}, nil
	}

	segments := make([]pathSegment, 0, len(parts))
	for i, p := range parts {
		switch {
		case strings.HasPrefix(p, "*"):
			if i != len(parts)-1 {
				return nil, newError(KindConfiguration, "wildcard segment must be last: "+pattern, nil)
			}
			segments = append(segments, pathSegment{kind: segWildcard, name: p[1:]})
		case strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}"):
			inner := p[1 : len(p)-1]
			name, constraint, hasConstraint := strings.Cut(inner, ":")
			seg := pathSegment{kind: segParam, name: name}
			if hasConstraint {
				re, err := regexp.Compile("^(?:" + constraint + ")$")
				if err != nil {
					return nil, newError(KindConfiguration, "invalid constraint for "+name, err)
				}
				seg.pattern = re
			}
			segments = append(segments, seg)
		case strings.HasPrefix(p, ":"):
			segments = append(segments, pathSegment{kind: segParam, name: p[1:]})
		default:
			segments = append(segments, pathSegment{kind: segStatic, literal: p})
		}
	}
	return segments, nil
}

// match attempts to match path (already split on "/", leading/trailing
// slash trimmed) against the route's compiled segments. On success it
// returns the captured path parameters and true.
func (rt *route) match(parts []string) (map[string]string, bool) {
	params := map[string]string{}

	for i, seg := range rt.segments {
		if seg.kind == segWildcard {
			params[seg.name] = strings.Join(parts[i:], "/")
			return params, true
		}
		if i >= len(parts) {
			return nil, false
		}
		switch seg.kind {
		case segStatic:
			if seg.literal != parts[i] {
				return nil, false
			}
		case segParam:
			if seg.pattern != nil && !seg.pattern.MatchString(parts[i]) {
				return nil, false
			}
			params[seg.name] = parts[i]
		}
	}

	if len(parts) != len(rt.segments) {
		return nil, false
	}
	return params, true
}

// uriFor renders this route's pattern with params substituted in, percent
// escaping each captured value, grounded on `air`'s `uri.go`/`url.go`
// escaping helpers (spec.md §4.4 "named-route reverse generation").
func (rt *route) uriFor(params map[string]string) (string, error) {
	var b strings.Builder
	for _, seg := range rt.segments {
		b.WriteByte('/')
		switch seg.kind {
		case segStatic:
			b.WriteString(seg.literal)
		case segParam, segWildcard:
			v, ok := params[seg.name]
			if !ok {
				return "", newError(KindConfiguration, "missing uri_for parameter: "+seg.name, nil)
			}
			if seg.kind == segWildcard {
				b.WriteString(escapePathSegments(v))
			} else {
				b.WriteString(escapePathSegment(v))
			}
		}
	}
	if b.Len() == 0 {
		return "/", nil
	}
	return b.String(), nil
}

// escapePathSegment percent-escapes a single path segment's reserved bytes.
func escapePathSegment(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreservedPathByte(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0xf])
		}
	}
	return b.String()
}

// escapePathSegments percent-escapes every "/"-separated component of s
// independently, preserving the slashes for a wildcard capture.
func escapePathSegments(s string) string {
	parts := strings.Split(s, "/")
	for i, p := range parts {
		parts[i] = escapePathSegment(p)
	}
	return strings.Join(parts, "/")
}

const hexDigits = "0123456789ABCDEF"

func isUnreservedPathByte(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	}
	return false
}
