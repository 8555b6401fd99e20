// Package route implements path-template parsing and matching for the
// request dispatcher. Patterns are compiled once at registration time and
// are immutable afterwards.
package route

import (
	"fmt"
	"strings"
)

// ParamSigil marks a named parameter segment, e.g. "/todos/:id".
const ParamSigil = ':'

// segmentKind distinguishes literal path segments from named parameters.
type segmentKind int

const (
	segmentLiteral segmentKind = iota
	segmentParam
)

type segment struct {
	kind  segmentKind
	value string // literal text, or parameter name
}

// Pattern is a compiled path template. Create with Parse; immutable
// afterwards, safe for concurrent Match calls.
type Pattern struct {
	raw        string
	segments   []segment
	paramNames []string
}

// ParseError reports a malformed pattern at registration time.
type ParseError struct {
	Pattern string
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid route pattern %q: %s", e.Pattern, e.Reason)
}

// Parse compiles a path template. Segments are split on "/"; a segment
// beginning with the parameter sigil captures the corresponding path
// segment under its name. A parameter with an empty name (a bare ":") is
// rejected here, never at match time.
func Parse(pattern string) (*Pattern, error) {
	if pattern == "" || pattern[0] != '/' {
		return nil, &ParseError{Pattern: pattern, Reason: "must begin with /"}
	}

	p := &Pattern{raw: pattern}
	for _, part := range strings.Split(pattern, "/") {
		if part == "" {
			continue
		}
		if part[0] == ParamSigil {
			name := part[1:]
			if name == "" {
				return nil, &ParseError{Pattern: pattern, Reason: "parameter segment with empty name"}
			}
			p.segments = append(p.segments, segment{kind: segmentParam, value: name})
			p.paramNames = append(p.paramNames, name)
			continue
		}
		p.segments = append(p.segments, segment{kind: segmentLiteral, value: part})
	}
	return p, nil
}

// String returns the original template text.
func (p *Pattern) String() string { return p.raw }

// ParamNames returns the declared parameter names in order. Duplicates are
// retained; Match keeps the last captured value for a repeated name.
func (p *Pattern) ParamNames() []string { return p.paramNames }

// Match walks the candidate path against the compiled segments in
// lock-step. Arity is exact: differing segment counts or any literal
// mismatch fails the match. On success the returned map holds every
// captured parameter; it is nil (not empty) on failure.
func (p *Pattern) Match(path string) (map[string]string, bool) {
	parts := splitPath(path)
	if len(parts) != len(p.segments) {
		return nil, false
	}

	var params map[string]string
	for i, seg := range p.segments {
		switch seg.kind {
		case segmentLiteral:
			if parts[i] != seg.value {
				return nil, false
			}
		case segmentParam:
			if params == nil {
				params = make(map[string]string, len(p.paramNames))
			}
			params[seg.value] = parts[i]
		}
	}
	if params == nil {
		params = map[string]string{}
	}
	return params, true
}

// splitPath splits on "/" dropping empty segments, so "/a//b/" and "/a/b"
// are equivalent, mirroring how patterns are compiled.
func splitPath(path string) []string {
	raw := strings.Split(path, "/")
	parts := raw[:0]
	for _, s := range raw {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}
