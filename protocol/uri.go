package protocol

import (
	"fmt"
	"strings"

	"github.com/hupe1980/echomesh/core"
)

// URIPattern is a parsed resource pattern of the form
// "<layer>://segment/{param}/...". Literal segments match exactly;
// brace-wrapped segments capture the corresponding path segment. Nesting
// depth is unbounded; segments are separated by "/".
type URIPattern struct {
	Scheme   core.Layer
	Segments []patternSegment
}

type patternSegment struct {
	literal string
	param   string // non-empty for {param} segments
}

// ParseURIPattern parses a pattern string. It fails on an empty path, an
// unknown separator or malformed braces.
func ParseURIPattern(pattern string) (URIPattern, error) {
	scheme, path, ok := splitScheme(pattern)
	if !ok {
		return URIPattern{}, fmt.Errorf("pattern %q: missing scheme separator", pattern)
	}
	if path == "" {
		return URIPattern{}, fmt.Errorf("pattern %q: empty path", pattern)
	}

	parts := strings.Split(path, "/")
	segments := make([]patternSegment, 0, len(parts))
	for _, part := range parts {
		switch {
		case part == "":
			return URIPattern{}, fmt.Errorf("pattern %q: empty path segment", pattern)
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
			name := part[1 : len(part)-1]
			if name == "" {
				return URIPattern{}, fmt.Errorf("pattern %q: empty parameter name", pattern)
			}
			segments = append(segments, patternSegment{param: name})
		case strings.ContainsAny(part, "{}"):
			return URIPattern{}, fmt.Errorf("pattern %q: malformed braces in segment %q", pattern, part)
		default:
			segments = append(segments, patternSegment{literal: part})
		}
	}

	return URIPattern{Scheme: core.Layer(scheme), Segments: segments}, nil
}

// MustParseURIPattern is ParseURIPattern for statically known patterns;
// it panics on error.
func MustParseURIPattern(pattern string) URIPattern {
	p, err := ParseURIPattern(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// IsStatic reports whether the pattern contains no parameters.
func (p URIPattern) IsStatic() bool {
	for _, s := range p.Segments {
		if s.param != "" {
			return false
		}
	}
	return true
}

// String reassembles the canonical pattern form.
func (p URIPattern) String() string {
	parts := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		if s.param != "" {
			parts[i] = "{" + s.param + "}"
		} else {
			parts[i] = s.literal
		}
	}
	return p.Scheme.Scheme() + strings.Join(parts, "/")
}

// Match attempts to match a concrete URI against the pattern, returning the
// captured parameters. A scheme mismatch or a path shape mismatch returns
// false.
func (p URIPattern) Match(uri string) (map[string]string, bool) {
	scheme, path, ok := splitScheme(uri)
	if !ok || core.Layer(scheme) != p.Scheme {
		return nil, false
	}

	parts := strings.Split(path, "/")
	if len(parts) != len(p.Segments) {
		return nil, false
	}

	var params map[string]string
	for i, seg := range p.Segments {
		if seg.param != "" {
			if parts[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string, 1)
			}
			params[seg.param] = parts[i]
			continue
		}
		if parts[i] != seg.literal {
			return nil, false
		}
	}
	return params, true
}

func splitScheme(uri string) (scheme, path string, ok bool) {
	idx := strings.Index(uri, "://")
	if idx <= 0 {
		return "", "", false
	}
	return uri[:idx], uri[idx+len("://"):], true
}

// SchemeOf extracts the layer scheme of a URI, reporting false when the URI
// has no recognizable scheme separator.
func SchemeOf(uri string) (core.Layer, bool) {
	scheme, _, ok := splitScheme(uri)
	if !ok {
		return "", false
	}
	return core.Layer(scheme), true
}
