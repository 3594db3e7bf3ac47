package router

import (
	"fmt"
	"net/url"
	"strings"
)

type segmentKind int

const (
	segStatic segmentKind = iota
	segParam
	segCatchAll
)

// segment is one compiled piece of a route pattern.
type segment struct {
	kind segmentKind

	// value is the literal text of a static segment
	value string

	// paramName is the parameter name (without : or *)
	paramName string

	// paramType is the expected parameter type (int, string, uuid)
	paramType string
}

// pattern is a compiled route path.
type pattern struct {
	raw      string
	segments []segment
}

// compilePattern parses a route path such as "/url/:url/status".
func compilePattern(path string) (*pattern, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("%w: %q must start with /", ErrInvalidPattern, path)
	}

	p := &pattern{raw: path}
	seen := make(map[string]bool)

	parts := splitPath(path)
	for i, part := range parts {
		var seg segment
		switch {
		case strings.HasPrefix(part, "*"):
			if i != len(parts)-1 {
				return nil, fmt.Errorf("%w: catch-all %q must be the last segment", ErrInvalidPattern, part)
			}
			seg = segment{kind: segCatchAll, paramName: part[1:], paramType: "[]string"}
		case strings.HasPrefix(part, ":"):
			name, paramType := parseParamSegment(part)
			seg = segment{kind: segParam, paramName: name, paramType: paramType}
		default:
			if part == "" {
				return nil, fmt.Errorf("%w: %q has an empty segment", ErrInvalidPattern, path)
			}
			seg = segment{kind: segStatic, value: part}
		}

		if seg.kind != segStatic {
			if seg.paramName == "" {
				return nil, fmt.Errorf("%w: %q has an unnamed parameter", ErrInvalidPattern, path)
			}
			if seen[seg.paramName] {
				return nil, fmt.Errorf("%w: parameter %q repeated in %q", ErrInvalidPattern, seg.paramName, path)
			}
			seen[seg.paramName] = true
		}

		p.segments = append(p.segments, seg)
	}

	return p, nil
}

// match reports whether the raw (still escaped) path segments match the
// pattern, filling params on success. params is left untouched on failure.
func (p *pattern) match(raw []string) (Params, bool) {
	params := make(Params)

	for i, seg := range p.segments {
		if seg.kind == segCatchAll {
			if i >= len(raw) {
				return nil, false
			}
			value, err := DecodeSegment(strings.Join(raw[i:], "/"), true)
			if err != nil {
				return nil, false
			}
			params[seg.paramName] = value
			return params, true
		}

		if i >= len(raw) {
			return nil, false
		}

		value, err := DecodeSegment(raw[i], false)
		if err != nil {
			return nil, false
		}

		switch seg.kind {
		case segStatic:
			if value != seg.value {
				return nil, false
			}
		case segParam:
			if value == "" || ValidateParam(value, seg.paramType) != nil {
				return nil, false
			}
			params[seg.paramName] = value
		}
	}

	if len(raw) != len(p.segments) {
		return nil, false
	}
	return params, true
}

// build renders the pattern with the given parameter values, escaping each
// value so it occupies exactly the segment(s) it was bound to.
func (p *pattern) build(params Params) (string, error) {
	if len(p.segments) == 0 {
		return "/", nil
	}

	var sb strings.Builder
	for _, seg := range p.segments {
		sb.WriteByte('/')
		switch seg.kind {
		case segStatic:
			sb.WriteString(seg.value)
		case segParam:
			value, ok := params[seg.paramName]
			if !ok || value == "" {
				return "", fmt.Errorf("%w: %q", ErrMissingParam, seg.paramName)
			}
			if err := ValidateParam(value, seg.paramType); err != nil {
				return "", fmt.Errorf("%w: %q: %v", ErrInvalidParam, seg.paramName, err)
			}
			sb.WriteString(url.PathEscape(value))
		case segCatchAll:
			value, ok := params[seg.paramName]
			if !ok || value == "" {
				return "", fmt.Errorf("%w: %q", ErrMissingParam, seg.paramName)
			}
			parts := strings.Split(strings.Trim(value, "/"), "/")
			for i, part := range parts {
				parts[i] = url.PathEscape(part)
			}
			sb.WriteString(strings.Join(parts, "/"))
		}
	}
	return sb.String(), nil
}

// paramNames lists the pattern's parameters in order.
func (p *pattern) paramNames() []string {
	var names []string
	for _, seg := range p.segments {
		if seg.kind != segStatic {
			names = append(names, seg.paramName)
		}
	}
	return names
}

// splitPath splits a path into segments.
func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// parseParamSegment extracts name and type from a parameter segment.
// Input: ":id" or ":id:int" -> name="id", type="string" or "int"
func parseParamSegment(seg string) (name, paramType string) {
	seg = seg[1:]
	if idx := strings.Index(seg, ":"); idx != -1 {
		return seg[:idx], seg[idx+1:]
	}
	return seg, "string"
}
