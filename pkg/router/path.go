package router

import (
	"errors"
	"net/url"
	"strings"
)

// Path canonicalization errors.
var (
	ErrInvalidPath           = errors.New("invalid path")
	ErrBackslashInPath       = errors.New("path contains backslash")
	ErrNullByteInPath        = errors.New("path contains null byte")
	ErrInvalidPercentEscape  = errors.New("invalid percent escape sequence")
	ErrPathEscapesRoot       = errors.New("path escapes root via ..")
	ErrEncodedSlashInSegment = errors.New("encoded slash (%2F) in non-catch-all segment")
)

// CanonicalPath is a normalized request path.
type CanonicalPath struct {
	// Path is the canonical escaped path, without query string
	Path string

	// Query is the query string without the leading "?"
	Query string

	// Changed reports whether normalization altered the input path
	Changed bool
}

// CanonicalizePath normalizes an escaped URL path:
//   - trailing slash removed (except for "/")
//   - repeated slashes collapsed
//   - "." segments dropped and ".." segments resolved
//
// Backslashes, NUL bytes, malformed percent escapes and ".." above the root
// are rejected. A query string, if present, is split off and kept verbatim.
func CanonicalizePath(input string) (CanonicalPath, error) {
	if input == "" {
		return CanonicalPath{Path: "/", Changed: true}, nil
	}

	path, query := SplitPathAndQuery(input)

	if strings.Contains(path, "\\") {
		return CanonicalPath{}, ErrBackslashInPath
	}
	if strings.Contains(path, "\x00") || strings.Contains(strings.ToUpper(path), "%00") {
		return CanonicalPath{}, ErrNullByteInPath
	}
	if strings.Contains(path, "%") {
		if err := validatePercentEscapes(path); err != nil {
			return CanonicalPath{}, err
		}
	}

	var out []string
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(out) == 0 {
				return CanonicalPath{}, ErrPathEscapesRoot
			}
			out = out[:len(out)-1]
		default:
			out = append(out, seg)
		}
	}

	canonical := "/" + strings.Join(out, "/")
	return CanonicalPath{
		Path:    canonical,
		Query:   query,
		Changed: canonical != path,
	}, nil
}

// validatePercentEscapes checks that every % is followed by two hex digits.
func validatePercentEscapes(path string) error {
	for i := 0; i < len(path); i++ {
		if path[i] != '%' {
			continue
		}
		if i+2 >= len(path) || !isHexDigit(path[i+1]) || !isHexDigit(path[i+2]) {
			return ErrInvalidPercentEscape
		}
		i += 2
	}
	return nil
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// DecodeSegment decodes a single escaped path segment. Outside catch-all
// parameters a decoded "/" is refused so one parameter cannot span segments.
func DecodeSegment(segment string, isCatchAll bool) (string, error) {
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		return "", ErrInvalidPercentEscape
	}
	if !isCatchAll && strings.Contains(decoded, "/") {
		return "", ErrEncodedSlashInSegment
	}
	return decoded, nil
}

// ValidateNavPath canonicalizes a navigation target and refuses anything
// other than a site-relative path, so redirects cannot leave the site.
func ValidateNavPath(path string) (string, error) {
	if strings.HasPrefix(path, "http://") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "//") ||
		!strings.HasPrefix(path, "/") {
		return "", ErrInvalidPath
	}

	result, err := CanonicalizePath(path)
	if err != nil {
		return "", err
	}
	if result.Query != "" {
		return result.Path + "?" + result.Query, nil
	}
	return result.Path, nil
}

// SplitPathAndQuery splits a path into path and query components.
// The query is returned without the leading "?".
func SplitPathAndQuery(input string) (path, query string) {
	path, query, _ = strings.Cut(input, "?")
	return path, query
}
