package router

import (
	"fmt"
	"net/http"
)

// Mode selects how application URLs are represented.
type Mode int

const (
	// ModeHistory uses real paths (/url/x/status). The server must answer
	// every route path with the matching view.
	ModeHistory Mode = iota

	// ModeHash keeps the route in the URL fragment (/#/url/x/status).
	// The server only ever sees the root path.
	ModeHash
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeHistory:
		return "history"
	case ModeHash:
		return "hash"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "history" or "hash".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "history", "":
		return ModeHistory, nil
	case "hash":
		return ModeHash, nil
	default:
		return ModeHistory, fmt.Errorf("unknown router mode %q", s)
	}
}

// View renders a routed page. The router never inspects a view beyond
// calling ServeView with the resolved match.
type View interface {
	ServeView(w http.ResponseWriter, r *http.Request, m *Match)
}

// ViewFunc is a function adapter for View.
type ViewFunc func(w http.ResponseWriter, r *http.Request, m *Match)

// ServeView implements View.
func (f ViewFunc) ServeView(w http.ResponseWriter, r *http.Request, m *Match) {
	f(w, r, m)
}

// Route is a single entry of the route table.
type Route struct {
	// Path is the URL pattern (e.g., "/url/:url/status")
	Path string

	// Name identifies the route; unique within a table
	Name string

	// View renders the route
	View View
}

// Params holds route parameter values keyed by parameter name.
type Params map[string]string

// Get returns the named parameter or "".
func (p Params) Get(name string) string {
	return p[name]
}

// Match is the result of resolving a path against the table.
type Match struct {
	// Route is the matched entry
	Route Route

	// Path is the canonical path that was matched
	Path string

	// Params are the extracted, percent-decoded parameters
	Params Params
}
