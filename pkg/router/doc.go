// Package router implements a named, ordered route table for
// server-rendered single-page applications.
//
// The router provides:
//   - An immutable table of (pattern, name, view) entries built once at startup
//   - First-match-wins resolution in table order
//   - Parameter extraction with optional type constraints
//   - Path generation for named routes in history or hash mode
//   - An http.Handler that dispatches to the matched view
//
// # Patterns
//
// Dynamic segments use a colon prefix, optionally followed by a type:
//
//	/url/:url/status     → :url (string)
//	/users/:id:int       → :id (parsed as int)
//	/files/*path         → *path (catch-all, must be last)
//
// # Usage
//
//	r, err := router.New(router.ModeHistory, []router.Route{
//	    {Path: "/", Name: "Home", View: home},
//	    {Path: "/url/:url/status", Name: "URLStatus", View: status},
//	})
//
//	m, ok := r.Resolve("/url/example/status")
//	if ok {
//	    // m.Route.Name == "URLStatus"
//	    // m.Params["url"] == "example"
//	}
//
//	href, _ := r.Href("URLStatus", router.Params{"url": "example"})
//	// href == "/url/example/status"
package router
