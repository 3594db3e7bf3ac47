package router

import (
	"fmt"
	"net/http"
	"net/url"
)

// NavigateOptions configures a server-issued navigation.
type NavigateOptions struct {
	// Query holds query parameters added to the target URL.
	Query map[string]any

	// Status is the redirect status code. Defaults to 303 See Other.
	Status int
}

// NavigateOption is a functional option for Navigate.
type NavigateOption func(*NavigateOptions)

// WithQuery adds query parameters to the navigation URL.
func WithQuery(query map[string]any) NavigateOption {
	return func(o *NavigateOptions) {
		o.Query = query
	}
}

// WithStatus overrides the redirect status code.
func WithStatus(code int) NavigateOption {
	return func(o *NavigateOptions) {
		o.Status = code
	}
}

// WithReplace redirects with 302 Found instead of 303 See Other.
func WithReplace() NavigateOption {
	return WithStatus(http.StatusFound)
}

// NavigationRequest is a resolved navigation target.
type NavigationRequest struct {
	Path    string
	Options NavigateOptions
}

// BuildURL constructs the full URL for a navigation request.
func (nr *NavigationRequest) BuildURL() (string, error) {
	u, err := url.Parse(nr.Path)
	if err != nil {
		return "", fmt.Errorf("invalid path: %s", nr.Path)
	}

	if nr.Options.Query != nil {
		q := u.Query()
		for k, v := range nr.Options.Query {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// Navigate redirects the client to a named route.
func (r *Router) Navigate(w http.ResponseWriter, req *http.Request, name string, params Params, opts ...NavigateOption) error {
	href, err := r.Href(name, params)
	if err != nil {
		return err
	}

	nr := &NavigationRequest{
		Path:    href,
		Options: NavigateOptions{Status: http.StatusSeeOther},
	}
	for _, opt := range opts {
		opt(&nr.Options)
	}

	target, err := nr.BuildURL()
	if err != nil {
		return err
	}
	return Redirect(w, req, target, nr.Options.Status)
}

// Redirect sends an HTTP redirect to a site-relative target. Absolute URLs
// are refused.
func Redirect(w http.ResponseWriter, req *http.Request, target string, code int) error {
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fmt.Errorf("%w: %q", ErrInvalidPath, target)
	}

	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	clean, err := ValidateNavPath(path)
	if err != nil {
		return fmt.Errorf("redirect %q: %w", target, err)
	}
	if u.Fragment != "" {
		clean += "#" + u.EscapedFragment()
	}

	http.Redirect(w, req, clean, code)
	return nil
}
