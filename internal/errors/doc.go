// Package errors provides coded, structured errors for proxycop.
//
// Every error has a stable code (e.g. "E011") that maps to a category, a
// short message, a longer detail and the HTTP status used when the error
// reaches an API client:
//
//	err := errors.New(errors.CodeNoStatus).
//	    WithDetail("news.ycombinator.com has no restriction").
//	    Wrap(status.ErrNoStatus)
//
//	fmt.Fprint(os.Stderr, err.Format()) // colored terminal output
//
// Errors created here unwrap to their cause, so errors.Is keeps working on
// sentinels such as store.ErrNotFound.
package errors
