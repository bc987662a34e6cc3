// Package browser wraps the two page-acquisition engines behind one
// capability interface: a Chrome engine driven over CDP via Rod, and a plain
// HTTP engine used as the fallback when Chrome cannot start. Callers never
// inspect engine types; they acquire a session, navigate, and release.
package browser

import (
	"context"
	"errors"
)

// ErrEngineUnavailable is returned when an engine cannot initialise.
var ErrEngineUnavailable = errors.New("browser: engine unavailable")

// ErrNavigationTimeout is returned when the target page does not load within
// the caller's deadline. A session that timed out must be discarded.
var ErrNavigationTimeout = errors.New("browser: navigation timeout")

// Session is one live page-acquisition handle. At most one scrape may be in
// flight against a session; it is released at the end of the cycle.
type Session interface {
	// Navigate loads the target URL and returns the rendered document.
	// The caller supplies the deadline via ctx.
	Navigate(ctx context.Context, url string) ([]byte, error)

	// Capture returns a screenshot of the current page, when the engine
	// supports one. Used for debug artifacts only; failures are tolerable.
	Capture(ctx context.Context) ([]byte, error)

	// Close releases the session. Safe to call after a failed Navigate.
	Close() error
}

// Engine produces sessions.
type Engine interface {
	// Name identifies the engine ("chrome", "http") and is stamped on
	// snapshots it produced.
	Name() string

	// Acquire initialises the engine if needed and opens a session.
	Acquire(ctx context.Context) (Session, error)

	// Close releases engine-level resources (the Chrome process).
	Close() error
}
