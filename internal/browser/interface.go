package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNavigationTimeout wraps a navigation that did not reach a ready
	// state before its deadline.
	ErrNavigationTimeout = errors.New("navigation timed out")
	// ErrElementTimeout wraps a wait for an element that never became visible.
	ErrElementTimeout = errors.New("element wait timed out")
	// ErrElementNotFound is returned when a selector matches nothing.
	ErrElementNotFound = errors.New("element not found")
)

// SessionOptions carries the per-session knobs. Launch settings come from
// the driver's configuration.
type SessionOptions struct {
	// Label tags the session in logs, e.g. "account-2/retry-1".
	Label string
}

// Driver opens isolated browser sessions.
type Driver interface {
	OpenSession(ctx context.Context, opts SessionOptions) (Session, error)
}

// Session is one page in its own browsing context. Every blocking call is
// bounded by the context and, where given, the explicit timeout.
type Session interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// Locate returns a lazy handle; nothing is queried until a method runs.
	// The selector may be CSS or XPath.
	Locate(selector string) Element
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	BodyText(ctx context.Context) (string, error)
	// Capture writes a full-page PNG to path.
	Capture(ctx context.Context, path string) error
	// ExpectNavigation arms a listener for the next page load. The returned
	// func blocks until that load happens or timeout elapses.
	ExpectNavigation(ctx context.Context) func(timeout time.Duration) error
	Close() error
}

// Element is a lazy handle on the first node matching a selector.
type Element interface {
	Selector() string
	WaitVisible(ctx context.Context, timeout time.Duration) error
	Click(ctx context.Context, timeout time.Duration) error
	Clear(ctx context.Context) error
	Fill(ctx context.Context, value string, timeout time.Duration) error
	Count(ctx context.Context) (int, error)
	Text(ctx context.Context) (string, error)
}
