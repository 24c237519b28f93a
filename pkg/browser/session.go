// Package browser provides pooled page-rendering sessions used to scrape
// retailer search and product pages.
package browser

import (
	"context"
	"errors"
)

// ErrNoMatch is returned when a selector matches nothing on the current page.
var ErrNoMatch = errors.New("selector matched no element")

// Session is one page-rendering context. A session is used by a single
// caller at a time; the Pool enforces that.
type Session interface {
	// Navigate loads url, sending headers with the request.
	Navigate(ctx context.Context, url string, headers map[string]string) error
	// WaitVisible blocks until selector is present and visible or ctx ends.
	WaitVisible(ctx context.Context, selector string) error
	// Text returns the trimmed text of the first element matching selector.
	Text(ctx context.Context, selector string) (string, error)
	// FirstHref returns the absolute href of the first selector with a match.
	FirstHref(ctx context.Context, selectors []string) (string, error)
	// Reset clears page state before the session goes back to the pool.
	Reset(ctx context.Context) error
	Close() error
}

// SessionFactory opens new sessions for a Pool.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}
