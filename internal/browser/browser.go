// Package browser defines the driver-neutral surface the scenario runner
// drives: a Driver that opens isolated sessions and the Page of one session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wondertwin-ai/pizza-e2e/internal/route"
)

var (
	// ErrNotFound is returned when a locator matches no element.
	ErrNotFound = errors.New("browser: no element matches locator")
	// ErrTimeout is wrapped by drivers whose own wait gave up.
	ErrTimeout = errors.New("browser: timed out")
)

// SessionOptions configures one isolated session.
type SessionOptions struct {
	ID      string
	BaseURL string
	// Interceptor receives every request the page makes. Nil disables
	// interception.
	Interceptor *route.Interceptor
	Logger      *zap.Logger
}

// Page is one browser session: its own cookies, storage and routes. Page
// methods are called from a single goroutine.
type Page interface {
	Goto(ctx context.Context, target string) error
	Title(ctx context.Context) (string, error)
	URL() string

	Click(ctx context.Context, l Locator) error
	Fill(ctx context.Context, l Locator, value string) error
	Press(ctx context.Context, l Locator, key string) error
	Select(ctx context.Context, l Locator, value string) error

	// Texts returns the visible text of every element l matches.
	Texts(ctx context.Context, l Locator) ([]string, error)
	// Visible reports whether the first element l matches is visible.
	Visible(ctx context.Context, l Locator) (bool, error)

	// AppErrors returns uncaught errors raised by the application so far.
	AppErrors() []error

	Close() error
}

// Driver opens sessions.
type Driver interface {
	Name() string
	NewPage(ctx context.Context, opts SessionOptions) (Page, error)
	Close() error
}

// AppError is an uncaught exception in the application under test.
type AppError struct {
	Message string
	Stack   string
}

func (e *AppError) Error() string {
	return "uncaught application error: " + e.Message
}

// ResolveURL joins target onto base the way page.goto does: absolute URLs are
// kept, relative ones are resolved against base.
func ResolveURL(base, target string) (string, error) {
	t, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", target, err)
	}
	if t.IsAbs() {
		return t.String(), nil
	}
	if base == "" {
		return "", fmt.Errorf("relative url %q needs a base url", target)
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	return b.ResolveReference(t).String(), nil
}

// Timeout returns the time left before ctx's deadline, or def when ctx has
// none. It never returns less than one millisecond.
func Timeout(ctx context.Context, def time.Duration) time.Duration {
	d := def
	if deadline, ok := ctx.Deadline(); ok {
		d = time.Until(deadline)
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

// NormalizeSpace collapses runs of whitespace into single spaces and trims.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
