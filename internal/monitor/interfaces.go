package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/sizewatch/internal/alert"
)

// Page exposes the rendered document of the page a session is showing.
type Page interface {
	HTML(ctx context.Context) (string, error)
}

// Session is one rendering-engine instance. It lives for a single pass over
// the watch-list. Close must be idempotent.
type Session interface {
	Page
	Navigate(ctx context.Context, url string) error
	Close() error
}

// SessionManager creates and tears down sessions. Open never retries; Close
// swallows and logs teardown failures.
type SessionManager interface {
	Open(ctx context.Context) (Session, error)
	Close(session Session)
}

// Extractor inspects a page that is already showing a product and returns the
// first purchasable size from sizes.
type Extractor interface {
	Extract(ctx context.Context, page Page, sizes SizeSet) (string, bool, error)
}

// Extractors maps every supported store to its extractor.
type Extractors map[Store]Extractor

// Notifier raises an alert. The outcome only informs logging; callers never
// act on it.
type Notifier interface {
	Notify(ctx context.Context, message string, creds alert.Credentials) alert.Outcome
}

// Limiter paces navigations against the same host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Waiter waits out the randomized inter-cycle delay and the fixed recovery
// delay, both interruptible through isCancelled.
type Waiter interface {
	Wait(ctx context.Context, minSeconds, maxSeconds uint, isCancelled func() bool) (uint, bool)
	Pause(ctx context.Context, seconds uint, isCancelled func() bool) bool
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}
