package channel

import (
	"context"
	"fmt"

	"tidepool/internal/domain"
)

// Channel is the posting capability for one social network. Clients are
// built once at startup and injected, never referenced globally.
type Channel interface {
	Type() domain.Channel
	Post(ctx context.Context, message string, contentWarning string) error
}

// Error is a dispatch-time channel failure. The dispatcher logs it and
// drops the announcement, it is never retried.
type Error struct {
	Channel    domain.Channel
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("post to %s: status %d", e.Channel, e.StatusCode)
	}

	return fmt.Sprintf("post to %s: %v", e.Channel, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
