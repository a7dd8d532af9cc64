package schedule

import (
	"context"
	"time"
)

// Clock abstracts the monotonic clock and the idle sleep
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock reads the Go runtime clock; time.Time values carry the
// monotonic reading so Sub is immune to wall clock steps
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep pauses for d or until ctx is done
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
