package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/beevik/ntp"
)

// DefaultNTPHost is used when no host is configured
const DefaultNTPHost = "pool.ntp.org"

// TimeSource reports the current calendar time from an external authority
type TimeSource interface {
	Time(ctx context.Context) (time.Time, error)
	String() string
}

// ClockSyncError reports a failed time lookup
type ClockSyncError struct {
	Source string
	Err    error
}

func (e *ClockSyncError) Error() string {
	return fmt.Sprintf("clock sync via %s: %v", e.Source, e.Err)
}

func (e *ClockSyncError) Unwrap() error {
	return e.Err
}

// NTPSource queries an NTP server
type NTPSource struct {
	Host    string
	Timeout time.Duration
}

// Time performs a single NTP query
func (n NTPSource) Time(ctx context.Context) (time.Time, error) {
	host := n.Host
	if host == "" {
		host = DefaultNTPHost
	}

	timeout := n.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	resp, err := ntp.QueryWithOptions(host, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return time.Time{}, fmt.Errorf("query %s: %w", host, err)
	}
	if err := resp.Validate(); err != nil {
		return time.Time{}, fmt.Errorf("validate %s: %w", host, err)
	}
	return resp.Time, nil
}

func (n NTPSource) String() string {
	if n.Host == "" {
		return "ntp://" + DefaultNTPHost
	}
	return "ntp://" + n.Host
}
