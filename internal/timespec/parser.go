// Package timespec parses the time and lease specifications accepted in
// configuration files, scenarios and CLI flags.
package timespec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dyluth/tuplespace/pkg/space"
)

// Forever is the lease specification for a tuple that never expires.
const Forever = "forever"

// ParseLease parses a lease specification into a duration.
// Supports three formats:
//   - "forever" (case-insensitive): space.LeaseForever
//   - Go duration format: "500ms", "30s", "1h30m"
//   - a bare integer: milliseconds, e.g. "5000"
//
// The lease must be positive.
func ParseLease(spec string) (time.Duration, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, fmt.Errorf("empty lease specification")
	}
	if strings.EqualFold(spec, Forever) {
		return space.LeaseForever, nil
	}

	var d time.Duration
	if ms, err := strconv.ParseInt(spec, 10, 64); err == nil {
		d = time.Duration(ms) * time.Millisecond
	} else if parsed, err := time.ParseDuration(spec); err == nil {
		d = parsed
	} else {
		return 0, fmt.Errorf("invalid lease specification: %s (use 'forever', a duration like '30s', or milliseconds)", spec)
	}

	if d <= 0 {
		return 0, fmt.Errorf("lease must be positive, got %s", spec)
	}
	return d, nil
}

// FormatLease renders a lease the way ParseLease accepts it.
func FormatLease(d time.Duration) string {
	if d == space.LeaseForever {
		return Forever
	}
	return d.String()
}

// Parse parses a time specification into a Unix timestamp (milliseconds).
// Supports two formats:
//   - Go duration format: "1h", "30m", relative to now ("1h" means one hour ago)
//   - RFC3339 timestamps: "2025-10-29T13:00:00Z"
func Parse(spec string) (int64, error) {
	return parseAt(spec, time.Now())
}

func parseAt(spec string, now time.Time) (int64, error) {
	if spec == "" {
		return 0, fmt.Errorf("empty time specification")
	}

	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t.UnixMilli(), nil
	}

	if d, err := time.ParseDuration(spec); err == nil {
		return now.Add(-d).UnixMilli(), nil
	}

	return 0, fmt.Errorf("invalid time specification: %s (use duration like '1h30m' or RFC3339 like '2025-10-29T13:00:00Z')", spec)
}

// ParseRange parses --since and --until values into a time range in
// milliseconds. Zero means no bound on that end.
func ParseRange(since, until string) (int64, int64, error) {
	var sinceMS, untilMS int64
	var err error

	if since != "" {
		sinceMS, err = Parse(since)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --since: %w", err)
		}
	}

	if until != "" {
		untilMS, err = Parse(until)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if sinceMS > 0 && untilMS > 0 && sinceMS >= untilMS {
		return 0, 0, fmt.Errorf("--since must be before --until")
	}

	return sinceMS, untilMS, nil
}

// FormatMillis renders an epoch millisecond timestamp for display. space.Forever
// renders as "forever".
func FormatMillis(ms int64) string {
	if ms == space.Forever {
		return Forever
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
