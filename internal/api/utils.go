package api

import (
	"time"
)

// staleCutoff derives the staleness cutoff from the configured timeout,
// optionally overridden by a request "timeout" duration parameter (e.g.
// "5m", "0s" to sweep everything non-terminal with no recent activity).
func staleCutoff(configured time.Duration, override string) time.Time {
	timeout := configured
	if override != "" {
		if d, err := time.ParseDuration(override); err == nil && d >= 0 {
			timeout = d
		}
	}
	return time.Now().UTC().Add(-timeout)
}
