package utils

import "time"

// TimeNowUTC returns the current wall-clock time in UTC. All scheduler
// bookkeeping (next_run_at, claim_until, finished_at) is stored in UTC;
// per-trigger timezones apply only when evaluating cron expressions.
func TimeNowUTC() time.Time {
	return time.Now().UTC()
}
