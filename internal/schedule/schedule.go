// Package schedule holds the pure scheduling decisions: next-occurrence
// computation, misfire handling and retry backoff. No I/O happens here.
package schedule

import (
	"fmt"
	"time"

	"github.com/genc-murat/tactilesql-scheduler/internal/model"

	"github.com/robfig/cron/v3"
)

// DefaultMisfireGrace is how late a trigger may fire before its misfire
// policy kicks in.
const DefaultMisfireGrace = time.Minute

// Decision is the outcome of a misfire check.
type Decision int

const (
	// DecisionDispatch means the occurrence should be dispatched normally.
	DecisionDispatch Decision = iota
	// DecisionSkipToFuture means the occurrence is dropped and next_run_at
	// jumps to the first occurrence strictly after the dispatch time.
	DecisionSkipToFuture
)

// NewCronParser returns the parser used for trigger cron expressions:
// standard five-field syntax plus @descriptors.
func NewCronParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// NextOccurrence computes the first occurrence of the trigger's schedule
// strictly after the given time. The second return value is false when
// the trigger has no future occurrence (a run_at trigger that already
// fired).
func NextOccurrence(parser cron.Parser, trg *model.TaskTrigger, after time.Time) (time.Time, bool, error) {
	switch trg.TriggerType {
	case model.TriggerTypeCron:
		loc := time.UTC
		if trg.Timezone != "" {
			l, err := time.LoadLocation(trg.Timezone)
			if err != nil {
				return time.Time{}, false, fmt.Errorf("invalid timezone %q: %w", trg.Timezone, err)
			}
			loc = l
		}
		sched, err := parser.Parse(trg.CronExpression)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid cron expression %q: %w", trg.CronExpression, err)
		}
		return sched.Next(after.In(loc)).UTC(), true, nil

	case model.TriggerTypeInterval:
		if trg.IntervalSeconds <= 0 {
			return time.Time{}, false, fmt.Errorf("interval trigger %s has non-positive interval", trg.ID)
		}
		return after.Add(time.Duration(trg.IntervalSeconds) * time.Second).UTC(), true, nil

	case model.TriggerTypeRunAt:
		if trg.RunAt.Valid && trg.RunAt.Time.After(after) {
			return trg.RunAt.Time.UTC(), true, nil
		}
		// One-shot already fired; no future occurrence.
		return time.Time{}, false, nil
	}

	return time.Time{}, false, fmt.Errorf("unknown trigger type %q", trg.TriggerType)
}

// MisfireDecision decides whether an occurrence scheduled at scheduledAt
// should still be dispatched at dispatchTime. Within the grace window the
// policy is irrelevant. Skip and Reschedule both jump to the next future
// occurrence without creating a run.
func MisfireDecision(scheduledAt, dispatchTime time.Time, policy model.MisfirePolicy, grace time.Duration) Decision {
	if dispatchTime.Sub(scheduledAt) <= grace {
		return DecisionDispatch
	}
	if policy == model.MisfireFireNow {
		return DecisionDispatch
	}
	return DecisionSkipToFuture
}

// RetryDelay is the wait before the next attempt, linear in the attempt
// number.
func RetryDelay(backoffMs int64, attempt int) time.Duration {
	if backoffMs < 0 || attempt < 0 {
		return 0
	}
	return time.Duration(backoffMs*int64(attempt)) * time.Millisecond
}

// CanRetry reports whether another attempt is allowed. maxAttempts is
// the number of retries beyond the first attempt, so a trigger with
// maxAttempts = N produces at most 1 + N runs.
func CanRetry(attempt, maxAttempts int) bool {
	return attempt < 1+maxAttempts
}
