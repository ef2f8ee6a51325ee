// Package scheduler implements the Trigger Scheduler (spec.md §4.4): a
// single armed timer per enabled trigger, recomputing next_fire_at for
// interval and cron kinds and firing RunRequests onto the Run Queue.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/scriptyard/scriptyard/internal/models"
)

// cronParser is the single parser instance backing both live firing and
// ValidateAndPreview, so a cron expression always means the same thing in
// both places (spec.md §9's Open Question 2).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextFire computes the next fire instant for t strictly after `after`,
// per spec.md §4.4's next-fire computation.
func NextFire(t *models.Trigger, after time.Time) (time.Time, error) {
	switch t.Kind {
	case models.TriggerInterval:
		if t.IntervalSecs <= 0 {
			return time.Time{}, fmt.Errorf("scheduler: interval trigger has non-positive interval")
		}
		return after.Add(time.Duration(t.IntervalSecs) * time.Second), nil
	case models.TriggerCron:
		return nextCronFire(t.CronExpr, t.CronTimezone, after)
	default:
		return time.Time{}, fmt.Errorf("scheduler: trigger kind %q has no next-fire computation", t.Kind)
	}
}

// nextCronFire parses expr once and returns the smallest instant strictly
// after `after`, interpreted in tz (an IANA name; empty means UTC). DST
// transitions are handled by robfig/cron's own Location-aware Next, which
// skips non-existent local times and collapses repeated ones to their
// first occurrence.
func nextCronFire(expr, tz string, after time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: invalid cron expression %q: %w", expr, err)
	}
	loc := time.UTC
	if tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, fmt.Errorf("scheduler: invalid timezone %q: %w", tz, err)
		}
	}
	return schedule.Next(after.In(loc)), nil
}

// ValidatePreview is the result of ValidateAndPreview.
type ValidatePreview struct {
	Valid    bool
	NextRuns []time.Time
	Error    string
}

// ValidateAndPreview parses expr in timezone tz and returns the next 5 fire
// times from now, per spec.md §4.4's cron validation endpoint. It never
// returns a Go error: parse failures are reported in the Error field so the
// HTTP handler can return {valid:false, error:"..."}.
func ValidateAndPreview(expr, tz string) ValidatePreview {
	const previewCount = 5
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return ValidatePreview{Valid: false, Error: err.Error()}
	}
	loc := time.UTC
	if tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return ValidatePreview{Valid: false, Error: fmt.Sprintf("invalid timezone %q: %v", tz, err)}
		}
	}
	runs := make([]time.Time, 0, previewCount)
	t := time.Now().In(loc)
	for i := 0; i < previewCount; i++ {
		t = schedule.Next(t)
		runs = append(runs, t)
	}
	return ValidatePreview{Valid: true, NextRuns: runs}
}
