// Package recurrence decides when a reminder's occurrences fall due. It is
// pure calendar math: no I/O, no clocks, no store access.
package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/apetersen/remindbot/internal/models"
)

// Occurrence instants are minute-granular: seconds in inputs are ignored.

// FirstInstant returns the reminder's first occurrence, composed from its
// start date and time of day in the given location.
func FirstInstant(r *models.Reminder, loc *time.Location) time.Time {
	y, m, d := r.StartDate.Date()
	return time.Date(y, m, d, r.TimeOfDay.Hour, r.TimeOfDay.Minute, 0, 0, loc)
}

func lastInstant(r *models.Reminder, loc *time.Location) time.Time {
	y, m, d := r.EndDate.Date()
	return time.Date(y, m, d, r.TimeOfDay.Hour, r.TimeOfDay.Minute, 0, 0, loc)
}

func rule(r *models.Reminder, loc *time.Location) (*rrule.RRule, error) {
	var freq rrule.Frequency
	switch r.Frequency {
	case models.FreqDaily:
		freq = rrule.DAILY
	case models.FreqWeekly:
		freq = rrule.WEEKLY
	case models.FreqMonthly:
		freq = rrule.MONTHLY
	case models.FreqYearly:
		freq = rrule.YEARLY
	default:
		return nil, fmt.Errorf("frequency %q has no recurrence rule", r.Frequency)
	}
	return rrule.NewRRule(rrule.ROption{
		Freq:    freq,
		Dtstart: FirstInstant(r, loc),
		Until:   lastInstant(r, loc),
	})
}

// NextOccurrence returns the first occurrence strictly after the given
// instant, in after's location. ok is false when no occurrence remains.
func NextOccurrence(r *models.Reminder, after time.Time) (time.Time, bool) {
	loc := after.Location()
	after = after.Truncate(time.Minute)

	if !r.IsRecurring() {
		inst := FirstInstant(r, loc)
		if inst.After(after) {
			return inst, true
		}
		return time.Time{}, false
	}

	rl, err := rule(r, loc)
	if err != nil {
		return time.Time{}, false
	}
	next := rl.After(after, false)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

// DueOccurrence returns the earliest undelivered occurrence inside the
// half-open polling window (windowStart, windowEnd]. Already-delivered
// occurrences never come due again: the window floor is raised to the
// reminder's last delivered instant.
func DueOccurrence(r *models.Reminder, windowStart, windowEnd time.Time) (time.Time, bool) {
	loc := windowEnd.Location()
	floor := windowStart.In(loc).Truncate(time.Minute)
	windowEnd = windowEnd.Truncate(time.Minute)

	if r.LastDelivered != nil {
		if d := r.LastDelivered.In(loc).Truncate(time.Minute); d.After(floor) {
			floor = d
		}
	}

	next, ok := NextOccurrence(r, floor)
	if !ok || next.After(windowEnd) {
		return time.Time{}, false
	}
	return next, true
}
