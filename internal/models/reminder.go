package models

import (
	"fmt"
	"strings"
	"time"
)

// Frequency is the recurrence stride of a reminder.
type Frequency string

const (
	FreqOnce    Frequency = "once"
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

// NoExpiry is the sentinel end date for reminders without an expiry.
var NoExpiry = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case FreqOnce, FreqDaily, FreqWeekly, FreqMonthly, FreqYearly:
		return f, nil
	default:
		return "", fmt.Errorf("unknown frequency %q", s)
	}
}

// TimeOfDay is a wall-clock time at minute granularity.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse(TimeLayout, strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

// ReminderSpec is the structured output of extraction: a reminder before it
// has an identity or an owner.
type ReminderSpec struct {
	Task      string    `json:"task"`
	Frequency Frequency `json:"frequency"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	TimeOfDay TimeOfDay `json:"time_of_day"`
}

func (s *ReminderSpec) Validate() error {
	if strings.TrimSpace(s.Task) == "" {
		return fmt.Errorf("task must not be empty")
	}
	if _, err := ParseFrequency(string(s.Frequency)); err != nil {
		return err
	}
	if !s.TimeOfDay.Valid() {
		return fmt.Errorf("invalid time of day %s", s.TimeOfDay)
	}
	if s.StartDate.IsZero() || s.EndDate.IsZero() {
		return fmt.Errorf("start and end dates are required")
	}
	if dateAfter(s.StartDate, s.EndDate) {
		return fmt.Errorf("start date %s is after end date %s",
			s.StartDate.Format(DateLayout), s.EndDate.Format(DateLayout))
	}
	return nil
}

// HasExpiry reports whether the spec carries a real end date rather than the
// no-expiry sentinel.
func (s *ReminderSpec) HasExpiry() bool {
	return !SameDate(s.EndDate, NoExpiry)
}

// Reminder is the durable entity.
type Reminder struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	ReminderSpec
	LastDelivered *time.Time `json:"last_delivered"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (r *Reminder) IsRecurring() bool {
	return r.Frequency != FreqOnce
}

// Clone returns a deep copy so store reads never alias live records.
func (r *Reminder) Clone() *Reminder {
	c := *r
	if r.LastDelivered != nil {
		t := *r.LastDelivered
		c.LastDelivered = &t
	}
	return &c
}

// SameDate compares the calendar date of two instants, ignoring location
// differences in the underlying values.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func dateAfter(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay > by
	}
	if am != bm {
		return am > bm
	}
	return ad > bd
}
