package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleType determines how a schedule's next run time is computed.
type ScheduleType string

const (
	ScheduleTypeOnce     ScheduleType = "once"
	ScheduleTypeDaily    ScheduleType = "daily"
	ScheduleTypeWeekly   ScheduleType = "weekly"
	ScheduleTypeMonthly  ScheduleType = "monthly"
	ScheduleTypeInterval ScheduleType = "interval"
	ScheduleTypeCron     ScheduleType = "cron"
)

var (
	// ErrInvalidSchedule is returned when schedule validation fails.
	ErrInvalidSchedule = errors.New("invalid schedule configuration")

	// ErrScheduleExhausted is returned when a schedule has no further run,
	// e.g. a once schedule that already fired.
	ErrScheduleExhausted = errors.New("schedule has no next run")
)

// Schedule is a long-lived configuration object that repeatedly spawns
// executions of one workflow based on time.
type Schedule struct {
	ID         string       `json:"id"          validate:"required"`
	WorkflowID string       `json:"workflow_id" validate:"required"`
	Type       ScheduleType `json:"type"        validate:"required,oneof=once daily weekly monthly interval cron"`

	// ScheduledAt is the single firing time for once schedules.
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	// TimeOfDay pins daily/weekly/monthly firings to a wall-clock time in
	// "15:04" format. When empty, firings keep the reference time's clock.
	TimeOfDay string `json:"time_of_day,omitempty"`

	// Weekday selects the firing day for weekly schedules.
	Weekday *time.Weekday `json:"weekday,omitempty"`

	// DayOfMonth selects the firing day for monthly schedules (1-28).
	DayOfMonth int `json:"day_of_month,omitempty" validate:"min=0,max=28"`

	// IntervalMinutes is the firing period for interval schedules.
	IntervalMinutes int `json:"interval_minutes,omitempty" validate:"min=0"`

	// CronExpression is a standard 5-field cron expression for cron schedules.
	CronExpression string `json:"cron_expression,omitempty"`

	Enabled bool `json:"enabled"`

	// NextRun is kept consistent with Type and LastRun whenever the schedule
	// is enabled; it is recomputed immediately after each firing.
	NextRun *time.Time `json:"next_run,omitempty"`
	LastRun *time.Time `json:"last_run,omitempty"`

	// RunCount increases monotonically, once per firing.
	RunCount int64 `json:"run_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the type-specific fields beyond struct tag validation.
func (s *Schedule) Validate() error {
	switch s.Type {
	case ScheduleTypeOnce:
		if s.ScheduledAt == nil {
			return fmt.Errorf("%w: once schedule requires scheduled_at", ErrInvalidSchedule)
		}
	case ScheduleTypeInterval:
		if s.IntervalMinutes <= 0 {
			return fmt.Errorf("%w: interval schedule requires a positive interval_minutes", ErrInvalidSchedule)
		}
	case ScheduleTypeCron:
		if s.CronExpression == "" {
			return fmt.Errorf("%w: cron schedule requires cron_expression", ErrInvalidSchedule)
		}

		if _, err := cron.ParseStandard(s.CronExpression); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
		}
	case ScheduleTypeWeekly:
		if s.Weekday != nil && (*s.Weekday < time.Sunday || *s.Weekday > time.Saturday) {
			return fmt.Errorf("%w: invalid weekday", ErrInvalidSchedule)
		}
	case ScheduleTypeDaily, ScheduleTypeMonthly:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSchedule, s.Type)
	}

	if s.TimeOfDay != "" {
		if _, err := time.Parse("15:04", s.TimeOfDay); err != nil {
			return fmt.Errorf("%w: time_of_day must be in 15:04 format", ErrInvalidSchedule)
		}
	}

	return nil
}

// ComputeNextRun returns the next firing time strictly after from, or
// ErrScheduleExhausted when the schedule has no subsequent run.
func (s *Schedule) ComputeNextRun(from time.Time) (time.Time, error) {
	switch s.Type {
	case ScheduleTypeOnce:
		if s.ScheduledAt == nil || !s.ScheduledAt.After(from) {
			return time.Time{}, ErrScheduleExhausted
		}

		return *s.ScheduledAt, nil

	case ScheduleTypeDaily:
		next := s.atTimeOfDay(from)
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}

		return next, nil

	case ScheduleTypeWeekly:
		next := s.atTimeOfDay(from)
		if s.Weekday != nil {
			for next.Weekday() != *s.Weekday || !next.After(from) {
				next = next.AddDate(0, 0, 1)
			}
		} else if !next.After(from) {
			next = next.AddDate(0, 0, 7)
		}

		return next, nil

	case ScheduleTypeMonthly:
		next := s.atTimeOfDay(from)
		if s.DayOfMonth >= 1 {
			next = time.Date(next.Year(), next.Month(), s.DayOfMonth,
				next.Hour(), next.Minute(), 0, 0, next.Location())
		}

		if !next.After(from) {
			next = next.AddDate(0, 1, 0)
		}

		return next, nil

	case ScheduleTypeInterval:
		if s.IntervalMinutes <= 0 {
			return time.Time{}, ErrInvalidSchedule
		}

		return from.Add(time.Duration(s.IntervalMinutes) * time.Minute), nil

	case ScheduleTypeCron:
		parsed, err := cron.ParseStandard(s.CronExpression)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
		}

		return parsed.Next(from), nil

	default:
		return time.Time{}, fmt.Errorf("%w: unknown type %q", ErrInvalidSchedule, s.Type)
	}
}

// atTimeOfDay places from's date at the schedule's wall-clock time, keeping
// from's own clock when no TimeOfDay is configured.
func (s *Schedule) atTimeOfDay(from time.Time) time.Time {
	if s.TimeOfDay == "" {
		return from
	}

	tod, err := time.Parse("15:04", s.TimeOfDay)
	if err != nil {
		return from
	}

	return time.Date(from.Year(), from.Month(), from.Day(),
		tod.Hour(), tod.Minute(), 0, 0, from.Location())
}
