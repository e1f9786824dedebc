package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSchedule is returned when a schedule rule cannot be interpreted.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

// TimeSlot is a weekly window. Day follows time.Weekday (0 is Sunday), start
// is inclusive and end exclusive, both "HH:MM" in the rule's timezone.
type TimeSlot struct {
	Day       int    `json:"day"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// Validate checks the day range and the clock formats.
func (s TimeSlot) Validate() error {
	if s.Day < 0 || s.Day > 6 {
		return fmt.Errorf("%w: day %d out of range", ErrInvalidSchedule, s.Day)
	}

	start, err := ParseClock(s.StartTime)
	if err != nil {
		return err
	}

	end, err := ParseClock(s.EndTime)
	if err != nil {
		return err
	}

	if end <= start {
		return fmt.Errorf("%w: slot %s-%s ends before it starts", ErrInvalidSchedule, s.StartTime, s.EndTime)
	}

	return nil
}

// Contains reports whether local, already converted to the schedule
// timezone, falls inside the slot.
func (s TimeSlot) Contains(local time.Time) bool {
	if int(local.Weekday()) != s.Day {
		return false
	}

	start, err := ParseClock(s.StartTime)
	if err != nil {
		return false
	}

	end, err := ParseClock(s.EndTime)
	if err != nil {
		return false
	}

	minute := local.Hour()*60 + local.Minute()

	return minute >= start && minute < end
}

// ParseClock converts "HH:MM" into minutes since midnight. "24:00" is
// accepted as the end of the day.
func ParseClock(clock string) (int, error) {
	var hour, minute int

	_, err := fmt.Sscanf(clock, "%d:%d", &hour, &minute)
	if err != nil {
		return 0, fmt.Errorf("%w: clock %q: %w", ErrInvalidSchedule, clock, err)
	}

	if hour < 0 || minute < 0 || minute > 59 || hour > 24 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("%w: clock %q out of range", ErrInvalidSchedule, clock)
	}

	return hour*60 + minute, nil
}

// Location loads the rule timezone, defaulting to UTC.
func (p ScheduleParams) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", ErrInvalidSchedule, p.Timezone, err)
	}

	return loc, nil
}
