package timeslot

import (
	"errors"
	"fmt"
	"time"

	"courtbook/internal/models"
)

var (
	ErrInvalidRange = errors.New("invalid time range")
	ErrInvalidDate  = errors.New("invalid date format")
)

// Key formats minutes-from-midnight as a slot key ("14:00").
func Key(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseKey converts a slot key to minutes from midnight. "24:00" is allowed
// as an exclusive range end.
func ParseKey(key string) (int, error) {
	if key == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse(models.TimeFormat, key)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRange, key)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// IsValidKey reports whether key is a well-formed HH:MM slot label.
func IsValidKey(key string) bool {
	_, err := ParseKey(key)
	return err == nil && key != "24:00"
}

// ParseDate validates a YYYY-MM-DD date and returns it as a time.Time.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(models.DateFormat, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return t, nil
}

// MonthOf returns the YYYY-MM document key for a date.
func MonthOf(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.Format(models.MonthFormat), nil
}

// SlotsForRange returns the ordered slot keys covered by [start, end).
// Both bounds must be aligned to the granularity and end must be strictly
// after start; otherwise ErrInvalidRange.
func SlotsForRange(start, end string, granularityMinutes int) ([]string, error) {
	if granularityMinutes <= 0 {
		return nil, fmt.Errorf("%w: granularity %d", ErrInvalidRange, granularityMinutes)
	}

	from, err := ParseKey(start)
	if err != nil {
		return nil, err
	}
	to, err := ParseKey(end)
	if err != nil {
		return nil, err
	}

	if to <= from {
		return nil, fmt.Errorf("%w: %s-%s", ErrInvalidRange, start, end)
	}
	if from%granularityMinutes != 0 || to%granularityMinutes != 0 {
		return nil, fmt.Errorf("%w: %s-%s not aligned to %dm", ErrInvalidRange, start, end, granularityMinutes)
	}

	keys := make([]string, 0, (to-from)/granularityMinutes)
	for m := from; m < to; m += granularityMinutes {
		keys = append(keys, Key(m))
	}
	return keys, nil
}

// EndOfRange returns the exclusive end key for a start time and duration.
func EndOfRange(start string, durationMinutes int) (string, error) {
	from, err := ParseKey(start)
	if err != nil {
		return "", err
	}
	if durationMinutes <= 0 {
		return "", fmt.Errorf("%w: duration %dm", ErrInvalidRange, durationMinutes)
	}
	to := from + durationMinutes
	if to > 24*60 {
		return "", fmt.Errorf("%w: range crosses midnight", ErrInvalidRange)
	}
	return Key(to), nil
}
