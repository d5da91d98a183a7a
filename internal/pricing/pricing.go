package pricing

import (
	"fmt"
	"time"

	"courtbook/internal/models"
	"courtbook/internal/timeslot"
)

// Rules configure when the weekend and peak rates apply. Peak takes
// precedence over weekend, weekend over base.
type Rules struct {
	WeekendDays []time.Weekday
	PeakStart   string // "18:00"; empty disables the peak window
	PeakEnd     string
}

// DefaultRules treat Saturday and Sunday as weekend with no peak window.
func DefaultRules() Rules {
	return Rules{WeekendDays: []time.Weekday{time.Saturday, time.Sunday}}
}

func (r Rules) isWeekend(day time.Weekday) bool {
	for _, d := range r.WeekendDays {
		if d == day {
			return true
		}
	}
	return false
}

func (r Rules) inPeak(minute int) (bool, error) {
	if r.PeakStart == "" || r.PeakEnd == "" {
		return false, nil
	}
	from, err := timeslot.ParseKey(r.PeakStart)
	if err != nil {
		return false, fmt.Errorf("peak start: %w", err)
	}
	to, err := timeslot.ParseKey(r.PeakEnd)
	if err != nil {
		return false, fmt.Errorf("peak end: %w", err)
	}
	return minute >= from && minute < to, nil
}

// Quote prices the range [start, end) on the given date, in minor currency
// units. Per slot the rate is picked as peak > weekend > base, with missing
// (zero) peak or weekend rates falling through to the next tier; the total
// is the sum of slot rate scaled by slot duration. Pure and deterministic:
// identical inputs always give identical output.
func Quote(rates models.RateTable, rules Rules, date, start, end string, granularityMinutes int) (int64, error) {
	keys, err := timeslot.SlotsForRange(start, end, granularityMinutes)
	if err != nil {
		return 0, err
	}
	day, err := timeslot.ParseDate(date)
	if err != nil {
		return 0, err
	}

	weekend := rules.isWeekend(day.Weekday())

	var total int64
	for _, key := range keys {
		minute, err := timeslot.ParseKey(key)
		if err != nil {
			return 0, err
		}
		peak, err := rules.inPeak(minute)
		if err != nil {
			return 0, err
		}

		hourly := rates.Base
		if weekend && rates.Weekend > 0 {
			hourly = rates.Weekend
		}
		if peak && rates.Peak > 0 {
			hourly = rates.Peak
		}

		total += hourly * int64(granularityMinutes) / 60
	}

	return total, nil
}
