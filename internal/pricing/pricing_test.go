package pricing

import (
	"testing"
	"time"

	"courtbook/internal/models"
	"courtbook/internal/timeslot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rates = models.RateTable{Base: 30000, Peak: 50000, Weekend: 40000, Currency: "thb"}

func TestQuoteBaseRate(t *testing.T) {
	// 2024-06-03 is a Monday.
	price, err := Quote(rates, DefaultRules(), "2024-06-03", "10:00", "12:00", 60)
	require.NoError(t, err)
	assert.Equal(t, int64(60000), price)
}

func TestQuoteWeekendRate(t *testing.T) {
	// 2024-06-01 is a Saturday.
	price, err := Quote(rates, DefaultRules(), "2024-06-01", "10:00", "12:00", 60)
	require.NoError(t, err)
	assert.Equal(t, int64(80000), price)
}

func TestQuotePeakOverridesWeekend(t *testing.T) {
	rules := DefaultRules()
	rules.PeakStart = "18:00"
	rules.PeakEnd = "21:00"

	// Saturday 17:00-19:00: one weekend slot, one peak slot.
	price, err := Quote(rates, rules, "2024-06-01", "17:00", "19:00", 60)
	require.NoError(t, err)
	assert.Equal(t, int64(40000+50000), price)
}

func TestQuotePeakBoundaries(t *testing.T) {
	rules := DefaultRules()
	rules.PeakStart = "18:00"
	rules.PeakEnd = "21:00"

	tests := []struct {
		name       string
		start, end string
		want       int64
	}{
		{name: "slot ending at peak start is off-peak", start: "17:00", end: "18:00", want: 30000},
		{name: "slot at peak start is peak", start: "18:00", end: "19:00", want: 50000},
		{name: "slot before peak end is peak", start: "20:00", end: "21:00", want: 50000},
		{name: "slot at peak end is off-peak", start: "21:00", end: "22:00", want: 30000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Monday, so weekend never interferes.
			price, err := Quote(rates, rules, "2024-06-03", tt.start, tt.end, 60)
			require.NoError(t, err)
			assert.Equal(t, tt.want, price)
		})
	}
}

func TestQuoteMissingRatesFallThrough(t *testing.T) {
	baseOnly := models.RateTable{Base: 30000}
	rules := DefaultRules()
	rules.PeakStart = "18:00"
	rules.PeakEnd = "21:00"

	// Saturday inside the peak window, but with no peak or weekend rate
	// configured everything prices at base.
	price, err := Quote(baseOnly, rules, "2024-06-01", "18:00", "20:00", 60)
	require.NoError(t, err)
	assert.Equal(t, int64(60000), price)
}

func TestQuoteHalfHourGranularity(t *testing.T) {
	price, err := Quote(rates, DefaultRules(), "2024-06-03", "10:00", "11:30", 30)
	require.NoError(t, err)
	// Three half-hour slots at half the hourly base.
	assert.Equal(t, int64(3*15000), price)
}

func TestQuoteDeterministic(t *testing.T) {
	rules := Rules{
		WeekendDays: []time.Weekday{time.Saturday, time.Sunday},
		PeakStart:   "18:00",
		PeakEnd:     "21:00",
	}

	first, err := Quote(rates, rules, "2024-06-01", "16:00", "20:00", 60)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		again, err := Quote(rates, rules, "2024-06-01", "16:00", "20:00", 60)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestQuoteInvalidInput(t *testing.T) {
	_, err := Quote(rates, DefaultRules(), "2024-06-01", "12:00", "10:00", 60)
	assert.ErrorIs(t, err, timeslot.ErrInvalidRange)

	_, err = Quote(rates, DefaultRules(), "someday", "10:00", "12:00", 60)
	assert.ErrorIs(t, err, timeslot.ErrInvalidDate)
}
