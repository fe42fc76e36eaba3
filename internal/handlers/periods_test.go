package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodRange(t *testing.T) {
	loc := time.FixedZone("EAT", 3*3600)
	// Wednesday
	now := time.Date(2024, 5, 15, 10, 30, 0, 0, loc)

	cases := []struct {
		period   string
		from, to time.Time
	}{
		{"today", time.Date(2024, 5, 15, 0, 0, 0, 0, loc), time.Date(2024, 5, 16, 0, 0, 0, 0, loc)},
		{"yesterday", time.Date(2024, 5, 14, 0, 0, 0, 0, loc), time.Date(2024, 5, 15, 0, 0, 0, 0, loc)},
		{"this_week", time.Date(2024, 5, 13, 0, 0, 0, 0, loc), time.Date(2024, 5, 20, 0, 0, 0, 0, loc)},
		{"last_week", time.Date(2024, 5, 6, 0, 0, 0, 0, loc), time.Date(2024, 5, 13, 0, 0, 0, 0, loc)},
		{"this_month", time.Date(2024, 5, 1, 0, 0, 0, 0, loc), time.Date(2024, 6, 1, 0, 0, 0, 0, loc)},
		{"last_month", time.Date(2024, 4, 1, 0, 0, 0, 0, loc), time.Date(2024, 5, 1, 0, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		t.Run(tc.period, func(t *testing.T) {
			from, to, err := periodRange(tc.period, "", "", now, loc)
			require.NoError(t, err)
			assert.True(t, tc.from.Equal(from), "from: got %s", from)
			assert.True(t, tc.to.Equal(to), "to: got %s", to)
		})
	}
}

func TestPeriodRangeCustom(t *testing.T) {
	loc := time.UTC
	now := time.Now()

	_, _, err := periodRange("custom", "2024-01-01", "", now, loc)
	assert.Error(t, err)

	from, to, err := periodRange("custom", "2024-01-01", "2024-01-31", now, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, loc), to)

	_, _, err = periodRange("custom", "2024-02-01", "2024-01-31", now, loc)
	assert.Error(t, err)

	_, _, err = periodRange("fortnight", "", "", now, loc)
	assert.Error(t, err)
}

func TestStartOfWeekOnSunday(t *testing.T) {
	sunday := time.Date(2024, 5, 19, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), startOfWeek(sunday, time.UTC))
}

func TestDayLabelAndTruncate(t *testing.T) {
	today := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Today", dayLabel(today, today))
	assert.Equal(t, "Yesterday", dayLabel(today.AddDate(0, 0, -1), today))
	assert.Equal(t, "Mon", dayLabel(today.AddDate(0, 0, -2), today))

	assert.Equal(t, "Sugar", truncateName("Sugar", 20))
	assert.Equal(t, "Premium Basmati R...", truncateName("Premium Basmati Rice 5kg", 20))
}
