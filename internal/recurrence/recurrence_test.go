package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextOffsets(t *testing.T) {
	from := date(2024, time.March, 15)
	cases := []struct {
		kind Kind
		want time.Time
	}{
		{Daily, date(2024, time.March, 16)},
		{Weekly, date(2024, time.March, 22)},
		{Monthly, date(2024, time.April, 15)},
		{Quarterly, date(2024, time.June, 15)},
		{Yearly, date(2025, time.March, 15)},
	}
	for _, tc := range cases {
		got, err := Next(tc.kind, from)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, string(tc.kind))
	}
}

func TestMonthlyClampsToMonthEnd(t *testing.T) {
	got, err := Next(Monthly, date(2024, time.January, 31))
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.February, 29), got)

	got, err = Next(Monthly, date(2023, time.January, 31))
	require.NoError(t, err)
	assert.Equal(t, date(2023, time.February, 28), got)

	// each step clamps from its own anchor
	got, err = Next(Monthly, date(2024, time.February, 29))
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.March, 29), got)
}

func TestQuarterlyAndYearlyClamp(t *testing.T) {
	assert.Equal(t, date(2024, time.February, 29), MustNext(Quarterly, date(2023, time.November, 30)))
	assert.Equal(t, date(2025, time.February, 28), MustNext(Yearly, date(2024, time.February, 29)))
	assert.Equal(t, date(2025, time.January, 31), MustNext(Monthly, date(2024, time.December, 31)))
}

func TestNextKeepsClockAndLocation(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	from := time.Date(2024, time.May, 31, 9, 30, 0, 0, loc)
	got := MustNext(Monthly, from)
	assert.Equal(t, time.Date(2024, time.June, 30, 9, 30, 0, 0, loc), got)
}

func TestNextUnknownKind(t *testing.T) {
	_, err := Next(Kind("HOURLY"), date(2024, time.January, 1))
	require.Error(t, err)
	assert.Panics(t, func() { MustNext(Kind("HOURLY"), date(2024, time.January, 1)) })
}

func TestDaysBefore(t *testing.T) {
	assert.Equal(t, 2, DaysBefore(Weekly))
	assert.Equal(t, 7, DaysBefore(Monthly))
	assert.Equal(t, 14, DaysBefore(Quarterly))
	assert.Equal(t, 30, DaysBefore(Yearly))
	assert.Equal(t, 0, DaysBefore(Daily))
	assert.Equal(t, date(2024, time.March, 8), NoticeDate(Weekly, date(2024, time.March, 10)))
}

func TestKindSets(t *testing.T) {
	for _, k := range TaskFrequencies {
		assert.True(t, k.IsTaskFrequency())
	}
	for _, k := range ReminderRecurrences {
		assert.True(t, k.IsReminderRecurrence())
	}
	assert.False(t, Daily.IsTaskFrequency())
	assert.False(t, Quarterly.IsReminderRecurrence())
	assert.False(t, Kind("").IsValid())
}
