package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShiftToBusinessWindow_WeekdayUnchanged(t *testing.T) {
	thu := time.Date(2026, 2, 5, 15, 30, 12, 0, time.UTC) // Thursday
	assert.Equal(t, thu, ShiftToBusinessWindow(thu, DefaultOpenHour))
}

func TestShiftToBusinessWindow_SaturdayToMonday(t *testing.T) {
	sat := time.Date(2026, 2, 7, 15, 0, 0, 0, time.UTC)
	got := ShiftToBusinessWindow(sat, DefaultOpenHour)
	assert.Equal(t, time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC), got)
	assert.Equal(t, time.Monday, got.Weekday())
}

func TestShiftToBusinessWindow_SundayToMonday(t *testing.T) {
	sun := time.Date(2026, 2, 8, 9, 45, 0, 0, time.UTC)
	got := ShiftToBusinessWindow(sun, DefaultOpenHour)
	assert.Equal(t, time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC), got)
}

func TestShiftToBusinessWindow_NeverLandsOnWeekend(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 14*24; i++ {
		in := start.Add(time.Duration(i) * time.Hour)
		out := ShiftToBusinessWindow(in, DefaultOpenHour)

		require.NotEqual(t, time.Saturday, out.Weekday())
		require.NotEqual(t, time.Sunday, out.Weekday())
		require.False(t, out.Before(in.Truncate(24*time.Hour)), "shift must not move backwards")
		if !out.Equal(in) {
			// A shift always lands on opening time exactly.
			require.Equal(t, DefaultOpenHour, out.Hour())
			require.Zero(t, out.Minute())
			require.Zero(t, out.Second())
		}
	}
}

func TestScheduleAfterHours_ThursdayPlus48LandsMondayMorning(t *testing.T) {
	thu := time.Date(2026, 2, 5, 15, 0, 0, 0, time.UTC) // Thursday 15:00
	got := ScheduleAfterHours(thu, 48, DefaultOpenHour)
	assert.Equal(t, time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC), got)
}

func TestScheduleAfterHours_StaysOnWeekday(t *testing.T) {
	mon := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	got := ScheduleAfterHours(mon, 36, DefaultOpenHour)
	assert.Equal(t, mon.Add(36*time.Hour), got)
}
