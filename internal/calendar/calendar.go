// Package calendar computes when non-urgent customer prompts may be sent.
// The shop is closed on weekends, so anything landing there is pushed to
// Monday at opening time.
package calendar

import "time"

// DefaultOpenHour is the clock hour prompts shifted off a weekend land on.
const DefaultOpenHour = 10

// ShiftToBusinessWindow moves t off the weekend: Saturday advances two days,
// Sunday one day, both to openHour:00 in t's location. Weekdays pass through
// unchanged.
func ShiftToBusinessWindow(t time.Time, openHour int) time.Time {
	var days int
	switch t.Weekday() {
	case time.Saturday:
		days = 2
	case time.Sunday:
		days = 1
	default:
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day()+days, openHour, 0, 0, 0, t.Location())
}

// ScheduleAfterHours returns base+hours shifted into the business window.
func ScheduleAfterHours(base time.Time, hours, openHour int) time.Time {
	return ShiftToBusinessWindow(base.Add(time.Duration(hours)*time.Hour), openHour)
}
