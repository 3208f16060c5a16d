package week

import "time"

const daysPerWeek = 7

// Program holds the user-scoped program configuration. StartDate marks week 1, day 0.
// Every week number is derived from StartDate, so changing it invalidates
// previously computed numbers.
type Program struct {
	StartDate time.Time `json:"start_date"`
}

// civil truncates t to its calendar date in its own location, expressed as UTC midnight.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b (negative if b precedes a).
// Time of day and DST transitions never affect the result. Unix seconds keep
// the difference exact beyond the range of time.Duration.
func DaysBetween(a, b time.Time) int {
	return int((civil(b).Unix() - civil(a).Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// WeekNumberForDate returns the 1-based program week containing date.
// Dates before start clamp to week 1.
func WeekNumberForDate(date, start time.Time) int {
	diff := DaysBetween(start, date)
	if diff < 0 {
		return 1
	}
	return diff/daysPerWeek + 1
}

// DayOffsetForDate returns the day column (0..6) of date within its program week.
// Dates before start clamp to 0.
func DayOffsetForDate(date, start time.Time) int {
	diff := DaysBetween(start, date)
	if diff < 0 {
		return 0
	}
	return diff % daysPerWeek
}

// StartDateForWeek returns the first calendar day of week n.
func StartDateForWeek(start time.Time, n int) time.Time {
	if n < 1 {
		n = 1
	}
	return civil(start).AddDate(0, 0, (n-1)*daysPerWeek)
}

// DayIDForOffset maps a day offset to its column id. Out-of-range offsets clamp.
func DayIDForOffset(offset int) DayID {
	if offset < 0 {
		offset = 0
	}
	if offset >= daysPerWeek {
		offset = daysPerWeek - 1
	}
	return DayIDs[offset]
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"
