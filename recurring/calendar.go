package recurring

import "time"

// =============================================================================
// CALENDAR ARITHMETIC - Pure date helpers for monthly recurrence
// =============================================================================

// MaxDayOfMonth is the largest nominal day a template may request.
const MaxDayOfMonth = 31

// NoonHour anchors every materialized date at 12:00 so that the calendar
// day survives timezone-boundary drift during serialization.
const NoonHour = 12

// DaysInMonth returns the number of days in month/year.
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AnchoredDate returns the date for day in month/year at the noon anchor.
// If day exceeds the number of days in the month, the last valid day is
// used instead (clamp-down, never roll-over): AnchoredDate(2025, Feb, 31)
// is Feb 28, not Mar 3.
func AnchoredDate(year int, month time.Month, day int) time.Time {
	if last := DaysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, NoonHour, 0, 0, 0, time.UTC)
}

// MonthBounds returns the first instant and the last instant (23:59:59) of
// the calendar month containing date.
func MonthBounds(date time.Time) (start, end time.Time) {
	start = time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location())
	end = time.Date(date.Year(), date.Month(), DaysInMonth(date.Year(), date.Month()),
		23, 59, 59, 0, date.Location())
	return start, end
}

// StepMonth advances date to nominalDay in the following month, re-applying
// the clamp. Stepping from the nominal day rather than the clamped date
// keeps month progression monotonic across clamp boundaries:
// Jan 31 -> Feb 28 -> Mar 31, not Mar 28.
func StepMonth(date time.Time, nominalDay int) time.Time {
	year, month := date.Year(), date.Month()
	if month == time.December {
		year, month = year+1, time.January
	} else {
		month++
	}
	return AnchoredDate(year, month, nominalDay)
}

// DateOnly strips the time of day, for calendar-day comparisons such as the
// delete cutoff ("is the effective date today or earlier?").
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameMonth reports whether a and b fall in the same calendar month.
func SameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
