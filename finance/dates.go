package finance

import "time"

// =============================================================================
// DUE-DATE ARITHMETIC - Payment-day pinning with month-end clamping
// =============================================================================

// DaysInMonth returns the number of calendar days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// PinToPaymentDay returns the date in year/month whose day is paymentDay,
// clamped to the last day of shorter months (Jan 31 -> Feb 28/29).
func PinToPaymentDay(year int, month time.Month, paymentDay int) time.Time {
	day := paymentDay
	if last := DaysInMonth(year, month); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// AddMonthsPinned advances a date by n calendar months, re-pinning to the
// payment day each time. Unlike time.AddDate, this never spills into the
// following month (Jan 31 + 1 month = Feb 28, not Mar 3).
func AddMonthsPinned(t time.Time, n int, paymentDay int) time.Time {
	year, month := t.Year(), t.Month()
	month += time.Month(n)
	for month > time.December {
		month -= 12
		year++
	}
	for month < time.January {
		month += 12
		year--
	}
	return PinToPaymentDay(year, month, paymentDay)
}

// DaysBetween returns whole days from a to b (negative if b precedes a).
func DaysBetween(a, b time.Time) int {
	a = Truncate(a)
	b = Truncate(b)
	return int(b.Sub(a).Hours() / 24)
}

// Truncate normalizes a time to midnight UTC. Schedule comparisons are
// day-granular.
func Truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two times fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
