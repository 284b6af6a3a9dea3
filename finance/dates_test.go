package finance_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/mortgage-engine/finance"
)

// =============================================================================
// PAYMENT-DAY PINNING TESTS
// =============================================================================

func TestAddMonthsPinned_ClampsToShortMonth(t *testing.T) {
	// GIVEN: A due date of January 31 with payment day 31
	// WHEN: Advancing one month
	// THEN: The result is February 28 (29 in leap years), never March 3

	jan31 := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)
	feb := finance.AddMonthsPinned(jan31, 1, 31)
	assert.Equal(t, time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC), feb)

	jan31Leap := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	febLeap := finance.AddMonthsPinned(jan31Leap, 1, 31)
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), febLeap)
}

func TestAddMonthsPinned_RecoversPaymentDayAfterShortMonth(t *testing.T) {
	// GIVEN: A February due date clamped to the 28th, payment day 31
	// WHEN: Advancing one month
	// THEN: The due day snaps back to 31, not 28

	feb28 := time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC)
	mar := finance.AddMonthsPinned(feb28, 1, 31)
	assert.Equal(t, time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC), mar)
}

func TestAddMonthsPinned_YearRollover(t *testing.T) {
	// GIVEN: A November date
	// WHEN: Advancing three months
	// THEN: The year increments and the payment day holds

	nov := time.Date(2025, time.November, 15, 0, 0, 0, 0, time.UTC)
	feb := finance.AddMonthsPinned(nov, 3, 15)
	assert.Equal(t, time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC), feb)
}

func TestDaysBetween_IgnoresTimeOfDay(t *testing.T) {
	// GIVEN: Two timestamps on adjacent days with different clock times
	// WHEN: Computing whole days between them
	// THEN: The answer is day-granular

	a := time.Date(2025, time.March, 10, 23, 59, 0, 0, time.UTC)
	b := time.Date(2025, time.March, 11, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 1, finance.DaysBetween(a, b))
	assert.Equal(t, -1, finance.DaysBetween(b, a))
}

func TestFixedClock_Advance(t *testing.T) {
	start := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	clock := &finance.FixedClock{Current: start}
	assert.Equal(t, start, clock.Now())

	clock.Advance(48 * time.Hour)
	assert.Equal(t, start.Add(48*time.Hour), clock.Now())
}
