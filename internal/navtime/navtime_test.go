package navtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareWithinTolerance(t *testing.T) {
	a := Epoch{Y: 2024, M: 3, D: 1, H: 12, Min: 0, S: 0}
	b := Epoch{Y: 2024, M: 3, D: 1, H: 12, Min: 0, S: halfPrecisionSec / 2}
	assert.Equal(t, 0, Compare(a, b))
}

func TestCompareOrdering(t *testing.T) {
	earlier := Epoch{Y: 2024, M: 3, D: 1, H: 0, Min: 0, S: 0}
	later := Epoch{Y: 2024, M: 3, D: 2, H: 0, Min: 0, S: 0}
	assert.Equal(t, -1, Compare(earlier, later))
	assert.Equal(t, 1, Compare(later, earlier))
}

func TestDaysBetweenDatesLeapYear(t *testing.T) {
	// 2024 is a leap year: Feb 28 -> Mar 1 spans Feb 29.
	from := Epoch{Y: 2024, M: 2, D: 28}
	to := Epoch{Y: 2024, M: 3, D: 1}
	assert.Equal(t, int64(2), DaysBetweenDates(from, to))
}

func TestGps2EpochEpoch2GpsRoundTrip(t *testing.T) {
	cases := []struct {
		week uint
		sec  float64
	}{
		{0, 0},
		{1000, 12345.5},
		{2200, 86399.75},
	}
	for _, c := range cases {
		e := Gps2Epoch(c.week, c.sec)
		gotWeek, gotSec := Epoch2Gps(e)
		assert.Equal(t, c.week, gotWeek)
		assert.InDelta(t, c.sec, gotSec, 1e-6)
	}
}

func TestGps2EpochKnownDate(t *testing.T) {
	// GPS epoch itself: week 0, sec 0 -> 1980-01-06 00:00:00.
	e := Gps2Epoch(0, 0)
	assert.Equal(t, Epoch{Y: 1980, M: 1, D: 6, H: 0, Min: 0, S: 0}, e)
}
