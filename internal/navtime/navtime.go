// Package navtime implements calendar and GPS time conversions used across
// the navigation bus: epoch comparison, Rata Die day counting, and GPS
// week/seconds <-> Gregorian date/time conversion.
package navtime

import "math"

// Epoch is a Julian-type calendar timestamp.
type Epoch struct {
	Y int
	M int
	D int
	H int
	Min int
	S float64
}

// halfPrecisionSec is the comparison tolerance used by Compare, matching the
// half-precision-float resolution the bus tolerates for epoch equality.
const halfPrecisionSec = 1.0 / 32768

// Compare returns +1 if a is later than b, 0 if equal within halfPrecisionSec,
// -1 otherwise.
func Compare(a, b Epoch) int {
	da := daysBeforeEpoch(a)
	db := daysBeforeEpoch(b)
	sa := float64(da)*86400 + float64(a.H)*3600 + float64(a.Min)*60 + a.S
	sb := float64(db)*86400 + float64(b.H)*3600 + float64(b.Min)*60 + b.S
	d := sa - sb
	switch {
	case d > halfPrecisionSec:
		return 1
	case d < -halfPrecisionSec:
		return -1
	default:
		return 0
	}
}

// daysBeforeEpoch returns the number of days from 0001-01-01 to the date
// part of e (0 for 0001-01-01 itself: the Rata Die day number minus one).
func daysBeforeEpoch(e Epoch) int64 {
	y := e.Y
	m := e.M
	d := e.D
	// shift so that March is month 1, to push the Feb leap-day adjustment
	// to the end of the "year"
	if m <= 2 {
		y--
		m += 12
	}
	era := int64(y)
	if era < 0 {
		era = era - 399
	}
	era /= 400
	yoe := int64(y) - era*400                              // [0, 399]
	doy := (153*int64(m-3)+2)/5 + int64(d) - 1              // [0, 365]
	doe := yoe*365 + yoe/4 - yoe/100 + doy                  // [0, 146096]
	return era*146097 + doe - 306
}

// DaysBetweenDates calculates the number of days elapsed from epochFrom to
// epochTo, based on the Rata Die serial date.
func DaysBetweenDates(epochFrom, epochTo Epoch) int64 {
	return daysBeforeEpoch(epochTo) - daysBeforeEpoch(epochFrom)
}

// gpsEpoch is the GPS time origin, 1980-01-06 00:00:00.
var gpsEpoch = Epoch{Y: 1980, M: 1, D: 6}

// Gps2Epoch converts a GPS week and seconds-of-week into a Gregorian
// date/time (does not include leap seconds).
func Gps2Epoch(week uint, sec float64) Epoch {
	totalDays := daysBeforeEpoch(gpsEpoch) + int64(week)*7
	daySec := math.Mod(sec, 86400)
	if daySec < 0 {
		daySec += 86400
	}
	extraDays := int64(math.Floor(sec / 86400))
	y, m, d := fromDaysBeforeEpoch(totalDays + extraDays)
	h := int(daySec / 3600)
	min := int(math.Mod(daySec, 3600) / 60)
	s := math.Mod(daySec, 60)
	return Epoch{Y: y, M: m, D: d, H: h, Min: min, S: s}
}

// Epoch2Gps converts a Gregorian date/time into GPS week and seconds (does
// not include leap seconds).
func Epoch2Gps(e Epoch) (week uint, sec float64) {
	days := DaysBetweenDates(gpsEpoch, e)
	w := days / 7
	rem := days % 7
	week = uint(w)
	sec = float64(rem)*86400 + float64(e.H)*3600 + float64(e.Min)*60 + e.S
	return
}

func fromDaysBeforeEpoch(z int64) (y, m, d int) {
	z += 306
	era := z
	if era < 0 {
		era = era - 146096
	}
	era /= 146097
	doe := z - era*146097                                      // [0, 146096]
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365      // [0, 399]
	yy := yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100) // [0, 365]
	mp := (5*doy + 2) / 153                  // [0, 11]
	dd := doy - (153*mp+2)/5 + 1             // [1, 31]
	mm := mp + 3
	if mp >= 10 {
		mm = mp - 9
		yy++
	}
	return int(yy), int(mm), int(dd)
}
