package timestep

import (
	"fmt"
	"math"
	"time"
)

// unixEpochJD is the Julian Date of 1970-01-01T00:00:00Z.
const unixEpochJD = 2440587.5

// JulianDate converts a time.Time (UTC) to Julian Date.
// Uses the standard astronomical algorithm valid for dates after March 1, 4801 BC.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	h := float64(t.Hour())
	min := float64(t.Minute())
	s := float64(t.Second()) + float64(t.Nanosecond())/1e9

	// Treat Jan/Feb as months 13/14 of the previous year.
	if m <= 2 {
		y -= 1
		m += 12
	}

	A := math.Floor(y / 100)
	B := 2 - A + math.Floor(A/4)

	jd := math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + B - 1524.5
	jd += (h + min/60.0 + s/3600.0) / 24.0

	return jd
}

// int64 millisecond offsets must lie strictly inside (-2^63, 2^63).
const julianMillisLimit = 1 << 63

// FromJulianDate converts a Julian Date to a UTC time, rounded to the
// millisecond like the viewer's own date conversion. Dates beyond the int64
// millisecond range saturate.
func FromJulianDate(jd float64) time.Time {
	ms, ok := julianMillis(jd)
	if !ok {
		if jd > unixEpochJD {
			ms = math.MaxInt64
		} else {
			ms = math.MinInt64
		}
	}
	return time.UnixMilli(ms).UTC()
}

// ForJulianDate is ForTime for clocks that report Julian Dates.
func ForJulianDate(startJD float64, count int, jd float64) (int, error) {
	if !finite(startJD) || !finite(jd) {
		return 0, fmt.Errorf("%w: julian date is not finite", ErrInvalidArgument)
	}
	if _, ok := julianMillis(startJD); !ok {
		return 0, fmt.Errorf("%w: julian date %g out of range", ErrInvalidArgument, startJD)
	}
	if _, ok := julianMillis(jd); !ok {
		return 0, fmt.Errorf("%w: julian date %g out of range", ErrInvalidArgument, jd)
	}
	return ForTime(FromJulianDate(startJD), count, FromJulianDate(jd))
}

// julianMillis returns jd as Unix milliseconds, or false when it is not
// finite or does not fit in an int64.
func julianMillis(jd float64) (int64, bool) {
	ms := math.Round((jd - unixEpochJD) * float64(MillisPerDay))
	if !finite(ms) || ms <= -julianMillisLimit || ms >= julianMillisLimit {
		return 0, false
	}
	return int64(ms), true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
