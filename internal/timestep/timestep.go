// Package timestep maps continuous clock time onto the discrete daily
// timesteps of a visualization set.
//
// A set with N timesteps starting at S covers the days [S, S+N*24h). Any
// instant before S maps to timestep 0 and any instant past the last day maps
// to N-1, so callers always receive a usable slice index.
package timestep

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// MillisPerDay is the length of one timestep in milliseconds.
const MillisPerDay int64 = 86_400_000

// MaxTimestepCount is the largest timestep count whose end instant can be
// expressed as a time.Duration offset from the start.
const MaxTimestepCount = int(math.MaxInt64 / int64(24*time.Hour))

const secondsPerDay = 86_400

const (
	maxDuration time.Duration = math.MaxInt64
	minDuration time.Duration = math.MinInt64
)

// ErrInvalidArgument is returned when a precondition on the inputs is violated
// (timestep count below one, unset timestamps, missing clock).
var ErrInvalidArgument = errors.New("invalid argument")

// ForTime returns the timestep containing query for a set that starts at
// start and has count timesteps. The raw index is floor((query-start)/1 day)
// and is clamped into [0, count-1].
func ForTime(start time.Time, count int, query time.Time) (int, error) {
	if count < 1 {
		return 0, fmt.Errorf("%w: timestep count %d, must be >= 1", ErrInvalidArgument, count)
	}
	if start.IsZero() {
		return 0, fmt.Errorf("%w: start time is unset", ErrInvalidArgument)
	}
	if query.IsZero() {
		return 0, fmt.Errorf("%w: query time is unset", ErrInvalidArgument)
	}

	switch d := query.Sub(start); d {
	case maxDuration, minDuration:
		return clamp(farDays(start, query, d > 0), count), nil
	default:
		return clamp(floorDiv(d.Milliseconds(), MillisPerDay), count), nil
	}
}

// farDays counts whole days between instants too far apart for a
// time.Duration. Whole seconds are exact enough at that distance.
func farDays(start, query time.Time, after bool) int64 {
	secs := query.Unix() - start.Unix()
	switch {
	case after && secs < 0:
		return math.MaxInt64
	case !after && secs > 0:
		return math.MinInt64
	}
	return floorDiv(secs, secondsPerDay)
}

// Current reads the current time from clock and returns its timestep.
func Current(start time.Time, count int, clock Clock) (int, error) {
	if clock == nil {
		return 0, fmt.Errorf("%w: clock is nil", ErrInvalidArgument)
	}
	return ForTime(start, count, clock.Now())
}

// StartOf returns the instant at which timestep ts begins. ts is limited to
// [-MaxTimestepCount, MaxTimestepCount].
func StartOf(start time.Time, ts int) time.Time {
	ts = min(max(ts, -MaxTimestepCount), MaxTimestepCount)
	return start.Add(time.Duration(ts) * 24 * time.Hour)
}

// floorDiv divides rounding toward negative infinity, so 1 ms before the
// start is day -1 rather than day 0.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func clamp(raw int64, count int) int {
	if raw < 0 {
		return 0
	}
	if raw >= int64(count) {
		return count - 1
	}
	return int(raw)
}
