package camera

import (
	"math"
	"sync"
	"time"

	"github.com/mahyar-osn/vis-tools/internal/timestep"
)

// Rig is an in-memory Camera. It holds the pose the server believes the
// viewer should show and animates FlyTo requests linearly over
// FlightDuration. Safe for concurrent use.
type Rig struct {
	mu     sync.Mutex
	clock  timestep.Clock
	flight time.Duration

	from, to Snapshot
	started  time.Time
}

// NewRig creates a Rig at the given initial pose. A zero flight duration
// makes FlyTo instantaneous.
func NewRig(initial Snapshot, flight time.Duration, clock timestep.Clock) *Rig {
	if clock == nil {
		clock = timestep.RealClock{}
	}
	return &Rig{
		clock:  clock,
		flight: flight,
		from:   initial,
		to:     initial,
	}
}

// Valid reports whether r is a usable rig.
func (r *Rig) Valid() bool {
	return r != nil
}

// PositionWC returns the current world-fixed position.
func (r *Rig) PositionWC() Position {
	return r.current().Position
}

// Orientation returns the current heading, pitch and roll.
func (r *Rig) Orientation() Orientation {
	return r.current().Orientation
}

// FlyTo starts a flight from the current pose to dest.
func (r *Rig) FlyTo(dest Position, orientation Orientation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	r.from = r.poseAt(now)
	r.to = Snapshot{Position: dest, Orientation: orientation}
	r.started = now
}

// InFlight reports whether a flight is still animating.
func (r *Rig) InFlight() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress(r.clock.Now()) < 1
}

// Destination returns the pose the rig is flying to (or resting at).
func (r *Rig) Destination() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.to
}

func (r *Rig) current() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.poseAt(r.clock.Now())
}

// progress returns the flight fraction in [0, 1]. Caller must hold mu.
func (r *Rig) progress(now time.Time) float64 {
	if r.flight <= 0 || r.started.IsZero() {
		return 1
	}
	f := float64(now.Sub(r.started)) / float64(r.flight)
	return math.Max(0, math.Min(1, f))
}

// poseAt interpolates the pose at now. Caller must hold mu.
func (r *Rig) poseAt(now time.Time) Snapshot {
	f := r.progress(now)
	if f >= 1 {
		return r.to
	}
	return Snapshot{
		Position: Position{
			X: lerp(r.from.Position.X, r.to.Position.X, f),
			Y: lerp(r.from.Position.Y, r.to.Position.Y, f),
			Z: lerp(r.from.Position.Z, r.to.Position.Z, f),
		},
		Orientation: Orientation{
			Heading: lerpAngle(r.from.Orientation.Heading, r.to.Orientation.Heading, f),
			Pitch:   lerp(r.from.Orientation.Pitch, r.to.Orientation.Pitch, f),
			Roll:    lerpAngle(r.from.Orientation.Roll, r.to.Orientation.Roll, f),
		},
	}
}

func lerp(a, b, f float64) float64 {
	return a + (b-a)*f
}

// lerpAngle interpolates along the shorter arc.
func lerpAngle(a, b, f float64) float64 {
	d := math.Remainder(b-a, 2*math.Pi)
	return a + d*f
}
