// Package camera captures and restores a 3D viewer camera pose as a plain,
// serializable Snapshot.
//
// Wire shape:
//
//	{"position":{"x":..,"y":..,"z":..},"orientation":{"heading":..,"pitch":..,"roll":..}}
//
// Position is Earth-fixed Cartesian in meters; orientation is in radians.
package camera

import (
	"errors"
	"fmt"
	"math"

	"github.com/mahyar-osn/vis-tools/internal/geo"
)

var (
	// ErrCollaboratorUnavailable is returned when no camera is attached.
	ErrCollaboratorUnavailable = errors.New("camera unavailable")

	// ErrInvalidSnapshot is returned when a snapshot has non-finite fields.
	ErrInvalidSnapshot = errors.New("invalid camera snapshot")
)

// Position is a world-fixed camera position in meters.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Orientation is a camera attitude in radians.
type Orientation struct {
	Heading float64 `json:"heading"`
	Pitch   float64 `json:"pitch"`
	Roll    float64 `json:"roll"`
}

// Snapshot is a serializable capture of a camera pose.
type Snapshot struct {
	Position    Position    `json:"position"`
	Orientation Orientation `json:"orientation"`
}

// Camera is the live viewer camera the adapter reads from and writes to.
// Whether FlyTo animates or jumps is up to the implementation.
type Camera interface {
	PositionWC() Position
	Orientation() Orientation
	FlyTo(dest Position, orientation Orientation)
}

// Capture reads the camera's current pose.
func Capture(cam Camera) (Snapshot, error) {
	if !available(cam) {
		return Snapshot{}, ErrCollaboratorUnavailable
	}
	return Snapshot{
		Position:    cam.PositionWC(),
		Orientation: cam.Orientation(),
	}, nil
}

// Restore asks the camera to move to the pose in s.
func Restore(cam Camera, s Snapshot) error {
	if !available(cam) {
		return ErrCollaboratorUnavailable
	}
	if err := s.Validate(); err != nil {
		return err
	}
	cam.FlyTo(s.Position, s.Orientation)
	return nil
}

// available reports whether cam can be used. Cameras that may be a typed
// nil inside the interface report it through Valid.
func available(cam Camera) bool {
	if cam == nil {
		return false
	}
	if v, ok := cam.(interface{ Valid() bool }); ok {
		return v.Valid()
	}
	return true
}

// Validate reports ErrInvalidSnapshot if any component is NaN or infinite.
func (s Snapshot) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"position.x", s.Position.X},
		{"position.y", s.Position.Y},
		{"position.z", s.Position.Z},
		{"orientation.heading", s.Orientation.Heading},
		{"orientation.pitch", s.Orientation.Pitch},
		{"orientation.roll", s.Orientation.Roll},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidSnapshot, f.name)
		}
	}
	return nil
}

// Geodetic returns the snapshot position as latitude/longitude/altitude.
func (s Snapshot) Geodetic() geo.GeodeticPoint {
	return geo.ECEFToGeodetic(geo.Cartesian{X: s.Position.X, Y: s.Position.Y, Z: s.Position.Z})
}

// Home returns a straight-down pose altitude meters above the centre of rect.
func Home(rect geo.Rectangle, altitude float64) Snapshot {
	center := rect.Center()
	center.AltM = altitude
	c := geo.GeodeticToECEF(center)
	return Snapshot{
		Position:    Position{X: c.X, Y: c.Y, Z: c.Z},
		Orientation: Orientation{Heading: 0, Pitch: -math.Pi / 2, Roll: 0},
	}
}
