// Package visset loads visualization set descriptions and answers the
// viewer-facing questions about them: which timestep a clock reading falls
// in and what region of the globe the set covers.
package visset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mahyar-osn/vis-tools/internal/geo"
	"github.com/mahyar-osn/vis-tools/internal/timestep"
)

// ErrInvalidSet is returned when a set description fails validation.
var ErrInvalidSet = errors.New("invalid visualization set")

// Load reads and validates a set description from a YAML file.
func Load(path string) (*VisSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening set file: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes and validates a YAML set description.
func Parse(r io.Reader) (*VisSet, error) {
	var vs VisSet
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&vs); err != nil {
		return nil, fmt.Errorf("decoding set: %w", err)
	}

	if err := vs.validate(); err != nil {
		return nil, err
	}

	for key, link := range vs.Links.CZML {
		if link.FriendlyName == "" {
			link.FriendlyName = FriendlyName(key)
		}
	}

	return &vs, nil
}

func (vs *VisSet) validate() error {
	if vs.TimestepCount < 1 {
		return fmt.Errorf("%w: timestep_count %d, must be >= 1", ErrInvalidSet, vs.TimestepCount)
	}
	if vs.TimestepCount > timestep.MaxTimestepCount {
		return fmt.Errorf("%w: timestep_count %d, must be <= %d", ErrInvalidSet, vs.TimestepCount, timestep.MaxTimestepCount)
	}
	if vs.StartTime.IsZero() {
		return fmt.Errorf("%w: start_time is required", ErrInvalidSet)
	}
	for key, link := range vs.Links.CZML {
		if link == nil || link.URL == "" {
			return fmt.Errorf("%w: czml link %q has no url", ErrInvalidSet, key)
		}
	}
	return nil
}

// BoundingRectangle returns the set's extent as a radian rectangle, or the
// zero rectangle when the set has no bounding box.
func (vs *VisSet) BoundingRectangle() geo.Rectangle {
	bb := vs.BoundingBox
	if bb == nil {
		return geo.RectangleFromDegrees(0, 0, 0, 0)
	}
	return geo.RectangleFromDegrees(bb.LongitudeMin, bb.LatitudeMin, bb.LongitudeMax, bb.LatitudeMax)
}

// TimeToTimestep returns the timestep containing t.
func (vs *VisSet) TimeToTimestep(t time.Time) (int, error) {
	return timestep.ForTime(vs.StartTime, vs.TimestepCount, t)
}

// ClockToTimestep returns the timestep for at, or for the clock's current
// time when at is nil.
func (vs *VisSet) ClockToTimestep(clock timestep.Clock, at *time.Time) (int, error) {
	if at != nil {
		return vs.TimeToTimestep(*at)
	}
	return timestep.Current(vs.StartTime, vs.TimestepCount, clock)
}

// EndTime returns the instant just past the set's last timestep.
func (vs *VisSet) EndTime() time.Time {
	return timestep.StartOf(vs.StartTime, vs.TimestepCount)
}

var camelBoundary = regexp.MustCompile(`([a-z])([A-Z][a-z])`)

// FriendlyName turns a layer key such as "stormTracks_2024" into a display
// name ("storm Tracks 2024"). Only the first underscore is replaced.
func FriendlyName(key string) string {
	return strings.Replace(camelBoundary.ReplaceAllString(key, "$1 $2"), "_", " ", 1)
}
