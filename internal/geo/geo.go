// Package geo provides WGS-84 conversions between geodetic coordinates and
// the Earth-fixed Cartesian frame the viewer's camera reports positions in.
package geo

import "math"

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0             // semi-major axis (meters)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// Cartesian is a point in the Earth-fixed frame, in meters.
type Cartesian struct {
	X, Y, Z float64
}

// GeodeticPoint holds a geodetic position (latitude/longitude in degrees, altitude in meters).
type GeodeticPoint struct {
	LatDeg float64 `json:"lat_deg"`
	LonDeg float64 `json:"lon_deg"`
	AltM   float64 `json:"alt_m"`
}

// GeodeticToECEF converts geodetic coordinates to Earth-fixed Cartesian.
// Latitude and longitude are in degrees, altitude in meters above the WGS-84 ellipsoid.
func GeodeticToECEF(p GeodeticPoint) Cartesian {
	lat := p.LatDeg * math.Pi / 180.0
	lon := p.LonDeg * math.Pi / 180.0

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Radius of curvature in the prime vertical.
	N := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return Cartesian{
		X: (N + p.AltM) * cosLat * math.Cos(lon),
		Y: (N + p.AltM) * cosLat * math.Sin(lon),
		Z: (N*(1-wgs84E2) + p.AltM) * sinLat,
	}
}

// ECEFToGeodetic converts Earth-fixed coordinates (meters) to geodetic
// coordinates using the iterative Bowring method.
func ECEFToGeodetic(c Cartesian) GeodeticPoint {
	x, y, z := c.X, c.Y, c.Z
	lon := math.Atan2(y, x)

	p := math.Sqrt(x*x + y*y)

	// Initial estimate using Bowring's method.
	lat := math.Atan2(z, p*(1-wgs84E2))

	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		N := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(z+wgs84E2*N*sinLat, p)
	}

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	N := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - N
	} else {
		alt = math.Abs(z)/math.Abs(sinLat) - N*(1-wgs84E2)
	}

	return GeodeticPoint{
		LatDeg: lat * 180.0 / math.Pi,
		LonDeg: lon * 180.0 / math.Pi,
		AltM:   alt,
	}
}

// Rectangle is a cartographic extent in radians, ordered west, south, east, north.
type Rectangle struct {
	West, South, East, North float64
}

// RectangleFromDegrees builds a Rectangle from degree bounds.
func RectangleFromDegrees(west, south, east, north float64) Rectangle {
	return Rectangle{
		West:  west * math.Pi / 180.0,
		South: south * math.Pi / 180.0,
		East:  east * math.Pi / 180.0,
		North: north * math.Pi / 180.0,
	}
}

// IsZero reports whether r is the empty rectangle.
func (r Rectangle) IsZero() bool {
	return r == Rectangle{}
}

// Center returns the rectangle's centre in degrees at zero altitude.
// Rectangles crossing the antimeridian (East < West) are handled.
func (r Rectangle) Center() GeodeticPoint {
	east := r.East
	if east < r.West {
		east += 2 * math.Pi
	}
	lon := (r.West + east) / 2
	if lon > math.Pi {
		lon -= 2 * math.Pi
	}
	return GeodeticPoint{
		LatDeg: (r.South + r.North) / 2 * 180.0 / math.Pi,
		LonDeg: lon * 180.0 / math.Pi,
	}
}
