package geo

import (
	"math"
	"testing"
)

func magnitude(c Cartesian) float64 {
	return math.Sqrt(c.X*c.X + c.Y*c.Y + c.Z*c.Z)
}

func TestGeodeticToECEF_Magnitude(t *testing.T) {
	// WGS-84 equatorial radius is 6378137 m.
	eq := GeodeticToECEF(GeodeticPoint{})
	if math.Abs(magnitude(eq)-6378137.0) > 1.0 {
		t.Errorf("equatorial magnitude = %.1f m, want ~6378137 m", magnitude(eq))
	}

	// North pole: polar radius ~6356752 m.
	pole := GeodeticToECEF(GeodeticPoint{LatDeg: 90})
	if math.Abs(magnitude(pole)-6356752.3) > 1.0 {
		t.Errorf("polar magnitude = %.1f m, want ~6356752 m", magnitude(pole))
	}
}

func TestGeodeticToECEF_Altitude(t *testing.T) {
	c0 := GeodeticToECEF(GeodeticPoint{})
	c100 := GeodeticToECEF(GeodeticPoint{AltM: 100})

	if diff := magnitude(c100) - magnitude(c0); math.Abs(diff-100.0) > 0.01 {
		t.Errorf("altitude difference = %.3f m, want 100 m", diff)
	}
}

func TestECEFRoundTrip(t *testing.T) {
	points := []GeodeticPoint{
		{LatDeg: 0, LonDeg: 0, AltM: 0},
		{LatDeg: 40.7128, LonDeg: -74.006, AltM: 10},
		{LatDeg: -36.8485, LonDeg: 174.7633, AltM: 20_000_000},
		{LatDeg: 89.5, LonDeg: 45, AltM: 1000},
	}

	for _, p := range points {
		got := ECEFToGeodetic(GeodeticToECEF(p))
		if math.Abs(got.LatDeg-p.LatDeg) > 1e-6 || math.Abs(got.LonDeg-p.LonDeg) > 1e-6 {
			t.Errorf("round trip %+v: got lat=%.8f lon=%.8f", p, got.LatDeg, got.LonDeg)
		}
		if math.Abs(got.AltM-p.AltM) > 0.01 {
			t.Errorf("round trip %+v: got alt=%.4f", p, got.AltM)
		}
	}
}

func TestRectangleFromDegrees(t *testing.T) {
	r := RectangleFromDegrees(-180, -90, 180, 90)
	if r.West != -math.Pi || r.South != -math.Pi/2 || r.East != math.Pi || r.North != math.Pi/2 {
		t.Errorf("unexpected rectangle %+v", r)
	}
	if r.IsZero() {
		t.Error("world rectangle reported as zero")
	}
	if !RectangleFromDegrees(0, 0, 0, 0).IsZero() {
		t.Error("zero rectangle not reported as zero")
	}
}

func TestRectangleCenter(t *testing.T) {
	tests := []struct {
		name    string
		rect    Rectangle
		wantLat float64
		wantLon float64
	}{
		{"simple", RectangleFromDegrees(10, 20, 30, 40), 30, 20},
		{"antimeridian", RectangleFromDegrees(170, -10, -170, 10), 0, 180},
		{"antimeridian west side", RectangleFromDegrees(160, 0, -170, 10), 5, 175},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.rect.Center()
			if math.Abs(c.LatDeg-tt.wantLat) > 1e-9 {
				t.Errorf("lat = %f, want %f", c.LatDeg, tt.wantLat)
			}
			if math.Abs(math.Abs(c.LonDeg)-math.Abs(tt.wantLon)) > 1e-9 {
				t.Errorf("lon = %f, want %f", c.LonDeg, tt.wantLon)
			}
		})
	}
}
