package visset

import "time"

// VisSet describes a time-sliced visualization set: when it starts, how many
// daily timesteps it has, where it is, and which overlay layers it carries.
type VisSet struct {
	Name          string       `yaml:"name" json:"name"`
	StartTime     time.Time    `yaml:"start_time" json:"start_time"`
	TimestepCount int          `yaml:"timestep_count" json:"timestep_count"`
	BoundingBox   *BoundingBox `yaml:"bounding_box,omitempty" json:"bounding_box,omitempty"`
	Links         Links        `yaml:"links" json:"links"`
}

// BoundingBox is the set's geographic extent in degrees.
type BoundingBox struct {
	LongitudeMin float64 `yaml:"longitude_min" json:"longitude_min"`
	LatitudeMin  float64 `yaml:"latitude_min" json:"latitude_min"`
	LongitudeMax float64 `yaml:"longitude_max" json:"longitude_max"`
	LatitudeMax  float64 `yaml:"latitude_max" json:"latitude_max"`
}

// Links groups the external resources a set refers to.
type Links struct {
	CZML map[string]*CZMLLink `yaml:"czml" json:"czml"`
}

// CZMLLink is one overlay layer. Show is the layer's current visibility and
// is updated when the viewer toggles it.
type CZMLLink struct {
	URL          string `yaml:"url" json:"url"`
	FriendlyName string `yaml:"friendly_name,omitempty" json:"friendly_name"`
	Show         bool   `yaml:"show" json:"show"`
	LegendSymbol string `yaml:"legend_symbol,omitempty" json:"legend_symbol,omitempty"`
	LegendColor  string `yaml:"legend_color,omitempty" json:"legend_color,omitempty"`
}

// HasLegend reports whether the link names both a legend symbol and colour.
func (l *CZMLLink) HasLegend() bool {
	return l.LegendSymbol != "" && l.LegendColor != ""
}
