package czml

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// legendSize reads the pixel size of dir/<symbol>.png without decoding the
// whole image.
func legendSize(dir, symbol string) (image.Point, error) {
	f, err := os.Open(filepath.Join(dir, symbol+".png"))
	if err != nil {
		return image.Point{}, fmt.Errorf("opening legend symbol: %w", err)
	}
	defer f.Close()

	cfg, err := png.DecodeConfig(f)
	if err != nil {
		return image.Point{}, fmt.Errorf("decoding legend symbol: %w", err)
	}
	return image.Point{X: cfg.Width, Y: cfg.Height}, nil
}
