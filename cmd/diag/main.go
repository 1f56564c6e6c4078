// Command diag loads a visualization set and its layers and prints what a
// viewer would see: the timestep table, the current timestep and each layer.
//
//	diag path/to/set.yaml [RFC3339 time]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mahyar-osn/vis-tools/internal/camera"
	"github.com/mahyar-osn/vis-tools/internal/czml"
	"github.com/mahyar-osn/vis-tools/internal/timestep"
	"github.com/mahyar-osn/vis-tools/internal/visset"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: diag <set.yaml> [RFC3339 time]")
		os.Exit(2)
	}
	path := os.Args[1]

	at := time.Now().UTC()
	if len(os.Args) > 2 {
		t, err := time.Parse(time.RFC3339, os.Args[2])
		if err != nil {
			fmt.Println("ERROR parsing time:", err)
			os.Exit(1)
		}
		at = t
	}

	vs, err := visset.Load(path)
	if err != nil {
		fmt.Println("ERROR loading set:", err)
		os.Exit(1)
	}
	fmt.Printf("Set %q: %d timesteps from %s to %s\n",
		vs.Name, vs.TimestepCount, vs.StartTime.Format(time.RFC3339), vs.EndTime().Format(time.RFC3339))

	for ts := 0; ts < vs.TimestepCount; ts++ {
		start := timestep.StartOf(vs.StartTime, ts)
		fmt.Printf("  timestep %2d: %s (JD %.1f)\n", ts, start.Format("2006-01-02"), timestep.JulianDate(start))
	}

	ts, err := vs.TimeToTimestep(at)
	if err != nil {
		fmt.Println("ERROR computing timestep:", err)
		os.Exit(1)
	}
	fmt.Printf("Timestep at %s: %d\n", at.Format(time.RFC3339), ts)

	if rect := vs.BoundingRectangle(); !rect.IsZero() {
		c := rect.Center()
		home := camera.Home(rect, 2_000_000)
		fmt.Printf("Home view: lat=%.4f° lon=%.4f° ecef=(%.0f, %.0f, %.0f)\n",
			c.LatDeg, c.LonDeg, home.Position.X, home.Position.Y, home.Position.Z)
	}

	m := czml.NewManager(vs, czml.NewFetcher(filepath.Dir(path), logger), czml.Config{LegendDir: filepath.Dir(path)}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := m.Load(ctx); err != nil {
		fmt.Println("ERROR loading layers:", err)
		os.Exit(1)
	}

	for _, l := range m.Layers() {
		legend := "no legend"
		if l.Legend != nil {
			legend = fmt.Sprintf("legend %s %s %dx%d", l.Legend.Symbol, l.Legend.Color, l.Legend.Width, l.Legend.Height)
		}
		fmt.Printf("  %-20s show=%-5t packets=%-6d %s  %q\n", l.Key, l.Show, l.Packets, legend, l.Tooltip)
	}
	fmt.Printf("\nTotal layers loaded: %d\n", len(m.Layers()))
}
