package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/mahyar-osn/vis-tools/internal/api"
	"github.com/mahyar-osn/vis-tools/internal/auth"
	"github.com/mahyar-osn/vis-tools/internal/bookmark"
	"github.com/mahyar-osn/vis-tools/internal/camera"
	"github.com/mahyar-osn/vis-tools/internal/czml"
	"github.com/mahyar-osn/vis-tools/internal/metrics"
	"github.com/mahyar-osn/vis-tools/internal/stream"
	"github.com/mahyar-osn/vis-tools/internal/timestep"
	"github.com/mahyar-osn/vis-tools/internal/visset"
)

// serveConfig holds the settings that are not owned by a single package.
type serveConfig struct {
	SetFile        string
	LegendDir      string
	BookmarkDB     string
	ControlOffset  int
	LoadWorkers    int
	FlightDuration time.Duration
	HomeAltitude   float64
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	addr := os.Getenv("VISTOOLS_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	cfg, err := loadServeConfig(logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	vs, err := visset.Load(cfg.SetFile)
	if err != nil {
		logger.Error("failed to load visualization set", "file", cfg.SetFile, "error", err)
		os.Exit(1)
	}
	sets := visset.NewStore()
	sets.Set(vs)
	logger.Info("loaded visualization set",
		"name", vs.Name,
		"start_time", vs.StartTime.Format(time.RFC3339),
		"timestep_count", vs.TimestepCount,
		"layers", len(vs.Links.CZML),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Layer URLs are resolved relative to the set file.
	fetcher := czml.NewFetcher(filepath.Dir(cfg.SetFile), logger)
	layers := czml.NewManager(vs, fetcher, czml.Config{
		LegendDir:     cfg.LegendDir,
		ControlOffset: cfg.ControlOffset,
		Concurrency:   cfg.LoadWorkers,
	}, logger)

	// Load layers in the background; /readyz reports 503 until they are in.
	go func() {
		if err := layers.Load(ctx); err != nil {
			logger.Error("failed to load czml layers", "error", err)
		}
	}()

	var bookmarks *bookmark.Store
	if cfg.BookmarkDB != "" {
		bookmarks, err = bookmark.Open(cfg.BookmarkDB)
		if err != nil {
			logger.Error("failed to open bookmark database", "path", cfg.BookmarkDB, "error", err)
			os.Exit(1)
		}
		defer bookmarks.Close()
	}

	clock := timestep.RealClock{}
	var home camera.Snapshot
	if rect := vs.BoundingRectangle(); !rect.IsZero() {
		home = camera.Home(rect, cfg.HomeAltitude)
	}
	rig := camera.NewRig(home, cfg.FlightDuration, clock)

	streamCfg := loadStreamConfig(logger)
	streamHandler := stream.NewHandler(sets, clock, streamCfg, logger)

	srv := api.NewServer(addr, logger, authCfg, api.Deps{
		Sets:         sets,
		Layers:       layers,
		Camera:       rig,
		Bookmarks:    bookmarks,
		Clock:        clock,
		Stream:       streamHandler,
		HomeAltitude: cfg.HomeAltitude,
	})

	// Background goroutine to update the set age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				age := sets.AgeSeconds()
				if age >= 0 {
					metrics.SetVisSetAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "bookmarks_enabled", bookmarks != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("VISTOOLS_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("VISTOOLS_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("VISTOOLS_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("VISTOOLS_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadServeConfig(logger *slog.Logger) (serveConfig, error) {
	cfg := serveConfig{
		BookmarkDB:     "/tmp/vistools/bookmarks.db",
		FlightDuration: 3 * time.Second,
		HomeAltitude:   2_000_000,
	}

	cfg.SetFile = os.Getenv("VISTOOLS_SET_FILE")
	if cfg.SetFile == "" {
		return cfg, errors.New("VISTOOLS_SET_FILE is required")
	}

	cfg.LegendDir = filepath.Dir(cfg.SetFile)
	if v := os.Getenv("VISTOOLS_LEGEND_DIR"); v != "" {
		cfg.LegendDir = v
	}

	// An explicitly empty value disables bookmarks.
	if v, ok := os.LookupEnv("VISTOOLS_BOOKMARK_DB"); ok {
		cfg.BookmarkDB = v
	}
	if cfg.BookmarkDB != "" && cfg.BookmarkDB != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.BookmarkDB), 0o755); err != nil {
			return cfg, err
		}
	}

	if v := os.Getenv("VISTOOLS_CONTROL_OFFSET"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			logger.Warn("invalid VISTOOLS_CONTROL_OFFSET value, using default", "value", v, "default", 0)
		} else {
			cfg.ControlOffset = n
		}
	}

	if v := os.Getenv("VISTOOLS_LOAD_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			logger.Warn("invalid VISTOOLS_LOAD_WORKERS value, using unlimited", "value", v)
		} else {
			cfg.LoadWorkers = n
		}
	}

	if v := os.Getenv("VISTOOLS_CAMERA_FLIGHT_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			logger.Warn("invalid VISTOOLS_CAMERA_FLIGHT_MS value, using default", "value", v, "default", 3000)
		} else {
			cfg.FlightDuration = time.Duration(n) * time.Millisecond
		}
	}

	if v := os.Getenv("VISTOOLS_HOME_ALTITUDE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			logger.Warn("invalid VISTOOLS_HOME_ALTITUDE value, using default", "value", v, "default", 2_000_000)
		} else {
			cfg.HomeAltitude = f
		}
	}

	logger.Info("serve config",
		"set_file", cfg.SetFile,
		"legend_dir", cfg.LegendDir,
		"bookmark_db", cfg.BookmarkDB,
		"control_offset", cfg.ControlOffset,
		"load_workers", cfg.LoadWorkers,
		"flight_ms", cfg.FlightDuration.Milliseconds(),
		"home_altitude_m", cfg.HomeAltitude,
	)

	return cfg, nil
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		MaxConcurrent:      1000,
		KeepaliveInterval:  30 * time.Second,
	}

	if v := os.Getenv("VISTOOLS_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid VISTOOLS_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("VISTOOLS_STREAM_MAX_TOTAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid VISTOOLS_STREAM_MAX_TOTAL value, using default", "value", v, "default", 1000)
		} else {
			cfg.MaxConcurrent = n
		}
	}

	if v := os.Getenv("VISTOOLS_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid VISTOOLS_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("VISTOOLS_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid VISTOOLS_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_concurrent", cfg.MaxConcurrent,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)

	return cfg
}
