// Package stream implements Server-Sent Events (SSE) streaming of the
// active visualization set's current timestep. Clients connect via
// GET /api/v1/stream/timestep and are told whenever the clock crosses into
// a new daily slice.
//
// SSE message format:
//
//	data: {"type":"timestep","t":"2024-01-03T12:00:00Z","timestep":2,"slice_start":"2024-01-03T00:00:00Z"}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","name":"...","start_time":"...","end_time":"...","timestep_count":10}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent timeout.
package stream

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/mahyar-osn/vis-tools/internal/httputil"
	"github.com/mahyar-osn/vis-tools/internal/metrics"
	"github.com/mahyar-osn/vis-tools/internal/timestep"
	"github.com/mahyar-osn/vis-tools/internal/visset"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrent      int           // Max concurrent streams overall (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Honour X-Forwarded-For when limiting.
}

// Handler manages SSE streaming connections.
type Handler struct {
	store   *visset.Store
	clock   timestep.Clock
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(store *visset.Store, clock timestep.Clock, config Config, logger *slog.Logger) *Handler {
	return &Handler{
		store:   store,
		clock:   clock,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxConcurrent),
		logger:  logger,
	}
}

// HandleTimestep serves the SSE timestep stream.
// GET /api/v1/stream/timestep?step=5
func (h *Handler) HandleTimestep(w http.ResponseWriter, r *http.Request) {
	step := 5
	if v := r.URL.Query().Get("step"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid step parameter, must be 1-60")
			return
		}
		step = n
	}

	vs := h.store.Get()
	if vs == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no visualization set loaded")
		return
	}

	// Rate limiting: enforce concurrent stream limit per IP.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"component", "stream",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"component", "stream",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"step", step,
	)

	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"component", "stream",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's default WriteTimeout for this long-lived connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	if err := c.sendJSON(buildMetadataMessage(vs)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "component", "stream", "remote_ip", ip, "error", err)
		return
	}

	last := -1
	send := func() bool {
		msg, ok := nextMessage(vs, h.clock.Now(), last)
		if !ok {
			return true
		}
		if err := c.sendJSON(msg); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error", "component", "stream", "remote_ip", ip, "error", err)
			return false
		}
		last = msg.Timestep
		return true
	}

	if !send() {
		return
	}

	ticker := time.NewTicker(time.Duration(step) * time.Second)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			// A reloaded set restarts the stream so the client sees new metadata.
			if h.store.Get() != vs {
				h.logger.Info("visualization set changed, closing stream", "component", "stream", "remote_ip", ip)
				return
			}
			sentBefore := c.messagesSent
			if !send() {
				return
			}
			if c.messagesSent > sentBefore {
				keepaliveTicker.Reset(h.config.KeepaliveInterval)
			}

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "component", "stream", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// nextMessage returns the timestep message for now, and false if the
// timestep is unchanged from last.
func nextMessage(vs *visset.VisSet, now time.Time, last int) (timestepMessage, bool) {
	ts, err := vs.TimeToTimestep(now)
	if err != nil || ts == last {
		return timestepMessage{}, false
	}
	return timestepMessage{
		Type:       "timestep",
		T:          now.UTC().Format(time.RFC3339),
		Timestep:   ts,
		SliceStart: timestep.StartOf(vs.StartTime, ts).UTC().Format(time.RFC3339),
	}, true
}

func buildMetadataMessage(vs *visset.VisSet) metadataMessage {
	return metadataMessage{
		Type:          "metadata",
		Name:          vs.Name,
		StartTime:     vs.StartTime.UTC().Format(time.RFC3339),
		EndTime:       vs.EndTime().UTC().Format(time.RFC3339),
		TimestepCount: vs.TimestepCount,
	}
}

// SSE message payload types.

type metadataMessage struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	TimestepCount int    `json:"timestep_count"`
}

type timestepMessage struct {
	Type       string `json:"type"`
	T          string `json:"t"`
	Timestep   int    `json:"timestep"`
	SliceStart string `json:"slice_start"`
}
