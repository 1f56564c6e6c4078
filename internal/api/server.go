package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mahyar-osn/vis-tools/internal/auth"
	"github.com/mahyar-osn/vis-tools/internal/bookmark"
	"github.com/mahyar-osn/vis-tools/internal/camera"
	"github.com/mahyar-osn/vis-tools/internal/czml"
	"github.com/mahyar-osn/vis-tools/internal/health"
	"github.com/mahyar-osn/vis-tools/internal/metrics"
	"github.com/mahyar-osn/vis-tools/internal/stream"
	"github.com/mahyar-osn/vis-tools/internal/timestep"
	"github.com/mahyar-osn/vis-tools/internal/visset"
)

// Deps are the collaborators the HTTP handlers read and mutate.
type Deps struct {
	Sets         *visset.Store
	Layers       *czml.Manager
	Camera       camera.Camera
	Bookmarks    *bookmark.Store
	Clock        timestep.Clock
	Stream       *stream.Handler
	HomeAltitude float64 // meters above the set's centre for the home view
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	h := &handlers{deps: deps, logger: logger}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(h.ready))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/visset", h.getVisSet)
	mux.HandleFunc("GET /api/v1/timestep", h.getTimestep)

	mux.HandleFunc("GET /api/v1/layers", h.getLayers)
	mux.HandleFunc("PUT /api/v1/layers", h.putLayers)
	mux.HandleFunc("PUT /api/v1/layers/{name}", h.putLayer)

	mux.HandleFunc("GET /api/v1/camera", h.getCamera)
	mux.HandleFunc("PUT /api/v1/camera", h.putCamera)
	mux.HandleFunc("POST /api/v1/camera/home", h.postCameraHome)

	mux.HandleFunc("GET /api/v1/bookmarks", h.listBookmarks)
	mux.HandleFunc("POST /api/v1/bookmarks", h.createBookmark)
	mux.HandleFunc("GET /api/v1/bookmarks/{id}", h.getBookmark)
	mux.HandleFunc("DELETE /api/v1/bookmarks/{id}", h.deleteBookmark)
	mux.HandleFunc("POST /api/v1/bookmarks/{id}/apply", h.applyBookmark)

	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/timestep", deps.Stream.HandleTimestep)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
