package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vistools_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vistools_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	layerLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vistools_czml_layer_loads_total",
			Help: "CZML layer load attempts by result.",
		},
		[]string{"result"},
	)

	layersVisible = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vistools_czml_layers_visible",
		Help: "Number of CZML layers currently shown.",
	})

	timestepQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vistools_timestep_queries_total",
			Help: "Timestep lookups by time source.",
		},
		[]string{"source"},
	)

	cameraRestoresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vistools_camera_restores_total",
		Help: "Camera restore requests applied.",
	})

	bookmarkOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vistools_bookmark_operations_total",
			Help: "Bookmark store operations by kind.",
		},
		[]string{"op"},
	)

	visSetAgeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vistools_visset_age_seconds",
		Help: "Seconds since the active visualization set was loaded.",
	})

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vistools_stream_connections_total",
			Help: "SSE connection events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vistools_streams_active",
		Help: "Currently open SSE streams.",
	})

	streamMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vistools_stream_messages_total",
		Help: "SSE data messages sent.",
	})

	streamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vistools_stream_bytes_total",
		Help: "Bytes written to SSE streams.",
	})

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vistools_stream_errors_total",
			Help: "SSE errors by type.",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		layerLoadsTotal,
		layersVisible,
		timestepQueriesTotal,
		cameraRestoresTotal,
		bookmarkOpsTotal,
		visSetAgeSeconds,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncLayerLoads(result string) {
	layerLoadsTotal.WithLabelValues(result).Inc()
}

func SetLayersVisible(n int) {
	layersVisible.Set(float64(n))
}

func IncTimestepQueries(source string) {
	timestepQueriesTotal.WithLabelValues(source).Inc()
}

func IncCameraRestores() {
	cameraRestoresTotal.Inc()
}

func IncBookmarkOps(op string) {
	bookmarkOpsTotal.WithLabelValues(op).Inc()
}

func SetVisSetAge(seconds float64) {
	visSetAgeSeconds.Set(seconds)
}

func IncStreamConnections(event string) {
	streamConnectionsTotal.WithLabelValues(event).Inc()
}

func IncStreamsActive() {
	streamsActive.Inc()
}

func DecStreamsActive() {
	streamsActive.Dec()
}

func IncStreamMessages() {
	streamMessagesTotal.Inc()
}

func AddStreamBytes(n int64) {
	streamBytesTotal.Add(float64(n))
}

func IncStreamErrors(kind string) {
	streamErrorsTotal.WithLabelValues(kind).Inc()
}

// exactRoutes are reported under their own path label.
var exactRoutes = map[string]bool{
	"/healthz":                true,
	"/readyz":                 true,
	"/metrics":                true,
	"/":                       true,
	"/api/v1/visset":          true,
	"/api/v1/timestep":        true,
	"/api/v1/layers":          true,
	"/api/v1/camera":          true,
	"/api/v1/camera/home":     true,
	"/api/v1/bookmarks":       true,
	"/api/v1/stream/timestep": true,
}

// normalizeRoute collapses parameterized and unknown paths so the path label
// stays bounded.
func normalizeRoute(path string) string {
	if exactRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/layers/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/api/v1/layers/{name}"
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/bookmarks/"); ok && rest != "" {
		id, tail, _ := strings.Cut(rest, "/")
		if id == "" {
			return "other"
		}
		switch tail {
		case "":
			return "/api/v1/bookmarks/{id}"
		case "apply":
			return "/api/v1/bookmarks/{id}/apply"
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so SSE streams work through the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
