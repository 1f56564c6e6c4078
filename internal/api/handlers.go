package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mahyar-osn/vis-tools/internal/bookmark"
	"github.com/mahyar-osn/vis-tools/internal/camera"
	"github.com/mahyar-osn/vis-tools/internal/czml"
	"github.com/mahyar-osn/vis-tools/internal/geo"
	"github.com/mahyar-osn/vis-tools/internal/httputil"
	"github.com/mahyar-osn/vis-tools/internal/metrics"
	"github.com/mahyar-osn/vis-tools/internal/timestep"
	"github.com/mahyar-osn/vis-tools/internal/visset"
)

const maxBodyBytes = 64 << 10

var errNoSet = errors.New("no visualization set loaded")

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

func (h *handlers) ready() error {
	if h.deps.Sets == nil || h.deps.Sets.Get() == nil {
		return errNoSet
	}
	if h.deps.Layers == nil || !h.deps.Layers.Loaded() {
		return errors.New("layers not loaded")
	}
	return nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, timestep.ErrInvalidArgument),
		errors.Is(err, camera.ErrInvalidSnapshot),
		errors.Is(err, bookmark.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, czml.ErrUnknownLayer),
		errors.Is(err, bookmark.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errNoSet),
		errors.Is(err, camera.ErrCollaboratorUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "component", "api", "path", r.URL.Path, "error", err)
		httputil.WriteError(w, status, "internal error")
		return
	}
	httputil.WriteError(w, status, err.Error())
}

func (h *handlers) set() (*visset.VisSet, error) {
	if h.deps.Sets == nil {
		return nil, errNoSet
	}
	vs := h.deps.Sets.Get()
	if vs == nil {
		return nil, errNoSet
	}
	return vs, nil
}

func (h *handlers) layers() (*czml.Manager, error) {
	if h.deps.Layers == nil || !h.deps.Layers.Loaded() {
		return nil, errNoSet
	}
	return h.deps.Layers, nil
}

func (h *handlers) clock() timestep.Clock {
	if h.deps.Clock == nil {
		return timestep.RealClock{}
	}
	return h.deps.Clock
}

// --- visualization set ---

type rectangleResponse struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

type visSetResponse struct {
	Name              string              `json:"name"`
	StartTime         string              `json:"start_time"`
	EndTime           string              `json:"end_time"`
	TimestepCount     int                 `json:"timestep_count"`
	BoundingBox       *visset.BoundingBox `json:"bounding_box,omitempty"`
	BoundingRectangle *rectangleResponse  `json:"bounding_rectangle,omitempty"`
	LayerCount        int                 `json:"layer_count"`
}

// GET /api/v1/visset
func (h *handlers) getVisSet(w http.ResponseWriter, r *http.Request) {
	vs, err := h.set()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := visSetResponse{
		Name:          vs.Name,
		StartTime:     vs.StartTime.UTC().Format(time.RFC3339),
		EndTime:       vs.EndTime().UTC().Format(time.RFC3339),
		TimestepCount: vs.TimestepCount,
		BoundingBox:   vs.BoundingBox,
		LayerCount:    len(vs.Links.CZML),
	}
	if rect := vs.BoundingRectangle(); !rect.IsZero() {
		resp.BoundingRectangle = &rectangleResponse{
			West: rect.West, South: rect.South, East: rect.East, North: rect.North,
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// --- timestep ---

type timestepResponse struct {
	Timestep   int     `json:"timestep"`
	T          string  `json:"t"`
	JulianDate float64 `json:"jd"`
	Source     string  `json:"source"`
	SliceStart string  `json:"slice_start"`
}

// GET /api/v1/timestep[?t=RFC3339|jd=float]
func (h *handlers) getTimestep(w http.ResponseWriter, r *http.Request) {
	vs, err := h.set()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	q := r.URL.Query()
	if q.Has("t") && q.Has("jd") {
		httputil.WriteError(w, http.StatusBadRequest, "t and jd are mutually exclusive")
		return
	}

	var (
		at     time.Time
		source string
		ts     int
	)
	switch {
	case q.Has("t"):
		at, err = time.Parse(time.RFC3339Nano, q.Get("t"))
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid t parameter, want RFC3339")
			return
		}
		source = "time"
		ts, err = vs.ClockToTimestep(nil, &at)
	case q.Has("jd"):
		jd, perr := strconv.ParseFloat(q.Get("jd"), 64)
		if perr != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid jd parameter")
			return
		}
		source = "julian"
		ts, err = timestep.ForJulianDate(timestep.JulianDate(vs.StartTime), vs.TimestepCount, jd)
		if err == nil {
			at = timestep.FromJulianDate(jd)
		}
	default:
		at = h.clock().Now()
		source = "clock"
		ts, err = vs.ClockToTimestep(nil, &at)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	metrics.IncTimestepQueries(source)

	httputil.WriteJSON(w, http.StatusOK, timestepResponse{
		Timestep:   ts,
		T:          at.UTC().Format(time.RFC3339Nano),
		JulianDate: timestep.JulianDate(at),
		Source:     source,
		SliceStart: timestep.StartOf(vs.StartTime, ts).UTC().Format(time.RFC3339),
	})
}

// --- layers ---

type layersResponse struct {
	Layers []czml.Layer `json:"layers"`
}

// GET /api/v1/layers
func (h *handlers) getLayers(w http.ResponseWriter, r *http.Request) {
	m, err := h.layers()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, layersResponse{Layers: m.Layers()})
}

type layerStateResponse struct {
	Applied int             `json:"applied"`
	State   map[string]bool `json:"state"`
}

// PUT /api/v1/layers with a {"<key>": bool} body.
func (h *handlers) putLayers(w http.ResponseWriter, r *http.Request) {
	m, err := h.layers()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var state map[string]bool
	if err := httputil.DecodeJSON(r, maxBodyBytes, &state); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid layer state: "+err.Error())
		return
	}
	applied := m.SetState(state)
	httputil.WriteJSON(w, http.StatusOK, layerStateResponse{Applied: applied, State: m.State()})
}

type showRequest struct {
	Show *bool `json:"show"`
}

// PUT /api/v1/layers/{name}
func (h *handlers) putLayer(w http.ResponseWriter, r *http.Request) {
	m, err := h.layers()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req showRequest
	if err := httputil.DecodeJSON(r, maxBodyBytes, &req); err != nil || req.Show == nil {
		httputil.WriteError(w, http.StatusBadRequest, `body must be {"show": true|false}`)
		return
	}
	key := r.PathValue("name")
	if err := m.SetShow(key, *req.Show); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"key": key, "show": *req.Show})
}

// --- camera ---

type cameraResponse struct {
	camera.Snapshot
	Geodetic geo.GeodeticPoint `json:"geodetic"`
	InFlight bool              `json:"in_flight"`
}

type flightReporter interface {
	InFlight() bool
}

func (h *handlers) cameraState(s camera.Snapshot) cameraResponse {
	resp := cameraResponse{Snapshot: s, Geodetic: s.Geodetic()}
	if fr, ok := h.deps.Camera.(flightReporter); ok {
		resp.InFlight = fr.InFlight()
	}
	return resp
}

// GET /api/v1/camera
func (h *handlers) getCamera(w http.ResponseWriter, r *http.Request) {
	s, err := camera.Capture(h.deps.Camera)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.cameraState(s))
}

// PUT /api/v1/camera with a snapshot body.
func (h *handlers) putCamera(w http.ResponseWriter, r *http.Request) {
	var s camera.Snapshot
	if err := httputil.DecodeJSON(r, maxBodyBytes, &s); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid camera snapshot: "+err.Error())
		return
	}
	h.restore(w, r, s)
}

// POST /api/v1/camera/home
func (h *handlers) postCameraHome(w http.ResponseWriter, r *http.Request) {
	vs, err := h.set()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rect := vs.BoundingRectangle()
	if rect.IsZero() {
		httputil.WriteError(w, http.StatusConflict, "visualization set has no bounding box")
		return
	}
	h.restore(w, r, camera.Home(rect, h.deps.HomeAltitude))
}

func (h *handlers) restore(w http.ResponseWriter, r *http.Request, s camera.Snapshot) {
	if err := camera.Restore(h.deps.Camera, s); err != nil {
		h.fail(w, r, err)
		return
	}
	metrics.IncCameraRestores()
	httputil.WriteJSON(w, http.StatusAccepted, h.cameraState(s))
}

// --- bookmarks ---

type bookmarksResponse struct {
	Bookmarks []*bookmark.Bookmark `json:"bookmarks"`
}

// GET /api/v1/bookmarks
func (h *handlers) listBookmarks(w http.ResponseWriter, r *http.Request) {
	if h.deps.Bookmarks == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "bookmarks disabled")
		return
	}
	list, err := h.deps.Bookmarks.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*bookmark.Bookmark{}
	}
	httputil.WriteJSON(w, http.StatusOK, bookmarksResponse{Bookmarks: list})
}

// createRequest names a bookmark. Omitted fields are captured from the
// current viewer state.
type createRequest struct {
	Name     string           `json:"name"`
	Camera   *camera.Snapshot `json:"camera,omitempty"`
	Layers   map[string]bool  `json:"layers,omitempty"`
	Timestep *int             `json:"timestep,omitempty"`
}

// POST /api/v1/bookmarks
func (h *handlers) createBookmark(w http.ResponseWriter, r *http.Request) {
	if h.deps.Bookmarks == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "bookmarks disabled")
		return
	}

	var req createRequest
	if err := httputil.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid bookmark: "+err.Error())
		return
	}

	b := &bookmark.Bookmark{Name: req.Name, Layers: req.Layers}

	if req.Camera != nil {
		b.Camera = *req.Camera
	} else {
		s, err := camera.Capture(h.deps.Camera)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		b.Camera = s
	}

	if b.Layers == nil && h.deps.Layers != nil && h.deps.Layers.Loaded() {
		b.Layers = h.deps.Layers.State()
	}

	vs, err := h.set()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Timestep != nil {
		if ts := *req.Timestep; ts < 0 || ts >= vs.TimestepCount {
			h.fail(w, r, fmt.Errorf("%w: timestep %d outside [0, %d]", bookmark.ErrInvalid, ts, vs.TimestepCount-1))
			return
		}
		b.Timestep = *req.Timestep
	} else {
		ts, err := vs.ClockToTimestep(h.clock(), nil)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		b.Timestep = ts
	}

	if err := h.deps.Bookmarks.Save(r.Context(), b); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("bookmark saved", "component", "api", "id", b.ID.String(), "name", b.Name)
	w.Header().Set("Location", "/api/v1/bookmarks/"+b.ID.String())
	httputil.WriteJSON(w, http.StatusCreated, b)
}

func (h *handlers) lookupBookmark(w http.ResponseWriter, r *http.Request) (*bookmark.Bookmark, bool) {
	if h.deps.Bookmarks == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "bookmarks disabled")
		return nil, false
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid bookmark id")
		return nil, false
	}
	b, err := h.deps.Bookmarks.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return b, true
}

// GET /api/v1/bookmarks/{id}
func (h *handlers) getBookmark(w http.ResponseWriter, r *http.Request) {
	b, ok := h.lookupBookmark(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

// DELETE /api/v1/bookmarks/{id}
func (h *handlers) deleteBookmark(w http.ResponseWriter, r *http.Request) {
	if h.deps.Bookmarks == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "bookmarks disabled")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid bookmark id")
		return
	}
	if err := h.deps.Bookmarks.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type applyResponse struct {
	ID            string          `json:"id"`
	Camera        cameraResponse  `json:"camera"`
	LayersApplied int             `json:"layers_applied"`
	State         map[string]bool `json:"state,omitempty"`
	Timestep      int             `json:"timestep"`
	SliceStart    string          `json:"slice_start,omitempty"`
}

// POST /api/v1/bookmarks/{id}/apply restores the bookmarked camera and
// layer visibility, and reports the bookmarked timestep.
func (h *handlers) applyBookmark(w http.ResponseWriter, r *http.Request) {
	b, ok := h.lookupBookmark(w, r)
	if !ok {
		return
	}

	if err := camera.Restore(h.deps.Camera, b.Camera); err != nil {
		h.fail(w, r, fmt.Errorf("restore camera: %w", err))
		return
	}
	metrics.IncCameraRestores()

	resp := applyResponse{
		ID:       b.ID.String(),
		Camera:   h.cameraState(b.Camera),
		Timestep: b.Timestep,
	}
	if m, err := h.layers(); err == nil {
		resp.LayersApplied = m.SetState(b.Layers)
		resp.State = m.State()
	}
	// Bookmarks saved against a longer set are clamped to this one.
	if vs, err := h.set(); err == nil {
		resp.Timestep = min(b.Timestep, vs.TimestepCount-1)
		resp.SliceStart = timestep.StartOf(vs.StartTime, resp.Timestep).UTC().Format(time.RFC3339)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
