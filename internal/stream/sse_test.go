package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mahyar-osn/vis-tools/internal/timestep"
	"github.com/mahyar-osn/vis-tools/internal/visset"
)

var setStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func testSet() *visset.VisSet {
	return &visset.VisSet{
		Name:          "gulf",
		StartTime:     setStart,
		TimestepCount: 10,
	}
}

func testStore() *visset.Store {
	store := visset.NewStore()
	store.Set(testSet())
	return store
}

func testConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
	}
}

func TestNextMessage(t *testing.T) {
	vs := testSet()
	now := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

	msg, ok := nextMessage(vs, now, -1)
	if !ok {
		t.Fatal("expected a message for the first reading")
	}
	if msg.Type != "timestep" || msg.Timestep != 2 {
		t.Errorf("msg = %+v", msg)
	}
	if msg.T != "2024-01-03T12:00:00Z" {
		t.Errorf("t = %q", msg.T)
	}
	if msg.SliceStart != "2024-01-03T00:00:00Z" {
		t.Errorf("slice_start = %q", msg.SliceStart)
	}

	if _, ok := nextMessage(vs, now.Add(time.Hour), 2); ok {
		t.Error("unchanged timestep should not produce a message")
	}

	msg, ok = nextMessage(vs, now.Add(12*time.Hour), 2)
	if !ok || msg.Timestep != 3 {
		t.Errorf("day rollover: ok=%v msg=%+v", ok, msg)
	}

	// Past the end the index stays clamped, so no further messages.
	if _, ok := nextMessage(vs, setStart.AddDate(1, 0, 0), 9); ok {
		t.Error("clamped timestep should not produce a message")
	}
}

func TestMetadataMessageJSON(t *testing.T) {
	data, err := json.Marshal(buildMetadataMessage(testSet()))
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}

	if parsed["type"] != "metadata" {
		t.Errorf("type = %v, want metadata", parsed["type"])
	}
	if parsed["start_time"] != "2024-01-01T00:00:00Z" {
		t.Errorf("start_time = %v", parsed["start_time"])
	}
	if parsed["end_time"] != "2024-01-11T00:00:00Z" {
		t.Errorf("end_time = %v", parsed["end_time"])
	}
	if parsed["timestep_count"].(float64) != 10 {
		t.Errorf("timestep_count = %v, want 10", parsed["timestep_count"])
	}
}

// TestSSEMessageFormat verifies the SSE wire format: "data: {json}\n\n".
func TestSSEMessageFormat(t *testing.T) {
	clock := timestep.NewMockClock(time.Date(2024, 1, 5, 6, 0, 0, 0, time.UTC))
	handler := NewHandler(testStore(), clock, testConfig(), testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/timestep?step=1", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	ctx, cancel := context.WithTimeout(req.Context(), 200*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	handler.HandleTimestep(w, req)

	resp := w.Result()
	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", resp.Header.Get("Cache-Control"))
	}

	body := w.Body.String()
	var types []string
	var gotTimestep float64 = -1
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg); err != nil {
			t.Errorf("invalid JSON in SSE data line: %v", err)
			continue
		}
		types = append(types, msg["type"].(string))
		if msg["type"] == "timestep" {
			gotTimestep = msg["timestep"].(float64)
		}
	}

	if len(types) != 2 || types[0] != "metadata" || types[1] != "timestep" {
		t.Fatalf("message types = %v, want [metadata timestep]", types)
	}
	if gotTimestep != 4 {
		t.Errorf("timestep = %v, want 4", gotTimestep)
	}

	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") && !strings.HasPrefix(line, "retry: ") && line != ":" {
			t.Errorf("unexpected SSE line: %q", line)
		}
	}
}

func TestNoSetLoaded(t *testing.T) {
	handler := NewHandler(visset.NewStore(), timestep.RealClock{}, testConfig(), testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/timestep", nil)
	w := httptest.NewRecorder()
	handler.HandleTimestep(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// TestRateLimiting verifies per-IP concurrent stream limits.
func TestRateLimiting(t *testing.T) {
	limiter := newStreamLimiter(3, 0)

	for i := 0; i < 3; i++ {
		if !limiter.acquire("10.0.0.1") {
			t.Fatalf("acquire %d should succeed", i+1)
		}
	}

	if limiter.acquire("10.0.0.1") {
		t.Error("acquire beyond limit should fail")
	}

	if !limiter.acquire("10.0.0.2") {
		t.Error("different IP should not be rate limited")
	}

	limiter.release("10.0.0.1")
	if !limiter.acquire("10.0.0.1") {
		t.Error("acquire after release should succeed")
	}

	if c := limiter.count("10.0.0.1"); c != 3 {
		t.Errorf("count = %d, want 3", c)
	}
	if c := limiter.count("10.0.0.2"); c != 1 {
		t.Errorf("count = %d, want 1", c)
	}
}

func TestRateLimitingGlobalCap(t *testing.T) {
	limiter := newStreamLimiter(5, 2)
	if !limiter.acquire("a") || !limiter.acquire("b") {
		t.Fatal("first two acquires should succeed")
	}
	if limiter.acquire("c") {
		t.Error("global cap should reject third stream")
	}
}

// TestRateLimitingConcurrent verifies rate limiter thread safety.
func TestRateLimitingConcurrent(t *testing.T) {
	limiter := newStreamLimiter(100, 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.acquire("10.0.0.1") {
				defer limiter.release("10.0.0.1")
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if c := limiter.count("10.0.0.1"); c != 0 {
		t.Errorf("count after all released = %d, want 0", c)
	}
}

// TestRateLimitHTTPResponse verifies 429 response when limit exceeded.
func TestRateLimitHTTPResponse(t *testing.T) {
	handler := NewHandler(testStore(), timestep.RealClock{}, Config{
		MaxConcurrentPerIP: 1,
		KeepaliveInterval:  30 * time.Second,
	}, testLogger())

	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/api/v1/stream/timestep", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		ctx, cancel := context.WithCancel(req.Context())
		req = req.WithContext(ctx)
		w := httptest.NewRecorder()

		go func() {
			time.Sleep(50 * time.Millisecond)
			close(ready)
			time.Sleep(200 * time.Millisecond)
			cancel()
		}()

		handler.HandleTimestep(w, req)
	}()

	<-ready

	req := httptest.NewRequest("GET", "/api/v1/stream/timestep", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	w := httptest.NewRecorder()
	handler.HandleTimestep(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	<-done
}

// TestInvalidQueryParams verifies error responses for bad step values.
func TestInvalidQueryParams(t *testing.T) {
	handler := NewHandler(testStore(), timestep.RealClock{}, testConfig(), testLogger())

	tests := []struct {
		name  string
		query string
	}{
		{"bad step", "?step=0"},
		{"step too large", "?step=100"},
		{"step non-numeric", "?step=abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/stream/timestep"+tt.query, nil)
			req.RemoteAddr = "127.0.0.1:12345"
			w := httptest.NewRecorder()
			handler.HandleTimestep(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}
