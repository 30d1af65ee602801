package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"mercator-hq/throttle/pkg/config"
	"mercator-hq/throttle/pkg/limits/ratelimit"
)

// newClockedLimiter returns a limiter reading time from a manual clock.
func newClockedLimiter(t *testing.T, limit int, interval time.Duration) (*ratelimit.Limiter, *ratelimit.ManualClock) {
	t.Helper()
	clock := ratelimit.NewManualClock(0)
	limiter, err := ratelimit.NewWithConfig(ratelimit.Config{
		Name:     "api",
		Limit:    limit,
		Interval: interval,
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("Failed to create limiter: %v", err)
	}
	return limiter, clock
}

// overloadFor drives limiter into an overload episode lasting d.
func overloadFor(limiter *ratelimit.Limiter, clock *ratelimit.ManualClock, d time.Duration) {
	for limiter.TryAcquireNow() {
	}
	clock.Advance(d)
}

// staticSource reports a fixed snapshot.
type staticSource struct {
	snap     ratelimit.Snapshot
	interval time.Duration
}

func (s staticSource) Snapshot() ratelimit.Snapshot { return s.snap }
func (s staticSource) Limit() int                   { return 10 }
func (s staticSource) Interval() time.Duration      { return s.interval }

// ===== Limiter evaluation =====

func TestEvaluateLimiter(t *testing.T) {
	tests := []struct {
		name              string
		setup             func(*ratelimit.Limiter, *ratelimit.ManualClock)
		wantStatus        string
		wantOverloadedFor string
	}{
		{
			name:       "idle",
			setup:      func(*ratelimit.Limiter, *ratelimit.ManualClock) {},
			wantStatus: StatusOK,
		},
		{
			name: "within limit",
			setup: func(l *ratelimit.Limiter, _ *ratelimit.ManualClock) {
				l.TryAcquireNow()
			},
			wantStatus: StatusOK,
		},
		{
			name: "denying within one interval",
			setup: func(l *ratelimit.Limiter, c *ratelimit.ManualClock) {
				overloadFor(l, c, 400*time.Millisecond)
			},
			wantStatus:        StatusThrottling,
			wantOverloadedFor: "400ms",
		},
		{
			name: "denying for exactly one interval",
			setup: func(l *ratelimit.Limiter, c *ratelimit.ManualClock) {
				overloadFor(l, c, time.Second)
			},
			wantStatus:        StatusThrottling,
			wantOverloadedFor: "1s",
		},
		{
			name: "denying for longer than one interval",
			setup: func(l *ratelimit.Limiter, c *ratelimit.ManualClock) {
				overloadFor(l, c, 2500*time.Millisecond)
			},
			wantStatus:        StatusOverloaded,
			wantOverloadedFor: "2.5s",
		},
		{
			name: "grant ends the episode",
			setup: func(l *ratelimit.Limiter, c *ratelimit.ManualClock) {
				overloadFor(l, c, 3*time.Second)
				l.TryAcquireNow()
			},
			wantStatus: StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter, clock := newClockedLimiter(t, 2, time.Second)
			tt.setup(limiter, clock)

			result := EvaluateLimiter(limiter)
			if result.Status != tt.wantStatus {
				t.Errorf("Expected status %q, got %q", tt.wantStatus, result.Status)
			}
			report := result.Limiter
			if report == nil {
				t.Fatal("Expected a limiter report")
			}
			if report.Limit != 2 || report.Interval != "1s" {
				t.Errorf("Expected 2 per 1s, got %d per %s", report.Limit, report.Interval)
			}
			if report.OverloadedFor != tt.wantOverloadedFor {
				t.Errorf("Expected overloaded_for %q, got %q", tt.wantOverloadedFor, report.OverloadedFor)
			}
			if report.Overloaded != (tt.wantOverloadedFor != "") {
				t.Errorf("Expected overloaded=%v, got %v", tt.wantOverloadedFor != "", report.Overloaded)
			}
		})
	}
}

func TestOverloadedFor(t *testing.T) {
	tests := []struct {
		name string
		snap ratelimit.Snapshot
		want time.Duration
	}{
		{"not overloaded", ratelimit.Snapshot{Time: 5e9, OverloadStart: 1e9}, 0},
		{"open episode", ratelimit.Snapshot{Time: 5e9, Overloaded: true, OverloadStart: 1e9}, 4 * time.Second},
		{"start after reading", ratelimit.Snapshot{Time: 1e9, Overloaded: true, OverloadStart: 2e9}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OverloadedFor(tt.snap); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

// ===== Readiness =====

func TestCheckReadiness_Limiters(t *testing.T) {
	checker := New(time.Second)
	busy, busyClock := newClockedLimiter(t, 1, time.Second)
	quiet, _ := newClockedLimiter(t, 1, time.Second)
	checker.RegisterLimiter("busy", busy)
	checker.RegisterLimiter("quiet", quiet)
	ctx := context.Background()

	overloadFor(busy, busyClock, 500*time.Millisecond)
	if status := checker.CheckReadiness(ctx); status.Status != StatusReady {
		t.Errorf("Expected ready while throttling, got %q", status.Status)
	}

	busyClock.Advance(time.Second)
	status := checker.CheckReadiness(ctx)
	if status.Status != StatusDegraded {
		t.Fatalf("Expected degraded, got %q", status.Status)
	}
	if got := status.Limiters["busy"]; got.Status != StatusOverloaded || !strings.Contains(got.Message, `"busy"`) {
		t.Errorf("Expected busy overloaded with its name in the message, got %+v", got)
	}
	if got := status.Limiters["quiet"].Status; got != StatusOK {
		t.Errorf("Expected quiet ok, got %q", got)
	}
	if len(status.Components) != 0 {
		t.Errorf("Expected no components, got %v", status.Components)
	}

	checker.UnregisterLimiter("busy")
	if status := checker.CheckReadiness(ctx); status.Status != StatusReady {
		t.Errorf("Expected ready once busy is gone, got %q", status.Status)
	}
}

func TestCheckReadiness_SkewedSnapshot(t *testing.T) {
	checker := New(time.Second)
	checker.RegisterLimiter("skewed", staticSource{
		snap:     ratelimit.Snapshot{Time: 1, Overloaded: true, OverloadStart: 10},
		interval: time.Second,
	})

	status := checker.CheckReadiness(context.Background())
	if status.Status != StatusReady {
		t.Errorf("Expected ready, got %q", status.Status)
	}
	if got := status.Limiters["skewed"].Status; got != StatusThrottling {
		t.Errorf("Expected throttling, got %q", got)
	}
}

func TestCheckReadiness_Components(t *testing.T) {
	tests := []struct {
		name        string
		check       CheckFunc
		cancel      bool
		wantStatus  string
		wantMessage string
	}{
		{
			name:       "healthy store",
			check:      func(context.Context) error { return nil },
			wantStatus: StatusOK,
		},
		{
			name:        "store error",
			check:       func(context.Context) error { return errors.New("database is locked") },
			wantStatus:  StatusUnhealthy,
			wantMessage: "database is locked",
		},
		{
			name: "store hangs",
			check: func(ctx context.Context) error {
				time.Sleep(200 * time.Millisecond)
				return nil
			},
			wantStatus:  StatusUnhealthy,
			wantMessage: ErrCheckTimeout.Error(),
		},
		{
			name: "request cancelled",
			check: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
			cancel:     true,
			wantStatus: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(50 * time.Millisecond)
			limiter, _ := newClockedLimiter(t, 1, time.Second)
			checker.RegisterLimiter("api", limiter)
			checker.RegisterComponent("storage", tt.check)

			ctx, cancel := context.WithCancel(context.Background())
			if tt.cancel {
				cancel()
			}
			defer cancel()

			status := checker.CheckReadiness(ctx)
			result := status.Components["storage"]
			if result.Status != tt.wantStatus {
				t.Errorf("Expected component status %q, got %q", tt.wantStatus, result.Status)
			}
			if tt.wantMessage != "" && result.Message != tt.wantMessage {
				t.Errorf("Expected message %q, got %q", tt.wantMessage, result.Message)
			}
			wantOverall := StatusReady
			if tt.wantStatus != StatusOK {
				wantOverall = StatusDegraded
			}
			if status.Status != wantOverall {
				t.Errorf("Expected overall %q, got %q", wantOverall, status.Status)
			}
		})
	}
}

func TestCheckReadiness_ComponentsRunConcurrently(t *testing.T) {
	checker := New(time.Second)
	for _, name := range []string{"storage", "archive", "exporter"} {
		checker.RegisterComponent(name, func(context.Context) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		})
	}

	start := time.Now()
	status := checker.CheckReadiness(context.Background())
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("Expected checks to overlap, took %s", elapsed)
	}
	if len(status.Components) != 3 {
		t.Errorf("Expected 3 component results, got %d", len(status.Components))
	}
	for name, result := range status.Components {
		if result.DurationMs < 100 {
			t.Errorf("Expected %s to take at least 100ms, got %vms", name, result.DurationMs)
		}
	}
}

func TestChecker_Registration(t *testing.T) {
	checker := New(0)
	if checker.timeout != 5*time.Second {
		t.Errorf("Expected default timeout 5s, got %s", checker.timeout)
	}

	limiter, _ := newClockedLimiter(t, 1, time.Second)
	checker.RegisterLimiter("web", limiter)
	checker.RegisterLimiter("api", limiter)
	checker.RegisterLimiter("api", limiter)
	checker.RegisterComponent("storage", func(context.Context) error { return nil })

	if got := checker.Limiters(); !reflect.DeepEqual(got, []string{"api", "web"}) {
		t.Errorf("Expected [api web], got %v", got)
	}
	if got := checker.Components(); !reflect.DeepEqual(got, []string{"storage"}) {
		t.Errorf("Expected [storage], got %v", got)
	}

	checker.UnregisterLimiter("web")
	checker.UnregisterComponent("storage")
	if got := checker.Limiters(); !reflect.DeepEqual(got, []string{"api"}) {
		t.Errorf("Expected [api], got %v", got)
	}
	if got := checker.Components(); len(got) != 0 {
		t.Errorf("Expected no components, got %v", got)
	}
}

func TestCheckLiveness_IgnoresOverload(t *testing.T) {
	checker := New(time.Second)
	limiter, clock := newClockedLimiter(t, 1, time.Second)
	checker.RegisterLimiter("api", limiter)
	overloadFor(limiter, clock, time.Minute)

	status := checker.CheckLiveness(context.Background())
	if status.Status != StatusOK {
		t.Errorf("Expected ok, got %q", status.Status)
	}
	if len(status.Limiters) != 0 || status.Timestamp.IsZero() {
		t.Errorf("Expected a bare liveness response, got %+v", status)
	}
}

// ===== HTTP =====

func TestReadinessHandler(t *testing.T) {
	checker := New(time.Second)
	limiter, clock := newClockedLimiter(t, 1, time.Second)
	checker.RegisterLimiter("api", limiter)
	handler := checker.ReadinessHandler()

	serve := func(method string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(method, "/health/ready", nil))
		return rec
	}

	if rec := serve(http.MethodGet); rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}

	overloadFor(limiter, clock, 3*time.Second)
	rec := serve(http.MethodGet)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	report := status.Limiters["api"].Limiter
	if status.Status != StatusDegraded || report == nil || report.OverloadedFor != "3s" || report.Denied == 0 {
		t.Errorf("Unexpected readiness body: %s", rec.Body.String())
	}

	if rec := serve(http.MethodHead); rec.Code != http.StatusServiceUnavailable || rec.Body.Len() != 0 {
		t.Errorf("Expected bodiless 503 for HEAD, got %d with %d bytes", rec.Code, rec.Body.Len())
	}
	if rec := serve(http.MethodPost); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	handler := New(time.Second).LivenessHandler()

	tests := []struct {
		method       string
		expectedCode int
	}{
		{http.MethodGet, http.StatusOK},
		{http.MethodHead, http.StatusOK},
		{http.MethodDelete, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(tt.method, "/health/live", nil))
			if rec.Code != tt.expectedCode {
				t.Errorf("Expected %d, got %d", tt.expectedCode, rec.Code)
			}
		})
	}
}

func TestVersionHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	VersionHandler("1.0.0", "abc123", "2026-10-18T00:00:00Z")(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var info VersionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if info.Version != "1.0.0" || info.Commit != "abc123" || info.GoVersion == "" {
		t.Errorf("Unexpected version info: %+v", info)
	}
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()
	checker := New(time.Second)
	probe, clock := newClockedLimiter(t, 3, time.Second)

	Register(mux, checker, config.HealthConfig{
		LivenessPath:  "/health/live",
		ReadinessPath: "/health/ready",
	}, probe, "1.0.0", "abc123", "2026-10-18")

	tests := []struct {
		path         string
		expectedCode int
	}{
		{"/health/live", http.StatusOK},
		{"/health/ready", http.StatusOK},
		{"/health/live", http.StatusOK},
		{"/health/ready", http.StatusTooManyRequests},
		{"/version", http.StatusOK},
		{"/health", http.StatusNotFound},
	}
	for i, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.expectedCode {
			t.Errorf("request %d %s: expected %d, got %d", i, tt.path, tt.expectedCode, rec.Code)
		}
	}

	// Permits expire one interval after they were granted.
	clock.Advance(time.Second)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 after the interval, got %d", rec.Code)
	}
}

func TestRateLimitedHandler_NilLimiter(t *testing.T) {
	handler := RateLimitedHandler(New(time.Second).LivenessHandler(), nil)
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
}
