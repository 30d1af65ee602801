package health

import (
	"encoding/json"
	"net/http"
	"runtime"

	"mercator-hq/throttle/pkg/config"
	"mercator-hq/throttle/pkg/limits/ratelimit"
)

// VersionInfo contains build and version information.
type VersionInfo struct {
	// Version is the semantic version (e.g., "1.0.0")
	Version string `json:"version"`

	// Commit is the git commit hash
	Commit string `json:"commit"`

	// BuildTime is when the binary was built
	BuildTime string `json:"build_time"`

	// GoVersion is the Go version used to build
	GoVersion string `json:"go_version"`
}

// LivenessHandler returns an HTTP handler for the liveness probe endpoint.
//
// Example response:
//
//	{
//	    "status": "ok",
//	    "timestamp": "2026-10-18T10:30:00Z"
//	}
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		writeStatus(w, r, http.StatusOK, c.CheckLiveness(r.Context()))
	}
}

// ReadinessHandler returns an HTTP handler for the readiness probe endpoint.
// It answers 503 Service Unavailable while the service is degraded.
//
// Example response (degraded):
//
//	{
//	    "status": "degraded",
//	    "limiters": {
//	        "api": {
//	            "status": "overloaded",
//	            "message": "limiter \"api\" overloaded for 3.2s",
//	            "limiter": {"limit": 100, "interval": "1s", "granted": 5120, "denied": 860,
//	                        "overloaded": true, "overloaded_for": "3.2s"}
//	        }
//	    },
//	    "components": {"storage": {"status": "ok", "duration_ms": 0.4}},
//	    "timestamp": "2026-10-18T10:30:00Z"
//	}
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		status := c.CheckReadiness(r.Context())

		code := http.StatusOK
		if status.Status != StatusReady {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, r, code, status)
	}
}

// VersionHandler returns an HTTP handler for the version information endpoint.
func VersionHandler(version, commit, buildTime string) http.HandlerFunc {
	info := VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		writeStatus(w, r, http.StatusOK, info)
	}
}

func writeStatus(w http.ResponseWriter, r *http.Request, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// Register mounts the liveness, readiness and version endpoints on mux at
// the configured paths. The version endpoint is served at /version. A
// non-nil limiter guards the two probes.
//
// Usage:
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	health.Register(mux, checker, cfg.Telemetry.Health, nil, "1.0.0", "abc123", "2026-10-18")
func Register(mux *http.ServeMux, checker *Checker, cfg config.HealthConfig, limiter *ratelimit.Limiter, version, commit, buildTime string) {
	mux.HandleFunc(cfg.LivenessPath, RateLimitedHandler(checker.LivenessHandler(), limiter))
	mux.HandleFunc(cfg.ReadinessPath, RateLimitedHandler(checker.ReadinessHandler(), limiter))
	mux.HandleFunc("/version", VersionHandler(version, commit, buildTime))
}

// RateLimitedHandler protects a probe endpoint from abuse. Requests that
// limiter denies get 429 Too Many Requests.
//
// Usage:
//
//	limiter, _ := ratelimit.New(10, time.Second)
//	handler := health.RateLimitedHandler(checker.ReadinessHandler(), limiter)
func RateLimitedHandler(handler http.HandlerFunc, limiter *ratelimit.Limiter) http.HandlerFunc {
	if limiter == nil {
		return handler
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.TryAcquireNow() {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		handler(w, r)
	}
}
