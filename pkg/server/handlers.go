package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/throttle/pkg/limits"
	"mercator-hq/throttle/pkg/telemetry/logging"
)

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// limitersResponse is the body of GET /limits.
type limitersResponse struct {
	Limiters []limits.LimiterStatus `json:"limiters"`
}

// acquireResponse is the body of POST /limits/{name}/acquire.
type acquireResponse struct {
	Limiter string `json:"limiter"`
	Granted bool   `json:"granted"`
	WaitMs  int64  `json:"wait_ms"`
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, errType, message string) {
	writeJSON(w, code, errorResponse{Error: errorBody{Message: message, Type: errType}})
}

// handleListLimiters serves GET /limits.
func (s *Server) handleListLimiters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, limitersResponse{Limiters: s.manager.Status()})
}

// handleGetLimiter serves GET /limits/{name}.
func (s *Server) handleGetLimiter(w http.ResponseWriter, r *http.Request) {
	status, err := s.manager.LimiterStatus(r.PathValue("name"))
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleAcquire serves POST /limits/{name}/acquire.
//
// The optional timeout query parameter (a Go duration, e.g. "250ms") bounds
// the wait and is capped at the server write timeout. A denied request gets
// 429 with a Retry-After header of one limiter interval.
func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ctx := logging.WithLimiter(r.Context(), name)

	timeout, err := s.parseTimeout(r.URL.Query().Get("timeout"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	start := time.Now()
	granted, err := s.manager.Acquire(ctx, name, timeout)
	if err != nil {
		s.writeManagerError(w, err)
		return
	}

	if l, err := s.manager.Limiter(name); err == nil {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Limit()))
		w.Header().Set("X-RateLimit-Interval", l.Interval().String())
		if !granted {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(l.Interval().Seconds()))))
		}
	}

	code := http.StatusOK
	if !granted {
		code = http.StatusTooManyRequests
	}
	writeJSON(w, code, acquireResponse{
		Limiter: name,
		Granted: granted,
		WaitMs:  time.Since(start).Milliseconds(),
	})
}

func (s *Server) parseTimeout(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	timeout, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.New("timeout must be a duration such as 250ms")
	}
	if timeout < 0 {
		return 0, errors.New("timeout cannot be negative")
	}
	if ceiling := maxAcquireWait(s.config.Server.WriteTimeout); ceiling > 0 && timeout > ceiling {
		timeout = ceiling
	}
	return timeout, nil
}

// maxAcquireWait is the longest acquire wait that still leaves time to write
// the response before the write deadline: the write timeout less a tenth of
// it, with the margin capped at one second. Zero means no cap.
func maxAcquireWait(writeTimeout time.Duration) time.Duration {
	if writeTimeout <= 0 {
		return 0
	}
	margin := writeTimeout / 10
	if margin > time.Second {
		margin = time.Second
	}
	return writeTimeout - margin
}

func (s *Server) writeManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, limits.ErrUnknownLimiter):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, limits.ErrManagerClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		writeError(w, http.StatusServiceUnavailable, "cancelled", err.Error())
	}
}
