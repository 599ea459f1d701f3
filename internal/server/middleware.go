package server

import (
	"net/http"
	"sync/atomic"
	"time"
)

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogging logs one line per request with method, path, status,
// and duration.
func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
		)
	})
}

// Telemetry counters, exposed for the serve command's periodic report.
type Telemetry struct {
	Requests atomic.Int64
	Errors   atomic.Int64
	InFlight atomic.Int64
}

var telemetryCounters Telemetry

// Counters returns the process-wide telemetry counters.
func Counters() *Telemetry { return &telemetryCounters }

// telemetry tracks request and error counts when enabled in config.
func (s *Server) telemetry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		telemetryCounters.Requests.Add(1)
		telemetryCounters.InFlight.Add(1)
		defer telemetryCounters.InFlight.Add(-1)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status >= 400 {
			telemetryCounters.Errors.Add(1)
		}
	})
}
