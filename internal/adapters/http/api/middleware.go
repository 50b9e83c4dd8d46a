package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/skillsync/pkg/logger"
	"github.com/okian/skillsync/pkg/metrics"
)

// errorTypes labels failed responses in the errors-by-component counter.
var errorTypes = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusNotFound:            "not_found",
	http.StatusMethodNotAllowed:    "method_not_allowed",
	http.StatusConflict:            "conflict",
	http.StatusTooManyRequests:     "backpressure",
	http.StatusInternalServerError: "internal_error",
}

func errorType(status int) string {
	if t, ok := errorTypes[status]; ok {
		return t
	}
	if status >= http.StatusInternalServerError {
		return "server_error"
	}
	return "client_error"
}

// endpointLabel turns a mux pattern such as "GET /users/{id}" into the
// bounded metrics label "/users/{id}".
func endpointLabel(pattern string) string {
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}

// route registers next under pattern, timing it and counting its outcome by
// route template rather than raw path.
func route(mux *http.ServeMux, log logger.Logger, pattern string, next http.HandlerFunc) {
	endpoint := endpointLabel(pattern)
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		took := time.Since(start)
		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, float64(took.Milliseconds()))
		if rec.status >= http.StatusBadRequest {
			metrics.RecordErrorByComponent("http", errorType(rec.status))
		}
		log.Debug(context.Background(), "request",
			logger.String("method", r.Method),
			logger.String("endpoint", endpoint),
			logger.Int("status", rec.status),
			logger.Duration("took", took),
		)
	})
}

// statusRecorder captures the status written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *statusRecorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }
