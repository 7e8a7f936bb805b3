package middleware

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics holds process counters. All fields are updated atomically.
type Metrics struct {
	RequestCount   int64
	ErrorCount     int64
	ScansSubmitted int64
	ScansCompleted int64
	ScansFailed    int64
	startTime      time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) ScanSubmitted() { atomic.AddInt64(&m.ScansSubmitted, 1) }
func (m *Metrics) ScanCompleted() { atomic.AddInt64(&m.ScansCompleted, 1) }
func (m *Metrics) ScanFailed()    { atomic.AddInt64(&m.ScansFailed, 1) }

// Middleware counts requests and server errors.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&m.RequestCount, 1)
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		if rw.statusCode >= 500 {
			atomic.AddInt64(&m.ErrorCount, 1)
		}
	})
}

// Handler exposes the counters as JSON.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"requests_total":  atomic.LoadInt64(&m.RequestCount),
			"errors_total":    atomic.LoadInt64(&m.ErrorCount),
			"scans_submitted": atomic.LoadInt64(&m.ScansSubmitted),
			"scans_completed": atomic.LoadInt64(&m.ScansCompleted),
			"scans_failed":    atomic.LoadInt64(&m.ScansFailed),
			"uptime_seconds":  int64(time.Since(m.startTime).Seconds()),
		})
	}
}
