package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"
)

// HealthChecker reports the availability of one dependency.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

type DatabaseHealthChecker struct {
	db *sql.DB
}

func NewDatabaseHealthChecker(db *sql.DB) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{db: db}
}

func (c *DatabaseHealthChecker) Name() string { return "database" }

func (c *DatabaseHealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

// HealthHandler runs every checker and reports aggregate readiness. Liveness
// (/health/live) always succeeds while the process is up.
func HealthHandler(checkers ...HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type checkResult struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		results := make(map[string]checkResult, len(checkers))
		healthy := true
		for _, c := range checkers {
			if err := c.Check(r.Context()); err != nil {
				results[c.Name()] = checkResult{Status: "unhealthy", Error: err.Error()}
				healthy = false
			} else {
				results[c.Name()] = checkResult{Status: "healthy"}
			}
		}

		status := "healthy"
		code := http.StatusOK
		if !healthy {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{
			"status": status,
			"checks": results,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}
