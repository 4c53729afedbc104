package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/pkg/metrics"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// NewRouter wires health and metrics endpoints. Every check must pass for
// /health to answer 200.
func NewRouter(metrics *metrics.Metrics, started time.Time, checks map[string]Check) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		healthy := true
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(req.Context()); err != nil {
				healthy = false
				deps[name] = err.Error()
				continue
			}
			deps[name] = "ok"
		}

		status := http.StatusOK
		message := "apns service healthy"
		if !healthy {
			status = http.StatusServiceUnavailable
			message = "apns service degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": healthy,
			"message": message,
			"meta": map[string]interface{}{
				"uptime_seconds": int(time.Since(started).Seconds()),
				"timestamp":      time.Now().UTC(),
				"dependencies":   deps,
			},
		})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}
