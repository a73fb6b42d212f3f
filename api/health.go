package api

import (
	"context"
	"net/http"
	"time"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

/* =========================
   HEALTH CHECK ENDPOINT
========================= */

// HandleHealthCheck handles health check requests
// GET /api/health
func (s *Server) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response := map[string]interface{}{
		"success": true,
		"message": "Health check completed",
	}

	for name, check := range s.HealthChecks {
		status := "ok"
		if err := check(ctx); err != nil {
			status = "error: " + err.Error()
		}
		response[name] = status
	}

	if s.Sessions != nil {
		response["sessions"] = s.Sessions.Len()
		response["uptime"] = s.Sessions.Uptime().Round(time.Second).String()
	}

	sendJSON(w, response)
}
