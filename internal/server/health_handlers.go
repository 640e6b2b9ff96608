package server

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus represents operational status for the /health endpoint.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Database  string                 `json:"database"`
	Backend   string                 `json:"backend"`
	Phase     string                 `json:"phase"`
	Stations  int                    `json:"stationCount"`
	Surfaces  int                    `json:"activeSurfaces"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// handleHealthCheck returns basic liveness + dependency checks.
func (rs *RadioServer) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(rs.startedAt).Round(time.Second).String(),
		Database:  "ok",
		Backend:   rs.player.BackendName(),
		Phase:     rs.player.State().Phase.String(),
		Stations:  rs.catalog.Len(),
		Surfaces:  len(rs.surfaces.Active()),
		Details:   make(map[string]interface{}),
	}

	if err := rs.checkDatabaseHealth(r.Context()); err != nil {
		health.Status = "unhealthy"
		health.Database = "error"
		health.Details["database_error"] = err.Error()
	}

	if rs.prober != nil {
		health.Details["probe_cache_entries"] = rs.prober.Cached()
	}

	if health.Stations == 0 {
		health.Details["catalog_warning"] = "no stations loaded"
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	rs.respondJSON(w, statusCode, health)
}

// checkDatabaseHealth pings the database with a short deadline.
func (rs *RadioServer) checkDatabaseHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rs.db.Ping(ctx)
}
