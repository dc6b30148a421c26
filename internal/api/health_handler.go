package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"creditflow/pkg/factory"
	"creditflow/pkg/logger"
)

type HealthHandler struct {
	factory factory.Factory
	logger  logger.Logger
}

// componentHealth tek bir bağımlılığın durumunu taşır. Status "disabled"
// olabilir; kapalı redis servisi sağlıksız saymaz.
type componentHealth struct {
	Status  string                 `json:"status"`
	Error   string                 `json:"error,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type HealthResponse struct {
	Status    string                     `json:"status"`
	Timestamp time.Time                  `json:"timestamp"`
	Services  map[string]componentHealth `json:"services"`
}

func NewHealthHandler(factory factory.Factory, logger logger.Logger) *HealthHandler {
	return &HealthHandler{
		factory: factory,
		logger:  logger,
	}
}

func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	services := map[string]componentHealth{
		"database": h.databaseHealth(),
		"redis":    h.redisHealth(r.Context()),
	}

	status := "healthy"
	for _, c := range services {
		if c.Status == "unhealthy" {
			status = "degraded"
			break
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Services:  services,
	})
}

func (h *HealthHandler) databaseHealth() componentHealth {
	db := h.factory.GetDB()
	if db == nil {
		return componentHealth{Status: "unhealthy", Error: "veritabanı bağlantısı yok"}
	}
	if err := db.Ping(); err != nil {
		return componentHealth{Status: "unhealthy", Error: err.Error()}
	}

	stats := db.Stats()
	return componentHealth{
		Status: "healthy",
		Details: map[string]interface{}{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
		},
	}
}

func (h *HealthHandler) redisHealth(ctx context.Context) componentHealth {
	client := h.factory.GetRedisClient()
	if client == nil {
		// Redis isteğe bağlıdır; kapalıyken servis sağlıklı sayılır.
		return componentHealth{Status: "disabled"}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return componentHealth{Status: "unhealthy", Error: err.Error()}
	}

	pool := client.PoolStats()
	return componentHealth{
		Status: "healthy",
		Details: map[string]interface{}{
			"hits":        pool.Hits,
			"misses":      pool.Misses,
			"total_conns": pool.TotalConns,
		},
	}
}

func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	issues := make([]string, 0)

	if db := h.factory.GetDB(); db == nil {
		issues = append(issues, "database: bağlantı yok")
	} else if err := db.Ping(); err != nil {
		issues = append(issues, "database: "+err.Error())
	}

	if client := h.factory.GetRedisClient(); client != nil {
		if err := client.Ping(r.Context()).Err(); err != nil {
			issues = append(issues, "redis: "+err.Error())
		}
	}

	response := map[string]interface{}{"timestamp": time.Now()}
	if len(issues) == 0 {
		response["status"] = "ready"
		writeJSON(w, http.StatusOK, response)
		return
	}

	response["status"] = "not_ready"
	response["issues"] = issues
	writeJSON(w, http.StatusServiceUnavailable, response)
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /health/live", h.LivenessCheck)
	mux.HandleFunc("GET /health/ready", h.ReadinessCheck)
}
