package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pestscan-server/internal/utils"
)

// ModelStatus reports whether the detection model is usable.
type ModelStatus interface {
	Loaded() bool
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status      string            `json:"status"`
	ModelLoaded bool              `json:"model_loaded"`
	Version     string            `json:"version"`
	System      utils.SystemStats `json:"system"`
}

// SystemService serves health and metrics endpoints.
type SystemService struct {
	model     ModelStatus
	gatherer  prometheus.Gatherer
	version   string
	startedAt time.Time
}

func NewSystemService(model ModelStatus, gatherer prometheus.Gatherer, version string) *SystemService {
	return &SystemService{model: model, gatherer: gatherer, version: version, startedAt: time.Now()}
}

// Register adds /api/health to api and, when a gatherer is set, metricsPath
// to the engine root.
func (s *SystemService) Register(_ context.Context, r *Router, metricsPath string) {
	r.API.GET("/health", s.handleHealth)
	if s.gatherer != nil && metricsPath != "" {
		r.Engine.GET(metricsPath, gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}

// handleHealth 健康检查
// @Summary Service and model health
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (s *SystemService) handleHealth(c *gin.Context) {
	loaded := s.model != nil && s.model.Loaded()
	resp := HealthResponse{
		Status:      "healthy",
		ModelLoaded: loaded,
		Version:     s.version,
		System:      utils.CollectSystemStats(c.Request.Context(), s.startedAt),
	}
	if !loaded {
		resp.Status = "degraded"
	}
	RespondSuccess(c, http.StatusOK, resp, resp.Status)
}
