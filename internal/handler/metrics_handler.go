package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-scheduler/internal/models"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
	"github.com/noah-isme/studio-scheduler/pkg/response"
)

const readinessTimeout = 2 * time.Second

type metricsSource interface {
	Handler() http.Handler
	Snapshot() models.SystemMetrics
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// MetricsHandler serves the probes and the metrics endpoints.
type MetricsHandler struct {
	metrics metricsSource
	db      pinger
}

// NewMetricsHandler constructs a metrics handler; db backs the readiness probe.
func NewMetricsHandler(metrics metricsSource, db pinger) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, db: db}
}

// Prometheus serves the exposition format.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Summary godoc
// @Summary Process counters for allocations, promotions and cache use
// @Tags Metrics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /metrics/summary [get]
func (h *MetricsHandler) Summary(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}

// Health is the liveness probe.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready fails while the database is unreachable.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrNotReady.Code, appErrors.ErrNotReady.Status, "database unreachable"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
