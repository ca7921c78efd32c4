package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"arc-framework/rsinit/internal/bootstrap"
	"arc-framework/rsinit/internal/replset"

	"github.com/gin-gonic/gin"
)

// initiatorService is the subset of *bootstrap.Initiator used by the HTTP
// handlers.
type initiatorService interface {
	Run(ctx context.Context) (*bootstrap.Result, error)
	ReportStatus(ctx context.Context) (*replset.Status, error)
	RunDeepHealth(ctx context.Context) map[string]bootstrap.ProbeResult
	LastResult() *bootstrap.Result
	IsReady() bool
	IsBootstrapInProgress() bool
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	initiator  initiatorService
	runTimeout time.Duration
}

// Bootstrap handles POST /api/v1/bootstrap.
//
// @Summary  Start a bootstrap run
// @Tags     bootstrap
// @Produce  json
// @Success  202 {object} map[string]string
// @Failure  409 {object} map[string]string
// @Router   /api/v1/bootstrap [post]
func (h *Handler) Bootstrap(c *gin.Context) {
	if h.initiator.IsBootstrapInProgress() {
		c.JSON(http.StatusConflict, gin.H{"status": bootstrap.StatusInProgress})
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.runTimeout) //nolint:contextcheck
		defer cancel()
		if _, err := h.initiator.Run(ctx); errors.Is(err, bootstrap.ErrBootstrapInProgress) {
			slog.Info("bootstrap request raced an active run")
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// LastBootstrap handles GET /api/v1/bootstrap.
//
// @Summary  Result of the most recent bootstrap run
// @Tags     bootstrap
// @Produce  json
// @Success  200 {object} bootstrap.Result
// @Failure  404 {object} map[string]string
// @Router   /api/v1/bootstrap [get]
func (h *Handler) LastBootstrap(c *gin.Context) {
	result := h.initiator.LastResult()
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "none"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Status handles GET /api/v1/status.
//
// @Summary  Live replica set status
// @Tags     replset
// @Produce  json
// @Success  200 {object} replset.Status
// @Failure  404 {object} map[string]string
// @Failure  503 {object} map[string]string
// @Router   /api/v1/status [get]
func (h *Handler) Status(c *gin.Context) {
	status, err := h.initiator.ReportStatus(c.Request.Context())
	switch {
	case errors.Is(err, replset.ErrNotInitialized):
		c.JSON(http.StatusNotFound, gin.H{"status": "not-initialized", "error": err.Error()})
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": bootstrap.StatusError, "error": err.Error()})
	default:
		c.JSON(http.StatusOK, status)
	}
}

// Health handles GET /health. It always returns 200; this is the liveness
// probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"mode":   "shallow",
	})
}

// DeepHealth handles GET /health/deep. It returns 200 only when every
// dependency probe is OK.
func (h *Handler) DeepHealth(c *gin.Context) {
	probes := h.initiator.RunDeepHealth(c.Request.Context())

	allOK := true
	for _, p := range probes {
		if !p.OK {
			allOK = false
			break
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !allOK {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": probes,
	})
}

// Ready handles GET /ready. It returns 200 only after a successful
// bootstrap; 503 otherwise.
func (h *Handler) Ready(c *gin.Context) {
	if h.initiator.IsReady() {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}
