package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stwalsh4118/rentroll/internal/cache"
	"github.com/stwalsh4118/rentroll/internal/middleware"
)

const (
	// APIVersion is the current version of the API
	APIVersion = "0.1.0"
	// HealthCheckTimeout bounds the cache backend ping
	HealthCheckTimeout = 2 * time.Second
)

// Cache backend states reported by the readiness check.
const (
	CacheConnected    = "connected"
	CacheDisconnected = "disconnected"
	CacheNotChecked   = "not_checked"
)

// HealthHandler handles health check and readiness endpoints.
type HealthHandler struct {
	pinger       cache.Pinger
	startTime    time.Time
	env          string
	cacheBackend string
	aiEnabled    bool
}

// NewHealthHandler creates a new HealthHandler. c is pinged by the readiness
// check when it implements cache.Pinger.
func NewHealthHandler(c cache.Cache, cacheBackend, env string, aiEnabled bool) *HealthHandler {
	h := &HealthHandler{
		startTime:    time.Now(),
		env:          env,
		cacheBackend: cacheBackend,
		aiEnabled:    aiEnabled,
	}
	if p, ok := c.(cache.Pinger); ok {
		h.pinger = p
	}
	return h
}

// HealthResponse represents the basic health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status       string `json:"status"`
	CacheBackend string `json:"cache_backend"`
	Cache        string `json:"cache"`
}

// InfoResponse represents the API information response.
type InfoResponse struct {
	Version      string `json:"version"`
	Environment  string `json:"environment"`
	Uptime       string `json:"uptime"`
	CacheBackend string `json:"cache_backend"`
	AIEnabled    bool   `json:"ai_enabled"`
}

// Health handles GET /health.
// It is a liveness check and always returns 200 OK.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "healthy",
	})
}

// Ready handles GET /health/ready.
// Backends that can be pinged must answer within HealthCheckTimeout;
// the others are always ready.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.pinger == nil {
		c.JSON(http.StatusOK, ReadyResponse{
			Status:       "ready",
			CacheBackend: h.cacheBackend,
			Cache:        CacheNotChecked,
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), HealthCheckTimeout)
	defer cancel()

	if err := h.pinger.Ping(ctx); err != nil {
		if log := middleware.GetLogger(c); log != nil {
			log.Error("Cache health check failed", err, map[string]interface{}{
				"backend": h.cacheBackend,
				"timeout": HealthCheckTimeout.String(),
			})
		}

		c.JSON(http.StatusServiceUnavailable, ReadyResponse{
			Status:       "not_ready",
			CacheBackend: h.cacheBackend,
			Cache:        CacheDisconnected,
		})
		return
	}

	c.JSON(http.StatusOK, ReadyResponse{
		Status:       "ready",
		CacheBackend: h.cacheBackend,
		Cache:        CacheConnected,
	})
}

// Info handles GET /api/v1/info.
func (h *HealthHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, InfoResponse{
		Version:      APIVersion,
		Environment:  h.env,
		Uptime:       formatUptime(time.Since(h.startTime)),
		CacheBackend: h.cacheBackend,
		AIEnabled:    h.aiEnabled,
	})
}

// formatUptime formats a duration into a human-readable string.
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}
