package http

import (
	"net/http"
	"time"

	"carelink/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports service health plus live hub load.
type HealthHandler struct {
	checker         *monitoring.HealthChecker
	connectionCount func() int
	activeCallCount func() int
}

func NewHealthHandler(checker *monitoring.HealthChecker, connectionCount, activeCallCount func() int) *HealthHandler {
	return &HealthHandler{
		checker:         checker,
		connectionCount: connectionCount,
		activeCallCount: activeCallCount,
	}
}

func (h *HealthHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
}

func (h *HealthHandler) Health(c *gin.Context) {
	status := h.checker.CheckAll(c.Request.Context())
	status.Timestamp = time.Now()
	status.ConnectedUsers = h.connectionCount()
	status.ActiveCalls = h.activeCallCount()

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
