package handler

import (
	"net/http"
	"time"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/service"
	"github.com/gin-gonic/gin"
)

// HealthHandler handles health and ready checks.
type HealthHandler struct {
	hub  *service.StreamHub
	svc  service.StreamServicer
	ping func() error
}

// NewHealthHandler creates a health handler. ping checks the database; nil skips it.
func NewHealthHandler(hub *service.StreamHub, svc service.StreamServicer, ping func() error) *HealthHandler {
	return &HealthHandler{hub: hub, svc: svc, ping: ping}
}

// Health responds to GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"service": "smart-village",
		"time":    time.Now().Unix(),
	}
	if h.hub != nil {
		body["hub"] = h.hub.Stats()
	}
	if h.svc != nil {
		body["workers"] = h.svc.WorkerStats()
	}
	c.JSON(http.StatusOK, body)
}

// Ready responds to GET /ready (for k8s readiness) with {"status": "ready"}
// after pinging the database.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.ping != nil {
		if err := h.ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
