package handler

import (
	"net/http"

	"asklegal/internal/database"
	"asklegal/internal/model"
	"asklegal/internal/service"

	"github.com/gin-gonic/gin"
)

type SystemHandler struct {
	configService *service.SystemConfigService
	db            *database.DB
}

func NewSystemHandler(configService *service.SystemConfigService, db *database.DB) *SystemHandler {
	return &SystemHandler{configService: configService, db: db}
}

func (h *SystemHandler) GetRetryConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.configService.GetRetryConfig())
}

func (h *SystemHandler) UpdateRetryConfig(c *gin.Context) {
	var req model.RetryConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	cfg, err := h.configService.UpdateRetryConfig(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Health reports process liveness and database reachability.
func (h *SystemHandler) Health(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": h.db.Driver})
}
