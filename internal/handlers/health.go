package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
)

func (h *Handler) HealthCheck(c *gin.Context) {
	status, code := "ok", 200

	if sqlDB, err := h.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		status, code = "degraded", 503
	}

	c.JSON(code, gin.H{
		"status":    status,
		"message":   "Taskhive is running",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
