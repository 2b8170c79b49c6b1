package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taskhive-dev/taskhive/internal/utils"
)

// WebSocket upgrades the request into a realtime session bound to the
// authenticated user. Rooms are joined afterwards through client intents.
func (h *Handler) WebSocket(c *gin.Context) {
	userID, err := utils.GetCurrentUserID(c)

	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	h.Realtime.ServeWS(c.Writer, c.Request, userID)
}
