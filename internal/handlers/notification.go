package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taskhive-dev/taskhive/internal/dispatch"
	"github.com/taskhive-dev/taskhive/internal/notifications"
	"github.com/taskhive-dev/taskhive/internal/types"
	"github.com/taskhive-dev/taskhive/internal/utils"
)

type ResolveInvitationRequest struct {
	Action string `json:"action" binding:"required"`
}

func (h *Handler) ListNotifications(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	list, err := h.Notifications.List(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, "Failed to retrieve notifications")
		return
	}

	response := make([]types.NotificationResponse, 0, len(list))

	for _, n := range list {
		response = append(response, types.NewNotificationResponse(n))
	}

	ctx.JSON(http.StatusOK, response)
}

func (h *Handler) UnreadCount(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	count, err := h.Notifications.UnreadCount(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, "Failed to count notifications")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *Handler) MarkNotificationRead(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	notificationID, err := utils.GetNotificationID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	notification, err := h.Notifications.MarkRead(ctx.Request.Context(), notificationID, userID)
	if err != nil {
		respondError(ctx, err, "Failed to update notification")
		return
	}

	ctx.JSON(http.StatusOK, types.NewNotificationResponse(*notification))
}

func (h *Handler) MarkAllNotificationsRead(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	updated, err := h.Notifications.MarkAllRead(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, "Failed to update notifications")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *Handler) DeleteNotification(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	notificationID, err := utils.GetNotificationID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Notifications.Delete(ctx.Request.Context(), notificationID, userID); err != nil {
		respondError(ctx, err, "Failed to delete notification")
		return
	}

	ctx.Status(http.StatusNoContent)
}

// ResolveInvitation accepts or declines an invitation and tells the inviter.
func (h *Handler) ResolveInvitation(ctx *gin.Context) {
	invitee, err := utils.GetCurrentUserModel(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	notificationID, err := utils.GetNotificationID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body ResolveInvitationRequest

	if err := ctx.ShouldBindJSON(&body); err != nil {
		badRequest(ctx, err)
		return
	}

	reqCtx := ctx.Request.Context()

	notification, err := h.Notifications.ResolveInvitation(reqCtx, notificationID, invitee.ID, notifications.Action(body.Action))
	if err != nil {
		respondError(ctx, err, "Failed to resolve invitation")
		return
	}

	project, err := h.findProject(reqCtx, notification.ProjectID)
	switch {
	case err != nil:
		log.Printf("Skipping invitation push for project %d: %v", notification.ProjectID, err)
	case project != nil:
		h.Dispatcher.Dispatch(reqCtx, dispatch.PlanInvitationResolved(*notification, *project, invitee)...)
	}

	ctx.JSON(http.StatusOK, types.NewNotificationResponse(*notification))
}
