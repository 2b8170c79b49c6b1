// Package handlers exposes projects, tasks and notifications over HTTP.
// Every mutation follows the same order: load, authorize, mutate, record
// notifications, then dispatch realtime pushes.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taskhive-dev/taskhive/internal/apperrors"
	"github.com/taskhive-dev/taskhive/internal/authz"
	"github.com/taskhive-dev/taskhive/internal/dispatch"
	"github.com/taskhive-dev/taskhive/internal/models"
	"github.com/taskhive-dev/taskhive/internal/notifications"
	"github.com/taskhive-dev/taskhive/internal/realtime"
	"gorm.io/gorm"
)

type Handler struct {
	DB            *gorm.DB
	Notifications *notifications.Manager
	Dispatcher    *dispatch.Dispatcher
	Realtime      *realtime.Server
}

func New(database *gorm.DB, dispatcher *dispatch.Dispatcher, registry *realtime.Registry, allowedOrigins []string) *Handler {
	h := &Handler{
		DB:            database,
		Notifications: notifications.NewManager(database),
		Dispatcher:    dispatcher,
	}
	h.Realtime = realtime.NewServer(registry, allowedOrigins, h.authorizeProjectRoom)

	return h
}

func (h *Handler) authorizeProjectRoom(ctx context.Context, userID, projectID uint) error {
	project, err := h.findProject(ctx, projectID)
	if err != nil {
		return err
	}

	return authz.CanViewProject(userID, project).Err("Project")
}

// findProject returns nil without error when the project does not exist, so
// the result can be handed straight to authz.
func (h *Handler) findProject(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project

	err := h.DB.WithContext(ctx).Preload("Memberships").First(&project, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load project %d: %w", id, err)
	}

	return &project, nil
}

func (h *Handler) findTask(ctx context.Context, id uint) (*models.Task, error) {
	var task models.Task

	err := h.DB.WithContext(ctx).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		First(&task, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load task %d: %w", id, err)
	}

	return &task, nil
}

// fanOut records informational notifications for a change that has already
// been committed. A failure here must not undo the change, so it is only
// logged.
func (h *Handler) fanOut(ctx context.Context, audience []uint, actorID, projectID uint, tmpl notifications.Template) []models.Notification {
	notes, err := h.Notifications.FanOut(ctx, audience, actorID, projectID, tmpl)
	if err != nil {
		log.Printf("Failed to record %s notifications for project %d: %v", tmpl.Type, projectID, err)
		return nil
	}

	return notes
}

func respondError(ctx *gin.Context, err error, fallback string) {
	status := apperrors.HTTPStatus(err)

	if status == http.StatusInternalServerError {
		log.Printf("%s: %v", fallback, err)
	}

	ctx.JSON(status, gin.H{"error": apperrors.Message(err, fallback)})
}

func badRequest(ctx *gin.Context, err error) {
	log.Printf("Failed to bind JSON: %v", err)
	ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
}
