package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskhive-dev/taskhive/internal/apperrors"
	"github.com/taskhive-dev/taskhive/internal/authz"
	"github.com/taskhive-dev/taskhive/internal/dispatch"
	"github.com/taskhive-dev/taskhive/internal/models"
	"github.com/taskhive-dev/taskhive/internal/notifications"
	"github.com/taskhive-dev/taskhive/internal/types"
	"github.com/taskhive-dev/taskhive/internal/utils"
	"gorm.io/gorm"
)

type CreateProjectRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline"`
}

type UpdateProjectRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Deadline    *time.Time `json:"deadline"`
}

type InviteRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (h *Handler) CreateProject(ctx *gin.Context) {
	var body CreateProjectRequest

	if err := ctx.ShouldBindJSON(&body); err != nil {
		badRequest(ctx, err)
		return
	}

	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	title := strings.TrimSpace(body.Title)
	if title == "" {
		respondError(ctx, apperrors.InvalidState("Title is required"), "")
		return
	}

	project := models.Project{
		Title:       title,
		Description: body.Description,
		Deadline:    body.Deadline,
		OwnerID:     userID,
		Memberships: []models.ProjectMembership{
			{UserID: userID, Role: models.RoleOwner},
		},
	}

	if err := h.DB.WithContext(ctx.Request.Context()).Create(&project).Error; err != nil {
		respondError(ctx, err, "Failed to create project")
		return
	}

	ctx.JSON(http.StatusCreated, types.NewProjectResponse(project))
}

// ListProjects returns every project the user owns or belongs to.
func (h *Handler) ListProjects(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projects, err := h.projectsFor(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, "Failed to retrieve projects")
		return
	}

	ctx.JSON(http.StatusOK, projectResponses(projects))
}

// DashboardResponse summarizes every project the user can see.
type DashboardResponse struct {
	Projects     []types.ProjectResponse `json:"projects"`
	Tasks        []types.TaskResponse    `json:"tasks"`
	StatusCounts map[string]int64        `json:"statusCounts"`
}

// Dashboard returns the user's projects, their tasks and a task count per
// status.
func (h *Handler) Dashboard(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	reqCtx := ctx.Request.Context()

	projects, err := h.projectsFor(reqCtx, userID)
	if err != nil {
		respondError(ctx, err, "Failed to retrieve projects")
		return
	}

	response := DashboardResponse{
		Projects: projectResponses(projects),
		Tasks:    []types.TaskResponse{},
		StatusCounts: map[string]int64{
			models.TaskStatusToDo:       0,
			models.TaskStatusInProgress: 0,
			models.TaskStatusDone:       0,
		},
	}

	if len(projects) == 0 {
		ctx.JSON(http.StatusOK, response)
		return
	}

	ids := make([]uint, 0, len(projects))
	for _, project := range projects {
		ids = append(ids, project.ID)
	}

	db := h.DB.WithContext(reqCtx)

	var tasks []models.Task

	err = db.Where("project_id IN ?", ids).
		Order("created_at DESC").
		Find(&tasks).Error

	if err != nil {
		respondError(ctx, err, "Failed to retrieve tasks")
		return
	}

	for _, task := range tasks {
		response.Tasks = append(response.Tasks, types.NewTaskResponse(task))
	}

	var counts []struct {
		Status string
		Count  int64
	}

	err = db.Model(&models.Task{}).
		Select("status, COUNT(*) AS count").
		Where("project_id IN ?", ids).
		Group("status").
		Scan(&counts).Error

	if err != nil {
		respondError(ctx, err, "Failed to count tasks")
		return
	}

	for _, c := range counts {
		if _, ok := response.StatusCounts[c.Status]; ok {
			response.StatusCounts[c.Status] = c.Count
		}
	}

	ctx.JSON(http.StatusOK, response)
}

// projectsFor loads every project userID owns or belongs to, newest first.
func (h *Handler) projectsFor(ctx context.Context, userID uint) ([]models.Project, error) {
	db := h.DB.WithContext(ctx)
	memberOf := db.Model(&models.ProjectMembership{}).Select("project_id").Where("user_id = ?", userID)

	var projects []models.Project

	err := db.Preload("Memberships").
		Where("owner_id = ? OR id IN (?)", userID, memberOf).
		Order("created_at DESC").
		Find(&projects).Error

	return projects, err
}

func projectResponses(projects []models.Project) []types.ProjectResponse {
	response := make([]types.ProjectResponse, 0, len(projects))

	for _, project := range projects {
		response = append(response, types.NewProjectResponse(project))
	}

	return response
}

func (h *Handler) GetProject(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var project models.Project
	var found *models.Project

	err = h.DB.WithContext(ctx.Request.Context()).Preload("Memberships.User").First(&project, projectID).Error

	switch {
	case err == nil:
		found = &project
	case !errors.Is(err, gorm.ErrRecordNotFound):
		respondError(ctx, err, "Failed to retrieve project")
		return
	}

	if err := authz.CanViewProject(userID, found).Err("Project"); err != nil {
		respondError(ctx, err, "")
		return
	}

	ctx.JSON(http.StatusOK, types.NewProjectResponse(project))
}

func (h *Handler) UpdateProject(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body UpdateProjectRequest

	if err := ctx.ShouldBindJSON(&body); err != nil {
		badRequest(ctx, err)
		return
	}

	reqCtx := ctx.Request.Context()

	project, err := h.findProject(reqCtx, projectID)
	if err != nil {
		respondError(ctx, err, "Failed to retrieve project")
		return
	}

	if err := authz.CanMutateProject(userID, project).Err("Project"); err != nil {
		respondError(ctx, err, "")
		return
	}

	updates := make(map[string]interface{})

	if body.Title != nil {
		title := strings.TrimSpace(*body.Title)
		if title == "" {
			respondError(ctx, apperrors.InvalidState("Title cannot be empty"), "")
			return
		}
		updates["title"] = title
		project.Title = title
	}

	if body.Description != nil {
		updates["description"] = *body.Description
		project.Description = *body.Description
	}

	if body.Deadline != nil {
		updates["deadline"] = *body.Deadline
		project.Deadline = body.Deadline
	}

	if len(updates) == 0 {
		respondError(ctx, apperrors.InvalidState("No valid fields to update"), "")
		return
	}

	if err := h.DB.WithContext(reqCtx).Model(&models.Project{}).Where("id = ?", project.ID).Updates(updates).Error; err != nil {
		respondError(ctx, err, "Failed to update project")
		return
	}

	audience := project.AudienceIDs()
	notes := h.fanOut(reqCtx, audience, userID, project.ID, notifications.ProjectUpdated(*project))

	h.Dispatcher.Dispatch(reqCtx, dispatch.PlanProjectUpdated(*project, userID, audience, notes)...)

	ctx.JSON(http.StatusOK, types.NewProjectResponse(*project))
}

// DeleteProject removes the project together with its tasks, comments,
// memberships and notifications.
func (h *Handler) DeleteProject(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reqCtx := ctx.Request.Context()

	project, err := h.findProject(reqCtx, projectID)
	if err != nil {
		respondError(ctx, err, "Failed to retrieve project")
		return
	}

	if err := authz.CanMutateProject(userID, project).Err("Project"); err != nil {
		respondError(ctx, err, "")
		return
	}

	err = h.DB.WithContext(reqCtx).Transaction(func(tx *gorm.DB) error {
		taskIDs := tx.Unscoped().Model(&models.Task{}).Select("id").Where("project_id = ?", project.ID)

		if err := tx.Unscoped().Where("task_id IN (?)", taskIDs).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("project_id = ?", project.ID).Delete(&models.Task{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("project_id = ?", project.ID).Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("project_id = ?", project.ID).Delete(&models.ProjectMembership{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&models.Project{}, project.ID).Error
	})

	if err != nil {
		respondError(ctx, err, "Failed to delete project")
		return
	}

	h.Dispatcher.Dispatch(reqCtx, dispatch.PlanProjectDeleted(project.ID)...)

	ctx.Status(http.StatusNoContent)
}

// InviteMember sends a pending invitation to the user with the given email.
func (h *Handler) InviteMember(ctx *gin.Context) {
	sender, err := utils.GetCurrentUserModel(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body InviteRequest

	if err := ctx.ShouldBindJSON(&body); err != nil {
		badRequest(ctx, err)
		return
	}

	reqCtx := ctx.Request.Context()

	project, err := h.findProject(reqCtx, projectID)
	if err != nil {
		respondError(ctx, err, "Failed to retrieve project")
		return
	}

	if err := authz.CanMutateProject(sender.ID, project).Err("Project"); err != nil {
		respondError(ctx, err, "")
		return
	}

	var invitee models.User

	err = h.DB.WithContext(reqCtx).Where("email = ?", strings.ToLower(strings.TrimSpace(body.Email))).First(&invitee).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = apperrors.NotFound("User not found")
		}
		respondError(ctx, err, "Failed to look up user")
		return
	}

	invitation, err := h.Notifications.CreateInvitation(reqCtx, sender, invitee, *project)
	if err != nil {
		respondError(ctx, err, "Failed to send invitation")
		return
	}

	h.Dispatcher.Dispatch(reqCtx, dispatch.PlanInvitationSent(*invitation, *project)...)

	ctx.JSON(http.StatusCreated, types.NewNotificationResponse(*invitation))
}
