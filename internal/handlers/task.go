package handlers

import (
	"context"
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

type CreateTaskRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	AssigneeID  *uint      `json:"assignee_id"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
}

// UpdateTaskRequest leaves absent fields untouched. An assignee_id of 0
// unassigns the task.
type UpdateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	AssigneeID  *uint      `json:"assignee_id"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
}

type CommentRequest struct {
	Text string `json:"text"`
}

func (h *Handler) CreateTask(ctx *gin.Context) {
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

	var body CreateTaskRequest

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

	if err := authz.CanViewProject(userID, project).Err("Project"); err != nil {
		respondError(ctx, err, "")
		return
	}

	task := models.Task{
		ProjectID:   project.ID,
		Title:       strings.TrimSpace(body.Title),
		Description: body.Description,
		Status:      body.Status,
		Priority:    body.Priority,
		DueDate:     body.DueDate,
	}

	if task.Status == "" {
		task.Status = models.TaskStatusToDo
	}
	if task.Priority == "" {
		task.Priority = models.TaskPriorityMedium
	}
	if body.AssigneeID != nil && *body.AssigneeID != 0 {
		task.AssigneeID = body.AssigneeID
	}

	if err := validateTask(task, project); err != nil {
		respondError(ctx, err, "")
		return
	}

	if err := h.DB.WithContext(reqCtx).Omit("Project", "Assignee").Create(&task).Error; err != nil {
		respondError(ctx, err, "Failed to create task")
		return
	}

	h.publishTaskChange(reqCtx, dispatch.TaskCreated, task, *project, userID, notifications.TaskCreated(task, *project))

	ctx.JSON(http.StatusCreated, types.NewTaskResponse(task))
}

func (h *Handler) ListTasks(ctx *gin.Context) {
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

	if err := authz.CanViewProject(userID, project).Err("Project"); err != nil {
		respondError(ctx, err, "")
		return
	}

	var tasks []models.Task

	err = h.DB.WithContext(reqCtx).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("project_id = ?", project.ID).
		Order("created_at ASC").
		Find(&tasks).Error

	if err != nil {
		respondError(ctx, err, "Failed to retrieve tasks")
		return
	}

	response := make([]types.TaskResponse, 0, len(tasks))

	for _, task := range tasks {
		response = append(response, types.NewTaskResponse(task))
	}

	ctx.JSON(http.StatusOK, response)
}

func (h *Handler) UpdateTask(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	taskID, err := utils.GetTaskID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body UpdateTaskRequest

	if err := ctx.ShouldBindJSON(&body); err != nil {
		badRequest(ctx, err)
		return
	}

	reqCtx := ctx.Request.Context()

	task, project, err := h.loadTaskWithProject(reqCtx, taskID)
	if err != nil {
		respondError(ctx, err, "Failed to retrieve task")
		return
	}

	if err := authz.CanMutateTask(userID, task, project).Err("Task"); err != nil {
		respondError(ctx, err, "")
		return
	}

	wasDone := task.Status == models.TaskStatusDone
	updates := make(map[string]interface{})

	if body.Title != nil {
		task.Title = strings.TrimSpace(*body.Title)
		updates["title"] = task.Title
	}
	if body.Description != nil {
		task.Description = *body.Description
		updates["description"] = task.Description
	}
	if body.AssigneeID != nil {
		if *body.AssigneeID == 0 {
			task.AssigneeID = nil
		} else {
			task.AssigneeID = body.AssigneeID
		}
		updates["assignee_id"] = task.AssigneeID
	}
	if body.Status != nil {
		task.Status = *body.Status
		updates["status"] = task.Status
	}
	if body.Priority != nil {
		task.Priority = *body.Priority
		updates["priority"] = task.Priority
	}
	if body.DueDate != nil {
		task.DueDate = body.DueDate
		updates["due_date"] = task.DueDate
	}

	if len(updates) == 0 {
		respondError(ctx, apperrors.InvalidState("No valid fields to update"), "")
		return
	}

	if err := validateTask(*task, project); err != nil {
		respondError(ctx, err, "")
		return
	}

	if err := h.DB.WithContext(reqCtx).Model(&models.Task{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
		respondError(ctx, err, "Failed to update task")
		return
	}

	completed := !wasDone && task.Status == models.TaskStatusDone
	h.publishTaskChange(reqCtx, dispatch.TaskUpdated, *task, *project, userID, notifications.TaskUpdated(*task, *project, completed))

	ctx.JSON(http.StatusOK, types.NewTaskResponse(*task))
}

func (h *Handler) DeleteTask(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	taskID, err := utils.GetTaskID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reqCtx := ctx.Request.Context()

	task, project, err := h.loadTaskWithProject(reqCtx, taskID)
	if err != nil {
		respondError(ctx, err, "Failed to retrieve task")
		return
	}

	if err := authz.CanMutateTask(userID, task, project).Err("Task"); err != nil {
		respondError(ctx, err, "")
		return
	}

	err = h.DB.WithContext(reqCtx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", task.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Task{}, task.ID).Error
	})

	if err != nil {
		respondError(ctx, err, "Failed to delete task")
		return
	}

	h.publishTaskChange(reqCtx, dispatch.TaskDeleted, *task, *project, userID, notifications.TaskDeleted(*task, *project))

	ctx.Status(http.StatusNoContent)
}

func (h *Handler) AddComment(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	taskID, err := utils.GetTaskID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body CommentRequest

	if err := ctx.ShouldBindJSON(&body); err != nil {
		badRequest(ctx, err)
		return
	}

	reqCtx := ctx.Request.Context()

	task, project, err := h.loadTaskWithProject(reqCtx, taskID)
	if err != nil {
		respondError(ctx, err, "Failed to retrieve task")
		return
	}

	if err := authz.CanCommentOnTask(userID, task, project).Err("Task"); err != nil {
		respondError(ctx, err, "")
		return
	}

	text := strings.TrimSpace(body.Text)
	if text == "" {
		respondError(ctx, apperrors.InvalidState("Comment text is required"), "")
		return
	}

	comment := models.Comment{TaskID: task.ID, UserID: userID, Text: text}

	if err := h.DB.WithContext(reqCtx).Omit("User").Create(&comment).Error; err != nil {
		respondError(ctx, err, "Failed to add comment")
		return
	}

	task.Comments = append(task.Comments, comment)

	h.Dispatcher.Dispatch(reqCtx, dispatch.PlanCommentAdded(*task)...)

	ctx.JSON(http.StatusCreated, types.NewTaskResponse(*task))
}

// loadTaskWithProject returns nil entities, not errors, for missing rows.
func (h *Handler) loadTaskWithProject(ctx context.Context, taskID uint) (*models.Task, *models.Project, error) {
	task, err := h.findTask(ctx, taskID)
	if err != nil || task == nil {
		return nil, nil, err
	}

	project, err := h.findProject(ctx, task.ProjectID)
	if err != nil {
		return nil, nil, err
	}

	return task, project, nil
}

func (h *Handler) publishTaskChange(ctx context.Context, kind dispatch.TaskChangeKind, task models.Task, project models.Project, actorID uint, tmpl notifications.Template) {
	audience := project.AudienceIDs()
	notes := h.fanOut(ctx, audience, actorID, project.ID, tmpl)

	h.Dispatcher.Dispatch(ctx, dispatch.PlanTaskChange(dispatch.TaskChange{
		Kind:          kind,
		Task:          task,
		Project:       project,
		ActorID:       actorID,
		Audience:      audience,
		Notifications: notes,
	})...)
}

func validateTask(task models.Task, project *models.Project) error {
	if task.Title == "" {
		return apperrors.InvalidState("Title is required")
	}
	if !models.ValidTaskStatus(task.Status) {
		return apperrors.InvalidState("Invalid status %q", task.Status)
	}
	if !models.ValidTaskPriority(task.Priority) {
		return apperrors.InvalidState("Invalid priority %q", task.Priority)
	}
	if task.AssigneeID != nil && !project.HasMember(*task.AssigneeID) {
		return apperrors.InvalidState("Assignee must be a project member")
	}
	return nil
}
