package utils

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
)

func GetProjectID(ctx *gin.Context) (uint, error) {
	return getIDParam(ctx, "project_id", "Project")
}

func GetTaskID(ctx *gin.Context) (uint, error) {
	return getIDParam(ctx, "task_id", "Task")
}

func GetNotificationID(ctx *gin.Context) (uint, error) {
	return getIDParam(ctx, "notification_id", "Notification")
}

func getIDParam(ctx *gin.Context, param, entity string) (uint, error) {
	raw := ctx.Param(param)

	if raw == "" {
		return 0, fmt.Errorf("%s ID not found", entity)
	}

	id, err := strconv.ParseUint(raw, 10, 32)

	if err != nil || id == 0 {
		return 0, fmt.Errorf("Invalid %s ID", entity)
	}

	return uint(id), nil
}
