package notifications

import (
	"fmt"

	"github.com/taskhive-dev/taskhive/internal/models"
	"gorm.io/datatypes"
)

func TaskCreated(task models.Task, project models.Project) Template {
	return Template{
		Type:    models.NotificationTaskAssigned,
		Title:   "New Task Created",
		Message: fmt.Sprintf("A new task %q has been created in project %q", task.Title, project.Title),
		Data:    taskData(task),
	}
}

// TaskUpdated picks task_completed when the update moved the task to Done.
func TaskUpdated(task models.Task, project models.Project, completed bool) Template {
	if completed {
		return Template{
			Type:    models.NotificationTaskCompleted,
			Title:   "Task Completed",
			Message: fmt.Sprintf("Task %q has been completed in project %q", task.Title, project.Title),
			Data:    taskData(task),
		}
	}

	return Template{
		Type:    models.NotificationStatusUpdate,
		Title:   "Task Updated",
		Message: fmt.Sprintf("Task %q has been updated in project %q", task.Title, project.Title),
		Data:    taskData(task),
	}
}

func TaskDeleted(task models.Task, project models.Project) Template {
	return Template{
		Type:    models.NotificationStatusUpdate,
		Title:   "Task Deleted",
		Message: fmt.Sprintf("Task %q has been deleted from project %q", task.Title, project.Title),
		Data:    taskData(task),
	}
}

func ProjectUpdated(project models.Project) Template {
	return Template{
		Type:    models.NotificationProjectUpdate,
		Title:   "Project Updated",
		Message: fmt.Sprintf("Project %q has been updated", project.Title),
	}
}

func taskData(task models.Task) datatypes.JSONMap {
	return datatypes.JSONMap{"task_id": task.ID}
}
