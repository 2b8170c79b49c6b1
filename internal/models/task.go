package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	TaskStatusToDo       = "ToDo"
	TaskStatusInProgress = "InProgress"
	TaskStatusDone       = "Done"

	TaskPriorityLow    = "Low"
	TaskPriorityMedium = "Medium"
	TaskPriorityHigh   = "High"
)

type Task struct {
	gorm.Model

	ProjectID   uint   `gorm:"not null;index"`
	Title       string `gorm:"not null"`
	Description string
	AssigneeID  *uint  `gorm:"index"`
	Status      string `gorm:"not null;default:ToDo"`
	Priority    string `gorm:"not null;default:Medium"`
	DueDate     *time.Time

	// Relationships
	Project  Project   `gorm:"foreignKey:ProjectID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Assignee *User     `gorm:"foreignKey:AssigneeID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
	Comments []Comment `gorm:"foreignKey:TaskID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// IsAssignee reports whether userID is the task's assignee.
func (t *Task) IsAssignee(userID uint) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}

func ValidTaskStatus(s string) bool {
	switch s {
	case TaskStatusToDo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

func ValidTaskPriority(p string) bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}
