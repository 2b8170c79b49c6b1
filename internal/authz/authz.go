// Package authz answers whether an actor may act on an already-loaded entity.
// Every check is pure: callers load the entities, pass nil when a lookup came
// back empty, and get NotFound before any permission is considered.
package authz

import (
	"github.com/taskhive-dev/taskhive/internal/apperrors"
	"github.com/taskhive-dev/taskhive/internal/models"
)

type Decision int

const (
	Allowed Decision = iota
	NotFound
	Forbidden
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Err converts the decision into the shared error taxonomy. entity names the
// missing thing in NotFound messages, e.g. "Project".
func (d Decision) Err(entity string) error {
	switch d {
	case Allowed:
		return nil
	case NotFound:
		return apperrors.NotFound("%s not found", entity)
	default:
		return apperrors.Forbidden("Not authorized")
	}
}

func CanViewProject(userID uint, project *models.Project) Decision {
	if project == nil {
		return NotFound
	}
	if !project.HasMember(userID) {
		return Forbidden
	}
	return Allowed
}

// CanMutateProject covers update, delete and invite.
func CanMutateProject(userID uint, project *models.Project) Decision {
	if project == nil {
		return NotFound
	}
	if userID == 0 || project.OwnerID != userID {
		return Forbidden
	}
	return Allowed
}

func CanMutateTask(userID uint, task *models.Task, project *models.Project) Decision {
	if task == nil || project == nil {
		return NotFound
	}
	if !project.HasMember(userID) {
		return Forbidden
	}
	if !task.IsAssignee(userID) && project.OwnerID != userID {
		return Forbidden
	}
	return Allowed
}

func CanCommentOnTask(userID uint, task *models.Task, project *models.Project) Decision {
	if task == nil || project == nil {
		return NotFound
	}
	if !project.HasMember(userID) {
		return Forbidden
	}
	return Allowed
}

// CanAccessNotification guards read, delete and resolve: only the recipient.
func CanAccessNotification(userID uint, notification *models.Notification) Decision {
	if notification == nil {
		return NotFound
	}
	if userID == 0 || notification.RecipientID != userID {
		return Forbidden
	}
	return Allowed
}
