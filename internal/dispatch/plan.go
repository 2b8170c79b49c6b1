package dispatch

import (
	"fmt"

	"github.com/taskhive-dev/taskhive/internal/models"
	"github.com/taskhive-dev/taskhive/internal/notifications"
	"github.com/taskhive-dev/taskhive/internal/realtime"
	"github.com/taskhive-dev/taskhive/internal/types"
)

type TaskChangeKind int

const (
	TaskCreated TaskChangeKind = iota
	TaskUpdated
	TaskDeleted
)

// TaskChange describes a committed task mutation.
type TaskChange struct {
	Kind    TaskChangeKind
	Task    models.Task
	Project models.Project
	ActorID uint
	// Audience is {owner} ∪ members, captured once before the fan-out.
	Audience []uint
	// Notifications are the records the fan-out persisted, if any. Each
	// recipient's push carries its own record.
	Notifications []models.Notification
}

// PlanTaskChange yields one project-room event plus one personal
// notification per audience member other than the actor.
func PlanTaskChange(c TaskChange) []Event {
	var (
		name    string
		payload any
		subtype string
		message string
	)

	switch c.Kind {
	case TaskCreated:
		name, payload = EventTaskCreated, types.NewTaskResponse(c.Task)
		subtype = PushTaskCreated
		message = fmt.Sprintf("New task %q created in project %q", c.Task.Title, c.Project.Title)
	case TaskUpdated:
		name, payload = EventTaskUpdated, types.NewTaskResponse(c.Task)
		subtype = PushTaskUpdated
		message = fmt.Sprintf("Task %q updated in project %q", c.Task.Title, c.Project.Title)
	case TaskDeleted:
		name, payload = EventTaskDeleted, map[string]uint{"task_id": c.Task.ID, "project_id": c.Task.ProjectID}
		subtype = PushTaskDeleted
		message = fmt.Sprintf("Task %q deleted from project %q", c.Task.Title, c.Project.Title)
	default:
		return nil
	}

	events := []Event{{
		Room:    realtime.ProjectRoom(c.Task.ProjectID),
		Name:    name,
		Payload: payload,
	}}

	return append(events, personal(c.Audience, c.ActorID, c.Project.ID, subtype, message, c.Notifications)...)
}

// PlanCommentAdded pushes the task, comments included, to its project room.
func PlanCommentAdded(task models.Task) []Event {
	return []Event{{
		Room:    realtime.ProjectRoom(task.ProjectID),
		Name:    EventCommentAdded,
		Payload: types.NewTaskResponse(task),
	}}
}

// PlanInvitationSent pushes the invitation to the invitee's user room.
func PlanInvitationSent(invitation models.Notification, project models.Project) []Event {
	return []Event{{
		Room: realtime.UserRoom(invitation.RecipientID),
		Name: EventNotification,
		Payload: NotificationPush{
			Type:         PushInvitation,
			Message:      fmt.Sprintf("You have been invited to join the project %q", project.Title),
			ProjectID:    project.ID,
			Notification: NewNotification(invitation),
		},
	}}
}

// PlanInvitationResolved tells the inviter about the outcome and, on accept,
// announces the new member to the project room.
func PlanInvitationResolved(invitation models.Notification, project models.Project, invitee models.User) []Event {
	if invitation.InvitationStatus == nil {
		return nil
	}

	subtype, verb := PushInvitationDeclined, "declined"
	accepted := *invitation.InvitationStatus == models.InvitationAccepted
	if accepted {
		subtype, verb = PushInvitationAccepted, "accepted"
	}

	events := []Event{{
		Room: realtime.UserRoom(invitation.SenderID),
		Name: EventNotification,
		Payload: NotificationPush{
			Type:      subtype,
			Message:   fmt.Sprintf("%s %s your invitation to join the project %q", invitee.Name, verb, project.Title),
			ProjectID: project.ID,
		},
	}}

	if accepted {
		events = append(events, Event{
			Room: realtime.ProjectRoom(project.ID),
			Name: EventMemberJoined,
			Payload: map[string]any{
				"project_id": project.ID,
				"user":       types.NewUserResponse(invitee),
			},
		})
	}

	return events
}

func PlanProjectUpdated(project models.Project, actorID uint, audience []uint, notes []models.Notification) []Event {
	events := []Event{{
		Room:    realtime.ProjectRoom(project.ID),
		Name:    EventProjectUpdated,
		Payload: types.NewProjectResponse(project),
	}}

	message := fmt.Sprintf("Project %q has been updated", project.Title)

	return append(events, personal(audience, actorID, project.ID, PushProjectUpdated, message, notes)...)
}

func PlanProjectDeleted(projectID uint) []Event {
	return []Event{{
		Room:    realtime.ProjectRoom(projectID),
		Name:    EventProjectDeleted,
		Payload: map[string]uint{"project_id": projectID},
		Close:   true,
	}}
}

func personal(audience []uint, actorID, projectID uint, subtype, message string, notes []models.Notification) []Event {
	byRecipient := make(map[uint]models.Notification, len(notes))
	for _, n := range notes {
		byRecipient[n.RecipientID] = n
	}

	recipients := notifications.Recipients(audience, actorID)
	events := make([]Event, 0, len(recipients))

	for _, id := range recipients {
		push := NotificationPush{
			Type:      subtype,
			Message:   message,
			ProjectID: projectID,
		}
		if n, ok := byRecipient[id]; ok {
			push.Notification = NewNotification(n)
		}

		events = append(events, Event{
			Room:    realtime.UserRoom(id),
			Name:    EventNotification,
			Payload: push,
		})
	}

	return events
}
