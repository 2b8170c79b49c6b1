package types

import (
	"time"

	"github.com/taskhive-dev/taskhive/internal/models"
)

type UserResponse struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ProjectResponse struct {
	ID          uint           `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Deadline    *time.Time     `json:"deadline"`
	OwnerID     uint           `json:"owner_id"`
	MemberIDs   []uint         `json:"member_ids"`
	Members     []UserResponse `json:"members,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

type CommentResponse struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type TaskResponse struct {
	ID          uint              `json:"id"`
	ProjectID   uint              `json:"project_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	AssigneeID  *uint             `json:"assignee_id"`
	Status      string            `json:"status"`
	Priority    string            `json:"priority"`
	DueDate     *time.Time        `json:"due_date"`
	Comments    []CommentResponse `json:"comments"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func NewUserResponse(u models.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email}
}

// NewProjectResponse expects memberships loaded; member users are included
// when they were preloaded too.
func NewProjectResponse(p models.Project) ProjectResponse {
	resp := ProjectResponse{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Deadline:    p.Deadline,
		OwnerID:     p.OwnerID,
		MemberIDs:   p.AudienceIDs(),
		CreatedAt:   p.CreatedAt,
	}

	for _, m := range p.Memberships {
		if m.User.ID != 0 {
			resp.Members = append(resp.Members, NewUserResponse(m.User))
		}
	}

	return resp
}

func NewTaskResponse(t models.Task) TaskResponse {
	comments := make([]CommentResponse, 0, len(t.Comments))
	for _, c := range t.Comments {
		comments = append(comments, CommentResponse{
			ID:        c.ID,
			UserID:    c.UserID,
			Text:      c.Text,
			CreatedAt: c.CreatedAt,
		})
	}

	return TaskResponse{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		AssigneeID:  t.AssigneeID,
		Status:      t.Status,
		Priority:    t.Priority,
		DueDate:     t.DueDate,
		Comments:    comments,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

type NotificationResponse struct {
	ID               uint           `json:"id"`
	Type             string         `json:"type"`
	Title            string         `json:"title"`
	Message          string         `json:"message"`
	SenderID         uint           `json:"sender_id"`
	SenderName       string         `json:"sender_name,omitempty"`
	ProjectID        uint           `json:"project_id"`
	ProjectTitle     string         `json:"project_title,omitempty"`
	IsRead           bool           `json:"is_read"`
	ActionRequired   bool           `json:"action_required"`
	InvitationStatus *string        `json:"invitation_status,omitempty"`
	Data             map[string]any `json:"data,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// NewNotificationResponse fills sender and project names when they were
// preloaded.
func NewNotificationResponse(n models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:               n.ID,
		Type:             string(n.Type),
		Title:            n.Title,
		Message:          n.Message,
		SenderID:         n.SenderID,
		SenderName:       n.Sender.Name,
		ProjectID:        n.ProjectID,
		ProjectTitle:     n.Project.Title,
		IsRead:           n.IsRead,
		ActionRequired:   n.ActionRequired,
		InvitationStatus: n.InvitationStatus,
		Data:             n.Data,
		CreatedAt:        n.CreatedAt,
	}
}
