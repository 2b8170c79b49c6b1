// Package notifications persists notifications and drives the invitation
// state machine: pending -> accepted | declined, with no way back out.
package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/taskhive-dev/taskhive/internal/apperrors"
	"github.com/taskhive-dev/taskhive/internal/authz"
	"github.com/taskhive-dev/taskhive/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Action string

const (
	ActionAccept  Action = "accept"
	ActionDecline Action = "decline"
)

// Template is the per-event title/message pair used for fan-out.
type Template struct {
	Type    models.NotificationType
	Title   string
	Message string
	Data    datatypes.JSONMap
}

type Manager struct {
	db *gorm.DB
}

func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// CreateInvitation records a pending invitation for recipient to join project.
// The project must have its memberships loaded.
func (m *Manager) CreateInvitation(ctx context.Context, sender models.User, recipient models.User, project models.Project) (*models.Notification, error) {
	if project.HasMember(recipient.ID) {
		return nil, apperrors.Conflict("User is already a member of this project")
	}

	status := models.InvitationPending
	notification := models.Notification{
		RecipientID:      recipient.ID,
		SenderID:         sender.ID,
		ProjectID:        project.ID,
		Type:             models.NotificationInvitation,
		Title:            "Project Invitation",
		Message:          fmt.Sprintf("You have been invited to join the project %q by %s", project.Title, sender.Name),
		ActionRequired:   true,
		InvitationStatus: &status,
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The project row lock serializes concurrent invites for one project.
		var locked models.Project
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&locked, project.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("Project not found")
			}
			return fmt.Errorf("lock project: %w", err)
		}

		var pending int64
		err := tx.Model(&models.Notification{}).
			Where("recipient_id = ? AND project_id = ? AND type = ? AND invitation_status = ?",
				recipient.ID, project.ID, models.NotificationInvitation, models.InvitationPending).
			Count(&pending).Error
		if err != nil {
			return fmt.Errorf("count pending invitations: %w", err)
		}

		if pending > 0 {
			return apperrors.Conflict("User already has a pending invitation to this project")
		}

		if err := tx.Omit(clause.Associations).Create(&notification).Error; err != nil {
			return fmt.Errorf("create invitation: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &notification, nil
}

// ResolveInvitation accepts or declines a pending invitation on behalf of
// actorID. The status transition and the membership insert commit together;
// on any failure nothing is applied and the whole call can be retried.
func (m *Manager) ResolveInvitation(ctx context.Context, notificationID, actorID uint, action Action) (*models.Notification, error) {
	notification, err := m.find(ctx, notificationID)
	if err != nil {
		return nil, err
	}

	if err := authz.CanAccessNotification(actorID, notification).Err("Notification"); err != nil {
		return nil, err
	}

	if !notification.IsInvitation() {
		return nil, apperrors.InvalidState("Not an invitation notification")
	}

	if !notification.IsPendingInvitation() {
		return nil, apperrors.InvalidState("Not a pending invitation")
	}

	var target string

	switch action {
	case ActionAccept:
		target = models.InvitationAccepted
	case ActionDecline:
		target = models.InvitationDeclined
	default:
		return nil, apperrors.InvalidState("Invalid action %q", action)
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Only one resolver can move the row out of pending.
		res := tx.Model(&models.Notification{}).
			Where("id = ? AND type = ? AND invitation_status = ?", notification.ID, models.NotificationInvitation, models.InvitationPending).
			Updates(map[string]interface{}{
				"invitation_status": target,
				"is_read":           true,
			})
		if res.Error != nil {
			return fmt.Errorf("update invitation: %w", res.Error)
		}

		if res.RowsAffected == 0 {
			return apperrors.InvalidState("Not a pending invitation")
		}

		if action != ActionAccept {
			return nil
		}

		var project models.Project
		if err := tx.First(&project, notification.ProjectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("Project not found")
			}
			return fmt.Errorf("load project: %w", err)
		}

		membership := models.ProjectMembership{
			UserID:    notification.RecipientID,
			ProjectID: notification.ProjectID,
			Role:      models.RoleMember,
		}

		if project.OwnerID == notification.RecipientID {
			membership.Role = models.RoleOwner
		}

		err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "project_id"}},
				DoNothing: true,
			}).
			Create(&membership).Error
		if err != nil {
			return fmt.Errorf("add member: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	notification.InvitationStatus = &target
	notification.IsRead = true

	return notification, nil
}

// CreateInformational records a non-invitation notification.
func (m *Manager) CreateInformational(ctx context.Context, recipientID, senderID, projectID uint, tmpl Template) (*models.Notification, error) {
	if tmpl.Type == models.NotificationInvitation {
		return nil, apperrors.InvalidState("Invitations must be created with CreateInvitation")
	}

	notification := informational(recipientID, senderID, projectID, tmpl)

	if err := m.db.WithContext(ctx).Omit(clause.Associations).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	return &notification, nil
}

// FanOut records one informational notification per audience member except
// the actor. audience must be computed once by the caller (see
// models.Project.AudienceIDs); duplicates are dropped here as well. Order of
// the returned notifications is unspecified.
func (m *Manager) FanOut(ctx context.Context, audience []uint, actorID, projectID uint, tmpl Template) ([]models.Notification, error) {
	if tmpl.Type == models.NotificationInvitation {
		return nil, apperrors.InvalidState("Invitations cannot be fanned out")
	}

	recipients := Recipients(audience, actorID)
	if len(recipients) == 0 {
		return nil, nil
	}

	batch := make([]models.Notification, 0, len(recipients))
	for _, id := range recipients {
		batch = append(batch, informational(id, actorID, projectID, tmpl))
	}

	if err := m.db.WithContext(ctx).Omit(clause.Associations).Create(&batch).Error; err != nil {
		return nil, fmt.Errorf("fan out notifications: %w", err)
	}

	return batch, nil
}

// Recipients dedupes audience and removes the actor.
func Recipients(audience []uint, actorID uint) []uint {
	seen := make(map[uint]struct{}, len(audience))
	out := make([]uint, 0, len(audience))

	for _, id := range audience {
		if id == 0 || id == actorID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}

func (m *Manager) MarkRead(ctx context.Context, notificationID, requesterID uint) (*models.Notification, error) {
	notification, err := m.find(ctx, notificationID)
	if err != nil {
		return nil, err
	}

	if err := authz.CanAccessNotification(requesterID, notification).Err("Notification"); err != nil {
		return nil, err
	}

	if notification.IsRead {
		return notification, nil
	}

	if err := m.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", notification.ID).Update("is_read", true).Error; err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}

	notification.IsRead = true

	return notification, nil
}

// MarkAllRead marks every unread notification of userID as read and returns
// how many changed.
func (m *Manager) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := m.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)

	if res.Error != nil {
		return 0, fmt.Errorf("mark all read: %w", res.Error)
	}

	return res.RowsAffected, nil
}

func (m *Manager) Delete(ctx context.Context, notificationID, requesterID uint) error {
	notification, err := m.find(ctx, notificationID)
	if err != nil {
		return err
	}

	if err := authz.CanAccessNotification(requesterID, notification).Err("Notification"); err != nil {
		return err
	}

	if err := m.db.WithContext(ctx).Delete(&models.Notification{}, notification.ID).Error; err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}

	return nil
}

// List returns the user's notifications, newest first, with sender and
// project loaded.
func (m *Manager) List(ctx context.Context, userID uint) ([]models.Notification, error) {
	var list []models.Notification

	err := m.db.WithContext(ctx).
		Preload("Sender").
		Preload("Project").
		Where("recipient_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	return list, nil
}

func (m *Manager) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64

	err := m.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}

	return count, nil
}

func (m *Manager) find(ctx context.Context, id uint) (*models.Notification, error) {
	var notification models.Notification

	if err := m.db.WithContext(ctx).First(&notification, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Notification not found")
		}
		return nil, fmt.Errorf("load notification: %w", err)
	}

	return &notification, nil
}

func informational(recipientID, senderID, projectID uint, tmpl Template) models.Notification {
	return models.Notification{
		RecipientID:    recipientID,
		SenderID:       senderID,
		ProjectID:      projectID,
		Type:           tmpl.Type,
		Title:          tmpl.Title,
		Message:        tmpl.Message,
		ActionRequired: false,
		Data:           tmpl.Data,
	}
}
