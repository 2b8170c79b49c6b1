package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationInvitation    NotificationType = "invitation"
	NotificationTaskAssigned  NotificationType = "task_assigned"
	NotificationTaskCompleted NotificationType = "task_completed"
	NotificationProjectUpdate NotificationType = "project_update"
	NotificationStatusUpdate  NotificationType = "status_update"
)

const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationDeclined = "declined"
)

type Notification struct {
	gorm.Model

	RecipientID      uint             `gorm:"not null;index"`
	SenderID         uint             `gorm:"not null;index"`
	ProjectID        uint             `gorm:"not null;index"`
	Type             NotificationType `gorm:"not null"`
	Title            string           `gorm:"not null"`
	Message          string           `gorm:"not null"`
	IsRead           bool             `gorm:"not null;default:false"`
	ActionRequired   bool             `gorm:"not null;default:false"`
	InvitationStatus *string          // only set for invitations
	Data             datatypes.JSONMap

	// Relationships
	Recipient User    `gorm:"foreignKey:RecipientID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Sender    User    `gorm:"foreignKey:SenderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Project   Project `gorm:"foreignKey:ProjectID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (n *Notification) IsInvitation() bool {
	return n.Type == NotificationInvitation
}

// IsPendingInvitation reports whether the invitation can still be resolved.
func (n *Notification) IsPendingInvitation() bool {
	return n.IsInvitation() && n.InvitationStatus != nil && *n.InvitationStatus == InvitationPending
}
