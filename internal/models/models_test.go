package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProjectHasMember(t *testing.T) {
	p := Project{
		OwnerID:     1,
		Memberships: []ProjectMembership{{UserID: 2}},
	}

	assert.True(t, p.HasMember(1), "owner counts as member")
	assert.True(t, p.HasMember(2))
	assert.False(t, p.HasMember(3))
	assert.False(t, p.HasMember(0))
}

func TestProjectAudienceIDs(t *testing.T) {
	p := Project{
		OwnerID: 5,
		Memberships: []ProjectMembership{
			{UserID: 5},
			{UserID: 3},
			{UserID: 9},
			{UserID: 3},
		},
	}

	assert.Equal(t, []uint{3, 5, 9}, p.AudienceIDs())
}

func TestNotificationIsPendingInvitation(t *testing.T) {
	pending := InvitationPending
	accepted := InvitationAccepted

	assert.True(t, (&Notification{Type: NotificationInvitation, InvitationStatus: &pending}).IsPendingInvitation())
	assert.False(t, (&Notification{Type: NotificationInvitation, InvitationStatus: &accepted}).IsPendingInvitation())
	assert.False(t, (&Notification{Type: NotificationTaskAssigned, InvitationStatus: &pending}).IsPendingInvitation())
}
