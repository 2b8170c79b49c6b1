package models

import (
	"sort"
	"time"

	"gorm.io/gorm"
)

type Project struct {
	gorm.Model

	Title       string `gorm:"not null"`
	Description string
	Deadline    *time.Time
	OwnerID     uint `gorm:"not null;index"`

	// Relationships
	Owner       User                `gorm:"foreignKey:OwnerID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Memberships []ProjectMembership `gorm:"foreignKey:ProjectID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// HasMember reports whether userID belongs to the project. The owner always
// counts as a member, whether or not a membership row exists for them.
func (p *Project) HasMember(userID uint) bool {
	if userID == 0 {
		return false
	}

	if p.OwnerID == userID {
		return true
	}

	for _, m := range p.Memberships {
		if m.UserID == userID {
			return true
		}
	}

	return false
}

// AudienceIDs returns {owner} ∪ members, deduplicated and sorted.
func (p *Project) AudienceIDs() []uint {
	seen := make(map[uint]struct{}, len(p.Memberships)+1)
	ids := make([]uint, 0, len(p.Memberships)+1)

	add := func(id uint) {
		if id == 0 {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	add(p.OwnerID)
	for _, m := range p.Memberships {
		add(m.UserID)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}
