package models

import "gorm.io/gorm"

// Comment is append-only; the API never updates or removes one on its own.
type Comment struct {
	gorm.Model

	TaskID uint   `gorm:"not null;index"`
	UserID uint   `gorm:"not null;index"`
	Text   string `gorm:"not null"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}
