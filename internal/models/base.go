package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base is embedded by every journal record. ID is a UUID string shared by the
// document and relational stores; UserID namespaces the record.
type Base struct {
	ID        string    `json:"id"         bson:"_id"        gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    bson:"user_id"    gorm:"type:varchar(64);not null;index"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	b.EnsureID()
	return nil
}

// EnsureID assigns a fresh UUID when none is set.
func (b *Base) EnsureID() {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
}

// NewID returns a fresh record id.
func NewID() string {
	return uuid.New().String()
}
