package model

import (
	"time"

	"github.com/google/uuid"
)

// StatusHistory is an append-only audit row recorded for every
// accepted application status transition, including withdrawal. Rows
// are written in the same transaction as the status update and never
// updated or deleted afterwards.
type StatusHistory struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	ApplicationID uint        `gorm:"not null;index" json:"application_id"`
	Application   Application `gorm:"foreignKey:ApplicationID;constraint:OnDelete:CASCADE" json:"-"`

	OldStatus string `gorm:"type:text" json:"old_status"`
	NewStatus string `gorm:"type:text;not null" json:"new_status"`

	ChangedByID *uuid.UUID `gorm:"type:uuid" json:"changed_by,omitempty"`
	ChangedBy   *User      `gorm:"foreignKey:ChangedByID;constraint:OnDelete:SET NULL" json:"-"`

	Reason    string    `gorm:"type:text" json:"reason,omitempty"`
	ChangedAt time.Time `gorm:"type:timestamp;default:CURRENT_TIMESTAMP;->" json:"changed_at"`
}
