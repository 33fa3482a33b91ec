package model

import (
	"time"

	"github.com/google/uuid"
)

var (
	// NotificationApplicationReceived is sent to the employer when someone applies
	NotificationApplicationReceived = "application_received"
	// NotificationApplicationStatus is sent to the applicant when their application status changes
	NotificationApplicationStatus = "application_status"
	// NotificationJobClosed is sent to applicants when the job they applied to closes
	NotificationJobClosed = "job_closed"
	// NotificationJobApproval is sent to the employer when an admin moderates their job
	NotificationJobApproval = "job_approval"
)

// Notification is a persisted per-user message created by the event
// bus subscriber after a lifecycle transition commits.
type Notification struct {
	ID     uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User   User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	Type    string `gorm:"type:text;not null" json:"type"`
	Message string `gorm:"type:text" json:"message"`

	JobID         *uint `json:"job_id,omitempty"`
	ApplicationID *uint `json:"application_id,omitempty"`

	IsRead    bool      `gorm:"default:false;index" json:"is_read"`
	CreatedAt time.Time `gorm:"type:timestamp;default:CURRENT_TIMESTAMP;->" json:"created_at"`
}
