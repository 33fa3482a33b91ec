package model

import (
	"time"

	"github.com/google/uuid"
)

var (
	// ApplicationStatusPending indicates that the application is waiting for review
	ApplicationStatusPending = "pending"
	// ApplicationStatusReviewed indicates that the employer has looked at the application
	ApplicationStatusReviewed = "reviewed"
	// ApplicationStatusAccepted indicates that the application has been accepted
	ApplicationStatusAccepted = "accepted"
	// ApplicationStatusRejected indicates that the application has been rejected
	ApplicationStatusRejected = "rejected"
	// ApplicationStatusWithdrawn only appears in status history rows, never
	// in the status column itself (withdrawal is an orthogonal flag)
	ApplicationStatusWithdrawn = "withdrawn"
)

// applicationTransitions defines every legal status edge. Reviewed is
// an optional waypoint: pending may jump straight to a terminal state.
var applicationTransitions = map[string][]string{
	ApplicationStatusPending:  {ApplicationStatusReviewed, ApplicationStatusAccepted, ApplicationStatusRejected},
	ApplicationStatusReviewed: {ApplicationStatusAccepted, ApplicationStatusRejected},
	ApplicationStatusAccepted: {},
	ApplicationStatusRejected: {},
}

const (
	// MaxResumeSize is the largest accepted resume upload in bytes (5 MB)
	MaxResumeSize = 5 << 20
)

// AllowedResumeExtensions lists resume file extensions accepted at submission
var AllowedResumeExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
}

// Application represents a job application record. The composite
// unique index makes the one-application-per-(job, applicant) rule a
// storage-level guarantee, not a check-then-insert.
type Application struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	JobID uint `gorm:"not null;uniqueIndex:idx_job_applicant" json:"job_id"`
	Job   Job  `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"-"`

	ApplicantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_job_applicant" json:"applicant_id"`
	Applicant   User      `gorm:"foreignKey:ApplicantID;constraint:OnDelete:CASCADE" json:"-"`

	CoverLetter string `gorm:"type:text" json:"cover_letter"`
	ResumeID    *int   `json:"resume_id"`
	Resume      File   `gorm:"foreignKey:ResumeID" json:"-"`

	Status     string     `gorm:"type:text;default:pending;index" json:"status"`
	AppliedAt  time.Time  `gorm:"type:timestamp;default:CURRENT_TIMESTAMP;->" json:"applied_at"`
	ReviewedAt *time.Time `gorm:"type:timestamp" json:"reviewed_at,omitempty"`
	Notes      *string    `gorm:"type:text" json:"notes,omitempty"`

	IsWithdrawn      bool       `gorm:"default:false" json:"is_withdrawn"`
	WithdrawnAt      *time.Time `gorm:"type:timestamp" json:"withdrawn_at,omitempty"`
	WithdrawalReason *string    `gorm:"type:text" json:"withdrawal_reason,omitempty"`

	StatusHistory []StatusHistory `gorm:"foreignKey:ApplicationID" json:"-"`
}

// ValidApplicationTransition reports whether old -> new is a legal status edge.
func ValidApplicationTransition(old, new string) bool {
	return containsString(applicationTransitions[old], new)
}

// ApplicationTransitionsFrom returns the legal target statuses from the given status.
func ApplicationTransitionsFrom(status string) []string {
	return applicationTransitions[status]
}

// Terminal reports whether the application accepts no further status
// changes. Withdrawal is terminal regardless of the status value.
func (a *Application) Terminal() bool {
	return a.IsWithdrawn || len(applicationTransitions[a.Status]) == 0
}

// Withdrawable reports whether the applicant may still withdraw.
func (a *Application) Withdrawable() bool {
	if a.IsWithdrawn {
		return false
	}
	return a.Status == ApplicationStatusPending || a.Status == ApplicationStatusReviewed
}
