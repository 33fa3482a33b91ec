package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	// JobStatusDraft indicates the job is not visible and not accepting applications
	JobStatusDraft = "draft"
	// JobStatusActive indicates the job is publicly listed and accepting applications
	JobStatusActive = "active"
	// JobStatusClosed indicates the job no longer accepts applications
	JobStatusClosed = "closed"

	// ApprovalStatusPending indicates the job awaits admin moderation
	ApprovalStatusPending = "pending"
	// ApprovalStatusApproved indicates an admin approved the job for public listing
	ApprovalStatusApproved = "approved"
	// ApprovalStatusRejected indicates an admin rejected the job
	ApprovalStatusRejected = "rejected"
)

// JobTypes is the set of accepted job_type values
var JobTypes = []string{"full-time", "part-time", "contract", "internship", "freelance"}

// jobTransitions defines every legal status edge. Closed is terminal,
// there is no reopening path.
var jobTransitions = map[string][]string{
	JobStatusDraft:  {JobStatusActive},
	JobStatusActive: {JobStatusClosed},
	JobStatusClosed: {},
}

var (
	// ErrJobNotActive is returned when applying to a job that is not active
	ErrJobNotActive = errors.New("job is not accepting applications")
	// ErrDeadlinePassed is returned when applying after the application deadline
	ErrDeadlinePassed = errors.New("application deadline has passed")
	// ErrJobIncomplete is returned when activating a job with missing required fields
	ErrJobIncomplete = errors.New("job is missing required fields")
)

// EditableJobInfo is part of a job post that the owner can edit
type EditableJobInfo struct {
	Title               string         `gorm:"type:text;not null" json:"title"`
	Description         string         `gorm:"type:text" json:"description"`
	Requirements        string         `gorm:"type:text" json:"requirements"`
	Location            string         `gorm:"type:text" json:"location"`
	JobType             string         `gorm:"type:text;default:full-time" json:"job_type"`
	SalaryMin           *int64         `json:"salary_min,omitempty"`
	SalaryMax           *int64         `json:"salary_max,omitempty"`
	Tags                pq.StringArray `gorm:"type:text[]" json:"tags"`
	ApplicationDeadline *time.Time     `gorm:"type:timestamp" json:"application_deadline,omitempty"`
	IsFeatured          bool           `gorm:"default:false" json:"is_featured"`
	CategoryID          uint           `gorm:"index" json:"category_id"`
}

// Validate checks the field-level constraints that apply when a job is
// created, including that a submitted deadline lies in the future.
func (info *EditableJobInfo) Validate(now time.Time) error {
	if err := info.ValidateFields(); err != nil {
		return err
	}
	if err := ValidateDeadline(info.ApplicationDeadline, now); err != nil {
		return err
	}
	return nil
}

// ValidateFields checks the constraints a stored job satisfies at any
// time. The future-deadline rule is not among them: a stored deadline
// legitimately moves into the past, so edits that do not touch the
// deadline must not re-check it.
func (info *EditableJobInfo) ValidateFields() error {
	if info.SalaryMin != nil && *info.SalaryMin < 0 {
		return errors.New("salary_min must not be negative")
	}
	if info.SalaryMin != nil && info.SalaryMax != nil && *info.SalaryMin > *info.SalaryMax {
		return errors.New("salary_min must not exceed salary_max")
	}
	if info.JobType != "" && !containsString(JobTypes, info.JobType) {
		return fmt.Errorf("job_type must be one of %v", JobTypes)
	}
	return nil
}

// ValidateDeadline rejects a submitted deadline that already passed.
func ValidateDeadline(deadline *time.Time, now time.Time) error {
	if deadline != nil && deadline.Before(now) {
		return errors.New("application_deadline must be in the future")
	}
	return nil
}

// Job is gorm model for store job posting data in DB
type Job struct {
	ID         uint      `gorm:"primaryKey;autoIncrement;->" json:"id"`
	EmployerID uuid.UUID `gorm:"type:uuid;not null;index;<-:create" json:"employer_id"`
	Employer   User      `gorm:"foreignKey:EmployerID;constraint:OnDelete:CASCADE" json:"-"`

	EditableJobInfo
	Category Category `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE" json:"-"`

	Status         string `gorm:"type:text;default:draft;index" json:"status"`
	ApprovalStatus string `gorm:"type:text;default:approved;index" json:"approval_status"`
	ViewsCount     uint   `gorm:"default:0" json:"views_count"`

	CreatedAt time.Time `gorm:"type:timestamp;default:CURRENT_TIMESTAMP;->" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamp" json:"updated_at"`

	Applications []Application `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"-"`
}

// ValidJobTransition reports whether old -> new is a legal status edge.
func ValidJobTransition(old, new string) bool {
	return containsString(jobTransitions[old], new)
}

// JobTransitionsFrom returns the legal target statuses from the given status.
func JobTransitionsFrom(status string) []string {
	return jobTransitions[status]
}

// CanManage reports whether the user may mutate this job.
func (j *Job) CanManage(u User) bool {
	return u.IsAdmin() || j.EmployerID == u.ID
}

// PubliclyVisible reports whether the job shows up in public listings.
func (j *Job) PubliclyVisible() bool {
	return j.Status == JobStatusActive && j.ApprovalStatus != ApprovalStatusPending &&
		j.ApprovalStatus != ApprovalStatusRejected
}

// ReadyToPublish checks the minimal completeness required before
// draft -> active is allowed.
func (j *Job) ReadyToPublish() error {
	if j.Title == "" || j.Description == "" || j.Requirements == "" ||
		j.Location == "" || j.CategoryID == 0 {
		return ErrJobIncomplete
	}
	return nil
}

// AcceptingApplications checks the eligibility gate for new
// applications: the job must be active and the deadline, if any, must
// not have passed. Each failure is a distinct error.
func (j *Job) AcceptingApplications(now time.Time) error {
	if j.Status != JobStatusActive {
		return ErrJobNotActive
	}
	if j.ApplicationDeadline != nil && j.ApplicationDeadline.Before(now) {
		return ErrDeadlinePassed
	}
	return nil
}

func containsString(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
