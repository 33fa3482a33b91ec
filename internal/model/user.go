// Package model contain gorm model for recording data to database
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	// RoleAdmin is role for platform administrator
	RoleAdmin = "admin"
	// RoleEmployer is role for user that post jobs
	RoleEmployer = "employer"
	// RoleSeeker is role for user that apply to jobs
	RoleSeeker = "seeker"
)

// User is gorm model for every account on the platform, role field
// decides what the account is allowed to do.
type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	Username string    `gorm:"uniqueIndex;not null" json:"username"`
	Email    *string   `json:"email"`
	Password string    `gorm:"type:text" json:"-"`
	Role     string    `gorm:"type:text;not null;index" json:"role"`

	// Skills is only meaningful for seeker accounts
	Skills pq.StringArray `gorm:"type:text[]" json:"skills,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamp;default:CURRENT_TIMESTAMP;->" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamp" json:"updated_at"`
}

// IsAdmin reports whether the user has the administrator role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
