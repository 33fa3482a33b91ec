package model

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ErrCategoryCycle is returned when a parent assignment would make a
// category its own ancestor.
var ErrCategoryCycle = errors.New("category cannot be its own ancestor")

// Category is gorm model for hierarchical job classification. Parent
// chain must stay acyclic, enforced by ValidateParent before any
// parent reassignment.
type Category struct {
	ID          uint    `gorm:"primaryKey;autoIncrement;->" json:"id"`
	Name        string  `gorm:"index;not null" json:"name"`
	Description *string `gorm:"type:text" json:"description,omitempty"`
	Slug        string  `gorm:"uniqueIndex;not null" json:"slug"`

	ParentID *uint      `gorm:"index" json:"parent_id,omitempty"`
	Parent   *Category  `gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE" json:"-"`
	Children []Category `gorm:"foreignKey:ParentID" json:"children,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamp;default:CURRENT_TIMESTAMP;->" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamp" json:"updated_at"`
}

// Ancestors walks the parent chain upward and returns ancestor IDs
// from closest to farthest. The visited set guards the walk against a
// corrupted chain so it always terminates.
func (cat *Category) Ancestors(db *gorm.DB) ([]uint, error) {
	var ids []uint
	visited := map[uint]bool{cat.ID: true}

	parentID := cat.ParentID
	for parentID != nil {
		if visited[*parentID] {
			return ids, ErrCategoryCycle
		}
		visited[*parentID] = true
		ids = append(ids, *parentID)

		var parent Category
		if err := db.Select("id", "parent_id").First(&parent, *parentID).Error; err != nil {
			return ids, err
		}
		parentID = parent.ParentID
	}
	return ids, nil
}

// ValidateParent rejects a proposed parent that is the category itself
// or one of its descendants.
func (cat *Category) ValidateParent(db *gorm.DB, parentID uint) error {
	if parentID == cat.ID {
		return ErrCategoryCycle
	}

	parent := Category{}
	if err := db.First(&parent, parentID).Error; err != nil {
		return err
	}

	ancestors, err := parent.Ancestors(db)
	if err != nil && !errors.Is(err, ErrCategoryCycle) {
		return err
	}
	for _, id := range ancestors {
		if id == cat.ID {
			return ErrCategoryCycle
		}
	}
	return nil
}

// FullPath returns the hierarchical path from root to this category,
// for example "Engineering > Backend". Derived on demand, never stored.
func (cat *Category) FullPath(db *gorm.DB) (string, error) {
	names := []string{cat.Name}
	visited := map[uint]bool{cat.ID: true}

	parentID := cat.ParentID
	for parentID != nil {
		if visited[*parentID] {
			break
		}
		visited[*parentID] = true

		var parent Category
		if err := db.Select("id", "name", "parent_id").First(&parent, *parentID).Error; err != nil {
			return "", err
		}
		names = append([]string{parent.Name}, names...)
		parentID = parent.ParentID
	}
	return strings.Join(names, " > "), nil
}

// Depth returns how many ancestors the category has, root is 0.
func (cat *Category) Depth(db *gorm.DB) (int, error) {
	ancestors, err := cat.Ancestors(db)
	if err != nil {
		return 0, err
	}
	return len(ancestors), nil
}
