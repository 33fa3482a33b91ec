package utilities

import (
	"fmt"
	"strings"
	"unicode"

	"gorm.io/gorm"
)

// Slugify lowercases the name and replaces every non-alphanumeric run
// with a single hyphen.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteRune('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// UniqueSlug derives a slug from name and disambiguates collisions
// with a numeric suffix ("backend", "backend-2", "backend-3", ...).
// model must be a pointer to the gorm model owning the slug column.
// excludeID, when nonzero, leaves that row out of the collision check
// so a rename never collides with the row being renamed.
func UniqueSlug(db *gorm.DB, model interface{}, name string, excludeID uint) (string, error) {
	base := Slugify(name)
	if base == "" {
		base = "category"
	}

	slug := base
	for i := 2; ; i++ {
		query := db.Model(model).Where("slug = ?", slug)
		if excludeID != 0 {
			query = query.Where("id <> ?", excludeID)
		}
		var count int64
		if err := query.Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}
