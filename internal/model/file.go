package model

// File stores an uploaded file's bytes directly in the database,
// referenced by applications for their resume.
type File struct {
	ID        int    `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"type:text" json:"name"`
	Content   []byte `json:"-"`
	Extension string `json:"extension"`
}
