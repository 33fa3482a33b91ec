// Package file provides HTTP handlers for file-related operations.
package file

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobboard-backend/internal/database"
	"jobboard-backend/internal/model"
	"jobboard-backend/internal/utilities"
)

// FileController handles file related endpoints
type FileController struct {
	DB *database.DBinstanceStruct
}

// NewFileController creates a new instance of FileController
func NewFileController(db *database.DBinstanceStruct) *FileController {
	return &FileController{DB: db}
}

// GetFile retrieves a stored file and sends it as a downloadable
// attachment. Resumes are only visible to the applicant that uploaded
// them, the owner of the job applied to, and admins.
// @Summary Retrieve downloadable attachment
// @Tags File
// @Produce octet-stream
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param id path int true "ID of wanted file"
// @Success 200 {string} binary "Successfully retrieve file"
// @Failure 400 {object} utilities.ErrorResponse "Invalid authorization header"
// @Failure 401 {object} utilities.ErrorResponse "Invalid token"
// @Failure 404 {object} utilities.ErrorResponse "Given file id not found"
// @Failure 500 {object} utilities.ErrorResponse "Fail to send file content"
// @Router /file/{id} [get]
func (fc *FileController) GetFile(c *gin.Context) {
	user, err := utilities.ExtractUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	var file model.File
	if err := fc.DB.First(&file, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, utilities.ErrorResponse{Error: "File not found"})
		return
	}

	if !fc.canAccess(user, file.ID) {
		c.JSON(http.StatusNotFound, utilities.ErrorResponse{Error: "File not found"})
		return
	}

	c.Writer.Header().Set("Content-Disposition", "attachment; filename="+fmt.Sprint(file.ID)+file.Extension)
	c.Writer.Header().Set("Content-Type", "application/octet-stream")
	c.Writer.Header().Set("Content-Length", fmt.Sprint(len(file.Content)))
	if _, err := c.Writer.Write(file.Content); err != nil {
		if !c.Writer.Written() {
			c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
				Error: "Failed to send file content",
			})
		} else {
			c.Abort()
		}
	}
}

// canAccess reports whether the user may download the file via the
// application that references it.
func (fc *FileController) canAccess(user model.User, fileID int) bool {
	if user.IsAdmin() {
		return true
	}

	var application model.Application
	err := fc.DB.Preload("Job").Where("resume_id = ?", fileID).First(&application).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Orphan files are admin-only.
		return false
	}
	if err != nil {
		return false
	}
	return application.ApplicantID == user.ID || application.Job.CanManage(user)
}
