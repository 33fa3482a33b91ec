package job

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jobboard-backend/internal/model"
	"jobboard-backend/internal/utilities"
)

// ExportApplications streams the job's applications as a CSV download.
// @Summary Export a job's applications as CSV
// @Description Owner or admin only
// @Tags Job
// @Produce text/csv
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param id path int true "Job ID"
// @Success 200 {string} string "CSV content"
// @Failure 403 {object} utilities.ErrorResponse "Not the owner"
// @Failure 404 {object} utilities.ErrorResponse "Job not found"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /job/{id}/export [get]
func (jc *JobController) ExportApplications(c *gin.Context) {
	_, job, ok := jc.loadManagedJob(c)
	if !ok {
		return
	}

	var applications []model.Application
	if err := jc.DB.Preload("Applicant").
		Where("job_id = ?", job.ID).
		Order("applied_at ASC").
		Find(&applications).Error; err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
			Error: fmt.Sprintf("Failed to fetch applications: %s", err.Error()),
		})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition",
		fmt.Sprintf("attachment; filename=job-%d-applications.csv", job.ID))

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"id", "applicant", "email", "status", "applied_at", "reviewed_at", "withdrawn"})
	for i := range applications {
		a := &applications[i]
		email := ""
		if a.Applicant.Email != nil {
			email = *a.Applicant.Email
		}
		reviewedAt := ""
		if a.ReviewedAt != nil {
			reviewedAt = a.ReviewedAt.Format("2006-01-02 15:04:05")
		}
		_ = w.Write([]string{
			strconv.FormatUint(uint64(a.ID), 10),
			a.Applicant.Username,
			email,
			a.Status,
			a.AppliedAt.Format("2006-01-02 15:04:05"),
			reviewedAt,
			strconv.FormatBool(a.IsWithdrawn),
		})
	}
	w.Flush()
}
