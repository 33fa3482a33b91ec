// Package application provides HTTP handlers for job application
// operations: submission, the status state machine, withdrawal, and
// the status history audit trail.
package application

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jobboard-backend/internal/database"
	"jobboard-backend/internal/event"
	"jobboard-backend/internal/model"
	"jobboard-backend/internal/utilities"
)

// ApplicationController handles job application related endpoints
type ApplicationController struct {
	DB  *database.DBinstanceStruct
	Bus *event.Bus
}

// NewApplicationController creates a new instance of ApplicationController.
func NewApplicationController(db *database.DBinstanceStruct, bus *event.Bus) *ApplicationController {
	return &ApplicationController{DB: db, Bus: bus}
}

// errStaleApplication aborts a transition transaction when the row no
// longer matches the state the handler validated against.
var errStaleApplication = errors.New("application changed concurrently")

// CreateApplicationHandler handles the multipart submission of a new
// application by a seeker. The four creation guards each answer with a
// distinct status code: duplicate 409, job not active 409, deadline
// passed 400, resume too large 413 / wrong extension 415. The
// duplicate check is ultimately enforced by the unique index on
// (job_id, applicant_id), so a concurrent double-submit loses cleanly.
// @Summary Submit a job application
// @Description Seeker only. Multipart form with job_id, cover_letter and a resume file (PDF/DOC/DOCX, max 5 MB).
// @Tags Application
// @Accept mpfd
// @Produce json
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param job_id formData int true "Target job ID"
// @Param cover_letter formData string false "Cover letter"
// @Param resume formData file true "Resume file"
// @Success 201 {object} model.Application "Successfully applied"
// @Failure 400 {object} utilities.ErrorResponse "Bad job_id, missing resume, or deadline passed"
// @Failure 401 {object} utilities.ErrorResponse "Invalid token"
// @Failure 403 {object} utilities.ErrorResponse "Not logged in as seeker"
// @Failure 404 {object} utilities.ErrorResponse "Job not found"
// @Failure 409 {object} utilities.ErrorResponse "Already applied or job not accepting applications"
// @Failure 413 {object} utilities.ErrorResponse "Resume larger than 5 MB"
// @Failure 415 {object} utilities.ErrorResponse "Resume extension not allowed"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /application [post]
func (ac *ApplicationController) CreateApplicationHandler(c *gin.Context) {
	user, err := utilities.ExtractUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	jobID, err := strconv.ParseUint(c.PostForm("job_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, utilities.ErrorResponse{Error: "job_id must be provided"})
		return
	}

	var job model.Job
	if err := ac.DB.First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, utilities.ErrorResponse{Error: "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	// Eligibility gate: the job must be active and within its deadline.
	if err := job.AcceptingApplications(time.Now()); err != nil {
		if errors.Is(err, model.ErrDeadlinePassed) {
			c.JSON(http.StatusBadRequest, utilities.ErrorResponse{
				Error: "Application deadline has passed",
			})
			return
		}
		c.JSON(http.StatusConflict, utilities.ErrorResponse{
			Error: fmt.Sprintf("Cannot apply to a %s job", job.Status),
		})
		return
	}

	// Early duplicate check for a friendly error; the unique index
	// still backs this up under concurrency.
	var existing model.Application
	err = ac.DB.Where("job_id = ? AND applicant_id = ?", job.ID, user.ID).First(&existing).Error
	if err == nil {
		c.JSON(http.StatusConflict, utilities.ErrorResponse{
			Error: "You have already applied to this job",
		})
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
			Error: "Failed to check existing application",
		})
		return
	}

	resume, ok := ac.readResume(c)
	if !ok {
		return
	}

	application := model.Application{
		JobID:       job.ID,
		ApplicantID: user.ID,
		CoverLetter: c.PostForm("cover_letter"),
		Status:      model.ApplicationStatusPending,
	}

	// Resume row and application row commit together. The eligibility
	// gate is re-checked under a share lock so a job closed after the
	// pre-check cannot admit the application.
	err = ac.DB.Transaction(func(tx *gorm.DB) error {
		var current model.Job
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			First(&current, job.ID).Error; err != nil {
			return err
		}
		if err := current.AcceptingApplications(time.Now()); err != nil {
			job.Status = current.Status
			return err
		}
		if err := tx.Create(&resume).Error; err != nil {
			return err
		}
		application.ResumeID = &resume.ID
		return tx.Create(&application).Error
	})
	if errors.Is(err, model.ErrDeadlinePassed) {
		c.JSON(http.StatusBadRequest, utilities.ErrorResponse{
			Error: "Application deadline has passed",
		})
		return
	}
	if errors.Is(err, model.ErrJobNotActive) {
		c.JSON(http.StatusConflict, utilities.ErrorResponse{
			Error: fmt.Sprintf("Cannot apply to a %s job", job.Status),
		})
		return
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				// Lost the race against a concurrent identical submit.
				c.JSON(http.StatusConflict, utilities.ErrorResponse{
					Error: "You have already applied to this job",
				})
				return
			case "23503":
				c.JSON(http.StatusBadRequest, utilities.ErrorResponse{
					Error: fmt.Sprintf("Invalid job reference: %s", err.Error()),
				})
				return
			}
		}
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
			Error: fmt.Sprintf("Failed to create application: %s", err.Error()),
		})
		return
	}

	ac.Bus.Publish(event.Event{
		Entity:   event.EntityApplication,
		EntityID: application.ID,
		ActorID:  &user.ID,
		Event:    event.ApplicationReceived,
		Payload: map[string]interface{}{
			"job_id":       job.ID,
			"applicant_id": user.ID.String(),
		},
	})

	c.JSON(http.StatusCreated, application)
}

// readResume pulls the resume part out of the multipart form and
// enforces the size and extension constraints, writing the error
// response itself on failure.
func (ac *ApplicationController) readResume(c *gin.Context) (model.File, bool) {
	rawFile, err := c.FormFile("resume")

	var maxBytesError *http.MaxBytesError
	if errors.As(err, &maxBytesError) {
		c.JSON(http.StatusRequestEntityTooLarge, utilities.ErrorResponse{Error: err.Error()})
		return model.File{}, false
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, utilities.ErrorResponse{Error: "Resume file must be provided"})
		return model.File{}, false
	}

	if rawFile.Size > model.MaxResumeSize {
		c.JSON(http.StatusRequestEntityTooLarge, utilities.ErrorResponse{
			Error: fmt.Sprintf("Resume must not exceed %d MB", model.MaxResumeSize>>20),
		})
		return model.File{}, false
	}

	extension := strings.ToLower(filepath.Ext(rawFile.Filename))
	if !model.AllowedResumeExtensions[extension] {
		c.JSON(http.StatusUnsupportedMediaType, utilities.ErrorResponse{
			Error: fmt.Sprintf("Unsupported file extension: %s (allowed: .pdf, .doc, .docx)", extension),
		})
		return model.File{}, false
	}

	f, err := rawFile.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: "Cannot open file"})
		return model.File{}, false
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("failed to close uploaded file: %v", err)
		}
	}()

	fileBytes, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: "Cannot read file"})
		return model.File{}, false
	}

	return model.File{
		Name:      rawFile.Filename,
		Content:   fileBytes,
		Extension: extension,
	}, true
}

// GetApplications lists applications visible to the caller: seekers
// see their own, employers see applications to their jobs, admins see
// everything.
// @Summary List visible applications
// @Tags Application
// @Produce json
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param status query string false "Filter by application status"
// @Param job query int false "Filter by job ID"
// @Success 200 {array} model.Application "Applications"
// @Failure 401 {object} utilities.ErrorResponse "Invalid token"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /application [get]
func (ac *ApplicationController) GetApplications(c *gin.Context) {
	user, err := utilities.ExtractUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	result := ac.DB.Model(&model.Application{})
	switch user.Role {
	case model.RoleSeeker:
		result = result.Where("applicant_id = ?", user.ID)
	case model.RoleEmployer:
		result = result.Joins("JOIN jobs ON jobs.id = applications.job_id").
			Where("jobs.employer_id = ?", user.ID)
	}

	if rawStatus := c.Query("status"); rawStatus != "" {
		result = result.Where("applications.status = ?", rawStatus)
	}
	if rawJob := c.Query("job"); rawJob != "" {
		result = result.Where("applications.job_id = ?", rawJob)
	}

	var applications []model.Application
	if err := result.Order("applied_at DESC").Find(&applications).Error; err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
			Error: fmt.Sprintf("Failed to fetch applications: %s", err.Error()),
		})
		return
	}
	c.JSON(http.StatusOK, applications)
}

// GetApplicationByID fetches one application, visible to the
// applicant, the job owner, and admins.
// @Summary Get one application
// @Tags Application
// @Produce json
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param id path int true "Application ID"
// @Success 200 {object} model.Application "Application"
// @Failure 401 {object} utilities.ErrorResponse "Invalid token"
// @Failure 404 {object} utilities.ErrorResponse "Application not found or not visible"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /application/{id} [get]
func (ac *ApplicationController) GetApplicationByID(c *gin.Context) {
	_, application, ok := ac.loadVisibleApplication(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, application)
}

// UpdateStatusHandler drives the application status state machine. The
// status update and its history row commit in one transaction; the
// domain event goes out only after that commit.
// @Summary Update application status
// @Description Job owner or admin only. Valid transitions: pending->reviewed/accepted/rejected, reviewed->accepted/rejected.
// @Tags Application
// @Accept json
// @Produce json
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param id path int true "Application ID"
// @Param status body application.statusUpdateRequest true "Target status, optional notes and reason"
// @Success 200 {object} model.Application "Updated application"
// @Failure 401 {object} utilities.ErrorResponse "Invalid token"
// @Failure 403 {object} utilities.ErrorResponse "Not the job owner"
// @Failure 404 {object} utilities.ErrorResponse "Application not found"
// @Failure 409 {object} utilities.ErrorResponse "Invalid transition or withdrawn application"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /application/{id}/status [patch]
func (ac *ApplicationController) UpdateStatusHandler(c *gin.Context) {
	user, err := utilities.ExtractUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	var application model.Application
	if err := ac.DB.Preload("Job").First(&application, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, utilities.ErrorResponse{Error: "Application not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	if !application.Job.CanManage(user) {
		c.JSON(http.StatusForbidden, utilities.ErrorResponse{
			Error: "Only the job owner or an admin can change application status",
		})
		return
	}

	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utilities.ErrorResponse{
			Error: "status must be one of pending, reviewed, accepted, rejected",
		})
		return
	}

	if application.IsWithdrawn {
		c.JSON(http.StatusConflict, utilities.ErrorResponse{
			Error: "Application has been withdrawn and accepts no further changes",
		})
		return
	}

	if req.Status == application.Status {
		// No transition requested: nothing recorded, nothing emitted.
		c.JSON(http.StatusOK, application)
		return
	}

	if !model.ValidApplicationTransition(application.Status, req.Status) {
		valid := model.ApplicationTransitionsFrom(application.Status)
		msg := fmt.Sprintf("Cannot transition from %s to %s. Valid transitions: %s",
			application.Status, req.Status, strings.Join(valid, ", "))
		if len(valid) == 0 {
			msg = fmt.Sprintf("Application is in terminal state %s", application.Status)
		}
		c.JSON(http.StatusConflict, utilities.ErrorResponse{Error: msg})
		return
	}

	oldStatus := application.Status
	now := time.Now()

	err = ac.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"status": req.Status}
		if oldStatus == model.ApplicationStatusPending && application.ReviewedAt == nil {
			updates["reviewed_at"] = now
		}
		if req.Notes != nil {
			updates["notes"] = *req.Notes
		}
		// Guarded update: commit only if the row still holds the status
		// the transition was validated against and was not withdrawn in
		// the meantime. A concurrent winner leaves zero rows affected.
		res := tx.Model(&model.Application{}).
			Where("id = ? AND status = ? AND is_withdrawn = false", application.ID, oldStatus).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errStaleApplication
		}
		return tx.Create(&model.StatusHistory{
			ApplicationID: application.ID,
			OldStatus:     oldStatus,
			NewStatus:     req.Status,
			ChangedByID:   &user.ID,
			Reason:        req.Reason,
		}).Error
	})
	if errors.Is(err, errStaleApplication) {
		c.JSON(http.StatusConflict, utilities.ErrorResponse{
			Error: "Application was changed by a concurrent request",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
			Error: fmt.Sprintf("Failed to update application status: %s", err.Error()),
		})
		return
	}

	application.Status = req.Status
	if oldStatus == model.ApplicationStatusPending && application.ReviewedAt == nil {
		application.ReviewedAt = &now
	}
	if req.Notes != nil {
		application.Notes = req.Notes
	}

	ac.Bus.Publish(event.Event{
		Entity:   event.EntityApplication,
		EntityID: application.ID,
		Event:    applicationStatusEvent(req.Status),
		ActorID:  &user.ID,
		Payload: map[string]interface{}{
			"job_id":     application.JobID,
			"old_status": oldStatus,
			"new_status": req.Status,
		},
	})

	c.JSON(http.StatusOK, application)
}

// WithdrawHandler lets the applicant withdraw a pending or reviewed
// application. Withdrawal is terminal: the flag blocks every later
// status change.
// @Summary Withdraw an application
// @Description Applicant only, while status is pending or reviewed.
// @Tags Application
// @Accept json
// @Produce json
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param id path int true "Application ID"
// @Param reason body application.withdrawRequest false "Optional reason"
// @Success 200 {object} model.Application "Withdrawn application"
// @Failure 401 {object} utilities.ErrorResponse "Invalid token"
// @Failure 403 {object} utilities.ErrorResponse "Not the applicant"
// @Failure 404 {object} utilities.ErrorResponse "Application not found"
// @Failure 409 {object} utilities.ErrorResponse "Already withdrawn or terminal status"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /application/{id}/withdraw [post]
func (ac *ApplicationController) WithdrawHandler(c *gin.Context) {
	user, err := utilities.ExtractUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	var application model.Application
	if err := ac.DB.First(&application, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, utilities.ErrorResponse{Error: "Application not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	if application.ApplicantID != user.ID {
		c.JSON(http.StatusForbidden, utilities.ErrorResponse{
			Error: "You can only withdraw your own applications",
		})
		return
	}

	if application.IsWithdrawn {
		c.JSON(http.StatusConflict, utilities.ErrorResponse{Error: "Application is already withdrawn"})
		return
	}
	if !application.Withdrawable() {
		c.JSON(http.StatusConflict, utilities.ErrorResponse{
			Error: fmt.Sprintf("Cannot withdraw an application in terminal state %s", application.Status),
		})
		return
	}

	var req withdrawRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	now := time.Now()
	err = ac.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"is_withdrawn": true,
			"withdrawn_at": now,
		}
		if req.Reason != "" {
			updates["withdrawal_reason"] = req.Reason
		}
		// Guarded update: a transition or withdrawal that committed
		// since the read leaves zero rows affected, keeping withdrawal
		// exclusive with terminal decisions.
		res := tx.Model(&model.Application{}).
			Where("id = ? AND status = ? AND is_withdrawn = false", application.ID, application.Status).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errStaleApplication
		}
		return tx.Create(&model.StatusHistory{
			ApplicationID: application.ID,
			OldStatus:     application.Status,
			NewStatus:     model.ApplicationStatusWithdrawn,
			ChangedByID:   &user.ID,
			Reason:        req.Reason,
		}).Error
	})
	if errors.Is(err, errStaleApplication) {
		c.JSON(http.StatusConflict, utilities.ErrorResponse{
			Error: "Application was changed by a concurrent request",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
			Error: fmt.Sprintf("Failed to withdraw application: %s", err.Error()),
		})
		return
	}

	application.IsWithdrawn = true
	application.WithdrawnAt = &now
	if req.Reason != "" {
		application.WithdrawalReason = &req.Reason
	}

	ac.Bus.Publish(event.Event{
		Entity:   event.EntityApplication,
		EntityID: application.ID,
		Event:    event.ApplicationWithdrawn,
		ActorID:  &user.ID,
		Payload: map[string]interface{}{
			"job_id": application.JobID,
			"reason": req.Reason,
		},
	})

	c.JSON(http.StatusOK, application)
}

// GetHistoryHandler lists an application's status history in
// chronological order.
// @Summary Get an application's status history
// @Description Visible to the applicant, the job owner, and admins.
// @Tags Application
// @Produce json
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param id path int true "Application ID"
// @Success 200 {array} model.StatusHistory "Transitions, oldest first"
// @Failure 401 {object} utilities.ErrorResponse "Invalid token"
// @Failure 404 {object} utilities.ErrorResponse "Application not found or not visible"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /application/{id}/history [get]
func (ac *ApplicationController) GetHistoryHandler(c *gin.Context) {
	_, application, ok := ac.loadVisibleApplication(c)
	if !ok {
		return
	}

	var history []model.StatusHistory
	if err := ac.DB.Where("application_id = ?", application.ID).
		Order("changed_at ASC, id ASC").Find(&history).Error; err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
			Error: fmt.Sprintf("Failed to fetch status history: %s", err.Error()),
		})
		return
	}
	c.JSON(http.StatusOK, history)
}

type statusUpdateRequest struct {
	Status string  `json:"status" binding:"required,oneof=pending reviewed accepted rejected"`
	Notes  *string `json:"notes"`
	Reason string  `json:"reason"`
}

type withdrawRequest struct {
	Reason string `json:"reason"`
}

// loadVisibleApplication loads the application from the path parameter
// and enforces the applicant/job-owner/admin visibility rule, writing
// the error response on failure.
func (ac *ApplicationController) loadVisibleApplication(c *gin.Context) (model.User, model.Application, bool) {
	user, err := utilities.ExtractUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utilities.ErrorResponse{Error: err.Error()})
		return user, model.Application{}, false
	}

	var application model.Application
	if err := ac.DB.Preload("Job").First(&application, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, utilities.ErrorResponse{Error: "Application not found"})
			return user, application, false
		}
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: err.Error()})
		return user, application, false
	}

	if application.ApplicantID != user.ID && !application.Job.CanManage(user) {
		c.JSON(http.StatusNotFound, utilities.ErrorResponse{Error: "Application not found"})
		return user, application, false
	}
	return user, application, true
}

func applicationStatusEvent(status string) string {
	switch status {
	case model.ApplicationStatusAccepted:
		return event.ApplicationAccepted
	case model.ApplicationStatusRejected:
		return event.ApplicationRejected
	default:
		return event.ApplicationReviewed
	}
}
