// Package job provides HTTP handlers for job posting operations and
// the job status state machine.
package job

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jobboard-backend/internal/cache"
	"jobboard-backend/internal/database"
	"jobboard-backend/internal/event"
	"jobboard-backend/internal/model"
	"jobboard-backend/internal/utilities"
)

// JobController handles job posting related endpoints
type JobController struct {
	DB    *database.DBinstanceStruct
	Cache *cache.Cache
	Bus   *event.Bus
}

// NewJobController creates a new instance of JobController
func NewJobController(db *database.DBinstanceStruct, c *cache.Cache, bus *event.Bus) *JobController {
	return &JobController{DB: db, Cache: c, Bus: bus}
}

// approvalRequired reports whether jobs from non-admin employers need
// admin moderation before showing up publicly.
func approvalRequired() bool {
	return strings.ToLower(strings.TrimSpace(os.Getenv("JOB_APPROVAL_REQUIRED"))) == "true"
}

// CreateJobHandler handles the creation of a new job posting by an employer.
// Status always starts at draft; the approval sub-state starts pending
// when the moderation flag is on and the creator is not an admin.
// @Summary Create job posting
// @Description Employer or admin only. Status starts as draft.
// @Tags Job
// @Accept json
// @Produce json
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param job body model.EditableJobInfo true "Job information"
// @Success 201 {object} model.Job "Successfully create job"
// @Failure 400 {object} utilities.ErrorResponse "Invalid field values or unknown category"
// @Failure 401 {object} utilities.ErrorResponse "Invalid token"
// @Failure 403 {object} utilities.ErrorResponse "Not logged in as employer or admin"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /job [post]
func (jc *JobController) CreateJobHandler(c *gin.Context) {
	user, err := utilities.ExtractUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	var info model.EditableJobInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		c.JSON(http.StatusBadRequest, utilities.ErrorResponse{
			Error: fmt.Sprintf("Invalid request body: %s", err.Error()),
		})
		return
	}

	if info.Title == "" || info.Description == "" || info.Requirements == "" ||
		info.Location == "" || info.CategoryID == 0 {
		c.JSON(http.StatusBadRequest, utilities.ErrorResponse{
			Error: "title, description, requirements, location, and category_id must be provided",
		})
		return
	}
	if err := info.Validate(time.Now()); err != nil {
		c.JSON(http.StatusBadRequest, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	var category model.Category
	if err := jc.DB.First(&category, info.CategoryID).Error; err != nil {
		c.JSON(http.StatusBadRequest, utilities.ErrorResponse{Error: "Category not found"})
		return
	}

	job := model.Job{
		EmployerID:      user.ID,
		EditableJobInfo: info,
		Status:          model.JobStatusDraft,
		ApprovalStatus:  model.ApprovalStatusApproved,
	}
	if approvalRequired() && !user.IsAdmin() {
		job.ApprovalStatus = model.ApprovalStatusPending
	}

	if err := jc.DB.Create(&job).Error; err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
			Error: fmt.Sprint("Failed to create job: ", err),
		})
		return
	}

	c.JSON(http.StatusCreated, job)
}

// GetJobs fetches publicly visible jobs matching query filters, served
// from cache when the same filter combination was asked recently.
// @Summary Get active job postings based on query
// @Description Public endpoint. Only active, approved jobs are listed.
// @Tags Job
// @Produce json
// @Param search query string false "Substring match on title or description, case insensitive"
// @Param category query int false "Category ID"
// @Param location query string false "Substring match on location, case insensitive"
// @Param type query string false "Exact job_type match"
// @Param tag query string false "Tag membership, case insensitive"
// @Param salary_min query int false "Only jobs whose salary_max is at least this"
// @Param salary_max query int false "Only jobs whose salary_min is at most this"
// @Param desc query boolean false "Sorting by created time in descending if true, otherwise ascending"
// @Success 200 {array} model.Job "Matching jobs"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /job [get]
func (jc *JobController) GetJobs(c *gin.Context) {
	ctx := context.Background()
	cacheKey := cache.JobListKey(c.Request.URL.RawQuery)

	var cached []model.Job
	if jc.Cache.GetJSON(ctx, cacheKey, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	result := jc.DB.Model(&model.Job{}).
		Where("status = ?", model.JobStatusActive).
		Where("approval_status = ?", model.ApprovalStatusApproved)

	if rawSearch := c.Query("search"); rawSearch != "" {
		like := "%" + rawSearch + "%"
		result = result.Where("title ILIKE ? OR description ILIKE ?", like, like)
	}
	if rawCategory := c.Query("category"); rawCategory != "" {
		result = result.Where("category_id = ?", rawCategory)
	}
	if rawLocation := c.Query("location"); rawLocation != "" {
		result = result.Where("location ILIKE ?", "%"+rawLocation+"%")
	}
	if rawType := c.Query("type"); rawType != "" {
		result = result.Where("job_type = ?", rawType)
	}
	if rawTag := c.Query("tag"); rawTag != "" {
		result = result.Where("? ILIKE ANY(tags)", rawTag)
	}
	if rawMin := c.Query("salary_min"); rawMin != "" {
		result = result.Where("salary_max IS NULL OR salary_max >= ?", rawMin)
	}
	if rawMax := c.Query("salary_max"); rawMax != "" {
		result = result.Where("salary_min IS NULL OR salary_min <= ?", rawMax)
	}

	var jobs []model.Job
	err := result.Order(clause.OrderByColumn{
		Column: clause.Column{Name: "created_at"},
		Desc:   strings.ToLower(c.Query("desc")) == "true",
	}).Find(&jobs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
			Error: fmt.Sprint("Failed to fetch jobs: ", err.Error()),
		})
		return
	}

	jc.Cache.SetJSON(ctx, cacheKey, jobs, cache.JobListTTL)
	c.JSON(http.StatusOK, jobs)
}

// GetFeatured fetches active featured jobs.
// @Summary Get featured job postings
// @Tags Job
// @Produce json
// @Success 200 {array} model.Job "Featured jobs"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /job/featured [get]
func (jc *JobController) GetFeatured(c *gin.Context) {
	ctx := context.Background()
	cacheKey := cache.JobListKey("featured")

	var cached []model.Job
	if jc.Cache.GetJSON(ctx, cacheKey, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	var jobs []model.Job
	err := jc.DB.
		Where("status = ? AND approval_status = ? AND is_featured = true",
			model.JobStatusActive, model.ApprovalStatusApproved).
		Order("created_at DESC").Find(&jobs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	jc.Cache.SetJSON(ctx, cacheKey, jobs, cache.JobListTTL)
	c.JSON(http.StatusOK, jobs)
}

// GetMyJobs fetches the caller's own jobs regardless of status.
// Admins see every job. Optional status filter.
// @Summary Get own job postings
// @Tags Job
// @Produce json
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param status query string false "Filter by status (draft/active/closed)"
// @Success 200 {array} model.Job "Own jobs"
// @Failure 401 {object} utilities.ErrorResponse "Invalid token"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /job/mine [get]
func (jc *JobController) GetMyJobs(c *gin.Context) {
	user, err := utilities.ExtractUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	result := jc.DB.Model(&model.Job{})
	if !user.IsAdmin() {
		result = result.Where("employer_id = ?", user.ID)
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		result = result.Where("status = ?", rawStatus)
	}

	var jobs []model.Job
	if err := result.Order("created_at DESC").Find(&jobs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// GetJobByID fetches one job and bumps its view counter atomically at
// the storage layer. Drafts and unapproved jobs are visible only to
// their owner and admins.
// @Summary Get one job posting
// @Tags Job
// @Produce json
// @Param id path int true "Job ID"
// @Success 200 {object} model.Job "Job"
// @Failure 404 {object} utilities.ErrorResponse "Job not found or not visible"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /job/{id} [get]
func (jc *JobController) GetJobByID(c *gin.Context) {
	var job model.Job
	if err := jc.DB.First(&job, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, utilities.ErrorResponse{Error: "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	if !job.PubliclyVisible() || job.Status == model.JobStatusDraft {
		// Hidden unless the caller owns it or is an admin.
		user, err := utilities.ExtractUser(c)
		if err != nil || !job.CanManage(user) {
			c.JSON(http.StatusNotFound, utilities.ErrorResponse{Error: "Job not found"})
			return
		}
	}

	// views_count must be incremented in the database, not
	// read-modify-write in Go, to avoid lost updates.
	if err := jc.DB.Model(&model.Job{}).Where("id = ?", job.ID).
		UpdateColumn("views_count", gorm.Expr("views_count + 1")).Error; err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: err.Error()})
		return
	}
	job.ViewsCount++

	c.JSON(http.StatusOK, job)
}

// EditJob lets the owner or an admin update editable fields.
// @Summary Edit job posting fields
// @Description Owner or admin only. Status is not editable here, use the status endpoint.
// @Tags Job
// @Accept json
// @Produce json
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param id path int true "Job ID"
// @Param job body model.EditableJobInfo true "Fields to update"
// @Success 200 {object} model.Job "Updated job"
// @Failure 400 {object} utilities.ErrorResponse "Invalid field values"
// @Failure 403 {object} utilities.ErrorResponse "Not the owner"
// @Failure 404 {object} utilities.ErrorResponse "Job not found"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /job/{id} [patch]
func (jc *JobController) EditJob(c *gin.Context) {
	_, job, ok := jc.loadManagedJob(c)
	if !ok {
		return
	}

	var info model.EditableJobInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		c.JSON(http.StatusBadRequest, utilities.ErrorResponse{
			Error: fmt.Sprintf("Invalid request body: %s", err.Error()),
		})
		return
	}

	// Only a deadline submitted in this request must lie in the
	// future; a stored deadline that has since passed does not block
	// edits to other fields.
	if err := model.ValidateDeadline(info.ApplicationDeadline, time.Now()); err != nil {
		c.JSON(http.StatusBadRequest, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	utilities.MergeNonEmpty(&job.EditableJobInfo, &info)
	if err := job.EditableJobInfo.ValidateFields(); err != nil {
		c.JSON(http.StatusBadRequest, utilities.ErrorResponse{Error: err.Error()})
		return
	}
	if info.CategoryID != 0 {
		var category model.Category
		if err := jc.DB.First(&category, info.CategoryID).Error; err != nil {
			c.JSON(http.StatusBadRequest, utilities.ErrorResponse{Error: "Category not found"})
			return
		}
	}

	if err := jc.DB.Save(&job).Error; err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
			Error: fmt.Sprintf("Failed to update job: %s", err.Error()),
		})
		return
	}

	jc.Cache.InvalidateJobs(context.Background())
	c.JSON(http.StatusOK, job)
}

// UpdateJobStatus drives the draft -> active -> closed state machine.
// Re-requesting the current status is a no-op: closing an
// already-closed job returns the job unchanged and emits nothing.
// @Summary Update job status
// @Description Owner or admin only. Valid transitions: draft->active, active->closed.
// @Tags Job
// @Accept json
// @Produce json
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param id path int true "Job ID"
// @Param status body job.statusUpdateRequest true "Target status"
// @Success 200 {object} model.Job "Updated job"
// @Failure 400 {object} utilities.ErrorResponse "Activating an incomplete job"
// @Failure 403 {object} utilities.ErrorResponse "Not the owner"
// @Failure 404 {object} utilities.ErrorResponse "Job not found"
// @Failure 409 {object} utilities.ErrorResponse "Transition not allowed by the state machine"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /job/{id}/status [patch]
func (jc *JobController) UpdateJobStatus(c *gin.Context) {
	user, job, ok := jc.loadManagedJob(c)
	if !ok {
		return
	}

	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utilities.ErrorResponse{Error: "status must be provided"})
		return
	}

	if req.Status == job.Status {
		// Idempotent: no transition, no history, no event.
		c.JSON(http.StatusOK, job)
		return
	}

	if !model.ValidJobTransition(job.Status, req.Status) {
		c.JSON(http.StatusConflict, utilities.ErrorResponse{
			Error: fmt.Sprintf("Cannot transition job from %s to %s. Valid transitions: %s",
				job.Status, req.Status, strings.Join(model.JobTransitionsFrom(job.Status), ", ")),
		})
		return
	}

	if req.Status == model.JobStatusActive {
		if err := job.ReadyToPublish(); err != nil {
			c.JSON(http.StatusBadRequest, utilities.ErrorResponse{Error: err.Error()})
			return
		}
	}

	// Guarded update: the status column flips only if it still holds
	// the value the transition was validated against, so two requests
	// racing from the same state commit exactly once.
	oldStatus := job.Status
	res := jc.DB.Model(&model.Job{}).
		Where("id = ? AND status = ?", job.ID, oldStatus).
		Update("status", req.Status)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
			Error: fmt.Sprintf("Failed to update job status: %s", res.Error.Error()),
		})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusConflict, utilities.ErrorResponse{
			Error: "Job was changed by a concurrent request",
		})
		return
	}
	job.Status = req.Status

	jc.Bus.Publish(event.Event{
		Entity:   event.EntityJob,
		EntityID: job.ID,
		Event:    jobStatusEvent(req.Status),
		ActorID:  &user.ID,
		Payload: map[string]interface{}{
			"old_status": oldStatus,
			"new_status": req.Status,
		},
	})

	c.JSON(http.StatusOK, job)
}

// UpdateApproval lets an admin moderate a job. Orthogonal to the
// status machine: it gates public visibility only.
// @Summary Approve or reject a job posting
// @Description Admin only
// @Tags Job
// @Accept json
// @Produce json
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param id path int true "Job ID"
// @Param approval body job.approvalUpdateRequest true "Target approval status"
// @Success 200 {object} model.Job "Updated job"
// @Failure 400 {object} utilities.ErrorResponse "Unknown approval status"
// @Failure 404 {object} utilities.ErrorResponse "Job not found"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /job/{id}/approval [patch]
func (jc *JobController) UpdateApproval(c *gin.Context) {
	user, err := utilities.ExtractUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	var job model.Job
	if err := jc.DB.First(&job, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, utilities.ErrorResponse{Error: "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	var req approvalUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utilities.ErrorResponse{
			Error: "approval_status must be 'approved' or 'rejected'",
		})
		return
	}

	if req.ApprovalStatus == job.ApprovalStatus {
		c.JSON(http.StatusOK, job)
		return
	}

	job.ApprovalStatus = req.ApprovalStatus
	if err := jc.DB.Model(&model.Job{}).Where("id = ?", job.ID).
		Update("approval_status", req.ApprovalStatus).Error; err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	eventName := event.JobApproved
	if req.ApprovalStatus == model.ApprovalStatusRejected {
		eventName = event.JobRejected
	}
	jc.Bus.Publish(event.Event{
		Entity:   event.EntityJob,
		EntityID: job.ID,
		Event:    eventName,
		ActorID:  &user.ID,
		Payload:  map[string]interface{}{"approval_status": req.ApprovalStatus},
	})

	c.JSON(http.StatusOK, job)
}

// DeleteJob removes a job; its applications cascade at the storage layer.
// @Summary Delete job posting
// @Description Owner or admin only. Cascades to applications.
// @Tags Job
// @Produce json
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param id path int true "Job ID"
// @Success 200 {object} utilities.MessageResponse "Deleted"
// @Failure 403 {object} utilities.ErrorResponse "Not the owner"
// @Failure 404 {object} utilities.ErrorResponse "Job not found"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /job/{id} [delete]
func (jc *JobController) DeleteJob(c *gin.Context) {
	_, job, ok := jc.loadManagedJob(c)
	if !ok {
		return
	}

	if err := jc.DB.Delete(&job).Error; err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
			Error: fmt.Sprintf("Failed to delete job: %s", err.Error()),
		})
		return
	}

	jc.Cache.InvalidateJobs(context.Background())
	c.JSON(http.StatusOK, utilities.MessageResponse{Message: "Job deleted"})
}

type statusUpdateRequest struct {
	Status string `json:"status" binding:"required,oneof=draft active closed"`
}

type approvalUpdateRequest struct {
	ApprovalStatus string `json:"approval_status" binding:"required,oneof=approved rejected"`
}

// loadManagedJob loads the job from the path parameter and enforces
// the owner-or-admin guard, writing the error response on failure.
func (jc *JobController) loadManagedJob(c *gin.Context) (model.User, model.Job, bool) {
	user, err := utilities.ExtractUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utilities.ErrorResponse{Error: err.Error()})
		return user, model.Job{}, false
	}

	var job model.Job
	if err := jc.DB.First(&job, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, utilities.ErrorResponse{Error: "Job not found"})
			return user, job, false
		}
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: err.Error()})
		return user, job, false
	}

	if !job.CanManage(user) {
		c.JSON(http.StatusForbidden, utilities.ErrorResponse{
			Error: "Only the job owner or an admin can do this",
		})
		return user, job, false
	}
	return user, job, true
}

func jobStatusEvent(status string) string {
	if status == model.JobStatusClosed {
		return event.JobClosed
	}
	return event.JobActivated
}

// CloseExpiredJobs closes every active job whose application deadline
// passed, emitting one event per job actually closed. Invoked by the
// cmd/close-expired sweeper; closing is idempotent so re-running the
// sweeper is harmless.
func CloseExpiredJobs(db *database.DBinstanceStruct, bus *event.Bus) (int, error) {
	var expired []model.Job
	if err := db.Where("status = ? AND application_deadline IS NOT NULL AND application_deadline < ?",
		model.JobStatusActive, time.Now()).Find(&expired).Error; err != nil {
		return 0, err
	}

	closed := 0
	for i := range expired {
		job := &expired[i]
		// Guard the update on the current status so a concurrent close
		// results in one winner and no duplicate event.
		res := db.Model(&model.Job{}).
			Where("id = ? AND status = ?", job.ID, model.JobStatusActive).
			Update("status", model.JobStatusClosed)
		if res.Error != nil {
			return closed, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		closed++
		bus.Publish(event.Event{
			Entity:   event.EntityJob,
			EntityID: job.ID,
			Event:    event.JobClosed,
			Payload: map[string]interface{}{
				"old_status": model.JobStatusActive,
				"new_status": model.JobStatusClosed,
				"reason":     "deadline passed",
			},
		})
	}
	return closed, nil
}
