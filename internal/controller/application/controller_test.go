package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"

	"jobboard-backend/internal/auth"
	"jobboard-backend/internal/database"
	"jobboard-backend/internal/event"
	"jobboard-backend/internal/middleware"
	"jobboard-backend/internal/model"
	"jobboard-backend/internal/testutil"
)

var testDB *database.DBinstanceStruct

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	var err error
	var midTeardown func(context.Context, ...testcontainers.TerminateOption) error
	midTeardown, testDB, err = database.GetTestDB()
	if err != nil {
		os.Exit(1)
	}
	m.Run()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if midTeardown != nil {
		_ = midTeardown(ctx)
	}
}

func newTestController() (*ApplicationController, *[]event.Event) {
	bus := event.NewBus()
	captured := &[]event.Event{}
	bus.Subscribe(func(e event.Event) {
		*captured = append(*captured, e)
	})
	return NewApplicationController(testDB, bus), captured
}

func applicationEngine(ac *ApplicationController) *gin.Engine {
	r := gin.Default()
	needAuth := r.Group("")
	needAuth.Use(middleware.RequireAuth(testDB))
	needAuth.POST("/application",
		middleware.CheckRole(model.RoleSeeker),
		middleware.SizeLimit(model.MaxResumeSize),
		ac.CreateApplicationHandler)
	needAuth.GET("/application", ac.GetApplications)
	needAuth.GET("/application/:id", ac.GetApplicationByID)
	needAuth.GET("/application/:id/history", ac.GetHistoryHandler)
	needAuth.PATCH("/application/:id/status",
		middleware.CheckRole(model.RoleEmployer, model.RoleAdmin),
		ac.UpdateStatusHandler)
	needAuth.POST("/application/:id/withdraw",
		middleware.CheckRole(model.RoleSeeker),
		ac.WithdrawHandler)
	return r
}

func tokenFor(t *testing.T, user model.User) string {
	t.Helper()
	token, err := auth.GetAccessToken(t, testDB, user.Username, database.TestSeedPassword)
	assert.NoError(t, err)
	return token
}

func createJob(t *testing.T, employer model.User, status string, deadline *time.Time) model.Job {
	t.Helper()
	job := model.Job{
		EmployerID:     employer.ID,
		Status:         status,
		ApprovalStatus: model.ApprovalStatusApproved,
		EditableJobInfo: model.EditableJobInfo{
			Title:               "Go Developer",
			Description:         "API work.",
			Requirements:        "Go",
			Location:            "Remote",
			JobType:             "full-time",
			CategoryID:          database.TestCategoryChild.ID,
			ApplicationDeadline: deadline,
		},
	}
	if err := testDB.Create(&job).Error; err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	return job
}

// seedApplication inserts a pending application directly, bypassing
// the HTTP layer, for tests that exercise the transition endpoints.
func seedApplication(t *testing.T, job model.Job, applicant model.User) model.Application {
	t.Helper()
	f := model.File{Name: "resume.pdf", Content: []byte("resume"), Extension: ".pdf"}
	if err := testDB.Create(&f).Error; err != nil {
		t.Fatalf("failed to create resume file: %v", err)
	}
	app := model.Application{
		JobID:       job.ID,
		ApplicantID: applicant.ID,
		ResumeID:    &f.ID,
		Status:      model.ApplicationStatusPending,
	}
	if err := testDB.Create(&app).Error; err != nil {
		t.Fatalf("failed to create application: %v", err)
	}
	return app
}

func applyForm(jobID uint) map[string]string {
	return map[string]string{
		"job_id":       strconv.FormatUint(uint64(jobID), 10),
		"cover_letter": "I would be a great fit.",
	}
}

func TestCreateApplication_Success(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, nil)
	ac, captured := newTestController()
	r := applicationEngine(ac)
	token := tokenFor(t, database.TestSeeker1)

	rec, resp := testutil.MakeMultipartRequest(applyForm(job.ID),
		"resume", "resume.pdf", []byte("%PDF-1.4 test"), token, r, "/application")

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "pending", resp["status"])
	assert.Equal(t, float64(job.ID), resp["job_id"])

	if assert.Len(t, *captured, 1) {
		assert.Equal(t, event.ApplicationReceived, (*captured)[0].Event)
		assert.Equal(t, job.ID, (*captured)[0].Payload["job_id"])
	}
}

func TestCreateApplication_Duplicate(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, nil)
	ac, _ := newTestController()
	r := applicationEngine(ac)
	token := tokenFor(t, database.TestSeeker1)

	rec, _ := testutil.MakeMultipartRequest(applyForm(job.ID),
		"resume", "resume.pdf", []byte("%PDF-1.4"), token, r, "/application")
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec2, resp2 := testutil.MakeMultipartRequest(applyForm(job.ID),
		"resume", "resume.pdf", []byte("%PDF-1.4"), token, r, "/application")
	assert.Equal(t, http.StatusConflict, rec2.Code)
	assert.Contains(t, resp2["error"], "already applied")
}

func TestCreateApplication_JobNotActive(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusDraft, nil)
	ac, _ := newTestController()
	r := applicationEngine(ac)
	token := tokenFor(t, database.TestSeeker1)

	rec, resp := testutil.MakeMultipartRequest(applyForm(job.ID),
		"resume", "resume.pdf", []byte("%PDF-1.4"), token, r, "/application")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, resp["error"], "draft")
}

func TestCreateApplication_DeadlinePassed(t *testing.T) {
	past := time.Now().AddDate(0, 0, -1)
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, &past)
	ac, _ := newTestController()
	r := applicationEngine(ac)
	token := tokenFor(t, database.TestSeeker1)

	rec, resp := testutil.MakeMultipartRequest(applyForm(job.ID),
		"resume", "resume.pdf", []byte("%PDF-1.4"), token, r, "/application")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp["error"], "deadline")
}

func TestCreateApplication_ClosedJob(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusClosed, nil)
	ac, _ := newTestController()
	r := applicationEngine(ac)
	token := tokenFor(t, database.TestSeeker1)

	rec, resp := testutil.MakeMultipartRequest(applyForm(job.ID),
		"resume", "resume.pdf", []byte("%PDF-1.4"), token, r, "/application")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, resp["error"], "closed")

	// Neither the application nor the resume row may be committed.
	var count int64
	assert.NoError(t, testDB.Model(&model.Application{}).
		Where("job_id = ?", job.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestCreateApplication_MissingResume(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, nil)
	ac, _ := newTestController()
	r := applicationEngine(ac)
	token := tokenFor(t, database.TestSeeker1)

	rec, resp := testutil.MakeMultipartRequest(applyForm(job.ID),
		"", "", nil, token, r, "/application")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp["error"], "Resume")
}

func TestCreateApplication_BadExtension(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, nil)
	ac, _ := newTestController()
	r := applicationEngine(ac)
	token := tokenFor(t, database.TestSeeker1)

	rec, resp := testutil.MakeMultipartRequest(applyForm(job.ID),
		"resume", "resume.exe", []byte("MZ"), token, r, "/application")
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Contains(t, resp["error"], ".exe")
}

func TestCreateApplication_ResumeTooLarge(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, nil)
	ac, _ := newTestController()
	r := applicationEngine(ac)
	token := tokenFor(t, database.TestSeeker1)

	huge := bytes.Repeat([]byte("a"), int(model.MaxResumeSize)+1)
	rec, _ := testutil.MakeMultipartRequest(applyForm(job.ID),
		"resume", "resume.pdf", huge, token, r, "/application")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUpdateStatus_PendingReviewedAccepted(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, nil)
	app := seedApplication(t, job, database.TestSeeker1)
	ac, captured := newTestController()
	r := applicationEngine(ac)
	token := tokenFor(t, database.TestEmployer1)
	endpoint := fmt.Sprintf("/application/%d/status", app.ID)

	rec, resp := testutil.MakeJSONRequest(gin.H{"status": "reviewed"}, token, r,
		endpoint, http.MethodPatch)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reviewed", resp["status"])
	assert.NotNil(t, resp["reviewed_at"])

	rec2, resp2 := testutil.MakeJSONRequest(
		gin.H{"status": "accepted", "reason": "strong interview"}, token, r,
		endpoint, http.MethodPatch)
	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, "accepted", resp2["status"])

	var history []model.StatusHistory
	assert.NoError(t, testDB.Where("application_id = ?", app.ID).
		Order("changed_at ASC, id ASC").Find(&history).Error)
	if assert.Len(t, history, 2) {
		assert.Equal(t, "pending", history[0].OldStatus)
		assert.Equal(t, "reviewed", history[0].NewStatus)
		assert.Equal(t, "reviewed", history[1].OldStatus)
		assert.Equal(t, "accepted", history[1].NewStatus)
		assert.Equal(t, "strong interview", history[1].Reason)
		assert.Equal(t, database.TestEmployer1.ID, *history[1].ChangedByID)
	}

	if assert.Len(t, *captured, 2) {
		assert.Equal(t, event.ApplicationReviewed, (*captured)[0].Event)
		assert.Equal(t, event.ApplicationAccepted, (*captured)[1].Event)
	}
}

func TestUpdateStatus_DirectReject(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, nil)
	app := seedApplication(t, job, database.TestSeeker1)
	ac, _ := newTestController()
	r := applicationEngine(ac)
	token := tokenFor(t, database.TestEmployer1)

	// pending -> rejected without passing through reviewed.
	rec, resp := testutil.MakeJSONRequest(gin.H{"status": "rejected"}, token, r,
		fmt.Sprintf("/application/%d/status", app.ID), http.MethodPatch)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rejected", resp["status"])
}

func TestUpdateStatus_TerminalState(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, nil)
	app := seedApplication(t, job, database.TestSeeker1)
	ac, _ := newTestController()
	r := applicationEngine(ac)
	token := tokenFor(t, database.TestEmployer1)
	endpoint := fmt.Sprintf("/application/%d/status", app.ID)

	rec, _ := testutil.MakeJSONRequest(gin.H{"status": "accepted"}, token, r,
		endpoint, http.MethodPatch)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec2, resp2 := testutil.MakeJSONRequest(gin.H{"status": "pending"}, token, r,
		endpoint, http.MethodPatch)
	assert.Equal(t, http.StatusConflict, rec2.Code)
	assert.Contains(t, resp2["error"], "terminal")
}

func TestUpdateStatus_SameStatusNoOp(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, nil)
	app := seedApplication(t, job, database.TestSeeker1)
	ac, captured := newTestController()
	r := applicationEngine(ac)
	token := tokenFor(t, database.TestEmployer1)

	rec, _ := testutil.MakeJSONRequest(gin.H{"status": "pending"}, token, r,
		fmt.Sprintf("/application/%d/status", app.ID), http.MethodPatch)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, *captured)

	var count int64
	assert.NoError(t, testDB.Model(&model.StatusHistory{}).
		Where("application_id = ?", app.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestUpdateStatus_ConcurrentDecisionsCommitOnce(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, nil)
	app := seedApplication(t, job, database.TestSeeker1)

	bus := event.NewBus()
	var mu sync.Mutex
	var events []event.Event
	bus.Subscribe(func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})
	r := applicationEngine(NewApplicationController(testDB, bus))
	token := tokenFor(t, database.TestEmployer1)
	endpoint := fmt.Sprintf("/application/%d/status", app.ID)

	// Accept and reject race from the same pending snapshot. The
	// status column must flip exactly once.
	codes := make(chan int, 2)
	var wg sync.WaitGroup
	for _, status := range []string{"accepted", "rejected"} {
		wg.Add(1)
		go func(status string) {
			defer wg.Done()
			rec, _ := testutil.MakeJSONRequest(gin.H{"status": status}, token, r,
				endpoint, http.MethodPatch)
			codes <- rec.Code
		}(status)
	}
	wg.Wait()
	close(codes)

	got := map[int]int{}
	for code := range codes {
		got[code]++
	}
	assert.Equal(t, 1, got[http.StatusOK])
	assert.Equal(t, 1, got[http.StatusConflict])

	var final model.Application
	assert.NoError(t, testDB.First(&final, app.ID).Error)
	assert.Contains(t, []string{model.ApplicationStatusAccepted, model.ApplicationStatusRejected},
		final.Status)

	// Exactly one history row and one event for the single winner.
	var history []model.StatusHistory
	assert.NoError(t, testDB.Where("application_id = ?", app.ID).Find(&history).Error)
	if assert.Len(t, history, 1) {
		assert.Equal(t, "pending", history[0].OldStatus)
		assert.Equal(t, final.Status, history[0].NewStatus)
	}
	mu.Lock()
	assert.Len(t, events, 1)
	mu.Unlock()
}

func TestUpdateStatus_OnlyJobOwner(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, nil)
	app := seedApplication(t, job, database.TestSeeker1)
	ac, _ := newTestController()
	r := applicationEngine(ac)
	token := tokenFor(t, database.TestEmployer2)

	rec, _ := testutil.MakeJSONRequest(gin.H{"status": "reviewed"}, token, r,
		fmt.Sprintf("/application/%d/status", app.ID), http.MethodPatch)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWithdraw_TerminalRegardlessOfStatus(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, nil)
	app := seedApplication(t, job, database.TestSeeker1)
	ac, captured := newTestController()
	r := applicationEngine(ac)
	seekerToken := tokenFor(t, database.TestSeeker1)
	employerToken := tokenFor(t, database.TestEmployer1)

	rec, resp := testutil.MakeJSONRequest(gin.H{"reason": "took another offer"}, seekerToken, r,
		fmt.Sprintf("/application/%d/withdraw", app.ID), http.MethodPost)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["is_withdrawn"])

	if assert.Len(t, *captured, 1) {
		assert.Equal(t, event.ApplicationWithdrawn, (*captured)[0].Event)
	}

	// History records the withdrawal as a transition to "withdrawn".
	var history []model.StatusHistory
	assert.NoError(t, testDB.Where("application_id = ?", app.ID).Find(&history).Error)
	if assert.Len(t, history, 1) {
		assert.Equal(t, "pending", history[0].OldStatus)
		assert.Equal(t, "withdrawn", history[0].NewStatus)
		assert.Equal(t, "took another offer", history[0].Reason)
	}

	// No status change gets past the withdrawal flag.
	rec2, _ := testutil.MakeJSONRequest(gin.H{"status": "accepted"}, employerToken, r,
		fmt.Sprintf("/application/%d/status", app.ID), http.MethodPatch)
	assert.Equal(t, http.StatusConflict, rec2.Code)

	// Withdrawing twice is also a conflict.
	rec3, _ := testutil.MakeJSONRequest(nil, seekerToken, r,
		fmt.Sprintf("/application/%d/withdraw", app.ID), http.MethodPost)
	assert.Equal(t, http.StatusConflict, rec3.Code)
}

func TestWithdraw_ExclusiveWithConcurrentDecision(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, nil)
	app := seedApplication(t, job, database.TestSeeker1)
	ac, _ := newTestController()
	r := applicationEngine(ac)
	employerToken := tokenFor(t, database.TestEmployer1)
	seekerToken := tokenFor(t, database.TestSeeker1)

	// The employer accepts while the applicant withdraws. Only one of
	// the two outcomes may commit.
	codes := make(chan int, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		rec, _ := testutil.MakeJSONRequest(gin.H{"status": "accepted"}, employerToken, r,
			fmt.Sprintf("/application/%d/status", app.ID), http.MethodPatch)
		codes <- rec.Code
	}()
	go func() {
		defer wg.Done()
		rec, _ := testutil.MakeJSONRequest(nil, seekerToken, r,
			fmt.Sprintf("/application/%d/withdraw", app.ID), http.MethodPost)
		codes <- rec.Code
	}()
	wg.Wait()
	close(codes)

	got := map[int]int{}
	for code := range codes {
		got[code]++
	}
	assert.Equal(t, 1, got[http.StatusOK])
	assert.Equal(t, 1, got[http.StatusConflict])

	var final model.Application
	assert.NoError(t, testDB.First(&final, app.ID).Error)
	if final.IsWithdrawn {
		assert.Equal(t, model.ApplicationStatusPending, final.Status)
	} else {
		assert.Equal(t, model.ApplicationStatusAccepted, final.Status)
	}

	var count int64
	assert.NoError(t, testDB.Model(&model.StatusHistory{}).
		Where("application_id = ?", app.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWithdraw_OnlyApplicant(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, nil)
	app := seedApplication(t, job, database.TestSeeker1)
	ac, _ := newTestController()
	r := applicationEngine(ac)
	token := tokenFor(t, database.TestSeeker2)

	rec, _ := testutil.MakeJSONRequest(nil, token, r,
		fmt.Sprintf("/application/%d/withdraw", app.ID), http.MethodPost)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWithdraw_RejectedIsNotWithdrawable(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, nil)
	app := seedApplication(t, job, database.TestSeeker1)
	assert.NoError(t, testDB.Model(&model.Application{}).Where("id = ?", app.ID).
		Update("status", model.ApplicationStatusRejected).Error)

	ac, _ := newTestController()
	r := applicationEngine(ac)
	token := tokenFor(t, database.TestSeeker1)

	rec, resp := testutil.MakeJSONRequest(nil, token, r,
		fmt.Sprintf("/application/%d/withdraw", app.ID), http.MethodPost)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, resp["error"], "terminal")
}

func TestGetHistory_VisibilityAndOrder(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, nil)
	app := seedApplication(t, job, database.TestSeeker1)
	ac, _ := newTestController()
	r := applicationEngine(ac)
	employerToken := tokenFor(t, database.TestEmployer1)
	endpoint := fmt.Sprintf("/application/%d/status", app.ID)

	for _, status := range []string{"reviewed", "accepted"} {
		rec, _ := testutil.MakeJSONRequest(gin.H{"status": status}, employerToken, r,
			endpoint, http.MethodPatch)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec, _ := testutil.MakeJSONRequest(nil, tokenFor(t, database.TestSeeker1), r,
		fmt.Sprintf("/application/%d/history", app.ID), http.MethodGet)
	assert.Equal(t, http.StatusOK, rec.Code)

	var history []model.StatusHistory
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	if assert.Len(t, history, 2) {
		assert.Equal(t, "reviewed", history[0].NewStatus)
		assert.Equal(t, "accepted", history[1].NewStatus)
	}

	// An unrelated seeker cannot even learn the application exists.
	rec2, _ := testutil.MakeJSONRequest(nil, tokenFor(t, database.TestSeeker2), r,
		fmt.Sprintf("/application/%d/history", app.ID), http.MethodGet)
	assert.Equal(t, http.StatusNotFound, rec2.Code)
}

func TestGetApplications_ScopedByRole(t *testing.T) {
	job := createJob(t, database.TestEmployer2, model.JobStatusActive, nil)
	app := seedApplication(t, job, database.TestSeeker2)
	ac, _ := newTestController()
	r := applicationEngine(ac)

	// The applicant sees it.
	rec, _ := testutil.MakeJSONRequest(nil, tokenFor(t, database.TestSeeker2), r,
		"/application", http.MethodGet)
	assert.Equal(t, http.StatusOK, rec.Code)
	var mine []model.Application
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	found := false
	for _, a := range mine {
		assert.Equal(t, database.TestSeeker2.ID, a.ApplicantID)
		if a.ID == app.ID {
			found = true
		}
	}
	assert.True(t, found)

	// The other employer does not.
	rec2, _ := testutil.MakeJSONRequest(nil, tokenFor(t, database.TestEmployer1), r,
		"/application", http.MethodGet)
	assert.Equal(t, http.StatusOK, rec2.Code)
	var theirs []model.Application
	assert.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &theirs))
	for _, a := range theirs {
		assert.NotEqual(t, app.ID, a.ID)
	}
}
