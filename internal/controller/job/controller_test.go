package job

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"

	"jobboard-backend/internal/auth"
	"jobboard-backend/internal/cache"
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

// newTestController wires a controller with a disabled cache and a bus
// that records every published event.
func newTestController() (*JobController, *[]event.Event) {
	bus := event.NewBus()
	captured := &[]event.Event{}
	bus.Subscribe(func(e event.Event) {
		*captured = append(*captured, e)
	})
	return NewJobController(testDB, cache.New(), bus), captured
}

func jobEngine(jc *JobController) *gin.Engine {
	r := gin.Default()
	r.GET("/job/:id", middleware.OptionalAuth(testDB), jc.GetJobByID)
	needAuth := r.Group("")
	needAuth.Use(middleware.RequireAuth(testDB))
	needAuth.POST("/job",
		middleware.CheckRole(model.RoleEmployer, model.RoleAdmin), jc.CreateJobHandler)
	needAuth.PATCH("/job/:id",
		middleware.CheckRole(model.RoleEmployer, model.RoleAdmin), jc.EditJob)
	needAuth.PATCH("/job/:id/status",
		middleware.CheckRole(model.RoleEmployer, model.RoleAdmin), jc.UpdateJobStatus)
	needAuth.PATCH("/job/:id/approval",
		middleware.CheckRole(model.RoleAdmin), jc.UpdateApproval)
	return r
}

func createJob(t *testing.T, employer model.User, status string, deadline *time.Time) model.Job {
	t.Helper()
	job := model.Job{
		EmployerID:     employer.ID,
		Status:         status,
		ApprovalStatus: model.ApprovalStatusApproved,
		EditableJobInfo: model.EditableJobInfo{
			Title:               "Platform Engineer",
			Description:         "Build internal tooling.",
			Requirements:        "Go experience",
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

func TestCreateJob_StartsAsDraft(t *testing.T) {
	token, err := auth.GetAccessToken(t, testDB, database.TestEmployer1.Username, database.TestSeedPassword)
	assert.NoError(t, err)

	jc, _ := newTestController()
	r := jobEngine(jc)

	body := gin.H{
		"title":        "SRE",
		"description":  "Keep the lights on.",
		"requirements": "On-call experience",
		"location":     "Remote",
		"job_type":     "full-time",
		"category_id":  database.TestCategoryChild.ID,
	}
	rec, resp := testutil.MakeJSONRequest(body, token, r, "/job", http.MethodPost)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "draft", resp["status"])
	assert.Equal(t, "approved", resp["approval_status"])
}

func TestCreateJob_UnknownCategory(t *testing.T) {
	token, err := auth.GetAccessToken(t, testDB, database.TestEmployer1.Username, database.TestSeedPassword)
	assert.NoError(t, err)

	jc, _ := newTestController()
	r := jobEngine(jc)

	body := gin.H{
		"title":        "SRE",
		"description":  "d",
		"requirements": "r",
		"location":     "Remote",
		"category_id":  999999,
	}
	rec, resp := testutil.MakeJSONRequest(body, token, r, "/job", http.MethodPost)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp["error"], "Category not found")
}

func TestEditJob_AfterDeadlinePassed(t *testing.T) {
	token, err := auth.GetAccessToken(t, testDB, database.TestEmployer1.Username, database.TestSeedPassword)
	assert.NoError(t, err)

	past := time.Now().AddDate(0, 0, -1)
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, &past)
	jc, _ := newTestController()
	r := jobEngine(jc)

	// A stored deadline that has since passed must not block edits to
	// other fields.
	rec, resp := testutil.MakeJSONRequest(gin.H{"title": "Senior Platform Engineer"}, token, r,
		fmt.Sprintf("/job/%d", job.ID), http.MethodPatch)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Senior Platform Engineer", resp["title"])

	// Submitting a deadline in the past is still rejected.
	rec2, resp2 := testutil.MakeJSONRequest(gin.H{"application_deadline": past.Add(-time.Hour)},
		token, r, fmt.Sprintf("/job/%d", job.ID), http.MethodPatch)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
	assert.Contains(t, resp2["error"], "future")
}

func TestUpdateJobStatus_Activate(t *testing.T) {
	token, err := auth.GetAccessToken(t, testDB, database.TestEmployer1.Username, database.TestSeedPassword)
	assert.NoError(t, err)

	job := createJob(t, database.TestEmployer1, model.JobStatusDraft, nil)
	jc, captured := newTestController()
	r := jobEngine(jc)

	rec, resp := testutil.MakeJSONRequest(gin.H{"status": "active"}, token, r,
		fmt.Sprintf("/job/%d/status", job.ID), http.MethodPatch)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", resp["status"])
	if assert.Len(t, *captured, 1) {
		assert.Equal(t, event.JobActivated, (*captured)[0].Event)
		assert.Equal(t, job.ID, (*captured)[0].EntityID)
	}
}

func TestUpdateJobStatus_DraftToClosedRejected(t *testing.T) {
	token, err := auth.GetAccessToken(t, testDB, database.TestEmployer1.Username, database.TestSeedPassword)
	assert.NoError(t, err)

	job := createJob(t, database.TestEmployer1, model.JobStatusDraft, nil)
	jc, captured := newTestController()
	r := jobEngine(jc)

	rec, resp := testutil.MakeJSONRequest(gin.H{"status": "closed"}, token, r,
		fmt.Sprintf("/job/%d/status", job.ID), http.MethodPatch)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, resp["error"], "active")
	assert.Empty(t, *captured)
}

func TestUpdateJobStatus_IdempotentClose(t *testing.T) {
	token, err := auth.GetAccessToken(t, testDB, database.TestEmployer1.Username, database.TestSeedPassword)
	assert.NoError(t, err)

	job := createJob(t, database.TestEmployer1, model.JobStatusClosed, nil)
	jc, captured := newTestController()
	r := jobEngine(jc)

	rec, resp := testutil.MakeJSONRequest(gin.H{"status": "closed"}, token, r,
		fmt.Sprintf("/job/%d/status", job.ID), http.MethodPatch)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "closed", resp["status"])
	assert.Empty(t, *captured)
}

func TestUpdateJobStatus_ClosedIsTerminal(t *testing.T) {
	token, err := auth.GetAccessToken(t, testDB, database.TestEmployer1.Username, database.TestSeedPassword)
	assert.NoError(t, err)

	job := createJob(t, database.TestEmployer1, model.JobStatusClosed, nil)
	jc, _ := newTestController()
	r := jobEngine(jc)

	rec, _ := testutil.MakeJSONRequest(gin.H{"status": "active"}, token, r,
		fmt.Sprintf("/job/%d/status", job.ID), http.MethodPatch)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateJobStatus_ActivateIncompleteJob(t *testing.T) {
	token, err := auth.GetAccessToken(t, testDB, database.TestEmployer1.Username, database.TestSeedPassword)
	assert.NoError(t, err)

	job := createJob(t, database.TestEmployer1, model.JobStatusDraft, nil)
	// Blank out a required field behind the model's back.
	if err := testDB.Model(&model.Job{}).Where("id = ?", job.ID).
		Update("requirements", "").Error; err != nil {
		t.Fatalf("failed to blank field: %v", err)
	}

	jc, captured := newTestController()
	r := jobEngine(jc)

	rec, _ := testutil.MakeJSONRequest(gin.H{"status": "active"}, token, r,
		fmt.Sprintf("/job/%d/status", job.ID), http.MethodPatch)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, *captured)
}

func TestUpdateJobStatus_ConcurrentActivationEmitsOnce(t *testing.T) {
	token, err := auth.GetAccessToken(t, testDB, database.TestEmployer1.Username, database.TestSeedPassword)
	assert.NoError(t, err)

	job := createJob(t, database.TestEmployer1, model.JobStatusDraft, nil)

	bus := event.NewBus()
	var mu sync.Mutex
	var events []event.Event
	bus.Subscribe(func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})
	r := jobEngine(NewJobController(testDB, cache.New(), bus))

	// Two activations race from the same draft snapshot. The guarded
	// update lets exactly one commit; the loser sees either the no-op
	// path or a conflict, never a second event.
	codes := make(chan int, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, _ := testutil.MakeJSONRequest(gin.H{"status": "active"}, token, r,
				fmt.Sprintf("/job/%d/status", job.ID), http.MethodPatch)
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		assert.Contains(t, []int{http.StatusOK, http.StatusConflict}, code)
	}

	var reloaded model.Job
	assert.NoError(t, testDB.First(&reloaded, job.ID).Error)
	assert.Equal(t, model.JobStatusActive, reloaded.Status)

	mu.Lock()
	assert.Len(t, events, 1)
	mu.Unlock()
}

func TestUpdateJobStatus_NotOwner(t *testing.T) {
	token, err := auth.GetAccessToken(t, testDB, database.TestEmployer2.Username, database.TestSeedPassword)
	assert.NoError(t, err)

	job := createJob(t, database.TestEmployer1, model.JobStatusDraft, nil)
	jc, _ := newTestController()
	r := jobEngine(jc)

	rec, _ := testutil.MakeJSONRequest(gin.H{"status": "active"}, token, r,
		fmt.Sprintf("/job/%d/status", job.ID), http.MethodPatch)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetJobByID_IncrementsViews(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusActive, nil)
	jc, _ := newTestController()
	r := jobEngine(jc)

	rec, resp := testutil.MakeJSONRequest(nil, "", r,
		fmt.Sprintf("/job/%d", job.ID), http.MethodGet)
	assert.Equal(t, http.StatusOK, rec.Code)
	first := resp["views_count"].(float64)

	rec2, resp2 := testutil.MakeJSONRequest(nil, "", r,
		fmt.Sprintf("/job/%d", job.ID), http.MethodGet)
	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, first+1, resp2["views_count"].(float64))
}

func TestGetJobByID_DraftHiddenFromPublic(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusDraft, nil)
	jc, _ := newTestController()
	r := jobEngine(jc)

	rec, _ := testutil.MakeJSONRequest(nil, "", r,
		fmt.Sprintf("/job/%d", job.ID), http.MethodGet)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The owner still sees it.
	token, err := auth.GetAccessToken(t, testDB, database.TestEmployer1.Username, database.TestSeedPassword)
	assert.NoError(t, err)
	rec2, _ := testutil.MakeJSONRequest(nil, token, r,
		fmt.Sprintf("/job/%d", job.ID), http.MethodGet)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestUpdateApproval_AdminOnly(t *testing.T) {
	job := createJob(t, database.TestEmployer1, model.JobStatusDraft, nil)
	if err := testDB.Model(&model.Job{}).Where("id = ?", job.ID).
		Update("approval_status", model.ApprovalStatusPending).Error; err != nil {
		t.Fatalf("failed to set approval: %v", err)
	}

	jc, captured := newTestController()
	r := jobEngine(jc)

	employerToken, err := auth.GetAccessToken(t, testDB, database.TestEmployer1.Username, database.TestSeedPassword)
	assert.NoError(t, err)
	rec, _ := testutil.MakeJSONRequest(gin.H{"approval_status": "approved"}, employerToken, r,
		fmt.Sprintf("/job/%d/approval", job.ID), http.MethodPatch)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	adminToken, err := auth.GetAccessToken(t, testDB, database.TestAdminUser.Username, database.TestSeedPassword)
	assert.NoError(t, err)
	rec2, resp := testutil.MakeJSONRequest(gin.H{"approval_status": "approved"}, adminToken, r,
		fmt.Sprintf("/job/%d/approval", job.ID), http.MethodPatch)
	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, "approved", resp["approval_status"])
	if assert.Len(t, *captured, 1) {
		assert.Equal(t, event.JobApproved, (*captured)[0].Event)
	}
}

func TestGetJobs_FiltersHiddenJobs(t *testing.T) {
	draft := createJob(t, database.TestEmployer1, model.JobStatusDraft, nil)
	active := createJob(t, database.TestEmployer1, model.JobStatusActive, nil)

	jc, _ := newTestController()
	r := gin.Default()
	r.GET("/job", jc.GetJobs)

	rec, _ := testutil.MakeJSONRequest(nil, "", r, "/job", http.MethodGet)
	assert.Equal(t, http.StatusOK, rec.Code)

	var jobs []model.Job
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))

	ids := map[uint]bool{}
	for _, j := range jobs {
		ids[j.ID] = true
	}
	assert.True(t, ids[active.ID])
	assert.False(t, ids[draft.ID])
}

func TestCloseExpiredJobs(t *testing.T) {
	past := time.Now().AddDate(0, 0, -2)
	job := createJob(t, database.TestEmployer2, model.JobStatusActive, &past)

	bus := event.NewBus()
	var captured []event.Event
	bus.Subscribe(func(e event.Event) { captured = append(captured, e) })

	closed, err := CloseExpiredJobs(testDB, bus)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, closed, 1)

	var reloaded model.Job
	assert.NoError(t, testDB.First(&reloaded, job.ID).Error)
	assert.Equal(t, model.JobStatusClosed, reloaded.Status)

	found := false
	for _, e := range captured {
		if e.EntityID == job.ID && e.Event == event.JobClosed {
			found = true
		}
	}
	assert.True(t, found)

	// Second sweep finds nothing left to close.
	closedAgain, err := CloseExpiredJobs(testDB, bus)
	assert.NoError(t, err)
	assert.Equal(t, 0, closedAgain)
}
