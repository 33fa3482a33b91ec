package database

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	// Load env
	_ "github.com/joho/godotenv/autoload"

	m "jobboard-backend/internal/model"
	"jobboard-backend/internal/utilities"
)

var testDBInstance *DBinstanceStruct
var teardown func(context.Context, ...testcontainers.TerminateOption) error

// Exported test users and fixtures
var (
	TestAdminUser m.User
	TestEmployer1 m.User
	TestEmployer2 m.User
	TestSeeker1   m.User
	TestSeeker2   m.User

	// Add exported plain password
	TestSeedPassword = "SeedPass123!"

	// Exported seeded categories and jobs
	TestCategoryRoot  m.Category
	TestCategoryChild m.Category
	TestJobActive     m.Job
	TestJobDraft      m.Job
	TestJobExpired    m.Job
)

// GetTestDB starts a PostgreSQL test container and returns a teardown function,
// the DB instance, and any error encountered during setup.
func GetTestDB() (func(context.Context, ...testcontainers.TerminateOption) error, *DBinstanceStruct, error) {

	if testDBInstance != nil && teardown != nil {
		return teardown, testDBInstance, nil
	}

	// Database configuration
	var (
		dbName = "database"
		dbPwd  = "password"
		dbUser = "user"
	)

	dbContainer, err := postgres.Run(
		context.Background(),
		"postgres:latest",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		return nil, nil, err
	}

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, nil, err
	}

	dbPort, err := dbContainer.MappedPort(context.Background(), nat.Port("5432/tcp"))
	if err != nil {
		return dbContainer.Terminate, nil, err
	}

	config := &DBConfig{
		useConstr: true,
		Constr:    fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", dbHost, dbPort.Port(), dbUser, dbPwd, dbName),
	}

	db, err := NewDBInstance(config)
	if err != nil {
		return dbContainer.Terminate, nil, err
	}

	if err := seedTestData(db); err != nil {
		_ = dbContainer.Terminate(context.Background())
		return nil, nil, err
	}

	testDBInstance = db
	teardown = dbContainer.Terminate

	return dbContainer.Terminate, db, nil
}

// seedTestData inserts sample users, categories and jobs if empty.
func seedTestData(db *DBinstanceStruct) error {
	var userCount int64
	if err := db.Model(&m.User{}).Count(&userCount).Error; err != nil {
		return err
	}

	// Ignore admin user that got create during NewDBInstance
	if userCount > 1 {
		return loadTestData(db)
	}

	userSpecs := []struct {
		username string
		email    string
		role     string
		skills   pq.StringArray
	}{
		{"admin_user", "admin@example.com", m.RoleAdmin, nil},
		{"employer_1", "employer1@example.com", m.RoleEmployer, nil},
		{"employer_2", "employer2@example.com", m.RoleEmployer, nil},
		{"seeker_1", "seeker1@example.com", m.RoleSeeker, pq.StringArray{"Go", "SQL"}},
		{"seeker_2", "seeker2@example.com", m.RoleSeeker, pq.StringArray{"Python"}},
	}

	// Pre-hash shared password for all seeded users
	hashedPwd, errHash := utilities.HashPassword(TestSeedPassword)
	if errHash != nil {
		return errHash
	}

	users := make([]m.User, 0, len(userSpecs))
	for _, s := range userSpecs {
		email := s.email
		users = append(users, m.User{
			ID:       uuid.New(),
			Username: s.username,
			Email:    &email,
			Role:     s.role,
			Password: hashedPwd,
			Skills:   s.skills,
		})
	}

	if err := db.Create(&users).Error; err != nil {
		return err
	}

	assignUsers(users)

	// Category tree: Engineering > Backend
	TestCategoryRoot = m.Category{Name: "Engineering", Slug: "engineering"}
	if err := db.Create(&TestCategoryRoot).Error; err != nil {
		return err
	}
	TestCategoryChild = m.Category{Name: "Backend", Slug: "backend", ParentID: &TestCategoryRoot.ID}
	if err := db.Create(&TestCategoryChild).Error; err != nil {
		return err
	}

	// Seed job posts (only if none exist yet)
	var jobCount int64
	if err := db.Model(&m.Job{}).Count(&jobCount).Error; err != nil {
		return err
	}
	if jobCount == 0 {
		future := time.Now().AddDate(0, 1, 0)
		past := time.Now().AddDate(0, 0, -1)

		jobs := []m.Job{
			{
				EmployerID:     TestEmployer1.ID,
				Status:         m.JobStatusActive,
				ApprovalStatus: m.ApprovalStatusApproved,
				EditableJobInfo: m.EditableJobInfo{
					Title:               "Backend Engineer",
					Description:         "Work on Go services and the database layer.",
					Requirements:        "Go basics; SQL familiarity",
					Location:            "Bangkok (Hybrid)",
					JobType:             "full-time",
					Tags:                pq.StringArray{"go", "backend", "api"},
					CategoryID:          TestCategoryChild.ID,
					ApplicationDeadline: &future,
				},
			},
			{
				EmployerID:     TestEmployer1.ID,
				Status:         m.JobStatusDraft,
				ApprovalStatus: m.ApprovalStatusApproved,
				EditableJobInfo: m.EditableJobInfo{
					Title:        "Frontend Developer",
					Description:  "Component library work.",
					Requirements: "JS/TS fundamentals",
					Location:     "Remote",
					JobType:      "contract",
					Tags:         pq.StringArray{"react", "typescript"},
					CategoryID:   TestCategoryChild.ID,
				},
			},
			{
				EmployerID:     TestEmployer2.ID,
				Status:         m.JobStatusActive,
				ApprovalStatus: m.ApprovalStatusApproved,
				EditableJobInfo: m.EditableJobInfo{
					Title:               "Data Analyst",
					Description:         "Dashboards and data cleansing.",
					Requirements:        "SQL; basic statistics",
					Location:            "Chiang Mai (On-site)",
					JobType:             "part-time",
					Tags:                pq.StringArray{"data", "sql"},
					CategoryID:          TestCategoryRoot.ID,
					ApplicationDeadline: &past,
				},
			},
		}

		if err := db.Create(&jobs).Error; err != nil {
			return err
		}
		TestJobActive = jobs[0]
		TestJobDraft = jobs[1]
		TestJobExpired = jobs[2]
	}

	return nil
}

// loadTestData populates exported variables when records already exist.
func loadTestData(db *DBinstanceStruct) error {
	var users []m.User
	if err := db.Where("username IN ?", []string{
		"admin_user", "employer_1", "employer_2", "seeker_1", "seeker_2",
	}).Find(&users).Error; err != nil {
		return err
	}
	assignUsers(users)

	_ = db.First(&TestCategoryRoot, "slug = ?", "engineering").Error
	_ = db.First(&TestCategoryChild, "slug = ?", "backend").Error

	var jobs []m.Job
	if err := db.Order("id ASC").Limit(3).Find(&jobs).Error; err == nil {
		if len(jobs) > 0 {
			TestJobActive = jobs[0]
		}
		if len(jobs) > 1 {
			TestJobDraft = jobs[1]
		}
		if len(jobs) > 2 {
			TestJobExpired = jobs[2]
		}
	}

	return nil
}

func assignUsers(users []m.User) {
	for _, u := range users {
		switch u.Username {
		case "admin_user":
			TestAdminUser = u
		case "employer_1":
			TestEmployer1 = u
		case "employer_2":
			TestEmployer2 = u
		case "seeker_1":
			TestSeeker1 = u
		case "seeker_2":
			TestSeeker2 = u
		}
	}
}
