package database

import (
	"context"
	"log"
	"testing"
	"time"

	// Load env
	_ "github.com/joho/godotenv/autoload"
	"github.com/testcontainers/testcontainers-go"
)

var testDB *DBinstanceStruct

func TestMain(m *testing.M) {
	var err error
	var midTeardown func(context.Context, ...testcontainers.TerminateOption) error
	midTeardown, testDB, err = GetTestDB()
	if err != nil {
		log.Fatalf("could not start postgres container: %v", err)
	}

	m.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if midTeardown != nil {
		_ = midTeardown(ctx)
	}
}

func TestHealth(t *testing.T) {
	stats := testDB.Health()

	if stats["status"] != "up" {
		t.Fatalf("expected status to be up, got %s", stats["status"])
	}

	if _, ok := stats["error"]; ok {
		t.Fatalf("expected error not to be present")
	}

	if stats["message"] != "It's healthy" {
		t.Fatalf("expected message to be 'It's healthy', got %s", stats["message"])
	}
}

func TestSeededFixtures(t *testing.T) {
	if TestJobActive.ID == 0 || TestJobDraft.ID == 0 || TestJobExpired.ID == 0 {
		t.Fatalf("expected seeded jobs to be loaded")
	}
	if TestEmployer1.ID.String() == "" || TestSeeker1.ID.String() == "" {
		t.Fatalf("expected seeded users to be loaded")
	}
	if TestCategoryChild.ParentID == nil || *TestCategoryChild.ParentID != TestCategoryRoot.ID {
		t.Fatalf("expected category tree to be seeded")
	}
}
