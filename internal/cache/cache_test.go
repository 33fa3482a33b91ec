package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"jobboard-backend/internal/event"
)

// A disabled cache must behave as a transparent miss, never panic.
func TestDisabledCacheIsNoOp(t *testing.T) {
	c := &Cache{}
	ctx := context.Background()

	assert.False(t, c.Enabled())

	var dest []string
	assert.False(t, c.GetJSON(ctx, JobListKey("all"), &dest))

	assert.NotPanics(t, func() {
		c.SetJSON(ctx, JobListKey("all"), []string{"x"}, JobListTTL)
		c.InvalidateJobs(ctx)
		c.InvalidateCategories(ctx)
		c.IncrCounter(ctx, "analytics:job:1:applications")
		c.HandleEvent(event.Event{Entity: event.EntityJob, EntityID: 1, Event: event.JobClosed})
	})
}

func TestJobListKey(t *testing.T) {
	assert.Equal(t, "jobs:list:status=active", JobListKey("status=active"))
}
