package cache

import (
	"context"
	"fmt"

	"jobboard-backend/internal/event"
)

// HandleEvent is the bus subscriber keeping the cache and the
// best-effort analytics counters in sync with committed transitions.
func (c *Cache) HandleEvent(e event.Event) {
	ctx := context.Background()

	switch e.Entity {
	case event.EntityJob:
		// Any job transition changes what public listings should show.
		c.InvalidateJobs(ctx)
	case event.EntityApplication:
		if e.Event == event.ApplicationReceived {
			if jobID, ok := e.Payload["job_id"]; ok {
				c.IncrCounter(ctx, fmt.Sprintf("analytics:job:%v:applications", jobID))
			}
		}
	}
}
