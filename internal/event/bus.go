// Package event implements the domain event bus. Controllers publish
// exactly one event per accepted lifecycle transition, after the
// transaction committed. Subscribers (notifications, cache
// invalidation, analytics) run independently and must not be able to
// fail the transition.
package event

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// EntityJob marks events about a job posting
	EntityJob = "job"
	// EntityApplication marks events about an application
	EntityApplication = "application"
)

// Transition event names carried in Event.Event
var (
	JobActivated         = "job.activated"
	JobClosed            = "job.closed"
	JobApproved          = "job.approved"
	JobRejected          = "job.rejected"
	ApplicationReceived  = "application.received"
	ApplicationReviewed  = "application.reviewed"
	ApplicationAccepted  = "application.accepted"
	ApplicationRejected  = "application.rejected"
	ApplicationWithdrawn = "application.withdrawn"
)

// Event is the fixed shape emitted for every accepted transition.
type Event struct {
	Entity     string                 `json:"entity"`
	EntityID   uint                   `json:"entity_id"`
	Event      string                 `json:"event"`
	ActorID    *uuid.UUID             `json:"actor_id,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// Handler consumes a published event.
type Handler func(Event)

// Bus fans a published event out to every subscriber, in subscription
// order, on the publishing goroutine. Subscribe is expected at startup;
// Publish is safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus construct new empty Bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for every future event.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers the event to every subscriber. OccurredAt is
// stamped when the caller left it zero.
func (b *Bus) Publish(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}
