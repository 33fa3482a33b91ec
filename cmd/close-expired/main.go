// Command close-expired closes every active job whose application
// deadline has passed. Run it from cron.
package main

import (
	"log"

	"jobboard-backend/internal/controller/job"
	"jobboard-backend/internal/database"
	"jobboard-backend/internal/event"
)

func main() {
	db, err := database.GetMainDB()
	if err != nil {
		log.Fatal("failed to connect to database: ", err)
	}

	bus := event.NewBus()
	bus.Subscribe(event.NewNotifier(db.DB).Handle)

	closed, err := job.CloseExpiredJobs(db, bus)
	if err != nil {
		log.Fatal("failed to close expired jobs: ", err)
	}
	log.Printf("closed %d expired job(s)", closed)
}
