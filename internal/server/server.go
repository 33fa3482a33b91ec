// Package server contains the gin server setup and route registration.
package server

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	// Load env file into environments.
	_ "github.com/joho/godotenv/autoload"

	"jobboard-backend/internal/cache"
	"jobboard-backend/internal/database"
	"jobboard-backend/internal/event"
)

// Server holds the shared application state: database, cache and the
// in-process event bus.
type Server struct {
	port int

	DB    *database.DBinstanceStruct
	Cache *cache.Cache
	Bus   *event.Bus
}

// NewServer constructs the HTTP server with all dependencies wired:
// database connection, optional redis cache, and event subscribers.
func NewServer() *http.Server {
	port, _ := strconv.Atoi(os.Getenv("PORT"))

	db, err := database.GetMainDB()
	if err != nil {
		log.Fatalf("Database failed to initialize: %s", err)
	}

	s := &Server{
		port:  port,
		DB:    db,
		Cache: cache.New(),
		Bus:   event.NewBus(),
	}

	notifier := event.NewNotifier(db.DB)
	s.Bus.Subscribe(notifier.Handle)
	s.Bus.Subscribe(s.Cache.HandleEvent)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
