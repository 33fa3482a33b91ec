// Command api runs the job board HTTP server.
package main

import (
	"log"

	"jobboard-backend/internal/server"
)

// @title Job Board API
// @version 1.0
// @description Backend API for the job board: categories, jobs, applications and notifications.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	srv := server.NewServer()

	log.Printf("Listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("cannot start server: %s", err)
	}
}
