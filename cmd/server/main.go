package main // Entry point package

import (
	"context" // Context for the schema bootstrap deadline
	"log"     // Logging library
	"time"    // Timeout durations

	"github.com/joho/godotenv"    // Optional .env loading for local development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/utsavam/event-booking/internal/admission"  // Redis admission gate
	"github.com/utsavam/event-booking/internal/config"     // Environment config loader
	"github.com/utsavam/event-booking/internal/database"   // MySQL handle and schema bootstrap
	"github.com/utsavam/event-booking/internal/handler"    // HTTP handlers
	"github.com/utsavam/event-booking/internal/ledger"     // Authoritative seat accounting
	"github.com/utsavam/event-booking/internal/middleware" // Rate limiting
	"github.com/utsavam/event-booking/internal/queue"      // Booking lifecycle events
	"github.com/utsavam/event-booking/internal/repository" // Data access
	"github.com/utsavam/event-booking/internal/router"     // Route registration
	"github.com/utsavam/event-booking/internal/service"    // Booking orchestrator
)

func main() {
	_ = godotenv.Load() // Pick up a local .env if present; real env vars win
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.LockWaitSec)
	if err != nil {
		log.Fatalf("mysql: %v", err) // Without the ledger store there is nothing to serve
	}
	defer db.Close()

	// Create the tables when they are missing.  Failure is logged, not
	// fatal: the schema may be managed externally.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Printf("schema bootstrap failed: %v", err)
	}
	cancel()

	rdb := config.NewRedisClient() // nil when Redis is unreachable
	if rdb == nil {
		log.Printf("running without accelerator: bookings go straight to the ledger")
	}
	gate := admission.NewGate(rdb)

	events := repository.NewEventRepo(db)
	bookings := repository.NewBookingRepo(db)
	users := repository.NewUserRepo(db)
	led := ledger.New(db, events, bookings, users)
	svc := service.NewBookingService(led, gate, queue.PublishBookingEvent)

	// The consumer reconnects forever in the background; it never takes
	// the server down.
	go func() {
		if err := queue.StartBookingConsumer(); err != nil {
			log.Printf("booking-consumer: stopped: %v", err)
		}
	}()

	e := echo.New() // Create Echo instance
	router.RegisterRoutes(e)
	router.RegisterPublic(e, handler.NewPublicHandler(events))
	limiter := middleware.NewFixedWindow(config.LoadRateLimitConfig(), rdb)
	router.RegisterBookings(e, handler.NewBookingHandler(svc, bookings), limiter)
	router.RegisterAdmin(e, handler.NewAdminHandler(events, bookings, users, led, gate, svc), cfg.AdminKey)

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}
