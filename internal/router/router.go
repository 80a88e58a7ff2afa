package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // the Echo web framework handles routing

	"github.com/utsavam/event-booking/internal/handler"    // handlers implementing the endpoint logic
	"github.com/utsavam/event-booking/internal/middleware" // admin key auth and rate limiting
)

// RegisterRoutes registers routes that do not belong to any API group.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Map GET /healthz to the Health handler.  Load balancers and
	// monitoring systems use it to verify that the service is up.
	e.GET("/healthz", handler.Health)
}

// RegisterPublic registers the unauthenticated browse endpoints.  The
// provided PublicHandler returns sanitized event data for guests; no
// key or rate limit middleware is applied here.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler) {
	// List upcoming events with their live seat counts.
	e.GET("/v1/events", p.ListEvents)
	// Inspect a single event.
	e.GET("/v1/events/:id", p.GetEvent)
}

// RegisterBookings registers the booking endpoints.  The limiter runs
// only on the mutating routes: creating and cancelling bookings contend
// on the event row lock, so noisy clients are slowed down before they
// reach the database.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, limiter echo.MiddlewareFunc) {
	// Place a booking.  Accepts an optional idempotency_key for safe retries.
	e.POST("/v1/bookings", h.CreateBooking, limiter)
	// Cancel a booking.  Idempotent; repeated calls answer 200 with released=false.
	e.DELETE("/v1/bookings/:id", h.CancelBooking, limiter)
	// Booking history for one user, newest first.
	e.GET("/v1/users/:id/bookings", h.ListUserBookings)
}

// RegisterAdmin registers the administrative endpoints under /v1/admin.
// Every route in the group requires the X-Admin-Key header to match the
// configured key.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, adminKey string) {
	g := e.Group("/v1/admin")
	g.Use(middleware.RequireAdminKey(adminKey))
	// Event CRUD.  Capacity changes go through the ledger so the seat
	// invariant holds across resizes.
	g.POST("/events", a.CreateEvent)
	g.PUT("/events/:id", a.UpdateEvent)
	g.DELETE("/events/:id", a.DeleteEvent)
	// Bookings of one event with user details, newest first.
	g.GET("/events/:id/bookings", a.ListEventBookings)
	// Copy the authoritative seat count into the accelerator counter.
	g.POST("/events/:id/reconcile", a.ReconcileEvent)
	// Confirmed totals and per-event utilization.
	g.GET("/analytics", a.Analytics)
	// Provision demo users and events; safe to run repeatedly.
	g.POST("/seed", a.Seed)
}
