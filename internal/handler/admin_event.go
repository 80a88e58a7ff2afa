package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/utsavam/event-booking/internal/admission"
	"github.com/utsavam/event-booking/internal/ledger"
	"github.com/utsavam/event-booking/internal/model"
	"github.com/utsavam/event-booking/internal/repository"
	"github.com/utsavam/event-booking/internal/service"
)

// AdminHandler groups everything the administrative API needs: direct
// repository access for CRUD, the ledger for controlled capacity edits
// and the accelerator gate for counter maintenance.  All routes are
// guarded by the X-Admin-Key middleware.
type AdminHandler struct {
	Events   *repository.EventRepo   // event CRUD and analytics aggregates
	Bookings *repository.BookingRepo // booking listings and totals
	Users    *repository.UserRepo    // demo user seeding
	Ledger   *ledger.Ledger          // capacity edits under the event row lock
	Gate     *admission.Gate         // direct counter maintenance (drop on delete)
	Svc      *service.BookingService // reconcile between ledger and accelerator
}

// NewAdminHandler constructs an AdminHandler.  All dependencies must be
// non-nil.
func NewAdminHandler(events *repository.EventRepo, bookings *repository.BookingRepo, users *repository.UserRepo, led *ledger.Ledger, gate *admission.Gate, svc *service.BookingService) *AdminHandler {
	if events == nil || bookings == nil || users == nil || led == nil || gate == nil || svc == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{Events: events, Bookings: bookings, Users: users, Ledger: led, Gate: gate, Svc: svc}
}

// AdminEvent shapes an event for administrative responses.  Unlike the
// public view it includes the version counter and audit timestamps.
type AdminEvent struct {
	ID             uint64    `json:"id"`
	Name           string    `json:"name"`
	Venue          *string   `json:"venue,omitempty"`
	StartAt        time.Time `json:"start_at"`
	Capacity       uint32    `json:"capacity"`
	SeatsAvailable uint32    `json:"seats_available"`
	Version        uint64    `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func adminEvent(ev *model.Event) AdminEvent {
	return AdminEvent{
		ID:             ev.ID,
		Name:           ev.Name,
		Venue:          ev.Venue,
		StartAt:        ev.StartAt,
		Capacity:       ev.Capacity,
		SeatsAvailable: ev.SeatsAvailable,
		Version:        ev.Version,
		CreatedAt:      ev.CreatedAt,
		UpdatedAt:      ev.UpdatedAt,
	}
}

// seedCounter pushes the event's current seats_available into the
// accelerator.  Failures are logged, never surfaced: the counter is
// advisory and the next reconcile will repair it.
func (h *AdminHandler) seedCounter(c echo.Context, eventID uint64) bool {
	if _, err := h.Svc.Reconcile(c.Request().Context(), eventID); err != nil {
		log.Printf("[admin] accelerator sync failed for event %d: %v", eventID, err)
		return false
	}
	return true
}

// CreateEvent handles POST /v1/admin/events.  A new event starts with
// seats_available equal to capacity and version zero.  The admission
// counter is seeded best-effort; a dead accelerator never fails the
// request and is reported through accelerator_synced instead.
func (h *AdminHandler) CreateEvent(c echo.Context) error {
	var body struct {
		Name     string  `json:"name"`
		Venue    *string `json:"venue"`
		StartAt  string  `json:"start_at"`
		Capacity uint32  `json:"capacity"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	startAt, err := time.Parse(time.RFC3339, body.StartAt)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "start_at must be RFC3339"})
	}
	ev := &model.Event{
		Name:           body.Name,
		Venue:          body.Venue,
		StartAt:        startAt.UTC(),
		Capacity:       body.Capacity,
		SeatsAvailable: body.Capacity,
	}
	if err := h.Events.Create(c.Request().Context(), ev); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create event"})
	}
	synced := h.seedCounter(c, ev.ID)
	return c.JSON(http.StatusCreated, echo.Map{"event": adminEvent(ev), "accelerator_synced": synced})
}

// UpdateEvent handles PUT /v1/admin/events/:id.  Metadata fields are
// patched directly; a capacity change goes through the ledger so the
// event row is locked and seats_available is recomputed from the
// confirmed bookings.  Shrinking capacity below the confirmed seat
// count is refused with 400.  After any change the accelerator counter
// is overwritten with the fresh seats_available.
func (h *AdminHandler) UpdateEvent(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	var body struct {
		Name     *string `json:"name"`
		Venue    *string `json:"venue"`
		StartAt  *string `json:"start_at"`
		Capacity *uint32 `json:"capacity"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Name == nil && body.Venue == nil && body.StartAt == nil && body.Capacity == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "nothing to update"})
	}
	var startAt *time.Time
	if body.StartAt != nil {
		t, err := time.Parse(time.RFC3339, *body.StartAt)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "start_at must be RFC3339"})
		}
		utc := t.UTC()
		startAt = &utc
	}
	ctx := c.Request().Context()
	// Apply the capacity change first: it is the edit that can be
	// refused, and refusing before touching metadata keeps the update
	// close to all-or-nothing.
	if body.Capacity != nil {
		if _, err := h.Ledger.AdjustCapacity(ctx, id, *body.Capacity); err != nil {
			switch {
			case errors.Is(err, repository.ErrEventNotFound):
				return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
			case errors.Is(err, ledger.ErrCapacityBelowBooked):
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "capacity below confirmed seats"})
			case errors.Is(err, repository.ErrLockWaitTimeout):
				c.Response().Header().Set("Retry-After", "1")
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "event is busy, retry shortly"})
			default:
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update capacity"})
			}
		}
	}
	if body.Name != nil || body.Venue != nil || startAt != nil {
		if err := h.Events.UpdateInfo(ctx, id, body.Name, body.Venue, startAt); err != nil {
			if errors.Is(err, repository.ErrEventNotFound) {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
			}
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update event"})
		}
	}
	ev, err := h.Events.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load event"})
	}
	synced := h.seedCounter(c, ev.ID)
	return c.JSON(http.StatusOK, echo.Map{"event": adminEvent(ev), "accelerator_synced": synced})
}

// DeleteEvent handles DELETE /v1/admin/events/:id.  Bookings attached
// to the event are removed by the cascade constraint and the admission
// counter is dropped best-effort.
func (h *AdminHandler) DeleteEvent(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	if err := h.Events.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete event"})
	}
	if err := h.Gate.Drop(c.Request().Context(), id); err != nil {
		log.Printf("[admin] failed to drop counter for event %d: %v", id, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListEventBookings handles GET /v1/admin/events/:id/bookings.  It
// returns every booking for the event with user details, newest first.
func (h *AdminHandler) ListEventBookings(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx := c.Request().Context()
	if _, err := h.Events.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	items, err := h.Bookings.ListByEvent(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Analytics handles GET /v1/admin/analytics.  It reports the global
// confirmed booking count plus per-event utilization; the consistent
// flag in each row highlights events whose seat accounting drifted.
func (h *AdminHandler) Analytics(c echo.Context) error {
	ctx := c.Request().Context()
	total, err := h.Bookings.CountConfirmed(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	events, err := h.Events.Utilization(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"total_confirmed_bookings": total,
		"events":                   events,
	})
}

// ReconcileEvent handles POST /v1/admin/events/:id/reconcile.  The
// ledger's seats_available is copied into the accelerator counter,
// overwriting whatever was there.  Unlike the best-effort seeding on
// create, an unreachable accelerator is surfaced here so the operator
// knows the repair did not happen.
func (h *AdminHandler) ReconcileEvent(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	res, err := h.Svc.Reconcile(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "accelerator resync failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"event_id":        res.EventID,
		"seats_available": res.SeatsAvailable,
		"previous":        res.Previous,
	})
}

// Seed handles POST /v1/admin/seed.  It provisions the demo users and
// events when they are missing and pushes each event's seat count into
// the accelerator.  Running it repeatedly is safe: existing rows are
// left untouched.
func (h *AdminHandler) Seed(c echo.Context) error {
	ctx := c.Request().Context()
	demoUsers := []struct{ Email, Name string }{
		{"alice@example.com", "Alice"},
		{"bob@example.com", "Bob"},
		{"carol@example.com", "Carol"},
	}
	demoEvents := []struct {
		Name, Venue string
		Capacity    uint32
	}{
		{"Indie Concert", "Stadium A", 5}, // small capacity to exercise contention
		{"Tech Talk", "Hall B", 50},
		{"Art Expo", "Gallery C", 100},
	}

	users := make([]string, 0, len(demoUsers))
	for _, du := range demoUsers {
		if _, err := h.Users.FindByEmail(ctx, du.Email); err != nil {
			if !errors.Is(err, repository.ErrUserNotFound) {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to seed users"})
			}
			name := du.Name
			u := &model.User{Email: du.Email, Name: &name}
			if err := h.Users.Create(ctx, u); err != nil && !errors.Is(err, repository.ErrDuplicateKey) {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to seed users"})
			}
		}
		users = append(users, du.Email)
	}

	events := make([]string, 0, len(demoEvents))
	synced := 0
	for i, de := range demoEvents {
		ev, err := h.Events.FindByName(ctx, de.Name)
		if err != nil {
			if !errors.Is(err, repository.ErrEventNotFound) {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to seed events"})
			}
			venue := de.Venue
			ev = &model.Event{
				Name:           de.Name,
				Venue:          &venue,
				StartAt:        time.Now().UTC().Add(time.Duration(i+1) * 24 * time.Hour),
				Capacity:       de.Capacity,
				SeatsAvailable: de.Capacity,
			}
			if err := h.Events.Create(ctx, ev); err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to seed events"})
			}
		}
		events = append(events, ev.Name)
		if h.seedCounter(c, ev.ID) {
			synced++
		}
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"users":               users,
		"events":              events,
		"accelerators_synced": synced,
	})
}
