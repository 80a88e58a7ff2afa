// Package handler exposes HTTP handlers for the public and administrative
// endpoints. This file defines the unauthenticated browse API. These routes
// allow anyone to list upcoming events and inspect a single event's
// remaining seats without authentication.

package handler

import (
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/utsavam/event-booking/internal/model"
    "github.com/utsavam/event-booking/internal/repository"
)

// PublicHandler aggregates the repositories needed for unauthenticated
// browsing.  It produces sanitized responses suitable for public
// consumption.
type PublicHandler struct {
    EventRepo *repository.EventRepo // provides access to event data
}

// NewPublicHandler constructs a PublicHandler.  The repository must be
// non-nil.
func NewPublicHandler(eventRepo *repository.EventRepo) *PublicHandler {
    if eventRepo == nil {
        panic("nil repository passed to NewPublicHandler")
    }
    return &PublicHandler{EventRepo: eventRepo}
}

// PublicEvent represents an event exposed via the public API.  It
// contains only safe fields; version and audit timestamps stay internal.
type PublicEvent struct {
    ID             uint64    `json:"id"`
    Name           string    `json:"name"`
    Venue          *string   `json:"venue,omitempty"`
    StartAt        time.Time `json:"start_at"`
    Capacity       uint32    `json:"capacity"`
    SeatsAvailable uint32    `json:"seats_available"`
}

func publicEvent(ev *model.Event) PublicEvent {
    return PublicEvent{
        ID:             ev.ID,
        Name:           ev.Name,
        Venue:          ev.Venue,
        StartAt:        ev.StartAt,
        Capacity:       ev.Capacity,
        SeatsAvailable: ev.SeatsAvailable,
    }
}

// ListEvents handles GET /v1/events.  The optional limit parameter caps
// the result size (default 50, at most 200) and upcoming_only (default
// true) hides events whose start time already passed.  Events are
// ordered by start time ascending.
func (h *PublicHandler) ListEvents(c echo.Context) error {
    ctx := c.Request().Context()
    limit := 50
    if raw := c.QueryParam("limit"); raw != "" {
        n, err := strconv.Atoi(raw)
        if err != nil || n < 1 {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
        }
        limit = n
    }
    if limit > 200 {
        limit = 200
    }
    upcoming := true
    if raw := c.QueryParam("upcoming_only"); raw != "" {
        b, err := strconv.ParseBool(raw)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid upcoming_only"})
        }
        upcoming = b
    }
    events, err := h.EventRepo.List(ctx, limit, upcoming)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    out := make([]PublicEvent, 0, len(events))
    for i := range events {
        out = append(out, publicEvent(&events[i]))
    }
    return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// GetEvent handles GET /v1/events/:id.  It returns the event with its
// live seats_available count, or 404 when no such event exists.
func (h *PublicHandler) GetEvent(c echo.Context) error {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
    }
    ev, err := h.EventRepo.GetByID(c.Request().Context(), id)
    if err != nil {
        if err == repository.ErrEventNotFound {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, publicEvent(ev))
}
