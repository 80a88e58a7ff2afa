package handler

import (
	"errors"   // for errors.Is comparisons
	"net/http" // HTTP status codes
	"strconv"  // parsing path parameters
	"time"     // timestamps in response views

	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/utsavam/event-booking/internal/ledger"
	"github.com/utsavam/event-booking/internal/model"
	"github.com/utsavam/event-booking/internal/repository"
	"github.com/utsavam/event-booking/internal/service"
)

// BookingHandler exposes the booking lifecycle over HTTP.  The heavy
// lifting happens in the service layer; this layer validates input and
// translates sentinel errors into status codes.
type BookingHandler struct {
	Svc      *service.BookingService // orchestrates admission, ledger and lifecycle events
	Bookings *repository.BookingRepo // direct reads for booking history
}

// NewBookingHandler constructs a BookingHandler.  Both dependencies
// must be non-nil.
func NewBookingHandler(svc *service.BookingService, bookings *repository.BookingRepo) *BookingHandler {
	if svc == nil || bookings == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{Svc: svc, Bookings: bookings}
}

// BookingView shapes a booking for JSON responses.  The model structs
// carry no json tags, so handlers map the fields explicitly.
type BookingView struct {
	ID             uint64    `json:"id"`
	UserID         uint64    `json:"user_id"`
	EventID        uint64    `json:"event_id"`
	Seats          uint32    `json:"seats"`
	Status         string    `json:"status"`
	IdempotencyKey *string   `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func bookingView(b *model.Booking) BookingView {
	return BookingView{
		ID:             b.ID,
		UserID:         b.UserID,
		EventID:        b.EventID,
		Seats:          b.Seats,
		Status:         b.Status,
		IdempotencyKey: b.IdempotencyKey,
		CreatedAt:      b.CreatedAt,
	}
}

// CreateBooking handles POST /v1/bookings.  The body must contain
// user_id, event_id and seats; idempotency_key is optional.  A fresh
// booking returns 201 Created, a replayed idempotency key returns 200
// with the originally stored booking.  409 means the event lacks seats,
// 503 means lock contention exhausted the retry budget and the client
// should simply try again.
func (h *BookingHandler) CreateBooking(c echo.Context) error {
	var body struct {
		UserID         uint64 `json:"user_id"`
		EventID        uint64 `json:"event_id"`
		Seats          uint32 `json:"seats"`
		IdempotencyKey string `json:"idempotency_key"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.UserID == 0 || body.EventID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id and event_id are required"})
	}
	if body.Seats == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats must be at least 1"})
	}
	res, err := h.Svc.Book(c.Request().Context(), body.UserID, body.EventID, body.Seats, body.IdempotencyKey)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientCapacity):
			return c.JSON(http.StatusConflict, echo.Map{"error": "not enough seats available"})
		case errors.Is(err, service.ErrBookingBusy):
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "event is busy, retry shortly"})
		case errors.Is(err, repository.ErrEventNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		case errors.Is(err, repository.ErrUserNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		case errors.Is(err, ledger.ErrInvalidSeats):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats must be at least 1"})
		case errors.Is(err, ledger.ErrLedgerInconsistent):
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "seat accounting inconsistent, reconcile required"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "booking failed"})
		}
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, echo.Map{"booking": bookingView(res.Booking), "replayed": res.Replayed})
}

// CancelBooking handles DELETE /v1/bookings/:id.  Cancellation is
// idempotent: cancelling an already cancelled booking answers 200 with
// released=false and never returns seats twice.
func (h *BookingHandler) CancelBooking(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	res, err := h.Svc.Cancel(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrBookingNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
		case errors.Is(err, service.ErrBookingBusy):
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "event is busy, retry shortly"})
		case errors.Is(err, ledger.ErrLedgerInconsistent):
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "seat accounting inconsistent, reconcile required"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cancellation failed"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"booking": bookingView(res.Booking), "released": res.Released})
}

// ListUserBookings handles GET /v1/users/:id/bookings.  History is
// returned newest first with event details joined in; an unknown user
// simply yields an empty list.
func (h *BookingHandler) ListUserBookings(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	items, err := h.Bookings.ListByUser(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
