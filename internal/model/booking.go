package model

import "time"

// Booking records a user's claim on a number of seats for one
// event.  A booking is CONFIRMED from the moment it is created and
// moves to CANCELLED at most once; there are no other states.  The
// idempotency key makes retried creation requests land on the same
// row instead of booking twice.
//
// Fields:
//  ID             – primary key identifier.
//  UserID         – user who made the booking.
//  EventID        – event the seats belong to.
//  Seats          – number of seats held by this booking.
//  Status         – CONFIRMED or CANCELLED.
//  IdempotencyKey – client supplied replay token, unique per event
//                   (optional).
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type Booking struct {
    ID             uint64    // bookings.id
    UserID         uint64    // bookings.user_id
    EventID        uint64    // bookings.event_id
    Seats          uint32    // bookings.seats
    Status         string    // bookings.status
    IdempotencyKey *string   // bookings.idempotency_key (nullable)
    CreatedAt      time.Time // bookings.created_at
    UpdatedAt      time.Time // bookings.updated_at
}
