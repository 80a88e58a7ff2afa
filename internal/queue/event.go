// Package queue publishes and consumes booking lifecycle events over
// RabbitMQ.  The consumer appends one line per event to
// logs/booking.log.
package queue

// QueueName is the durable queue carrying booking lifecycle events.
// Confirmations and cancellations share it; consumers branch on Type.
const QueueName = "booking.lifecycle"

// Event types carried in BookingEvent.Type.
const (
    TypeBookingConfirmed = "booking.confirmed"
    TypeBookingCancelled = "booking.cancelled"
)

// BookingEvent is published after a booking changes state.  It
// contains enough information for downstream consumers to log, notify,
// or trigger analytics without querying the primary database.
type BookingEvent struct {
    Type       string `json:"type"`
    BookingID  uint64 `json:"booking_id"`
    UserID     uint64 `json:"user_id"`
    EventID    uint64 `json:"event_id"`
    Seats      uint32 `json:"seats"`
    OccurredAt string `json:"occurred_at"`
}
