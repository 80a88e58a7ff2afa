// Package service orchestrates bookings across the authoritative seat
// ledger and the advisory admission gate.  The division of labor is
// strict: the gate may only short-circuit requests that are going to
// fail anyway, while every booking that goes through is decided by the
// ledger under its row lock.  The service glues the two together: it
// retries transient lock timeouts, and it refunds the gate whenever an
// admit turns out to have been stale.  Committed outcomes are emitted
// as lifecycle events.
package service

import (
    "context"
    "errors"
    "sync"
    "time"

    "github.com/utsavam/event-booking/internal/admission"
    "github.com/utsavam/event-booking/internal/ledger"
    "github.com/utsavam/event-booking/internal/model"
    "github.com/utsavam/event-booking/internal/queue"
    "github.com/utsavam/event-booking/internal/repository"
)

// Retry policy for transient lock timeouts.  Backoff is linear:
// attempt n sleeps n * reserveBackoff before trying again.
const (
    reserveAttempts = 5
    reserveBackoff  = 20 * time.Millisecond
)

// ErrBookingBusy is returned when every retry ran into a lock wait
// timeout.  The event row is contended but not sold out; the client
// may retry with the same idempotency key.
var ErrBookingBusy = errors.New("booking busy")

// SeatLedger is the slice of the authoritative ledger the orchestrator
// consumes.  *ledger.Ledger implements it.
type SeatLedger interface {
    ReserveSeats(ctx context.Context, userID, eventID uint64, seats uint32, idempotencyKey string) (*model.Booking, bool, error)
    ReleaseSeats(ctx context.Context, bookingID uint64) (*model.Booking, bool, error)
    FindBookingByKey(ctx context.Context, eventID uint64, key string) (*model.Booking, error)
    SeatsAvailable(ctx context.Context, eventID uint64) (uint32, error)
}

// AdmissionGate is the advisory fast path in front of the ledger.
// *admission.Gate implements it.
type AdmissionGate interface {
    TryAdmit(ctx context.Context, eventID uint64, seats uint32) admission.Verdict
    Refund(ctx context.Context, eventID uint64, seats uint32) error
    Resync(ctx context.Context, eventID uint64, seats uint32) error
    Peek(ctx context.Context, eventID uint64) (int64, bool)
}

// PublishFunc delivers a lifecycle event to the message broker.  A nil
// PublishFunc disables eventing entirely.
type PublishFunc func(context.Context, queue.BookingEvent) error

// BookingService coordinates Book, Cancel and Reconcile.
type BookingService struct {
    ledger   SeatLedger
    gate     AdmissionGate
    publish  PublishFunc
    attempts int
    backoff  time.Duration
    locks    sync.Map // event ID -> *sync.Mutex, serializes Reconcile per event
}

// NewBookingService wires the orchestrator.  publish may be nil.
func NewBookingService(l SeatLedger, g AdmissionGate, publish PublishFunc) *BookingService {
    return &BookingService{
        ledger:   l,
        gate:     g,
        publish:  publish,
        attempts: reserveAttempts,
        backoff:  reserveBackoff,
    }
}

// BookResult is the outcome of a successful Book call.  Replayed is
// true when an earlier booking with the same idempotency key was
// returned instead of creating a new one.
type BookResult struct {
    Booking  *model.Booking
    Replayed bool
}

// CancelResult is the outcome of a successful Cancel call.  Released
// is false when the booking was already cancelled and this call
// changed nothing.
type CancelResult struct {
    Booking  *model.Booking
    Released bool
}

// ReconcileResult reports what a reconciliation did.  Previous is the
// gate counter value that was overwritten, nil when the counter was
// missing or unreadable.
type ReconcileResult struct {
    EventID        uint64
    SeatsAvailable uint32
    Previous       *int64
}

// Book places a booking for userID on eventID.
//
// The gate runs first: a Rejected verdict ends the request without
// touching the database, except that requests carrying an idempotency
// key still get their replay answered, since the stored booking must
// win over a drained counter.  Admitted and Unknown both proceed to
// the ledger, which alone decides.  When the ledger refuses or only
// replays after the gate had Admitted, the gate's decrement was
// premature and is refunded.  Lock wait timeouts are retried with
// linear backoff; exhaustion surfaces ErrBookingBusy, never a false
// capacity verdict.
func (s *BookingService) Book(ctx context.Context, userID, eventID uint64, seats uint32, idempotencyKey string) (*BookResult, error) {
    verdict := s.gate.TryAdmit(ctx, eventID, seats)
    if verdict == admission.Rejected {
        if idempotencyKey != "" {
            prior, err := s.ledger.FindBookingByKey(ctx, eventID, idempotencyKey)
            if err == nil {
                return &BookResult{Booking: prior, Replayed: true}, nil
            }
            if !errors.Is(err, repository.ErrBookingNotFound) {
                return nil, err
            }
        }
        return nil, ledger.ErrInsufficientCapacity
    }

    b, replayed, err := s.reserveWithRetry(ctx, userID, eventID, seats, idempotencyKey)
    if err != nil {
        if verdict == admission.Admitted {
            _ = s.gate.Refund(ctx, eventID, seats)
        }
        if errors.Is(err, repository.ErrLockWaitTimeout) {
            return nil, ErrBookingBusy
        }
        return nil, err
    }
    if replayed {
        // The ledger consumed nothing, so an Admitted decrement was
        // taken for seats that were never booked.
        if verdict == admission.Admitted {
            _ = s.gate.Refund(ctx, eventID, seats)
        }
        return &BookResult{Booking: b, Replayed: true}, nil
    }
    s.emit(queue.TypeBookingConfirmed, b)
    return &BookResult{Booking: b, Replayed: false}, nil
}

// Cancel releases a booking's seats back to its event.  Cancelling a
// booking that is already CANCELLED succeeds without changing
// anything; the terminal state is simply reported back.  On a real
// release the gate counter gets the seats back and a cancellation
// event is emitted, both best-effort.
func (s *BookingService) Cancel(ctx context.Context, bookingID uint64) (*CancelResult, error) {
    var (
        b        *model.Booking
        released bool
        err      error
    )
    for attempt := 1; attempt <= s.attempts; attempt++ {
        b, released, err = s.ledger.ReleaseSeats(ctx, bookingID)
        if err == nil || !errors.Is(err, repository.ErrLockWaitTimeout) {
            break
        }
        if werr := s.wait(ctx, attempt); werr != nil {
            err = werr
            break
        }
    }
    if errors.Is(err, ledger.ErrAlreadyCancelled) {
        return &CancelResult{Booking: b, Released: false}, nil
    }
    if err != nil {
        if errors.Is(err, repository.ErrLockWaitTimeout) {
            return nil, ErrBookingBusy
        }
        return nil, err
    }
    _ = s.gate.Refund(ctx, b.EventID, b.Seats)
    s.emit(queue.TypeBookingCancelled, b)
    return &CancelResult{Booking: b, Released: released}, nil
}

// Reconcile copies the authoritative seat count of an event onto the
// gate counter.  Calls for the same event are serialized through a
// per-event mutex so that a slow reconciliation cannot overwrite a
// fresher value with a staler one.  A resync failure is returned to
// the caller: reconciliation is the one gate operation whose failure
// an operator has to see.
func (s *BookingService) Reconcile(ctx context.Context, eventID uint64) (*ReconcileResult, error) {
    mu := s.eventLock(eventID)
    mu.Lock()
    defer mu.Unlock()

    avail, err := s.ledger.SeatsAvailable(ctx, eventID)
    if err != nil {
        return nil, err
    }
    res := &ReconcileResult{EventID: eventID, SeatsAvailable: avail}
    if prev, ok := s.gate.Peek(ctx, eventID); ok {
        res.Previous = &prev
    }
    if err := s.gate.Resync(ctx, eventID, avail); err != nil {
        return nil, err
    }
    return res, nil
}

// reserveWithRetry drives the ledger call, retrying only on lock wait
// timeouts.  Any other error, including a cancelled context during
// backoff, ends the loop immediately.
func (s *BookingService) reserveWithRetry(ctx context.Context, userID, eventID uint64, seats uint32, idempotencyKey string) (*model.Booking, bool, error) {
    var lastErr error
    for attempt := 1; attempt <= s.attempts; attempt++ {
        b, replayed, err := s.ledger.ReserveSeats(ctx, userID, eventID, seats, idempotencyKey)
        if err == nil {
            return b, replayed, nil
        }
        if !errors.Is(err, repository.ErrLockWaitTimeout) {
            return nil, false, err
        }
        lastErr = err
        if werr := s.wait(ctx, attempt); werr != nil {
            return nil, false, werr
        }
    }
    return nil, false, lastErr
}

// wait sleeps the linear backoff for the given attempt, or returns
// early with the context error.  The final attempt does not sleep.
func (s *BookingService) wait(ctx context.Context, attempt int) error {
    if attempt >= s.attempts {
        return nil
    }
    t := time.NewTimer(time.Duration(attempt) * s.backoff)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.C:
        return nil
    }
}

// eventLock returns the mutex serializing reconciliations of one event.
func (s *BookingService) eventLock(eventID uint64) *sync.Mutex {
    v, _ := s.locks.LoadOrStore(eventID, &sync.Mutex{})
    return v.(*sync.Mutex)
}

// emit publishes a lifecycle event in the background.  Publishing is
// fire-and-forget; the publisher logs its own failures.
func (s *BookingService) emit(eventType string, b *model.Booking) {
    if s.publish == nil {
        return
    }
    ev := queue.BookingEvent{
        Type:       eventType,
        BookingID:  b.ID,
        UserID:     b.UserID,
        EventID:    b.EventID,
        Seats:      b.Seats,
        OccurredAt: time.Now().UTC().Format(time.RFC3339),
    }
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer cancel()
        _ = s.publish(ctx, ev)
    }()
}
