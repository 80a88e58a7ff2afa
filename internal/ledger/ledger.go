// Package ledger implements the authoritative seat accounting on top
// of MySQL.  Every mutation follows the same shape: open a
// transaction, lock the event row with SELECT ... FOR UPDATE, verify
// that seats_available plus confirmed seats still equals capacity,
// apply the change and commit.  Concurrent requests for the same
// event serialize on the row lock, which is what makes oversell
// impossible regardless of what the Redis fast path believes.
//
// Transactions run at READ COMMITTED so that reads performed after
// the row lock is acquired observe everything committed before the
// lock was granted.  Under the default REPEATABLE READ the snapshot
// would date from the first statement of the transaction and the
// idempotency and invariant checks could act on stale rows.
package ledger

import (
    "context"
    "database/sql"
    "errors"
    "log"

    "github.com/utsavam/event-booking/internal/model"
    "github.com/utsavam/event-booking/internal/repository"
)

// ErrInsufficientCapacity is returned when an event has fewer seats
// available than a booking requests.  This is a terminal answer for
// the attempt, not a transient condition.
var ErrInsufficientCapacity = errors.New("insufficient capacity")

// ErrAlreadyCancelled is returned when releasing a booking that is
// already CANCELLED.  Callers that want idempotent cancellation
// convert it into a success.
var ErrAlreadyCancelled = errors.New("booking already cancelled")

// ErrInvalidSeats is returned when a booking requests zero seats.
var ErrInvalidSeats = errors.New("seats must be at least 1")

// ErrCapacityBelowBooked is returned when a capacity change would
// leave the event with fewer seats than are already confirmed.
var ErrCapacityBelowBooked = errors.New("capacity below confirmed seats")

// ErrLedgerInconsistent is returned when seats_available plus
// confirmed seats no longer equals capacity for an event.  The
// transaction that detected it is rolled back; the row is left
// untouched for inspection and repair via a capacity adjustment.
var ErrLedgerInconsistent = errors.New("ledger inconsistent")

// Ledger owns the transactional seat accounting for events.  It is
// the only component allowed to change seats_available, booking rows
// and the event version counter.
type Ledger struct {
    db       *sql.DB
    events   *repository.EventRepo
    bookings *repository.BookingRepo
    users    *repository.UserRepo
}

// New constructs a Ledger over the shared DB handle and repositories.
func New(db *sql.DB, events *repository.EventRepo, bookings *repository.BookingRepo, users *repository.UserRepo) *Ledger {
    return &Ledger{db: db, events: events, bookings: bookings, users: users}
}

// txOptions is used for every ledger transaction.  See the package
// comment for why READ COMMITTED.
var txOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

// ReserveSeats books seats seats for userID on eventID.  When
// idempotencyKey is non-empty and a booking with that key already
// exists for the event, the stored booking is returned unchanged with
// replayed set to true and no seats are touched.
//
// The decision to accept or refuse is made entirely under the event
// row lock; whatever any fast path concluded beforehand carries no
// weight here.  Returns ErrInsufficientCapacity when not enough seats
// remain, repository.ErrEventNotFound / ErrUserNotFound for unknown
// rows and repository.ErrLockWaitTimeout when the row lock could not
// be acquired in time.
func (l *Ledger) ReserveSeats(ctx context.Context, userID, eventID uint64, seats uint32, idempotencyKey string) (booking *model.Booking, replayed bool, err error) {
    if seats < 1 {
        return nil, false, ErrInvalidSeats
    }
    tx, err := l.db.BeginTx(ctx, txOptions)
    if err != nil {
        return nil, false, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    ok, err := l.users.ExistsTx(ctx, tx, userID)
    if err != nil {
        return nil, false, err
    }
    if !ok {
        return nil, false, repository.ErrUserNotFound
    }

    ev, err := l.events.GetForUpdateTx(ctx, tx, eventID)
    if err != nil {
        return nil, false, err
    }

    // Replay check runs after the lock is held: any racing request
    // with the same key has either committed (its row is visible
    // now) or rolled back (its seats were never taken).
    if idempotencyKey != "" {
        prior, err := l.bookings.FindByEventKeyTx(ctx, tx, eventID, idempotencyKey)
        if err == nil {
            return prior, true, nil
        }
        if !errors.Is(err, repository.ErrBookingNotFound) {
            return nil, false, err
        }
    }

    if err := l.checkInvariant(ctx, tx, ev); err != nil {
        return nil, false, err
    }

    if ev.SeatsAvailable < seats {
        return nil, false, ErrInsufficientCapacity
    }

    if err := l.events.UpdateSeatsTx(ctx, tx, eventID, ev.SeatsAvailable-seats); err != nil {
        return nil, false, err
    }
    b := &model.Booking{
        UserID:  userID,
        EventID: eventID,
        Seats:   seats,
        Status:  "CONFIRMED",
    }
    if idempotencyKey != "" {
        b.IdempotencyKey = &idempotencyKey
    }
    if err := l.bookings.CreateTx(ctx, tx, b); err != nil {
        return nil, false, err
    }
    if err := tx.Commit(); err != nil {
        return nil, false, repository.TranslateDBError(err)
    }
    committed = true
    return b, false, nil
}

// ReleaseSeats cancels a booking and returns its seats to the event.
// released reports whether this call performed the cancellation;
// when the booking was already CANCELLED the stored booking is
// returned together with ErrAlreadyCancelled and nothing changes.
//
// The booking row is locked before the event row.  Reservations only
// ever lock the event row, so the two flows cannot deadlock each
// other.
func (l *Ledger) ReleaseSeats(ctx context.Context, bookingID uint64) (booking *model.Booking, released bool, err error) {
    tx, err := l.db.BeginTx(ctx, txOptions)
    if err != nil {
        return nil, false, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    b, err := l.bookings.GetForUpdateTx(ctx, tx, bookingID)
    if err != nil {
        return nil, false, err
    }
    if b.Status == "CANCELLED" {
        return b, false, ErrAlreadyCancelled
    }

    ev, err := l.events.GetForUpdateTx(ctx, tx, b.EventID)
    if err != nil {
        return nil, false, err
    }
    if err := l.checkInvariant(ctx, tx, ev); err != nil {
        return nil, false, err
    }

    if err := l.bookings.MarkCancelledTx(ctx, tx, b.ID); err != nil {
        return nil, false, err
    }
    if err := l.events.UpdateSeatsTx(ctx, tx, ev.ID, ev.SeatsAvailable+b.Seats); err != nil {
        return nil, false, err
    }
    // Re-read so the caller sees the final status and timestamps.
    b, err = l.bookings.GetForUpdateTx(ctx, tx, b.ID)
    if err != nil {
        return nil, false, err
    }
    if err := tx.Commit(); err != nil {
        return nil, false, repository.TranslateDBError(err)
    }
    committed = true
    return b, true, nil
}

// FindBookingByKey returns the booking stored under an idempotency
// key for an event, or repository.ErrBookingNotFound.  It lets the
// orchestrator answer a replay even when the fast path has already
// rejected the request, without opening a transaction.
func (l *Ledger) FindBookingByKey(ctx context.Context, eventID uint64, key string) (*model.Booking, error) {
    return l.bookings.FindByEventKey(ctx, eventID, key)
}

// SeatsAvailable reports the authoritative free seat count for an
// event.  This is a plain read; it does not lock the row.
func (l *Ledger) SeatsAvailable(ctx context.Context, eventID uint64) (uint32, error) {
    ev, err := l.events.GetByID(ctx, eventID)
    if err != nil {
        return 0, err
    }
    return ev.SeatsAvailable, nil
}

// AdjustCapacity resizes an event under the row lock.  The new
// seats_available is recomputed as capacity minus currently confirmed
// seats, which also repairs any drift the row had accumulated.  It
// returns ErrCapacityBelowBooked when the new capacity cannot hold
// the seats already confirmed.
func (l *Ledger) AdjustCapacity(ctx context.Context, eventID uint64, capacity uint32) (*model.Event, error) {
    tx, err := l.db.BeginTx(ctx, txOptions)
    if err != nil {
        return nil, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    ev, err := l.events.GetForUpdateTx(ctx, tx, eventID)
    if err != nil {
        return nil, err
    }
    confirmed, err := l.bookings.SumConfirmedSeatsTx(ctx, tx, eventID)
    if err != nil {
        return nil, err
    }
    if uint64(capacity) < confirmed {
        return nil, ErrCapacityBelowBooked
    }
    if err := l.events.UpdateCapacityTx(ctx, tx, eventID, capacity, capacity-uint32(confirmed)); err != nil {
        return nil, err
    }
    ev, err = l.events.GetForUpdateTx(ctx, tx, eventID)
    if err != nil {
        return nil, err
    }
    if err := tx.Commit(); err != nil {
        return nil, repository.TranslateDBError(err)
    }
    committed = true
    return ev, nil
}

// checkInvariant verifies seats_available + confirmed seats ==
// capacity for the locked event row.  A mismatch is logged and the
// mutation is refused; nothing attempts an automatic repair here.
func (l *Ledger) checkInvariant(ctx context.Context, tx *sql.Tx, ev *model.Event) error {
    confirmed, err := l.bookings.SumConfirmedSeatsTx(ctx, tx, ev.ID)
    if err != nil {
        return err
    }
    if uint64(ev.SeatsAvailable)+confirmed != uint64(ev.Capacity) {
        log.Printf("[ledger] invariant broken for event %d: capacity=%d available=%d confirmed=%d",
            ev.ID, ev.Capacity, ev.SeatsAvailable, confirmed)
        return ErrLedgerInconsistent
    }
    return nil
}
