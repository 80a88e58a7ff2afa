package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/utsavam/event-booking/internal/model"
)

// ErrBookingNotFound indicates that a booking was not located in the DB.
var ErrBookingNotFound = errors.New("booking not found")

// BookingRepo provides persistence for bookings.  Bookings are only
// ever created or cancelled inside a transaction that also holds the
// row lock of the parent event, which is why most methods here take
// an explicit *sql.Tx.  All timestamp fields are stored in UTC.
type BookingRepo struct {
    db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying sql.DB for callers that need to begin
// transactions spanning multiple repositories.
func (r *BookingRepo) DB() *sql.DB {
    return r.db
}

// CreateTx inserts a new booking within the scope of an existing
// transaction.  It populates the generated ID on the provided record
// and reads the row back so DB defaults (timestamps) are filled in.
// A unique index on (event_id, idempotency_key) makes two concurrent
// inserts with the same key collide; the loser receives
// ErrDuplicateKey and should re-read the winner's row.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
    const q = `INSERT INTO bookings (user_id, event_id, seats, status, idempotency_key) VALUES (?, ?, ?, ?, ?)`
    res, err := tx.ExecContext(ctx, q, b.UserID, b.EventID, b.Seats, b.Status, b.IdempotencyKey)
    if err != nil {
        return TranslateDBError(err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    b.ID = uint64(id)
    // Query back the full row to populate timestamps and defaults
    const sel = `SELECT id, user_id, event_id, seats, status, idempotency_key, created_at, updated_at
                 FROM bookings WHERE id = ?`
    var key sql.NullString
    err = tx.QueryRowContext(ctx, sel, b.ID).Scan(
        &b.ID, &b.UserID, &b.EventID, &b.Seats, &b.Status, &key, &b.CreatedAt, &b.UpdatedAt,
    )
    if err != nil {
        return err
    }
    b.IdempotencyKey = nil
    if key.Valid {
        k := key.String
        b.IdempotencyKey = &k
    }
    return nil
}

// GetByID retrieves a booking by its ID without locking it.  It
// returns ErrBookingNotFound if there is no matching row.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
    const q = `SELECT id, user_id, event_id, seats, status, idempotency_key, created_at, updated_at
               FROM bookings WHERE id = ?`
    return scanBooking(r.db.QueryRowContext(ctx, q, id))
}

// GetForUpdateTx loads a booking inside the given transaction with an
// exclusive row lock so that two concurrent cancellations of the same
// booking serialize.  It returns ErrBookingNotFound when no row
// matches.
func (r *BookingRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Booking, error) {
    const q = `SELECT id, user_id, event_id, seats, status, idempotency_key, created_at, updated_at
               FROM bookings WHERE id = ? FOR UPDATE`
    return scanBooking(tx.QueryRowContext(ctx, q, id))
}

// FindByEventKeyTx looks up a booking by its idempotency key within
// one event.  The transaction is the one holding the event row lock,
// so a hit here is guaranteed to be the winner of any earlier race on
// the same key.  Returns ErrBookingNotFound when the key has not been
// used for this event.
func (r *BookingRepo) FindByEventKeyTx(ctx context.Context, tx *sql.Tx, eventID uint64, key string) (*model.Booking, error) {
    const q = `SELECT id, user_id, event_id, seats, status, idempotency_key, created_at, updated_at
               FROM bookings WHERE event_id = ? AND idempotency_key = ?`
    return scanBooking(tx.QueryRowContext(ctx, q, eventID, key))
}

// FindByEventKey is the lock-free variant of FindByEventKeyTx.  It is
// used to answer replays when the fast path already turned the
// request away and no transaction is open.
func (r *BookingRepo) FindByEventKey(ctx context.Context, eventID uint64, key string) (*model.Booking, error) {
    const q = `SELECT id, user_id, event_id, seats, status, idempotency_key, created_at, updated_at
               FROM bookings WHERE event_id = ? AND idempotency_key = ?`
    return scanBooking(r.db.QueryRowContext(ctx, q, eventID, key))
}

// MarkCancelledTx flips a booking to CANCELLED.  The caller must hold
// the booking row lock via GetForUpdateTx and must have verified that
// the booking is still CONFIRMED; the status check is not repeated
// here.
func (r *BookingRepo) MarkCancelledTx(ctx context.Context, tx *sql.Tx, id uint64) error {
    const q = `UPDATE bookings SET status = 'CANCELLED' WHERE id = ?`
    _, err := tx.ExecContext(ctx, q, id)
    return TranslateDBError(err)
}

// SumConfirmedSeatsTx totals the seats of all CONFIRMED bookings for
// an event inside the given transaction.  The ledger uses it to
// verify that seats_available plus confirmed seats still equals the
// capacity before committing a mutation.
func (r *BookingRepo) SumConfirmedSeatsTx(ctx context.Context, tx *sql.Tx, eventID uint64) (uint64, error) {
    const q = `SELECT COALESCE(SUM(seats), 0) FROM bookings WHERE event_id = ? AND status = 'CONFIRMED'`
    var total uint64
    if err := tx.QueryRowContext(ctx, q, eventID).Scan(&total); err != nil {
        return 0, TranslateDBError(err)
    }
    return total, nil
}

// CountConfirmed returns the number of CONFIRMED booking rows across
// all events.  Used by the admin analytics endpoint.
func (r *BookingRepo) CountConfirmed(ctx context.Context) (uint64, error) {
    const q = `SELECT COUNT(*) FROM bookings WHERE status = 'CONFIRMED'`
    var n uint64
    if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
        return 0, err
    }
    return n, nil
}

// UserBookingDetail is a booking joined with the event it belongs to,
// shaped for the customer facing listing endpoint.
type UserBookingDetail struct {
    ID        uint64  `json:"id"`
    EventID   uint64  `json:"event_id"`
    EventName string  `json:"event_name"`
    StartAt   string  `json:"start_at"`
    Seats     uint32  `json:"seats"`
    Status    string  `json:"status"`
    CreatedAt string  `json:"created_at"`
}

// ListByUser returns all bookings made by the given user together
// with event names, ordered by creation time descending (newest
// first).  When no bookings exist an empty slice is returned.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]UserBookingDetail, error) {
    const q = `SELECT b.id, b.event_id, e.name, e.start_at, b.seats, b.status, b.created_at
               FROM bookings b
               JOIN events e ON e.id = b.event_id
               WHERE b.user_id = ?
               ORDER BY b.created_at DESC`
    rows, err := r.db.QueryContext(ctx, q, userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    details := make([]UserBookingDetail, 0)
    for rows.Next() {
        var d UserBookingDetail
        var startAt, createdAt time.Time
        if err := rows.Scan(&d.ID, &d.EventID, &d.EventName, &startAt, &d.Seats, &d.Status, &createdAt); err != nil {
            return nil, err
        }
        d.StartAt = startAt.UTC().Format(time.RFC3339)
        d.CreatedAt = createdAt.UTC().Format(time.RFC3339)
        details = append(details, d)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return details, nil
}

// EventBookingDetail is a booking joined with the user who made it,
// shaped for the admin listing endpoint.
type EventBookingDetail struct {
    ID             uint64  `json:"id"`
    UserID         uint64  `json:"user_id"`
    UserEmail      string  `json:"user_email"`
    Seats          uint32  `json:"seats"`
    Status         string  `json:"status"`
    IdempotencyKey *string `json:"idempotency_key,omitempty"`
    CreatedAt      string  `json:"created_at"`
}

// ListByEvent returns every booking for an event together with the
// booking user's email, ordered by creation time descending.  The
// caller is expected to have checked that the event exists.
func (r *BookingRepo) ListByEvent(ctx context.Context, eventID uint64) ([]EventBookingDetail, error) {
    const q = `SELECT b.id, b.user_id, u.email, b.seats, b.status, b.idempotency_key, b.created_at
               FROM bookings b
               JOIN users u ON u.id = b.user_id
               WHERE b.event_id = ?
               ORDER BY b.created_at DESC`
    rows, err := r.db.QueryContext(ctx, q, eventID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    details := make([]EventBookingDetail, 0)
    for rows.Next() {
        var d EventBookingDetail
        var key sql.NullString
        var createdAt time.Time
        if err := rows.Scan(&d.ID, &d.UserID, &d.UserEmail, &d.Seats, &d.Status, &key, &createdAt); err != nil {
            return nil, err
        }
        if key.Valid {
            k := key.String
            d.IdempotencyKey = &k
        }
        d.CreatedAt = createdAt.UTC().Format(time.RFC3339)
        details = append(details, d)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return details, nil
}

// scanBooking reads a single booking row, mapping sql.ErrNoRows to
// ErrBookingNotFound and lock errors to their sentinels.
func scanBooking(row *sql.Row) (*model.Booking, error) {
    var b model.Booking
    var key sql.NullString
    err := row.Scan(
        &b.ID, &b.UserID, &b.EventID, &b.Seats, &b.Status, &key, &b.CreatedAt, &b.UpdatedAt,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrBookingNotFound
        }
        return nil, TranslateDBError(err)
    }
    if key.Valid {
        k := key.String
        b.IdempotencyKey = &k
    }
    return &b, nil
}
