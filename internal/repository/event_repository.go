package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"
    "time"

    "github.com/utsavam/event-booking/internal/model"
)

// ErrEventNotFound indicates that an event was not located in the DB.
var ErrEventNotFound = errors.New("event not found")

// EventRepo manages persistence for events.  The seats_available and
// version columns are only ever written through the *Tx methods below
// while the caller holds the row lock obtained via GetForUpdateTx;
// everything else may use the plain methods.
type EventRepo struct {
    db *sql.DB
}

// NewEventRepo constructs an EventRepo with the given DB handle.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// DB exposes the underlying sql.DB.  It allows callers to begin
// transactions spanning multiple repositories.  Use this method to
// obtain a *sql.DB when you need fine-grained transaction control.
func (r *EventRepo) DB() *sql.DB {
    return r.db
}

// Create inserts a new event and assigns the generated ID back to the
// struct.  SeatsAvailable should normally equal Capacity for a fresh
// event.  After the insert the row is read back to populate the
// version and timestamp columns with their DB defaults.
func (r *EventRepo) Create(ctx context.Context, ev *model.Event) error {
    const q = `INSERT INTO events (name, venue, start_at, capacity, seats_available) VALUES (?, ?, ?, ?, ?)`
    res, err := r.db.ExecContext(ctx, q, ev.Name, ev.Venue, ev.StartAt, ev.Capacity, ev.SeatsAvailable)
    if err != nil {
        return TranslateDBError(err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    ev.ID = uint64(id)
    // Query back the full row to populate defaults and timestamps
    const sel = `SELECT id, name, venue, start_at, capacity, seats_available, version, created_at, updated_at
                 FROM events WHERE id = ?`
    var venue sql.NullString
    err = r.db.QueryRowContext(ctx, sel, ev.ID).Scan(
        &ev.ID, &ev.Name, &venue, &ev.StartAt, &ev.Capacity, &ev.SeatsAvailable,
        &ev.Version, &ev.CreatedAt, &ev.UpdatedAt,
    )
    if err != nil {
        return err
    }
    ev.Venue = nil
    if venue.Valid {
        v := venue.String
        ev.Venue = &v
    }
    return nil
}

// GetByID retrieves an event by its ID.  It returns ErrEventNotFound
// if there is no matching row.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
    const q = `SELECT id, name, venue, start_at, capacity, seats_available, version, created_at, updated_at
               FROM events WHERE id = ?`
    return r.scanOne(r.db.QueryRowContext(ctx, q, id))
}

// FindByName returns the first event carrying the given name.  Demo
// seeding uses it to keep inserts idempotent; names are not unique in
// general, so the lowest ID wins.
func (r *EventRepo) FindByName(ctx context.Context, name string) (*model.Event, error) {
    const q = `SELECT id, name, venue, start_at, capacity, seats_available, version, created_at, updated_at
               FROM events WHERE name = ? ORDER BY id LIMIT 1`
    return r.scanOne(r.db.QueryRowContext(ctx, q, name))
}

// GetForUpdateTx loads an event inside the given transaction with an
// exclusive row lock (SELECT ... FOR UPDATE).  All seat mutations must
// go through this method first so that concurrent bookings for the
// same event serialize on the row.  It returns ErrEventNotFound when
// no row matches and ErrLockWaitTimeout when the lock could not be
// acquired before the InnoDB wait deadline.
func (r *EventRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Event, error) {
    const q = `SELECT id, name, venue, start_at, capacity, seats_available, version, created_at, updated_at
               FROM events WHERE id = ? FOR UPDATE`
    return r.scanOne(tx.QueryRowContext(ctx, q, id))
}

// UpdateSeatsTx writes a new seats_available value and bumps the
// version counter in one statement.  The caller must hold the row
// lock via GetForUpdateTx and must have validated the new value
// against the capacity before calling.
func (r *EventRepo) UpdateSeatsTx(ctx context.Context, tx *sql.Tx, id uint64, seatsAvailable uint32) error {
    const q = `UPDATE events SET seats_available = ?, version = version + 1 WHERE id = ?`
    _, err := tx.ExecContext(ctx, q, seatsAvailable, id)
    return TranslateDBError(err)
}

// UpdateCapacityTx rewrites both capacity and seats_available under
// the caller's row lock and bumps the version counter.  It is used
// when an administrator resizes an event; the new seats_available is
// computed by the caller so that already confirmed seats stay
// accounted for.
func (r *EventRepo) UpdateCapacityTx(ctx context.Context, tx *sql.Tx, id uint64, capacity, seatsAvailable uint32) error {
    const q = `UPDATE events SET capacity = ?, seats_available = ?, version = version + 1 WHERE id = ?`
    _, err := tx.ExecContext(ctx, q, capacity, seatsAvailable, id)
    return TranslateDBError(err)
}

// UpdateInfo changes the descriptive columns of an event (name, venue
// and start time).  Only non-nil fields are written; seat counts are
// never touched here.  It returns ErrEventNotFound when the event
// does not exist.
func (r *EventRepo) UpdateInfo(ctx context.Context, id uint64, name, venue *string, startAt *time.Time) error {
    sets := make([]string, 0, 3)
    args := make([]interface{}, 0, 4)
    if name != nil {
        sets = append(sets, "name = ?")
        args = append(args, *name)
    }
    if venue != nil {
        sets = append(sets, "venue = ?")
        args = append(args, *venue)
    }
    if startAt != nil {
        sets = append(sets, "start_at = ?")
        args = append(args, *startAt)
    }
    if len(sets) == 0 {
        return nil
    }
    q := `UPDATE events SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
    args = append(args, id)
    res, err := r.db.ExecContext(ctx, q, args...)
    if err != nil {
        return TranslateDBError(err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        // Distinguish a missing row from an update that changed nothing.
        if _, err := r.GetByID(ctx, id); err != nil {
            return err
        }
    }
    return nil
}

// Delete removes an event.  Bookings referencing it are removed by
// the ON DELETE CASCADE constraint.  It returns ErrEventNotFound when
// no row was deleted.
func (r *EventRepo) Delete(ctx context.Context, id uint64) error {
    const q = `DELETE FROM events WHERE id = ?`
    res, err := r.db.ExecContext(ctx, q, id)
    if err != nil {
        return TranslateDBError(err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrEventNotFound
    }
    return nil
}

// List returns events ordered by start time ascending.  When
// upcomingOnly is true, events that already started are filtered out.
// The limit caps the number of rows returned; callers validate the
// range before passing it in.
func (r *EventRepo) List(ctx context.Context, limit int, upcomingOnly bool) ([]model.Event, error) {
    q := `SELECT id, name, venue, start_at, capacity, seats_available, version, created_at, updated_at FROM events`
    if upcomingOnly {
        q += ` WHERE start_at >= UTC_TIMESTAMP()`
    }
    q += ` ORDER BY start_at ASC LIMIT ?`
    rows, err := r.db.QueryContext(ctx, q, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    events := make([]model.Event, 0)
    for rows.Next() {
        var ev model.Event
        var venue sql.NullString
        if err := rows.Scan(
            &ev.ID, &ev.Name, &venue, &ev.StartAt, &ev.Capacity, &ev.SeatsAvailable,
            &ev.Version, &ev.CreatedAt, &ev.UpdatedAt,
        ); err != nil {
            return nil, err
        }
        if venue.Valid {
            v := venue.String
            ev.Venue = &v
        }
        events = append(events, ev)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return events, nil
}

// EventUtilization summarizes how full an event is.  ConfirmedSeats
// is aggregated from the bookings table, so Consistent reports
// whether seats_available + confirmed seats still equals capacity;
// a false value means the tables have drifted apart and the event
// needs operator attention.
type EventUtilization struct {
    EventID        uint64  `json:"event_id"`
    Name           string  `json:"name"`
    Capacity       uint32  `json:"capacity"`
    SeatsAvailable uint32  `json:"seats_available"`
    ConfirmedSeats uint64  `json:"confirmed_seats"`
    Utilization    float64 `json:"utilization"`
    Consistent     bool    `json:"consistent"`
}

// Utilization aggregates confirmed seat counts per event for the
// admin analytics endpoint.  Events without bookings are included
// with zero confirmed seats.
func (r *EventRepo) Utilization(ctx context.Context) ([]EventUtilization, error) {
    const q = `SELECT e.id, e.name, e.capacity, e.seats_available,
                      COALESCE(SUM(CASE WHEN b.status = 'CONFIRMED' THEN b.seats ELSE 0 END), 0)
               FROM events e
               LEFT JOIN bookings b ON b.event_id = e.id
               GROUP BY e.id, e.name, e.capacity, e.seats_available
               ORDER BY e.id`
    rows, err := r.db.QueryContext(ctx, q)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]EventUtilization, 0)
    for rows.Next() {
        var u EventUtilization
        if err := rows.Scan(&u.EventID, &u.Name, &u.Capacity, &u.SeatsAvailable, &u.ConfirmedSeats); err != nil {
            return nil, err
        }
        if u.Capacity > 0 {
            u.Utilization = float64(u.Capacity-u.SeatsAvailable) / float64(u.Capacity)
        }
        u.Consistent = uint64(u.SeatsAvailable)+u.ConfirmedSeats == uint64(u.Capacity)
        out = append(out, u)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// scanOne reads a single event row, mapping sql.ErrNoRows to
// ErrEventNotFound and lock errors to their sentinels.
func (r *EventRepo) scanOne(row *sql.Row) (*model.Event, error) {
    var ev model.Event
    var venue sql.NullString
    err := row.Scan(
        &ev.ID, &ev.Name, &venue, &ev.StartAt, &ev.Capacity, &ev.SeatsAvailable,
        &ev.Version, &ev.CreatedAt, &ev.UpdatedAt,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrEventNotFound
        }
        return nil, TranslateDBError(err)
    }
    if venue.Valid {
        v := venue.String
        ev.Venue = &v
    }
    return &ev, nil
}
