package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"

    "github.com/utsavam/event-booking/internal/model"
)

// ErrUserNotFound indicates that a user was not located in the DB.
var ErrUserNotFound = errors.New("user not found")

// UserRepo manages persistence for users.
type UserRepo struct {
    db *sql.DB
}

// NewUserRepo constructs a UserRepo with the given DB handle.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user and assigns the generated ID back to the
// struct.  Emails are normalized to lower case before insertion.  The
// email column carries a unique index, so inserting an address that
// already exists yields ErrDuplicateKey.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
    u.Email = strings.ToLower(strings.TrimSpace(u.Email))
    const q = `INSERT INTO users (email, name) VALUES (?, ?)`
    res, err := r.db.ExecContext(ctx, q, u.Email, u.Name)
    if err != nil {
        return TranslateDBError(err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    u.ID = uint64(id)
    // Query back the row to populate the creation timestamp
    const sel = `SELECT id, email, name, created_at FROM users WHERE id = ?`
    var name sql.NullString
    if err := r.db.QueryRowContext(ctx, sel, u.ID).Scan(&u.ID, &u.Email, &name, &u.CreatedAt); err != nil {
        return err
    }
    u.Name = nil
    if name.Valid {
        n := name.String
        u.Name = &n
    }
    return nil
}

// GetByID retrieves a user by ID.  It returns ErrUserNotFound if
// there is no matching row.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
    const q = `SELECT id, email, name, created_at FROM users WHERE id = ?`
    return scanUser(r.db.QueryRowContext(ctx, q, id))
}

// FindByEmail retrieves a user by normalized email address.  It
// returns ErrUserNotFound if there is no matching row.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
    email = strings.ToLower(strings.TrimSpace(email))
    const q = `SELECT id, email, name, created_at FROM users WHERE email = ?`
    return scanUser(r.db.QueryRowContext(ctx, q, email))
}

// ExistsTx reports whether a user row exists, inside the caller's
// transaction.  The booking flow uses it to reject unknown users with
// a clean error before touching the event row.
func (r *UserRepo) ExistsTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
    const q = `SELECT 1 FROM users WHERE id = ?`
    var one int
    err := tx.QueryRowContext(ctx, q, id).Scan(&one)
    if errors.Is(err, sql.ErrNoRows) {
        return false, nil
    }
    if err != nil {
        return false, TranslateDBError(err)
    }
    return true, nil
}

func scanUser(row *sql.Row) (*model.User, error) {
    var u model.User
    var name sql.NullString
    err := row.Scan(&u.ID, &u.Email, &name, &u.CreatedAt)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrUserNotFound
        }
        return nil, err
    }
    if name.Valid {
        n := name.String
        u.Name = &n
    }
    return &u, nil
}
