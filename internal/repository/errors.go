// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrLockWaitTimeout indicates that a row lock on the events
// table could not be acquired in time and the operation may be retried,
// while ErrDuplicateKey signals that an insert collided with a unique
// index (e.g. two requests racing on the same idempotency key).
package repository

import (
    "errors"
    "fmt"

    "github.com/go-sql-driver/mysql"
)

// ErrLockWaitTimeout is returned when MySQL gives up waiting for a row
// lock (error 1205) or aborts a transaction to break a deadlock
// (error 1213). Both conditions are transient; callers may retry the
// whole transaction after a short pause.
var ErrLockWaitTimeout = errors.New("lock wait timeout")

// ErrDuplicateKey is returned when an insert violates a unique index
// (error 1062). The booking repository relies on this to detect two
// concurrent requests racing on the same idempotency key.
var ErrDuplicateKey = errors.New("duplicate key")

// TranslateDBError converts driver specific failures into the sentinel
// errors defined above so that callers can match them with errors.Is
// without importing the MySQL driver. Errors that have no sentinel
// counterpart are returned unchanged.
func TranslateDBError(err error) error {
    if err == nil {
        return nil
    }
    var myErr *mysql.MySQLError
    if !errors.As(err, &myErr) {
        return err
    }
    switch myErr.Number {
    case 1205, 1213:
        return fmt.Errorf("%w: %s", ErrLockWaitTimeout, myErr.Message)
    case 1062:
        return fmt.Errorf("%w: %s", ErrDuplicateKey, myErr.Message)
    }
    return err
}
