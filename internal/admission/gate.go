// Package admission implements the optional Redis fast path in front
// of the seat ledger.  It keeps one integer counter per event that
// mirrors seats_available and supports an atomic check-and-decrement,
// so obviously doomed booking requests can be rejected without ever
// opening a database transaction.  The counter is advisory only: it
// may drift, it may disappear, and every admitted request is still
// re-checked against the ledger row lock.  When Redis is down or the
// counter is missing the gate answers Unknown and the caller falls
// through to the database.
package admission

import (
    "context"
    "fmt"
    "log"
    "time"

    "github.com/redis/go-redis/v9"
)

// Verdict is the gate's answer for one booking attempt.
type Verdict int

const (
    // Unknown means the gate could not decide (no Redis, missing
    // counter, script failure).  Callers must treat it as "proceed".
    Unknown Verdict = iota
    // Admitted means the counter held enough seats and was
    // decremented.  The caller owes a Refund if the ledger later
    // rejects the booking.
    Admitted
    // Rejected means the counter shows fewer seats than requested.
    Rejected
)

// String returns a short lower-case label, used in logs.
func (v Verdict) String() string {
    switch v {
    case Admitted:
        return "admitted"
    case Rejected:
        return "rejected"
    default:
        return "unknown"
    }
}

// admitScript atomically checks the counter and decrements it when
// enough seats remain.  Returns 1 when the decrement happened, 0 when
// the counter is too low and -1 when the counter does not exist.
var admitScript = redis.NewScript(`
    local current = redis.call('GET', KEYS[1])
    if current == false then
        return -1
    end
    current = tonumber(current)
    local want = tonumber(ARGV[1])
    if current >= want then
        redis.call('DECRBY', KEYS[1], want)
        return 1
    end
    return 0
`)

// Gate wraps the Redis client used for admission counters.  A Gate
// built over a nil client is valid and answers Unknown everywhere,
// which is how the service runs when Redis is not configured.
type Gate struct {
    rdb *redis.Client
}

// NewGate returns a Gate over the given client.  rdb may be nil.
func NewGate(rdb *redis.Client) *Gate { return &Gate{rdb: rdb} }

// seatKey builds the per-event counter key.
func seatKey(eventID uint64) string {
    return fmt.Sprintf("event:%d:seats", eventID)
}

// TryAdmit runs the check-and-decrement for a booking of the given
// size.  Any Redis failure is logged and degraded to Unknown; the
// gate never blocks a booking on infrastructure problems.
func (g *Gate) TryAdmit(ctx context.Context, eventID uint64, seats uint32) Verdict {
    if g == nil || g.rdb == nil {
        return Unknown
    }
    res, err := admitScript.Run(ctx, g.rdb, []string{seatKey(eventID)}, int64(seats)).Result()
    if err != nil {
        log.Printf("[admission] admit script failed for event %d: %v", eventID, err)
        return Unknown
    }
    n, ok := res.(int64)
    if !ok {
        log.Printf("[admission] unexpected script result for event %d: %#v", eventID, res)
        return Unknown
    }
    switch n {
    case 1:
        return Admitted
    case 0:
        return Rejected
    default:
        return Unknown
    }
}

// Refund adds seats back to the counter after the ledger refused a
// booking that the gate had admitted.  Best effort: on failure the
// counter stays low until the next Resync, which only costs spurious
// rejections, never oversell.
func (g *Gate) Refund(ctx context.Context, eventID uint64, seats uint32) error {
    if g == nil || g.rdb == nil {
        return nil
    }
    if err := g.rdb.IncrBy(ctx, seatKey(eventID), int64(seats)).Err(); err != nil {
        log.Printf("[admission] refund of %d seats failed for event %d: %v", seats, eventID, err)
        return err
    }
    return nil
}

// Resync overwrites the counter with the authoritative value read
// from the ledger.  Last write wins; there is no merging.
func (g *Gate) Resync(ctx context.Context, eventID uint64, seats uint32) error {
    if g == nil || g.rdb == nil {
        return nil
    }
    return g.rdb.Set(ctx, seatKey(eventID), int64(seats), 0).Err()
}

// Drop removes the counter entirely, typically when the event itself
// is deleted.  A missing counter is not an error.
func (g *Gate) Drop(ctx context.Context, eventID uint64) error {
    if g == nil || g.rdb == nil {
        return nil
    }
    return g.rdb.Del(ctx, seatKey(eventID)).Err()
}

// Peek reads the counter without touching it.  ok is false when the
// counter does not exist or Redis is unavailable.  Used by the admin
// reconcile endpoint to report the value it is about to overwrite.
func (g *Gate) Peek(ctx context.Context, eventID uint64) (int64, bool) {
    if g == nil || g.rdb == nil {
        return 0, false
    }
    n, err := g.rdb.Get(ctx, seatKey(eventID)).Int64()
    if err != nil {
        return 0, false
    }
    return n, true
}

// Ping reports whether Redis currently answers, with a short timeout
// so health checks stay fast.
func (g *Gate) Ping(ctx context.Context) bool {
    if g == nil || g.rdb == nil {
        return false
    }
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    return g.rdb.Ping(ctx).Err() == nil
}
