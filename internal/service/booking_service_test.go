package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utsavam/event-booking/internal/admission"
	"github.com/utsavam/event-booking/internal/ledger"
	"github.com/utsavam/event-booking/internal/model"
	"github.com/utsavam/event-booking/internal/queue"
	"github.com/utsavam/event-booking/internal/repository"
)

// fakeLedger is a single-event in-memory ledger with the same locking
// discipline as the real one: every mutation happens under one mutex,
// so concurrent bookings serialize exactly like they would on the
// MySQL row lock.
type fakeLedger struct {
	mu        sync.Mutex
	capacity  uint32
	available uint32
	bookings  map[uint64]*model.Booking
	byKey     map[string]uint64
	nextID    uint64
	missing   bool // pretend the event does not exist
	failures  int  // leading ReserveSeats calls that fail with failWith
	failWith  error
	calls     int
}

func newFakeLedger(capacity uint32) *fakeLedger {
	return &fakeLedger{
		capacity:  capacity,
		available: capacity,
		bookings:  make(map[uint64]*model.Booking),
		byKey:     make(map[string]uint64),
	}
}

func keyFor(eventID uint64, key string) string {
	return fmt.Sprintf("%d:%s", eventID, key)
}

func clone(b *model.Booking) *model.Booking {
	cp := *b
	if b.IdempotencyKey != nil {
		k := *b.IdempotencyKey
		cp.IdempotencyKey = &k
	}
	return &cp
}

func (f *fakeLedger) ReserveSeats(ctx context.Context, userID, eventID uint64, seats uint32, idempotencyKey string) (*model.Booking, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, false, f.failWith
	}
	if f.missing {
		return nil, false, repository.ErrEventNotFound
	}
	if idempotencyKey != "" {
		if id, ok := f.byKey[keyFor(eventID, idempotencyKey)]; ok {
			return clone(f.bookings[id]), true, nil
		}
	}
	if f.available < seats {
		return nil, false, ledger.ErrInsufficientCapacity
	}
	f.available -= seats
	f.nextID++
	b := &model.Booking{
		ID:      f.nextID,
		UserID:  userID,
		EventID: eventID,
		Seats:   seats,
		Status:  "CONFIRMED",
	}
	if idempotencyKey != "" {
		k := idempotencyKey
		b.IdempotencyKey = &k
		f.byKey[keyFor(eventID, idempotencyKey)] = b.ID
	}
	f.bookings[b.ID] = b
	return clone(b), false, nil
}

func (f *fakeLedger) ReleaseSeats(ctx context.Context, bookingID uint64) (*model.Booking, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[bookingID]
	if !ok {
		return nil, false, repository.ErrBookingNotFound
	}
	if b.Status == "CANCELLED" {
		return clone(b), false, ledger.ErrAlreadyCancelled
	}
	b.Status = "CANCELLED"
	f.available += b.Seats
	return clone(b), true, nil
}

func (f *fakeLedger) FindBookingByKey(ctx context.Context, eventID uint64, key string) (*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byKey[keyFor(eventID, key)]; ok {
		return clone(f.bookings[id]), nil
	}
	return nil, repository.ErrBookingNotFound
}

func (f *fakeLedger) SeatsAvailable(ctx context.Context, eventID uint64) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing {
		return 0, repository.ErrEventNotFound
	}
	return f.available, nil
}

func (f *fakeLedger) seatsLeft() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeLedger) confirmedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.bookings {
		if b.Status == "CONFIRMED" {
			n++
		}
	}
	return n
}

// fakeGate mirrors the Redis counter semantics: a missing counter or a
// downed backend answers Unknown, otherwise check-and-decrement.
type fakeGate struct {
	mu        sync.Mutex
	counter   int64
	has       bool
	down      bool
	resyncErr error
	refunds   int
}

func (g *fakeGate) TryAdmit(ctx context.Context, eventID uint64, seats uint32) admission.Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down || !g.has {
		return admission.Unknown
	}
	if g.counter >= int64(seats) {
		g.counter -= int64(seats)
		return admission.Admitted
	}
	return admission.Rejected
}

func (g *fakeGate) Refund(ctx context.Context, eventID uint64, seats uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds++
	if g.down {
		return errors.New("gate down")
	}
	if g.has {
		g.counter += int64(seats)
	}
	return nil
}

func (g *fakeGate) Resync(ctx context.Context, eventID uint64, seats uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resyncErr != nil {
		return g.resyncErr
	}
	g.counter = int64(seats)
	g.has = true
	return nil
}

func (g *fakeGate) Peek(ctx context.Context, eventID uint64) (int64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down || !g.has {
		return 0, false
	}
	return g.counter, true
}

func (g *fakeGate) value() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counter
}

func newTestService(led *fakeLedger, gate *fakeGate, publish PublishFunc) *BookingService {
	s := NewBookingService(led, gate, publish)
	s.backoff = time.Millisecond
	return s
}

func TestBookConfirmsAndDrainsBothCounters(t *testing.T) {
	led := newFakeLedger(10)
	gate := &fakeGate{counter: 10, has: true}
	events := make(chan queue.BookingEvent, 4)
	svc := newTestService(led, gate, func(ctx context.Context, ev queue.BookingEvent) error {
		events <- ev
		return nil
	})

	res, err := svc.Book(context.Background(), 12, 7, 3, "order-1")
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, "CONFIRMED", res.Booking.Status)
	assert.Equal(t, uint32(3), res.Booking.Seats)
	assert.Equal(t, uint32(7), led.seatsLeft())
	assert.Equal(t, int64(7), gate.value())

	select {
	case ev := <-events:
		assert.Equal(t, queue.TypeBookingConfirmed, ev.Type)
		assert.Equal(t, res.Booking.ID, ev.BookingID)
		assert.Equal(t, uint32(3), ev.Seats)
	case <-time.After(time.Second):
		t.Fatal("no booking event published")
	}
}

func TestFiftyBookersFiveSeats(t *testing.T) {
	run := func(t *testing.T, gate *fakeGate) {
		led := newFakeLedger(5)
		svc := newTestService(led, gate, nil)

		var wg sync.WaitGroup
		results := make(chan error, 50)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(user uint64) {
				defer wg.Done()
				key := fmt.Sprintf("order-%d", user)
				_, err := svc.Book(context.Background(), user, 7, 1, key)
				results <- err
			}(uint64(i + 1))
		}
		wg.Wait()
		close(results)

		booked, refused := 0, 0
		for err := range results {
			switch {
			case err == nil:
				booked++
			case errors.Is(err, ledger.ErrInsufficientCapacity):
				refused++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 5, booked)
		assert.Equal(t, 45, refused)
		assert.Equal(t, uint32(0), led.seatsLeft())
		assert.Equal(t, 5, led.confirmedCount())
	}

	t.Run("with counter", func(t *testing.T) {
		run(t, &fakeGate{counter: 5, has: true})
	})
	t.Run("counter dark", func(t *testing.T) {
		run(t, &fakeGate{})
	})
}

func TestBookSucceedsWhenGateIsDown(t *testing.T) {
	led := newFakeLedger(2)
	gate := &fakeGate{down: true}
	svc := newTestService(led, gate, nil)

	res, err := svc.Book(context.Background(), 1, 7, 2, "")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), res.Booking.Seats)
	assert.Equal(t, uint32(0), led.seatsLeft())

	_, err = svc.Book(context.Background(), 2, 7, 1, "")
	assert.ErrorIs(t, err, ledger.ErrInsufficientCapacity)
}

func TestBookReplayReturnsStoredBookingAndRefundsGate(t *testing.T) {
	led := newFakeLedger(10)
	gate := &fakeGate{counter: 10, has: true}
	svc := newTestService(led, gate, nil)

	first, err := svc.Book(context.Background(), 12, 7, 3, "order-1")
	require.NoError(t, err)
	require.Equal(t, int64(7), gate.value())

	second, err := svc.Book(context.Background(), 12, 7, 3, "order-1")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Booking.ID, second.Booking.ID)
	// Seats were consumed exactly once, and the replay's gate
	// decrement was handed back.
	assert.Equal(t, uint32(7), led.seatsLeft())
	assert.Equal(t, int64(7), gate.value())
}

func TestBookReplayWinsOverDrainedCounter(t *testing.T) {
	led := newFakeLedger(1)
	gate := &fakeGate{counter: 1, has: true}
	svc := newTestService(led, gate, nil)

	first, err := svc.Book(context.Background(), 12, 7, 1, "order-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), gate.value())

	// The counter is empty, so the gate rejects outright; the stored
	// booking must still be found and returned.
	second, err := svc.Book(context.Background(), 12, 7, 1, "order-1")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Booking.ID, second.Booking.ID)

	// A fresh request without a key gets the real refusal.
	_, err = svc.Book(context.Background(), 13, 7, 1, "")
	assert.ErrorIs(t, err, ledger.ErrInsufficientCapacity)
}

func TestBookRefundsGateOnStaleAdmit(t *testing.T) {
	led := newFakeLedger(5)
	led.available = 0 // ledger already sold out, counter is stale
	gate := &fakeGate{counter: 5, has: true}
	svc := newTestService(led, gate, nil)

	_, err := svc.Book(context.Background(), 12, 7, 2, "")
	assert.ErrorIs(t, err, ledger.ErrInsufficientCapacity)
	assert.Equal(t, int64(5), gate.value())
	assert.Equal(t, 1, gate.refunds)
}

func TestBookRetriesLockTimeouts(t *testing.T) {
	led := newFakeLedger(5)
	led.failures = 2
	led.failWith = repository.ErrLockWaitTimeout
	svc := newTestService(led, &fakeGate{}, nil)

	res, err := svc.Book(context.Background(), 12, 7, 1, "")
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", res.Booking.Status)
	assert.Equal(t, 3, led.calls)
}

func TestBookReportsBusyAfterRetryExhaustion(t *testing.T) {
	led := newFakeLedger(5)
	led.failures = 100
	led.failWith = repository.ErrLockWaitTimeout
	gate := &fakeGate{counter: 5, has: true}
	svc := newTestService(led, gate, nil)

	_, err := svc.Book(context.Background(), 12, 7, 1, "")
	assert.ErrorIs(t, err, ErrBookingBusy)
	assert.Equal(t, reserveAttempts, led.calls)
	// The admitted decrement was refunded before giving up.
	assert.Equal(t, int64(5), gate.value())
}

func TestBookStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	led := newFakeLedger(5)
	led.failures = 100
	led.failWith = repository.ErrLockWaitTimeout
	svc := newTestService(led, &fakeGate{}, nil)
	svc.backoff = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := svc.Book(ctx, 12, 7, 1, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, led.calls, reserveAttempts)
}

func TestCancelReleasesSeatsOnce(t *testing.T) {
	led := newFakeLedger(5)
	gate := &fakeGate{counter: 5, has: true}
	events := make(chan queue.BookingEvent, 4)
	svc := newTestService(led, gate, func(ctx context.Context, ev queue.BookingEvent) error {
		events <- ev
		return nil
	})

	res, err := svc.Book(context.Background(), 12, 7, 2, "")
	require.NoError(t, err)
	require.Equal(t, uint32(3), led.seatsLeft())

	// Drain the confirmation event so the next receive is the cancel.
	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("no confirmation event")
	}

	first, err := svc.Cancel(context.Background(), res.Booking.ID)
	require.NoError(t, err)
	assert.True(t, first.Released)
	assert.Equal(t, "CANCELLED", first.Booking.Status)
	assert.Equal(t, uint32(5), led.seatsLeft())
	assert.Equal(t, int64(5), gate.value())

	select {
	case ev := <-events:
		assert.Equal(t, queue.TypeBookingCancelled, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no cancellation event")
	}

	// Second cancel is a terminal no-op: same answer, no seat drift.
	second, err := svc.Cancel(context.Background(), res.Booking.ID)
	require.NoError(t, err)
	assert.False(t, second.Released)
	assert.Equal(t, "CANCELLED", second.Booking.Status)
	assert.Equal(t, uint32(5), led.seatsLeft())
	assert.Equal(t, int64(5), gate.value())
}

func TestCancelThenRebookFreesTheSeat(t *testing.T) {
	led := newFakeLedger(1)
	svc := newTestService(led, &fakeGate{}, nil)

	first, err := svc.Book(context.Background(), 12, 7, 1, "")
	require.NoError(t, err)
	_, err = svc.Book(context.Background(), 13, 7, 1, "")
	require.ErrorIs(t, err, ledger.ErrInsufficientCapacity)

	_, err = svc.Cancel(context.Background(), first.Booking.ID)
	require.NoError(t, err)

	res, err := svc.Book(context.Background(), 13, 7, 1, "")
	require.NoError(t, err)
	assert.NotEqual(t, first.Booking.ID, res.Booking.ID)
	assert.Equal(t, uint32(0), led.seatsLeft())
}

func TestCancelUnknownBooking(t *testing.T) {
	svc := newTestService(newFakeLedger(5), &fakeGate{}, nil)

	_, err := svc.Cancel(context.Background(), 404)
	assert.ErrorIs(t, err, repository.ErrBookingNotFound)
}

func TestReconcileOverwritesCorruptCounter(t *testing.T) {
	led := newFakeLedger(10)
	led.available = 7
	gate := &fakeGate{counter: 99, has: true}
	svc := newTestService(led, gate, nil)

	res, err := svc.Reconcile(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), res.SeatsAvailable)
	require.NotNil(t, res.Previous)
	assert.Equal(t, int64(99), *res.Previous)
	assert.Equal(t, int64(7), gate.value())

	// With the counter repaired, bookings are decided by the ledger again.
	booked, err := svc.Book(context.Background(), 12, 7, 1, "")
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", booked.Booking.Status)
	assert.Equal(t, uint32(6), led.seatsLeft())
	assert.Equal(t, int64(6), gate.value())
}

func TestReconcileSurfacesResyncFailure(t *testing.T) {
	led := newFakeLedger(10)
	gate := &fakeGate{resyncErr: errors.New("connection refused")}
	svc := newTestService(led, gate, nil)

	_, err := svc.Reconcile(context.Background(), 7)
	assert.EqualError(t, err, "connection refused")
}

func TestReconcileUnknownEvent(t *testing.T) {
	led := newFakeLedger(10)
	led.missing = true
	svc := newTestService(led, &fakeGate{}, nil)

	_, err := svc.Reconcile(context.Background(), 7)
	assert.ErrorIs(t, err, repository.ErrEventNotFound)
}
