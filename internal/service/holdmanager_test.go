package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/orro/bus-booking/internal/model"
)

func newTestHoldManager(seatCount int) (*HoldManager, *memLedger, *memHolds, *fakeClock) {
	clock := newFakeClock()
	ledger := newMemLedger(1, seatCount)
	holds := newMemHolds()
	m := NewHoldManager(ledger, holds, WithClock(clock.Now), WithHoldTTL(5*time.Minute))
	return m, ledger, holds, clock
}

func TestAcquire_HoldsAllRequestedSeats(t *testing.T) {
	t.Parallel()
	m, ledger, _, _ := newTestHoldManager(5)

	h, err := m.Acquire(context.Background(), 1, []uint32{1, 3, 5}, "sess-a", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.SeatIDs) != 3 {
		t.Fatalf("expected 3 seats in hold, got %d", len(h.SeatIDs))
	}
	for _, id := range h.SeatIDs {
		if got := ledger.stateOf(id); got != model.SeatHeld {
			t.Errorf("seat %d: expected HELD, got %s", id, got)
		}
	}
	if ledger.stateOf(1002) != model.SeatFree {
		t.Errorf("unrequested seat should stay FREE")
	}
}

func TestAcquire_ConflictMovesNothing(t *testing.T) {
	t.Parallel()
	m, ledger, _, _ := newTestHoldManager(5)

	if _, err := m.Acquire(context.Background(), 1, []uint32{2}, "sess-a", 0); err != nil {
		t.Fatalf("setup hold failed: %v", err)
	}

	// Overlapping request: seat 2 is held, seats 1 and 3 are free.
	_, err := m.Acquire(context.Background(), 1, []uint32{1, 2, 3}, "sess-b", 0)
	conflict, ok := model.AsConflict(err)
	if !ok {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if len(conflict.Seats) != 1 || conflict.Seats[0] != 1002 {
		t.Errorf("conflict should name seat 1002, got %v", conflict.Seats)
	}
	// All-or-nothing: the free seats must not have moved.
	if ledger.stateOf(1001) != model.SeatFree || ledger.stateOf(1003) != model.SeatFree {
		t.Error("free seats moved despite conflict")
	}
}

func TestAcquire_UnknownPositionRejected(t *testing.T) {
	t.Parallel()
	m, _, _, _ := newTestHoldManager(3)
	if _, err := m.Acquire(context.Background(), 1, []uint32{7}, "sess-a", 0); err != model.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAcquire_ConcurrentOverlapOneWinner(t *testing.T) {
	t.Parallel()
	m, ledger, _, _ := newTestHoldManager(4)

	const attempts = 16
	var wg sync.WaitGroup
	wins := make(chan string, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sess := "sess-" + string(rune('a'+n))
			if _, err := m.Acquire(context.Background(), 1, []uint32{2, 3}, sess, 0); err == nil {
				wins <- sess
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %d", len(winners))
	}
	if ledger.stateOf(1002) != model.SeatHeld || ledger.stateOf(1003) != model.SeatHeld {
		t.Error("winning hold's seats should be HELD")
	}
}

func TestAcquireAll_ClaimsOnlyFreeSeats(t *testing.T) {
	t.Parallel()
	m, _, _, _ := newTestHoldManager(5)

	if _, err := m.Acquire(context.Background(), 1, []uint32{2}, "sess-a", 0); err != nil {
		t.Fatalf("setup hold failed: %v", err)
	}
	h, err := m.AcquireAll(context.Background(), 1, "sess-hire", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.SeatIDs) != 4 {
		t.Fatalf("expected the 4 free seats, got %d", len(h.SeatIDs))
	}
	for _, id := range h.SeatIDs {
		if id == 1002 {
			t.Error("hire hold must not include the already-held seat")
		}
	}
}

func TestAcquireAll_EmptyBusConflicts(t *testing.T) {
	t.Parallel()
	m, _, _, _ := newTestHoldManager(2)
	if _, err := m.AcquireAll(context.Background(), 1, "sess-a", 0); err != nil {
		t.Fatalf("first hire should succeed: %v", err)
	}
	_, err := m.AcquireAll(context.Background(), 1, "sess-b", 0)
	if _, ok := model.AsConflict(err); !ok {
		t.Fatalf("expected conflict when no seats are free, got %v", err)
	}
}

func TestRelease_ReturnsSeatsAndIsIdempotent(t *testing.T) {
	t.Parallel()
	m, ledger, _, _ := newTestHoldManager(3)

	h, err := m.Acquire(context.Background(), 1, []uint32{1, 2}, "sess-a", 0)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := m.Release(context.Background(), h.ID); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if ledger.stateOf(1001) != model.SeatFree || ledger.stateOf(1002) != model.SeatFree {
		t.Error("released seats should be FREE")
	}
	// Releasing again is a no-op.
	if err := m.Release(context.Background(), h.ID); err != nil {
		t.Errorf("second release should be a no-op, got %v", err)
	}
	if err := m.Release(context.Background(), "no-such-hold"); err != nil {
		t.Errorf("releasing unknown hold should be a no-op, got %v", err)
	}
}

func TestRelease_StaleHoldCannotFreeReacquiredSeats(t *testing.T) {
	t.Parallel()
	m, ledger, holds, _ := newTestHoldManager(3)

	h1, err := m.Acquire(context.Background(), 1, []uint32{1}, "sess-a", 0)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := m.Release(context.Background(), h1.ID); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := m.Acquire(context.Background(), 1, []uint32{1}, "sess-b", 0); err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}

	// Replay the old hold record as if a stale worker still had it.
	if err := holds.Create(context.Background(), h1); err != nil {
		t.Fatalf("recreate hold record: %v", err)
	}
	if err := m.Release(context.Background(), h1.ID); err != nil {
		t.Fatalf("stale release should swallow the conflict, got %v", err)
	}
	if ledger.stateOf(1001) != model.SeatHeld {
		t.Error("seat held by sess-b must survive a stale release")
	}
}

func TestExtend_RefreshesActiveHoldOnly(t *testing.T) {
	t.Parallel()
	m, _, holds, clock := newTestHoldManager(3)

	h, err := m.Acquire(context.Background(), 1, []uint32{1}, "sess-a", 0)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	clock.Advance(4 * time.Minute)
	if err := m.Extend(context.Background(), h.ID, 0); err != nil {
		t.Fatalf("extend of active hold failed: %v", err)
	}
	got, _ := holds.Get(context.Background(), h.ID)
	want := clock.Now().Add(5 * time.Minute)
	if !got.ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, got.ExpiresAt)
	}

	clock.Advance(10 * time.Minute)
	if err := m.Extend(context.Background(), h.ID, 0); err != model.ErrExpired {
		t.Fatalf("extend of expired hold: expected ErrExpired, got %v", err)
	}
}

func TestSweep_ReleasesExpiredAndFiresHook(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	ledger := newMemLedger(1, 4)
	holds := newMemHolds()

	var hooked []string
	var mu sync.Mutex
	m := NewHoldManager(ledger, holds,
		WithClock(clock.Now),
		WithHoldTTL(5*time.Minute),
		WithExpiryHook(func(_ context.Context, h *model.Hold) {
			mu.Lock()
			hooked = append(hooked, h.SessionID)
			mu.Unlock()
		}))

	hOld, err := m.Acquire(context.Background(), 1, []uint32{1, 2}, "sess-old", 0)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	clock.Advance(3 * time.Minute)
	if _, err := m.Acquire(context.Background(), 1, []uint32{3}, "sess-new", 0); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	clock.Advance(3 * time.Minute) // sess-old at 6m (expired), sess-new at 3m

	n, err := m.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 released hold, got %d", n)
	}
	if ledger.stateOf(1001) != model.SeatFree || ledger.stateOf(1002) != model.SeatFree {
		t.Error("expired hold's seats should be FREE")
	}
	if ledger.stateOf(1003) != model.SeatHeld {
		t.Error("live hold's seat must survive the sweep")
	}
	if len(hooked) != 1 || hooked[0] != "sess-old" {
		t.Errorf("expected expiry hook for sess-old, got %v", hooked)
	}
	if _, err := holds.Get(context.Background(), hOld.ID); err != model.ErrNotFound {
		t.Error("expired hold record should be gone")
	}
}
