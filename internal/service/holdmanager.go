// Package service implements the booking core: the hold lifecycle over
// the seat ledger, the checkout session state machine, identity
// verification and payment reconciliation.  Services depend on narrow
// interfaces so the MySQL repositories and the in-memory test doubles
// are interchangeable.
package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/orro/bus-booking/internal/model"
)

// SeatLedger is the authoritative seat-state record for the trips a
// service instance operates on.  Transition is the only mutator and must
// be atomic across the full seat set (all-or-nothing); on mismatch it
// returns a *model.ConflictError naming the seats that were not in the
// expected state.
type SeatLedger interface {
	ListSeats(ctx context.Context, tripID uint64) ([]model.Seat, error)
	Transition(ctx context.Context, tripID uint64, seatIDs []uint64, from, to model.SeatState, actor string) error
	AttachBooking(ctx context.Context, tripID uint64, seatIDs []uint64, bookingID uint64) error
}

// HoldStore persists holds.  Get returns model.ErrNotFound for unknown
// IDs; Delete on a missing hold is a no-op.
type HoldStore interface {
	Create(ctx context.Context, h *model.Hold) error
	Get(ctx context.Context, id string) (*model.Hold, error)
	Delete(ctx context.Context, id string) error
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error
	ListExpired(ctx context.Context, now time.Time) ([]model.Hold, error)
}

// ExpiryHook is invoked after the sweep releases an expired hold, with
// the released hold, so the owning checkout session can be abandoned.
type ExpiryHook func(ctx context.Context, h *model.Hold)

// HoldManager creates, extends and expires temporary holds against the
// seat ledger.  It enforces at-most-one-owner-per-seat purely through
// the ledger's atomic transition: two concurrent acquires over
// overlapping seats race on Free->Held and exactly one wins.  The
// manager never retries a conflicted acquire; seat choice is a user
// decision.
type HoldManager struct {
	ledger   SeatLedger
	holds    HoldStore
	now      func() time.Time
	ttl      time.Duration
	onExpire ExpiryHook
}

// DefaultHoldTTL is how long a hold lives when the caller passes no TTL.
const DefaultHoldTTL = 5 * time.Minute

// HoldManagerOption customizes a HoldManager.
type HoldManagerOption func(*HoldManager)

// WithHoldTTL overrides the default hold lifetime.
func WithHoldTTL(d time.Duration) HoldManagerOption {
	return func(m *HoldManager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithClock injects the time source, used by tests to drive expiry.
func WithClock(now func() time.Time) HoldManagerOption {
	return func(m *HoldManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithExpiryHook registers a callback fired for each hold the sweep
// releases.
func WithExpiryHook(hook ExpiryHook) HoldManagerOption {
	return func(m *HoldManager) { m.onExpire = hook }
}

// SetExpiryHook registers the expiry callback after construction, for
// wiring cycles where the session layer needs the manager first.  Call
// before Run.
func (m *HoldManager) SetExpiryHook(hook ExpiryHook) { m.onExpire = hook }

// NewHoldManager constructs a HoldManager over the given ledger and
// hold store.
func NewHoldManager(ledger SeatLedger, holds HoldStore, opts ...HoldManagerOption) *HoldManager {
	m := &HoldManager{
		ledger: ledger,
		holds:  holds,
		now:    func() time.Time { return time.Now().UTC() },
		ttl:    DefaultHoldTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire attempts to hold the seats at the given positions for a
// session.  The whole set is claimed in one atomic Free->Held
// transition: either every requested seat was FREE and is now HELD by
// the session, or nothing moved and the *model.ConflictError names the
// unavailable seats.  Unknown positions surface as model.ErrNotFound.
func (m *HoldManager) Acquire(ctx context.Context, tripID uint64, positions []uint32, sessionID string, ttl time.Duration) (*model.Hold, error) {
	if len(positions) == 0 {
		return nil, model.ErrNotFound
	}
	seats, err := m.ledger.ListSeats(ctx, tripID)
	if err != nil {
		return nil, err
	}
	byPosition := make(map[uint32]uint64, len(seats))
	for _, s := range seats {
		byPosition[s.Position] = s.ID
	}
	seatIDs := make([]uint64, 0, len(positions))
	seen := make(map[uint32]struct{}, len(positions))
	for _, p := range positions {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		id, ok := byPosition[p]
		if !ok {
			return nil, model.ErrNotFound
		}
		seatIDs = append(seatIDs, id)
	}
	return m.acquireSeats(ctx, tripID, seatIDs, sessionID, ttl)
}

// AcquireAll implements full-bus hire.  It claims every seat that is
// FREE at invocation time in one atomic transition, so the session
// either holds everything available at that instant or nothing.  Seats
// already HELD or SOLD are never touched.
func (m *HoldManager) AcquireAll(ctx context.Context, tripID uint64, sessionID string, ttl time.Duration) (*model.Hold, error) {
	seats, err := m.ledger.ListSeats(ctx, tripID)
	if err != nil {
		return nil, err
	}
	var seatIDs []uint64
	for _, s := range seats {
		if s.State == model.SeatFree {
			seatIDs = append(seatIDs, s.ID)
		}
	}
	if len(seatIDs) == 0 {
		return nil, model.NewConflictError(nil)
	}
	return m.acquireSeats(ctx, tripID, seatIDs, sessionID, ttl)
}

func (m *HoldManager) acquireSeats(ctx context.Context, tripID uint64, seatIDs []uint64, sessionID string, ttl time.Duration) (*model.Hold, error) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	if err := m.ledger.Transition(ctx, tripID, seatIDs, model.SeatFree, model.SeatHeld, sessionID); err != nil {
		return nil, err
	}
	now := m.now()
	h := &model.Hold{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		TripID:    tripID,
		SeatIDs:   seatIDs,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := m.holds.Create(ctx, h); err != nil {
		// The seats are held but the record failed; undo so they are
		// not stranded until a sweep that will never find the hold.
		_ = m.ledger.Transition(ctx, tripID, seatIDs, model.SeatHeld, model.SeatFree, sessionID)
		return nil, err
	}
	return h, nil
}

// Release returns a hold's seats to FREE and discards the hold.  It is
// idempotent: releasing an unknown, already-released or already-settled
// hold is a no-op.  If settlement won the race the seats are no longer
// HELD by the session and the transition's conflict is swallowed.
func (m *HoldManager) Release(ctx context.Context, holdID string) error {
	h, err := m.holds.Get(ctx, holdID)
	if err != nil {
		if err == model.ErrNotFound {
			return nil
		}
		return err
	}
	if err := m.ledger.Transition(ctx, h.TripID, h.SeatIDs, model.SeatHeld, model.SeatFree, h.SessionID); err != nil {
		if _, conflict := model.AsConflict(err); !conflict {
			return err
		}
		// Seats already moved on (settled, or freed by a concurrent
		// release); dropping the hold record is all that is left.
	}
	return m.holds.Delete(ctx, holdID)
}

// Extend resets a hold's expiry to now+ttl, only while the hold is still
// active.  An expired or unknown hold yields model.ErrExpired; the
// caller restarts seat selection.
func (m *HoldManager) Extend(ctx context.Context, holdID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.ttl
	}
	h, err := m.holds.Get(ctx, holdID)
	if err != nil {
		if err == model.ErrNotFound {
			return model.ErrExpired
		}
		return err
	}
	if !h.Active(m.now()) {
		return model.ErrExpired
	}
	return m.holds.UpdateExpiry(ctx, holdID, m.now().Add(ttl))
}

// SweepExpired releases every hold past its expiry.  Each release uses
// the same atomic Held->Free transition as everything else, so a sweep
// racing a settlement is safe: whichever observes the seats still HELD
// wins, and the loser's mismatch is a no-op.
func (m *HoldManager) SweepExpired(ctx context.Context) (int, error) {
	expired, err := m.holds.ListExpired(ctx, m.now())
	if err != nil {
		return 0, err
	}
	released := 0
	for i := range expired {
		h := expired[i]
		if err := m.Release(ctx, h.ID); err != nil {
			log.Printf("holds: sweep release %s failed: %v", h.ID, err)
			continue
		}
		released++
		if m.onExpire != nil {
			m.onExpire(ctx, &h)
		}
	}
	return released, nil
}

// Run drives the sweep on a recurring ticker until the context is
// cancelled.  It is time-driven, independent of any user request.
func (m *HoldManager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := m.SweepExpired(ctx); err != nil {
				log.Printf("holds: sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("holds: sweep released %d expired hold(s)", n)
			}
		}
	}
}
