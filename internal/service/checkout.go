package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/orro/bus-booking/internal/model"
)

// SessionStore persists checkout sessions.
type SessionStore interface {
	Create(ctx context.Context, s *model.CheckoutSession) error
	Update(ctx context.Context, s *model.CheckoutSession) error
	Get(ctx context.Context, id string) (*model.CheckoutSession, error)
	GetByPaymentRef(ctx context.Context, ref string) (*model.CheckoutSession, error)
}

// TripStore is the slice of the trip catalog checkout needs: pricing and
// hire-mode flags.
type TripStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Trip, error)
}

// PaymentIntent is what the payment provider hands back when an intent
// is created: the reference we will later match the callback against and
// the URL the passenger is redirected to.
type PaymentIntent struct {
	Reference        string
	AuthorizationURL string
}

// PaymentProvider creates payment intents with an external processor.
type PaymentProvider interface {
	CreateIntent(ctx context.Context, email string, amountKobo int64) (*PaymentIntent, error)
}

// IdentityGrants manages the single-use tokens minted by a successful
// code verification.  Consume atomically reads and destroys a grant, so
// a token attaches to at most one session; a missing or already-used
// token yields model.ErrExpired.
type IdentityGrants interface {
	Issue(ctx context.Context, identityID uint64, ttl time.Duration) (string, error)
	Consume(ctx context.Context, token string) (uint64, error)
}

// CheckoutService drives a session through its lifecycle:
//
//	SELECTING -> PENDING_IDENTITY -> PENDING_PAYMENT -> SETTLED
//
// with ABANDONED reachable from every non-terminal state.  Transitions
// only ever move forward except that PENDING_PAYMENT may re-request an
// intent; settlement itself belongs to the Reconciler, which observes
// payment callbacks.
type CheckoutService struct {
	sessions SessionStore
	trips    TripStore
	holds    *HoldManager
	grants   IdentityGrants
	provider PaymentProvider
	now      func() time.Time
}

// NewCheckoutService wires the checkout state machine.
func NewCheckoutService(sessions SessionStore, trips TripStore, holds *HoldManager, grants IdentityGrants, provider PaymentProvider) *CheckoutService {
	return &CheckoutService{
		sessions: sessions,
		trips:    trips,
		holds:    holds,
		grants:   grants,
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Open starts a session in SELECTING for a trip.  hireMode requests the
// full-bus flow; it is forced on for hire-only trips.
func (c *CheckoutService) Open(ctx context.Context, tripID uint64, hireMode bool) (*model.CheckoutSession, error) {
	trip, err := c.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.IsHireTrip {
		hireMode = true
	}
	now := c.now()
	s := &model.CheckoutSession{
		ID:        uuid.NewString(),
		TripID:    tripID,
		State:     model.SessionSelecting,
		HireMode:  hireMode,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.sessions.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns a session by ID.
func (c *CheckoutService) Get(ctx context.Context, id string) (*model.CheckoutSession, error) {
	return c.sessions.Get(ctx, id)
}

// RequestHold claims seats for a SELECTING session and advances it to
// PENDING_IDENTITY.  In hire mode the position list is ignored and every
// currently-free seat is claimed instead.  On a seat conflict the
// session stays in SELECTING and the error carries the contended seats
// so the passenger can pick again.
//
// A returning passenger may present a verification grant here; it is
// consumed and the session skips PENDING_IDENTITY, landing directly in
// PENDING_PAYMENT.  If the grant turns out spent or expired the hold is
// kept, the session waits in PENDING_IDENTITY, and model.ErrExpired is
// returned alongside it so the caller can run a fresh code exchange.
func (c *CheckoutService) RequestHold(ctx context.Context, sessionID string, positions []uint32, grantToken string) (*model.CheckoutSession, error) {
	s, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.State != model.SessionSelecting {
		return nil, model.ErrForbidden
	}
	var h *model.Hold
	if s.HireMode {
		h, err = c.holds.AcquireAll(ctx, s.TripID, s.ID, 0)
	} else {
		h, err = c.holds.Acquire(ctx, s.TripID, positions, s.ID, 0)
	}
	if err != nil {
		return nil, err
	}
	s.HoldID = &h.ID
	s.SeatIDs = h.SeatIDs
	s.SeatPositions, err = c.resolvePositions(ctx, s.TripID, h.SeatIDs)
	if err != nil {
		return nil, err
	}
	s.State = model.SessionPendingIdentity
	s.UpdatedAt = c.now()
	if err := c.sessions.Update(ctx, s); err != nil {
		return nil, err
	}
	if grantToken == "" {
		return s, nil
	}
	identityID, err := c.grants.Consume(ctx, grantToken)
	if err != nil {
		return s, err
	}
	s.IdentityID = &identityID
	s.State = model.SessionPendingPayment
	s.UpdatedAt = c.now()
	if err := c.sessions.Update(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// AttachIdentity consumes a single-use verification grant and advances
// the session to PENDING_PAYMENT.  A grant that is unknown or already
// consumed yields model.ErrExpired and the session does not move.
func (c *CheckoutService) AttachIdentity(ctx context.Context, sessionID, grantToken string) (*model.CheckoutSession, error) {
	s, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.State != model.SessionPendingIdentity {
		return nil, model.ErrForbidden
	}
	identityID, err := c.grants.Consume(ctx, grantToken)
	if err != nil {
		return nil, err
	}
	s.IdentityID = &identityID
	s.State = model.SessionPendingPayment
	s.UpdatedAt = c.now()
	if err := c.sessions.Update(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// RequestPayment computes the session total, creates a payment intent
// and records its reference.  The session must hold seats, carry a
// verified identity and still own a live hold; it stays in
// PENDING_PAYMENT, so a passenger whose first redirect failed can
// request a fresh intent without re-selecting seats.
func (c *CheckoutService) RequestPayment(ctx context.Context, sessionID, email string) (*model.CheckoutSession, *PaymentIntent, error) {
	s, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if s.State != model.SessionPendingPayment {
		return nil, nil, model.ErrForbidden
	}
	if s.HoldID == nil {
		return nil, nil, model.ErrExpired
	}
	h, err := c.holds.holds.Get(ctx, *s.HoldID)
	if err != nil {
		if err == model.ErrNotFound {
			return nil, nil, model.ErrExpired
		}
		return nil, nil, err
	}
	if !h.Active(c.now()) {
		return nil, nil, model.ErrExpired
	}
	total, err := c.Total(ctx, s)
	if err != nil {
		return nil, nil, err
	}
	intent, err := c.provider.CreateIntent(ctx, email, total)
	if err != nil {
		return nil, nil, err
	}
	s.TotalKobo = total
	s.PaymentRef = &intent.Reference
	s.UpdatedAt = c.now()
	if err := c.sessions.Update(ctx, s); err != nil {
		return nil, nil, err
	}
	return s, intent, nil
}

// Total prices the session: seat count times the trip's unit price.
// Full-bus hire follows the same rule over the seats actually claimed.
func (c *CheckoutService) Total(ctx context.Context, s *model.CheckoutSession) (int64, error) {
	trip, err := c.trips.GetByID(ctx, s.TripID)
	if err != nil {
		return 0, err
	}
	return trip.PriceKobo * int64(len(s.SeatIDs)), nil
}

// Extend refreshes the session's hold while the passenger is still
// filling in forms.  Once the hold has lapsed the session can no longer
// be revived and the caller restarts selection.
func (c *CheckoutService) Extend(ctx context.Context, sessionID string) error {
	s, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.State.Terminal() || s.HoldID == nil {
		return model.ErrExpired
	}
	return c.holds.Extend(ctx, *s.HoldID, 0)
}

// Cancel abandons a session explicitly, releasing its hold.  Terminal
// sessions are left untouched; cancelling twice is a no-op.
func (c *CheckoutService) Cancel(ctx context.Context, sessionID string) error {
	s, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return c.abandon(ctx, s, true)
}

// AbandonForHold is the sweep's expiry hook: it moves the session that
// owned a just-released hold to ABANDONED.  The hold's seats are already
// FREE, so no ledger work remains here.
func (c *CheckoutService) AbandonForHold(ctx context.Context, h *model.Hold) error {
	s, err := c.sessions.Get(ctx, h.SessionID)
	if err != nil {
		if err == model.ErrNotFound {
			return nil
		}
		return err
	}
	return c.abandon(ctx, s, false)
}

func (c *CheckoutService) abandon(ctx context.Context, s *model.CheckoutSession, releaseHold bool) error {
	if s.State.Terminal() {
		return nil
	}
	if releaseHold && s.HoldID != nil {
		if err := c.holds.Release(ctx, *s.HoldID); err != nil {
			return err
		}
	}
	s.State = model.SessionAbandoned
	s.UpdatedAt = c.now()
	return c.sessions.Update(ctx, s)
}

func (c *CheckoutService) resolvePositions(ctx context.Context, tripID uint64, seatIDs []uint64) ([]uint32, error) {
	seats, err := c.holds.ledger.ListSeats(ctx, tripID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint64]uint32, len(seats))
	for _, seat := range seats {
		byID[seat.ID] = seat.Position
	}
	positions := make([]uint32, 0, len(seatIDs))
	for _, id := range seatIDs {
		positions = append(positions, byID[id])
	}
	return positions, nil
}
