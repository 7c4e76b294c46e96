package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/orro/bus-booking/internal/model"
	"github.com/orro/bus-booking/internal/queue"
)

// BookingStore persists the permanent records created at settlement.
// Create must reject a duplicate payment reference with
// repository.ErrDuplicateRef semantics surfaced as a distinct error the
// reconciler can treat as "already settled".
type BookingStore interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByPaymentRef(ctx context.Context, ref string) (*model.Booking, error)
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
}

// EventPublisher emits the reconciler's outcomes to the message broker:
// confirmations for downstream fulfilment (tickets, notifications) and
// escalations for the operator queue.
type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
	PublishEscalation(ctx context.Context, ev queue.ReconciliationEscalatedEvent) error
}

// CallbackStatus is the outcome reported by the payment provider.
type CallbackStatus string

const (
	CallbackSuccess CallbackStatus = "success"
	CallbackFailed  CallbackStatus = "failed"
	CallbackTimeout CallbackStatus = "timeout"
)

// PaymentCallback is a provider webhook or redirect-verification result.
type PaymentCallback struct {
	Reference  string
	Status     CallbackStatus
	AmountKobo int64
}

// Reconciler turns payment callbacks into settled bookings.  It is the
// only component that performs Held->Sold, and the only one allowed the
// Free->Sold reclaim for payments that arrive after their hold expired.
// Every monetary discrepancy is escalated, never absorbed: a mismatched
// amount or an unreclaimable late settlement means a passenger was
// charged for seats we cannot hand over.
type Reconciler struct {
	sessions SessionStore
	bookings BookingStore
	ledger   SeatLedger
	holds    *HoldManager
	checkout *CheckoutService
	events   EventPublisher
	now      func() time.Time
}

// NewReconciler wires the reconciliation flow.
func NewReconciler(sessions SessionStore, bookings BookingStore, ledger SeatLedger, holds *HoldManager, checkout *CheckoutService, events EventPublisher) *Reconciler {
	return &Reconciler{
		sessions: sessions,
		bookings: bookings,
		ledger:   ledger,
		holds:    holds,
		checkout: checkout,
		events:   events,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// OnCallback processes one provider callback.  It is idempotent per
// reference: redelivered success callbacks return the already-created
// booking without touching the ledger again.  Failure and timeout
// callbacks release the session's hold and abandon it.
func (r *Reconciler) OnCallback(ctx context.Context, cb PaymentCallback) (*model.Booking, error) {
	ref := strings.TrimSpace(cb.Reference)
	if ref == "" {
		return nil, model.ErrNotFound
	}

	// Fast idempotency path: a booking already carries this reference.
	if existing, err := r.bookings.GetByPaymentRef(ctx, ref); err == nil {
		return existing, nil
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	s, err := r.sessions.GetByPaymentRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	switch cb.Status {
	case CallbackSuccess:
		return r.settle(ctx, s, cb)
	case CallbackFailed, CallbackTimeout:
		if err := r.checkout.Cancel(ctx, s.ID); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, model.ErrNotFound
	}
}

func (r *Reconciler) settle(ctx context.Context, s *model.CheckoutSession, cb PaymentCallback) (*model.Booking, error) {
	if s.State == model.SessionSettled {
		// Settled but the booking lookup raced; re-read.
		return r.bookings.GetByPaymentRef(ctx, *s.PaymentRef)
	}
	if cb.AmountKobo != s.TotalKobo {
		r.escalate(ctx, s, cb, "amount mismatch")
		return nil, model.ErrPaymentMismatch
	}
	if s.IdentityID == nil || len(s.SeatIDs) == 0 {
		r.escalate(ctx, s, cb, "session incomplete")
		return nil, model.ErrNotFound
	}

	// Normal path: the hold is still live and the seats are HELD by
	// this session.
	err := r.ledger.Transition(ctx, s.TripID, s.SeatIDs, model.SeatHeld, model.SeatSold, s.ID)
	if err != nil {
		if _, conflict := model.AsConflict(err); !conflict {
			return nil, err
		}
		// Late settlement: the hold expired and the sweep freed the
		// seats.  The payer was charged, so try to take the exact seats
		// back before anyone else does.
		if err := r.ledger.Transition(ctx, s.TripID, s.SeatIDs, model.SeatFree, model.SeatSold, s.ID); err != nil {
			if _, conflict := model.AsConflict(err); conflict {
				// The seats may be SOLD because a concurrent delivery of
				// this same callback settled between our session read and
				// now; its booking carries the reference and there is no
				// discrepancy to escalate.
				if existing, lookupErr := r.bookings.GetByPaymentRef(ctx, cb.Reference); lookupErr == nil {
					return existing, nil
				}
				r.escalate(ctx, s, cb, "seats gone after hold expiry")
				return nil, model.ErrSettlementAfterExpiry
			}
			return nil, err
		}
	}

	b := &model.Booking{
		TripID:     s.TripID,
		IdentityID: *s.IdentityID,
		SeatIDs:    s.SeatIDs,
		AmountKobo: s.TotalKobo,
		PaymentRef: cb.Reference,
		Status:     model.BookingConfirmed,
	}
	if err := r.bookings.Create(ctx, b); err != nil {
		// A concurrent delivery of the same callback created it first.
		if existing, lookupErr := r.bookings.GetByPaymentRef(ctx, cb.Reference); lookupErr == nil {
			return existing, nil
		}
		return nil, err
	}
	if err := r.ledger.AttachBooking(ctx, s.TripID, s.SeatIDs, b.ID); err != nil {
		log.Printf("reconcile: attach booking %d to seats failed: %v", b.ID, err)
	}

	s.State = model.SessionSettled
	s.UpdatedAt = r.now()
	if err := r.sessions.Update(ctx, s); err != nil {
		return nil, err
	}
	if s.HoldID != nil {
		// The seats are SOLD now; only the hold record remains.
		if err := r.holds.holds.Delete(ctx, *s.HoldID); err != nil {
			log.Printf("reconcile: drop hold %s after settlement: %v", *s.HoldID, err)
		}
	}

	if err := r.events.PublishBookingConfirmed(ctx, queue.BookingConfirmedEvent{
		BookingID:  b.ID,
		TripID:     b.TripID,
		IdentityID: b.IdentityID,
		SeatIDs:    b.SeatIDs,
		AmountKobo: b.AmountKobo,
		PaymentRef: b.PaymentRef,
		OccurredAt: r.now(),
	}); err != nil {
		log.Printf("reconcile: publish confirmation for booking %d: %v", b.ID, err)
	}
	return b, nil
}

func (r *Reconciler) escalate(ctx context.Context, s *model.CheckoutSession, cb PaymentCallback, reason string) {
	ev := queue.ReconciliationEscalatedEvent{
		SessionID:    s.ID,
		TripID:       s.TripID,
		PaymentRef:   cb.Reference,
		AmountKobo:   cb.AmountKobo,
		ExpectedKobo: s.TotalKobo,
		Reason:       reason,
		OccurredAt:   r.now(),
	}
	if err := r.events.PublishEscalation(ctx, ev); err != nil {
		log.Printf("reconcile: publish escalation for ref %s: %v", cb.Reference, err)
	}
}
