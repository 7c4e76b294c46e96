package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/orro/bus-booking/internal/model"
	"github.com/orro/bus-booking/internal/queue"
)

// fakeClock is a settable time source shared by the services under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memLedger is an in-memory SeatLedger with the same all-or-nothing
// transition semantics as the SQL implementation.
type memLedger struct {
	mu    sync.Mutex
	seats map[uint64]*model.Seat // keyed by seat ID
}

func newMemLedger(tripID uint64, seatCount int) *memLedger {
	l := &memLedger{seats: make(map[uint64]*model.Seat)}
	for i := 1; i <= seatCount; i++ {
		id := tripID*1000 + uint64(i)
		l.seats[id] = &model.Seat{
			ID:       id,
			TripID:   tripID,
			Position: uint32(i),
			State:    model.SeatFree,
		}
	}
	return l
}

func (l *memLedger) ListSeats(_ context.Context, tripID uint64) ([]model.Seat, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.Seat
	for _, s := range l.seats {
		if s.TripID == tripID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (l *memLedger) Transition(_ context.Context, tripID uint64, seatIDs []uint64, from, to model.SeatState, actor string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var mismatched []uint64
	for _, id := range seatIDs {
		s, ok := l.seats[id]
		if !ok || s.TripID != tripID || s.State != from {
			mismatched = append(mismatched, id)
			continue
		}
		if from == model.SeatHeld && (s.HolderSession == nil || *s.HolderSession != actor) {
			mismatched = append(mismatched, id)
		}
	}
	if len(mismatched) > 0 {
		return model.NewConflictError(mismatched)
	}
	for _, id := range seatIDs {
		s := l.seats[id]
		s.State = to
		if to == model.SeatHeld {
			a := actor
			s.HolderSession = &a
		} else {
			s.HolderSession = nil
		}
	}
	return nil
}

func (l *memLedger) AttachBooking(_ context.Context, tripID uint64, seatIDs []uint64, bookingID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range seatIDs {
		if s, ok := l.seats[id]; ok && s.TripID == tripID && s.State == model.SeatSold {
			b := bookingID
			s.BookingID = &b
		}
	}
	return nil
}

func (l *memLedger) CountNotFree(_ context.Context, tripID uint64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.seats {
		if s.TripID == tripID && s.State != model.SeatFree {
			n++
		}
	}
	return n, nil
}

// stateOf reads a seat's current state for assertions.
func (l *memLedger) stateOf(id uint64) model.SeatState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.seats[id]; ok {
		return s.State
	}
	return ""
}

// memHolds is an in-memory HoldStore.
type memHolds struct {
	mu    sync.Mutex
	holds map[string]*model.Hold
}

func newMemHolds() *memHolds {
	return &memHolds{holds: make(map[string]*model.Hold)}
}

func (m *memHolds) Create(_ context.Context, h *model.Hold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	m.holds[h.ID] = &cp
	return nil
}

func (m *memHolds) Get(_ context.Context, id string) (*model.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (m *memHolds) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.holds, id)
	return nil
}

func (m *memHolds) UpdateExpiry(_ context.Context, id string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[id]
	if !ok {
		return model.ErrExpired
	}
	h.ExpiresAt = expiresAt
	return nil
}

func (m *memHolds) ListExpired(_ context.Context, now time.Time) ([]model.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Hold
	for _, h := range m.holds {
		if !h.ExpiresAt.After(now) {
			out = append(out, *h)
		}
	}
	return out, nil
}

// memSessions is an in-memory SessionStore.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*model.CheckoutSession
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]*model.CheckoutSession)}
}

func (m *memSessions) Create(_ context.Context, s *model.CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessions) Update(_ context.Context, s *model.CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return model.ErrNotFound
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessions) Get(_ context.Context, id string) (*model.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) GetByPaymentRef(_ context.Context, ref string) (*model.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.PaymentRef != nil && *s.PaymentRef == ref {
			cp := *s
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

// memBookings is an in-memory BookingStore / BookingAdminStore.
type memBookings struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]*model.Booking
}

func newMemBookings() *memBookings {
	return &memBookings{byID: make(map[uint64]*model.Booking)}
}

func (m *memBookings) Create(_ context.Context, b *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.PaymentRef == b.PaymentRef {
			return errors.New("duplicate payment reference")
		}
	}
	m.nextID++
	b.ID = m.nextID
	cp := *b
	m.byID[b.ID] = &cp
	return nil
}

func (m *memBookings) GetByPaymentRef(_ context.Context, ref string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.byID {
		if b.PaymentRef == ref {
			cp := *b
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *memBookings) GetByID(_ context.Context, id uint64) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBookings) Cancel(_ context.Context, id uint64, cancelledBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byID[id]
	if !ok || b.Status != model.BookingConfirmed {
		return model.ErrNotFound
	}
	b.Status = model.BookingCancelled
	cb := cancelledBy
	b.CancelledBy = &cb
	return nil
}

func (m *memBookings) ListByTrip(_ context.Context, tripID uint64) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.byID {
		if b.TripID == tripID {
			out = append(out, *b)
		}
	}
	return out, nil
}

// memTrips is an in-memory TripAdminStore.
type memTrips struct {
	mu     sync.Mutex
	nextID uint64
	trips  map[uint64]*model.Trip
	ledger *memLedger // seats provisioned into the shared ledger
}

func newMemTrips(ledger *memLedger) *memTrips {
	return &memTrips{trips: make(map[uint64]*model.Trip), ledger: ledger}
}

func (m *memTrips) add(t model.Trip) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	m.trips[t.ID] = &t
	return t.ID
}

func (m *memTrips) GetByID(_ context.Context, id uint64) (*model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTrips) CreateWithSeats(_ context.Context, t *model.Trip) error {
	m.mu.Lock()
	m.nextID++
	t.ID = m.nextID
	cp := *t
	m.trips[t.ID] = &cp
	m.mu.Unlock()
	if m.ledger != nil {
		m.ledger.mu.Lock()
		for i := uint32(1); i <= t.SeatCount; i++ {
			id := t.ID*1000 + uint64(i)
			m.ledger.seats[id] = &model.Seat{ID: id, TripID: t.ID, Position: i, State: model.SeatFree}
		}
		m.ledger.mu.Unlock()
	}
	return nil
}

func (m *memTrips) Update(_ context.Context, t *model.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trips[t.ID]; !ok {
		return model.ErrNotFound
	}
	cp := *t
	m.trips[t.ID] = &cp
	return nil
}

func (m *memTrips) Delete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trips[id]; !ok {
		return model.ErrNotFound
	}
	delete(m.trips, id)
	return nil
}

func (m *memTrips) GetByIDs(_ context.Context, ids []uint64) ([]model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Trip
	for _, id := range ids {
		if t, ok := m.trips[id]; ok {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memTrips) Search(_ context.Context, _, _, _ string) ([]model.Trip, error) {
	return m.ListAll(context.Background())
}

func (m *memTrips) ListAll(_ context.Context) ([]model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Trip
	for _, t := range m.trips {
		out = append(out, *t)
	}
	return out, nil
}

// memCities is an in-memory CityStore.
type memCities struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]string
}

func newMemCities() *memCities {
	return &memCities{byID: make(map[uint64]string)}
}

func (m *memCities) List(_ context.Context) ([]model.City, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.City
	for id, name := range m.byID {
		out = append(out, model.City{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memCities) Create(_ context.Context, name string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.byID[m.nextID] = name
	return m.nextID, nil
}

func (m *memCities) Delete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return model.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

// memIdentities is an in-memory IdentityStore.
type memIdentities struct {
	mu      sync.Mutex
	nextID  uint64
	byPhone map[string]*model.Identity
}

func newMemIdentities() *memIdentities {
	return &memIdentities{byPhone: make(map[string]*model.Identity)}
}

func (m *memIdentities) UpsertVerified(_ context.Context, first, last, email, phone string) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if p, ok := m.byPhone[phone]; ok {
		p.FirstName, p.LastName, p.Email = first, last, email
		p.VerifiedAt = &now
		cp := *p
		return &cp, nil
	}
	m.nextID++
	p := &model.Identity{ID: m.nextID, FirstName: first, LastName: last, Email: email, Phone: phone, VerifiedAt: &now}
	m.byPhone[phone] = p
	cp := *p
	return &cp, nil
}

func (m *memIdentities) GetByPhone(_ context.Context, phone string) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byPhone[phone]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memIdentities) GetByID(_ context.Context, id uint64) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byPhone {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

// memCodes is an in-memory CodeStore with clock-driven expiry.
type memCodes struct {
	mu    sync.Mutex
	clock *fakeClock
	codes map[string]struct {
		hash string
		exp  time.Time
	}
}

func newMemCodes(clock *fakeClock) *memCodes {
	return &memCodes{clock: clock, codes: make(map[string]struct {
		hash string
		exp  time.Time
	})}
}

func (m *memCodes) Put(_ context.Context, contact, codeHash string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[contact] = struct {
		hash string
		exp  time.Time
	}{codeHash, m.clock.Now().Add(ttl)}
	return nil
}

func (m *memCodes) Get(_ context.Context, contact string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.codes[contact]
	if !ok || !m.clock.Now().Before(entry.exp) {
		return "", model.ErrNotFound
	}
	return entry.hash, nil
}

func (m *memCodes) Delete(_ context.Context, contact string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.codes, contact)
	return nil
}

// memGrants is an in-memory IdentityGrants with single-use consume.
type memGrants struct {
	mu     sync.Mutex
	nextID int
	grants map[string]uint64
}

func newMemGrants() *memGrants {
	return &memGrants{grants: make(map[string]uint64)}
}

func (m *memGrants) Issue(_ context.Context, identityID uint64, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	token := fmt.Sprintf("grant-%d", m.nextID)
	m.grants[token] = identityID
	return token, nil
}

func (m *memGrants) Consume(_ context.Context, token string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.grants[token]
	if !ok {
		return 0, model.ErrExpired
	}
	delete(m.grants, token)
	return id, nil
}

// fakeTransport records the codes it would have sent.
type fakeTransport struct {
	mu    sync.Mutex
	sent  map[string]string // contact -> last code
	fail  bool
	count int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(map[string]string)}
}

func (f *fakeTransport) Send(_ context.Context, contact, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("gateway down")
	}
	f.count++
	f.sent[contact] = code
	return nil
}

func (f *fakeTransport) lastCode(contact string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[contact]
}

// fakeProvider mints deterministic payment references.
type fakeProvider struct {
	mu      sync.Mutex
	nextRef int
	amounts map[string]int64 // reference -> amount requested
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{amounts: make(map[string]int64)}
}

func (f *fakeProvider) CreateIntent(_ context.Context, _ string, amountKobo int64) (*PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextRef++
	ref := fmt.Sprintf("ref-%d", f.nextRef)
	f.amounts[ref] = amountKobo
	return &PaymentIntent{Reference: ref, AuthorizationURL: "https://pay.example/" + ref}, nil
}

// fakePublisher records emitted events.
type fakePublisher struct {
	mu          sync.Mutex
	confirmed   []queue.BookingConfirmedEvent
	escalations []queue.ReconciliationEscalatedEvent
}

func (f *fakePublisher) PublishBookingConfirmed(_ context.Context, ev queue.BookingConfirmedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, ev)
	return nil
}

func (f *fakePublisher) PublishEscalation(_ context.Context, ev queue.ReconciliationEscalatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escalations = append(f.escalations, ev)
	return nil
}

func (f *fakePublisher) escalationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.escalations)
}
