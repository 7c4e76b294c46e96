package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/orro/bus-booking/internal/model"
)

// memAdmins is an in-memory AdminStore.
type memAdmins struct {
	mu      sync.Mutex
	nextID  uint64
	byEmail map[string]*model.Admin
}

func newMemAdmins() *memAdmins {
	return &memAdmins{byEmail: make(map[string]*model.Admin)}
}

func (m *memAdmins) GetByEmail(_ context.Context, email string) (*model.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byEmail[email]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAdmins) GetByID(_ context.Context, id uint64) (*model.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byEmail {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *memAdmins) Upsert(_ context.Context, email, passwordHash, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.byEmail[email]; ok {
		a.PasswordHash = passwordHash
		a.Phone = phone
		return nil
	}
	m.nextID++
	m.byEmail[email] = &model.Admin{ID: m.nextID, Email: email, PasswordHash: passwordHash, Phone: phone, IsActive: true}
	return nil
}

type authEnv struct {
	admins    *memAdmins
	transport *fakeTransport
	auth      *AuthService
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	clock := newFakeClock()
	transport := newFakeTransport()
	verifier := NewVerificationService(newMemCodes(clock), transport, newMemIdentities(), newMemGrants(), 5*time.Minute, 15*time.Minute)
	admins := newMemAdmins()
	// MinCost keeps the hashing fast under test.
	auth := NewAuthService(admins, verifier, "test-secret", 15, bcrypt.MinCost)
	return &authEnv{admins: admins, transport: transport, auth: auth}
}

func TestAuth_ProvisionedAdminCompletesTwoStepLogin(t *testing.T) {
	e := newAuthEnv(t)
	ctx := context.Background()

	if err := e.auth.ProvisionAdmin(ctx, "  Ops@Example.COM ", "s3cret", "+2348000000001"); err != nil {
		t.Fatalf("provision: %v", err)
	}

	// The email was normalised at provision time, so the lowercase form
	// must log in.
	if err := e.auth.Login(ctx, "ops@example.com", "s3cret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	code := e.transport.lastCode("+2348000000001")
	if code == "" {
		t.Fatal("login should dispatch a one-time code to the admin's phone")
	}

	token, admin, err := e.auth.VerifyLogin(ctx, "ops@example.com", code)
	if err != nil {
		t.Fatalf("verify login: %v", err)
	}
	if token.Token == "" {
		t.Error("expected a signed access token")
	}
	if admin == nil || admin.Email != "ops@example.com" {
		t.Errorf("expected the provisioned admin back, got %+v", admin)
	}
}

func TestAuth_WrongPasswordSendsNoCode(t *testing.T) {
	e := newAuthEnv(t)
	ctx := context.Background()

	if err := e.auth.ProvisionAdmin(ctx, "ops@example.com", "s3cret", "+2348000000001"); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := e.auth.Login(ctx, "ops@example.com", "wrong"); !errors.Is(err, model.ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
	if err := e.auth.Login(ctx, "nobody@example.com", "s3cret"); !errors.Is(err, model.ErrVerificationFailed) {
		t.Fatalf("unknown email should fail the same way, got %v", err)
	}
	if e.transport.count != 0 {
		t.Errorf("no code should be dispatched on a failed password check, got %d sends", e.transport.count)
	}
}

func TestAuth_ReprovisionRotatesPassword(t *testing.T) {
	e := newAuthEnv(t)
	ctx := context.Background()

	if err := e.auth.ProvisionAdmin(ctx, "ops@example.com", "old-pass", "+2348000000001"); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := e.auth.ProvisionAdmin(ctx, "ops@example.com", "new-pass", "+2348000000001"); err != nil {
		t.Fatalf("reprovision: %v", err)
	}

	if err := e.auth.Login(ctx, "ops@example.com", "old-pass"); !errors.Is(err, model.ErrVerificationFailed) {
		t.Fatalf("stale password should be rejected, got %v", err)
	}
	if err := e.auth.Login(ctx, "ops@example.com", "new-pass"); err != nil {
		t.Fatalf("rotated password should log in: %v", err)
	}
}

func TestAuth_ProvisionRejectsBlankCredentials(t *testing.T) {
	e := newAuthEnv(t)
	ctx := context.Background()

	if err := e.auth.ProvisionAdmin(ctx, "   ", "s3cret", ""); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("blank email: expected ErrInvalidInput, got %v", err)
	}
	if err := e.auth.ProvisionAdmin(ctx, "ops@example.com", "", ""); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("blank password: expected ErrInvalidInput, got %v", err)
	}
}
