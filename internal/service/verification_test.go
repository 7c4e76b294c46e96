package service

import (
	"context"
	"testing"
	"time"

	"github.com/orro/bus-booking/internal/model"
)

func newTestVerifier() (*VerificationService, *fakeTransport, *memGrants, *fakeClock) {
	clock := newFakeClock()
	transport := newFakeTransport()
	grants := newMemGrants()
	v := NewVerificationService(newMemCodes(clock), transport, newMemIdentities(), grants, 5*time.Minute, 15*time.Minute)
	return v, transport, grants, clock
}

func TestVerification_SendAndConfirm(t *testing.T) {
	t.Parallel()
	v, transport, _, _ := newTestVerifier()
	ctx := context.Background()

	if err := v.SendCode(ctx, "+2348011111111"); err != nil {
		t.Fatalf("send: %v", err)
	}
	code := transport.lastCode("+2348011111111")
	if len(code) != 6 {
		t.Fatalf("expected a six-digit code, got %q", code)
	}

	grant, identity, err := v.VerifyPassenger(ctx, PassengerDetails{
		FirstName: "Ada", LastName: "Obi", Email: "ada@example.com", Phone: "+2348011111111",
	}, code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if grant == "" {
		t.Error("expected a grant token")
	}
	if identity.VerifiedAt == nil {
		t.Error("identity should be stamped verified")
	}
}

func TestVerification_WrongCodeFails(t *testing.T) {
	t.Parallel()
	v, transport, _, _ := newTestVerifier()
	ctx := context.Background()

	if err := v.SendCode(ctx, "+2348022222222"); err != nil {
		t.Fatalf("send: %v", err)
	}
	wrong := "000000"
	if transport.lastCode("+2348022222222") == wrong {
		wrong = "000001"
	}
	if err := v.VerifyCode(ctx, "+2348022222222", wrong); err != model.ErrVerificationFailed {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
	// The pending code survives a failed guess.
	if err := v.VerifyCode(ctx, "+2348022222222", transport.lastCode("+2348022222222")); err != nil {
		t.Errorf("correct code should still work after a wrong guess: %v", err)
	}
}

func TestVerification_CodeIsSingleUse(t *testing.T) {
	t.Parallel()
	v, transport, _, _ := newTestVerifier()
	ctx := context.Background()

	_ = v.SendCode(ctx, "+2348033333333")
	code := transport.lastCode("+2348033333333")
	if err := v.VerifyCode(ctx, "+2348033333333", code); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if err := v.VerifyCode(ctx, "+2348033333333", code); err != model.ErrVerificationFailed {
		t.Fatalf("replayed code should fail, got %v", err)
	}
}

func TestVerification_CodeExpires(t *testing.T) {
	t.Parallel()
	v, transport, _, clock := newTestVerifier()
	ctx := context.Background()

	_ = v.SendCode(ctx, "+2348044444444")
	clock.Advance(6 * time.Minute)
	err := v.VerifyCode(ctx, "+2348044444444", transport.lastCode("+2348044444444"))
	if err != model.ErrVerificationFailed {
		t.Fatalf("expired code should fail with the generic error, got %v", err)
	}
}

func TestVerification_ResendInvalidatesPreviousCode(t *testing.T) {
	t.Parallel()
	v, transport, _, _ := newTestVerifier()
	ctx := context.Background()

	_ = v.SendCode(ctx, "+2348055555555")
	first := transport.lastCode("+2348055555555")
	_ = v.SendCode(ctx, "+2348055555555")
	second := transport.lastCode("+2348055555555")

	if first != second {
		if err := v.VerifyCode(ctx, "+2348055555555", first); err != model.ErrVerificationFailed {
			t.Fatalf("superseded code should fail, got %v", err)
		}
	}
	if err := v.VerifyCode(ctx, "+2348055555555", second); err != nil {
		t.Errorf("latest code should verify: %v", err)
	}
}

func TestVerification_UnknownContactSameError(t *testing.T) {
	t.Parallel()
	v, _, _, _ := newTestVerifier()
	// No code was ever sent to this contact; the error must be
	// indistinguishable from a wrong code.
	err := v.VerifyCode(context.Background(), "+2348099999999", "123456")
	if err != model.ErrVerificationFailed {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestVerification_UndeliverableCodeIsDiscarded(t *testing.T) {
	t.Parallel()
	v, transport, _, _ := newTestVerifier()
	ctx := context.Background()

	transport.fail = true
	if err := v.SendCode(ctx, "+2348066666666"); err == nil {
		t.Fatal("expected delivery error")
	}
	transport.fail = false
	// Whatever was stored for the failed send must not be guessable.
	for _, guess := range []string{"000000", "123456", "999999"} {
		if err := v.VerifyCode(ctx, "+2348066666666", guess); err != model.ErrVerificationFailed {
			t.Fatalf("guess %s after failed delivery: expected ErrVerificationFailed, got %v", guess, err)
		}
	}
}

func TestVerification_GrantConsumeIsSingleUse(t *testing.T) {
	t.Parallel()
	v, transport, grants, _ := newTestVerifier()
	ctx := context.Background()

	_ = v.SendCode(ctx, "+2348077777777")
	grant, identity, err := v.VerifyPassenger(ctx, PassengerDetails{
		FirstName: "Ngozi", LastName: "Eze", Email: "n@example.com", Phone: "+2348077777777",
	}, transport.lastCode("+2348077777777"))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	id, err := grants.Consume(ctx, grant)
	if err != nil || id != identity.ID {
		t.Fatalf("consume: got id=%d err=%v", id, err)
	}
	if _, err := grants.Consume(ctx, grant); err != model.ErrExpired {
		t.Fatalf("second consume should fail with ErrExpired, got %v", err)
	}
}
