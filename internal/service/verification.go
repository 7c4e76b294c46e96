package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log"
	"strings"
	"time"

	"github.com/orro/bus-booking/internal/model"
	"github.com/orro/bus-booking/internal/utils"
)

// CodeStore keeps the pending one-time codes, keyed by contact.  Put
// overwrites any earlier code for the same contact, so at most one code
// is live per contact at any moment.  Get returns model.ErrNotFound for
// contacts with no pending code.
type CodeStore interface {
	Put(ctx context.Context, contact, codeHash string, ttl time.Duration) error
	Get(ctx context.Context, contact string) (string, error)
	Delete(ctx context.Context, contact string) error
}

// OTPTransport delivers a one-time code to a contact, typically over SMS.
type OTPTransport interface {
	Send(ctx context.Context, contact, code string) error
}

// IdentityStore persists passenger records keyed by phone.
type IdentityStore interface {
	UpsertVerified(ctx context.Context, firstName, lastName, email, phone string) (*model.Identity, error)
	GetByPhone(ctx context.Context, phone string) (*model.Identity, error)
	GetByID(ctx context.Context, id uint64) (*model.Identity, error)
}

// PassengerDetails is the contact form submitted before verification.
type PassengerDetails struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// VerificationService runs the one-time-code challenge that turns an
// anonymous checkout into a verified one.  Codes are stored hashed and
// expire on their own; every failure path collapses into the single
// model.ErrVerificationFailed so callers cannot distinguish "wrong
// code" from "unknown contact" and enumerate registered phones.
type VerificationService struct {
	codes      CodeStore
	transport  OTPTransport
	identities IdentityStore
	grants     IdentityGrants
	codeTTL    time.Duration
	grantTTL   time.Duration
	genCode    func() (string, error)
}

// NewVerificationService wires the code challenge.  codeTTL bounds how
// long a sent code stays valid; grantTTL bounds how long a successful
// verification can wait before being attached to a session.
func NewVerificationService(codes CodeStore, transport OTPTransport, identities IdentityStore, grants IdentityGrants, codeTTL, grantTTL time.Duration) *VerificationService {
	if codeTTL <= 0 {
		codeTTL = 5 * time.Minute
	}
	if grantTTL <= 0 {
		grantTTL = 15 * time.Minute
	}
	return &VerificationService{
		codes:      codes,
		transport:  transport,
		identities: identities,
		grants:     grants,
		codeTTL:    codeTTL,
		grantTTL:   grantTTL,
		genCode:    utils.GenerateOTP,
	}
}

// SendCode issues a fresh six-digit code to the contact and dispatches
// it.  Requesting a new code invalidates the previous one; the response
// is identical whether or not the contact is already known.
func (v *VerificationService) SendCode(ctx context.Context, contact string) error {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return model.ErrVerificationFailed
	}
	code, err := v.genCode()
	if err != nil {
		return err
	}
	if err := v.codes.Put(ctx, contact, hashCode(code), v.codeTTL); err != nil {
		return err
	}
	if err := v.transport.Send(ctx, contact, code); err != nil {
		// The code is stored but undeliverable; drop it so it cannot
		// linger as a guessable secret nobody received.
		if delErr := v.codes.Delete(ctx, contact); delErr != nil {
			log.Printf("verification: discard undelivered code for %s: %v", contact, delErr)
		}
		return err
	}
	return nil
}

// VerifyCode checks a submitted code against the pending one for the
// contact.  A match consumes the code; any mismatch, expiry or unknown
// contact returns model.ErrVerificationFailed.
func (v *VerificationService) VerifyCode(ctx context.Context, contact, code string) error {
	contact = strings.TrimSpace(contact)
	code = strings.TrimSpace(code)
	if contact == "" || code == "" {
		return model.ErrVerificationFailed
	}
	stored, err := v.codes.Get(ctx, contact)
	if err != nil {
		if err == model.ErrNotFound {
			return model.ErrVerificationFailed
		}
		return err
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(hashCode(code))) != 1 {
		return model.ErrVerificationFailed
	}
	return v.codes.Delete(ctx, contact)
}

// VerifyPassenger completes the challenge for a passenger: on a correct
// code it records the verified identity and mints a single-use grant
// token the checkout session redeems via AttachIdentity.
func (v *VerificationService) VerifyPassenger(ctx context.Context, d PassengerDetails, code string) (string, *model.Identity, error) {
	if err := v.VerifyCode(ctx, d.Phone, code); err != nil {
		return "", nil, err
	}
	identity, err := v.identities.UpsertVerified(ctx, d.FirstName, d.LastName, d.Email, d.Phone)
	if err != nil {
		return "", nil, err
	}
	token, err := v.grants.Issue(ctx, identity.ID, v.grantTTL)
	if err != nil {
		return "", nil, err
	}
	return token, identity, nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
