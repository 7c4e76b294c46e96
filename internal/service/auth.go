package service

import (
	"context"
	"errors"
	"strings"

	"github.com/orro/bus-booking/internal/model"
	"github.com/orro/bus-booking/internal/utils"
)

// AdminStore looks up and provisions operator console accounts.
type AdminStore interface {
	GetByEmail(ctx context.Context, email string) (*model.Admin, error)
	GetByID(ctx context.Context, id uint64) (*model.Admin, error)
	Upsert(ctx context.Context, email, passwordHash, phone string) error
}

// AuthService authenticates operators.  Login is two-step: password
// first, then a one-time code sent to the account's phone.  Both steps
// fail with the same non-enumerating error, so a probe learns nothing
// about which emails have accounts.
type AuthService struct {
	admins     AdminStore
	verifier   *VerificationService
	secret     string
	ttlMin     int
	bcryptCost int
}

// NewAuthService wires operator authentication.  bcryptCost is used when
// provisioning accounts; out-of-range values fall back to the bcrypt
// default inside utils.HashPassword.
func NewAuthService(admins AdminStore, verifier *VerificationService, jwtSecret string, accessTTLMin, bcryptCost int) *AuthService {
	return &AuthService{admins: admins, verifier: verifier, secret: jwtSecret, ttlMin: accessTTLMin, bcryptCost: bcryptCost}
}

// ProvisionAdmin creates or refreshes an operator account, hashing the
// password at the configured cost.  Called at startup for the bootstrap
// account named by the environment.
func (a *AuthService) ProvisionAdmin(ctx context.Context, email, password, phone string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return model.ErrInvalidInput
	}
	hash, err := utils.HashPassword(password, a.bcryptCost)
	if err != nil {
		return err
	}
	return a.admins.Upsert(ctx, strings.ToLower(strings.TrimSpace(email)), hash, phone)
}

// Login checks the password and, on success, dispatches a one-time code
// to the account's phone.  Wrong password, unknown email and disabled
// account all yield model.ErrVerificationFailed.
func (a *AuthService) Login(ctx context.Context, email, password string) error {
	admin, err := a.admins.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrVerificationFailed
		}
		return err
	}
	if !admin.IsActive || !utils.VerifyPassword(admin.PasswordHash, password) {
		return model.ErrVerificationFailed
	}
	return a.verifier.SendCode(ctx, admin.Phone)
}

// VerifyLogin completes the second step and mints an access token.
func (a *AuthService) VerifyLogin(ctx context.Context, email, code string) (utils.AccessToken, *model.Admin, error) {
	admin, err := a.admins.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return utils.AccessToken{}, nil, model.ErrVerificationFailed
		}
		return utils.AccessToken{}, nil, err
	}
	if !admin.IsActive {
		return utils.AccessToken{}, nil, model.ErrVerificationFailed
	}
	if err := a.verifier.VerifyCode(ctx, admin.Phone, code); err != nil {
		return utils.AccessToken{}, nil, err
	}
	token, err := utils.NewAccessToken(a.secret, admin.ID, "ADMIN", a.ttlMin)
	if err != nil {
		return utils.AccessToken{}, nil, err
	}
	return token, admin, nil
}
