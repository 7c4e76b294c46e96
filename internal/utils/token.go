// Package utils provides helper functions for token creation, one-time
// codes and password hashing.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken is a signed JWT together with its expiry.  Access tokens
// are short-lived and sent in the Authorization header on protected
// endpoints.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// NewAccessToken builds and signs an HS256 JWT for an operator account.
// Claims: subject (sub), role, expiration (exp) and issued-at (iat).
func NewAccessToken(secret string, userID uint64, role string, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// GenerateOTP returns a six-digit one-time code drawn from a uniform
// distribution over 000000..999999, zero-padded.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// RandomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.  Used for verification grant
// tokens and payment references.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
