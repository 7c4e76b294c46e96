package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword hashes an operator password with bcrypt at the given
// cost.  A cost outside bcrypt's supported range falls back to the
// library default, so a misconfigured deployment still provisions a
// usable account instead of failing at startup.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether plain matches the stored bcrypt hash.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
