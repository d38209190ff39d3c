package service

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher wraps bcrypt with a tunable work factor. bcrypt salts every
// digest, so two hashes of the same password never match byte-for-byte, and
// comparison runs over the full derived key with no early exit.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher clamps the cost into bcrypt's supported range.
// Cost <= 0 selects bcrypt.DefaultCost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash derives a salted digest of the plaintext.
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches the stored digest. Any failure —
// mismatch or malformed digest — reports false rather than an error, so the
// caller cannot distinguish a corrupt hash from a wrong password.
func (h *PasswordHasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
