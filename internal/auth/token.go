package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"radyo/internal/cache"

	"golang.org/x/crypto/bcrypt"
)

// tokenCost is the bcrypt cost used for API tokens
const tokenCost = 12

// Verifier checks bearer tokens against the configured API token. An
// empty configured token disables authentication.
type Verifier struct {
	hash    string
	enabled bool
	memo    *cache.Memory[bool]
}

// NewVerifier prepares a verifier for token, which may be plaintext or
// an existing bcrypt hash. memo, when non-nil, remembers recently
// verified tokens so bcrypt does not run on every request.
func NewVerifier(token string, memo *cache.Memory[bool]) (*Verifier, error) {
	if token == "" {
		return &Verifier{enabled: false}, nil
	}

	hash := token
	if !IsHashed(token) {
		var err error
		hash, err = HashToken(token)
		if err != nil {
			return nil, fmt.Errorf("failed to hash API token: %w", err)
		}
	}

	return &Verifier{
		hash:    hash,
		enabled: true,
		memo:    memo,
	}, nil
}

// Enabled reports whether requests must carry a token
func (v *Verifier) Enabled() bool {
	return v.enabled
}

// Verify reports whether token matches the configured one
func (v *Verifier) Verify(token string) bool {
	if !v.enabled {
		return true
	}
	if token == "" {
		return false
	}

	key := memoKey(token)
	if v.memo != nil {
		if ok, found := v.memo.Get(key); found && ok {
			return true
		}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(v.hash), []byte(token)); err != nil {
		return false
	}

	if v.memo != nil {
		v.memo.Set(key, true)
	}
	return true
}

// memoKey keeps raw tokens out of the memo
func memoKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// HashToken hashes a plaintext token using bcrypt
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), tokenCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// IsHashed checks if a token string is already a bcrypt hash
func IsHashed(token string) bool {
	// bcrypt hashes have a specific format: $2a$, $2b$, $2x$, or $2y$ followed by cost and salt
	return len(token) >= 4 &&
		token[0] == '$' &&
		token[1] == '2' &&
		(token[2] == 'a' || token[2] == 'b' || token[2] == 'x' || token[2] == 'y') &&
		token[3] == '$'
}

// GenerateToken returns a cryptographically secure random token of
// 2*n hex characters
func GenerateToken(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
