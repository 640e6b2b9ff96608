package auth

import (
	"testing"
	"time"

	"radyo/internal/cache"
)

func TestDisabledVerifier(t *testing.T) {
	v, err := NewVerifier("", nil)
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}
	if v.Enabled() {
		t.Error("Expected empty token to disable auth")
	}
	if !v.Verify("") || !v.Verify("anything") {
		t.Error("Disabled verifier should accept every request")
	}
}

func TestPlaintextToken(t *testing.T) {
	memo := cache.New[bool](time.Minute, time.Hour)
	defer memo.Close()

	v, err := NewVerifier("s3cret", memo)
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}
	if !v.Enabled() {
		t.Fatal("Expected auth to be enabled")
	}
	if !IsHashed(v.hash) {
		t.Error("Expected plaintext token to be stored hashed")
	}

	tests := []struct {
		token string
		want  bool
	}{
		{"s3cret", true},
		{"s3cret", true}, // memoised
		{"wrong", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := v.Verify(tt.token); got != tt.want {
			t.Errorf("Verify(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}

	if memo.Size() != 1 {
		t.Errorf("Expected exactly the valid token to be memoised, got %d entries", memo.Size())
	}
	if _, found := memo.Get("s3cret"); found {
		t.Error("Raw token must not be used as memo key")
	}
}

func TestHashedToken(t *testing.T) {
	hash, err := HashToken("from-config")
	if err != nil {
		t.Fatalf("Failed to hash token: %v", err)
	}

	v, err := NewVerifier(hash, nil)
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}
	if v.hash != hash {
		t.Error("Expected an existing hash to be used as is")
	}
	if !v.Verify("from-config") {
		t.Error("Expected token to verify against its hash")
	}
	if v.Verify(hash) {
		t.Error("The hash itself must not be accepted as a token")
	}
}

func TestIsHashed(t *testing.T) {
	tests := map[string]bool{
		"$2a$12$abcdefghijklmnopqrstuv": true,
		"$2b$10$x":                      true,
		"$2y$":                          true,
		"$1$md5":                        false,
		"plaintext":                     false,
		"":                              false,
	}
	for token, want := range tests {
		if got := IsHashed(token); got != want {
			t.Errorf("IsHashed(%q) = %v, want %v", token, got, want)
		}
	}
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken(16)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	b, _ := GenerateToken(16)
	if len(a) != 32 {
		t.Errorf("Expected 32 hex characters, got %d", len(a))
	}
	if a == b {
		t.Error("Expected distinct tokens")
	}
}
