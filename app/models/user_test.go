package models

import (
	"testing"
	"time"
)

func TestCurrentlySuspended(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name string
		user User
		want bool
	}{
		{name: "not suspended", user: User{}, want: false},
		{name: "suspended indefinitely", user: User{IsSuspended: true}, want: true},
		{name: "suspended with future expiry", user: User{IsSuspended: true, SuspendedUntil: &future}, want: true},
		{name: "suspension lapsed", user: User{IsSuspended: true, SuspendedUntil: &past}, want: false},
	}

	for _, tt := range tests {
		if got := tt.user.CurrentlySuspended(); got != tt.want {
			t.Fatalf("%s: CurrentlySuspended() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCreateUserValidation(t *testing.T) {
	u, err := CreateUser("mina", "mina@example.com", "supersecret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Role != ROLE_USER || u.Status != STATUS_ACTIVE {
		t.Fatalf("unexpected defaults: role=%q status=%q", u.Role, u.Status)
	}
	if !CheckPasswordHash("supersecret", u.Password) {
		t.Fatalf("stored password hash does not verify")
	}

	if _, err := CreateUser("x", "not-an-email", "supersecret"); err == nil {
		t.Fatalf("expected validation error for bad name and email")
	}
}

func TestHashAPIKey(t *testing.T) {
	a := HashAPIKey("key-one")
	b := HashAPIKey("key-one")
	c := HashAPIKey("key-two")

	if a != b {
		t.Fatalf("hashing must be deterministic")
	}
	if a == c {
		t.Fatalf("different keys must hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256 digest, got length %d", len(a))
	}
}
