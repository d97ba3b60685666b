// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   UserIdentity
		want SanitizedUsername
	}{
		{"email", "alice@example.com", "alice_example_com"},
		{"dotted local part", "bob.jones@co.io", "bob_jones_co_io"},
		{"plain name", "carol", "carol"},
		{"already sanitized", "alice_example_com", "alice_example_com"},
		{"only unsafe characters", "@.@", "___"},
		{"dashes and digits kept", "dev-01@lab.example", "dev-01_lab_example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Sanitize(tt.id); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want UserIdentity
	}{
		{"alice@example.com", "alice@example.com"},
		{"Alice@Example.COM", "alice@example.com"},
		{"  bob.jones@co.io\n", "bob.jones@co.io"},
		{"   ", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if Normalize("Alice@Example.com").Sanitized() != Normalize("alice@example.com").Sanitized() {
		t.Error("identities differing only in case should share a workspace")
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	t.Parallel()

	ids := []UserIdentity{
		"alice@example.com",
		"bob.jones@co.io",
		"a.b.c@d.e.f",
		"",
		"no-unsafe",
	}
	for _, id := range ids {
		once := Sanitize(id)
		twice := Sanitize(UserIdentity(once))
		if once != twice {
			t.Errorf("Sanitize not idempotent for %q: %q then %q", id, once, twice)
		}
		if strings.ContainsAny(string(once), "@.") {
			t.Errorf("Sanitize(%q) = %q still contains unsafe characters", id, once)
		}
	}
}

func TestSanitize_CollidingIdentities(t *testing.T) {
	t.Parallel()

	// Identities differing only in '@'/'.' placement map to the same user.
	a := Sanitize("a.b@c")
	b := Sanitize("a@b.c")
	if a != b {
		t.Errorf("expected %q and %q to collide", a, b)
	}
	if UserIdentity("a.b@c").Sanitized() != a {
		t.Error("Sanitized() should match Sanitize()")
	}
}

func TestUserIdentity_Validate(t *testing.T) {
	t.Parallel()

	if err := UserIdentity("alice@example.com").Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	for _, id := range []UserIdentity{"", "   ", "\t\n"} {
		err := id.Validate()
		if err == nil {
			t.Errorf("expected error for %q", id)
			continue
		}
		if !errors.Is(err, ErrInvalidUserIdentity) {
			t.Errorf("expected ErrInvalidUserIdentity, got %v", err)
		}
		var typed *InvalidUserIdentityError
		if !errors.As(err, &typed) || typed.Value != id {
			t.Errorf("expected *InvalidUserIdentityError with value %q, got %v", id, err)
		}
	}
}
