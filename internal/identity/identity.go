// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidUserIdentity is the sentinel error wrapped by InvalidUserIdentityError.
	ErrInvalidUserIdentity = errors.New("invalid user identity")

	// unsafeReplacer maps characters that are unsafe in directory and
	// container names to the underscore.
	unsafeReplacer = strings.NewReplacer("@", "_", ".", "_")
)

type (
	// UserIdentity is the opaque identity string supplied by the authenticator
	// (typically the configured username claim, e.g. an email address).
	UserIdentity string

	// SanitizedUsername is the filesystem/container-safe form of a UserIdentity.
	SanitizedUsername string

	// InvalidUserIdentityError is returned when a UserIdentity is empty or whitespace-only.
	// It wraps ErrInvalidUserIdentity for errors.Is() compatibility.
	InvalidUserIdentityError struct {
		Value UserIdentity
	}
)

// Normalize returns s trimmed and lowercased. Identities from the
// authenticator and from the command line are normalized before they name a
// workspace or container, and access lists compare in the same form, so one
// account never maps to two workspaces.
func Normalize(s string) UserIdentity {
	return UserIdentity(strings.ToLower(strings.TrimSpace(s)))
}

// Sanitize derives the SanitizedUsername for id. It does not normalize.
func Sanitize(id UserIdentity) SanitizedUsername {
	return SanitizedUsername(unsafeReplacer.Replace(string(id)))
}

// Sanitized is shorthand for Sanitize(id).
func (id UserIdentity) Sanitized() SanitizedUsername {
	return Sanitize(id)
}

// String returns the string representation of the UserIdentity.
func (id UserIdentity) String() string { return string(id) }

// Validate returns an error if the UserIdentity is empty or whitespace-only.
func (id UserIdentity) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return &InvalidUserIdentityError{Value: id}
	}
	return nil
}

// String returns the string representation of the SanitizedUsername.
func (u SanitizedUsername) String() string { return string(u) }

// Error implements the error interface for InvalidUserIdentityError.
func (e *InvalidUserIdentityError) Error() string {
	return fmt.Sprintf("invalid user identity %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidUserIdentity for errors.Is() compatibility.
func (e *InvalidUserIdentityError) Unwrap() error { return ErrInvalidUserIdentity }
