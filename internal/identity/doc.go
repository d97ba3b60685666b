// SPDX-License-Identifier: MPL-2.0

// Package identity models the user identity handed over by the authenticator
// and its filesystem/container-safe derivation.
//
// The derivation replaces '@' and '.' with '_'. It is deterministic and
// idempotent; two identities that differ only in where those characters sit
// map to the same sanitized username and are treated as the same user.
package identity
