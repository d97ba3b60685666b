// SPDX-License-Identifier: MPL-2.0

// Package auth configures the hub's OAuth2/OIDC login and its access policy.
//
// The authorization flow itself runs in the hub's front end; this package only
// describes the provider (endpoints, client credentials, scopes), extracts the
// user identity from a userdata document and decides who may start sessions.
package auth
