// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"slices"
	"strings"

	"github.com/notehub/notehub/internal/identity"
)

// AccessPolicy decides who may start sessions. Identities compare case-insensitively.
type AccessPolicy struct {
	allowed map[string]struct{}
	admins  map[string]struct{}
}

// NewAccessPolicy builds a policy. An empty allow list admits every
// authenticated user; admins are always allowed.
func NewAccessPolicy(allowed, admins []string) *AccessPolicy {
	return &AccessPolicy{
		allowed: toSet(allowed),
		admins:  toSet(admins),
	}
}

// ParseUserList splits a comma separated list, dropping blanks.
func ParseUserList(s string) []string {
	var users []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			users = append(users, part)
		}
	}
	return users
}

// Allowed reports whether id may start a session.
func (p *AccessPolicy) Allowed(id identity.UserIdentity) bool {
	if p.IsAdmin(id) {
		return true
	}
	if len(p.allowed) == 0 {
		return true
	}
	_, ok := p.allowed[normalize(string(id))]
	return ok
}

// IsAdmin reports whether id is a hub admin.
func (p *AccessPolicy) IsAdmin(id identity.UserIdentity) bool {
	_, ok := p.admins[normalize(string(id))]
	return ok
}

// Open reports whether the policy admits everyone.
func (p *AccessPolicy) Open() bool {
	return len(p.allowed) == 0
}

// AllowedUsers returns the sorted allow list.
func (p *AccessPolicy) AllowedUsers() []string {
	return sortedKeys(p.allowed)
}

// AdminUsers returns the sorted admin list.
func (p *AccessPolicy) AdminUsers() []string {
	return sortedKeys(p.admins)
}

func normalize(s string) string {
	return string(identity.Normalize(s))
}

func toSet(users []string) map[string]struct{} {
	set := make(map[string]struct{}, len(users))
	for _, u := range users {
		if u = normalize(u); u != "" {
			set[u] = struct{}{}
		}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
