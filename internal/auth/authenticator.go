// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/notehub/notehub/internal/identity"
)

// DefaultUsernameClaim is the userdata field used as the identity.
const DefaultUsernameClaim = "email"

// DefaultScopes are requested from the identity provider.
var DefaultScopes = []string{"openid", "email", "profile"}

var (
	// ErrIncompleteConfig is returned by Config.Validate when required fields are missing.
	ErrIncompleteConfig = errors.New("incomplete oauth configuration")

	// ErrInvalidUserdata is returned when a userdata document is not valid JSON.
	ErrInvalidUserdata = errors.New("invalid userdata document")

	// ErrClaimNotFound is returned when the username claim is absent or empty.
	ErrClaimNotFound = errors.New("username claim not found in userdata")
)

type (
	// Config describes a generic OAuth2 provider.
	Config struct {
		ClientID     string
		ClientSecret string
		CallbackURL  string
		AuthorizeURL string
		TokenURL     string
		UserdataURL  string
		// UsernameClaim is a gjson path into the userdata document (e.g. "email" or "profile.login").
		UsernameClaim string
		Scopes        []string
	}

	// Authenticator holds a validated provider configuration.
	Authenticator struct {
		cfg Config
	}
)

// Validate reports every missing or malformed field.
func (c Config) Validate() error {
	var errs []error
	required := []struct {
		name  string
		value string
		url   bool
	}{
		{"OAUTH_CLIENT_ID", c.ClientID, false},
		{"OAUTH_CLIENT_SECRET", c.ClientSecret, false},
		{"OAUTH_CALLBACK_URL", c.CallbackURL, true},
		{"OAUTH_AUTHORIZE_URL", c.AuthorizeURL, true},
		{"OAUTH_TOKEN_URL", c.TokenURL, true},
		{"OAUTH_USERDATA_URL", c.UserdataURL, true},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s is not set", r.name))
			continue
		}
		if r.url {
			if u, err := url.Parse(r.value); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, fmt.Errorf("%s %q is not an absolute URL", r.name, r.value))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrIncompleteConfig, errors.Join(errs...))
	}
	return nil
}

// NewAuthenticator validates cfg and fills in the default claim and scopes.
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.UsernameClaim == "" {
		cfg.UsernameClaim = DefaultUsernameClaim
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	return &Authenticator{cfg: cfg}, nil
}

// OAuth2Config returns the client configuration for the authorization code flow.
func (a *Authenticator) OAuth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  a.cfg.AuthorizeURL,
			TokenURL: a.cfg.TokenURL,
		},
		RedirectURL: a.cfg.CallbackURL,
		Scopes:      append([]string(nil), a.cfg.Scopes...),
	}
}

// UserdataURL returns the endpoint the userdata document is fetched from.
func (a *Authenticator) UserdataURL() string {
	return a.cfg.UserdataURL
}

// UsernameClaim returns the gjson path of the identity claim.
func (a *Authenticator) UsernameClaim() string {
	return a.cfg.UsernameClaim
}

// IdentityFromUserdata extracts the configured claim from a userdata JSON document.
func (a *Authenticator) IdentityFromUserdata(data []byte) (identity.UserIdentity, error) {
	return IdentityFromUserdata(data, a.cfg.UsernameClaim)
}

// IdentityFromUserdata extracts claim (a gjson path) from data and returns it
// normalized.
func IdentityFromUserdata(data []byte, claim string) (identity.UserIdentity, error) {
	if !gjson.ValidBytes(data) {
		return "", ErrInvalidUserdata
	}
	res := gjson.GetBytes(data, claim)
	if !res.Exists() || res.IsObject() || res.IsArray() {
		return "", fmt.Errorf("%w: %q", ErrClaimNotFound, claim)
	}
	id := identity.Normalize(res.String())
	if err := id.Validate(); err != nil {
		return "", fmt.Errorf("%w: %q", ErrClaimNotFound, claim)
	}
	return id, nil
}
