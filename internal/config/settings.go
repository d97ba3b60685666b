// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/notehub/notehub/internal/auth"
	"github.com/notehub/notehub/internal/container"
	"github.com/notehub/notehub/internal/session"
	"github.com/notehub/notehub/internal/workspace"
)

// ErrInvalidSettings is returned by Settings.Validate.
var ErrInvalidSettings = errors.New("invalid settings")

type (
	// Settings is the complete hub configuration.
	Settings struct {
		ContainerEngine container.EngineType `mapstructure:"container_engine" env:"NOTEHUB_CONTAINER_ENGINE"`
		LogLevel        string               `mapstructure:"log_level" env:"NOTEHUB_LOG_LEVEL"`
		OTelEndpoint    string               `mapstructure:"otel_endpoint" env:"NOTEHUB_OTEL_ENDPOINT"`

		Hub       HubSettings       `mapstructure:"hub"`
		OAuth     OAuthSettings     `mapstructure:"oauth"`
		Access    AccessSettings    `mapstructure:"access"`
		Workspace WorkspaceSettings `mapstructure:"workspace"`
		Session   SessionSettings   `mapstructure:"session"`
	}

	// HubSettings are the hub's network and TLS settings.
	HubSettings struct {
		IP          string `mapstructure:"ip" env:"HUB_IP"`
		ConnectIP   string `mapstructure:"connect_ip" env:"HUB_CONNECT_IP"`
		ConnectURL  string `mapstructure:"connect_url" env:"HUB_CONNECT_URL"`
		Port        int    `mapstructure:"port" env:"HUB_PORT"`
		BindURL     string `mapstructure:"bind_url" env:"HUB_BIND_URL"`
		SSLKey      string `mapstructure:"ssl_key" env:"SSL_KEY_PATH"`
		SSLCert     string `mapstructure:"ssl_cert" env:"SSL_CERT_PATH"`
		ProxyAPIURL string `mapstructure:"proxy_api_url" env:"PROXY_API_URL"`
	}

	// OAuthSettings describe the generic OAuth2/OIDC provider.
	OAuthSettings struct {
		ClientID      string   `mapstructure:"client_id" env:"OAUTH_CLIENT_ID"`
		ClientSecret  string   `mapstructure:"client_secret" env:"OAUTH_CLIENT_SECRET"`
		CallbackURL   string   `mapstructure:"callback_url" env:"OAUTH_CALLBACK_URL"`
		AuthorizeURL  string   `mapstructure:"authorize_url" env:"OAUTH_AUTHORIZE_URL"`
		TokenURL      string   `mapstructure:"token_url" env:"OAUTH_TOKEN_URL"`
		UserdataURL   string   `mapstructure:"userdata_url" env:"OAUTH_USERDATA_URL"`
		UsernameClaim string   `mapstructure:"username_claim" env:"OAUTH_USERNAME_CLAIM"`
		Scopes        []string `mapstructure:"scopes"`
	}

	// AccessSettings hold the allow and admin lists.
	AccessSettings struct {
		AllowedUsers []string `mapstructure:"allowed_users" env:"ALLOWED_USERS"`
		AdminUsers   []string `mapstructure:"admin_users" env:"ADMIN_USERS"`
	}

	// WorkspaceSettings configure the workspace provisioner.
	WorkspaceSettings struct {
		DataRoot          string                       `mapstructure:"data_root" env:"NOTEHUB_DATA_ROOT"`
		TemplateRoot      string                       `mapstructure:"template_root" env:"NOTEHUB_TEMPLATE_ROOT"`
		HostDataRoot      container.HostFilesystemPath `mapstructure:"host_data_root" env:"HOST_DATA_PATH"`
		MountTarget       container.MountTargetPath    `mapstructure:"mount_target" env:"NOTEHUB_MOUNT_TARGET"`
		UID               int                          `mapstructure:"uid" env:"NOTEHUB_WORKSPACE_UID"`
		GID               int                          `mapstructure:"gid" env:"NOTEHUB_WORKSPACE_GID"`
		SeedPolicy        workspace.SeedPolicy         `mapstructure:"seed_policy" env:"NOTEHUB_SEED_POLICY"`
		CopyFailurePolicy workspace.CopyFailurePolicy  `mapstructure:"copy_failure_policy" env:"NOTEHUB_COPY_FAILURE_POLICY"`
	}

	// SessionSettings configure the session container.
	SessionSettings struct {
		Image         container.ImageTag    `mapstructure:"image" env:"NOTEHUB_SESSION_IMAGE"`
		NameTemplate  string                `mapstructure:"name_template" env:"NOTEHUB_NAME_TEMPLATE"`
		Network       container.NetworkName `mapstructure:"network" env:"DOCKER_SPAWNER_NETWORK_NAME"`
		DefaultURL    string                `mapstructure:"default_url" env:"NOTEHUB_DEFAULT_URL"`
		Port          int                   `mapstructure:"port" env:"NOTEHUB_SESSION_PORT"`
		PullPolicy    session.PullPolicy    `mapstructure:"pull_policy" env:"NOTEHUB_PULL_POLICY"`
		Remove        bool                  `mapstructure:"remove" env:"NOTEHUB_SESSION_REMOVE"`
		UseInternalIP bool                  `mapstructure:"use_internal_ip" env:"NOTEHUB_USE_INTERNAL_IP"`
		Env           map[string]string     `mapstructure:"-"`
		Command       []string              `mapstructure:"command"`
	}
)

// DefaultSettings returns the built-in defaults for the containerized hub.
func DefaultSettings() *Settings {
	ws := workspace.DefaultConfig()
	sc := session.DefaultSpawnConfig()
	return &Settings{
		ContainerEngine: container.EngineTypeDocker,
		LogLevel:        "info",
		Hub: HubSettings{
			IP:          "0.0.0.0",
			ConnectIP:   "jupyterhub",
			ConnectURL:  session.DefaultHubURL,
			Port:        8081,
			BindURL:     "https://0.0.0.0:8000",
			SSLKey:      "/app/certs/key.pem",
			SSLCert:     "/app/certs/cert.pem",
			ProxyAPIURL: "http://127.0.0.1:8001",
		},
		OAuth: OAuthSettings{
			UsernameClaim: auth.DefaultUsernameClaim,
			Scopes:        append([]string(nil), auth.DefaultScopes...),
		},
		Workspace: WorkspaceSettings{
			DataRoot:          ws.DataRoot,
			TemplateRoot:      ws.TemplateRoot,
			MountTarget:       ws.MountTarget,
			UID:               ws.Owner.UID,
			GID:               ws.Owner.GID,
			SeedPolicy:        ws.SeedPolicy,
			CopyFailurePolicy: ws.CopyFailurePolicy,
		},
		Session: SessionSettings{
			Image:         sc.Image,
			NameTemplate:  sc.NameTemplate,
			Network:       sc.Network,
			DefaultURL:    sc.DefaultURL,
			Port:          sc.Port,
			PullPolicy:    sc.PullPolicy,
			Remove:        sc.Remove,
			UseInternalIP: sc.UseInternalIP,
		},
	}
}

// WorkspaceConfig returns the provisioner configuration.
func (s *Settings) WorkspaceConfig() workspace.Config {
	return workspace.NewConfig(
		workspace.WithDataRoot(s.Workspace.DataRoot),
		workspace.WithTemplateRoot(s.Workspace.TemplateRoot),
		workspace.WithHostDataRoot(s.Workspace.HostDataRoot),
		workspace.WithMountTarget(s.Workspace.MountTarget),
		workspace.WithOwner(workspace.Owner{UID: s.Workspace.UID, GID: s.Workspace.GID}),
		workspace.WithSeedPolicy(s.Workspace.SeedPolicy),
		workspace.WithCopyFailurePolicy(s.Workspace.CopyFailurePolicy),
	)
}

// SpawnConfig returns the session container configuration. The notebook
// directory is the workspace mount target.
func (s *Settings) SpawnConfig() session.SpawnConfig {
	sc := session.DefaultSpawnConfig()
	sc.Image = s.Session.Image
	sc.NameTemplate = s.Session.NameTemplate
	sc.Network = s.Session.Network
	sc.NotebookDir = s.Workspace.MountTarget
	sc.DefaultURL = s.Session.DefaultURL
	sc.HubURL = s.Hub.ConnectURL
	sc.Port = s.Session.Port
	sc.Env = s.Session.Env
	sc.Remove = s.Session.Remove
	sc.PullPolicy = s.Session.PullPolicy
	sc.UseInternalIP = s.Session.UseInternalIP
	sc.Command = s.Session.Command
	return sc
}

// AuthConfig returns the OAuth provider configuration.
func (s *Settings) AuthConfig() auth.Config {
	return auth.Config{
		ClientID:      s.OAuth.ClientID,
		ClientSecret:  s.OAuth.ClientSecret,
		CallbackURL:   s.OAuth.CallbackURL,
		AuthorizeURL:  s.OAuth.AuthorizeURL,
		TokenURL:      s.OAuth.TokenURL,
		UserdataURL:   s.OAuth.UserdataURL,
		UsernameClaim: s.OAuth.UsernameClaim,
		Scopes:        s.OAuth.Scopes,
	}
}

// AccessPolicy returns the allow/admin policy.
func (s *Settings) AccessPolicy() *auth.AccessPolicy {
	return auth.NewAccessPolicy(s.Access.AllowedUsers, s.Access.AdminUsers)
}

// Validate checks everything except the OAuth provider (see RequireAuth) and
// HOST_DATA_PATH, which the provisioner checks before each session start.
func (s *Settings) Validate() error {
	var errs []error
	if err := s.ContainerEngine.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := log.ParseLevel(s.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if s.Hub.Port <= 0 || s.Hub.Port > 65535 {
		errs = append(errs, fmt.Errorf("hub port %d out of range", s.Hub.Port))
	}
	if err := s.WorkspaceConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := s.SpawnConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
	}
	return nil
}

// RequireAuth checks the fields the authenticator needs.
func (s *Settings) RequireAuth() error {
	return s.AuthConfig().Validate()
}
