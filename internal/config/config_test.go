// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/notehub/notehub/internal/container"
	"github.com/notehub/notehub/internal/issue"
	"github.com/notehub/notehub/internal/session"
	"github.com/notehub/notehub/internal/testutil"
	"github.com/notehub/notehub/internal/workspace"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	testutil.MustWriteFile(t, path, body, 0o644)
	return path
}

func load(t *testing.T, opts LoadOptions) *Loaded {
	t.Helper()
	if opts.Environ == nil {
		opts.Environ = map[string]string{}
	}
	loaded, err := LoadWithPath(t.Context(), opts)
	if err != nil {
		t.Fatalf("LoadWithPath() error = %v", err)
	}
	return loaded
}

func TestDefaultSettings(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()

	if s.ContainerEngine != container.EngineTypeDocker {
		t.Errorf("ContainerEngine = %q, want docker", s.ContainerEngine)
	}
	if s.Workspace.DataRoot != workspace.DefaultDataRoot {
		t.Errorf("DataRoot = %q, want %q", s.Workspace.DataRoot, workspace.DefaultDataRoot)
	}
	if s.Workspace.TemplateRoot != workspace.DefaultTemplateRoot {
		t.Errorf("TemplateRoot = %q, want %q", s.Workspace.TemplateRoot, workspace.DefaultTemplateRoot)
	}
	if s.Workspace.HostDataRoot != "" {
		t.Errorf("HostDataRoot = %q, want empty", s.Workspace.HostDataRoot)
	}
	if s.Workspace.UID != 1000 || s.Workspace.GID != 100 {
		t.Errorf("owner = %d:%d, want 1000:100", s.Workspace.UID, s.Workspace.GID)
	}
	if s.Session.Image != session.DefaultImage {
		t.Errorf("Image = %q, want %q", s.Session.Image, session.DefaultImage)
	}
	if s.Session.Network != "analytics_net" {
		t.Errorf("Network = %q, want analytics_net", s.Session.Network)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("DefaultSettings().Validate() error = %v", err)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Parallel()

	loaded := load(t, LoadOptions{ConfigDirPath: t.TempDir()})

	if loaded.Path != "" {
		t.Errorf("Path = %q, want empty", loaded.Path)
	}
	want := DefaultSettings()
	if loaded.Settings.Workspace != want.Workspace {
		t.Errorf("Workspace = %+v, want %+v", loaded.Settings.Workspace, want.Workspace)
	}
	if loaded.Settings.Hub != want.Hub {
		t.Errorf("Hub = %+v, want %+v", loaded.Settings.Hub, want.Hub)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, `
container_engine: "podman"
workspace: {
	data_root: "/srv/users"
	seed_policy: "always"
	uid: 2000
}
session: {
	image: "lab:1.2"
	env: {
		SPARK_MASTER: "spark://master:7077"
	}
}
`)

	loaded := load(t, LoadOptions{ConfigDirPath: dir})
	s := loaded.Settings

	if loaded.Path != path {
		t.Errorf("Path = %q, want %q", loaded.Path, path)
	}
	if s.ContainerEngine != container.EngineTypePodman {
		t.Errorf("ContainerEngine = %q, want podman", s.ContainerEngine)
	}
	if s.Workspace.DataRoot != "/srv/users" {
		t.Errorf("DataRoot = %q, want /srv/users", s.Workspace.DataRoot)
	}
	if s.Workspace.SeedPolicy != workspace.SeedAlways {
		t.Errorf("SeedPolicy = %q, want always", s.Workspace.SeedPolicy)
	}
	if s.Workspace.UID != 2000 || s.Workspace.GID != workspace.DefaultGID {
		t.Errorf("owner = %d:%d, want 2000:%d", s.Workspace.UID, s.Workspace.GID, workspace.DefaultGID)
	}
	if s.Workspace.TemplateRoot != workspace.DefaultTemplateRoot {
		t.Errorf("TemplateRoot = %q, want default", s.Workspace.TemplateRoot)
	}
	if s.Session.Image != "lab:1.2" {
		t.Errorf("Image = %q, want lab:1.2", s.Session.Image)
	}
	// Map keys keep their case.
	if got := s.Session.Env["SPARK_MASTER"]; got != "spark://master:7077" {
		t.Errorf("Session.Env[SPARK_MASTER] = %q, env = %v", got, s.Session.Env)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, `
workspace: {
	data_root: "/srv/users"
	host_data_root: "/from/file"
}
`)

	loaded := load(t, LoadOptions{
		ConfigDirPath: dir,
		Environ: map[string]string{
			"HOST_DATA_PATH":        "/data/users",
			"NOTEHUB_DATA_ROOT":     "",
			"ALLOWED_USERS":         "alice@example.com,bob@example.com",
			"HUB_PORT":              "9000",
			"NOTEHUB_SESSION_IMAGE": "custom:latest",
			"OAUTH_CLIENT_ID":       "hub",
		},
	})
	s := loaded.Settings

	if s.Workspace.HostDataRoot != "/data/users" {
		t.Errorf("HostDataRoot = %q, want /data/users", s.Workspace.HostDataRoot)
	}
	if s.Workspace.DataRoot != "/srv/users" {
		t.Errorf("DataRoot = %q, want file value kept for empty variable", s.Workspace.DataRoot)
	}
	if want := []string{"alice@example.com", "bob@example.com"}; !slices.Equal(s.Access.AllowedUsers, want) {
		t.Errorf("AllowedUsers = %v, want %v", s.Access.AllowedUsers, want)
	}
	if s.Hub.Port != 9000 {
		t.Errorf("Hub.Port = %d, want 9000", s.Hub.Port)
	}
	if s.Session.Image != "custom:latest" {
		t.Errorf("Image = %q, want custom:latest", s.Session.Image)
	}
	if s.OAuth.ClientID != "hub" {
		t.Errorf("ClientID = %q, want hub", s.OAuth.ClientID)
	}
}

func TestLoad_ExplicitPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "hub.cue")
	testutil.MustWriteFile(t, path, `log_level: "debug"`, 0o644)

	t.Run("flag", func(t *testing.T) {
		t.Parallel()
		loaded := load(t, LoadOptions{ConfigFilePath: path, ConfigDirPath: t.TempDir()})
		if loaded.Settings.LogLevel != "debug" || loaded.Path != path {
			t.Errorf("got level %q from %q", loaded.Settings.LogLevel, loaded.Path)
		}
	})

	t.Run("environment", func(t *testing.T) {
		t.Parallel()
		loaded := load(t, LoadOptions{
			ConfigDirPath: t.TempDir(),
			Environ:       map[string]string{ConfigPathEnv: path},
		})
		if loaded.Settings.LogLevel != "debug" || loaded.Path != path {
			t.Errorf("got level %q from %q", loaded.Settings.LogLevel, loaded.Path)
		}
	})

	t.Run("missing", func(t *testing.T) {
		t.Parallel()
		_, err := LoadWithPath(t.Context(), LoadOptions{
			ConfigFilePath: filepath.Join(dir, "absent.cue"),
			Environ:        map[string]string{},
		})
		if err == nil {
			t.Fatal("expected error for missing config file")
		}
		if issue.KindOf(err) != issue.KindConfiguration {
			t.Errorf("KindOf() = %v, want configuration", issue.KindOf(err))
		}
	})
}

func TestLoad_InvalidFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "syntax", body: "workspace: {", wantMsg: "config.cue"},
		{name: "unknown engine", body: `container_engine: "lxc"`, wantMsg: "container_engine"},
		{name: "unknown field", body: `workspace: { owner: "x" }`, wantMsg: "owner"},
		{name: "bad seed policy", body: `workspace: { seed_policy: "never" }`, wantMsg: "seed_policy"},
		{name: "relative mount", body: `workspace: { mount_target: "work" }`, wantMsg: "mount_target"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			writeConfig(t, dir, tt.body)

			_, err := LoadWithPath(t.Context(), LoadOptions{ConfigDirPath: dir, Environ: map[string]string{}})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
			var ae *issue.ActionableError
			if !errors.As(err, &ae) || !ae.HasSuggestions() {
				t.Errorf("expected actionable error with suggestions, got %T", err)
			}
		})
	}
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	t.Parallel()

	_, err := LoadWithPath(t.Context(), LoadOptions{
		ConfigDirPath: t.TempDir(),
		Environ:       map[string]string{"NOTEHUB_WORKSPACE_UID": "jovyan"},
	})
	if err == nil {
		t.Fatal("expected error for non-numeric uid")
	}
	if issue.KindOf(err) != issue.KindConfiguration {
		t.Errorf("KindOf() = %v, want configuration", issue.KindOf(err))
	}
}

func TestLoad_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := NewProvider().Load(ctx, LoadOptions{ConfigDirPath: t.TempDir()}); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestSettings_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Settings) {}},
		{name: "bad engine", mutate: func(s *Settings) { s.ContainerEngine = "lxc" }, wantErr: true},
		{name: "bad level", mutate: func(s *Settings) { s.LogLevel = "loud" }, wantErr: true},
		{name: "bad port", mutate: func(s *Settings) { s.Hub.Port = 0 }, wantErr: true},
		{name: "negative uid", mutate: func(s *Settings) { s.Workspace.UID = -1 }, wantErr: true},
		{name: "bad pull policy", mutate: func(s *Settings) { s.Session.PullPolicy = "sometimes" }, wantErr: true},
		{name: "host root not checked", mutate: func(s *Settings) { s.Workspace.HostDataRoot = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := DefaultSettings()
			tt.mutate(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("error %v does not wrap ErrInvalidSettings", err)
			}
		})
	}
}

func TestSettings_RequireAuth(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	if err := s.RequireAuth(); err == nil {
		t.Error("RequireAuth() on defaults should fail")
	}

	s.OAuth.ClientID = "hub"
	s.OAuth.ClientSecret = "secret"
	s.OAuth.CallbackURL = "https://hub.example.com/hub/oauth_callback"
	s.OAuth.AuthorizeURL = "https://idp.example.com/authorize"
	s.OAuth.TokenURL = "https://idp.example.com/token"
	s.OAuth.UserdataURL = "https://idp.example.com/userinfo"
	if err := s.RequireAuth(); err != nil {
		t.Errorf("RequireAuth() error = %v", err)
	}
}

func TestSettings_Derived(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	s.Workspace.HostDataRoot = "/data/users"
	s.Workspace.MountTarget = "/home/lab"
	s.Hub.ConnectURL = "http://hub:9999"
	s.Access.AdminUsers = []string{"root@example.com"}

	wc := s.WorkspaceConfig()
	if wc.HostDataRoot != "/data/users" || wc.MountTarget != "/home/lab" {
		t.Errorf("WorkspaceConfig() = %+v", wc)
	}

	sc := s.SpawnConfig()
	if sc.NotebookDir != "/home/lab" {
		t.Errorf("NotebookDir = %q, want mount target", sc.NotebookDir)
	}
	if sc.HubURL != "http://hub:9999" {
		t.Errorf("HubURL = %q", sc.HubURL)
	}

	if !s.AccessPolicy().IsAdmin("root@example.com") {
		t.Error("admin from settings not recognized")
	}
}

func TestGenerateCUE_RoundTrip(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	s.Workspace.HostDataRoot = "/data/users"
	s.OAuth.ClientSecret = "hunter2"
	s.Access.AllowedUsers = []string{"a@example.com"}
	s.Session.Env = map[string]string{"B": "2", "A": "1"}

	out := GenerateCUE(s)
	if strings.Contains(out, "hunter2") {
		t.Error("generated config leaks client secret")
	}
	if !strings.Contains(out, RedactedSecret) {
		t.Error("generated config does not mark redacted secret")
	}
	if strings.Index(out, `"A"`) > strings.Index(out, `"B"`) {
		t.Error("session env keys not sorted")
	}

	dir := t.TempDir()
	path := writeConfig(t, dir, out)
	loaded := load(t, LoadOptions{ConfigFilePath: path})
	if loaded.Settings.Workspace != s.Workspace {
		t.Errorf("Workspace after reload = %+v, want %+v", loaded.Settings.Workspace, s.Workspace)
	}
	if !slices.Equal(loaded.Settings.Access.AllowedUsers, s.Access.AllowedUsers) {
		t.Errorf("AllowedUsers after reload = %v", loaded.Settings.Access.AllowedUsers)
	}
	if loaded.Settings.Session.Env["A"] != "1" {
		t.Errorf("Session.Env after reload = %v", loaded.Settings.Session.Env)
	}
}

func TestSearchPaths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	got := SearchPaths(LoadOptions{ConfigDirPath: dir})
	if want := []string{filepath.Join(dir, "config.cue")}; !slices.Equal(got, want) {
		t.Errorf("SearchPaths() = %v, want %v", got, want)
	}

	got = SearchPaths(LoadOptions{})
	if got[len(got)-1] != filepath.Join(SystemConfigDir, "config.cue") {
		t.Errorf("SearchPaths() = %v, last entry should be system config", got)
	}
	if _, err := os.UserConfigDir(); err == nil && len(got) != 2 {
		t.Errorf("SearchPaths() = %v, want user and system entries", got)
	}
}
