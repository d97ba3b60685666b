// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"

	"github.com/notehub/notehub/internal/cueutil"
	"github.com/notehub/notehub/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "notehub"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// ConfigPathEnv names a settings file to load instead of the search path.
	ConfigPathEnv = "NOTEHUB_CONFIG"
	// SystemConfigDir is searched after the user config directory.
	SystemConfigDir = "/etc/notehub"
)

//go:embed config_schema.cue
var configSchema string

type (
	// LoadOptions defines explicit configuration loading inputs.
	LoadOptions struct {
		// ConfigFilePath forces loading from a specific config file when set.
		ConfigFilePath string
		// ConfigDirPath replaces the config directory search path when set.
		ConfigDirPath string
		// Environ replaces the process environment when non-nil.
		Environ map[string]string
	}

	// Provider loads Settings from explicit options.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Settings, error)
	}

	// Loaded pairs Settings with the file they were read from ("" for none).
	Loaded struct {
		Settings *Settings
		Path     string
	}

	fileProvider struct{}
)

// NewProvider creates a configuration provider.
func NewProvider() Provider {
	return &fileProvider{}
}

// Load reads configuration from the requested source.
func (p *fileProvider) Load(ctx context.Context, opts LoadOptions) (*Settings, error) {
	loaded, err := LoadWithPath(ctx, opts)
	if err != nil {
		return nil, err
	}
	return loaded.Settings, nil
}

// ConfigDir returns the per-user notehub configuration directory.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// SearchPaths lists the settings files tried when no file is named explicitly.
func SearchPaths(opts LoadOptions) []string {
	name := ConfigFileName + "." + ConfigFileExt
	if opts.ConfigDirPath != "" {
		return []string{filepath.Join(opts.ConfigDirPath, name)}
	}
	var paths []string
	if dir, err := ConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, name))
	}
	return append(paths, filepath.Join(SystemConfigDir, name))
}

// ResolvePath returns the settings file to read. explicit is true when the file
// was named by LoadOptions or NOTEHUB_CONFIG; otherwise path is the first
// existing search path, or "" when there is none.
func ResolvePath(opts LoadOptions, environ map[string]string) (path string, explicit bool) {
	if opts.ConfigFilePath != "" {
		return opts.ConfigFilePath, true
	}
	if p := environ[ConfigPathEnv]; p != "" {
		return p, true
	}
	for _, candidate := range SearchPaths(opts) {
		if fileExists(candidate) {
			return candidate, false
		}
	}
	return "", false
}

// LoadWithPath is Load that also reports which file was used.
func LoadWithPath(ctx context.Context, opts LoadOptions) (*Loaded, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	environ := opts.Environ
	if environ == nil {
		environ = env.ToMap(os.Environ())
	}

	v := viper.New()
	setDefaults(v, DefaultSettings())

	path, explicit := ResolvePath(opts, environ)
	if explicit && !fileExists(path) {
		return nil, issue.NewErrorContext().
			WithOperation("load configuration").
			WithResource(path).
			WithKind(issue.KindConfiguration).
			WithSuggestion("Verify the file path is correct").
			WithSuggestion("Use 'notehub config show' to see the default configuration").
			Wrap(fmt.Errorf("config file not found: %s", path)).
			BuildError()
	}

	var sessionEnv map[string]string
	if path != "" {
		var err error
		if sessionEnv, err = loadCUEIntoViper(v, path); err != nil {
			return nil, configLoadError(path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	s.Session.Env = sessionEnv

	if err := env.ParseWithOptions(&s, env.Options{Environment: environ}); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("read environment").
			WithKind(issue.KindConfiguration).
			WithSuggestion("Check numeric variables such as HUB_PORT and NOTEHUB_WORKSPACE_UID").
			Wrap(err).
			BuildError()
	}

	return &Loaded{Settings: &s, Path: path}, nil
}

func setDefaults(v *viper.Viper, d *Settings) {
	v.SetDefault("container_engine", d.ContainerEngine)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("otel_endpoint", d.OTelEndpoint)

	v.SetDefault("hub.ip", d.Hub.IP)
	v.SetDefault("hub.connect_ip", d.Hub.ConnectIP)
	v.SetDefault("hub.connect_url", d.Hub.ConnectURL)
	v.SetDefault("hub.port", d.Hub.Port)
	v.SetDefault("hub.bind_url", d.Hub.BindURL)
	v.SetDefault("hub.ssl_key", d.Hub.SSLKey)
	v.SetDefault("hub.ssl_cert", d.Hub.SSLCert)
	v.SetDefault("hub.proxy_api_url", d.Hub.ProxyAPIURL)

	v.SetDefault("oauth.username_claim", d.OAuth.UsernameClaim)
	v.SetDefault("oauth.scopes", d.OAuth.Scopes)

	v.SetDefault("workspace.data_root", d.Workspace.DataRoot)
	v.SetDefault("workspace.template_root", d.Workspace.TemplateRoot)
	v.SetDefault("workspace.mount_target", d.Workspace.MountTarget)
	v.SetDefault("workspace.uid", d.Workspace.UID)
	v.SetDefault("workspace.gid", d.Workspace.GID)
	v.SetDefault("workspace.seed_policy", d.Workspace.SeedPolicy)
	v.SetDefault("workspace.copy_failure_policy", d.Workspace.CopyFailurePolicy)

	v.SetDefault("session.image", d.Session.Image)
	v.SetDefault("session.name_template", d.Session.NameTemplate)
	v.SetDefault("session.network", d.Session.Network)
	v.SetDefault("session.default_url", d.Session.DefaultURL)
	v.SetDefault("session.port", d.Session.Port)
	v.SetDefault("session.pull_policy", d.Session.PullPolicy)
	v.SetDefault("session.remove", d.Session.Remove)
	v.SetDefault("session.use_internal_ip", d.Session.UseInternalIP)
}

// loadCUEIntoViper validates a CUE file against #Settings and merges it into
// Viper. session.env is returned separately because Viper lowercases map keys.
func loadCUEIntoViper(v *viper.Viper, path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	configMap, err := cueutil.DecodeMap(configSchema, data, "#Settings", path)
	if err != nil {
		return nil, err
	}

	var sessionEnv map[string]string
	if sess, ok := configMap["session"].(map[string]any); ok {
		if raw, ok := sess["env"].(map[string]any); ok {
			sessionEnv = make(map[string]string, len(raw))
			for k, val := range raw {
				sessionEnv[k] = fmt.Sprint(val)
			}
			delete(sess, "env")
		}
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}
	return sessionEnv, nil
}

func configLoadError(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithKind(issue.KindConfiguration).
		WithSuggestion("Check that the file contains valid CUE syntax").
		WithSuggestion("Verify the configuration values match the expected schema").
		WithSuggestion("See 'notehub config --help' for configuration options").
		Wrap(err).
		BuildError()
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
