// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/notehub/notehub/internal/auth"
	"github.com/notehub/notehub/internal/config"
	"github.com/notehub/notehub/internal/container"
	"github.com/notehub/notehub/internal/issue"
	"github.com/notehub/notehub/internal/session"
	"github.com/notehub/notehub/internal/telemetry"
	"github.com/notehub/notehub/internal/workspace"
)

// DefaultIssueStyle is the glamour style used for catalog entries.
const DefaultIssueStyle = "dark"

type (
	// App wires CLI services and shared dependencies. It is the composition root
	// for the CLI layer: every Cobra handler receives an App reference and builds
	// the provisioner, spawner and authenticator from the Settings it loads.
	App struct {
		Config     ConfigProvider
		Engines    EngineFactory
		Chown      workspace.ChownFunc
		IssueStyle string
		environ    map[string]string
		stdout     io.Writer
		stderr     io.Writer

		// Set by persistent flags on the root command.
		configPath string
		verbose    bool
	}

	// Dependencies defines the injection points for building an App. Nil fields
	// are replaced with production defaults by NewApp.
	Dependencies struct {
		Config     ConfigProvider
		Engines    EngineFactory
		Chown      workspace.ChownFunc
		IssueStyle string
		// Environ replaces the process environment when non-nil.
		Environ map[string]string
		Stdout  io.Writer
		Stderr  io.Writer
	}

	// ConfigProvider loads settings using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Settings, error)
	}

	// EngineFactory returns the container engine for the configured type.
	EngineFactory func(preferred container.EngineType) (container.Engine, error)

	// runEnv is what a command handler needs once settings are loaded.
	runEnv struct {
		settings *config.Settings
		logger   *log.Logger
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Engines == nil {
		deps.Engines = container.NewEngine
	}
	if deps.IssueStyle == "" {
		deps.IssueStyle = DefaultIssueStyle
	}

	return &App{
		Config:     deps.Config,
		Engines:    deps.Engines,
		Chown:      deps.Chown,
		IssueStyle: deps.IssueStyle,
		environ:    deps.Environ,
		stdout:     deps.Stdout,
		stderr:     deps.Stderr,
	}
}

// loadOptions are the LoadOptions derived from the root flags.
func (a *App) loadOptions() config.LoadOptions {
	return config.LoadOptions{ConfigFilePath: a.configPath, Environ: a.environ}
}

// environment is the variable set settings are resolved against.
func (a *App) environment() map[string]string {
	if a.environ != nil {
		return a.environ
	}
	return env.ToMap(os.Environ())
}

// run loads settings, builds the logger and tracer provider and calls fn.
// Errors are decorated with the matching catalog entry and an exit code.
func (a *App) run(cmd *cobra.Command, fn func(ctx context.Context, rt *runEnv) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := a.Config.Load(ctx, a.loadOptions())
	if err != nil {
		a.renderIssue(issue.ConfigLoadFailedId)
		return a.fail(err)
	}
	if err := s.Validate(); err != nil {
		a.renderIssue(issue.ConfigLoadFailedId)
		return a.fail(issue.NewErrorContext().
			WithOperation("validate configuration").
			WithKind(issue.KindConfiguration).
			WithSuggestion("Run 'notehub config show' to inspect the effective settings").
			Wrap(err).
			BuildError())
	}

	logger := a.newLogger(s)

	shutdown, err := telemetry.Setup(ctx, s.OTelEndpoint, Version)
	if err != nil {
		logger.Warn("tracing disabled", "endpoint", s.OTelEndpoint, "err", err)
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Debug("flush traces", "err", err)
		}
	}()

	if err := fn(ctx, &runEnv{settings: s, logger: logger}); err != nil {
		if id, ok := issueFor(err); ok {
			a.renderIssue(id)
		}
		return a.fail(err)
	}
	return nil
}

// fail wraps err in an ExitError, printing actionable details first.
func (a *App) fail(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	var ae *issue.ActionableError
	if errors.As(err, &ae) && (ae.HasSuggestions() || a.verbose) {
		fmt.Fprintln(a.stderr, ErrorStyle.Render("Error: ")+ae.Format(a.verbose))
	}
	return &ExitError{Code: exitCodeFor(err), Err: err}
}

// newLogger builds the root logger. --verbose forces debug level.
func (a *App) newLogger(s *config.Settings) *log.Logger {
	level, err := log.ParseLevel(s.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	if a.verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(a.stderr, log.Options{
		Level:           level,
		Prefix:          "notehub",
		ReportTimestamp: true,
	})
}

func (a *App) renderIssue(id issue.Id) {
	entry := issue.Get(id)
	if entry == nil {
		return
	}
	rendered, err := entry.Render(a.IssueStyle)
	if err != nil {
		rendered = entry.Markdown()
	}
	fmt.Fprint(a.stderr, rendered)
}

func (rt *runEnv) provisioner(chown workspace.ChownFunc) (*workspace.Provisioner, error) {
	opts := []workspace.ProvisionerOption{
		workspace.WithLogger(rt.logger.WithPrefix("workspace")),
	}
	if chown != nil {
		opts = append(opts, workspace.WithChownFunc(chown))
	}
	return workspace.NewProvisioner(rt.settings.WorkspaceConfig(), opts...)
}

func (rt *runEnv) spawner(a *App) (*session.Spawner, error) {
	engine, err := a.Engines(rt.settings.ContainerEngine)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("select container engine").
			WithResource(rt.settings.ContainerEngine.String()).
			WithKind(issue.KindPlatform).
			WithSuggestion("Install docker or podman, or set NOTEHUB_CONTAINER_ENGINE").
			Wrap(err).
			BuildError()
	}
	prov, err := rt.provisioner(a.Chown)
	if err != nil {
		return nil, err
	}
	return session.NewSpawner(engine, prov, rt.settings.SpawnConfig(),
		session.WithAccessChecker(rt.settings.AccessPolicy()),
		session.WithLogger(rt.logger.WithPrefix("session")),
	)
}

func (rt *runEnv) authenticator() (*auth.Authenticator, error) {
	if err := rt.settings.RequireAuth(); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("configure authenticator").
			WithKind(issue.KindConfiguration).
			WithSuggestion("Set the OAUTH_* environment variables or the oauth section of the settings file").
			Wrap(err).
			BuildError()
	}
	return auth.NewAuthenticator(rt.settings.AuthConfig())
}
