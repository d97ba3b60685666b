// SPDX-License-Identifier: MPL-2.0

package workspace

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/notehub/notehub/internal/container"
	"github.com/notehub/notehub/internal/identity"
	"github.com/notehub/notehub/internal/issue"
	"github.com/notehub/notehub/internal/telemetry"
)

const workspaceDirPerm = 0o755

// ErrMissingHostDataRoot is returned before any filesystem mutation when the
// host-visible data root is not configured.
var ErrMissingHostDataRoot = errors.New("host data root (HOST_DATA_PATH) is not set")

var tracer = telemetry.Tracer("github.com/notehub/notehub/internal/workspace")

type (
	// Provisioner prepares user workspaces before session start.
	// It is safe for concurrent use by different users; provisioning the same
	// user concurrently is not guarded.
	Provisioner struct {
		cfg    Config
		logger *log.Logger
		chown  ChownFunc
	}

	// ProvisionerOption is a functional option for configuring a Provisioner.
	ProvisionerOption func(*Provisioner)

	// Status describes the on-disk state of a user's workspace.
	Status struct {
		Identity  identity.UserIdentity
		Username  identity.SanitizedUsername
		Path      string
		Exists    bool
		Entries   int
		HostPath  container.HostFilesystemPath
		Template  string
		HasSource bool
	}
)

// New reports whether the workspace would be seeded under SeedOnce.
func (s Status) New() bool {
	return s.Entries == 0
}

// WithLogger returns a ProvisionerOption that sets the logger.
func WithLogger(logger *log.Logger) ProvisionerOption {
	return func(p *Provisioner) {
		p.logger = logger
	}
}

// WithChownFunc returns a ProvisionerOption that replaces os.Lchown.
func WithChownFunc(fn ChownFunc) ProvisionerOption {
	return func(p *Provisioner) {
		p.chown = fn
	}
}

// NewProvisioner creates a Provisioner for cfg.
func NewProvisioner(cfg Config, opts ...ProvisionerOption) (*Provisioner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Provisioner{
		cfg:    cfg,
		logger: log.New(io.Discard),
		chown:  os.Lchown,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the provisioner's configuration.
func (p *Provisioner) Config() Config {
	return p.cfg
}

// BeforeSessionStart ensures the workspace for id exists and returns the bind
// mount the session container must be created with.
//
// A missing HostDataRoot fails before anything is touched. A missing template
// and failed ownership changes are logged as warnings. Any other filesystem
// error is returned and must abort the session start.
//
// id is used as given; callers pass the output of identity.Normalize.
func (p *Provisioner) BeforeSessionStart(ctx context.Context, id identity.UserIdentity) (mount container.VolumeMount, err error) {
	ctx, span := tracer.Start(ctx, "workspace.BeforeSessionStart")
	defer func() { telemetry.End(span, err) }()

	if strings.TrimSpace(string(p.cfg.HostDataRoot)) == "" {
		return container.VolumeMount{}, missingHostDataRootError()
	}
	if err := id.Validate(); err != nil {
		return container.VolumeMount{}, err
	}

	user := id.Sanitized()
	dir := p.cfg.WorkspacePath(user)
	logger := p.logger.With("user", user)
	span.SetAttributes(attribute.String("notehub.user", string(user)))

	mount = container.VolumeMount{
		HostPath:      p.cfg.HostPath(user),
		ContainerPath: p.cfg.MountTarget,
	}
	if err := mount.Validate(); err != nil {
		return container.VolumeMount{}, invalidMountError(user, err)
	}

	isNew, err := isNewWorkspace(dir)
	if err != nil {
		return container.VolumeMount{}, workspaceIOError("inspect workspace", dir, err)
	}
	span.SetAttributes(attribute.Bool("notehub.workspace.new", isNew))

	switch {
	case isNew:
		logger.Info("provisioning new workspace", "path", dir)
		if err := p.seed(ctx, logger, dir); err != nil {
			return container.VolumeMount{}, err
		}
	case p.cfg.SeedPolicy == SeedAlways:
		logger.Info("refreshing workspace from template", "path", dir)
		if err := p.seed(ctx, logger, dir); err != nil {
			return container.VolumeMount{}, err
		}
	default:
		logger.Info("workspace already provisioned", "path", dir)
	}

	logger.Debug("workspace mount", "host", mount.HostPath, "container", mount.ContainerPath)
	return mount, nil
}

// Inspect reports the state of id's workspace without modifying anything.
func (p *Provisioner) Inspect(id identity.UserIdentity) (Status, error) {
	if err := id.Validate(); err != nil {
		return Status{}, err
	}
	user := id.Sanitized()
	st := Status{
		Identity: id,
		Username: user,
		Path:     p.cfg.WorkspacePath(user),
		Template: p.cfg.TemplatePath(),
	}
	if strings.TrimSpace(string(p.cfg.HostDataRoot)) != "" {
		st.HostPath = p.cfg.HostPath(user)
	}

	entries, err := os.ReadDir(st.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Status{}, workspaceIOError("inspect workspace", st.Path, err)
	default:
		st.Exists = true
		st.Entries = len(entries)
	}

	if fi, err := os.Stat(st.Template); err == nil && fi.IsDir() {
		st.HasSource = true
	}
	return st, nil
}

func (p *Provisioner) seed(ctx context.Context, logger *log.Logger, dir string) error {
	if err := os.MkdirAll(dir, workspaceDirPerm); err != nil {
		return workspaceIOError("create workspace", dir, err)
	}

	template := p.cfg.TemplatePath()
	fi, err := os.Stat(template)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("template workspace not found, workspace left empty", "template", template)
	case err != nil:
		return workspaceIOError("inspect template", template, err)
	case !fi.IsDir():
		logger.Warn("template workspace is not a directory, workspace left empty", "template", template)
	default:
		report, err := CopyTree(ctx, template, dir, p.cfg.CopyFailurePolicy)
		if err != nil {
			return workspaceIOError("seed workspace", dir, err)
		}
		logger.Info("seeded workspace",
			"files", report.Files, "dirs", report.Dirs, "symlinks", report.Symlinks)
		for _, skipped := range report.Skipped {
			logger.Warn("skipped special file", "entry", skipped)
		}
		for _, f := range report.Failures {
			logger.Warn("template entry not copied", "entry", f.Path, "op", f.Op, "err", f.Err)
		}
	}

	if err := ChownTree(dir, p.cfg.Owner, p.chown); err != nil {
		logger.Warn("could not change workspace ownership", "owner", p.cfg.Owner, "err", err)
	}
	return nil
}

// isNewWorkspace reports whether dir is absent or has no entries.
func isNewWorkspace(dir string) (bool, error) {
	f, err := os.Open(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }() // Read-only directory handle

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

func missingHostDataRootError() error {
	return issue.NewErrorContext().
		WithOperation("resolve workspace mount").
		WithKind(issue.KindConfiguration).
		WithSuggestion("Set HOST_DATA_PATH to the host directory that backs the data root").
		WithSuggestion("Or set workspace.host_data_root in the config file").
		Wrap(ErrMissingHostDataRoot).
		BuildError()
}

func invalidMountError(user identity.SanitizedUsername, err error) error {
	return issue.NewErrorContext().
		WithOperation("resolve workspace mount").
		WithResource(string(user)).
		WithKind(issue.KindConfiguration).
		WithSuggestion("Identities containing ':' cannot be bind-mounted").
		Wrap(err).
		BuildError()
}

func workspaceIOError(op, path string, err error) error {
	ctx := issue.NewErrorContext().
		WithOperation(op).
		WithResource(path).
		Wrap(err)
	if errors.Is(err, fs.ErrPermission) {
		ctx.WithSuggestion("Check that the hub process can write to the data root")
	}
	return ctx.BuildError()
}
