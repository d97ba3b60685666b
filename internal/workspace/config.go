// SPDX-License-Identifier: MPL-2.0

package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/notehub/notehub/internal/container"
	"github.com/notehub/notehub/internal/identity"
)

const (
	// SeedOnce copies the template only into a new (absent or empty) workspace.
	SeedOnce SeedPolicy = "once"
	// SeedAlways copies the template on every session start. Files present in
	// the template are overwritten; files only the user has are left alone.
	SeedAlways SeedPolicy = "always"

	// CopyAbort stops seeding at the first entry that fails to copy.
	CopyAbort CopyFailurePolicy = "abort"
	// CopyContinue records failed entries and keeps copying.
	CopyContinue CopyFailurePolicy = "continue"

	// TemplateName is the subdirectory of the template root that seeds new workspaces.
	TemplateName = "default"

	DefaultDataRoot     = "/srv/notehub/users"
	DefaultTemplateRoot = "/srv/notehub/workspaces"
	DefaultMountTarget  = container.MountTargetPath("/home/jovyan/work")

	// DefaultUID and DefaultGID are the jovyan:users pair of the notebook images.
	DefaultUID = 1000
	DefaultGID = 100
)

var (
	// ErrInvalidSeedPolicy is the sentinel error wrapped by InvalidSeedPolicyError.
	ErrInvalidSeedPolicy = errors.New("invalid seed policy")

	// ErrInvalidCopyFailurePolicy is the sentinel error wrapped by InvalidCopyFailurePolicyError.
	ErrInvalidCopyFailurePolicy = errors.New("invalid copy failure policy")

	// ErrInvalidOwner is the sentinel error wrapped by InvalidOwnerError.
	ErrInvalidOwner = errors.New("invalid workspace owner")

	// ErrInvalidConfig is returned by Config.Validate when one or more fields are invalid.
	ErrInvalidConfig = errors.New("invalid workspace config")
)

type (
	// SeedPolicy decides when the template is copied into a workspace.
	SeedPolicy string

	// CopyFailurePolicy decides what happens when a template entry fails to copy.
	CopyFailurePolicy string

	// InvalidSeedPolicyError is returned when a SeedPolicy is not recognized.
	InvalidSeedPolicyError struct {
		Value SeedPolicy
	}

	// InvalidCopyFailurePolicyError is returned when a CopyFailurePolicy is not recognized.
	InvalidCopyFailurePolicyError struct {
		Value CopyFailurePolicy
	}

	// Owner is the uid/gid pair workspaces are handed to.
	Owner struct {
		UID int
		GID int
	}

	// InvalidOwnerError is returned when an Owner cannot be parsed or has negative ids.
	InvalidOwnerError struct {
		Value string
	}

	// Config holds the workspace layout. Build it once and share it; the
	// Provisioner never modifies it.
	Config struct {
		// DataRoot is the base data path workspaces are created under, as seen by this process.
		DataRoot string

		// TemplateRoot holds the TemplateName directory used to seed new workspaces.
		TemplateRoot string

		// HostDataRoot is DataRoot as seen by the container engine's host.
		// It is only used to build bind-mount sources and is never accessed locally.
		HostDataRoot container.HostFilesystemPath

		// MountTarget is where the workspace appears inside the session container.
		MountTarget container.MountTargetPath

		Owner Owner

		SeedPolicy        SeedPolicy
		CopyFailurePolicy CopyFailurePolicy
	}

	// Option is a functional option for configuring a Config.
	Option func(*Config)
)

// Validate returns an error if the SeedPolicy is not one of the defined policies.
func (p SeedPolicy) Validate() error {
	switch p {
	case SeedOnce, SeedAlways:
		return nil
	default:
		return &InvalidSeedPolicyError{Value: p}
	}
}

func (p SeedPolicy) String() string { return string(p) }

func (e *InvalidSeedPolicyError) Error() string {
	return fmt.Sprintf("invalid seed policy %q (valid: once, always)", e.Value)
}

func (e *InvalidSeedPolicyError) Unwrap() error { return ErrInvalidSeedPolicy }

// Validate returns an error if the CopyFailurePolicy is not one of the defined policies.
func (p CopyFailurePolicy) Validate() error {
	switch p {
	case CopyAbort, CopyContinue:
		return nil
	default:
		return &InvalidCopyFailurePolicyError{Value: p}
	}
}

func (p CopyFailurePolicy) String() string { return string(p) }

func (e *InvalidCopyFailurePolicyError) Error() string {
	return fmt.Sprintf("invalid copy failure policy %q (valid: abort, continue)", e.Value)
}

func (e *InvalidCopyFailurePolicyError) Unwrap() error { return ErrInvalidCopyFailurePolicy }

// ParseOwner parses "uid:gid" (for example "1000:100").
func ParseOwner(s string) (Owner, error) {
	uidStr, gidStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Owner{}, &InvalidOwnerError{Value: s}
	}
	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		return Owner{}, &InvalidOwnerError{Value: s}
	}
	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return Owner{}, &InvalidOwnerError{Value: s}
	}
	o := Owner{UID: uid, GID: gid}
	if err := o.Validate(); err != nil {
		return Owner{}, err
	}
	return o, nil
}

// Validate returns an error if either id is negative.
func (o Owner) Validate() error {
	if o.UID < 0 || o.GID < 0 {
		return &InvalidOwnerError{Value: o.String()}
	}
	return nil
}

func (o Owner) String() string {
	return strconv.Itoa(o.UID) + ":" + strconv.Itoa(o.GID)
}

func (e *InvalidOwnerError) Error() string {
	return fmt.Sprintf("invalid workspace owner %q (want uid:gid with non-negative ids)", e.Value)
}

func (e *InvalidOwnerError) Unwrap() error { return ErrInvalidOwner }

// DefaultConfig returns a Config with default values. HostDataRoot has no
// default and must be supplied.
func DefaultConfig() Config {
	return Config{
		DataRoot:          DefaultDataRoot,
		TemplateRoot:      DefaultTemplateRoot,
		MountTarget:       DefaultMountTarget,
		Owner:             Owner{UID: DefaultUID, GID: DefaultGID},
		SeedPolicy:        SeedOnce,
		CopyFailurePolicy: CopyAbort,
	}
}

// NewConfig returns DefaultConfig with opts applied.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	return cfg
}

// Apply applies the given options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// WithDataRoot returns an Option that sets DataRoot.
func WithDataRoot(dir string) Option {
	return func(c *Config) {
		c.DataRoot = dir
	}
}

// WithTemplateRoot returns an Option that sets TemplateRoot.
func WithTemplateRoot(dir string) Option {
	return func(c *Config) {
		c.TemplateRoot = dir
	}
}

// WithHostDataRoot returns an Option that sets HostDataRoot.
func WithHostDataRoot(dir container.HostFilesystemPath) Option {
	return func(c *Config) {
		c.HostDataRoot = dir
	}
}

// WithMountTarget returns an Option that sets MountTarget.
func WithMountTarget(target container.MountTargetPath) Option {
	return func(c *Config) {
		c.MountTarget = target
	}
}

// WithOwner returns an Option that sets Owner.
func WithOwner(owner Owner) Option {
	return func(c *Config) {
		c.Owner = owner
	}
}

// WithSeedPolicy returns an Option that sets SeedPolicy.
func WithSeedPolicy(policy SeedPolicy) Option {
	return func(c *Config) {
		c.SeedPolicy = policy
	}
}

// WithCopyFailurePolicy returns an Option that sets CopyFailurePolicy.
func WithCopyFailurePolicy(policy CopyFailurePolicy) Option {
	return func(c *Config) {
		c.CopyFailurePolicy = policy
	}
}

// Validate checks every field except HostDataRoot, which is checked when a
// workspace is provisioned so a hub without it can still inspect workspaces.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DataRoot) == "" {
		errs = append(errs, errors.New("data root must be non-empty"))
	}
	if strings.TrimSpace(c.TemplateRoot) == "" {
		errs = append(errs, errors.New("template root must be non-empty"))
	}
	if err := c.MountTarget.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Owner.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.SeedPolicy.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.CopyFailurePolicy.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// WorkspacePath returns DataRoot/<user>.
func (c Config) WorkspacePath(user identity.SanitizedUsername) string {
	return filepath.Join(c.DataRoot, string(user))
}

// TemplatePath returns TemplateRoot/default.
func (c Config) TemplatePath() string {
	return filepath.Join(c.TemplateRoot, TemplateName)
}

// HostPath returns HostDataRoot/<user>.
func (c Config) HostPath(user identity.SanitizedUsername) container.HostFilesystemPath {
	return container.HostFilesystemPath(filepath.Join(string(c.HostDataRoot), string(user)))
}
