// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os/exec"
	"slices"
	"strings"

	"github.com/notehub/notehub/internal/issue"
)

const (
	// SELinuxLabelNone means no SELinux label is applied to volume mounts.
	SELinuxLabelNone SELinuxLabel = ""
	// SELinuxLabelShared allows sharing the volume between containers.
	SELinuxLabelShared SELinuxLabel = "z"
	// SELinuxLabelPrivate restricts the volume to a single container.
	SELinuxLabelPrivate SELinuxLabel = "Z"

	reasonEmpty     = "must be non-empty"
	reasonSeparator = "must not contain ':'"
)

var (
	// ErrInvalidSELinuxLabel is the sentinel error wrapped by InvalidSELinuxLabelError.
	ErrInvalidSELinuxLabel = errors.New("invalid SELinux label")

	// ErrInvalidHostFilesystemPath is the sentinel error wrapped by InvalidHostFilesystemPathError.
	ErrInvalidHostFilesystemPath = errors.New("invalid host filesystem path")

	// ErrInvalidMountTargetPath is the sentinel error wrapped by InvalidMountTargetPathError.
	ErrInvalidMountTargetPath = errors.New("invalid container filesystem path")

	// ErrInvalidVolumeMount is the sentinel error wrapped by InvalidVolumeMountError.
	ErrInvalidVolumeMount = errors.New("invalid volume mount")
)

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// VolumeFormatFunc formats a volume mount for the -v flag.
	// Podman uses this to add SELinux labels (:z) which are required in
	// SELinux-enforcing environments; without them, container processes cannot
	// access bind-mounted host paths.
	VolumeFormatFunc func(volume VolumeMount) string

	// RunArgsTransformer modifies run arguments after they're built.
	// Used by Podman to inject --userns=keep-id for rootless compatibility.
	RunArgsTransformer func(args []string) []string

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine provides common implementation for CLI-based container engines.
	// Docker and Podman engines embed this struct. Methods that are identical across
	// both CLIs are implemented here; engine-specific methods (Available, Version,
	// ImageExists) remain on the concrete types.
	BaseCLIEngine struct {
		name               string // Engine name for error messages (e.g., "docker", "podman")
		binaryPath         HostFilesystemPath
		execCommand        ExecCommandFunc
		volumeFormatter    VolumeFormatFunc
		runArgsTransformer RunArgsTransformer
	}

	// CommandError is returned when an engine CLI invocation fails.
	// Stderr is kept so callers can classify the failure (see IsTransientError).
	CommandError struct {
		Binary string
		Args   []string
		Stderr string
		Err    error
	}

	// SELinuxLabel represents an SELinux volume labeling option.
	// The zero value ("") means no SELinux label is applied.
	SELinuxLabel string

	// InvalidSELinuxLabelError is returned when an SELinuxLabel is not a recognized label.
	InvalidSELinuxLabelError struct {
		Value SELinuxLabel
	}

	// HostFilesystemPath represents a filesystem path on the host for volume mounts.
	// A valid path must be non-empty, not whitespace-only and free of ':'
	// outside a leading drive letter, since ':' separates -v fields.
	HostFilesystemPath string

	// InvalidHostFilesystemPathError is returned when a HostFilesystemPath is
	// empty, whitespace-only or contains a field separator.
	InvalidHostFilesystemPathError struct {
		Value  HostFilesystemPath
		Reason string
	}

	// MountTargetPath represents a filesystem path inside a container for volume mounts.
	// A valid path must be non-empty, not whitespace-only and free of ':'.
	MountTargetPath string

	// InvalidMountTargetPathError is returned when a MountTargetPath is empty,
	// whitespace-only or contains a field separator.
	InvalidMountTargetPathError struct {
		Value  MountTargetPath
		Reason string
	}

	// VolumeMount represents a bind mount.
	VolumeMount struct {
		HostPath      HostFilesystemPath
		ContainerPath MountTargetPath
		ReadOnly      bool
		SELinux       SELinuxLabel
	}

	// InvalidVolumeMountError is returned when a VolumeMount has one or more invalid fields.
	// It wraps the individual field validation errors for inspection.
	InvalidVolumeMountError struct {
		Value     VolumeMount
		FieldErrs []error
	}
)

// Error implements the error interface for CommandError.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %s %v failed: %v", e.Binary, e.Args, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Unwrap returns the underlying exec error.
func (e *CommandError) Unwrap() error { return e.Err }

// Error implements the error interface.
func (e *InvalidSELinuxLabelError) Error() string {
	return fmt.Sprintf("invalid SELinux label %q (valid: empty, z, Z)", e.Value)
}

// Unwrap returns ErrInvalidSELinuxLabel so callers can use errors.Is for programmatic detection.
func (e *InvalidSELinuxLabelError) Unwrap() error { return ErrInvalidSELinuxLabel }

// Validate returns an error if the SELinuxLabel is not one of the defined labels.
func (s SELinuxLabel) Validate() error {
	switch s {
	case SELinuxLabelNone, SELinuxLabelShared, SELinuxLabelPrivate:
		return nil
	default:
		return &InvalidSELinuxLabelError{Value: s}
	}
}

// String returns the string representation of the SELinuxLabel.
func (s SELinuxLabel) String() string { return string(s) }

// String returns the string representation of the HostFilesystemPath.
func (p HostFilesystemPath) String() string { return string(p) }

// Validate returns an error if the HostFilesystemPath is empty, whitespace-only
// or contains ':' anywhere but after a leading drive letter.
func (p HostFilesystemPath) Validate() error {
	s := string(p)
	if strings.TrimSpace(s) == "" {
		return &InvalidHostFilesystemPathError{Value: p, Reason: reasonEmpty}
	}
	if hasDriveLetter(s) {
		s = s[2:]
	}
	if strings.Contains(s, ":") {
		return &InvalidHostFilesystemPathError{Value: p, Reason: reasonSeparator}
	}
	return nil
}

// Error implements the error interface for InvalidHostFilesystemPathError.
func (e *InvalidHostFilesystemPathError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = reasonEmpty
	}
	return fmt.Sprintf("invalid host filesystem path %q: %s", e.Value, reason)
}

// Unwrap returns ErrInvalidHostFilesystemPath for errors.Is() compatibility.
func (e *InvalidHostFilesystemPathError) Unwrap() error { return ErrInvalidHostFilesystemPath }

// String returns the string representation of the MountTargetPath.
func (p MountTargetPath) String() string { return string(p) }

// Validate returns an error if the MountTargetPath is empty, whitespace-only
// or contains ':'.
func (p MountTargetPath) Validate() error {
	switch {
	case strings.TrimSpace(string(p)) == "":
		return &InvalidMountTargetPathError{Value: p, Reason: reasonEmpty}
	case strings.Contains(string(p), ":"):
		return &InvalidMountTargetPathError{Value: p, Reason: reasonSeparator}
	}
	return nil
}

// Error implements the error interface for InvalidMountTargetPathError.
func (e *InvalidMountTargetPathError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = reasonEmpty
	}
	return fmt.Sprintf("invalid container filesystem path %q: %s", e.Value, reason)
}

// hasDriveLetter reports whether s starts with a Windows drive such as "C:".
func hasDriveLetter(s string) bool {
	if len(s) < 2 || s[1] != ':' {
		return false
	}
	c := s[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// Unwrap returns ErrInvalidMountTargetPath for errors.Is() compatibility.
func (e *InvalidMountTargetPathError) Unwrap() error { return ErrInvalidMountTargetPath }

// Error implements the error interface for InvalidVolumeMountError.
func (e *InvalidVolumeMountError) Error() string {
	return fmt.Sprintf("invalid volume mount %s:%s: %v",
		e.Value.HostPath, e.Value.ContainerPath, errors.Join(e.FieldErrs...))
}

// Unwrap returns the sentinel and every field error for errors.Is() compatibility.
func (e *InvalidVolumeMountError) Unwrap() []error {
	return append([]error{ErrInvalidVolumeMount}, e.FieldErrs...)
}

// Validate returns an error if any typed field of the VolumeMount is invalid.
func (v VolumeMount) Validate() error {
	var errs []error
	if err := v.HostPath.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := v.ContainerPath.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := v.SELinux.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &InvalidVolumeMountError{Value: v, FieldErrs: errs}
	}
	return nil
}

// String returns the volume mount in the -v flag format.
func (v VolumeMount) String() string {
	return FormatVolumeMount(v)
}

// --- Option Functions ---

// WithName sets the engine name used in error messages.
func WithName(name string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.name = name
	}
}

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// WithVolumeFormatter sets a custom volume formatter function.
// This is used by Podman to add SELinux labels on Linux.
func WithVolumeFormatter(fn VolumeFormatFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.volumeFormatter = fn
	}
}

// WithRunArgsTransformer sets a custom run args transformer.
func WithRunArgsTransformer(fn RunArgsTransformer) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.runArgsTransformer = fn
	}
}

// --- Constructor ---

// NewBaseCLIEngine creates a new base engine with the given binary path.
func NewBaseCLIEngine(binaryPath HostFilesystemPath, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		binaryPath:         binaryPath,
		execCommand:        exec.CommandContext,
		volumeFormatter:    FormatVolumeMount,
		runArgsTransformer: func(args []string) []string { return args },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// --- Accessor Methods ---

// BinaryPath returns the path to the container engine binary.
func (e *BaseCLIEngine) BinaryPath() string {
	return string(e.binaryPath)
}

// --- Argument Builders ---

// RunArgs constructs arguments for a detached container run command.
// Environment variables and labels are emitted in sorted key order so the
// command line is stable.
//
// Generated command: <binary> run -d [options] <image> [command...]
func (e *BaseCLIEngine) RunArgs(opts RunOptions) []string {
	args := []string{"run", "-d"}

	if opts.Remove {
		args = append(args, "--rm")
	}

	if opts.Name != "" {
		args = append(args, "--name", string(opts.Name))
	}

	if opts.Network != "" {
		args = append(args, "--network", string(opts.Network))
	}

	if opts.WorkDir != "" {
		args = append(args, "-w", string(opts.WorkDir))
	}

	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		args = append(args, "-e", k+"="+opts.Env[k])
	}

	for _, k := range slices.Sorted(maps.Keys(opts.Labels)) {
		args = append(args, "--label", k+"="+opts.Labels[k])
	}

	for _, v := range opts.Volumes {
		args = append(args, "-v", e.volumeFormatter(v))
	}

	args = append(args, string(opts.Image))
	args = append(args, opts.Command...)

	return e.runArgsTransformer(args)
}

// PullArgs constructs arguments for an image pull command.
func (e *BaseCLIEngine) PullArgs(image ImageTag) []string {
	return []string{"pull", string(image)}
}

// StartArgs constructs arguments for a container start command.
func (e *BaseCLIEngine) StartArgs(containerID ContainerID) []string {
	return []string{"start", string(containerID)}
}

// StopArgs constructs arguments for a container stop command.
func (e *BaseCLIEngine) StopArgs(containerID ContainerID) []string {
	return []string{"stop", string(containerID)}
}

// RemoveArgs constructs arguments for a container remove command.
func (e *BaseCLIEngine) RemoveArgs(containerID ContainerID, force bool) []string {
	args := []string{"rm"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, string(containerID))
	return args
}

// StateArgs constructs arguments for inspecting a container's status.
func (e *BaseCLIEngine) StateArgs(containerID ContainerID) []string {
	return []string{"container", "inspect", "--format", "{{.State.Status}}", string(containerID)}
}

// IPArgs constructs arguments for inspecting a container's address.
// Without a network the engine's default bridge address is reported.
func (e *BaseCLIEngine) IPArgs(containerID ContainerID, network NetworkName) []string {
	format := "{{.NetworkSettings.IPAddress}}"
	if network != "" {
		format = fmt.Sprintf("{{(index .NetworkSettings.Networks %q).IPAddress}}", string(network))
	}
	return []string{"container", "inspect", "--format", format, string(containerID)}
}

// --- Command Execution ---

// CreateCommand creates an exec.Cmd for the given arguments.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	return e.execCommand(ctx, string(e.binaryPath), args...)
}

// RunCommand executes a command and returns its trimmed stdout.
// On failure the returned *CommandError carries the command's stderr.
func (e *BaseCLIEngine) RunCommand(ctx context.Context, args ...string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &CommandError{
			Binary: string(e.binaryPath),
			Args:   args,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// RunCommandStatus executes a command and returns only the error status.
func (e *BaseCLIEngine) RunCommandStatus(ctx context.Context, args ...string) error {
	_, err := e.RunCommand(ctx, args...)
	return err
}

// --- Promoted Engine Methods (shared by Docker and Podman) ---

// Pull fetches an image.
func (e *BaseCLIEngine) Pull(ctx context.Context, image ImageTag) error {
	if err := image.Validate(); err != nil {
		return err
	}
	if err := e.RunCommandStatus(ctx, e.PullArgs(image)...); err != nil {
		return pullImageError(e.name, image, err)
	}
	return nil
}

// Run creates and starts a detached container and returns the ID printed by the engine.
// It validates RunOptions before executing to catch invalid fields early.
func (e *BaseCLIEngine) Run(ctx context.Context, opts RunOptions) (ContainerID, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}

	out, err := e.RunCommand(ctx, e.RunArgs(opts)...)
	if err != nil {
		return "", runContainerError(e.name, opts, err)
	}

	// Engines may print pull progress before the ID; the ID is the last line.
	lines := strings.Split(out, "\n")
	return ContainerID(strings.TrimSpace(lines[len(lines)-1])), nil
}

// Start starts an existing container.
func (e *BaseCLIEngine) Start(ctx context.Context, containerID ContainerID) error {
	return e.RunCommandStatus(ctx, e.StartArgs(containerID)...)
}

// Stop stops a running container.
func (e *BaseCLIEngine) Stop(ctx context.Context, containerID ContainerID) error {
	return e.RunCommandStatus(ctx, e.StopArgs(containerID)...)
}

// Remove removes a container.
func (e *BaseCLIEngine) Remove(ctx context.Context, containerID ContainerID, force bool) error {
	return e.RunCommandStatus(ctx, e.RemoveArgs(containerID, force)...)
}

// ContainerState reports the status of a container; a missing container is not an error.
func (e *BaseCLIEngine) ContainerState(ctx context.Context, containerID ContainerID) (ContainerState, error) {
	out, err := e.RunCommand(ctx, e.StateArgs(containerID)...)
	if err != nil {
		if isNoSuchContainer(err) {
			return StateMissing, nil
		}
		return StateMissing, err
	}
	return ContainerState(out), nil
}

// ContainerIP returns the container's IP address on network.
func (e *BaseCLIEngine) ContainerIP(ctx context.Context, containerID ContainerID, network NetworkName) (string, error) {
	out, err := e.RunCommand(ctx, e.IPArgs(containerID, network)...)
	if err != nil {
		return "", err
	}
	if out == "" || out == "<no value>" {
		return "", fmt.Errorf("container %s has no address on network %q", containerID, network)
	}
	return out, nil
}

// isNoSuchContainer reports whether err is the engine's "no such container" failure.
// Docker prints "No such object"/"No such container"; Podman prints "no such container".
func isNoSuchContainer(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	return strings.Contains(strings.ToLower(cmdErr.Stderr), "no such")
}

// --- Volume Mount Formatting ---

// FormatVolumeMount formats a volume mount as a string for -v flag.
func FormatVolumeMount(mount VolumeMount) string {
	var result strings.Builder
	result.WriteString(string(mount.HostPath))
	result.WriteString(":")
	result.WriteString(string(mount.ContainerPath))

	var options []string
	if mount.ReadOnly {
		options = append(options, "ro")
	}
	if mount.SELinux != "" {
		options = append(options, string(mount.SELinux))
	}

	if len(options) > 0 {
		result.WriteString(":")
		result.WriteString(strings.Join(options, ","))
	}

	return result.String()
}

// ParseVolumeMount parses a volume string into a VolumeMount struct.
// Volume format: host_path:container_path[:options]
// Options can include: ro, rw, z, Z, and others.
// After parsing, the result is validated via VolumeMount.Validate().
func ParseVolumeMount(volume string) (VolumeMount, error) {
	mount := VolumeMount{}

	parts := strings.Split(volume, ":")

	if len(parts) >= 1 {
		mount.HostPath = HostFilesystemPath(parts[0])
	}
	if len(parts) >= 2 {
		mount.ContainerPath = MountTargetPath(parts[1])
	}
	if len(parts) >= 3 {
		for opt := range strings.SplitSeq(parts[2], ",") {
			switch opt {
			case "ro":
				mount.ReadOnly = true
			case "z", "Z":
				mount.SELinux = SELinuxLabel(opt)
			}
		}
	}

	if err := mount.Validate(); err != nil {
		return mount, err
	}
	return mount, nil
}

// --- Actionable Error Helpers ---

// pullImageError creates an actionable error for image pull failures.
func pullImageError(engine string, image ImageTag, cause error) error {
	return issue.NewErrorContext().
		WithOperation("pull session image").
		WithResource(string(image)).
		WithSuggestion("Check the image reference and registry credentials").
		WithSuggestion("Pre-pull the image on the host (try: " + engine + " pull " + string(image) + ")").
		Wrap(cause).
		BuildError()
}

// runContainerError creates an actionable error for container run failures.
func runContainerError(engine string, opts RunOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("start session container").
		WithResource(string(opts.Image))

	ctx.WithSuggestion("Verify the image exists (try: " + engine + " images)")
	ctx.WithSuggestion("Check that the workspace mount source exists on the host")
	if opts.Network != "" {
		ctx.WithSuggestion("Ensure the network exists (try: " + engine + " network inspect " + string(opts.Network) + ")")
	}
	if opts.Name != "" {
		ctx.WithSuggestion("Remove a conflicting container (try: " + engine + " rm -f " + string(opts.Name) + ")")
	}

	return ctx.Wrap(cause).BuildError()
}
