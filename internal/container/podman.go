// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
)

type (
	// PodmanEngine implements the Engine interface using Podman CLI.
	// It embeds BaseCLIEngine for common CLI operations.
	PodmanEngine struct {
		*BaseCLIEngine
	}

	// SELinuxCheckFunc is a function that checks if SELinux is enabled.
	// This allows injection of mock implementations for testing.
	SELinuxCheckFunc func() bool
)

// NewPodmanEngine creates a new Podman engine.
// On Linux with SELinux enabled, volume mounts are automatically labeled with :z.
// Rootless invocations run with --userns=keep-id so the session user keeps
// ownership of the bind-mounted workspace.
func NewPodmanEngine(opts ...BaseCLIEngineOption) *PodmanEngine {
	path, _ := exec.LookPath("podman")

	allOpts := []BaseCLIEngineOption{
		WithName(string(EngineTypePodman)),
		WithVolumeFormatter(selinuxVolumeFormatter(isSELinuxEnabled)),
	}
	if os.Geteuid() > 0 {
		allOpts = append(allOpts, WithRunArgsTransformer(keepIDTransformer))
	}
	allOpts = append(allOpts, opts...)

	return &PodmanEngine{
		BaseCLIEngine: NewBaseCLIEngine(HostFilesystemPath(path), allOpts...),
	}
}

// Name returns the engine name.
func (e *PodmanEngine) Name() string {
	return string(EngineTypePodman)
}

// Available checks if Podman is available.
func (e *PodmanEngine) Available() bool {
	if e.BinaryPath() == "" {
		return false
	}
	return e.RunCommandStatus(context.Background(), "version", "--format", "{{.Version}}") == nil
}

// Version returns the Podman version.
func (e *PodmanEngine) Version(ctx context.Context) (string, error) {
	out, err := e.RunCommand(ctx, "version", "--format", "{{.Version}}")
	if err != nil {
		return "", fmt.Errorf("failed to get podman version: %w", err)
	}
	return out, nil
}

// ImageExists checks if an image exists.
func (e *PodmanEngine) ImageExists(ctx context.Context, image ImageTag) (bool, error) {
	err := e.RunCommandStatus(ctx, "image", "exists", string(image))
	return err == nil, nil
}

// selinuxVolumeFormatter returns a formatter that adds the shared :z label
// when SELinux is enabled and the mount carries no label of its own.
func selinuxVolumeFormatter(enabled SELinuxCheckFunc) VolumeFormatFunc {
	return func(volume VolumeMount) string {
		if volume.SELinux == SELinuxLabelNone && enabled() {
			volume.SELinux = SELinuxLabelShared
		}
		return FormatVolumeMount(volume)
	}
}

// keepIDTransformer inserts --userns=keep-id right after the run subcommand.
func keepIDTransformer(args []string) []string {
	if len(args) == 0 || args[0] != "run" || slices.Contains(args, "--userns=keep-id") {
		return args
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0], "--userns=keep-id")
	return append(out, args[1:]...)
}
