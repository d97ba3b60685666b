// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	// EngineTypePodman selects the Podman CLI.
	EngineTypePodman EngineType = "podman"
	// EngineTypeDocker selects the Docker CLI.
	EngineTypeDocker EngineType = "docker"

	// StateMissing means no container with the requested name or ID exists.
	StateMissing ContainerState = ""
	// StateCreated means the container exists but was never started.
	StateCreated ContainerState = "created"
	// StateRunning means the container is running.
	StateRunning ContainerState = "running"
	// StateExited means the container ran and stopped.
	StateExited ContainerState = "exited"
)

var (
	// ErrInvalidEngineType is the sentinel error wrapped by InvalidEngineTypeError.
	ErrInvalidEngineType = errors.New("invalid container engine type")
	// ErrInvalidImageTag is the sentinel error wrapped by InvalidImageTagError.
	ErrInvalidImageTag = errors.New("invalid image tag")
	// ErrInvalidRunOptions is returned when RunOptions fail validation.
	ErrInvalidRunOptions = errors.New("invalid run options")
)

type (
	// Engine defines the container operations needed to host a session.
	Engine interface {
		// Name returns the engine name (docker or podman)
		Name() string
		// Available checks if the engine is available on the system
		Available() bool
		// Version returns the engine version
		Version(ctx context.Context) (string, error)

		// ImageExists checks if an image is present locally
		ImageExists(ctx context.Context, image ImageTag) (bool, error)
		// Pull fetches an image from its registry
		Pull(ctx context.Context, image ImageTag) error
		// Run creates and starts a detached container and returns its ID
		Run(ctx context.Context, opts RunOptions) (ContainerID, error)
		// Start starts an existing, stopped container
		Start(ctx context.Context, containerID ContainerID) error
		// Stop stops a running container
		Stop(ctx context.Context, containerID ContainerID) error
		// Remove removes a container
		Remove(ctx context.Context, containerID ContainerID, force bool) error
		// ContainerState reports the state of a container by name or ID.
		// A missing container yields StateMissing and a nil error.
		ContainerState(ctx context.Context, containerID ContainerID) (ContainerState, error)
		// ContainerIP returns the container's address on the given network
		ContainerIP(ctx context.Context, containerID ContainerID, network NetworkName) (string, error)
	}

	// EngineType identifies the container engine type.
	EngineType string

	// InvalidEngineTypeError is returned when an EngineType value is not recognized.
	InvalidEngineTypeError struct {
		Value EngineType
	}

	// ImageTag is a container image reference (e.g., "quay.io/jupyter/base-notebook:latest").
	ImageTag string

	// InvalidImageTagError is returned when an ImageTag is empty or whitespace-only.
	InvalidImageTagError struct {
		Value ImageTag
	}

	// ContainerID is a container ID or name accepted by the engine CLI.
	ContainerID string

	// NetworkName is a container network the session joins.
	NetworkName string

	// ContainerState is the engine-reported lifecycle state of a container.
	ContainerState string

	// RunOptions contains options for starting a detached session container.
	RunOptions struct {
		// Image is the image to run
		Image ImageTag
		// Name is the container name
		Name ContainerID
		// Network is the network to attach the container to
		Network NetworkName
		// WorkDir is the working directory inside the container
		WorkDir MountTargetPath
		// Env contains environment variables
		Env map[string]string
		// Labels are container labels
		Labels map[string]string
		// Volumes are bind mounts
		Volumes []VolumeMount
		// Remove automatically removes the container after it stops
		Remove bool
		// Command overrides the image command
		Command []string
	}

	// ErrEngineNotAvailable is returned when a container engine is not available.
	ErrEngineNotAvailable struct {
		Engine string
		Reason string
	}
)

// String returns the string representation of the EngineType.
func (t EngineType) String() string { return string(t) }

// Validate returns an error if the EngineType is not podman or docker.
func (t EngineType) Validate() error {
	switch t {
	case EngineTypePodman, EngineTypeDocker:
		return nil
	default:
		return &InvalidEngineTypeError{Value: t}
	}
}

// Error implements the error interface for InvalidEngineTypeError.
func (e *InvalidEngineTypeError) Error() string {
	return fmt.Sprintf("invalid container engine type %q (valid: podman, docker)", e.Value)
}

// Unwrap returns ErrInvalidEngineType for errors.Is() compatibility.
func (e *InvalidEngineTypeError) Unwrap() error { return ErrInvalidEngineType }

// String returns the string representation of the ImageTag.
func (t ImageTag) String() string { return string(t) }

// Validate returns an error if the ImageTag is empty or whitespace-only.
func (t ImageTag) Validate() error {
	if strings.TrimSpace(string(t)) == "" {
		return &InvalidImageTagError{Value: t}
	}
	return nil
}

// Error implements the error interface for InvalidImageTagError.
func (e *InvalidImageTagError) Error() string {
	return fmt.Sprintf("invalid image tag %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidImageTag for errors.Is() compatibility.
func (e *InvalidImageTagError) Unwrap() error { return ErrInvalidImageTag }

// String returns the string representation of the ContainerID.
func (id ContainerID) String() string { return string(id) }

// String returns the string representation of the NetworkName.
func (n NetworkName) String() string { return string(n) }

// String returns the string representation of the ContainerState.
func (s ContainerState) String() string {
	if s == StateMissing {
		return "missing"
	}
	return string(s)
}

// Validate returns an error if the image or any volume mount is invalid.
func (o RunOptions) Validate() error {
	var errs []error
	if err := o.Image.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, v := range o.Volumes {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRunOptions, errors.Join(errs...))
	}
	return nil
}

func (e *ErrEngineNotAvailable) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// NewEngine creates a new container engine based on preference
func NewEngine(preferredType EngineType) (Engine, error) {
	switch preferredType {
	case EngineTypePodman:
		engine := NewPodmanEngine()
		if engine.Available() {
			return engine, nil
		}
		// Fall back to Docker
		dockerEngine := NewDockerEngine()
		if dockerEngine.Available() {
			return dockerEngine, nil
		}
		return nil, &ErrEngineNotAvailable{
			Engine: "podman",
			Reason: "podman is not installed or not accessible, and docker fallback is also not available",
		}

	case EngineTypeDocker:
		engine := NewDockerEngine()
		if engine.Available() {
			return engine, nil
		}
		// Fall back to Podman
		podmanEngine := NewPodmanEngine()
		if podmanEngine.Available() {
			return podmanEngine, nil
		}
		return nil, &ErrEngineNotAvailable{
			Engine: "docker",
			Reason: "docker is not installed or not accessible, and podman fallback is also not available",
		}

	default:
		return nil, &InvalidEngineTypeError{Value: preferredType}
	}
}

// AutoDetectEngine tries to find an available container engine
func AutoDetectEngine() (Engine, error) {
	// Try Podman first (more commonly available in rootless setups)
	podman := NewPodmanEngine()
	if podman.Available() {
		return podman, nil
	}

	docker := NewDockerEngine()
	if docker.Available() {
		return docker, nil
	}

	return nil, &ErrEngineNotAvailable{
		Engine: "any",
		Reason: "no container engine (podman or docker) is available on this system",
	}
}
