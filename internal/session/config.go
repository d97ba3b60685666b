// SPDX-License-Identifier: MPL-2.0

package session

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/notehub/notehub/internal/container"
	"github.com/notehub/notehub/internal/identity"
)

const (
	// PullAlways pulls the image before every session start.
	PullAlways PullPolicy = "always"
	// PullIfNotPresent pulls only when the image is missing locally.
	PullIfNotPresent PullPolicy = "ifnotpresent"
	// PullNever never pulls; a missing image fails the start.
	PullNever PullPolicy = "never"

	// UsernamePlaceholder is replaced by the sanitized username in NameTemplate.
	UsernamePlaceholder = "{username}"

	DefaultImage        = container.ImageTag("my-custom-py-dev:latest")
	DefaultNameTemplate = "jupyter-" + UsernamePlaceholder
	DefaultNetwork      = container.NetworkName("analytics_net")
	DefaultNotebookDir  = container.MountTargetPath("/home/jovyan/work")
	DefaultURL          = "/lab"
	DefaultHubURL       = "http://jupyterhub:8081"
	DefaultPort         = 8888

	// LabelUser and LabelManaged are set on every session container.
	LabelUser    = "notehub.user"
	LabelManaged = "notehub.managed"
)

var (
	// ErrInvalidPullPolicy is the sentinel error wrapped by InvalidPullPolicyError.
	ErrInvalidPullPolicy = errors.New("invalid pull policy")

	// ErrInvalidSpawnConfig is returned by SpawnConfig.Validate.
	ErrInvalidSpawnConfig = errors.New("invalid spawn config")
)

type (
	// PullPolicy decides when the session image is pulled.
	PullPolicy string

	// InvalidPullPolicyError is returned when a PullPolicy is not recognized.
	InvalidPullPolicyError struct {
		Value PullPolicy
	}

	// SpawnConfig describes the container every session is started with.
	SpawnConfig struct {
		Image        container.ImageTag
		NameTemplate string
		Network      container.NetworkName
		NotebookDir  container.MountTargetPath
		// DefaultURL is the path the notebook server opens (e.g. /lab).
		DefaultURL string
		// HubURL is the hub's API base as reachable from session containers.
		HubURL string
		// Port is the port the notebook server listens on inside the container.
		Port int
		Env  map[string]string
		// Volumes are mounted in addition to the workspace mount.
		Volumes []container.VolumeMount
		// Remove removes the container when the session stops. When false a
		// stopped container is restarted by the next session start.
		Remove     bool
		PullPolicy PullPolicy
		// UseInternalIP connects to the container's IP on Network instead of its name.
		UseInternalIP bool
		Command       []string
		Retry         container.RetryPolicy
	}
)

// Validate returns an error if the PullPolicy is not one of the defined policies.
func (p PullPolicy) Validate() error {
	switch p {
	case PullAlways, PullIfNotPresent, PullNever:
		return nil
	default:
		return &InvalidPullPolicyError{Value: p}
	}
}

func (p PullPolicy) String() string { return string(p) }

func (e *InvalidPullPolicyError) Error() string {
	return fmt.Sprintf("invalid pull policy %q (valid: always, ifnotpresent, never)", e.Value)
}

func (e *InvalidPullPolicyError) Unwrap() error { return ErrInvalidPullPolicy }

// DefaultSpawnConfig returns a SpawnConfig with default values.
func DefaultSpawnConfig() SpawnConfig {
	return SpawnConfig{
		Image:         DefaultImage,
		NameTemplate:  DefaultNameTemplate,
		Network:       DefaultNetwork,
		NotebookDir:   DefaultNotebookDir,
		DefaultURL:    DefaultURL,
		HubURL:        DefaultHubURL,
		Port:          DefaultPort,
		PullPolicy:    PullIfNotPresent,
		UseInternalIP: true,
		Retry:         container.DefaultRetryPolicy,
	}
}

// Validate collects every invalid field.
func (c SpawnConfig) Validate() error {
	var errs []error
	if err := c.Image.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !strings.Contains(c.NameTemplate, UsernamePlaceholder) {
		errs = append(errs, fmt.Errorf("name template %q must contain %s", c.NameTemplate, UsernamePlaceholder))
	}
	if err := c.NotebookDir.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.PullPolicy.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.UseInternalIP && c.Network == "" {
		errs = append(errs, errors.New("use_internal_ip needs a network"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	for _, v := range c.Volumes {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSpawnConfig, errors.Join(errs...))
	}
	return nil
}

// ContainerName expands the username placeholder in template.
func ContainerName(template string, user identity.SanitizedUsername) container.ContainerID {
	return container.ContainerID(strings.ReplaceAll(template, UsernamePlaceholder, string(user)))
}

// HubAPIURL returns the JupyterHub-compatible API URL handed to the session.
func (c SpawnConfig) HubAPIURL() string {
	if c.HubURL == "" {
		return ""
	}
	return strings.TrimSuffix(c.HubURL, "/") + "/hub/api"
}

// RunOptions builds the engine options for id's container. A zero workspace mount is omitted.
func (c SpawnConfig) RunOptions(id identity.UserIdentity, workspace container.VolumeMount) container.RunOptions {
	user := id.Sanitized()

	env := map[string]string{
		"JUPYTERHUB_USER":        string(id),
		"NOTEBOOK_DIR":           string(c.NotebookDir),
		"JUPYTERHUB_DEFAULT_URL": c.DefaultURL,
	}
	if api := c.HubAPIURL(); api != "" {
		env["JUPYTERHUB_API_URL"] = api
	}
	maps.Copy(env, c.Env)

	volumes := make([]container.VolumeMount, 0, len(c.Volumes)+1)
	if workspace != (container.VolumeMount{}) {
		volumes = append(volumes, workspace)
	}
	volumes = append(volumes, c.Volumes...)

	return container.RunOptions{
		Image:   c.Image,
		Name:    ContainerName(c.NameTemplate, user),
		Network: c.Network,
		WorkDir: c.NotebookDir,
		Env:     env,
		Labels: map[string]string{
			LabelUser:    string(user),
			LabelManaged: "true",
		},
		Volumes: volumes,
		Remove:  c.Remove,
		Command: c.Command,
	}
}
