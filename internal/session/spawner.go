// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/notehub/notehub/internal/container"
	"github.com/notehub/notehub/internal/identity"
	"github.com/notehub/notehub/internal/issue"
	"github.com/notehub/notehub/internal/telemetry"
)

var (
	// ErrAccessDenied is returned when the access policy rejects the identity.
	ErrAccessDenied = errors.New("user is not allowed to start a session")

	// ErrImageNotPresent is returned under PullNever when the image is missing locally.
	ErrImageNotPresent = errors.New("session image is not present locally")
)

var tracer = telemetry.Tracer("github.com/notehub/notehub/internal/session")

type (
	// Hook runs before a session container is created and returns the
	// workspace mount the container must be started with.
	Hook interface {
		BeforeSessionStart(ctx context.Context, id identity.UserIdentity) (container.VolumeMount, error)
	}

	// AccessChecker decides whether an identity may start a session.
	AccessChecker interface {
		Allowed(id identity.UserIdentity) bool
	}

	// Session is the outcome of a session start.
	Session struct {
		Identity    identity.UserIdentity
		Username    identity.SanitizedUsername
		State       State
		ContainerID container.ContainerID
		// Address is the host the hub connects to (container IP or name).
		Address string
		// Workspace is the mount returned by the hook.
		Workspace container.VolumeMount
		// Reused is true when an existing container was restarted or was already running.
		Reused bool
		Err    error
	}

	// Spawner starts and stops session containers.
	Spawner struct {
		engine container.Engine
		hook   Hook
		access AccessChecker
		cfg    SpawnConfig
		logger *log.Logger
	}

	// SpawnerOption is a functional option for configuring a Spawner.
	SpawnerOption func(*Spawner)
)

// URL returns the notebook server's base URL.
func (s *Session) URL(port int) string {
	if s.Address == "" {
		return ""
	}
	return "http://" + net.JoinHostPort(s.Address, strconv.Itoa(port))
}

func (s *Session) transition(to State) error {
	if !s.State.CanTransition(to) {
		return &InvalidTransitionError{From: s.State, To: to}
	}
	s.State = to
	return nil
}

// fail moves the session to StateFailed and records err.
func (s *Session) fail(err error) (*Session, error) {
	s.State = StateFailed
	s.Err = err
	return s, err
}

// WithAccessChecker returns a SpawnerOption that enforces an access policy.
func WithAccessChecker(access AccessChecker) SpawnerOption {
	return func(s *Spawner) {
		s.access = access
	}
}

// WithLogger returns a SpawnerOption that sets the logger.
func WithLogger(logger *log.Logger) SpawnerOption {
	return func(s *Spawner) {
		s.logger = logger
	}
}

// NewSpawner creates a Spawner. hook may be nil, in which case no workspace is mounted.
func NewSpawner(engine container.Engine, hook Hook, cfg SpawnConfig, opts ...SpawnerOption) (*Spawner, error) {
	if engine == nil {
		return nil, errors.New("session spawner needs a container engine")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Spawner{
		engine: engine,
		hook:   hook,
		cfg:    cfg,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the spawn configuration.
func (s *Spawner) Config() SpawnConfig {
	return s.cfg
}

// Spawn starts id's session. The returned Session is non-nil even on error
// and reports the state the start failed in. id should already be normalized
// with identity.Normalize so the access check and the workspace agree.
func (s *Spawner) Spawn(ctx context.Context, id identity.UserIdentity) (sess *Session, err error) {
	ctx, span := tracer.Start(ctx, "session.Spawn")
	defer func() { telemetry.End(span, err) }()

	sess = &Session{Identity: id, Username: id.Sanitized(), State: StatePending}
	if err := id.Validate(); err != nil {
		return sess.fail(err)
	}
	span.SetAttributes(attribute.String("notehub.user", string(sess.Username)))
	logger := s.logger.With("user", sess.Username)

	if s.access != nil && !s.access.Allowed(id) {
		return sess.fail(accessDeniedError(id))
	}

	if err := sess.transition(StateProvisioning); err != nil {
		return sess.fail(err)
	}
	if s.hook != nil {
		mount, err := s.hook.BeforeSessionStart(ctx, id)
		if err != nil {
			logger.Error("workspace provisioning failed", "err", err)
			return sess.fail(fmt.Errorf("provision workspace: %w", err))
		}
		sess.Workspace = mount
	}

	if err := sess.transition(StateStarting); err != nil {
		return sess.fail(err)
	}
	opts := s.cfg.RunOptions(id, sess.Workspace)
	if err := s.ensureImage(ctx, logger); err != nil {
		return sess.fail(err)
	}
	containerID, reused, err := s.startContainer(ctx, logger, opts)
	if err != nil {
		return sess.fail(err)
	}
	sess.ContainerID = containerID
	sess.Reused = reused

	addr, err := s.connectAddress(ctx, containerID, opts.Name)
	if err != nil {
		return sess.fail(err)
	}
	sess.Address = addr

	if err := sess.transition(StateRunning); err != nil {
		return sess.fail(err)
	}
	logger.Info("session running", "container", containerID, "address", addr, "reused", reused)
	return sess, nil
}

// Stop stops id's container and removes it when Remove is set. Stopping a
// user without a container is not an error.
func (s *Spawner) Stop(ctx context.Context, id identity.UserIdentity) (err error) {
	ctx, span := tracer.Start(ctx, "session.Stop")
	defer func() { telemetry.End(span, err) }()

	if err := id.Validate(); err != nil {
		return err
	}
	name := ContainerName(s.cfg.NameTemplate, id.Sanitized())
	logger := s.logger.With("user", id.Sanitized(), "container", name)

	state, err := s.engine.ContainerState(ctx, name)
	if err != nil {
		return err
	}
	if state == container.StateMissing {
		logger.Info("no session container to stop")
		return nil
	}
	if state == container.StateRunning {
		if err := s.engine.Stop(ctx, name); err != nil {
			return err
		}
		logger.Info("session stopped")
	}
	if !s.cfg.Remove {
		return nil
	}

	// Containers started with --rm may already be gone.
	state, err = s.engine.ContainerState(ctx, name)
	if err != nil || state == container.StateMissing {
		return err
	}
	if err := s.engine.Remove(ctx, name, true); err != nil {
		return err
	}
	logger.Info("session container removed")
	return nil
}

func (s *Spawner) ensureImage(ctx context.Context, logger *log.Logger) error {
	image := s.cfg.Image
	switch s.cfg.PullPolicy {
	case PullAlways:
	case PullIfNotPresent, PullNever:
		present, err := s.engine.ImageExists(ctx, image)
		if err != nil {
			return err
		}
		if present {
			return nil
		}
		if s.cfg.PullPolicy == PullNever {
			return imageNotPresentError(image)
		}
	}

	logger.Info("pulling session image", "image", image)
	return container.RetryTransient(ctx, s.cfg.Retry, func() error {
		return s.engine.Pull(ctx, image)
	})
}

// startContainer creates the container, or reuses the existing one with the same name.
func (s *Spawner) startContainer(ctx context.Context, logger *log.Logger, opts container.RunOptions) (container.ContainerID, bool, error) {
	state, err := s.engine.ContainerState(ctx, opts.Name)
	if err != nil {
		return "", false, err
	}

	switch state {
	case container.StateRunning:
		logger.Info("session container already running", "container", opts.Name)
		return opts.Name, true, nil
	case container.StateMissing:
	default:
		if !s.cfg.Remove {
			logger.Info("restarting existing session container", "container", opts.Name, "state", state)
			err := container.RetryTransient(ctx, s.cfg.Retry, func() error {
				return s.engine.Start(ctx, opts.Name)
			})
			return opts.Name, err == nil, err
		}
		if err := s.engine.Remove(ctx, opts.Name, true); err != nil {
			return "", false, err
		}
	}

	var id container.ContainerID
	err = container.RetryTransient(ctx, s.cfg.Retry, func() error {
		var runErr error
		id, runErr = s.engine.Run(ctx, opts)
		return runErr
	})
	if err != nil {
		return "", false, err
	}
	logger.Info("session container created", "container", id, "image", opts.Image)
	return id, false, nil
}

func (s *Spawner) connectAddress(ctx context.Context, id, name container.ContainerID) (string, error) {
	if !s.cfg.UseInternalIP {
		return string(name), nil
	}
	return s.engine.ContainerIP(ctx, id, s.cfg.Network)
}

func accessDeniedError(id identity.UserIdentity) error {
	return issue.NewErrorContext().
		WithOperation("start session").
		WithResource(string(id)).
		WithKind(issue.KindConfiguration).
		WithSuggestion("Add the user to ALLOWED_USERS or ADMIN_USERS").
		Wrap(ErrAccessDenied).
		BuildError()
}

func imageNotPresentError(image container.ImageTag) error {
	return issue.NewErrorContext().
		WithOperation("start session").
		WithResource(string(image)).
		WithKind(issue.KindExpectedAbsent).
		WithSuggestion("Pull or build the image on the host").
		WithSuggestion("Or set session.pull_policy to ifnotpresent").
		Wrap(ErrImageNotPresent).
		BuildError()
}
