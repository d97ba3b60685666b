// SPDX-License-Identifier: MPL-2.0

// Package container provides a unified abstraction layer for the container engines
// (Docker/Podman) that host per-user notebook sessions.
//
// The Engine interface covers the session lifecycle: image presence and pulls,
// detached Run, Start, Stop, Remove, and state/IP inspection. DockerEngine and
// PodmanEngine both embed BaseCLIEngine for shared CLI argument construction and
// command execution.
//
// Engine selection uses NewEngine(EngineType) with automatic fallback if the preferred
// engine is unavailable, or AutoDetectEngine() for preference-less detection (Podman
// is tried first).
//
// Session workspaces reach the container as bind mounts described by VolumeMount.
package container
