// SPDX-License-Identifier: MPL-2.0

// Package session starts and stops per-user notebook containers.
//
// A Spawner drives each session start through an explicit state machine
// (pending, provisioning, starting, running, or failed). The provisioning step
// awaits a Hook, normally the workspace Provisioner, whose bind mount is added
// to the container before it is created. A Hook error aborts the start before
// the container engine is touched.
package session
