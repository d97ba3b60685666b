// SPDX-License-Identifier: MPL-2.0

// Package workspace provisions per-user workspaces on shared storage.
//
// Before a user's session container is created, the Provisioner makes sure the
// user has a directory under the data root (keyed by the sanitized username),
// seeds it from the shared default template, hands ownership to the in-container
// runtime user and returns the bind mount that maps the host-visible copy of the
// directory to the notebook directory inside the container.
//
// A workspace is "provisioned" when its directory exists and is not empty. No
// metadata file or index is kept.
package workspace
