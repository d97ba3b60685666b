// SPDX-License-Identifier: MPL-2.0

//go:build !linux

package container

// isSELinuxEnabled is always false off Linux; Podman on macOS/Windows runs in a
// VM whose labeling is not visible from the host.
func isSELinuxEnabled() bool {
	return false
}
