// SPDX-License-Identifier: MPL-2.0

//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package workspace

import "time"

// lchtimes is a no-op where symlink timestamps cannot be set.
func lchtimes(string, time.Time) error { return nil }
