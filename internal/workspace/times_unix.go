// SPDX-License-Identifier: MPL-2.0

//go:build linux || darwin || freebsd || netbsd || openbsd

package workspace

import (
	"time"

	"golang.org/x/sys/unix"
)

// lchtimes sets the modification time of a symlink itself.
func lchtimes(path string, modTime time.Time) error {
	ts := unix.NsecToTimespec(modTime.UnixNano())
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, []unix.Timespec{ts, ts}, unix.AT_SYMLINK_NOFOLLOW)
}
