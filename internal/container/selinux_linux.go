// SPDX-License-Identifier: MPL-2.0

package container

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

const selinuxMount = "/sys/fs/selinux"

// isSELinuxEnabled reports whether selinuxfs is mounted and enforcing.
func isSELinuxEnabled() bool {
	var st unix.Statfs_t
	if err := unix.Statfs(selinuxMount, &st); err != nil || uint32(st.Type) != unix.SELINUX_MAGIC {
		return false
	}
	data, err := os.ReadFile(selinuxMount + "/enforce")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}
