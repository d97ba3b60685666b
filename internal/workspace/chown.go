// SPDX-License-Identifier: MPL-2.0

package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// ErrOwnershipUnsupported is returned by ChownTree on hosts without POSIX ownership.
var ErrOwnershipUnsupported = errors.New("file ownership is not supported on this platform")

type (
	// ChownFunc changes the owner of a single path without following symlinks.
	ChownFunc func(path string, uid, gid int) error

	// ChownError reports how many entries of a tree could not be chowned.
	ChownError struct {
		Root   string
		Failed int
		Total  int
		// First is the first failure encountered.
		First error
	}
)

func (e *ChownError) Error() string {
	return fmt.Sprintf("chown %s: %d of %d entries failed: %v", e.Root, e.Failed, e.Total, e.First)
}

func (e *ChownError) Unwrap() error { return e.First }

// SupportsOwnership reports whether the running platform has POSIX file ownership.
func SupportsOwnership() bool {
	return runtime.GOOS != "windows" && runtime.GOOS != "plan9"
}

// ChownTree sets the owner of root and every entry below it. A failing entry
// does not stop the walk; the result is a *ChownError when any entry failed.
// A nil chown uses os.Lchown.
func ChownTree(root string, owner Owner, chown ChownFunc) error {
	if !SupportsOwnership() {
		return ErrOwnershipUnsupported
	}
	if chown == nil {
		chown = os.Lchown
	}

	cerr := &ChownError{Root: root}
	walkErr := filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			cerr.Failed++
			if cerr.First == nil {
				cerr.First = err
			}
			return nil
		}
		cerr.Total++
		if err := chown(path, owner.UID, owner.GID); err != nil {
			cerr.Failed++
			if cerr.First == nil {
				cerr.First = err
			}
		}
		return nil
	})
	if walkErr != nil {
		return walkErr
	}
	if cerr.Failed > 0 {
		return cerr
	}
	return nil
}
