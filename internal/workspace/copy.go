// SPDX-License-Identifier: MPL-2.0

package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// entryInfo resolves the lstat info of a walked entry.
var entryInfo = fs.DirEntry.Info

type (
	// CopyReport summarizes a CopyTree run.
	CopyReport struct {
		Files    int
		Dirs     int
		Symlinks int

		// Skipped lists entries that are neither regular files, directories
		// nor symlinks (sockets, devices, fifos), relative to the source.
		Skipped []string

		// Failures lists entries that failed under CopyContinue.
		Failures []*CopyError
	}

	// CopyError describes a single template entry that could not be copied.
	CopyError struct {
		// Path is the entry path relative to the copy source.
		Path string
		Op   string
		Err  error
	}

	dirTimes struct {
		path    string
		modTime time.Time
	}
)

func (e *CopyError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }

// Copied returns the number of entries created or overwritten.
func (r CopyReport) Copied() int {
	return r.Files + r.Dirs + r.Symlinks
}

// Err joins every recorded failure, or returns nil when there were none.
func (r CopyReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// CopyTree copies the contents of src into dst, which must already exist.
// Directory structure, permission bits and modification times are kept, and
// symlinks are recreated as symlinks without being followed. Existing files
// in dst that also exist in src are overwritten; nothing is ever removed from
// dst except a file or symlink replaced by the entry of the same name.
//
// With CopyAbort the first failing entry stops the copy and is returned. With
// CopyContinue failures are recorded in the report and the copy carries on.
// Context cancellation always stops the copy.
func CopyTree(ctx context.Context, src, dst string, policy CopyFailurePolicy) (CopyReport, error) {
	var (
		report CopyReport
		dirs   []dirTimes
	)

	fail := func(rel, op string, err error) error {
		cerr := &CopyError{Path: rel, Op: op, Err: err}
		if policy == CopyContinue {
			report.Failures = append(report.Failures, cerr)
			return nil
		}
		return cerr
	}

	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return relErr
		}
		if err != nil {
			if rel == "." {
				return err
			}
			if ferr := fail(rel, "read", err); ferr != nil {
				return ferr
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if rel == "." {
			return nil
		}

		info, err := entryInfo(d)
		if err != nil {
			if ferr := fail(rel, "stat", err); ferr != nil {
				return ferr
			}
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)

		switch mode := info.Mode(); {
		case mode.IsDir():
			if err := copyDir(target, mode.Perm()); err != nil {
				if ferr := fail(rel, "mkdir", err); ferr != nil {
					return ferr
				}
				return filepath.SkipDir
			}
			dirs = append(dirs, dirTimes{path: target, modTime: info.ModTime()})
			report.Dirs++
		case mode&fs.ModeSymlink != 0:
			if err := copySymlink(path, target, info.ModTime()); err != nil {
				return fail(rel, "symlink", err)
			}
			report.Symlinks++
		case mode.IsRegular():
			if err := copyFile(path, target, mode.Perm(), info.ModTime()); err != nil {
				return fail(rel, "copy", err)
			}
			report.Files++
		default:
			report.Skipped = append(report.Skipped, rel)
		}
		return nil
	})
	if walkErr != nil {
		return report, walkErr
	}

	// Writing entries bumps directory mtimes, so restore them deepest first.
	for _, d := range slices.Backward(dirs) {
		if err := os.Chtimes(d.path, d.modTime, d.modTime); err != nil {
			rel, _ := filepath.Rel(dst, d.path)
			if ferr := fail(rel, "chtimes", err); ferr != nil {
				return report, ferr
			}
		}
	}

	return report, nil
}

func copyDir(target string, perm fs.FileMode) error {
	fi, err := os.Lstat(target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return os.Mkdir(target, perm)
	case err != nil:
		return err
	case !fi.IsDir():
		return fmt.Errorf("%s exists and is not a directory", target)
	default:
		return os.Chmod(target, perm)
	}
}

// removeIfReplaceable removes target when it is a file or symlink so the
// caller never writes through a symlink the user created.
func removeIfReplaceable(target string) error {
	fi, err := os.Lstat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s exists and is a directory", target)
	}
	return os.Remove(target)
}

func copySymlink(src, target string, modTime time.Time) error {
	link, err := os.Readlink(src)
	if err != nil {
		return err
	}
	if err := removeIfReplaceable(target); err != nil {
		return err
	}
	if err := os.Symlink(link, target); err != nil {
		return err
	}
	return lchtimes(target, modTime)
}

func copyFile(src, target string, perm fs.FileMode, modTime time.Time) (err error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = srcFile.Close() }() // Read-only file; close error non-critical

	if err := removeIfReplaceable(target); err != nil {
		return err
	}

	dstFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if closeErr := dstFile.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close destination file: %w", closeErr)
		}
		if err == nil {
			err = os.Chtimes(target, modTime, modTime)
		}
	}()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	// The umask applies at create time.
	return dstFile.Chmod(perm)
}
