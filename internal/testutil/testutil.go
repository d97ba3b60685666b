// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// SymlinkPrefix marks a WriteTree/ReadTree value as a symlink target.
const SymlinkPrefix = "-> "

// MustMkdirAll creates a directory along with any necessary parents.
// The test fails immediately if the operation fails.
func MustMkdirAll(t testing.TB, path string, perm os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(path, perm); err != nil {
		t.Fatalf("failed to create directory %s: %v", path, err)
	}
}

// MustWriteFile writes data to path, creating parent directories.
func MustWriteFile(t testing.TB, path, data string, perm os.FileMode) {
	t.Helper()
	MustMkdirAll(t, filepath.Dir(path), 0o755)
	if err := os.WriteFile(path, []byte(data), perm); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// MustSymlink creates a symlink at path pointing to target.
func MustSymlink(t testing.TB, target, path string) {
	t.Helper()
	MustMkdirAll(t, filepath.Dir(path), 0o755)
	if err := os.Symlink(target, path); err != nil {
		t.Fatalf("failed to symlink %s -> %s: %v", path, target, err)
	}
}

// MustChtimes sets the access and modification time of path.
func MustChtimes(t testing.TB, path string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("failed to chtimes %s: %v", path, err)
	}
}

// WriteTree creates files under root from a map of slash-separated relative
// paths to contents. A key ending in "/" creates a directory and a value
// starting with SymlinkPrefix creates a symlink.
func WriteTree(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		switch {
		case strings.HasSuffix(rel, "/"):
			MustMkdirAll(t, path, 0o755)
		case strings.HasPrefix(content, SymlinkPrefix):
			MustSymlink(t, strings.TrimPrefix(content, SymlinkPrefix), path)
		default:
			MustWriteFile(t, path, content, 0o644)
		}
	}
}

// ReadTree is the inverse of WriteTree: it returns every entry below root.
func ReadTree(t testing.TB, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		switch {
		case d.IsDir():
			files[rel+"/"] = ""
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			files[rel] = SymlinkPrefix + target
		default:
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			files[rel] = string(data)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read tree %s: %v", root, err)
	}
	return files
}
