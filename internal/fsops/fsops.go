// Package fsops contains the filesystem side of the server: resolving
// client-supplied paths under the sandbox root, probing and reading
// files, and enumerating regular files for listings.
package fsops

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Resolve joins a separator-normalized client path under root.
//
// With allowEscape false (the default), the joined path is lexically
// cleaned and verified to stay within root; '..' sequences that would
// escape the sandbox are rejected. With allowEscape true the verbatim
// join is returned, matching the behavior legacy trusted clients
// relied on.
func Resolve(rootAbs, clientPath string, allowEscape bool) (string, error) {
	joined := rootAbs + string(filepath.Separator) + filepath.FromSlash(clientPath)
	if allowEscape {
		return joined, nil
	}

	cleanRoot := filepath.Clean(rootAbs)
	cleanP := filepath.Clean(joined)
	rel, err := filepath.Rel(cleanRoot, cleanP)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes root", clientPath)
	}
	return cleanP, nil
}

// Exists reports whether any filesystem entry (file or directory)
// exists at absPath. It never fails: an unreadable or absent path is
// simply reported as not existing.
func Exists(absPath string) bool {
	_, err := os.Stat(absPath)
	return err == nil
}

// ReadFile reads the whole file at absPath into memory.
func ReadFile(absPath string) ([]byte, error) {
	return os.ReadFile(absPath)
}

// ListFiles enumerates every regular file beneath dir, depth first,
// and returns their paths relative to rootAbs using forward slashes.
//
// A dir that does not exist or is not a directory yields an empty,
// nil-error result: listing an absent directory is a valid outcome,
// not a failure. Directories themselves are never emitted, entries
// are deduplicated, and the order of the returned slice is
// unspecified.
func ListFiles(rootAbs, dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	set := make(map[string]struct{})
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(rootAbs, p)
		if err != nil {
			return err
		}
		set[filepath.ToSlash(rel)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out, nil
}
