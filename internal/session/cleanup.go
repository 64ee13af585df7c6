package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// RemoveStaleFiles deletes leftover logs from a previous run. Each path must
// resolve inside root without passing through a symlink; missing files are
// ignored.
func RemoveStaleFiles(root string, paths ...string) error {
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		resolved, err := resolveInside(root, p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(resolved); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove stale file %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func resolveInside(root, target string) (string, error) {
	rootReal, err := filepath.EvalSymlinks(filepath.Clean(root))
	if err != nil {
		return "", fmt.Errorf("resolve work dir %s: %w", root, err)
	}
	rootReal, err = filepath.Abs(rootReal)
	if err != nil {
		return "", fmt.Errorf("resolve work dir %s: %w", root, err)
	}

	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", target, err)
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(targetAbs))
	if err != nil {
		return "", fmt.Errorf("resolve parent of %s: %w", target, err)
	}
	resolved := filepath.Join(parent, filepath.Base(targetAbs))

	if info, err := os.Lstat(resolved); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", fmt.Errorf("refusing to remove symlink %s", target)
	}

	rel, err := filepath.Rel(rootReal, resolved)
	if err != nil {
		return "", fmt.Errorf("resolve %s relative to work dir: %w", target, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path is outside work dir: %s", target)
	}
	return resolved, nil
}
