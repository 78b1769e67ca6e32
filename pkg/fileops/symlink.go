package fileops

import (
	"fmt"
	"os"
	"path/filepath"
)

// IsSymlink checks if a given path is a symbolic link.
// This function uses lstat to examine the file without following symlinks.
func IsSymlink(path string) (bool, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return false, Translate("lstat", path, err)
	}
	return info.Mode()&os.ModeSymlink != 0, nil
}

// ResolveSymlink resolves a symbolic link chain and returns the final,
// absolute target path. A cycle is reported as KindSymlinkLoop.
//
// Usage example:
//
//	target, err := fileops.ResolveSymlink("/path/to/symlink")
//	if err != nil {
//	    return fmt.Errorf("failed to resolve symlink: %w", err)
//	}
func ResolveSymlink(linkPath string) (string, error) {
	resolved, err := filepath.EvalSymlinks(linkPath)
	if err != nil {
		translated := Translate("resolve", linkPath, err)
		if typed, ok := AsError(translated); ok && typed.Kind == KindInternal && isTooManyLinks(err) {
			typed.Kind = KindSymlinkLoop
		}
		return "", translated
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", fmt.Errorf("cannot get absolute path of resolved target: %w", err)
	}
	return abs, nil
}

// CanonicalDir returns the absolute, symlink-resolved form of dir. When dir
// does not exist the cleaned absolute path is returned instead, which keeps
// allow-list entries usable before they are created.
func CanonicalDir(dir string) (string, error) {
	abs, err := filepath.Abs(ExpandPath(dir))
	if err != nil {
		return "", fmt.Errorf("cannot resolve directory %q: %w", dir, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return filepath.Clean(resolved), nil
	}
	return filepath.Clean(abs), nil
}
