package fileops

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ExclusiveCopy copies srcPath to destPath, failing with KindAlreadyExists if
// destPath exists. The destination is created with O_EXCL, so a concurrent
// writer racing for the same name can never be clobbered.
//
// The source is opened without following symlinks. File mode and
// modification time are preserved. On any failure after the destination was
// created, the partial destination is removed.
//
// Usage example:
//
//	err := fileops.ExclusiveCopy("/src/a.txt", "/dst/a.txt")
//	if fileops.IsKind(err, fileops.KindAlreadyExists) {
//	    // pick another name and retry
//	}
func ExclusiveCopy(srcPath, destPath string) error {
	srcFile, err := OpenNoFollow(srcPath)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return Translate("stat", srcPath, err)
	}
	if !info.Mode().IsRegular() {
		return NewError(KindNotRegular, "copy", srcPath, "source is not a regular file")
	}

	destFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return Translate("create", destPath, err)
	}

	var copySuccess bool
	defer func() {
		if !copySuccess {
			destFile.Close()
			os.Remove(destPath)
		}
	}()

	if _, err := io.Copy(destFile, srcFile); err != nil {
		return Translate("copy", destPath, err)
	}

	if err := destFile.Sync(); err != nil {
		return Translate("sync", destPath, err)
	}

	if err := destFile.Close(); err != nil {
		return Translate("close", destPath, err)
	}

	// Best effort: a copy with a fresh mtime is still a correct copy.
	_ = os.Chtimes(destPath, info.ModTime(), info.ModTime())

	copySuccess = true
	return nil
}

// LinkNoClobber creates destPath as a hard link to srcPath. Like ExclusiveCopy
// it fails with KindAlreadyExists when destPath exists; unlike it, the call is
// a single atomic syscall. Cross-device or unsupported links are reported so
// callers can fall back to ExclusiveCopy.
func LinkNoClobber(srcPath, destPath string) error {
	if err := os.Link(srcPath, destPath); err != nil {
		return Translate("link", destPath, err)
	}
	return nil
}

// MoveNoClobber moves srcPath to destPath without ever replacing an existing
// destination. It hard links first and falls back to ExclusiveCopy when
// linking is not possible, then removes the source. If the source cannot be
// removed the new destination is removed again so only one copy survives.
func MoveNoClobber(srcPath, destPath string) error {
	if err := LinkNoClobber(srcPath, destPath); err != nil {
		if IsKind(err, KindAlreadyExists) || IsKind(err, KindNotFound) {
			return err
		}
		if err := ExclusiveCopy(srcPath, destPath); err != nil {
			return err
		}
	}

	if err := os.Remove(srcPath); err != nil {
		os.Remove(destPath)
		return Translate("remove", srcPath, err)
	}
	return nil
}

// AtomicWriteFile writes data to path via a temporary file in the same
// directory followed by a rename, so readers observe either the old or the
// new content. The temporary file is removed on failure.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return Translate("create", path, err)
	}
	tempPath := tempFile.Name()

	var writeSuccess bool
	defer func() {
		if !writeSuccess {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return Translate("write", tempPath, err)
	}

	if err := tempFile.Sync(); err != nil {
		return Translate("sync", tempPath, err)
	}

	if err := tempFile.Chmod(perm); err != nil {
		return Translate("chmod", tempPath, err)
	}

	if err := tempFile.Close(); err != nil {
		return Translate("close", tempPath, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return Translate("rename", path, err)
	}

	writeSuccess = true
	return nil
}

// EnsureDirectoryExists creates a directory and all necessary parent directories.
// This is equivalent to `mkdir -p` and is safe to call multiple times.
func EnsureDirectoryExists(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, Translate("mkdir", path, err))
	}
	return nil
}
