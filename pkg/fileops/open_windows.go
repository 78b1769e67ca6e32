//go:build windows

package fileops

import (
	"os"
)

// OpenNoFollow opens path read-only and refuses symbolic links. Windows has
// no O_NOFOLLOW equivalent in the os package, so the link check is done with
// Lstat and the opened handle is compared with the checked file; a swap
// between the two calls is reported as a rejection.
func OpenNoFollow(path string) (*os.File, error) {
	before, err := os.Lstat(path)
	if err != nil {
		return nil, Translate("open", path, err)
	}
	if before.Mode()&os.ModeSymlink != 0 {
		return nil, NewError(KindSymlinkLoop, "open", path, "refusing to follow symbolic link")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, Translate("open", path, err)
	}

	after, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Translate("stat", path, err)
	}
	if !os.SameFile(before, after) {
		f.Close()
		return nil, NewError(KindPathRejected, "open", path, "file changed between check and open")
	}

	return f, nil
}
