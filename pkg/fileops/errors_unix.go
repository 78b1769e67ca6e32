//go:build unix

package fileops

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isSymlinkRefusal reports whether err is the kernel refusing to traverse a
// symlink. Linux and macOS return ELOOP for O_NOFOLLOW on a link, FreeBSD
// returns EMLINK.
func isSymlinkRefusal(err error) bool {
	return errors.Is(err, unix.ELOOP) || errors.Is(err, unix.EMLINK)
}

func isCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}

func isDirectoryErr(err error) bool {
	return errors.Is(err, unix.EISDIR)
}
