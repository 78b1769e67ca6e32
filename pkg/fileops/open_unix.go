//go:build unix

package fileops

import (
	"os"

	"golang.org/x/sys/unix"
)

// OpenNoFollow opens path read-only and refuses to dereference a symbolic
// link in the final path component. The check is performed by the kernel on
// the same call that yields the descriptor, so a link swapped in after
// validation cannot be followed.
//
// The file is opened non-blocking so that a FIFO substituted for the target
// cannot stall the caller; blocking mode is restored before returning.
func OpenNoFollow(path string) (*os.File, error) {
	var (
		fd  int
		err error
	)
	for {
		fd, err = unix.Open(path, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return nil, Translate("open", path, &os.PathError{Op: "open", Path: path, Err: err})
	}

	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, Translate("open", path, &os.PathError{Op: "fcntl", Path: path, Err: err})
	}

	return os.NewFile(uintptr(fd), path), nil
}
