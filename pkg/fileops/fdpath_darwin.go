//go:build darwin

package fileops

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// maxPathLen is MAXPATHLEN, the buffer size F_GETPATH expects.
const maxPathLen = 1024

// DescriptorPath returns the path the kernel currently associates with the
// open file, read with fcntl(F_GETPATH).
func DescriptorPath(f *os.File) (string, bool) {
	var buf [maxPathLen]byte
	_, _, errno := unix.Syscall(unix.SYS_FCNTL, f.Fd(), uintptr(unix.F_GETPATH), uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return "", false
	}
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	if n == 0 {
		return "", false
	}
	return string(buf[:n]), true
}
