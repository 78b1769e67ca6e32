//go:build linux

package fileops

import (
	"os"
	"strconv"
	"strings"
)

// DescriptorPath returns the path the kernel currently associates with the
// open file. It lets callers re-check containment against the object they
// actually hold rather than the name they asked for.
func DescriptorPath(f *os.File) (string, bool) {
	target, err := os.Readlink("/proc/self/fd/" + strconv.Itoa(int(f.Fd())))
	if err != nil {
		return "", false
	}
	return strings.TrimSuffix(target, " (deleted)"), true
}
