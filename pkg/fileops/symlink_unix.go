//go:build unix

package fileops

import (
	"errors"
	"strings"

	"golang.org/x/sys/unix"
)

// isTooManyLinks reports whether err is filepath.EvalSymlinks giving up on a
// link cycle.
func isTooManyLinks(err error) bool {
	return errors.Is(err, unix.ELOOP) || strings.Contains(err.Error(), "too many links")
}
