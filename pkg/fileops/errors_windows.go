//go:build windows

package fileops

import (
	"errors"

	"golang.org/x/sys/windows"
)

// Windows reports reparse point refusals through the open path itself, see
// open_windows.go, so there is no errno to match here.
func isSymlinkRefusal(error) bool {
	return false
}

func isCrossDevice(err error) bool {
	return errors.Is(err, windows.ERROR_NOT_SAME_DEVICE)
}

func isDirectoryErr(error) bool {
	return false
}
