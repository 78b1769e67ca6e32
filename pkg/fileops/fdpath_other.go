//go:build !linux && !darwin

package fileops

import "os"

// DescriptorPath is only supported on Linux and macOS.
func DescriptorPath(*os.File) (string, bool) {
	return "", false
}
