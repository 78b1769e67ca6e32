//go:build windows

package fileops

import "strings"

func isTooManyLinks(err error) bool {
	return strings.Contains(err.Error(), "too many links")
}
