package fileops

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"
)

// ValidatePathSecurity performs static validation on a raw, user supplied path.
// It does not access the filesystem.
//
// The function rejects:
//   - Empty or whitespace-only paths
//   - Paths containing NUL bytes
//   - Paths with a ".." segment (a name such as "file..txt" is allowed)
//
// Usage example:
//
//	if err := fileops.ValidatePathSecurity("../../etc/passwd"); err != nil {
//	    return err
//	}
func ValidatePathSecurity(path string) error {
	if strings.TrimSpace(path) == "" {
		return NewError(KindPathRejected, "validate", "", "path cannot be empty")
	}

	if ContainsNullByte(path) {
		return NewError(KindPathRejected, "validate", "", "path contains null byte")
	}

	if HasTraversal(path) {
		return NewError(KindPathRejected, "validate", path, "path traversal not allowed")
	}

	return nil
}

// ContainsNullByte reports whether path contains a NUL byte.
func ContainsNullByte(path string) bool {
	return strings.IndexByte(path, 0) >= 0
}

// HasTraversal reports whether any segment of path is "..". Both separators
// are checked regardless of platform so that a Windows-style payload cannot
// slip through on Unix.
func HasTraversal(path string) bool {
	segments := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	for _, seg := range segments {
		if seg == ".." {
			return true
		}
	}
	return false
}

// ExpandPath expands a path that starts with "~/" to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// SanitizeFilename reduces filename to a safe base name.
//
// Usage example:
//
//	clean, err := fileops.SanitizeFilename("../../../etc/passwd")
//	// clean == "passwd"
func SanitizeFilename(filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("filename cannot be empty")
	}

	clean := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	clean = strings.TrimSpace(clean)

	if clean == "" || clean == "." || clean == ".." || clean == "/" {
		return "", fmt.Errorf("invalid filename after sanitization: %q", filename)
	}
	if ContainsNullByte(clean) {
		return "", fmt.Errorf("filename contains null byte: %q", filename)
	}

	return clean, nil
}

// reservedDeviceNames are names Windows refuses to create regardless of
// extension or directory.
var reservedDeviceNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// IsReservedName reports whether the base name of path is an OS reserved
// device name such as "CON" or "nul.txt". The check is applied on every
// platform so that trees stay portable.
func IsReservedName(path string) bool {
	base := filepath.Base(strings.ReplaceAll(path, "\\", "/"))
	stem := base
	if idx := strings.IndexByte(base, '.'); idx >= 0 {
		stem = base[:idx]
	}
	stem = strings.TrimRight(strings.ToUpper(stem), " ")
	_, reserved := reservedDeviceNames[stem]
	return reserved
}

// DefaultBlockPatterns returns the regular expressions for system and package
// directories that must never be read from or organized. Patterns are matched
// against slash-separated absolute paths.
func DefaultBlockPatterns() []string {
	patterns := []string{
		`(^|/)node_modules(/|$)`,
		`(^|/)\.git(/|$)`,
		`(^|/)\.svn(/|$)`,
		`(^|/)\.hg(/|$)`,
	}

	switch runtime.GOOS {
	case "windows":
		patterns = append(patterns,
			`(?i)^[a-z]:/windows(/|$)`,
			`(?i)^[a-z]:/program files(/|$)`,
			`(?i)^[a-z]:/program files \(x86\)(/|$)`,
			`(?i)^[a-z]:/programdata/microsoft(/|$)`,
			`(?i)^[a-z]:/system32(/|$)`,
		)

	case "darwin":
		patterns = append(patterns,
			`^/System(/|$)`,
			`^/(usr|bin|sbin|etc|dev)(/|$)`,
			`^/private/(etc|var/db|var/root|var/log)(/|$)`,
			`^/var/(db|root|log)(/|$)`,
			`^/Library/System(/|$)`,
			`^/Applications(/|$)`,
		)

	default:
		patterns = append(patterns,
			`^/(bin|sbin|boot|dev|proc|sys|etc|lib|lib32|lib64|libx32|usr|snap)(/|$)`,
			`^/var/(log|lib|cache|spool|run)(/|$)`,
			`^/run(/|$)`,
		)
	}

	if home, err := os.UserHomeDir(); err == nil {
		for _, dir := range []string{".ssh", ".gnupg"} {
			patterns = append(patterns, `^`+regexp.QuoteMeta(filepath.ToSlash(filepath.Join(home, dir)))+`(/|$)`)
		}
	}

	return patterns
}

// CompilePatterns compiles a list of regular expressions, reporting the first
// invalid one.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// MatchAny returns the first pattern matching the slash form of path.
func MatchAny(patterns []*regexp.Regexp, path string) (*regexp.Regexp, bool) {
	slashed := filepath.ToSlash(path)
	for _, re := range patterns {
		if re.MatchString(slashed) {
			return re, true
		}
	}
	return nil, false
}

// IsWithin reports whether target equals base or lies below it. Both paths
// must be absolute and clean. Comparison is by whole path segments, so
// "/home/userX" is not within "/home/user".
func IsWithin(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// ValidateFileSizeLimit checks that size does not exceed maxSize.
func ValidateFileSizeLimit(path string, size, maxSize int64) error {
	if maxSize <= 0 {
		return fmt.Errorf("invalid size limit: %d", maxSize)
	}
	if size > maxSize {
		return NewError(KindTooLarge, "validate", path,
			fmt.Sprintf("file size %s exceeds limit %s", humanize.IBytes(uint64(size)), humanize.IBytes(uint64(maxSize))))
	}
	return nil
}
