// Package pathguard decides whether a user supplied path may be touched.
//
// A path is admitted when it is free of NUL bytes and ".." segments, matches
// none of the block-list patterns, and lies inside one of the allowed
// directories. Symbolic links are judged by their real target. The decision
// is advisory: it describes the filesystem at the moment of the call, so code
// that later opens the path must still use fileops.OpenNoFollow.
package pathguard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"orgsafe/internal/logging"
	"orgsafe/pkg/fileops"
)

// Options tunes a single validation.
type Options struct {
	// AllowSymlinks admits a symbolic link whose real target is itself
	// admissible. When false any symlink is rejected.
	AllowSymlinks bool
	// RequireExists fails with KindNotFound for paths that do not exist.
	RequireExists bool
}

// ValidatedPath is a path that passed validation. It is only meaningful for
// the operation that requested it and must not be cached.
type ValidatedPath struct {
	// Path is the absolute, lexically clean form of the input.
	Path string
	// Real is Path with every symbolic link resolved. It equals Path for
	// paths that contain no links.
	Real string
	// Exists reports whether the path existed at validation time.
	Exists bool
	// IsSymlink reports whether the final component was a symbolic link.
	IsSymlink bool
	// IsDir reports whether the path (or its target) was a directory.
	IsDir bool
}

// Validator holds the allow-list and block-list. It has no mutable state and
// is safe for concurrent use.
type Validator struct {
	allowed []string
	blocked []*regexp.Regexp
	logger  *logging.AppLogger
}

// New builds a Validator. allowedDirs are canonicalized once here; extraBlocked
// patterns are appended to fileops.DefaultBlockPatterns.
func New(allowedDirs, extraBlocked []string, logger *logging.AppLogger) (*Validator, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if len(allowedDirs) == 0 {
		return nil, fmt.Errorf("at least one allowed directory is required")
	}

	v := &Validator{logger: logger}
	for _, dir := range allowedDirs {
		if strings.TrimSpace(dir) == "" {
			return nil, fmt.Errorf("allowed directory cannot be empty")
		}
		abs, err := filepath.Abs(fileops.ExpandPath(dir))
		if err != nil {
			return nil, fmt.Errorf("cannot resolve allowed directory %q: %w", dir, err)
		}
		canonical, err := resolveExisting(filepath.Clean(abs))
		if err != nil {
			return nil, err
		}
		v.allowed = append(v.allowed, canonical)
	}

	patterns := append(fileops.DefaultBlockPatterns(), extraBlocked...)
	blocked, err := fileops.CompilePatterns(patterns)
	if err != nil {
		return nil, err
	}
	v.blocked = blocked

	return v, nil
}

// AllowedDirs returns the canonical allowed directories.
func (v *Validator) AllowedDirs() []string {
	return append([]string(nil), v.allowed...)
}

// Validate runs the full admission check on raw.
func (v *Validator) Validate(raw string, opts Options) (ValidatedPath, error) {
	if err := fileops.ValidatePathSecurity(raw); err != nil {
		return ValidatedPath{}, err
	}

	abs, err := filepath.Abs(fileops.ExpandPath(raw))
	if err != nil {
		return ValidatedPath{}, fileops.NewError(fileops.KindPathRejected, "validate", raw, "cannot resolve absolute path")
	}
	abs = filepath.Clean(abs)

	// Resolve links in the directory part only; the final component is
	// inspected separately below so that a link there is never followed
	// silently.
	parent, err := resolveExisting(filepath.Dir(abs))
	if err != nil {
		return ValidatedPath{}, err
	}
	lexicalReal := filepath.Join(parent, filepath.Base(abs))
	if abs == filepath.Dir(abs) {
		lexicalReal = parent
	}

	if err := v.admit(abs, lexicalReal); err != nil {
		return ValidatedPath{}, err
	}

	result := ValidatedPath{Path: abs, Real: lexicalReal}

	info, err := os.Lstat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if opts.RequireExists {
			return ValidatedPath{}, fileops.Translate("validate", abs, err)
		}
		return result, nil
	case err != nil:
		return ValidatedPath{}, fileops.Translate("validate", abs, err)
	}

	result.Exists = true
	result.IsDir = info.IsDir()

	if info.Mode()&os.ModeSymlink == 0 {
		return result, nil
	}

	result.IsSymlink = true
	if !opts.AllowSymlinks {
		v.logger.Debug("Rejected symlink", "path", abs)
		return ValidatedPath{}, fileops.NewError(fileops.KindPathRejected, "validate", abs, "symbolic links are not allowed here")
	}

	target, err := realTarget(abs)
	if err != nil {
		return ValidatedPath{}, err
	}
	if err := v.admit(target, target); err != nil {
		v.logger.Warn("Symlink target escapes allowed directories", "link", abs, "target", target)
		typed, _ := fileops.AsError(err)
		return ValidatedPath{}, fileops.NewError(typed.Kind, "validate", abs,
			"symlink target "+target+" is not allowed").WithHint(typed.Hint)
	}
	result.Real = target

	if targetInfo, err := os.Stat(target); err == nil {
		result.IsDir = targetInfo.IsDir()
	} else if opts.RequireExists {
		return ValidatedPath{}, fileops.Translate("validate", target, err)
	}

	return result, nil
}

// ValidateDirectory validates an existing directory, following a symlink to it
// if the link target is admissible.
func (v *Validator) ValidateDirectory(raw string) (ValidatedPath, error) {
	vp, err := v.Validate(raw, Options{AllowSymlinks: true, RequireExists: true})
	if err != nil {
		return ValidatedPath{}, err
	}
	if !vp.IsDir {
		return ValidatedPath{}, fileops.NewError(fileops.KindNotRegular, "validate", vp.Path, "not a directory")
	}
	return vp, nil
}

// Contains reports whether an already absolute path lies inside an allowed
// directory and outside the block-list. It performs no filesystem access.
func (v *Validator) Contains(abs string) bool {
	return v.admit(abs, abs) == nil
}

// admit applies the block-list to both forms of the path and the allow-list
// to the resolved form. The block-list always wins.
func (v *Validator) admit(lexical, real string) error {
	for _, p := range []string{lexical, real} {
		if re, blocked := fileops.MatchAny(v.blocked, p); blocked {
			v.logger.Debug("Path matched block-list", "path", p, "pattern", re.String())
			return fileops.NewError(fileops.KindPathRejected, "validate", lexical, "path is in a blocked location")
		}
	}

	for _, dir := range v.allowed {
		if fileops.IsWithin(dir, real) {
			return nil
		}
	}

	return fileops.NewError(fileops.KindPathRejected, "validate", lexical, "path is outside the allowed directories").
		WithHint(v.hint())
}

// hint lists the allowed directories that currently exist.
func (v *Validator) hint() string {
	var existing []string
	for _, dir := range v.allowed {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			existing = append(existing, dir)
		}
	}
	if len(existing) == 0 {
		return "no allowed directory exists yet; create one or update allowed_dirs"
	}
	return "allowed directories: " + strings.Join(existing, ", ")
}

// resolveExisting resolves symbolic links in the longest existing prefix of
// p and appends the remaining, not yet created, components unchanged.
func resolveExisting(p string) (string, error) {
	var missing []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fileops.ResolveSymlink(cur)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		missing = append(missing, filepath.Base(cur))
		cur = parent
	}
}

// realTarget resolves the link at abs. A dangling link is resolved one hop
// and its target's existing prefix canonicalized.
func realTarget(abs string) (string, error) {
	target, err := fileops.ResolveSymlink(abs)
	if err == nil {
		return target, nil
	}
	if !fileops.IsKind(err, fileops.KindNotFound) {
		return "", err
	}

	hop, readErr := os.Readlink(abs)
	if readErr != nil {
		return "", fileops.Translate("readlink", abs, readErr)
	}
	if !filepath.IsAbs(hop) {
		hop = filepath.Join(filepath.Dir(abs), hop)
	}
	return resolveExisting(filepath.Clean(hop))
}
