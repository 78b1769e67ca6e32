package fileops

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Kind classifies a file operation failure. The set is closed: every error
// produced by this module maps to exactly one Kind.
type Kind int

const (
	// KindInternal is used for failures that do not fit any other kind.
	KindInternal Kind = iota
	KindPathRejected
	KindSensitivePathBlocked
	KindRateLimited
	KindTooLarge
	KindNotFound
	KindAccessDenied
	KindSymlinkLoop
	KindAborted
	KindOffsetBeyondEnd
	KindDestinationCollision
	KindBackupRestoreFailed
	KindManifestNotFound
	KindManifestCorrupt
	KindInvalidManifestID
	KindAlreadyExists
	KindIsDirectory
	KindNotRegular
	KindCrossDevice
)

var kindNames = map[Kind]string{
	KindInternal:             "internal",
	KindPathRejected:         "path_rejected",
	KindSensitivePathBlocked: "sensitive_path_blocked",
	KindRateLimited:          "rate_limited",
	KindTooLarge:             "too_large",
	KindNotFound:             "not_found",
	KindAccessDenied:         "access_denied",
	KindSymlinkLoop:          "symlink_loop",
	KindAborted:              "aborted",
	KindOffsetBeyondEnd:      "offset_beyond_end",
	KindDestinationCollision: "destination_collision",
	KindBackupRestoreFailed:  "backup_restore_failed",
	KindManifestNotFound:     "manifest_not_found",
	KindManifestCorrupt:      "manifest_corrupt",
	KindInvalidManifestID:    "invalid_manifest_id",
	KindAlreadyExists:        "already_exists",
	KindIsDirectory:          "is_directory",
	KindNotRegular:           "not_regular",
	KindCrossDevice:          "cross_device",
}

// String returns the stable snake_case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Critical reports whether failures of this kind may mean data loss.
func (k Kind) Critical() bool {
	return k == KindBackupRestoreFailed
}

// Sentinel errors usable with errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrPathRejected         = &Error{Kind: KindPathRejected}
	ErrSensitivePathBlocked = &Error{Kind: KindSensitivePathBlocked}
	ErrRateLimited          = &Error{Kind: KindRateLimited}
	ErrTooLarge             = &Error{Kind: KindTooLarge}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrAccessDenied         = &Error{Kind: KindAccessDenied}
	ErrSymlinkLoop          = &Error{Kind: KindSymlinkLoop}
	ErrAborted              = &Error{Kind: KindAborted}
	ErrOffsetBeyondEnd      = &Error{Kind: KindOffsetBeyondEnd}
	ErrDestinationCollision = &Error{Kind: KindDestinationCollision}
	ErrBackupRestoreFailed  = &Error{Kind: KindBackupRestoreFailed}
	ErrManifestNotFound     = &Error{Kind: KindManifestNotFound}
	ErrManifestCorrupt      = &Error{Kind: KindManifestCorrupt}
	ErrInvalidManifestID    = &Error{Kind: KindInvalidManifestID}
	ErrAlreadyExists        = &Error{Kind: KindAlreadyExists}
)

// Error is the typed error returned by every component of this module.
type Error struct {
	Kind Kind
	// Op names the failing operation, e.g. "open" or "rollback".
	Op   string
	Path string
	// Reason is a short human readable explanation.
	Reason string
	// Hint is an optional actionable suggestion for the user.
	Hint string
	// RetryAfter is set for KindRateLimited.
	RetryAfter time.Duration
	Err        error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e == nil {
		return "fileops error: <nil>"
	}
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Path == "" && t.Reason == "" && t.Err == nil && t.Kind == e.Kind
}

// NewError constructs a typed error.
func NewError(kind Kind, op, path, reason string) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Reason: reason}
}

// WithHint attaches an actionable hint and returns the same error.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// AsError extracts a typed error from the error chain.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}

// KindOf returns the kind of the first typed error in the chain, or
// KindInternal for untyped errors.
func KindOf(err error) Kind {
	if typed, ok := AsError(err); ok {
		return typed.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// Translate maps an OS-level error into the taxonomy. It is the only place
// where syscall errors are interpreted; callers should never inspect raw
// errno values themselves. Already-typed errors are returned unchanged.
func Translate(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}

	kind := KindInternal
	switch {
	case isSymlinkRefusal(err):
		kind = KindSymlinkLoop
	case isCrossDevice(err):
		kind = KindCrossDevice
	case errors.Is(err, fs.ErrNotExist):
		kind = KindNotFound
	case errors.Is(err, fs.ErrExist):
		kind = KindAlreadyExists
	case errors.Is(err, fs.ErrPermission):
		kind = KindAccessDenied
	case isDirectoryErr(err):
		kind = KindIsDirectory
	}

	return &Error{Kind: kind, Op: op, Path: path, Err: unwrapPathError(err)}
}

// unwrapPathError strips the *fs.PathError wrapper so messages do not repeat
// the op and path already carried by Error.
func unwrapPathError(err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return linkErr.Err
	}
	return err
}
