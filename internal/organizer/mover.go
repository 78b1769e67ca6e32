package organizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"orgsafe/internal/logging"
	"orgsafe/internal/rollback"
	"orgsafe/pkg/fileops"
)

// fsOps is the set of file system calls the mover makes. Every method
// returns errors already translated by fileops.Translate.
type fsOps interface {
	Lstat(path string) (os.FileInfo, error)
	Rename(oldPath, newPath string) error
	// MoveNoClobber places src at dst and removes src, failing with
	// KindAlreadyExists when dst exists.
	MoveNoClobber(src, dst string) error
	// CopyNoClobber places a copy of src at dst, failing with
	// KindAlreadyExists when dst exists.
	CopyNoClobber(src, dst string) error
	MkdirAll(path string, perm os.FileMode) error
}

type osOps struct{}

func (osOps) Lstat(path string) (os.FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, fileops.Translate("stat", path, err)
	}
	return info, nil
}

func (osOps) Rename(oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return fileops.Translate("rename", newPath, err)
	}
	return nil
}

func (osOps) MoveNoClobber(src, dst string) error { return fileops.MoveNoClobber(src, dst) }

func (osOps) CopyNoClobber(src, dst string) error { return fileops.ExclusiveCopy(src, dst) }

func (osOps) MkdirAll(path string, perm os.FileMode) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return fileops.Translate("mkdir", path, err)
	}
	return nil
}

// ExecuteOptions controls plan execution.
type ExecuteOptions struct {
	// Copy leaves sources in place and records copy actions.
	Copy bool
}

// FileError is a per-file failure inside a batch.
type FileError struct {
	Source      string
	Destination string
	Err         error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s -> %s: %v", e.Source, e.Destination, e.Err)
}

func (e FileError) Unwrap() error { return e.Err }

// ExecuteResult summarizes an executed plan. Actions holds exactly one entry
// per file operation that succeeded, in execution order.
type ExecuteResult struct {
	Moved       int
	Copied      int
	Overwritten int
	Skipped     []SkippedEntry
	Actions     []rollback.Action
	Errors      []FileError
	// Critical is set when an overwritten file could not be restored after
	// a failure. The affected backup paths are named in Errors.
	Critical bool
	// Aborted is set when the context was cancelled before every file was
	// processed.
	Aborted bool
}

// Mover executes plans. Files are placed without ever clobbering an
// existing destination, except through the backup-then-swap overwrite
// protocol.
type Mover struct {
	ops       fsOps
	backupDir string
	// guard re-admits a destination directory right before a file is placed
	// in it. Nil admits all.
	guard  func(dir string) error
	logger *logging.AppLogger
	now    func() time.Time
}

// NewMover creates a mover that keeps overwrite backups in backupDir.
func NewMover(backupDir string, logger *logging.AppLogger) *Mover {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Mover{
		ops:       osOps{},
		backupDir: backupDir,
		logger:    logger.With("component", "mover"),
		now:       time.Now,
	}
}

type attemptOutcome int

const (
	attemptSuccess attemptOutcome = iota
	attemptRetry
	attemptGiveUp
)

type attempt struct {
	outcome attemptOutcome
	err     error
}

// Execute carries out plan. A failing file is recorded and the batch goes
// on. Cancellation is checked between files only; a file operation that has
// started always completes.
func (m *Mover) Execute(ctx context.Context, plan *Plan, opts ExecuteOptions) *ExecuteResult {
	start := time.Now()
	defer m.logger.LogPerformance("execute", start)

	result := &ExecuteResult{}
	planned := plan.destinations()

	for i, move := range plan.Moves {
		if err := ctx.Err(); err != nil {
			result.Aborted = true
			for _, rest := range plan.Moves[i:] {
				result.Skipped = append(result.Skipped, SkippedEntry{Path: rest.Source, Reason: "cancelled"})
			}
			m.logger.Warn("Execution cancelled", "remaining", len(plan.Moves)-i)
			break
		}

		if fileops.IsReservedName(filepath.Base(move.Source)) || fileops.IsReservedName(filepath.Base(move.Destination)) {
			m.logger.Warn("Skipping reserved device name", "source", move.Source, "destination", move.Destination)
			result.Skipped = append(result.Skipped, SkippedEntry{Path: move.Source, Reason: "reserved device name"})
			continue
		}

		action, err := m.executeOne(move, plan.TargetDir, planned, opts)
		if err != nil {
			m.logger.Error("File operation failed", "source", move.Source, "destination", move.Destination, "error", err)
			if fileops.KindOf(err).Critical() {
				result.Critical = true
			}
			result.Errors = append(result.Errors, FileError{Source: move.Source, Destination: move.Destination, Err: err})
			continue
		}

		result.Actions = append(result.Actions, *action)
		if action.OverwrittenBackupPath != "" {
			result.Overwritten++
		}
		if opts.Copy {
			result.Copied++
		} else {
			result.Moved++
		}
	}

	return result
}

// executeOne performs a single planned move. The destination directory is
// checked before it is created and again right before the file is placed.
func (m *Mover) executeOne(move PlannedMove, target string, planned map[string]struct{}, opts ExecuteOptions) (*rollback.Action, error) {
	dir := filepath.Dir(move.Destination)
	if err := m.confine(target, dir); err != nil {
		return nil, err
	}
	if err := m.ops.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if err := m.confine(target, dir); err != nil {
		return nil, err
	}

	actionType := rollback.ActionMove
	if opts.Copy {
		actionType = rollback.ActionCopy
	}

	if move.Conflict == ConflictOverwrite {
		backup, err := m.overwrite(move, opts)
		if err != nil {
			return nil, err
		}
		action := rollback.NewAction(actionType, move.Source, move.Destination)
		action.OverwrittenBackupPath = backup
		return &action, nil
	}

	dest, err := m.placeWithRetry(move, planned, opts)
	if err != nil {
		return nil, err
	}
	action := rollback.NewAction(actionType, move.Source, dest)
	return &action, nil
}

// confine verifies that dir is still the directory the plan named under
// target. No existing component from target down may be a symbolic link,
// the resolved path must not have moved, and the guard must still admit it.
// Components that do not exist yet are left to MkdirAll.
func (m *Mover) confine(target, dir string) error {
	rel, err := filepath.Rel(target, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fileops.NewError(fileops.KindPathRejected, "move", dir, "destination is outside the target directory")
	}

	cur := target
	components := []string{cur}
	if rel != "." {
		for _, part := range strings.Split(rel, string(filepath.Separator)) {
			cur = filepath.Join(cur, part)
			components = append(components, cur)
		}
	}
	for _, c := range components {
		isLink, err := fileops.IsSymlink(c)
		if fileops.IsKind(err, fileops.KindNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if isLink {
			m.logger.Warn("Destination directory is a symbolic link", "path", c)
			return fileops.NewError(fileops.KindPathRejected, "move", c,
				"destination directory was replaced by a symbolic link")
		}
	}

	realTarget, err := fileops.CanonicalDir(target)
	if err != nil {
		return err
	}
	realDir, err := fileops.CanonicalDir(dir)
	if err != nil {
		return err
	}
	if realDir != filepath.Join(realTarget, rel) {
		return fileops.NewError(fileops.KindPathRejected, "move", dir,
			"destination directory resolves to "+realDir)
	}

	if m.guard != nil {
		return m.guard(dir)
	}
	return nil
}

func (m *Mover) place(src, dst string, opts ExecuteOptions) error {
	if opts.Copy {
		return m.ops.CopyNoClobber(src, dst)
	}
	return m.ops.MoveNoClobber(src, dst)
}

// placeWithRetry places the file at its planned destination. When another
// writer took the name in the meantime, the next free _N name that is not
// planned for another file is tried, up to MaxRenameAttempts times.
func (m *Mover) placeWithRetry(move PlannedMove, planned map[string]struct{}, opts ExecuteOptions) (string, error) {
	root := filepath.Join(filepath.Dir(move.Destination), filepath.Base(move.Source))
	dest := move.Destination
	n := 0

	for {
		res := m.tryPlace(move.Source, dest, opts)
		switch res.outcome {
		case attemptSuccess:
			if dest != move.Destination {
				m.logger.Info("Destination was taken, used next free name", "planned", move.Destination, "actual", dest)
			}
			return dest, nil
		case attemptGiveUp:
			return "", res.err
		}

		// attemptRetry
		dest = ""
		for dest == "" {
			n++
			if n > MaxRenameAttempts {
				return "", fileops.NewError(fileops.KindDestinationCollision, "move", move.Destination,
					"no free destination name after "+strconv.Itoa(MaxRenameAttempts)+" attempts")
			}
			candidate := SuffixedName(root, n)
			if _, taken := planned[destKey(candidate)]; taken {
				continue
			}
			dest = candidate
		}
		planned[destKey(dest)] = struct{}{}
	}
}

func (m *Mover) tryPlace(src, dst string, opts ExecuteOptions) attempt {
	err := m.place(src, dst, opts)
	switch {
	case err == nil:
		return attempt{outcome: attemptSuccess}
	case fileops.IsKind(err, fileops.KindAlreadyExists):
		return attempt{outcome: attemptRetry, err: err}
	default:
		return attempt{outcome: attemptGiveUp, err: err}
	}
}

// overwrite moves the existing destination into the backup directory, then
// places the source. If placing fails the backup is put back; if that fails
// too the error is KindBackupRestoreFailed. It returns the backup path, or
// "" when the destination had vanished and nothing was displaced.
func (m *Mover) overwrite(move PlannedMove, opts ExecuteOptions) (string, error) {
	backup, err := m.backupExisting(move.Destination, "overwrite")
	if err != nil {
		if fileops.IsKind(err, fileops.KindNotFound) {
			m.logger.Debug("Overwrite target vanished, placing without backup", "destination", move.Destination)
			return "", m.place(move.Source, move.Destination, opts)
		}
		return "", err
	}

	placeErr := m.place(move.Source, move.Destination, opts)
	if placeErr == nil {
		m.logger.Info("Overwrote file", "destination", move.Destination, "backup", backup)
		return backup, nil
	}

	if restoreErr := m.ops.MoveNoClobber(backup, move.Destination); restoreErr != nil {
		m.logger.Error("Failed to restore overwritten file", "destination", move.Destination, "backup", backup, "error", restoreErr)
		return "", (&fileops.Error{
			Kind:   fileops.KindBackupRestoreFailed,
			Op:     "overwrite",
			Path:   move.Destination,
			Reason: fmt.Sprintf("placing the new file failed (%v) and the original could not be restored", placeErr),
			Err:    restoreErr,
		}).WithHint("the original file is preserved at " + backup)
	}
	return "", placeErr
}

// backupExisting relocates path into the backup directory under
// <epoch-ms>_<tag>_<base>. Rename is used so the displaced file is never
// deleted; across devices it falls back to a no-clobber move.
func (m *Mover) backupExisting(path, tag string) (string, error) {
	info, err := m.ops.Lstat(path)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fileops.NewError(fileops.KindNotRegular, "backup", path, "only regular files can be replaced")
	}

	if err := m.ops.MkdirAll(m.backupDir, 0o700); err != nil {
		return "", err
	}

	backup, err := m.freeBackupName(path, tag)
	if err != nil {
		return "", err
	}

	err = m.ops.Rename(path, backup)
	if fileops.IsKind(err, fileops.KindCrossDevice) {
		err = m.ops.MoveNoClobber(path, backup)
	}
	if err != nil {
		return "", err
	}
	return backup, nil
}

func (m *Mover) freeBackupName(path, tag string) (string, error) {
	base, err := fileops.SanitizeFilename(filepath.Base(path))
	if err != nil {
		return "", fileops.NewError(fileops.KindPathRejected, "backup", path, err.Error())
	}
	name := strconv.FormatInt(m.now().UnixMilli(), 10) + "_" + tag + "_" + base
	backup := filepath.Join(m.backupDir, name)
	for n := 0; n <= MaxRenameAttempts; n++ {
		candidate := backup
		if n > 0 {
			candidate = SuffixedName(backup, n)
		}
		if _, err := m.ops.Lstat(candidate); fileops.IsKind(err, fileops.KindNotFound) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}
	return "", fileops.NewError(fileops.KindDestinationCollision, "backup", backup, "no free backup name")
}
