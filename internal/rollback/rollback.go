package rollback

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"orgsafe/pkg/fileops"
)

// ActionError describes one action that could not be undone.
type ActionError struct {
	Action Action
	Err    error
}

func (e ActionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Action.Type, e.Action.OriginalPath, e.Err)
}

// Result summarizes a rollback.
type Result struct {
	ManifestID string
	Success    int
	Failed     int
	Errors     []ActionError
	// ManifestRetained is set when the manifest is still on disk after the
	// call, either for a retry after partial failure or because it could not
	// be deleted.
	ManifestRetained bool
	Warnings         []string
}

// Rollback undoes the manifest's actions in reverse order. The manifest is
// claimed first so that concurrent callers cannot replay it twice. It is
// deleted when every action was undone and restored for a later retry
// otherwise.
func (s *Service) Rollback(id string) (*Result, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	manifestPath := s.manifestPath(id)
	claimPath := s.claimPath(id)

	if err := os.Rename(manifestPath, claimPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e := fileops.NewError(fileops.KindManifestNotFound, "rollback", id, "no such manifest")
			if _, statErr := os.Lstat(claimPath); statErr == nil {
				e.WithHint("a rollback of this manifest is in progress or was interrupted; if no other rollback is running, rename " +
					claimPath + " to " + manifestPath + " and retry")
			}
			return nil, e
		}
		return nil, fileops.Translate("claim", manifestPath, err)
	}

	m, err := readManifest(claimPath)
	if err != nil {
		s.release(claimPath, manifestPath)
		return nil, err
	}

	s.logger.Info("Rolling back", "id", id, "actions", len(m.Actions))

	result := &Result{ManifestID: id}
	for i := len(m.Actions) - 1; i >= 0; i-- {
		action := m.Actions[i]
		if err := s.undo(action); err != nil {
			s.logger.Error("Failed to undo action", "type", action.Type, "original", action.OriginalPath, "error", err)
			result.Failed++
			result.Errors = append(result.Errors, ActionError{Action: action, Err: err})
			continue
		}
		result.Success++
	}

	if result.Failed > 0 {
		s.release(claimPath, manifestPath)
		result.ManifestRetained = true
		return result, nil
	}

	if err := os.Remove(claimPath); err != nil {
		result.ManifestRetained = true
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"all actions were undone but the manifest file %s could not be deleted (%v); do not roll it back again", claimPath, err))
		s.logger.Warn("Failed to delete consumed manifest", "path", claimPath, "error", err)
	}

	return result, nil
}

// release returns a claimed manifest to its listable name.
func (s *Service) release(claimPath, manifestPath string) {
	if err := os.Rename(claimPath, manifestPath); err != nil {
		s.logger.Error("Failed to release manifest claim", "path", claimPath, "error", err)
	}
}

func (s *Service) undo(a Action) error {
	switch a.Type {
	case ActionMove:
		return s.undoMove(a)
	case ActionCopy:
		return s.undoCopy(a)
	case ActionDelete:
		return s.undoDelete(a)
	}
	return fmt.Errorf("unknown action type %q", a.Type)
}

// undoMove moves the file back, then puts any overwritten file back in its
// place. A missing current file with the original present means the move was
// already undone.
func (s *Service) undoMove(a Action) error {
	currentExists, err := exists(a.CurrentPath)
	if err != nil {
		return err
	}
	originalExists, err := exists(a.OriginalPath)
	if err != nil {
		return err
	}

	if currentExists && originalExists && a.OverwrittenBackupPath != "" {
		// Both back in place and the backup consumed: undone by an earlier attempt.
		if backupExists, err := exists(a.OverwrittenBackupPath); err == nil && !backupExists {
			s.logger.Debug("Overwriting move already undone", "original", a.OriginalPath)
			return nil
		}
	}

	switch {
	case currentExists && originalExists:
		return fileops.NewError(fileops.KindDestinationCollision, "rollback", a.OriginalPath,
			"a file already exists at the original location")
	case !currentExists && !originalExists:
		return fileops.NewError(fileops.KindNotFound, "rollback", a.CurrentPath,
			"file is missing from both its current and original location")
	case currentExists:
		if err := fileops.EnsureDirectoryExists(filepath.Dir(a.OriginalPath)); err != nil {
			return err
		}
		if err := moveBack(a.CurrentPath, a.OriginalPath); err != nil {
			return err
		}
	default:
		s.logger.Debug("Move already undone", "original", a.OriginalPath)
	}

	return s.restoreOverwritten(a)
}

// undoCopy removes the copy and restores anything it replaced. Once the
// overwritten backup has been consumed, the file at the current path is the
// restored original and is left alone.
func (s *Service) undoCopy(a Action) error {
	if a.OverwrittenBackupPath != "" {
		backupExists, err := exists(a.OverwrittenBackupPath)
		if err != nil {
			return err
		}
		if !backupExists {
			currentExists, err := exists(a.CurrentPath)
			if err != nil {
				return err
			}
			if currentExists {
				s.logger.Debug("Overwriting copy already undone", "path", a.CurrentPath)
				return nil
			}
		}
	}

	if err := os.Remove(a.CurrentPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fileops.Translate("remove", a.CurrentPath, err)
	}
	return s.restoreOverwritten(a)
}

// undoDelete renames the backup to the original location.
func (s *Service) undoDelete(a Action) error {
	backupExists, err := exists(a.BackupPath)
	if err != nil {
		return err
	}
	if !backupExists {
		if originalExists, _ := exists(a.OriginalPath); originalExists {
			s.logger.Debug("Delete already undone", "original", a.OriginalPath)
			return nil
		}
		return fileops.NewError(fileops.KindBackupRestoreFailed, "rollback", a.BackupPath,
			"backup of deleted file is missing")
	}

	if err := fileops.EnsureDirectoryExists(filepath.Dir(a.OriginalPath)); err != nil {
		return err
	}
	return moveBack(a.BackupPath, a.OriginalPath)
}

func (s *Service) restoreOverwritten(a Action) error {
	if a.OverwrittenBackupPath == "" {
		return nil
	}

	backupExists, err := exists(a.OverwrittenBackupPath)
	if err != nil {
		return err
	}
	if !backupExists {
		return fileops.NewError(fileops.KindBackupRestoreFailed, "rollback", a.OverwrittenBackupPath,
			"backup of overwritten file is missing").
			WithHint("the file that was replaced at " + a.CurrentPath + " cannot be restored")
	}

	if err := moveBack(a.OverwrittenBackupPath, a.CurrentPath); err != nil {
		if fileops.IsKind(err, fileops.KindAlreadyExists) {
			return err
		}
		return &fileops.Error{Kind: fileops.KindBackupRestoreFailed, Op: "rollback", Path: a.OverwrittenBackupPath,
			Reason: "could not restore overwritten file", Err: err}
	}
	return nil
}

// moveBack relocates src to dst without clobbering. Backups may live on
// another device, so it goes through MoveNoClobber rather than os.Rename.
func moveBack(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fileops.NewError(fileops.KindAlreadyExists, "rollback", dst, "destination already exists")
	}
	return fileops.MoveNoClobber(src, dst)
}

func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fileops.Translate("stat", path, err)
}
