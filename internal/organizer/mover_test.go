package organizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgsafe/internal/logging"
	"orgsafe/internal/rollback"
	"orgsafe/pkg/fileops"
)

// faultOps injects failures into selected calls and otherwise uses the real
// file system.
type faultOps struct {
	osOps
	moveErr   func(src, dst string) error
	renameErr func(oldPath, newPath string) error
}

func (f *faultOps) MoveNoClobber(src, dst string) error {
	if f.moveErr != nil {
		if err := f.moveErr(src, dst); err != nil {
			return err
		}
	}
	return f.osOps.MoveNoClobber(src, dst)
}

func (f *faultOps) Rename(oldPath, newPath string) error {
	if f.renameErr != nil {
		if err := f.renameErr(oldPath, newPath); err != nil {
			return err
		}
	}
	return f.osOps.Rename(oldPath, newPath)
}

func newTestMover(t *testing.T) (*Mover, string) {
	t.Helper()
	backupDir := filepath.Join(t.TempDir(), "backups")
	logger, _ := logging.NewTestLogger()
	return NewMover(backupDir, logger), backupDir
}

func backups(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, filepath.Join(dir, e.Name()))
	}
	return names
}

// Scenario: rename strategy keeps Images/photo.jpg untouched and places the
// new file at Images/photo_1.jpg.
func TestExecute_RenameLeavesExistingUntouched(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "photo.jpg"), "new photo")
	writeFile(t, filepath.Join(dst, "Images", "photo.jpg"), "existing photo")

	plan := NewPlanner(nil, nil, nil).Plan(
		[]fileops.FileInfo{fileInfo(t, src, "photo.jpg")}, src, dst, StrategyRename)
	mover, _ := newTestMover(t)

	result := mover.Execute(context.Background(), plan, ExecuteOptions{})
	require.Empty(t, result.Errors)
	assert.Equal(t, 1, result.Moved)

	assert.Equal(t, "existing photo", readFile(t, filepath.Join(dst, "Images", "photo.jpg")))
	assert.Equal(t, "new photo", readFile(t, filepath.Join(dst, "Images", "photo_1.jpg")))
	assert.NoFileExists(t, filepath.Join(src, "photo.jpg"))

	require.Len(t, result.Actions, 1)
	a := result.Actions[0]
	assert.Equal(t, rollback.ActionMove, a.Type)
	assert.Equal(t, filepath.Join(src, "photo.jpg"), a.OriginalPath)
	assert.Equal(t, filepath.Join(dst, "Images", "photo_1.jpg"), a.CurrentPath)
	assert.Empty(t, a.OverwrittenBackupPath)
}

// Two files with the same name never lose one another.
func TestExecute_NoClobberKeepsBothContents(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "one", "data.csv"), "first")
	writeFile(t, filepath.Join(src, "two", "data.csv"), "second")

	plan := NewPlanner(nil, nil, nil).Plan([]fileops.FileInfo{
		fileInfo(t, src, "one/data.csv"),
		fileInfo(t, src, "two/data.csv"),
	}, src, dst, StrategyRename)
	mover, _ := newTestMover(t)

	result := mover.Execute(context.Background(), plan, ExecuteOptions{})
	require.Empty(t, result.Errors)
	assert.Equal(t, 2, result.Moved)

	entries, err := os.ReadDir(filepath.Join(dst, "Spreadsheets"))
	require.NoError(t, err)
	var contents []string
	for _, e := range entries {
		contents = append(contents, readFile(t, filepath.Join(dst, "Spreadsheets", e.Name())))
	}
	assert.ElementsMatch(t, []string{"first", "second"}, contents)
}

// A destination created by someone else after planning is retried under
// the next name that is free and not planned for another file.
func TestExecute_RetriesRacedDestination(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a", "notes.txt"), "a")
	writeFile(t, filepath.Join(src, "b", "notes.txt"), "b")

	plan := NewPlanner(nil, nil, nil).Plan([]fileops.FileInfo{
		fileInfo(t, src, "a/notes.txt"),
		fileInfo(t, src, "b/notes.txt"),
	}, src, dst, StrategyRename)
	require.Equal(t, filepath.Join(dst, "Documents", "notes_1.txt"), plan.Moves[1].Destination)

	writeFile(t, filepath.Join(dst, "Documents", "notes.txt"), "racer")

	mover, _ := newTestMover(t)
	result := mover.Execute(context.Background(), plan, ExecuteOptions{})
	require.Empty(t, result.Errors)

	docs := filepath.Join(dst, "Documents")
	assert.Equal(t, "racer", readFile(t, filepath.Join(docs, "notes.txt")))
	assert.Equal(t, "a", readFile(t, filepath.Join(docs, "notes_2.txt")))
	assert.Equal(t, "b", readFile(t, filepath.Join(docs, "notes_1.txt")))
	assert.Equal(t, filepath.Join(docs, "notes_2.txt"), result.Actions[0].CurrentPath)
}

func TestExecute_RetryBudgetExhausted(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "x.txt"), "payload")

	plan := NewPlanner(nil, nil, nil).Plan(
		[]fileops.FileInfo{fileInfo(t, src, "x.txt")}, src, dst, StrategyRename)

	docs := filepath.Join(dst, "Documents")
	writeFile(t, filepath.Join(docs, "x.txt"), "taken")
	for n := 1; n <= MaxRenameAttempts; n++ {
		writeFile(t, filepath.Join(docs, "x_"+strconv.Itoa(n)+".txt"), "taken")
	}

	mover, _ := newTestMover(t)
	result := mover.Execute(context.Background(), plan, ExecuteOptions{})
	require.Len(t, result.Errors, 1)
	assert.Equal(t, fileops.KindDestinationCollision, fileops.KindOf(result.Errors[0].Err))
	assert.Equal(t, "payload", readFile(t, filepath.Join(src, "x.txt")))
	assert.Empty(t, result.Actions)
}

func overwritePlan(t *testing.T) (*Plan, string, string) {
	t.Helper()
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "report.pdf"), "replacement")
	writeFile(t, filepath.Join(dst, "Documents", "report.pdf"), "original bytes \x00\x01\x02")

	plan := NewPlanner(nil, nil, nil).Plan(
		[]fileops.FileInfo{fileInfo(t, src, "report.pdf")}, src, dst, StrategyOverwrite)
	require.Len(t, plan.Moves, 1)
	require.Equal(t, ConflictOverwrite, plan.Moves[0].Conflict)
	return plan, filepath.Join(src, "report.pdf"), filepath.Join(dst, "Documents", "report.pdf")
}

func TestExecute_OverwriteBacksUpFirst(t *testing.T) {
	plan, source, dest := overwritePlan(t)
	mover, backupDir := newTestMover(t)

	result := mover.Execute(context.Background(), plan, ExecuteOptions{})
	require.Empty(t, result.Errors)
	assert.Equal(t, 1, result.Overwritten)

	assert.Equal(t, "replacement", readFile(t, dest))
	assert.NoFileExists(t, source)

	saved := backups(t, backupDir)
	require.Len(t, saved, 1)
	assert.True(t, strings.HasSuffix(saved[0], "_overwrite_report.pdf"), saved[0])
	assert.Equal(t, "original bytes \x00\x01\x02", readFile(t, saved[0]))
	assert.Equal(t, saved[0], result.Actions[0].OverwrittenBackupPath)
}

// The move fails after the backup was taken: the original comes back byte
// for byte and nothing is recorded.
func TestExecute_OverwriteFailureRestoresOriginal(t *testing.T) {
	plan, source, dest := overwritePlan(t)
	mover, backupDir := newTestMover(t)
	mover.ops = &faultOps{moveErr: func(src, dst string) error {
		if src == source {
			return fileops.NewError(fileops.KindAccessDenied, "link", dst, "injected")
		}
		return nil
	}}

	result := mover.Execute(context.Background(), plan, ExecuteOptions{})
	require.Len(t, result.Errors, 1)
	assert.Equal(t, fileops.KindAccessDenied, fileops.KindOf(result.Errors[0].Err))
	assert.False(t, result.Critical)
	assert.Empty(t, result.Actions)

	assert.Equal(t, "original bytes \x00\x01\x02", readFile(t, dest))
	assert.Equal(t, "replacement", readFile(t, source))
	assert.Empty(t, backups(t, backupDir))
}

// When even the restore fails the error is critical and the backup still
// holds the original content.
func TestExecute_OverwriteRestoreFailureIsCritical(t *testing.T) {
	plan, source, dest := overwritePlan(t)
	mover, backupDir := newTestMover(t)
	mover.ops = &faultOps{moveErr: func(src, dst string) error {
		return fileops.NewError(fileops.KindAccessDenied, "link", dst, "injected")
	}}

	result := mover.Execute(context.Background(), plan, ExecuteOptions{})
	require.Len(t, result.Errors, 1)
	assert.True(t, result.Critical)

	err := result.Errors[0].Err
	assert.True(t, errors.Is(err, fileops.ErrBackupRestoreFailed))
	typed, ok := fileops.AsError(err)
	require.True(t, ok)

	saved := backups(t, backupDir)
	require.Len(t, saved, 1)
	assert.Contains(t, typed.Hint, saved[0])
	assert.Equal(t, "original bytes \x00\x01\x02", readFile(t, saved[0]))
	assert.NoFileExists(t, dest)
	assert.Equal(t, "replacement", readFile(t, source))
}

func TestExecute_OverwriteBackupAcrossDevices(t *testing.T) {
	plan, _, dest := overwritePlan(t)
	mover, backupDir := newTestMover(t)
	mover.ops = &faultOps{renameErr: func(oldPath, newPath string) error {
		return fileops.NewError(fileops.KindCrossDevice, "rename", newPath, "injected")
	}}

	result := mover.Execute(context.Background(), plan, ExecuteOptions{})
	require.Empty(t, result.Errors)
	assert.Equal(t, "replacement", readFile(t, dest))

	saved := backups(t, backupDir)
	require.Len(t, saved, 1)
	assert.Equal(t, "original bytes \x00\x01\x02", readFile(t, saved[0]))
}

func TestExecute_CopyMode(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "song.mp3"), "tune")

	plan := NewPlanner(nil, nil, nil).Plan(
		[]fileops.FileInfo{fileInfo(t, src, "song.mp3")}, src, dst, StrategyRename)
	mover, _ := newTestMover(t)

	result := mover.Execute(context.Background(), plan, ExecuteOptions{Copy: true})
	require.Empty(t, result.Errors)
	assert.Equal(t, 1, result.Copied)
	assert.Equal(t, 0, result.Moved)

	assert.Equal(t, "tune", readFile(t, filepath.Join(src, "song.mp3")))
	assert.Equal(t, "tune", readFile(t, filepath.Join(dst, "Audio", "song.mp3")))
	assert.Equal(t, rollback.ActionCopy, result.Actions[0].Type)
}

// One failing file does not stop the batch.
func TestExecute_PerFileIsolation(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "a")
	writeFile(t, filepath.Join(src, "b.txt"), "b")

	plan := NewPlanner(nil, nil, nil).Plan([]fileops.FileInfo{
		fileInfo(t, src, "a.txt"),
		fileInfo(t, src, "b.txt"),
	}, src, dst, StrategyRename)
	require.NoError(t, os.Remove(filepath.Join(src, "a.txt")))

	mover, _ := newTestMover(t)
	result := mover.Execute(context.Background(), plan, ExecuteOptions{})

	require.Len(t, result.Errors, 1)
	assert.Equal(t, fileops.KindNotFound, fileops.KindOf(result.Errors[0].Err))
	assert.Equal(t, 1, result.Moved)
	assert.Equal(t, "b", readFile(t, filepath.Join(dst, "Documents", "b.txt")))
}

func TestExecute_CancelledBetweenFiles(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "a")

	plan := NewPlanner(nil, nil, nil).Plan(
		[]fileops.FileInfo{fileInfo(t, src, "a.txt")}, src, dst, StrategyRename)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mover, _ := newTestMover(t)
	result := mover.Execute(ctx, plan, ExecuteOptions{})
	assert.True(t, result.Aborted)
	assert.Empty(t, result.Actions)
	require.Len(t, result.Skipped, 1)
	assert.FileExists(t, filepath.Join(src, "a.txt"))
}

func skipWithoutSymlinks(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires elevated privileges on Windows")
	}
}

// A category folder replaced by a symlink after planning must not carry the
// file out of the target directory.
func TestExecute_RefusesDestinationDirSwappedToSymlink(t *testing.T) {
	skipWithoutSymlinks(t)

	for _, tt := range []struct {
		name       string
		subfolders SubfolderResolver
	}{
		{name: "category folder", subfolders: nil},
		{name: "below a swapped folder", subfolders: DateSubfolder{}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			src := t.TempDir()
			dst := t.TempDir()
			outside := t.TempDir()
			writeFile(t, filepath.Join(src, "report.pdf"), "report")

			plan := NewPlanner(nil, tt.subfolders, nil).Plan(
				[]fileops.FileInfo{fileInfo(t, src, "report.pdf")}, src, dst, StrategyRename)
			require.Len(t, plan.Moves, 1)
			require.NoError(t, os.Symlink(outside, filepath.Join(dst, "Documents")))

			mover, _ := newTestMover(t)
			result := mover.Execute(context.Background(), plan, ExecuteOptions{})

			require.Len(t, result.Errors, 1)
			assert.Equal(t, fileops.KindPathRejected, fileops.KindOf(result.Errors[0].Err))
			assert.Empty(t, result.Actions)
			assert.Equal(t, "report", readFile(t, filepath.Join(src, "report.pdf")))

			entries, err := os.ReadDir(outside)
			require.NoError(t, err)
			assert.Empty(t, entries, "nothing may be created outside the target")
		})
	}
}

// The guard is consulted for every destination directory.
func TestExecute_GuardRejectsDestination(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "a")

	plan := NewPlanner(nil, nil, nil).Plan(
		[]fileops.FileInfo{fileInfo(t, src, "a.txt")}, src, dst, StrategyRename)

	mover, _ := newTestMover(t)
	var checked []string
	mover.guard = func(dir string) error {
		checked = append(checked, dir)
		return fileops.NewError(fileops.KindPathRejected, "validate", dir, "not allowed")
	}
	result := mover.Execute(context.Background(), plan, ExecuteOptions{})

	require.Len(t, result.Errors, 1)
	assert.Equal(t, fileops.KindPathRejected, fileops.KindOf(result.Errors[0].Err))
	assert.Equal(t, []string{filepath.Join(dst, "Documents")}, checked)
	assert.FileExists(t, filepath.Join(src, "a.txt"))
}
