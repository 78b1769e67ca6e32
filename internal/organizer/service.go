// Package organizer plans and executes file organization: categorize,
// resolve destination conflicts, move without clobbering, and record every
// step for rollback.
package organizer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"orgsafe/internal/audit"
	"orgsafe/internal/logging"
	"orgsafe/internal/pathguard"
	"orgsafe/internal/ratelimit"
	"orgsafe/internal/rollback"
	"orgsafe/pkg/fileops"
)

// Validator is the part of pathguard.Validator the organizer depends on.
type Validator interface {
	Validate(raw string, opts pathguard.Options) (pathguard.ValidatedPath, error)
	ValidateDirectory(raw string) (pathguard.ValidatedPath, error)
}

// Options configures one organize run.
type Options struct {
	// Target is where category folders are created. Defaults to the source
	// directory.
	Target   string
	Strategy ConflictStrategy
	Copy     bool
	DryRun   bool
	// Sniff enables content detection for files with unknown extensions.
	Sniff bool
	// ByDate files each category into YYYY/MM subfolders.
	ByDate bool
	// Scan overrides the default scan options.
	Scan *fileops.DirectoryScanOptions
}

// Result is the outcome of Organize. Execution is nil for a dry run.
type Result struct {
	Plan       *Plan
	Execution  *ExecuteResult
	ManifestID string
	DryRun     bool
}

// DuplicateRemoval is the outcome of RemoveDuplicates.
type DuplicateRemoval struct {
	Removed    int
	Freed      int64
	Skipped    []SkippedEntry
	Actions    []rollback.Action
	Errors     []FileError
	ManifestID string
}

// Service ties validation, scanning, planning, execution and the rollback
// store together.
type Service struct {
	validator Validator
	limiter   ratelimit.Checker
	sink      audit.Sink
	rollback  *rollback.Service
	mover     *Mover
	logger    *logging.AppLogger
}

// NewService wires an organizer. limiter and sink may be nil.
func NewService(validator Validator, limiter ratelimit.Checker, sink audit.Sink, rb *rollback.Service, backupDir string, logger *logging.AppLogger) *Service {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if sink == nil {
		sink = audit.Discard{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	mover := NewMover(backupDir, logger)
	mover.guard = func(dir string) error {
		_, err := validator.Validate(dir, pathguard.Options{RequireExists: true})
		return err
	}
	return &Service{
		validator: validator,
		limiter:   limiter,
		sink:      sink,
		rollback:  rb,
		mover:     mover,
		logger:    logger.With("component", "organizer"),
	}
}

// Preview validates dir, scans it and returns the plan without touching any
// file.
func (s *Service) Preview(ctx context.Context, dir string, opts Options) (*Plan, error) {
	if err := ratelimit.Enforce(s.limiter, "organize", dir); err != nil {
		return nil, err
	}
	return s.plan(ctx, dir, opts)
}

func (s *Service) plan(ctx context.Context, dir string, opts Options) (*Plan, error) {
	source, err := s.validator.ValidateDirectory(dir)
	if err != nil {
		return nil, err
	}

	target := source.Real
	if opts.Target != "" {
		vt, err := s.validator.Validate(opts.Target, pathguard.Options{})
		if err != nil {
			return nil, err
		}
		if vt.Exists && !vt.IsDir {
			return nil, fileops.NewError(fileops.KindNotRegular, "organize", vt.Path, "target is not a directory")
		}
		target = vt.Real
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyRename
	}

	files, err := s.scan(ctx, source.Real, opts.Scan)
	if err != nil {
		return nil, err
	}

	var subfolders SubfolderResolver
	if opts.ByDate {
		subfolders = DateSubfolder{}
	}
	planner := NewPlanner(ExtensionCategorizer{Sniff: opts.Sniff}, subfolders, s.logger)
	planner.admit = func(dest string) bool {
		_, err := s.validator.Validate(dest, pathguard.Options{})
		return err == nil
	}

	plan := planner.Plan(files, source.Real, target, strategy)
	s.logger.Debug("Plan ready", "source", source.Real, "target", target,
		"moves", len(plan.Moves), "skipped", len(plan.Skipped), "conflicts", plan.Stats.Conflicts)
	return plan, nil
}

func (s *Service) scan(ctx context.Context, dir string, opts *fileops.DirectoryScanOptions) ([]fileops.FileInfo, error) {
	scanner, err := fileops.NewDirectoryScanner(dir, opts)
	if err != nil {
		return nil, err
	}
	defer scanner.Close()

	files, err := scanner.ScanDirectory(ctx)
	if err != nil {
		return nil, err
	}
	stats := fileops.GetScanStats(files)
	s.logger.Debug("Scan complete", "dir", dir, "files", stats.TotalFiles, "size", stats.TotalSize,
		"largest", stats.LargestFile, "skipped", scanner.Skipped())
	return files, nil
}

// Organize plans and executes. A manifest is written whenever at least one
// file operation succeeded, even if others failed. A dry run only plans.
// When the manifest cannot be written the result is still returned with the
// error, since files have already moved.
func (s *Service) Organize(ctx context.Context, dir string, opts Options) (*Result, error) {
	start := time.Now()
	defer s.logger.LogPerformance("organize", start)

	s.sink.Record(audit.Event{Operation: "organize", Path: dir, Outcome: audit.OutcomeStart, Time: start,
		Context: map[string]any{"strategy": string(opts.Strategy), "dry_run": opts.DryRun, "copy": opts.Copy}})

	result, err := s.organize(ctx, dir, opts)
	if err != nil {
		s.sink.Record(audit.Event{Operation: "organize", Path: dir, Outcome: audit.OutcomeFailure, Time: time.Now(),
			Context: map[string]any{"error": err.Error(), "kind": fileops.KindOf(err).String()}})
		return result, err
	}

	ctxFields := map[string]any{"planned": len(result.Plan.Moves), "dry_run": result.DryRun}
	if exec := result.Execution; exec != nil {
		ctxFields["moved"] = exec.Moved
		ctxFields["copied"] = exec.Copied
		ctxFields["errors"] = len(exec.Errors)
		ctxFields["critical"] = exec.Critical
		ctxFields["manifest"] = result.ManifestID
	}
	s.sink.Record(audit.Event{Operation: "organize", Path: dir, Outcome: audit.OutcomeSuccess, Time: time.Now(), Context: ctxFields})
	return result, nil
}

func (s *Service) organize(ctx context.Context, dir string, opts Options) (*Result, error) {
	if err := ratelimit.Enforce(s.limiter, "organize", dir); err != nil {
		return nil, err
	}

	plan, err := s.plan(ctx, dir, opts)
	if err != nil {
		return nil, err
	}

	result := &Result{Plan: plan, DryRun: opts.DryRun}
	if opts.DryRun {
		return result, nil
	}

	exec := s.mover.Execute(ctx, plan, ExecuteOptions{Copy: opts.Copy})
	result.Execution = exec

	if exec.Critical {
		s.logger.Error("Organize finished with unrestored overwrite backups", "dir", plan.SourceDir)
	}

	if len(exec.Actions) > 0 {
		verb := "Organized"
		if opts.Copy {
			verb = "Copied"
		}
		desc := fmt.Sprintf("%s %d files from %s into %s", verb, len(exec.Actions), plan.SourceDir, plan.TargetDir)
		id, err := s.rollback.CreateManifest(desc, exec.Actions)
		if err != nil {
			return result, fmt.Errorf("files were organized but the rollback manifest could not be written: %w", err)
		}
		result.ManifestID = id
	}

	return result, nil
}

// FindDuplicates validates dir, scans it and groups identical files.
func (s *Service) FindDuplicates(ctx context.Context, dir string, strategy DuplicateStrategy, scan *fileops.DirectoryScanOptions) ([]DuplicateGroup, error) {
	if err := ratelimit.Enforce(s.limiter, "duplicates", dir); err != nil {
		return nil, err
	}
	source, err := s.validator.ValidateDirectory(dir)
	if err != nil {
		return nil, err
	}
	files, err := s.scan(ctx, source.Real, scan)
	if err != nil {
		return nil, err
	}
	return FindDuplicates(ctx, files, strategy)
}

// RemoveDuplicates moves every non-kept file of groups into the backup
// directory and records delete actions. A file is only removed if it still
// has the group's content.
func (s *Service) RemoveDuplicates(ctx context.Context, groups []DuplicateGroup) (*DuplicateRemoval, error) {
	if err := ratelimit.Enforce(s.limiter, "duplicates", ""); err != nil {
		return nil, err
	}

	out := &DuplicateRemoval{}
	for _, group := range groups {
		for _, f := range group.Remove {
			if ctx.Err() != nil {
				out.Skipped = append(out.Skipped, SkippedEntry{Path: f.AbsPath, Reason: "cancelled"})
				continue
			}

			action, err := s.removeDuplicate(f, group.Hash)
			if err != nil {
				s.logger.Warn("Could not remove duplicate", "path", f.AbsPath, "error", err)
				out.Errors = append(out.Errors, FileError{Source: f.AbsPath, Err: err})
				continue
			}
			if action == nil {
				out.Skipped = append(out.Skipped, SkippedEntry{Path: f.AbsPath, Reason: "content changed since the scan"})
				continue
			}
			out.Actions = append(out.Actions, *action)
			out.Removed++
			out.Freed += f.Size
		}
	}

	s.sink.Record(audit.Event{Operation: "remove_duplicates", Outcome: audit.OutcomeSuccess, Time: time.Now(),
		Context: map[string]any{"removed": out.Removed, "errors": len(out.Errors)}})

	if len(out.Actions) > 0 {
		id, err := s.rollback.CreateManifest(fmt.Sprintf("Removed %d duplicate files", out.Removed), out.Actions)
		if err != nil {
			return out, fmt.Errorf("duplicates were removed but the rollback manifest could not be written: %w", err)
		}
		out.ManifestID = id
	}
	return out, nil
}

func (s *Service) removeDuplicate(f fileops.FileInfo, hash string) (*rollback.Action, error) {
	vp, err := s.validator.Validate(f.AbsPath, pathguard.Options{RequireExists: true})
	if err != nil {
		return nil, err
	}

	sum, err := hashFile(vp.Path)
	if err != nil {
		return nil, err
	}
	if sum != hash {
		return nil, nil
	}

	backup, err := s.mover.backupExisting(vp.Path, "delete")
	if err != nil {
		return nil, err
	}
	action := rollback.NewAction(rollback.ActionDelete, vp.Path, "")
	action.BackupPath = backup
	s.logger.Info("Removed duplicate", "path", vp.Path, "backup", filepath.Base(backup))
	return &action, nil
}
