package organizer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"orgsafe/internal/logging"
	"orgsafe/pkg/fileops"
)

// MaxRenameAttempts bounds the _N suffix search, both when planning and when
// racing other writers during execution.
const MaxRenameAttempts = 100

// ConflictStrategy decides what happens when a destination is taken.
type ConflictStrategy string

const (
	StrategyRename           ConflictStrategy = "rename"
	StrategySkip             ConflictStrategy = "skip"
	StrategyOverwrite        ConflictStrategy = "overwrite"
	StrategyOverwriteIfNewer ConflictStrategy = "overwrite_if_newer"
)

// ParseConflictStrategy validates a strategy name.
func ParseConflictStrategy(s string) (ConflictStrategy, error) {
	switch cs := ConflictStrategy(strings.ToLower(strings.TrimSpace(s))); cs {
	case StrategyRename, StrategySkip, StrategyOverwrite, StrategyOverwriteIfNewer:
		return cs, nil
	case "":
		return StrategyRename, nil
	}
	return "", fmt.Errorf("unknown conflict strategy %q", s)
}

// ConflictState records how planning resolved a destination.
type ConflictState string

const (
	ConflictNone      ConflictState = "none"
	ConflictRenamed   ConflictState = "renamed"
	ConflictOverwrite ConflictState = "overwrite"
)

// PlannedMove is one entry of a plan.
type PlannedMove struct {
	Source      string
	Destination string
	Category    string
	Conflict    ConflictState
	Size        int64
	ModTime     time.Time
}

// SkippedEntry is a file left out of the plan.
type SkippedEntry struct {
	Path   string
	Reason string
}

// PlanStats aggregates a plan.
type PlanStats struct {
	TotalFiles int
	TotalSize  int64
	Conflicts  int
	Skipped    int
	ByCategory map[string]int
}

// Plan is a proposed, not yet executed, set of moves. Building one has no
// side effects.
type Plan struct {
	SourceDir string
	TargetDir string
	Strategy  ConflictStrategy
	Moves     []PlannedMove
	Skipped   []SkippedEntry
	Stats     PlanStats
}

// destinations returns the set of planned destination keys.
func (p *Plan) destinations() map[string]struct{} {
	set := make(map[string]struct{}, len(p.Moves))
	for _, m := range p.Moves {
		set[destKey(m.Destination)] = struct{}{}
	}
	return set
}

// Planner turns scanned files into a Plan.
type Planner struct {
	categorizer Categorizer
	subfolders  SubfolderResolver
	// admit reports whether a destination may be written. Nil admits all.
	admit  func(path string) bool
	lstat  func(path string) (os.FileInfo, error)
	logger *logging.AppLogger
}

// NewPlanner creates a planner. subfolders may be nil.
func NewPlanner(categorizer Categorizer, subfolders SubfolderResolver, logger *logging.AppLogger) *Planner {
	if categorizer == nil {
		categorizer = ExtensionCategorizer{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Planner{
		categorizer: categorizer,
		subfolders:  subfolders,
		lstat:       os.Lstat,
		logger:      logger,
	}
}

// Plan resolves one destination per file under targetDir. Collisions are
// checked against the disk and against destinations already planned in this
// batch.
func (p *Planner) Plan(files []fileops.FileInfo, sourceDir, targetDir string, strategy ConflictStrategy) *Plan {
	plan := &Plan{
		SourceDir: sourceDir,
		TargetDir: targetDir,
		Strategy:  strategy,
		Stats:     PlanStats{ByCategory: make(map[string]int)},
	}
	planned := make(map[string]struct{}, len(files))

	skip := func(path, reason string) {
		plan.Skipped = append(plan.Skipped, SkippedEntry{Path: path, Reason: reason})
	}

	for _, file := range files {
		if fileops.IsReservedName(file.Name) {
			p.logger.Warn("Skipping reserved device name", "path", file.AbsPath)
			skip(file.AbsPath, "reserved device name")
			continue
		}

		category := p.category(file)
		dir := filepath.Join(targetDir, category)
		if p.subfolders != nil {
			if sub := p.subfolders.Subfolder(file); sub != "" {
				dir = filepath.Join(dir, sub)
			}
		}
		dest := filepath.Join(dir, file.Name)

		if dest == file.AbsPath {
			skip(file.AbsPath, "already organized")
			continue
		}
		if p.admit != nil && !p.admit(dest) {
			skip(file.AbsPath, "destination is outside the allowed directories")
			continue
		}

		_, inBatch := planned[destKey(dest)]
		existing, onDisk := p.existing(dest)

		conflict := ConflictNone
		if inBatch || onDisk {
			switch strategy {
			case StrategySkip:
				skip(file.AbsPath, "destination exists")
				continue

			case StrategyOverwrite, StrategyOverwriteIfNewer:
				// Only a file already on disk can be overwritten; a collision
				// with another planned move is resolved by renaming.
				if inBatch {
					conflict = ConflictRenamed
					break
				}
				if existing == nil {
					skip(file.AbsPath, "destination cannot be inspected")
					continue
				}
				if strategy == StrategyOverwriteIfNewer && !file.ModTime.After(existing.ModTime()) {
					skip(file.AbsPath, "destination is newer or the same age")
					continue
				}
				if !existing.Mode().IsRegular() {
					skip(file.AbsPath, "destination is not a regular file")
					continue
				}
				conflict = ConflictOverwrite

			default:
				conflict = ConflictRenamed
			}

			if conflict == ConflictRenamed {
				renamed, ok := p.uniqueName(dest, planned)
				if !ok {
					skip(file.AbsPath, fmt.Sprintf("no free name after %d attempts", MaxRenameAttempts))
					continue
				}
				dest = renamed
			}
			plan.Stats.Conflicts++
		}

		planned[destKey(dest)] = struct{}{}
		plan.Moves = append(plan.Moves, PlannedMove{
			Source:      file.AbsPath,
			Destination: dest,
			Category:    category,
			Conflict:    conflict,
			Size:        file.Size,
			ModTime:     file.ModTime,
		})
		plan.Stats.TotalFiles++
		plan.Stats.TotalSize += file.Size
		plan.Stats.ByCategory[category]++
	}

	plan.Stats.Skipped = len(plan.Skipped)
	return plan
}

func (p *Planner) category(file fileops.FileInfo) string {
	if cc, ok := p.categorizer.(ContentCategorizer); ok {
		return cc.CategoryForFile(file.AbsPath)
	}
	return p.categorizer.CategoryFor(file.Name)
}

func (p *Planner) existing(path string) (os.FileInfo, bool) {
	info, err := p.lstat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			p.logger.Debug("Treating unreadable destination as taken", "path", path, "error", err)
			return nil, true
		}
		return nil, false
	}
	return info, true
}

// uniqueName finds the first name_N.ext that is free on disk and not planned.
func (p *Planner) uniqueName(dest string, planned map[string]struct{}) (string, bool) {
	for n := 1; n <= MaxRenameAttempts; n++ {
		candidate := SuffixedName(dest, n)
		if _, taken := planned[destKey(candidate)]; taken {
			continue
		}
		if _, onDisk := p.existing(candidate); onDisk {
			continue
		}
		return candidate, true
	}
	return "", false
}

// SuffixedName inserts _n before the extension: photo.jpg -> photo_1.jpg.
// Dotfiles keep their leading dot: .bashrc -> .bashrc_1.
func SuffixedName(path string, n int) string {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem, ext = base, ""
	}
	return filepath.Join(dir, stem+"_"+strconv.Itoa(n)+ext)
}

// destKey normalizes a destination for collision checks. Windows and macOS
// file systems are case-insensitive by default.
func destKey(path string) string {
	clean := filepath.Clean(path)
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return strings.ToLower(clean)
	}
	return clean
}
