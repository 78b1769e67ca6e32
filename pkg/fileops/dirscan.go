package fileops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// DirectoryScanOptions configures the behavior of directory scanning operations.
type DirectoryScanOptions struct {
	// SkipUnreadableDirs determines whether to skip directories that cannot be read
	// or to return an error. Setting to true makes scanning more resilient.
	SkipUnreadableDirs bool

	// MaxDepth limits the maximum recursion depth for directory traversal.
	// A depth of 1 scans only the top-level directory.
	MaxDepth int

	// IncludeHidden determines whether to include files and directories that start with '.'
	IncludeHidden bool

	// SkipPatterns contains directory names that should be skipped during scanning.
	// These are exact matches against directory names (not full paths).
	SkipPatterns []string

	// FileFilter is an optional function that determines whether a file should be included.
	FileFilter func(filename string) bool
}

// FileInfo represents information about a discovered regular file.
type FileInfo struct {
	// Name is the base filename without path components
	Name string

	// Path is the relative path from the scan root to this file
	Path string

	// AbsPath is the absolute path of the file
	AbsPath string

	Size    int64
	ModTime time.Time
	Mode    os.FileMode
}

// SecureDirectoryScanner walks a directory tree through an os.Root, so no
// entry outside the scan root can ever be reached. Symbolic links and other
// non-regular entries are never reported or descended into.
type SecureDirectoryScanner struct {
	root     *os.Root
	opts     *DirectoryScanOptions
	scanRoot string
	skipped  int
}

// NewDirectoryScanner creates a new secure directory scanner for the given path.
// The caller is expected to have approved scanPath beforehand.
//
// Usage example:
//
//	scanner, err := fileops.NewDirectoryScanner("/home/me/Downloads", nil)
//	if err != nil {
//	    return err
//	}
//	defer scanner.Close()
//	files, err := scanner.ScanDirectory(ctx)
func NewDirectoryScanner(scanPath string, opts *DirectoryScanOptions) (*SecureDirectoryScanner, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}

	if strings.TrimSpace(scanPath) == "" {
		return nil, NewError(KindPathRejected, "scan", "", "scan path cannot be empty")
	}

	absPath, err := filepath.Abs(ExpandPath(scanPath))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve scan path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, Translate("scan", absPath, err)
	}
	if !info.IsDir() {
		return nil, NewError(KindNotRegular, "scan", absPath, "scan path is not a directory")
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, Translate("scan", absPath, err)
	}

	return &SecureDirectoryScanner{
		root:     root,
		opts:     opts,
		scanRoot: absPath,
	}, nil
}

// DefaultScanOptions returns sensible default scanning options.
func DefaultScanOptions() *DirectoryScanOptions {
	return &DirectoryScanOptions{
		SkipUnreadableDirs: true,
		MaxDepth:           20,
		IncludeHidden:      false,
		SkipPatterns:       DefaultSkipPatterns(),
	}
}

// DefaultSkipPatterns returns commonly skipped directory names.
func DefaultSkipPatterns() []string {
	return []string{
		"node_modules",
		".git",
		".svn",
		".hg",
		"vendor",
		"__pycache__",
		".cache",
		".idea",
		".vscode",
	}
}

// Close releases resources associated with the scanner.
func (s *SecureDirectoryScanner) Close() error {
	if s.root != nil {
		err := s.root.Close()
		s.root = nil
		return err
	}
	return nil
}

// ScanDirectory performs a recursive scan of the configured directory.
// Results are sorted by relative path so that planning is deterministic.
func (s *SecureDirectoryScanner) ScanDirectory(ctx context.Context) ([]FileInfo, error) {
	if s.root == nil {
		return nil, fmt.Errorf("scanner has been closed")
	}

	s.skipped = 0
	var results []FileInfo
	if err := s.scanRecursive(ctx, ".", 1, &results); err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b FileInfo) int {
		return strings.Compare(a.Path, b.Path)
	})
	return results, nil
}

// Skipped returns how many entries the last scan ignored (symlinks,
// special files, unreadable directories).
func (s *SecureDirectoryScanner) Skipped() int {
	return s.skipped
}

func (s *SecureDirectoryScanner) scanRecursive(ctx context.Context, relativePath string, depth int, results *[]FileInfo) error {
	if depth > s.opts.MaxDepth {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &Error{Kind: KindAborted, Op: "scan", Path: s.scanRoot, Err: err}
	}

	dir, err := s.root.Open(relativePath)
	if err != nil {
		if s.opts.SkipUnreadableDirs {
			s.skipped++
			return nil
		}
		return Translate("scan", filepath.Join(s.scanRoot, relativePath), err)
	}
	defer dir.Close()

	entries, err := dir.ReadDir(-1)
	if err != nil {
		if s.opts.SkipUnreadableDirs {
			s.skipped++
			return nil
		}
		return Translate("scan", filepath.Join(s.scanRoot, relativePath), err)
	}

	for _, entry := range entries {
		name := entry.Name()
		entryPath := filepath.Join(relativePath, name)

		if !s.opts.IncludeHidden && strings.HasPrefix(name, ".") {
			continue
		}

		// DirEntry types come from lstat, so a link to a directory is
		// reported as a symlink here and never traversed.
		switch {
		case entry.Type()&os.ModeSymlink != 0:
			s.skipped++
		case entry.IsDir():
			if slices.Contains(s.opts.SkipPatterns, name) {
				continue
			}
			if err := s.scanRecursive(ctx, entryPath, depth+1, results); err != nil {
				return err
			}
		case entry.Type().IsRegular():
			if s.opts.FileFilter != nil && !s.opts.FileFilter(name) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				s.skipped++
				continue
			}
			*results = append(*results, FileInfo{
				Name:    name,
				Path:    entryPath,
				AbsPath: filepath.Join(s.scanRoot, entryPath),
				Size:    info.Size(),
				ModTime: info.ModTime(),
				Mode:    info.Mode(),
			})
		default:
			s.skipped++
		}
	}

	return nil
}

// ScanStats summarizes a scan result.
type ScanStats struct {
	TotalFiles  int
	LargestFile int64
	TotalSize   int64
}

// GetScanStats calculates statistics about scan results.
func GetScanStats(files []FileInfo) ScanStats {
	stats := ScanStats{}
	for _, file := range files {
		stats.TotalFiles++
		stats.TotalSize += file.Size
		if file.Size > stats.LargestFile {
			stats.LargestFile = file.Size
		}
	}
	return stats
}
