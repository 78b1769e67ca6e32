package organizer

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"orgsafe/pkg/fileops"
)

// DuplicateStrategy picks which copy of a duplicate group is kept.
type DuplicateStrategy string

const (
	KeepNewest       DuplicateStrategy = "newest"
	KeepOldest       DuplicateStrategy = "oldest"
	KeepBestLocation DuplicateStrategy = "best_location"
)

// ParseDuplicateStrategy validates a strategy name.
func ParseDuplicateStrategy(s string) (DuplicateStrategy, error) {
	switch ds := DuplicateStrategy(strings.ToLower(strings.TrimSpace(s))); ds {
	case KeepNewest, KeepOldest, KeepBestLocation:
		return ds, nil
	case "":
		return KeepBestLocation, nil
	}
	return "", fmt.Errorf("unknown duplicate strategy %q", s)
}

// DuplicateGroup is a set of files with identical content.
type DuplicateGroup struct {
	Hash   string
	Size   int64
	Files  []fileops.FileInfo
	Keep   fileops.FileInfo
	Remove []fileops.FileInfo
}

// Wasted is the space the removable copies take.
func (g DuplicateGroup) Wasted() int64 {
	return g.Size * int64(len(g.Remove))
}

// FindDuplicates groups files by size, hashes the candidates in parallel and
// returns groups of identical content, each with a recommended keeper.
// Empty files are ignored. Files that cannot be hashed are left out.
func FindDuplicates(ctx context.Context, files []fileops.FileInfo, strategy DuplicateStrategy) ([]DuplicateGroup, error) {
	bySize := make(map[int64][]fileops.FileInfo)
	for _, f := range files {
		if f.Size == 0 {
			continue
		}
		bySize[f.Size] = append(bySize[f.Size], f)
	}

	var candidates []fileops.FileInfo
	for _, group := range bySize {
		if len(group) > 1 {
			candidates = append(candidates, group...)
		}
	}

	var (
		mu     sync.Mutex
		byHash = make(map[string][]fileops.FileInfo)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, f := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sum, err := hashFile(f.AbsPath)
			if err != nil {
				// Vanished or unreadable files are not duplicates of anything.
				return nil
			}
			key := fmt.Sprintf("%d:%s", f.Size, sum)
			mu.Lock()
			byHash[key] = append(byHash[key], f)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &fileops.Error{Kind: fileops.KindAborted, Op: "duplicates", Reason: "cancelled while hashing", Err: err}
	}

	var groups []DuplicateGroup
	for key, members := range byHash {
		if len(members) < 2 {
			continue
		}
		_, hash, _ := strings.Cut(key, ":")
		slices.SortFunc(members, func(a, b fileops.FileInfo) int { return cmp.Compare(a.AbsPath, b.AbsPath) })

		keep := pickKeeper(members, strategy)
		group := DuplicateGroup{Hash: hash, Size: members[0].Size, Files: members, Keep: keep}
		for _, f := range members {
			if f.AbsPath != keep.AbsPath {
				group.Remove = append(group.Remove, f)
			}
		}
		groups = append(groups, group)
	}

	slices.SortFunc(groups, func(a, b DuplicateGroup) int {
		if c := cmp.Compare(b.Wasted(), a.Wasted()); c != 0 {
			return c
		}
		return cmp.Compare(a.Keep.AbsPath, b.Keep.AbsPath)
	})
	return groups, nil
}

func hashFile(path string) (string, error) {
	f, err := fileops.OpenNoFollow(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fileops.Translate("read", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// pickKeeper expects members sorted by path so ties resolve lexically.
func pickKeeper(members []fileops.FileInfo, strategy DuplicateStrategy) fileops.FileInfo {
	best := members[0]
	for _, f := range members[1:] {
		if better(f, best, strategy) {
			best = f
		}
	}
	return best
}

func better(a, b fileops.FileInfo, strategy DuplicateStrategy) bool {
	switch strategy {
	case KeepNewest:
		return a.ModTime.After(b.ModTime)
	case KeepOldest:
		return a.ModTime.Before(b.ModTime)
	default:
		pa, pb := scoredPath(a), scoredPath(b)
		sa, sb := LocationScore(pa), LocationScore(pb)
		if sa != sb {
			return sa > sb
		}
		return depth(pa) < depth(pb)
	}
}

// scoredPath prefers the path relative to the scanned directory so that
// where the scan root itself lives does not affect the ranking.
func scoredPath(f fileops.FileInfo) string {
	if f.Path != "" {
		return f.Path
	}
	return f.AbsPath
}

// LocationScore ranks how deliberate a file's location looks. Higher is a
// better place to keep a copy. The deepest recognized folder decides, except
// that anything under a temp or cache folder scores 0.
func LocationScore(path string) int {
	score := 2
	for _, segment := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		switch strings.ToLower(segment) {
		case "tmp", "temp", "cache", ".cache", "caches":
			return 0
		case "downloads":
			score = 1
		case "pictures", "photos", "music", "videos", "movies":
			score = 3
		case "desktop":
			score = 4
		case "documents":
			score = 5
		}
	}
	return score
}

func depth(path string) int {
	return strings.Count(filepath.ToSlash(filepath.Clean(path)), "/")
}
