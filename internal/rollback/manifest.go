// Package rollback persists the reversible actions of an organize batch and
// replays them in reverse to undo it.
package rollback

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"orgsafe/internal/logging"
	"orgsafe/pkg/fileops"
)

// ActionType identifies how an action is inverted.
type ActionType string

const (
	ActionMove   ActionType = "move"
	ActionCopy   ActionType = "copy"
	ActionDelete ActionType = "delete"
)

// Action records one successfully executed file operation. It is created
// once and never mutated.
type Action struct {
	Type         ActionType `json:"type"`
	OriginalPath string     `json:"originalPath"`
	CurrentPath  string     `json:"currentPath,omitempty"`
	// BackupPath holds the displaced file of a delete.
	BackupPath string `json:"backupPath,omitempty"`
	// OverwrittenBackupPath holds the file a move or copy replaced.
	OverwrittenBackupPath string `json:"overwrittenBackupPath,omitempty"`
	Timestamp             int64  `json:"timestamp"`
}

// Manifest is the persisted, ordered list of actions from one batch.
type Manifest struct {
	ID          string   `json:"id"`
	Timestamp   int64    `json:"timestamp"`
	Description string   `json:"description"`
	Actions     []Action `json:"actions"`
}

// Time returns the manifest timestamp as a time.Time.
func (m Manifest) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

const (
	manifestExt = ".json"
	claimSuffix = ".claim"
)

// Service owns the manifest directory.
type Service struct {
	dir    string
	logger *logging.AppLogger
	now    func() time.Time
}

// NewService creates a service storing manifests in dir. The directory is
// created lazily on the first write.
func NewService(dir string, logger *logging.AppLogger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		dir:    dir,
		logger: logger.With("component", "rollback"),
		now:    time.Now,
	}
}

// Dir returns the manifest directory.
func (s *Service) Dir() string {
	return s.dir
}

// NewAction stamps an action with the current time.
func NewAction(t ActionType, original, current string) Action {
	return Action{Type: t, OriginalPath: original, CurrentPath: current, Timestamp: time.Now().UnixMilli()}
}

// CreateManifest persists actions under a new id and returns it.
func (s *Service) CreateManifest(description string, actions []Action) (string, error) {
	if len(actions) == 0 {
		return "", fmt.Errorf("refusing to create an empty manifest")
	}
	for i, a := range actions {
		if err := a.validate(); err != nil {
			return "", fmt.Errorf("action %d: %w", i, err)
		}
	}

	m := Manifest{
		ID:          uuid.NewString(),
		Timestamp:   s.now().UnixMilli(),
		Description: description,
		Actions:     slices.Clone(actions),
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", fileops.Translate("mkdir", s.dir, err)
	}
	if err := fileops.AtomicWriteFile(s.manifestPath(m.ID), data, 0o600); err != nil {
		return "", err
	}

	s.logger.Info("Rollback manifest created", "id", m.ID, "actions", len(actions))
	return m.ID, nil
}

// ListManifests returns all stored manifests, newest first. A missing
// directory means no manifests. Unreadable or corrupt files are skipped with
// a warning.
func (s *Service) ListManifests() ([]Manifest, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fileops.Translate("list", s.dir, err)
	}

	var manifests []Manifest
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasSuffix(name, manifestExt) {
			continue
		}
		id := strings.TrimSuffix(name, manifestExt)
		if ValidateID(id) != nil {
			continue
		}

		m, err := readManifest(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn("Skipping unreadable manifest", "file", name, "error", err)
			continue
		}
		manifests = append(manifests, *m)
	}

	slices.SortFunc(manifests, func(a, b Manifest) int {
		if c := cmp.Compare(b.Timestamp, a.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return manifests, nil
}

// Load reads a single manifest without claiming it.
func (s *Service) Load(id string) (*Manifest, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	m, err := readManifest(s.manifestPath(id))
	if fileops.IsKind(err, fileops.KindNotFound) {
		return nil, fileops.NewError(fileops.KindManifestNotFound, "load", id, "no such manifest")
	}
	return m, err
}

// ValidateID accepts only canonical UUID strings, which keeps the id safe to
// embed in a file name.
func ValidateID(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return fileops.NewError(fileops.KindInvalidManifestID, "rollback", "", fmt.Sprintf("invalid manifest id %q", id))
	}
	return nil
}

func (s *Service) manifestPath(id string) string {
	return filepath.Join(s.dir, id+manifestExt)
}

func (s *Service) claimPath(id string) string {
	return filepath.Join(s.dir, "."+id+manifestExt+claimSuffix)
}

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileops.Translate("read", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &fileops.Error{Kind: fileops.KindManifestCorrupt, Op: "read", Path: path, Err: err}
	}
	if ValidateID(m.ID) != nil {
		return nil, fileops.NewError(fileops.KindManifestCorrupt, "read", path, "manifest id is missing or malformed")
	}
	for i, a := range m.Actions {
		if err := a.validate(); err != nil {
			return nil, fileops.NewError(fileops.KindManifestCorrupt, "read", path, fmt.Sprintf("action %d: %v", i, err))
		}
	}
	return &m, nil
}

func (a Action) validate() error {
	if a.OriginalPath == "" || !filepath.IsAbs(a.OriginalPath) {
		return fmt.Errorf("original path must be absolute")
	}
	switch a.Type {
	case ActionMove, ActionCopy:
		if a.CurrentPath == "" || !filepath.IsAbs(a.CurrentPath) {
			return fmt.Errorf("%s action needs an absolute current path", a.Type)
		}
	case ActionDelete:
		if a.BackupPath == "" || !filepath.IsAbs(a.BackupPath) {
			return fmt.Errorf("delete action needs an absolute backup path")
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}
