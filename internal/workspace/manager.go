package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/elisa-build/elisa/internal/events"
	"github.com/elisa-build/elisa/internal/models"
)

// ErrPathEscapeMsg tags the error returned when a path argument resolves
// outside the workspace root, per spec.md §4.2 "Path validation".
const ErrPathEscapeMsg = "PATH_ESCAPE"

// maxInspectNodes bounds the directory walk in Inspect, per spec.md §4.2.
const maxInspectNodes = 8000

// Manager provisions and resets the jailed workspace directory.
type Manager struct {
	bus eventbusPublisher
}

// eventbusPublisher is the minimal surface Manager needs from the event
// bus, kept as an unexported interface so workspace doesn't import
// eventbus's websocket-adjacent machinery.
type eventbusPublisher interface {
	Publish(events.Event)
}

// NewManager creates a Manager. bus may be nil (no events emitted —
// useful for CLI-only invocations like workspace/inspect and reset).
func NewManager(bus eventbusPublisher) *Manager {
	return &Manager{bus: bus}
}

// Provision creates the workspace root and its .elisa subtree if
// absent. Emits workspace_created exactly once per session.
func (m *Manager) Provision(root string) error {
	l := NewLayout(root)
	for _, dir := range append(l.MetadataDirs(), l.LogsDir(), l.SrcDir(), l.TestsDir()) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("provision workspace: %w", err)
		}
	}
	if m.bus != nil {
		m.bus.Publish(events.Event{Type: events.TypeWorkspaceCreated})
	}
	return nil
}

// Reset applies the restart-mode semantics of spec.md §4.2.
//
// continue: preserves all files (no-op beyond ensuring directories exist).
// clean: removes src/, tests/, and the three metadata dirs, but
// preserves logs/ and all design files.
func (m *Manager) Reset(root string, mode models.RestartMode) ([]string, error) {
	l := NewLayout(root)
	if mode == models.RestartModeContinue {
		return nil, m.Provision(root)
	}

	var removed []string
	toClean := append([]string{l.SrcDir(), l.TestsDir()}, l.MetadataDirs()...)
	for _, dir := range toClean {
		if _, err := os.Stat(dir); err == nil {
			if err := os.RemoveAll(dir); err != nil {
				return removed, fmt.Errorf("clean reset: removing %s: %w", dir, err)
			}
			removed = append(removed, dir)
		}
	}
	return removed, m.Provision(root)
}

// StaleMetadataCleanup wipes comms/, context/, status/ and recreates
// them empty. Called before each build and before each agent dispatch
// within a build (spec.md §4.2). Never touches logs/, src/, tests/, or
// the design files.
func (m *Manager) StaleMetadataCleanup(root string) error {
	l := NewLayout(root)
	for _, dir := range l.MetadataDirs() {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("stale metadata cleanup: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("stale metadata cleanup: %w", err)
		}
	}
	return nil
}

// ValidatePath resolves p against root and returns an error tagged
// ErrPathEscapeMsg if the result escapes the workspace.
func ValidatePath(root, p string) (string, error) {
	abs := p
	if !filepath.IsAbs(p) {
		abs = filepath.Join(root, p)
	}
	cleanRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%s: resolving root: %w", ErrPathEscapeMsg, err)
	}
	cleanAbs, err := filepath.Abs(abs)
	if err != nil {
		return "", fmt.Errorf("%s: resolving path: %w", ErrPathEscapeMsg, err)
	}
	rel, err := filepath.Rel(cleanRoot, cleanAbs)
	if err != nil || rel == ".." || hasDotDotPrefix(rel) {
		return "", fmt.Errorf("%s: %q escapes working directory", ErrPathEscapeMsg, p)
	}
	return cleanAbs, nil
}

// hasDotDotPrefix reports whether a filepath.Rel result climbs above its
// base (i.e. starts with "..").
func hasDotDotPrefix(rel string) bool {
	return rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator)
}

// Inspection is the summary returned by Inspect.
type Inspection struct {
	Exists        bool     `json:"exists"`
	IsEmpty       bool     `json:"is_empty"`
	FileCount     int      `json:"file_count"`
	SrcFileCount  int      `json:"src_file_count"`
	TestFileCount int      `json:"test_file_count"`
	HasGit        bool     `json:"has_git"`
	TopFiles      []string `json:"top_files"`
}

var skipNames = map[string]bool{
	".git": true, "node_modules": true,
}

func isElisaMeta(name string) bool {
	return len(name) >= 6 && name[:6] == ".elisa"
}

// Inspect walks the workspace (bounded at maxInspectNodes) and
// summarizes its contents, skipping .git, node_modules, and .elisa*.
func Inspect(root string) (*Inspection, error) {
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return &Inspection{Exists: false, IsEmpty: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("inspect workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("inspect workspace: %s is not a directory", root)
	}

	insp := &Inspection{Exists: true}
	nodes := 0
	var top []string

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort walk, skip unreadable entries
		}
		if nodes >= maxInspectNodes {
			return fs.SkipAll
		}
		nodes++

		name := d.Name()
		if d.IsDir() {
			if skipNames[name] || isElisaMeta(name) {
				return fs.SkipDir
			}
			return nil
		}
		if name == ".git" {
			return nil
		}
		insp.FileCount++
		rel, _ := filepath.Rel(root, path)
		if len(top) < 20 {
			top = append(top, rel)
		}
		l := NewLayout(root)
		if within(path, l.SrcDir()) {
			insp.SrcFileCount++
		}
		if within(path, l.TestsDir()) {
			insp.TestFileCount++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inspect workspace: %w", err)
	}

	if _, err := os.Stat(filepath.Join(root, ".git")); err == nil {
		insp.HasGit = true
	}

	sort.Strings(top)
	insp.TopFiles = top
	insp.IsEmpty = insp.FileCount == 0
	return insp, nil
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && !hasDotDotPrefix(rel)
}

// SessionLogPath returns the per-session log file path under logs/,
// which no reset or cleanup removes (spec.md §6 persisted state (iii)).
// It only builds the path; it neither creates nor writes the file.
func SessionLogPath(root, sessionID string) string {
	return filepath.Join(NewLayout(root).LogsDir(), fmt.Sprintf("session-%s.log", sessionID))
}
