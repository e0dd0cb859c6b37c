// Package workspace provisions and manages the jailed build workspace
// directory, including clean-vs-continue resets and path validation.
package workspace

import "path/filepath"

// Layout names the fixed directory/file structure under a workspace
// root W, per spec.md §3 "Workspace layout".
type Layout struct {
	Root string
}

func NewLayout(root string) Layout { return Layout{Root: root} }

func (l Layout) ElisaDir() string      { return filepath.Join(l.Root, ".elisa") }
func (l Layout) CommsDir() string      { return filepath.Join(l.ElisaDir(), "comms") }
func (l Layout) ContextDir() string    { return filepath.Join(l.ElisaDir(), "context") }
func (l Layout) StatusDir() string     { return filepath.Join(l.ElisaDir(), "status") }
func (l Layout) LogsDir() string       { return filepath.Join(l.ElisaDir(), "logs") }
func (l Layout) SrcDir() string        { return filepath.Join(l.Root, "src") }
func (l Layout) TestsDir() string      { return filepath.Join(l.Root, "tests") }
func (l Layout) WorkspaceJSON() string { return filepath.Join(l.Root, "workspace.json") }
func (l Layout) SkillsJSON() string    { return filepath.Join(l.Root, "skills.json") }
func (l Layout) RulesJSON() string     { return filepath.Join(l.Root, "rules.json") }
func (l Layout) PortalsJSON() string   { return filepath.Join(l.Root, "portals.json") }
func (l Layout) NuggetJSON() string    { return filepath.Join(l.Root, "nugget.json") }

// MetadataDirs are the three per-build directories that get wiped on a
// stale-metadata cleanup pass (comms, context, status) — never logs,
// never src/tests, never the design files.
func (l Layout) MetadataDirs() []string {
	return []string{l.CommsDir(), l.ContextDir(), l.StatusDir()}
}

// DesignFiles are preserved across builds regardless of restart mode.
func (l Layout) DesignFiles() []string {
	return []string{
		l.WorkspaceJSON(), l.SkillsJSON(), l.RulesJSON(),
		l.PortalsJSON(), l.NuggetJSON(),
	}
}
