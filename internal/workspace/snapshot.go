package workspace

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/elisa-build/elisa/internal/prompt"
)

// digestFileCap and digestLineCap bound the cost of building a
// structural digest over an arbitrarily large workspace — the digest is
// a prompt aid, not a complete index.
const (
	digestFileCap = 40
	digestLineCap = 4000
)

// declarationPattern matches a conservative set of top-level
// declaration keywords across the languages agents are likely to
// generate (Go, JS/TS, Python) — good enough for an at-a-glance
// "what's already here" digest, not a full parser.
var declarationPattern = regexp.MustCompile(`^\s*(func |type |class |def |export function |export class |export default function |interface )`)

// Snapshotter is the real WorkspaceSnapshotter used by the executor
// (spec.md §4.6): it lists W/src and W/tests and builds a best-effort
// structural digest of the source tree.
type Snapshotter struct{}

// NewSnapshotter constructs a Snapshotter. It holds no state.
func NewSnapshotter() Snapshotter { return Snapshotter{} }

// Snapshot implements executor.WorkspaceSnapshotter.
func (Snapshotter) Snapshot(root string) (prompt.WorkspaceSnapshot, error) {
	l := NewLayout(root)

	srcFiles, err := listRelative(l.SrcDir())
	if err != nil {
		return prompt.WorkspaceSnapshot{}, err
	}
	testFiles, err := listRelative(l.TestsDir())
	if err != nil {
		return prompt.WorkspaceSnapshot{}, err
	}

	snap := prompt.WorkspaceSnapshot{
		SrcFiles:  srcFiles,
		TestFiles: testFiles,
		HasAnySrc: len(srcFiles) > 0,
	}
	if snap.HasAnySrc {
		snap.Digest = buildDigest(l.SrcDir(), srcFiles)
	}
	return snap, nil
}

func listRelative(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func buildDigest(srcDir string, relFiles []string) []prompt.DigestEntry {
	var entries []prompt.DigestEntry
	for i, rel := range relFiles {
		if i >= digestFileCap {
			break
		}
		sigs := declarationsIn(filepath.Join(srcDir, rel))
		if len(sigs) == 0 {
			continue
		}
		entries = append(entries, prompt.DigestEntry{File: rel, Signatures: sigs})
	}
	return entries
}

func declarationsIn(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var sigs []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for lines := 0; sc.Scan() && lines < digestLineCap; lines++ {
		line := sc.Text()
		if declarationPattern.MatchString(line) {
			sigs = append(sigs, trimToWidth(line, 160))
		}
	}
	return sigs
}

func trimToWidth(s string, width int) string {
	s = collapseSpaces(s)
	if len(s) <= width {
		return s
	}
	return s[:width] + "..."
}

func collapseSpaces(s string) string {
	var sb []byte
	prevSpace := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		isSpace := c == ' ' || c == '\t'
		if isSpace && prevSpace {
			continue
		}
		if isSpace {
			c = ' '
		}
		sb = append(sb, c)
		prevSpace = isSpace
	}
	return string(sb)
}
