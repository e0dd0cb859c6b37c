package workspace

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/renameio/v2"
)

// DesignDocument is the raw JSON content of one of the four workspace
// design files (workspace.json, skills.json, rules.json, portals.json),
// per spec.md §3. Callers treat the document as opaque — the dashboard
// client owns its shape, ELISA only persists and returns it verbatim.
type DesignDocument = json.RawMessage

// DesignBundle groups the four design documents exchanged by
// POST /api/workspace/save and /load (spec.md §6). Workspace, Skills,
// Rules and Portals are nil when the corresponding file does not exist.
type DesignBundle struct {
	Workspace DesignDocument
	Skills    DesignDocument
	Rules     DesignDocument
	Portals   DesignDocument
}

// LoadDesignBundle reads the four design files under root, substituting
// a JSON "null" for any file that does not exist yet — spec.md §6's
// "missing files → empty defaults".
func LoadDesignBundle(root string) (DesignBundle, error) {
	l := NewLayout(root)
	var b DesignBundle
	var err error
	if b.Workspace, err = readDesignFile(l.WorkspaceJSON()); err != nil {
		return b, err
	}
	if b.Skills, err = readDesignFile(l.SkillsJSON()); err != nil {
		return b, err
	}
	if b.Rules, err = readDesignFile(l.RulesJSON()); err != nil {
		return b, err
	}
	if b.Portals, err = readDesignFile(l.PortalsJSON()); err != nil {
		return b, err
	}
	return b, nil
}

func readDesignFile(path string) (DesignDocument, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DesignDocument("null"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read design file %s: %w", path, err)
	}
	return DesignDocument(data), nil
}

// SaveDesignBundle writes every non-nil document in b to its design
// file under root, atomically (renameio), leaving any document the
// caller omitted untouched.
func SaveDesignBundle(root string, b DesignBundle) error {
	l := NewLayout(root)
	writes := []struct {
		doc  DesignDocument
		path string
	}{
		{b.Workspace, l.WorkspaceJSON()},
		{b.Skills, l.SkillsJSON()},
		{b.Rules, l.RulesJSON()},
		{b.Portals, l.PortalsJSON()},
	}
	for _, w := range writes {
		if w.doc == nil {
			continue
		}
		if err := renameio.WriteFile(w.path, w.doc, 0o644); err != nil {
			return fmt.Errorf("save design file %s: %w", w.path, err)
		}
	}
	return nil
}
