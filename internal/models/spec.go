package models

// DeploymentTarget is where the built project should be deployed.
type DeploymentTarget string

const (
	DeploymentPreview DeploymentTarget = "preview"
	DeploymentWeb     DeploymentTarget = "web"
	DeploymentESP32   DeploymentTarget = "esp32"
	DeploymentBoth    DeploymentTarget = "both"
)

// AgentRole is the role a declared agent plays in the chain.
type AgentRole string

const (
	RoleBuilder  AgentRole = "builder"
	RoleTester   AgentRole = "tester"
	RoleReviewer AgentRole = "reviewer"
	RoleCustom   AgentRole = "custom"
)

// Requirement is one free-text requirement with a type tag.
type Requirement struct {
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
}

// AgentSpec is a declared agent within a spec.
type AgentSpec struct {
	Name    string    `json:"name" yaml:"name"`
	Role    AgentRole `json:"role" yaml:"role"`
	Persona string    `json:"persona" yaml:"persona"`
}

// Portal is a declared external-world capability wired into agent tools.
type Portal struct {
	Name string `json:"name" yaml:"name"`
	Kind string `json:"kind" yaml:"kind"` // serial, mcp, cli
}

// BehavioralTest is a single {when, then} acceptance pair.
type BehavioralTest struct {
	When string `json:"when" yaml:"when"`
	Then string `json:"then" yaml:"then"`
}

// Workflow controls which phases run and which gates are active.
type Workflow struct {
	TestingEnabled  bool             `json:"testing_enabled" yaml:"testing_enabled"`
	ReviewEnabled   bool             `json:"review_enabled" yaml:"review_enabled"`
	HumanGates      bool             `json:"human_gates" yaml:"human_gates"`
	BehavioralTests []BehavioralTest `json:"behavioral_tests,omitempty" yaml:"behavioral_tests,omitempty"`
}

// Deployment describes the deployment target and flash behavior.
type Deployment struct {
	Target    DeploymentTarget `json:"target" yaml:"target"`
	AutoFlash bool             `json:"auto_flash" yaml:"auto_flash"`
}

// Spec is the read-only declarative input document.
//
// Parsed defensively per spec.md §9: construction never fails on an
// unknown or missing field. Use NewSpecFromMap for permissive parsing
// of an arbitrary JSON/YAML document.
type Spec struct {
	Goal         string         `json:"goal" yaml:"goal"`
	ProjectType  string         `json:"project_type" yaml:"project_type"`
	Requirements []Requirement  `json:"requirements" yaml:"requirements"`
	Agents       []AgentSpec    `json:"agents" yaml:"agents"`
	Portals      []Portal       `json:"portals,omitempty" yaml:"portals,omitempty"`
	Deployment   Deployment     `json:"deployment" yaml:"deployment"`
	Workflow     Workflow       `json:"workflow" yaml:"workflow"`
	Extra        map[string]any `json:"-" yaml:"-"` // unknown fields, preserved for forward compatibility
}

// NewSpecFromMap builds a Spec from an arbitrary decoded document,
// coercing each field with a typed accessor and never failing on
// unknown or missing fields. This is the permissive constructor the
// HTTP layer uses for POST /api/session.
func NewSpecFromMap(doc map[string]any) *Spec {
	s := &Spec{
		Extra: make(map[string]any),
	}
	known := map[string]bool{
		"goal": true, "project_type": true, "requirements": true,
		"agents": true, "portals": true, "deployment": true, "workflow": true,
	}
	for k, v := range doc {
		if !known[k] {
			s.Extra[k] = v
		}
	}

	s.Goal = stringField(doc, "goal")
	s.ProjectType = stringField(doc, "project_type")

	if raw, ok := doc["requirements"].([]any); ok {
		for _, r := range raw {
			if m, ok := r.(map[string]any); ok {
				s.Requirements = append(s.Requirements, Requirement{
					Type:        stringField(m, "type"),
					Description: stringField(m, "description"),
				})
			}
		}
	}

	if raw, ok := doc["agents"].([]any); ok {
		for _, a := range raw {
			if m, ok := a.(map[string]any); ok {
				s.Agents = append(s.Agents, AgentSpec{
					Name:    stringField(m, "name"),
					Role:    AgentRole(stringField(m, "role")),
					Persona: stringField(m, "persona"),
				})
			}
		}
	}

	if raw, ok := doc["portals"].([]any); ok {
		for _, p := range raw {
			if m, ok := p.(map[string]any); ok {
				s.Portals = append(s.Portals, Portal{
					Name: stringField(m, "name"),
					Kind: stringField(m, "kind"),
				})
			}
		}
	}

	if m, ok := doc["deployment"].(map[string]any); ok {
		target := DeploymentTarget(stringField(m, "target"))
		if target == "" {
			target = DeploymentPreview
		}
		autoFlash, _ := m["auto_flash"].(bool)
		s.Deployment = Deployment{Target: target, AutoFlash: autoFlash}
	} else {
		s.Deployment = Deployment{Target: DeploymentPreview}
	}

	if m, ok := doc["workflow"].(map[string]any); ok {
		testingEnabled, hasTesting := m["testing_enabled"].(bool)
		if !hasTesting {
			testingEnabled = true // default: tests run unless explicitly disabled
		}
		reviewEnabled, _ := m["review_enabled"].(bool)
		humanGates, _ := m["human_gates"].(bool)
		wf := Workflow{
			TestingEnabled: testingEnabled,
			ReviewEnabled:  reviewEnabled,
			HumanGates:     humanGates,
		}
		if raw, ok := m["behavioral_tests"].([]any); ok {
			for _, bt := range raw {
				if bm, ok := bt.(map[string]any); ok {
					wf.BehavioralTests = append(wf.BehavioralTests, BehavioralTest{
						When: stringField(bm, "when"),
						Then: stringField(bm, "then"),
					})
				}
			}
		}
		s.Workflow = wf
	} else {
		s.Workflow = Workflow{TestingEnabled: true}
	}

	return s
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// AgentByName resolves a declared agent by name, or nil.
func (s *Spec) AgentByName(name string) *AgentSpec {
	for i := range s.Agents {
		if s.Agents[i].Name == name {
			return &s.Agents[i]
		}
	}
	return nil
}

// Keywords extracts a de-duplicated, lower-cased keyword set from the
// goal and requirement descriptions. Used to seed build-memory
// similarity search.
func (s *Spec) Keywords(tokenize func(string) []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(text string) {
		for _, tok := range tokenize(text) {
			if !seen[tok] {
				seen[tok] = true
				out = append(out, tok)
			}
		}
	}
	add(s.Goal)
	for _, r := range s.Requirements {
		add(r.Description)
	}
	return out
}
