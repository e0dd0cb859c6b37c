// Package memory implements the append-only build-memory store
// (spec.md §4.13): records of prior runs, similarity-ranked planner
// context, and reusable-pattern suggestion, persisted atomically via
// temp-file-then-rename like the Context Manager.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/elisa-build/elisa/internal/models"
	"github.com/elisa-build/elisa/internal/tokenize"
)

const (
	defaultMaxRecords      = 200
	plannerContextMinScore = 0.2
	patternSuggestMinScore = 0.18
)

// Store holds build-memory records for one ELISA deployment, persisted
// to a single JSON file.
type Store struct {
	mu         sync.Mutex
	path       string
	maxRecords int
	records    []models.MemoryRecord
}

// New loads a Store from path, or starts empty if the file is absent.
func New(path string, maxRecords int) (*Store, error) {
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}
	s := &Store{path: path, maxRecords: maxRecords}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read build memory: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("parse build memory: %w", err)
	}
	return s, nil
}

// RecordRun appends a MemoryRecord, deduplicating by session id (the
// later write wins) and capping at maxRecords (FIFO eviction of the
// oldest record once over cap).
func (s *Store) RecordRun(rec models.MemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i, existing := range s.records {
		if existing.SessionID == rec.SessionID {
			s.records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		s.records = append(s.records, rec)
	}
	for len(s.records) > s.maxRecords {
		s.records = s.records[1:]
	}

	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode build memory: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write build memory: %w", err)
	}
	return nil
}

// GetPlannerContext returns up to limit similar prior runs, ranked by
// the weighted similarity formula from spec.md §4.13, excluding scores
// below plannerContextMinScore.
func (s *Store) GetPlannerContext(spec *models.Spec, limit int) []models.PlannerContextEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	keywords := tokenize.UniqueSet(keywordSource(spec)...)

	var entries []models.PlannerContextEntry
	for _, rec := range s.records {
		sim := similarity(spec, keywords, rec)
		if sim < plannerContextMinScore {
			continue
		}
		entries = append(entries, models.PlannerContextEntry{Record: rec, Similarity: sim})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Similarity > entries[j].Similarity })
	if limit <= 0 {
		limit = 3
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// SuggestReusablePatterns aggregates skills/rules from successful
// similar runs, weighted per spec.md §4.13, deduplicated by normalized
// (name, prompt). alreadyPresent names patterns to exclude because
// they already appear in the workspace's skills.json/rules.json — the
// Spec document itself carries no skills/rules list, so that exclusion
// set is supplied by the caller rather than derived here.
func (s *Store) SuggestReusablePatterns(spec *models.Spec, alreadyPresent map[string]bool, limit int) []models.ReusablePattern {
	s.mu.Lock()
	defer s.mu.Unlock()

	keywords := tokenize.UniqueSet(keywordSource(spec)...)
	existing := alreadyPresent
	if existing == nil {
		existing = map[string]bool{}
	}

	type agg struct {
		pattern models.ReusablePattern
		weight  float64
	}
	byKey := make(map[string]*agg)

	for _, rec := range s.records {
		sim := similarity(spec, keywords, rec)
		if sim < patternSuggestMinScore || !rec.Outcome.OverallSuccess {
			continue
		}
		completionRate := 0.0
		if rec.Outcome.TasksTotal > 0 {
			completionRate = float64(rec.Outcome.TasksCompleted) / float64(rec.Outcome.TasksTotal)
		}
		judgeQuality := float64(rec.Outcome.JudgeScore) / 100.0
		weight := sim * (0.35 + 0.65*completionRate) * (0.4 + 0.6*judgeQuality)

		addPattern := func(kind string, names []string) {
			for _, name := range names {
				key := kind + "|" + normalizeKey(name)
				if existing[key] {
					continue
				}
				if cur, ok := byKey[key]; ok {
					cur.weight += weight
				} else {
					byKey[key] = &agg{
						pattern: models.ReusablePattern{Kind: kind, Name: name, Prompt: name, Weight: weight},
						weight:  weight,
					}
				}
			}
		}
		addPattern("skill", rec.SkillsUsed)
		addPattern("rule", rec.RulesUsed)
	}

	var out []models.ReusablePattern
	for _, a := range byKey {
		a.pattern.Weight = a.weight
		out = append(out, a.pattern)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })

	if limit <= 0 {
		limit = 4
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// PatternKey builds the dedup key callers should use when populating
// SuggestReusablePatterns' alreadyPresent set.
func PatternKey(kind, name string) string {
	return kind + "|" + normalizeKey(name)
}

func normalizeKey(name string) string {
	toks := tokenize.Words(name)
	key := ""
	for _, t := range toks {
		key += t + " "
	}
	return key
}

func keywordSource(spec *models.Spec) []string {
	texts := []string{spec.Goal}
	for _, r := range spec.Requirements {
		texts = append(texts, r.Description)
	}
	return texts
}

// similarity implements 0.6·Jaccard + 0.25·sameType + 0.15·sameDeploy + 0.05·successBonus.
func similarity(spec *models.Spec, specKeywords map[string]bool, rec models.MemoryRecord) float64 {
	recKeywords := make(map[string]bool, len(rec.Keywords))
	for _, k := range rec.Keywords {
		recKeywords[k] = true
	}
	jaccard := tokenize.Jaccard(specKeywords, recKeywords)

	sameType := 0.0
	if spec.ProjectType != "" && spec.ProjectType == rec.ProjectType {
		sameType = 1.0
	}
	sameDeploy := 0.0
	if spec.Deployment.Target == rec.DeploymentTarget {
		sameDeploy = 1.0
	}
	successBonus := 0.0
	if rec.Outcome.OverallSuccess {
		successBonus = 1.0
	}

	return 0.6*jaccard + 0.25*sameType + 0.15*sameDeploy + 0.05*successBonus
}
