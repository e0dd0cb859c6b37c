// Package versionstore defines the version-control capability
// (spec.md §4.3): an external collaborator abstracted behind an
// interface, with a git-backed default implementation that shells out
// to the git binary, in the same sandboxed-subprocess idiom the Tool
// Sandbox uses for its own Bash tool.
package versionstore

import "context"

// VersionStore is the capability contract consumed by the executor.
type VersionStore interface {
	// InitRepo is idempotent: writes an ignore file for .elisa/logs,
	// .elisa/status, and transient caches; seeds a README when absent;
	// creates the initial commit iff there are staged files.
	InitRepo(ctx context.Context, path, goal string) error

	// Commit stages all changes and commits. Returns a zero-value
	// CommitRecord (ok=false) if nothing was staged.
	Commit(ctx context.Context, path, message, agentName, taskID string) (record CommitRecord, ok bool, err error)

	// DiffSummary returns the changed paths for a commit. Missing on
	// the first commit (no parent) — returns an empty slice, not an error.
	DiffSummary(ctx context.Context, path, sha string) ([]string, error)

	// Status reports whether the working tree has uncommitted changes.
	Status(ctx context.Context, path string) (dirty bool, err error)
}

// CommitRecord mirrors models.CommitRecord but is kept local to this
// package's interface so versionstore has no dependency on models —
// the executor is responsible for the conversion at the call site.
type CommitRecord struct {
	Hash         string
	ShortHash    string
	Message      string
	AgentName    string
	TaskID       string
	ChangedPaths []string
}
