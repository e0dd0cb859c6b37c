// Package sandbox implements the fixed tool allowlist dispatched agents
// are restricted to (spec.md §4.8): file/search tools jailed to the
// workspace root, and a Bash tool that shells out with a stripped
// environment, mirroring the subprocess lifecycle idiom in the
// teacher's MCP stdio transport (pkg/mcp/transport.go's
// exec.Command + explicit Env construction).
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/elisa-build/elisa/internal/workspace"
)

// AllowedTools is the fixed tool set, in spec order.
var AllowedTools = []string{
	"Read", "Write", "Edit", "MultiEdit", "Glob", "Grep", "LS", "Bash", "NotebookRead", "NotebookEdit",
}

// defaultBashTimeout is the 30s default from spec.md §4.8.
const defaultBashTimeout = 30 * time.Second

// Sandbox executes tool calls against a jailed working directory.
type Sandbox struct {
	root string
}

// New creates a Sandbox jailed to root.
func New(root string) *Sandbox {
	return &Sandbox{root: root}
}

// Call is one assistant-requested tool invocation.
type Call struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Result is the outcome of one tool call, returned by call id.
type Result struct {
	CallID  string
	Output  string
	IsError bool
}

const maxOutputChars = 10000

func truncate(s string) string {
	if len(s) <= maxOutputChars {
		return s
	}
	return s[:maxOutputChars] + "\n[Output truncated]"
}

// Execute dispatches one tool call by name. Unknown tool names return
// an error Result rather than panicking — the dispatcher filters
// allowedTools before calling this, but defense in depth costs nothing.
func (s *Sandbox) Execute(ctx context.Context, call Call) Result {
	out, err := s.execute(ctx, call)
	if err != nil {
		return Result{CallID: call.ID, Output: err.Error(), IsError: true}
	}
	return Result{CallID: call.ID, Output: truncate(out)}
}

func (s *Sandbox) execute(ctx context.Context, call Call) (string, error) {
	switch call.Name {
	case "Read":
		return s.read(call.Arguments)
	case "Write":
		return s.write(call.Arguments)
	case "Edit":
		return s.edit(call.Arguments)
	case "MultiEdit":
		return s.multiEdit(call.Arguments)
	case "Glob":
		return s.glob(call.Arguments)
	case "Grep":
		return s.grep(call.Arguments)
	case "LS":
		return s.ls(call.Arguments)
	case "Bash":
		return s.bash(ctx, call.Arguments)
	case "NotebookRead":
		return s.read(call.Arguments) // notebooks are plain JSON text on disk
	case "NotebookEdit":
		return s.edit(call.Arguments)
	default:
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
}

func (s *Sandbox) resolvePath(args map[string]any) (string, error) {
	raw, _ := args["file_path"].(string)
	if raw == "" {
		raw, _ = args["path"].(string)
	}
	if raw == "" {
		return "", fmt.Errorf("missing required path argument")
	}
	resolved, err := workspace.ValidatePath(s.root, raw)
	if err != nil {
		return "", fmt.Errorf("%s escapes working directory", raw)
	}
	return resolved, nil
}

func (s *Sandbox) read(args map[string]any) (string, error) {
	path, err := s.resolvePath(args)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func (s *Sandbox) write(args map[string]any) (string, error) {
	path, err := s.resolvePath(args)
	if err != nil {
		return "", err
	}
	content, _ := args["content"].(string)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

func (s *Sandbox) edit(args map[string]any) (string, error) {
	path, err := s.resolvePath(args)
	if err != nil {
		return "", err
	}
	oldStr, _ := args["old_string"].(string)
	newStr, _ := args["new_string"].(string)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	content := string(data)
	if !strings.Contains(content, oldStr) {
		return "", fmt.Errorf("String not found in file")
	}
	updated := strings.Replace(content, oldStr, newStr, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return fmt.Sprintf("edited %s", path), nil
}

// EditSpec is one ordered edit within a MultiEdit call.
type EditSpec struct {
	OldString string
	NewString string
}

func (s *Sandbox) multiEdit(args map[string]any) (string, error) {
	path, err := s.resolvePath(args)
	if err != nil {
		return "", err
	}
	rawEdits, _ := args["edits"].([]any)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	content := string(data)

	applied := 0
	for _, re := range rawEdits {
		m, _ := re.(map[string]any)
		oldStr, _ := m["old_string"].(string)
		newStr, _ := m["new_string"].(string)
		if !strings.Contains(content, oldStr) {
			return "", fmt.Errorf("String not found in file (edit %d)", applied+1)
		}
		content = strings.Replace(content, oldStr, newStr, 1)
		applied++
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return fmt.Sprintf("applied %d edits to %s", applied, path), nil
}

func (s *Sandbox) glob(args map[string]any) (string, error) {
	pattern, _ := args["pattern"].(string)
	matches, err := filepath.Glob(filepath.Join(s.root, pattern))
	if err != nil {
		return "", fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(matches)
	var rel []string
	for _, m := range matches {
		r, err := filepath.Rel(s.root, m)
		if err == nil {
			rel = append(rel, r)
		}
	}
	return strings.Join(rel, "\n"), nil
}

func (s *Sandbox) grep(args map[string]any) (string, error) {
	pattern, _ := args["pattern"].(string)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	var matches []string
	_ = filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				rel, _ := filepath.Rel(s.root, path)
				matches = append(matches, fmt.Sprintf("%s:%d:%s", rel, i+1, line))
			}
		}
		return nil
	})
	return strings.Join(matches, "\n"), nil
}

func (s *Sandbox) ls(args map[string]any) (string, error) {
	dir := s.root
	if raw, _ := args["path"].(string); raw != "" {
		resolved, err := workspace.ValidatePath(s.root, raw)
		if err != nil {
			return "", fmt.Errorf("%s escapes working directory", raw)
		}
		dir = resolved
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("ls %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

// bashBlocklist matches command substrings forbidden by spec.md §4.8.
var bashBlocklist = []*regexp.Regexp{
	regexp.MustCompile(`\bcurl\b`),
	regexp.MustCompile(`\bwget\b`),
	regexp.MustCompile(`\bssh\b`),
	regexp.MustCompile(`\bscp\b`),
	regexp.MustCompile(`\bgit\s+push\b`),
	regexp.MustCompile(`\bgit\s+remote\b`),
	regexp.MustCompile(`\bpip\s+install\b`),
	regexp.MustCompile(`\bnpm\s+install\b`),
	regexp.MustCompile(`\benv\b`),
	regexp.MustCompile(`\bprintenv\b`),
	regexp.MustCompile(`\bexport\b`),
	regexp.MustCompile(`\$\{?\w`),
}

func (s *Sandbox) bash(ctx context.Context, args map[string]any) (string, error) {
	command, _ := args["command"].(string)
	for _, re := range bashBlocklist {
		if re.MatchString(command) {
			return "", fmt.Errorf("Command blocked by security policy: %q", command)
		}
	}

	timeout := defaultBashTimeout
	if t, ok := args["timeout_sec"].(float64); ok && t > 0 {
		timeout = time.Duration(t) * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "bash", "-c", command)
	cmd.Dir = s.root
	cmd.Env = []string{"PATH=" + os.Getenv("PATH")}
	cmd.WaitDelay = 2 * time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if cctx.Err() == context.DeadlineExceeded {
		return out.String(), fmt.Errorf("command timed out after %s", timeout)
	}
	if err != nil {
		return out.String(), fmt.Errorf("command failed: %w", err)
	}
	return out.String(), nil
}
