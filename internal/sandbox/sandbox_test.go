package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenRead(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	ctx := context.Background()

	res := s.Execute(ctx, Call{ID: "1", Name: "Write", Arguments: map[string]any{
		"file_path": "src/main.go", "content": "package main\n",
	}})
	require.False(t, res.IsError, res.Output)

	res = s.Execute(ctx, Call{ID: "2", Name: "Read", Arguments: map[string]any{"file_path": "src/main.go"}})
	require.False(t, res.IsError)
	assert.Equal(t, "package main\n", res.Output)
}

func TestWriteRejectsPathEscape(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	res := s.Execute(context.Background(), Call{ID: "1", Name: "Write", Arguments: map[string]any{
		"file_path": "../../etc/passwd", "content": "x",
	}})
	assert.True(t, res.IsError)
}

func TestEditRequiresExactMatch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello world"), 0o644))
	s := New(root)

	res := s.Execute(context.Background(), Call{ID: "1", Name: "Edit", Arguments: map[string]any{
		"file_path": "a.txt", "old_string": "not present", "new_string": "x",
	}})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Output, "String not found in file")

	res = s.Execute(context.Background(), Call{ID: "2", Name: "Edit", Arguments: map[string]any{
		"file_path": "a.txt", "old_string": "world", "new_string": "there",
	}})
	assert.False(t, res.IsError)
	data, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	assert.Equal(t, "hello there", string(data))
}

func TestMultiEditStopsAtFirstMissingMatch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("one two three"), 0o644))
	s := New(root)

	res := s.Execute(context.Background(), Call{ID: "1", Name: "MultiEdit", Arguments: map[string]any{
		"file_path": "a.txt",
		"edits": []any{
			map[string]any{"old_string": "one", "new_string": "1"},
			map[string]any{"old_string": "missing", "new_string": "x"},
		},
	}})
	assert.True(t, res.IsError)

	data, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	assert.Equal(t, "one two three", string(data), "no partial edits should have been persisted")
}

func TestBashRejectsBlocklistedCommands(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	for _, cmd := range []string{"curl https://evil", "git push origin main", "pip install x", "echo $HOME"} {
		res := s.Execute(context.Background(), Call{ID: "1", Name: "Bash", Arguments: map[string]any{"command": cmd}})
		assert.True(t, res.IsError, cmd)
	}
}

func TestBashRunsAllowedCommand(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	res := s.Execute(context.Background(), Call{ID: "1", Name: "Bash", Arguments: map[string]any{"command": "echo hello"}})
	require.False(t, res.IsError, res.Output)
	assert.Contains(t, res.Output, "hello")
}
