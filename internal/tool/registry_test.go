package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry_HasBuiltins(t *testing.T) {
	r := DefaultRegistry(t.TempDir(), nil)

	names := r.Names()
	for _, want := range []string{"file.read", "file.write", "file.stat", "file.glob", "git.status", "git.log"} {
		assert.Contains(t, names, want)
	}
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := DefaultRegistry(t.TempDir(), nil)

	_, err := r.Execute(context.Background(), "file.delete", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestRegistry_DisabledTool(t *testing.T) {
	r := DefaultRegistry(t.TempDir(), map[string]bool{"file.write": false})

	_, err := r.Execute(context.Background(), "file.write", json.RawMessage(`{"path":"a.txt","content":"x"}`))
	assert.ErrorIs(t, err, ErrToolDisabled)
}

func TestFileTools_WriteReadStat(t *testing.T) {
	dir := t.TempDir()
	r := DefaultRegistry(dir, nil)
	ctx := context.Background()

	_, err := r.Execute(ctx, "file.write", json.RawMessage(`{"path":"sub/hello.txt","content":"hello world"}`))
	require.NoError(t, err)

	out, err := r.Execute(ctx, "file.read", json.RawMessage(`{"path":"sub/hello.txt"}`))
	require.NoError(t, err)
	result := out.(map[string]any)
	assert.Equal(t, "hello world", result["content"])

	out, err = r.Execute(ctx, "file.stat", json.RawMessage(`{"path":"sub/hello.txt"}`))
	require.NoError(t, err)
	stat := out.(map[string]any)
	assert.Equal(t, int64(11), stat["size"])
	assert.Equal(t, false, stat["isDir"])
}

func TestFileTools_PathEscapeRejected(t *testing.T) {
	r := DefaultRegistry(t.TempDir(), nil)

	_, err := r.Execute(context.Background(), "file.read", json.RawMessage(`{"path":"../../etc/passwd"}`))
	assert.ErrorIs(t, err, ErrOutsideWorkdir)
}

func TestFileGlob(t *testing.T) {
	dir := t.TempDir()
	r := DefaultRegistry(dir, nil)
	ctx := context.Background()

	for _, p := range []string{"a.go", "b.go", "c.txt", "nested/d.go"} {
		_, err := r.Execute(ctx, "file.write", json.RawMessage(`{"path":"`+p+`","content":""}`))
		require.NoError(t, err)
	}

	out, err := r.Execute(ctx, "file.glob", json.RawMessage(`{"pattern":"**/*.go"}`))
	require.NoError(t, err)
	result := out.(map[string]any)
	assert.ElementsMatch(t, []string{"a.go", "b.go", "nested/d.go"}, result["files"])
}

func TestGitStatus_NotARepository(t *testing.T) {
	r := DefaultRegistry(t.TempDir(), nil)

	_, err := r.Execute(context.Background(), "git.status", nil)
	assert.ErrorIs(t, err, ErrNotARepository)
}
