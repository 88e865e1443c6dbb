package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrOutsideWorkdir is returned when a path escapes the working directory.
var ErrOutsideWorkdir = errors.New("path outside working directory")

// resolvePath joins a client-supplied relative path onto the work directory
// and rejects escapes.
func resolvePath(workDir, rel string) (string, error) {
	abs := filepath.Join(workDir, rel)
	abs = filepath.Clean(abs)
	root := filepath.Clean(workDir) + string(filepath.Separator)
	if abs != filepath.Clean(workDir) && !strings.HasPrefix(abs, root) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkdir, rel)
	}
	return abs, nil
}

type fileReadTool struct {
	workDir string
}

func (t *fileReadTool) Name() string        { return "file.read" }
func (t *fileReadTool) Description() string { return "Read a file's content" }

func (t *fileReadTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	path, err := resolvePath(t.workDir, req.Path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", req.Path, err)
	}
	return map[string]any{"path": req.Path, "content": string(data)}, nil
}

type fileWriteTool struct {
	workDir string
}

func (t *fileWriteTool) Name() string        { return "file.write" }
func (t *fileWriteTool) Description() string { return "Write content to a file" }

func (t *fileWriteTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	path, err := resolvePath(t.workDir, req.Path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(req.Content), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", req.Path, err)
	}
	return map[string]any{"path": req.Path, "bytes": len(req.Content)}, nil
}

type fileStatTool struct {
	workDir string
}

func (t *fileStatTool) Name() string        { return "file.stat" }
func (t *fileStatTool) Description() string { return "Stat a file or directory" }

func (t *fileStatTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	path, err := resolvePath(t.workDir, req.Path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", req.Path, err)
	}
	return map[string]any{
		"path":     req.Path,
		"size":     info.Size(),
		"isDir":    info.IsDir(),
		"modified": info.ModTime().UnixMilli(),
	}, nil
}

type fileGlobTool struct {
	workDir string
}

func (t *fileGlobTool) Name() string        { return "file.glob" }
func (t *fileGlobTool) Description() string { return "Find files matching a glob pattern" }

func (t *fileGlobTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var req struct {
		Pattern string `json:"pattern"`
		Limit   int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if req.Limit <= 0 {
		req.Limit = 1000
	}

	matches, err := doublestar.Glob(os.DirFS(t.workDir), req.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", req.Pattern, err)
	}
	sort.Strings(matches)
	truncated := false
	if len(matches) > req.Limit {
		matches = matches[:req.Limit]
		truncated = true
	}
	return map[string]any{"files": matches, "truncated": truncated}, nil
}
