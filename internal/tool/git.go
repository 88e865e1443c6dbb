package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
)

// ErrNotARepository is returned when the working directory has no git repo.
var ErrNotARepository = errors.New("not a git repository")

func openRepo(workDir string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(workDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, ErrNotARepository
		}
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	return repo, nil
}

type gitStatusTool struct {
	workDir string
}

func (t *gitStatusTool) Name() string        { return "git.status" }
func (t *gitStatusTool) Description() string { return "Report worktree status" }

func (t *gitStatusTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	repo, err := openRepo(t.workDir)
	if err != nil {
		return nil, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	var branch string
	if head, err := repo.Head(); err == nil {
		branch = head.Name().Short()
	}

	files := make([]map[string]string, 0, len(status))
	for path, st := range status {
		if st.Worktree == git.Unmodified && st.Staging == git.Unmodified {
			continue
		}
		files = append(files, map[string]string{
			"path":     path,
			"worktree": string(st.Worktree),
			"staging":  string(st.Staging),
		})
	}
	return map[string]any{"branch": branch, "clean": status.IsClean(), "files": files}, nil
}

type gitLogTool struct {
	workDir string
}

func (t *gitLogTool) Name() string        { return "git.log" }
func (t *gitLogTool) Description() string { return "List recent commits" }

func (t *gitLogTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var req struct {
		Limit int `json:"limit"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 20
	}

	repo, err := openRepo(t.workDir)
	if err != nil {
		return nil, err
	}

	iter, err := repo.Log(&git.LogOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer iter.Close()

	var commits []map[string]any
	for len(commits) < req.Limit {
		c, err := iter.Next()
		if err != nil {
			break
		}
		commits = append(commits, map[string]any{
			"hash":    c.Hash.String(),
			"author":  c.Author.Name,
			"date":    c.Author.When.UnixMilli(),
			"message": c.Message,
		})
	}
	return map[string]any{"commits": commits}, nil
}
