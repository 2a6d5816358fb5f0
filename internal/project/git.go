// Package project inspects the workspace that stage artifacts are written to.
package project

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitInfo identifies the workspace revision a run started from. Artifacts
// are plain files, so the commit is what ties a run to its inputs.
type GitInfo struct {
	Branch string
	Commit string
	Dirty  bool
}

// CollectGitInfo gathers branch, commit and dirty state of the repository
// containing dir.
func CollectGitInfo(ctx context.Context, dir string) (*GitInfo, error) {
	branch, err := gitOutput(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("getting git branch: %w", err)
	}

	commit, err := gitOutput(ctx, dir, "rev-parse", "--short", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("getting git commit: %w", err)
	}

	status, err := gitOutput(ctx, dir, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("checking git status: %w", err)
	}

	return &GitInfo{
		Branch: branch,
		Commit: commit,
		Dirty:  status != "",
	}, nil
}

func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
