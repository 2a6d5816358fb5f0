package run

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// BaseDir is where run directories live, relative to the project root.
var BaseDir = filepath.Join(".uvmgen", "runs")

// Run represents a single uvmgen invocation.
type Run struct {
	ID   string
	Dir  string
	Meta Meta
}

// Meta holds metadata about a run, persisted to meta.json.
type Meta struct {
	StartedAt time.Time     `json:"started_at"`
	Command   string        `json:"command"` // "run" | "pipeline"
	Module    string        `json:"module"`
	Pipeline  string        `json:"pipeline"`
	Status    string        `json:"status"` // "running" | "completed" | "failed"
	Stages    []StageResult `json:"stages"`
	TotalCost float64       `json:"total_cost"`
	Error     string        `json:"error,omitempty"`
	GitBranch string        `json:"git_branch,omitempty"`
	GitCommit string        `json:"git_commit,omitempty"`
	GitDirty  bool          `json:"git_dirty,omitempty"`
}

// StageResult records the outcome of a single stage.
type StageResult struct {
	Name       string  `json:"name"`
	Status     string  `json:"status"` // "extracted" | "no_code" | "failed"
	Model      string  `json:"model,omitempty"`
	Template   string  `json:"template,omitempty"`
	RawLog     string  `json:"raw_log,omitempty"`
	Artifact   string  `json:"artifact,omitempty"`
	Digest     string  `json:"digest,omitempty"`
	Cost       float64 `json:"cost"`
	TokensIn   int     `json:"tokens_in"`
	TokensOut  int     `json:"tokens_out"`
	DurationMS int64   `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// Extracted counts stages that wrote an artifact.
func (m Meta) Extracted() int {
	n := 0
	for _, s := range m.Stages {
		if s.Status == "extracted" {
			n++
		}
	}
	return n
}

// New creates a new run directory under root/.uvmgen/runs/.
func New(root, command, module, pipeline string) (*Run, error) {
	now := time.Now()
	ms := now.UnixMilli() % 1000
	id := fmt.Sprintf("%s-%03d-%s",
		now.Format("20060102-150405"),
		ms,
		sanitizeSlug(module+"-"+command),
	)

	baseDir := filepath.Join(root, BaseDir)
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("creating runs dir: %w", err)
	}

	dir := filepath.Join(baseDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating run dir: %w", err)
	}

	r := &Run{
		ID:  id,
		Dir: dir,
		Meta: Meta{
			StartedAt: now,
			Command:   command,
			Module:    module,
			Pipeline:  pipeline,
			Status:    "running",
		},
	}

	if err := r.SaveMeta(); err != nil {
		return nil, err
	}

	if err := updateLatestLink(baseDir, id); err != nil {
		return nil, err
	}

	return r, nil
}

// SaveMeta writes meta.json to the run directory.
func (r *Run) SaveMeta() error {
	data, err := json.MarshalIndent(r.Meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling meta: %w", err)
	}
	path := filepath.Join(r.Dir, "meta.json")
	return os.WriteFile(path, data, 0644)
}

// AddStageResult appends a stage result and updates total cost.
func (r *Run) AddStageResult(sr StageResult) error {
	r.Meta.Stages = append(r.Meta.Stages, sr)
	r.Meta.TotalCost += sr.Cost
	return r.SaveMeta()
}

// SetGit records the workspace revision the run started from.
func (r *Run) SetGit(branch, commit string, dirty bool) error {
	r.Meta.GitBranch = branch
	r.Meta.GitCommit = commit
	r.Meta.GitDirty = dirty
	return r.SaveMeta()
}

// Complete marks the run as completed.
func (r *Run) Complete() error {
	r.Meta.Status = "completed"
	return r.SaveMeta()
}

// Fail marks the run as failed with an error message.
func (r *Run) Fail(msg string) error {
	r.Meta.Status = "failed"
	r.Meta.Error = msg
	return r.SaveMeta()
}

// FilePath returns the path to a file within this run directory.
func (r *Run) FilePath(name string) string {
	return filepath.Join(r.Dir, name)
}

// Summary is a recorded run read back from disk.
type Summary struct {
	ID   string
	Meta Meta
}

// List reads every run under root, newest first. Unreadable entries are
// skipped.
func List(root string) ([]Summary, error) {
	baseDir := filepath.Join(root, BaseDir)
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading runs dir: %w", err)
	}

	var out []Summary
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "latest" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(baseDir, e.Name(), "meta.json"))
		if err != nil {
			continue
		}
		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		out = append(out, Summary{ID: e.Name(), Meta: meta})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Meta.StartedAt.After(out[j].Meta.StartedAt)
	})
	return out, nil
}

// updateLatestLink atomically updates the "latest" symlink.
func updateLatestLink(baseDir, id string) error {
	latestPath := filepath.Join(baseDir, "latest")
	tmpPath := latestPath + ".tmp"

	// Remove any stale tmp link
	os.Remove(tmpPath)

	if err := os.Symlink(id, tmpPath); err != nil {
		return fmt.Errorf("creating temp symlink: %w", err)
	}
	if err := os.Rename(tmpPath, latestPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("updating latest symlink: %w", err)
	}
	return nil
}

var nonAlphanumRe = regexp.MustCompile(`[^a-z0-9]+`)

// sanitizeSlug converts a string to a filesystem-friendly slug.
func sanitizeSlug(s string) string {
	s = strings.ToLower(s)
	s = nonAlphanumRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 40 {
		s = s[:40]
		s = strings.TrimRight(s, "-")
	}
	if s == "" {
		s = "run"
	}
	return s
}
