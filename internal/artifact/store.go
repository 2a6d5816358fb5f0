package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Policy names how a write treats the artifact it replaces.
type Policy string

const (
	// PolicyOverwrite replaces the file in place with no trace of the old content.
	PolicyOverwrite Policy = "overwrite"
	// PolicyTimestamped keeps the previous content as <file>.<UTC time>.bak.
	PolicyTimestamped Policy = "timestamped"
	// PolicyContentAddressed also stores each version under .versions/<file>.<digest>.
	PolicyContentAddressed Policy = "content-addressed"
)

// ParsePolicy validates a policy name. Empty means overwrite.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyOverwrite:
		return PolicyOverwrite, nil
	case PolicyTimestamped, PolicyContentAddressed:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown artifact policy %q", s)
}

// Store writes stage outputs under Root following Policy.
type Store struct {
	Root   string
	Policy Policy
	Now    func() time.Time
}

// WriteResult describes what a write did on disk.
type WriteResult struct {
	Path        string
	Digest      string
	Replaced    bool
	BackupPath  string
	VersionPath string
}

func (s *Store) abs(path string) string {
	if s.Root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.Root, path)
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Digest returns the first 12 hex characters of the content's SHA-256.
func Digest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:12]
}

// Write persists content at path, creating parent directories.
func (s *Store) Write(path, content string) (*WriteResult, error) {
	full := s.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}

	res := &WriteResult{Path: path, Digest: Digest(content)}

	prev, err := os.ReadFile(full)
	switch {
	case err == nil:
		res.Replaced = true
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading previous artifact: %w", err)
	}

	if res.Replaced && s.Policy == PolicyTimestamped {
		backup := fmt.Sprintf("%s.%s.bak", full, s.now().UTC().Format("20060102T150405Z"))
		if err := os.WriteFile(backup, prev, 0644); err != nil {
			return nil, fmt.Errorf("writing artifact backup: %w", err)
		}
		res.BackupPath = backup
	}

	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("writing artifact %s: %w", path, err)
	}

	if s.Policy == PolicyContentAddressed {
		dir := filepath.Join(filepath.Dir(full), ".versions")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating versions dir: %w", err)
		}
		version := filepath.Join(dir, filepath.Base(full)+"."+res.Digest)
		if _, err := os.Stat(version); errors.Is(err, fs.ErrNotExist) {
			if err := os.WriteFile(version, []byte(content), 0644); err != nil {
				return nil, fmt.Errorf("writing artifact version: %w", err)
			}
		}
		res.VersionPath = version
	}

	return res, nil
}
