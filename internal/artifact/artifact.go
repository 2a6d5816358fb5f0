// Package artifact reads stage inputs and persists stage outputs.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrArtifactNotFound matches every NotFoundError via errors.Is.
var ErrArtifactNotFound = errors.New("artifact not found")

// NotFoundError identifies a required input that is absent.
type NotFoundError struct {
	Name string
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("artifact %q not found at %s", e.Name, e.Path)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

func (e *NotFoundError) Is(target error) bool { return target == ErrArtifactNotFound }

// Spec names one input of a stage and where it lives.
type Spec struct {
	Name string
	Path string
}

// Artifact is a named unit of text content.
type Artifact struct {
	Name    string
	Path    string
	Content string
}

// Loader reads whole artifacts relative to Root. An empty Root means the
// working directory; absolute paths are used as is.
type Loader struct {
	Root string
}

func (l *Loader) abs(path string) string {
	if l.Root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.Root, path)
}

// Load reads every spec in order. The first missing file aborts the load
// and no partial result is returned.
func (l *Loader) Load(specs []Spec) ([]Artifact, error) {
	out := make([]Artifact, 0, len(specs))
	for _, s := range specs {
		data, err := os.ReadFile(l.abs(s.Path))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, &NotFoundError{Name: s.Name, Path: s.Path, Err: err}
			}
			return nil, fmt.Errorf("reading artifact %q: %w", s.Name, err)
		}
		out = append(out, Artifact{Name: s.Name, Path: s.Path, Content: string(data)})
	}
	return out, nil
}

// Exists reports whether the artifact at path is present.
func (l *Loader) Exists(path string) bool {
	_, err := os.Stat(l.abs(path))
	return err == nil
}

// Contents returns the texts of artifacts in order.
func Contents(arts []Artifact) []string {
	out := make([]string, len(arts))
	for i, a := range arts {
		out[i] = a.Content
	}
	return out
}

// Find returns the artifact with the given name.
func Find(arts []Artifact, name string) (Artifact, bool) {
	for _, a := range arts {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}
