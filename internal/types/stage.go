// Package types holds shared data structures used across packages.
package types

import "fmt"

// Extraction modes.
const (
	// ExtractFence keeps the first fenced block of the configured language.
	ExtractFence = "fence"
	// ExtractRaw keeps the whole text answer.
	ExtractRaw = "raw"
)

// Input is one named artifact read by a stage. Path may reference
// {paths.<key>} and {moduleName}.
type Input struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Template selects the instruction text appended after the inputs. When
// Marker is set, WhenPresent is used if the input named Probe contains it.
type Template struct {
	Name        string `yaml:"name,omitempty"`
	Path        string `yaml:"path,omitempty"`
	Probe       string `yaml:"probe,omitempty"`
	Marker      string `yaml:"marker,omitempty"`
	WhenPresent string `yaml:"when_present,omitempty"`
	Otherwise   string `yaml:"otherwise,omitempty"`
}

// InputName is the artifact name of the template, "prompt" by default.
func (t Template) InputName() string {
	if t.Name == "" {
		return "prompt"
	}
	return t.Name
}

// Conditional reports whether the template is chosen by a content probe.
func (t Template) Conditional() bool {
	return t.Marker != ""
}

// Extract configures how the artifact is cut out of the answer.
type Extract struct {
	Mode        string `yaml:"mode,omitempty"`
	Language    string `yaml:"language,omitempty"`
	AfterMarker string `yaml:"after_marker,omitempty"`
}

// Stage is a single unit of work in a pipeline.
type Stage struct {
	Name     string   `yaml:"name"`
	Model    string   `yaml:"model,omitempty"`
	Inputs   []Input  `yaml:"inputs"`
	Template Template `yaml:"template"`
	RawLog   string   `yaml:"raw_log"`
	Output   string   `yaml:"output"`
	Extract  Extract  `yaml:"extract,omitempty"`
}

// Validate checks that the stage definition is complete.
func (s Stage) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("stage must have a name")
	}
	if s.RawLog == "" {
		return fmt.Errorf("stage %q: raw_log is required", s.Name)
	}
	if s.Output == "" {
		return fmt.Errorf("stage %q: output is required", s.Name)
	}
	seen := make(map[string]bool, len(s.Inputs))
	for _, in := range s.Inputs {
		if in.Name == "" || in.Path == "" {
			return fmt.Errorf("stage %q: every input needs a name and a path", s.Name)
		}
		if seen[in.Name] {
			return fmt.Errorf("stage %q: duplicate input %q", s.Name, in.Name)
		}
		seen[in.Name] = true
	}
	if seen[s.Template.InputName()] {
		return fmt.Errorf("stage %q: template name %q collides with an input", s.Name, s.Template.InputName())
	}
	t := s.Template
	if t.Conditional() {
		if t.WhenPresent == "" || t.Otherwise == "" {
			return fmt.Errorf("stage %q: conditional template needs when_present and otherwise", s.Name)
		}
		if !seen[t.Probe] {
			return fmt.Errorf("stage %q: template probe %q is not an input", s.Name, t.Probe)
		}
	} else if t.Path == "" {
		return fmt.Errorf("stage %q: template path is required", s.Name)
	}
	switch s.Extract.Mode {
	case "", ExtractFence, ExtractRaw:
	default:
		return fmt.Errorf("stage %q: unknown extract mode %q", s.Name, s.Extract.Mode)
	}
	if s.Extract.Mode == ExtractRaw && s.Extract.AfterMarker != "" {
		return fmt.Errorf("stage %q: after_marker only applies to fence extraction", s.Name)
	}
	return nil
}

// ExtractMode returns the effective extraction mode.
func (s Stage) ExtractMode() string {
	if s.Extract.Mode == "" {
		return ExtractFence
	}
	return s.Extract.Mode
}
