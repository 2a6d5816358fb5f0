package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MrARwho/project-uvm/internal/types"
)

// Pipeline represents a named, ordered catalogue of stages.
type Pipeline struct {
	Name   string        `yaml:"name"`
	Stages []types.Stage `yaml:"stages"`
}

// Parse decodes a pipeline from YAML bytes.
func Parse(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing pipeline: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("pipeline must have a name")
	}
	seen := make(map[string]bool, len(p.Stages))
	for _, s := range p.Stages {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", p.Name, err)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("pipeline %s: duplicate stage %q", p.Name, s.Name)
		}
		seen[s.Name] = true
	}
	return &p, nil
}

// ParseFile reads and parses a pipeline YAML file.
func ParseFile(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline file %s: %w", path, err)
	}
	return Parse(data)
}

// Stage returns the stage called name.
func (p *Pipeline) Stage(name string) (types.Stage, error) {
	for _, s := range p.Stages {
		if s.Name == name {
			return s, nil
		}
	}
	return types.Stage{}, fmt.Errorf("unknown stage %q (have %v)", name, p.Names())
}

// Names lists stage names in catalogue order.
func (p *Pipeline) Names() []string {
	out := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		out[i] = s.Name
	}
	return out
}

// Slice returns the stages from..to inclusive. Empty bounds mean the first
// and last stage.
func (p *Pipeline) Slice(from, to string) ([]types.Stage, error) {
	start, end := 0, len(p.Stages)-1
	if from != "" {
		if start = p.index(from); start < 0 {
			return nil, fmt.Errorf("unknown stage %q", from)
		}
	}
	if to != "" {
		if end = p.index(to); end < 0 {
			return nil, fmt.Errorf("unknown stage %q", to)
		}
	}
	if start > end {
		return nil, fmt.Errorf("stage %q comes after %q", from, to)
	}
	return p.Stages[start : end+1], nil
}

func (p *Pipeline) index(name string) int {
	for i, s := range p.Stages {
		if s.Name == name {
			return i
		}
	}
	return -1
}
