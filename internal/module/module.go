// Package module loads the active module descriptor from the module
// configuration document and resolves its path templates.
package module

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	vlog "github.com/MrARwho/project-uvm/internal/log"
)

// Placeholder is substituted with the module name in every path template.
const Placeholder = "{moduleName}"

// Format is the encoding of a module configuration document.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// Descriptor identifies the active module and its named path templates.
// It is immutable for the lifetime of a run.
type Descriptor struct {
	Name          string            `mapstructure:"moduleName"`
	PathTemplates map[string]string `mapstructure:"paths"`
}

// ResolvedPaths maps a logical path name to a concrete path.
type ResolvedPaths map[string]string

// Load reads a module configuration document. The format follows the file
// extension; anything other than .yaml/.yml is read as JSON.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Source: path, Reason: "cannot read module configuration", Err: err}
	}
	format := FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}
	d, err := Parse(data, format)
	if err != nil {
		if ce, ok := err.(*ConfigurationError); ok && ce.Source == "" {
			ce.Source = path
		}
		return nil, err
	}
	return d, nil
}

// Parse decodes a module configuration document and returns the descriptor
// of its first module. Later modules are ignored.
func Parse(data []byte, format Format) (*Descriptor, error) {
	var doc map[string]interface{}
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, &ConfigurationError{Reason: "malformed module configuration", Err: err}
	}

	rawModules, ok := doc["modules"]
	if !ok {
		return nil, &ConfigurationError{Reason: "missing \"modules\" collection"}
	}
	modules, ok := rawModules.([]interface{})
	if !ok {
		return nil, &ConfigurationError{Reason: "\"modules\" is not a list"}
	}
	if len(modules) == 0 {
		return nil, &ConfigurationError{Reason: "\"modules\" is empty"}
	}
	if len(modules) > 1 {
		vlog.Debug("module configuration lists several modules, using the first", "count", len(modules))
	}

	first, ok := modules[0].(map[string]interface{})
	if !ok {
		return nil, &ConfigurationError{Reason: "modules[0] is not a mapping"}
	}
	if _, ok := first["paths"].(map[string]interface{}); !ok {
		return nil, &ConfigurationError{Reason: "modules[0] has no \"paths\" mapping"}
	}

	var d Descriptor
	if err := mapstructure.Decode(first, &d); err != nil {
		return nil, &ConfigurationError{Reason: "cannot decode modules[0]", Err: err}
	}
	if strings.TrimSpace(d.Name) == "" {
		return nil, &ConfigurationError{Reason: "modules[0] has no \"moduleName\""}
	}
	return &d, nil
}

// Resolve substitutes name into template. The template must contain
// the {moduleName} placeholder.
func Resolve(template, name string) (string, error) {
	if !strings.Contains(template, Placeholder) {
		return "", &ConfigurationError{Reason: fmt.Sprintf("path template %q lacks %s", template, Placeholder)}
	}
	return strings.ReplaceAll(template, Placeholder, name), nil
}

// Path resolves the named path template of the descriptor.
func (d *Descriptor) Path(key string) (string, error) {
	tmpl, ok := d.PathTemplates[key]
	if !ok {
		return "", &ConfigurationError{Reason: fmt.Sprintf("unknown path %q", key)}
	}
	if !strings.Contains(tmpl, Placeholder) {
		return "", &ConfigurationError{Reason: fmt.Sprintf("paths.%s: template %q lacks %s", key, tmpl, Placeholder)}
	}
	return strings.ReplaceAll(tmpl, Placeholder, d.Name), nil
}

// ResolveAll resolves every path template of the descriptor.
func (d *Descriptor) ResolveAll() (ResolvedPaths, error) {
	keys := make([]string, 0, len(d.PathTemplates))
	for k := range d.PathTemplates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(ResolvedPaths, len(keys))
	for _, k := range keys {
		p, err := d.Path(k)
		if err != nil {
			return nil, err
		}
		out[k] = p
	}
	return out, nil
}

var pathRefRe = regexp.MustCompile(`\{paths\.([A-Za-z0-9_\-]+)\}`)

// Expand expands a stage-level template: {paths.<key>} references are
// replaced by the resolved descriptor path, then {moduleName} is substituted.
// Unlike descriptor templates, a stage template may be a fixed path.
func (d *Descriptor) Expand(template string) (string, error) {
	var firstErr error
	out := pathRefRe.ReplaceAllStringFunc(template, func(ref string) string {
		key := pathRefRe.FindStringSubmatch(ref)[1]
		p, err := d.Path(key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return ref
		}
		return p
	})
	if firstErr != nil {
		return "", firstErr
	}
	return strings.ReplaceAll(out, Placeholder, d.Name), nil
}
