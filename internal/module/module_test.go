package module

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "modules": [
    {
      "moduleName": "apb_uart",
      "paths": {
        "spec": "spec/{moduleName}_spec.txt",
        "uvm_testbench": "tb/{moduleName}"
      }
    },
    {
      "moduleName": "ignored",
      "paths": {"spec": "other/{moduleName}.txt"}
    }
  ]
}`

func TestParseUsesFirstModule(t *testing.T) {
	d, err := Parse([]byte(sampleJSON), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "apb_uart", d.Name)
	assert.Equal(t, "spec/{moduleName}_spec.txt", d.PathTemplates["spec"])
	assert.Len(t, d.PathTemplates, 2)
}

func TestParseYAML(t *testing.T) {
	doc := `
modules:
  - moduleName: fifo
    paths:
      spec: docs/{moduleName}.md
`
	d, err := Parse([]byte(doc), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "fifo", d.Name)

	p, err := d.Path("spec")
	require.NoError(t, err)
	assert.Equal(t, "docs/fifo.md", p)
}

func TestParseConfigurationErrors(t *testing.T) {
	cases := map[string]string{
		"malformed":         `{"modules": [`,
		"no modules":        `{"other": []}`,
		"modules not list":  `{"modules": {"moduleName": "x"}}`,
		"empty modules":     `{"modules": []}`,
		"entry not mapping": `{"modules": ["x"]}`,
		"no paths":          `{"modules": [{"moduleName": "x"}]}`,
		"paths not mapping": `{"modules": [{"moduleName": "x", "paths": ["a"]}]}`,
		"no module name":    `{"modules": [{"paths": {"spec": "{moduleName}"}}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), FormatJSON)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration), "want ConfigurationError, got %T: %v", err, err)
		})
	}
}

func TestResolve(t *testing.T) {
	templates := []string{
		"{moduleName}",
		"spec/{moduleName}_spec.txt",
		"./{moduleName}/{moduleName}_test.sv",
	}
	for _, name := range []string{"apb", "spi_master", "x"} {
		for _, tmpl := range templates {
			got, err := Resolve(tmpl, name)
			require.NoError(t, err)
			want := strings.ReplaceAll(tmpl, Placeholder, name)
			assert.Equal(t, want, got)

			// resolving an already-resolved path is not possible: no placeholder remains
			_, err = Resolve(got, name)
			assert.ErrorIs(t, err, ErrConfiguration)
		}
	}
}

func TestResolveMissingPlaceholder(t *testing.T) {
	_, err := Resolve("spec/fixed.txt", "apb")
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Error(), "lacks {moduleName}")
}

func TestDescriptorPath(t *testing.T) {
	d := &Descriptor{Name: "apb", PathTemplates: map[string]string{
		"spec":  "spec/{moduleName}.txt",
		"fixed": "spec/fixed.txt",
	}}

	p, err := d.Path("spec")
	require.NoError(t, err)
	assert.Equal(t, "spec/apb.txt", p)

	_, err = d.Path("fixed")
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = d.Path("missing")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestResolveAll(t *testing.T) {
	d, err := Parse([]byte(sampleJSON), FormatJSON)
	require.NoError(t, err)

	paths, err := d.ResolveAll()
	require.NoError(t, err)
	assert.Equal(t, ResolvedPaths{
		"spec":          "spec/apb_uart_spec.txt",
		"uvm_testbench": "tb/apb_uart",
	}, paths)
}

func TestExpand(t *testing.T) {
	d, err := Parse([]byte(sampleJSON), FormatJSON)
	require.NoError(t, err)

	tests := []struct {
		tmpl string
		want string
	}{
		{"{paths.spec}", "spec/apb_uart_spec.txt"},
		{"./{paths.uvm_testbench}/{moduleName}_test.sv", "./tb/apb_uart/apb_uart_test.sv"},
		{"./auto_seq/prompt_seq.txt", "./auto_seq/prompt_seq.txt"},
		{"./auto_monitor/{moduleName}_monitor.sv", "./auto_monitor/apb_uart_monitor.sv"},
	}
	for _, tt := range tests {
		got, err := d.Expand(tt.tmpl)
		require.NoError(t, err, tt.tmpl)
		assert.Equal(t, tt.want, got)
	}

	_, err = d.Expand("{paths.nope}/x")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "module_info.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleJSON), 0644))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "apb_uart", d.Name)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"modules": []}`), 0644))
	_, err = Load(bad)
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), bad)

	_, err = Load(filepath.Join(dir, "absent.json"))
	assert.ErrorIs(t, err, ErrConfiguration)
}
