// Package assets provides the embedded stage catalogue and file templates.
package assets

import (
	"embed"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/MrARwho/project-uvm/internal/config"
)

//go:embed pipelines/*.yaml
var pipelinesFS embed.FS

//go:embed templates/*
var templatesFS embed.FS

// LoadPipeline returns the content of a pipeline YAML by name.
// Override lookup order: project .uvmgen/pipelines/ > user ~/.uvmgen/pipelines/ > embedded.
func LoadPipeline(name string) ([]byte, error) {
	content, err := loadWithOverride("pipelines", name+".yaml", pipelinesFS)
	if err != nil {
		return nil, err
	}
	return []byte(content), nil
}

// LoadTemplate returns an embedded file template, such as the default
// config.yaml written by init.
func LoadTemplate(name string) (string, error) {
	data, err := templatesFS.ReadFile(path.Join("templates", name))
	if err != nil {
		return "", fmt.Errorf("template %q not found", name)
	}
	return string(data), nil
}

func loadWithOverride(dir, filename string, embedded embed.FS) (string, error) {
	// 1. project-level override
	projectPath := filepath.Join(config.Dir, dir, filename)
	if data, err := os.ReadFile(projectPath); err == nil {
		return string(data), nil
	}

	// 2. user-level override
	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, config.Dir, dir, filename)
		if data, err := os.ReadFile(userPath); err == nil {
			return string(data), nil
		}
	}

	// 3. embedded default
	data, err := embedded.ReadFile(path.Join(dir, filename))
	if err != nil {
		return "", fmt.Errorf("%s %q not found", dir, filename)
	}
	return string(data), nil
}
