package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MrARwho/project-uvm/internal/assets"
	"github.com/MrARwho/project-uvm/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize uvmgen configuration and a sample module document",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("getting home dir: %w", err)
	}

	configDir := filepath.Join(home, config.Dir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	if err := writeTemplate(out, "config.yaml", filepath.Join(configDir, "config.yaml")); err != nil {
		return err
	}
	if err := writeTemplate(out, "module_info.json", config.Defaults().ModuleInfo); err != nil {
		return err
	}

	fmt.Fprintf(out, "Export %s for API access.\n", config.Defaults().Provider.APIKeyEnv)
	return nil
}

// writeTemplate copies an embedded template to dest unless dest exists.
func writeTemplate(out io.Writer, name, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		fmt.Fprintf(out, "Already exists: %s\n", dest)
		return nil
	}
	content, err := assets.LoadTemplate(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	fmt.Fprintf(out, "Created %s\n", dest)
	return nil
}
