package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrARwho/project-uvm/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "uvmgen",
	Short: "Staged LLM generation of UVM testbench components",
	Long: `uvmgen feeds a module's specification and previously generated artifacts
to a generative model, stage by stage, and keeps the code block each answer
contains as the next artifact.`,
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the in-flight backend call.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(stagesCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "uvmgen %s\n", version.Version)
	},
}
