package cli

import (
	"github.com/spf13/cobra"

	"github.com/MrARwho/project-uvm/internal/pipeline"
	"github.com/MrARwho/project-uvm/internal/types"
)

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run <stage>",
	Short: "Run a single stage for the active module",
	Example: `  uvmgen run seq_item
  uvmgen run check_test --input errors=./logs/compile.log --print`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		return executeStages(cmd.Context(), "run", runOpts, func(p *pipeline.Pipeline) ([]types.Stage, error) {
			st, err := p.Stage(name)
			if err != nil {
				return nil, err
			}
			return []types.Stage{st}, nil
		}, cmd.OutOrStdout())
	},
}

var (
	pipelineOpts runOptions
	pipelineFrom string
	pipelineTo   string
)

var pipelineCmd = &cobra.Command{
	Use:          "pipeline",
	Short:        "Run the stage catalogue in order",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeStages(cmd.Context(), "pipeline", pipelineOpts, func(p *pipeline.Pipeline) ([]types.Stage, error) {
			return p.Slice(pipelineFrom, pipelineTo)
		}, cmd.OutOrStdout())
	},
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().StringVarP(&opts.moduleInfo, "module-info", "m", "", "Module configuration document (default from config)")
	cmd.Flags().StringArrayVarP(&opts.inputs, "input", "i", nil, "Override an input path as name=path (repeatable)")
	cmd.Flags().BoolVar(&opts.print, "print", false, "Echo each raw answer to stdout")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging and line-per-event output")
}

func init() {
	addRunFlags(runCmd, &runOpts)
	addRunFlags(pipelineCmd, &pipelineOpts)
	pipelineCmd.Flags().StringVar(&pipelineFrom, "from", "", "First stage to run")
	pipelineCmd.Flags().StringVar(&pipelineTo, "to", "", "Last stage to run")
}
