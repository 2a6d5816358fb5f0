package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MrARwho/project-uvm/internal/artifact"
	"github.com/MrARwho/project-uvm/internal/module"
	"github.com/MrARwho/project-uvm/internal/types"
)

var stagesModuleInfo string

var stagesCmd = &cobra.Command{
	Use:          "stages",
	Short:        "List stages with their resolved inputs and outputs",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runStages,
}

func init() {
	stagesCmd.Flags().StringVarP(&stagesModuleInfo, "module-info", "m", "", "Module configuration document (default from config)")
}

func runStages(cmd *cobra.Command, args []string) error {
	proj, err := loadProject(stagesModuleInfo)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Module %s, pipeline %s\n", proj.desc.Name, proj.pipeline.Name)
	loader := &artifact.Loader{}
	for _, st := range proj.pipeline.Stages {
		fmt.Fprintln(out)
		describeStage(out, proj.desc, loader, st)
	}
	return nil
}

func describeStage(out io.Writer, d *module.Descriptor, loader *artifact.Loader, st types.Stage) {
	mode := st.ExtractMode()
	if st.Extract.AfterMarker != "" {
		mode += " after " + fmt.Sprintf("%q", st.Extract.AfterMarker)
	}
	fmt.Fprintf(out, "%s  (%s)\n", st.Name, mode)

	show := func(label, tmpl string) {
		p, err := d.Expand(tmpl)
		if err != nil {
			fmt.Fprintf(out, "  %-10s ❌ %v\n", label, err)
			return
		}
		mark := "✅"
		if !loader.Exists(p) {
			mark = "··"
		}
		fmt.Fprintf(out, "  %-10s %s %s\n", label, mark, p)
	}
	for _, in := range st.Inputs {
		show(in.Name, in.Path)
	}
	if st.Template.Conditional() {
		show(st.Template.InputName()+"+", st.Template.WhenPresent)
		show(st.Template.InputName()+"-", st.Template.Otherwise)
	} else {
		show(st.Template.InputName(), st.Template.Path)
	}
	show("→ raw", st.RawLog)
	show("→ output", st.Output)
}
