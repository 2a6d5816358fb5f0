package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrARwho/project-uvm/internal/run"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cost and run statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	stats, err := run.List(".")
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	var totalCost float64
	var completed, failed, artifacts int
	for _, s := range stats {
		totalCost += s.Meta.TotalCost
		artifacts += s.Meta.Extracted()
		switch s.Meta.Status {
		case "completed":
			completed++
		case "failed":
			failed++
		}
	}

	fmt.Fprintf(out, "Runs: %d total, %d completed, %d failed\n", len(stats), completed, failed)
	fmt.Fprintf(out, "Artifacts written: %d\n", artifacts)
	fmt.Fprintf(out, "Total cost: $%.4f\n", totalCost)
	fmt.Fprintf(out, "Average cost: $%.4f\n", totalCost/float64(len(stats)))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%-40s %-10s %-12s %-10s %s\n", "Run ID", "Status", "Cost", "Module", "Stages")
	fmt.Fprintln(out, strings.Repeat("─", 90))
	for _, s := range stats {
		names := make([]string, len(s.Meta.Stages))
		for i, st := range s.Meta.Stages {
			names[i] = st.Name
		}
		fmt.Fprintf(out, "%-40s %-10s $%-11.4f %-10s %s\n",
			s.ID, s.Meta.Status, s.Meta.TotalCost, s.Meta.Module, strings.Join(names, ","))
	}
	return nil
}
