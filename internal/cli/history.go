package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrARwho/project-uvm/internal/config"
	"github.com/MrARwho/project-uvm/internal/history"
)

var (
	historyModuleInfo string
	historyLimit      int
)

var historyCmd = &cobra.Command{
	Use:          "history [stage]",
	Short:        "List recorded stage invocations for the active module",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyModuleInfo, "module-info", "m", "", "Module configuration document (default from config)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum entries to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	proj, err := loadProject(historyModuleInfo)
	if err != nil {
		return err
	}
	cfg := proj.cfg
	if cfg.History.RedisAddr == "" {
		return fmt.Errorf("history is disabled: set history.redis_addr in %s/config.yaml", config.Dir)
	}
	stageName := ""
	if len(args) == 1 {
		stageName = args[0]
		if _, err := proj.pipeline.Stage(stageName); err != nil {
			return err
		}
	}

	store := history.NewRedisStore(cfg.History.RedisAddr, cfg.History.RedisPassword, cfg.History.RedisDB,
		history.WithPrefix(cfg.History.Prefix))
	defer store.Close()

	recs, err := store.List(cmd.Context(), proj.desc.Name, stageName, historyLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "No history recorded.")
		return nil
	}
	fmt.Fprintf(out, "%-20s %-12s %-18s %-9s %-14s %s\n", "Started", "Stage", "Model", "Result", "Digest", "Artifact")
	for _, r := range recs {
		result := "no code"
		switch {
		case r.Error != "":
			result = "failed"
		case r.Extracted:
			result = "written"
		}
		fmt.Fprintf(out, "%-20s %-12s %-18s %-9s %-14s %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Stage, r.Model, result, r.ArtifactDigest, r.Artifact)
	}
	return nil
}
