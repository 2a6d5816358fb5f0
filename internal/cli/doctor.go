package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrARwho/project-uvm/internal/artifact"
	"github.com/MrARwho/project-uvm/internal/config"
	"github.com/MrARwho/project-uvm/internal/history"
	"github.com/MrARwho/project-uvm/internal/module"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check uvmgen configuration, module document and stage inputs",
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	allOK := true

	check := func(label string, ok bool, hint string) {
		if ok {
			fmt.Fprintf(out, "✅ %s\n", label)
		} else {
			fmt.Fprintf(out, "❌ %s — %s\n", label, hint)
			allOK = false
		}
	}

	// 1. config
	cfg, cfgErr := config.Load()
	check("config loadable", cfgErr == nil, fmt.Sprintf("fix config: %v", cfgErr))
	if cfgErr != nil {
		return nil
	}
	validateErr := cfg.Validate()
	check("config valid", validateErr == nil, fmt.Sprintf("%v", validateErr))
	check(cfg.Provider.APIKeyEnv+" set", cfg.APIKey() != "", "export "+cfg.Provider.APIKeyEnv)
	if !pricingTable(cfg).Known(cfg.Provider.Model) {
		fmt.Fprintf(out, "·· no pricing for %s, costs will read 0 (add it under pricing:)\n", cfg.Provider.Model)
	}

	// 2. module and pipeline
	desc, modErr := module.Load(cfg.ModuleInfo)
	check("module document "+cfg.ModuleInfo, modErr == nil, fmt.Sprintf("%v", modErr))
	ppl, pplErr := loadPipeline(cfg.Pipeline)
	check("pipeline "+cfg.Pipeline, pplErr == nil, fmt.Sprintf("%v", pplErr))

	// 3. stage inputs
	if modErr == nil && pplErr == nil {
		loader := &artifact.Loader{}
		for _, st := range ppl.Stages {
			var missing []string
			for _, in := range st.Inputs {
				p, err := desc.Expand(in.Path)
				if err != nil || !loader.Exists(p) {
					missing = append(missing, in.Name)
				}
			}
			if len(missing) == 0 {
				fmt.Fprintf(out, "✅ stage %s inputs present\n", st.Name)
			} else {
				// A later stage's inputs are produced by earlier ones, so this is informational.
				fmt.Fprintf(out, "·· stage %s waiting on %v\n", st.Name, missing)
			}
		}
	}

	// 4. history store
	if cfg.History.RedisAddr != "" {
		store := history.NewRedisStore(cfg.History.RedisAddr, cfg.History.RedisPassword, cfg.History.RedisDB)
		ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
		pingErr := store.Ping(ctx)
		cancel()
		store.Close()
		check("history store "+cfg.History.RedisAddr, pingErr == nil, fmt.Sprintf("%v", pingErr))
	}

	fmt.Fprintln(out)
	if allOK {
		fmt.Fprintln(out, "All checks passed. uvmgen is ready.")
	} else {
		fmt.Fprintln(out, "Some checks failed. Fix the issues above before running uvmgen.")
	}
	return nil
}
