package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrARwho/project-uvm/internal/artifact"
	"github.com/MrARwho/project-uvm/internal/assets"
	"github.com/MrARwho/project-uvm/internal/backend"
	"github.com/MrARwho/project-uvm/internal/config"
	"github.com/MrARwho/project-uvm/internal/cost"
	"github.com/MrARwho/project-uvm/internal/history"
	vlog "github.com/MrARwho/project-uvm/internal/log"
	"github.com/MrARwho/project-uvm/internal/metrics"
	"github.com/MrARwho/project-uvm/internal/module"
	"github.com/MrARwho/project-uvm/internal/pipeline"
	"github.com/MrARwho/project-uvm/internal/project"
	"github.com/MrARwho/project-uvm/internal/run"
	"github.com/MrARwho/project-uvm/internal/stage"
	"github.com/MrARwho/project-uvm/internal/types"
)

// workspace is what every command reads before doing anything: configuration,
// the active module and the stage catalogue.
type workspace struct {
	cfg      *config.Config
	desc     *module.Descriptor
	pipeline *pipeline.Pipeline
}

func loadProject(moduleInfo string) (*workspace, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if moduleInfo == "" {
		moduleInfo = cfg.ModuleInfo
	}
	desc, err := module.Load(moduleInfo)
	if err != nil {
		return nil, err
	}
	ppl, err := loadPipeline(cfg.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("loading pipeline %q: %w", cfg.Pipeline, err)
	}
	return &workspace{cfg: cfg, desc: desc, pipeline: ppl}, nil
}

func loadPipeline(name string) (*pipeline.Pipeline, error) {
	data, err := assets.LoadPipeline(name)
	if err != nil {
		return nil, err
	}
	return pipeline.Parse(data)
}

// runOptions are the flags shared by run and pipeline.
type runOptions struct {
	moduleInfo string
	inputs     []string
	print      bool
	verbose    bool
}

// parseInputs turns name=path flags into input overrides.
func parseInputs(flags []string) (map[string]string, error) {
	out := make(map[string]string, len(flags))
	for _, f := range flags {
		name, path, ok := strings.Cut(f, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("--input %q: want name=path", f)
		}
		out[name] = path
	}
	return out, nil
}

func pricingTable(cfg *config.Config) *cost.Table {
	t := &cost.Table{Overrides: map[string]cost.ModelPricing{}}
	for model, p := range cfg.Pricing {
		t.Overrides[model] = cost.PerMillion(p.InputPerMillion, p.OutputPerMillion)
	}
	return t
}

func openRecorder(ctx context.Context, cfg *config.Config) (history.Recorder, func()) {
	if cfg.History.RedisAddr == "" {
		return history.Nop{}, func() {}
	}
	store := history.NewRedisStore(cfg.History.RedisAddr, cfg.History.RedisPassword, cfg.History.RedisDB,
		history.WithPrefix(cfg.History.Prefix),
		history.WithTTL(cfg.HistoryTTL()),
	)
	if err := store.Ping(ctx); err != nil {
		vlog.Warn("history store unreachable, not recording", "addr", cfg.History.RedisAddr, "err", err)
		store.Close()
		return history.Nop{}, func() {}
	}
	return store, func() { store.Close() }
}

// executeStages is the shared entry point for run and pipeline.
func executeStages(ctx context.Context, command string, opts runOptions, pick func(*pipeline.Pipeline) ([]types.Stage, error), stdout io.Writer) error {
	proj, err := loadProject(opts.moduleInfo)
	if err != nil {
		return err
	}
	cfg := proj.cfg

	logFile := openLogFile()
	level := cfg.LogLevel
	if opts.verbose {
		level = "debug"
	}
	vlog.Init(level, logFile)
	if logFile != nil {
		defer logFile.Close()
	}

	stages, err := pick(proj.pipeline)
	if err != nil {
		return err
	}
	overrides, err := parseInputs(opts.inputs)
	if err != nil {
		return err
	}
	policy, err := artifact.ParsePolicy(cfg.Artifacts.Policy)
	if err != nil {
		return err
	}

	apiKey := cfg.APIKey()
	if apiKey == "" {
		return fmt.Errorf("no API key: export %s", cfg.Provider.APIKeyEnv)
	}

	m := metrics.New()
	runner := &stage.Runner{
		Descriptor:      proj.desc,
		Loader:          &artifact.Loader{},
		Store:           &artifact.Store{Policy: policy},
		Language:        cfg.Extract.Language,
		Model:           cfg.Provider.Model,
		Temperature:     cfg.Generation.Temperature,
		MaxOutputTokens: cfg.Generation.MaxOutputTokens,
		Overrides:       overrides,
		Metrics:         m,
		Pricing:         pricingTable(cfg),
	}
	if opts.print {
		runner.Echo = stdout
	}

	client, err := backend.FromConfig(ctx, cfg, apiKey, func(int, error) {
		m.BackendRetry(runner.Current())
	})
	if err != nil {
		return fmt.Errorf("creating backend: %w", err)
	}
	runner.Client = client

	recorder, closeRecorder := openRecorder(ctx, cfg)
	defer closeRecorder()
	runner.Recorder = recorder

	r, err := run.New(".", command, proj.desc.Name, proj.pipeline.Name)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	if git, err := project.CollectGitInfo(ctx, "."); err == nil {
		if err := r.SetGit(git.Branch, git.Commit, git.Dirty); err != nil {
			vlog.Warn("failed to save git info", "err", err)
		}
	} else {
		vlog.Debug("not a git workspace", "err", err)
	}

	disp := pipeline.NewDisplay(proj.desc.Name, opts.verbose || opts.print)
	disp.Header()
	engine := &pipeline.Engine{Runner: runner, Run: r, Display: disp}

	_, execErr := engine.Execute(ctx, stages)

	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			vlog.Warn("writing metrics textfile failed", "path", cfg.Metrics.Textfile, "err", err)
		}
	}
	return execErr
}

func openLogFile() *os.File {
	dir := config.Dir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, "uvmgen.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil
	}
	return f
}
