package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/MrARwho/project-uvm/internal/backend"
	vlog "github.com/MrARwho/project-uvm/internal/log"
	"github.com/MrARwho/project-uvm/internal/run"
	"github.com/MrARwho/project-uvm/internal/stage"
	"github.com/MrARwho/project-uvm/internal/types"
)

// Engine runs stages one after another for a single module.
type Engine struct {
	Runner  *stage.Runner
	Run     *run.Run
	Display *Display
}

// stageDisplayModel returns the model label shown for a stage.
func (e *Engine) stageDisplayModel(st types.Stage) string {
	switch {
	case st.Model != "":
		return st.Model
	case e.Runner != nil && e.Runner.Model != "":
		return e.Runner.Model
	default:
		return backend.DefaultModel
	}
}

// Execute runs stages in order. The first failing stage stops the run; a
// stage that produced no code block does not.
func (e *Engine) Execute(ctx context.Context, stages []types.Stage) ([]*stage.Result, error) {
	startTime := time.Now()
	var results []*stage.Result
	extracted := 0

	for _, st := range stages {
		select {
		case <-ctx.Done():
			e.fail(ctx.Err())
			return results, ctx.Err()
		default:
		}

		displayModel := e.stageDisplayModel(st)
		e.Display.StageStart(st.Name, displayModel)

		res, err := e.Runner.Run(ctx, st)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			e.Display.StageFailed(st.Name, displayModel, err)
			e.record(res, "failed", err)
			e.fail(err)
			return results, fmt.Errorf("stage %q failed: %w", st.Name, err)
		}

		if !res.Extracted {
			e.Display.StageNoCode(st.Name, res.Model, res.RawLog, res.Duration)
			e.record(res, "no_code", nil)
			continue
		}

		extracted++
		e.record(res, "extracted", nil)
		e.Display.StageDone(st.Name, res.Model, res.Output, res.Cost, res.Duration, res.Code)
	}

	if e.Run != nil {
		if err := e.Run.Complete(); err != nil {
			vlog.Warn("failed to mark run complete", "err", err)
		}
	}

	var total float64
	for _, r := range results {
		total += r.Cost
	}
	e.Display.Summary(extracted, len(stages), total, time.Since(startTime))
	return results, nil
}

func (e *Engine) record(res *stage.Result, status string, stageErr error) {
	if e.Run == nil || res == nil {
		return
	}
	sr := run.StageResult{
		Name:       res.Stage,
		Status:     status,
		Model:      res.Model,
		Template:   res.Template,
		RawLog:     res.RawLog,
		Cost:       res.Cost,
		TokensIn:   res.Response.Usage.PromptTokens,
		TokensOut:  res.Response.Usage.OutputTokens,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Write != nil {
		sr.Artifact = res.Write.Path
		sr.Digest = res.Write.Digest
	}
	if stageErr != nil {
		sr.Error = stageErr.Error()
	}
	if err := e.Run.AddStageResult(sr); err != nil {
		vlog.Warn("failed to save stage result", "stage", res.Stage, "err", err)
	}
}

func (e *Engine) fail(err error) {
	if e.Run != nil {
		if metaErr := e.Run.Fail(err.Error()); metaErr != nil {
			vlog.Error("failed to update run meta", "err", metaErr)
		}
	}
	e.Display.Failed(err)
}
