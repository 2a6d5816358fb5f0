// Package stage runs one pipeline stage: it loads the stage's input
// artifacts, sends the assembled prompt to the backend, keeps the raw answer
// and persists the extracted code block.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MrARwho/project-uvm/internal/artifact"
	"github.com/MrARwho/project-uvm/internal/backend"
	"github.com/MrARwho/project-uvm/internal/cost"
	"github.com/MrARwho/project-uvm/internal/extract"
	"github.com/MrARwho/project-uvm/internal/history"
	vlog "github.com/MrARwho/project-uvm/internal/log"
	"github.com/MrARwho/project-uvm/internal/metrics"
	"github.com/MrARwho/project-uvm/internal/module"
	"github.com/MrARwho/project-uvm/internal/prompt"
	"github.com/MrARwho/project-uvm/internal/types"
)

// State is a step of a stage run.
type State int

const (
	ResolvingPaths State = iota
	LoadingArtifacts
	AssemblingPrompt
	Invoking
	PersistingRawResponse
	ExtractingCode
	PersistingArtifact
	Done
)

var stateNames = [...]string{
	ResolvingPaths:        "resolving_paths",
	LoadingArtifacts:      "loading_artifacts",
	AssemblingPrompt:      "assembling_prompt",
	Invoking:              "invoking",
	PersistingRawResponse: "persisting_raw_response",
	ExtractingCode:        "extracting_code",
	PersistingArtifact:    "persisting_artifact",
	Done:                  "done",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result reports what a stage run did. A run that found no code block is
// not an error: Extracted is false and no artifact was written.
type Result struct {
	Stage     string
	Model     string
	Template  string
	RawLog    string
	Output    string
	Response  backend.Response
	Code      string
	Extracted bool
	Write     *artifact.WriteResult
	Cost      float64
	Duration  time.Duration
	Trace     []State
}

// Runner holds the collaborators shared by every stage of a run.
type Runner struct {
	Descriptor *module.Descriptor
	Loader     *artifact.Loader
	Store      *artifact.Store
	Client     backend.Client

	// Language is the fence tag used when a stage does not set one.
	Language        string
	Model           string
	Temperature     float64
	MaxOutputTokens int

	// Overrides replaces input paths by input name.
	Overrides map[string]string

	Recorder history.Recorder
	Metrics  *metrics.Metrics
	Pricing  *cost.Table

	// Echo, when set, receives the printable answer.
	Echo io.Writer
	Now  func() time.Time

	current string
}

// Current names the stage being run, for callbacks that only see the
// backend call.
func (r *Runner) Current() string {
	return r.current
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) enter(res *Result, s State) {
	res.Trace = append(res.Trace, s)
	vlog.Debug("stage transition", "stage", res.Stage, "state", s.String())
}

// plan is a stage with every path resolved for the active module.
type plan struct {
	inputs   []artifact.Spec
	template types.Template
	rawLog   string
	output   string
}

func (r *Runner) expand(path string) (string, error) {
	if r.Descriptor == nil {
		return "", &module.ConfigurationError{Reason: "no module descriptor"}
	}
	return r.Descriptor.Expand(path)
}

func (r *Runner) resolve(st types.Stage) (*plan, error) {
	p := &plan{template: st.Template}
	for _, in := range st.Inputs {
		src := in.Path
		if o, ok := r.Overrides[in.Name]; ok {
			src = o
		}
		path, err := r.expand(src)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Name, err)
		}
		p.inputs = append(p.inputs, artifact.Spec{Name: in.Name, Path: path})
	}

	name := st.Template.InputName()
	if o, ok := r.Overrides[name]; ok {
		p.template = types.Template{Name: st.Template.Name, Path: o}
	}
	var err error
	for _, ref := range []*string{&p.template.Path, &p.template.WhenPresent, &p.template.Otherwise} {
		if *ref == "" {
			continue
		}
		if *ref, err = r.expand(*ref); err != nil {
			return nil, fmt.Errorf("template: %w", err)
		}
	}
	if p.rawLog, err = r.expand(st.RawLog); err != nil {
		return nil, fmt.Errorf("raw log: %w", err)
	}
	if p.output, err = r.expand(st.Output); err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	return p, nil
}

// templatePath applies the content probe, if any.
func templatePath(t types.Template, arts []artifact.Artifact) string {
	if !t.Conditional() {
		return t.Path
	}
	probe, _ := artifact.Find(arts, t.Probe)
	return prompt.Choose(probe.Content, t.Marker, t.WhenPresent, t.Otherwise)
}

// Run executes st. Path, artifact and transport failures abort the run and
// are returned; nothing written before the failure is rolled back.
func (r *Runner) Run(ctx context.Context, st types.Stage) (*Result, error) {
	start := r.now()
	r.current = st.Name
	res := &Result{Stage: st.Name, Model: st.Model}
	if res.Model == "" {
		res.Model = r.Model
	}
	defer func() { res.Duration = r.now().Sub(start) }()

	r.enter(res, ResolvingPaths)
	p, err := r.resolve(st)
	if err != nil {
		r.Metrics.StageRun(st.Name, "failed")
		return res, fmt.Errorf("stage %s: resolving paths: %w", st.Name, err)
	}
	res.RawLog = p.rawLog
	res.Output = p.output

	r.enter(res, LoadingArtifacts)
	arts, err := r.Loader.Load(p.inputs)
	if err != nil {
		r.Metrics.StageRun(st.Name, "failed")
		return res, fmt.Errorf("stage %s: %w", st.Name, err)
	}
	res.Template = templatePath(p.template, arts)
	tmpl, err := r.Loader.Load([]artifact.Spec{{Name: p.template.InputName(), Path: res.Template}})
	if err != nil {
		r.Metrics.StageRun(st.Name, "failed")
		return res, fmt.Errorf("stage %s: %w", st.Name, err)
	}
	vlog.Info("loaded stage inputs", "stage", st.Name, "inputs", len(arts), "template", res.Template)

	r.enter(res, AssemblingPrompt)
	text := prompt.Assemble(append(artifact.Contents(arts), tmpl[0].Content)...)

	r.enter(res, Invoking)
	req := backend.Request{
		Prompt:          text,
		Model:           res.Model,
		Temperature:     r.Temperature,
		MaxOutputTokens: r.MaxOutputTokens,
	}.WithDefaults()
	res.Model = req.Model
	callStart := time.Now()
	resp, err := r.Client.Generate(ctx, req)
	if err != nil {
		r.Metrics.BackendRequest(st.Name, "error", time.Since(callStart))
		r.Metrics.StageRun(st.Name, "failed")
		r.record(ctx, res, start, err)
		return res, fmt.Errorf("stage %s: %w", st.Name, err)
	}
	r.Metrics.BackendRequest(st.Name, resp.Kind.String(), time.Since(callStart))
	r.Metrics.Tokens(st.Name, resp.Usage.PromptTokens, resp.Usage.OutputTokens)
	res.Response = resp
	res.Cost = r.Pricing.FromUsage(res.Model, cost.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	})
	if resp.Kind == backend.KindRaw {
		vlog.Warn("unexpected response shape", "stage", st.Name)
	}

	r.enter(res, PersistingRawResponse)
	answer := resp.Printable()
	if r.Echo != nil {
		fmt.Fprintln(r.Echo, answer)
	}
	rawStore := &artifact.Store{Root: r.Store.Root, Policy: artifact.PolicyOverwrite}
	if _, err := rawStore.Write(p.rawLog, answer); err != nil {
		r.Metrics.StageRun(st.Name, "failed")
		r.record(ctx, res, start, err)
		return res, fmt.Errorf("stage %s: %w", st.Name, err)
	}

	r.enter(res, ExtractingCode)
	res.Code, res.Extracted = r.extract(st, resp)
	if !res.Extracted {
		vlog.Warn("no code block in answer", "stage", st.Name, "raw_log", p.rawLog)
		r.Metrics.StageRun(st.Name, "no_code")
		r.enter(res, Done)
		r.record(ctx, res, start, nil)
		return res, nil
	}

	r.enter(res, PersistingArtifact)
	wr, err := r.Store.Write(p.output, res.Code)
	if err != nil {
		r.Metrics.StageRun(st.Name, "failed")
		r.record(ctx, res, start, err)
		return res, fmt.Errorf("stage %s: %w", st.Name, err)
	}
	res.Write = wr
	vlog.Info("artifact written", "stage", st.Name, "path", wr.Path, "digest", wr.Digest, "replaced", wr.Replaced)

	r.Metrics.StageRun(st.Name, "extracted")
	r.enter(res, Done)
	r.record(ctx, res, start, nil)
	return res, nil
}

func (r *Runner) extract(st types.Stage, resp backend.Response) (string, bool) {
	if resp.Kind != backend.KindText {
		return "", false
	}
	if st.ExtractMode() == types.ExtractRaw {
		return resp.Text, resp.Text != ""
	}
	lang := st.Extract.Language
	if lang == "" {
		lang = r.Language
	}
	return extract.New(lang, st.Extract.AfterMarker).First(resp.Text)
}

// record appends a history entry. History is best effort.
func (r *Runner) record(ctx context.Context, res *Result, start time.Time, runErr error) {
	if r.Recorder == nil {
		return
	}
	rec := history.NewRecord(r.Descriptor.Name, res.Stage, start)
	rec.Model = res.Model
	rec.Template = res.Template
	rec.RawLog = res.RawLog
	rec.Extracted = res.Extracted
	rec.DurationMS = r.now().Sub(start).Milliseconds()
	if runErr != nil {
		rec.Error = runErr.Error()
	} else {
		rec.ResponseKind = res.Response.Kind.String()
		rec.ResponseDigest = artifact.Digest(res.Response.Printable())
	}
	if res.Write != nil {
		rec.Artifact = res.Write.Path
		rec.ArtifactDigest = res.Write.Digest
	}
	if err := r.Recorder.Append(ctx, rec); err != nil && !errors.Is(err, context.Canceled) {
		vlog.Warn("recording history failed", "stage", res.Stage, "err", err)
	}
}
