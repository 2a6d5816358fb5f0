package stage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrARwho/project-uvm/internal/artifact"
	"github.com/MrARwho/project-uvm/internal/backend"
	"github.com/MrARwho/project-uvm/internal/extract"
	"github.com/MrARwho/project-uvm/internal/history"
	"github.com/MrARwho/project-uvm/internal/module"
	"github.com/MrARwho/project-uvm/internal/types"
)

type fakeClient struct {
	resp    backend.Response
	err     error
	prompts []string
	reqs    []backend.Request
}

func (f *fakeClient) Generate(_ context.Context, req backend.Request) (backend.Response, error) {
	f.prompts = append(f.prompts, req.Prompt)
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

type memRecorder struct{ recs []history.Record }

func (m *memRecorder) Append(_ context.Context, rec history.Record) error {
	m.recs = append(m.recs, rec)
	return nil
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, rel))
	require.NoError(t, err)
	return string(data)
}

func newRunner(t *testing.T, client backend.Client) (*Runner, string, *memRecorder) {
	t.Helper()
	root := t.TempDir()
	rec := &memRecorder{}
	return &Runner{
		Descriptor: &module.Descriptor{
			Name: "apb",
			PathTemplates: map[string]string{
				"spec":          "./spec/{moduleName}_spec.md",
				"uvm_testbench": "./tb_{moduleName}",
			},
		},
		Loader:   &artifact.Loader{Root: root},
		Store:    &artifact.Store{Root: root, Policy: artifact.PolicyOverwrite},
		Client:   client,
		Language: "systemverilog",
		Recorder: rec,
	}, root, rec
}

func abcStage() types.Stage {
	return types.Stage{
		Name: "seq_item",
		Inputs: []types.Input{
			{Name: "spec", Path: "{paths.spec}"},
			{Name: "function", Path: "./auto_function/{moduleName}_function.txt"},
		},
		Template: types.Template{Path: "./auto_seq_item/prompt_tr.txt"},
		RawLog:   "./auto_seq_item/answer1.md",
		Output:   "./auto_seq_item/{moduleName}_seq_item.sv",
	}
}

func seedABC(t *testing.T, root string) {
	writeFile(t, root, "spec/apb_spec.md", "A")
	writeFile(t, root, "auto_function/apb_function.txt", "B")
	writeFile(t, root, "auto_seq_item/prompt_tr.txt", "C")
}

func TestRunAssemblesPromptInOrder(t *testing.T) {
	client := &fakeClient{resp: backend.TextResponse("```systemverilog\nclass apb_item;\nendclass\n```")}
	r, root, rec := newRunner(t, client)
	seedABC(t, root)

	res, err := r.Run(context.Background(), abcStage())
	require.NoError(t, err)

	require.Len(t, client.prompts, 1)
	assert.Equal(t, "ABC", client.prompts[0])
	assert.Equal(t, backend.DefaultModel, client.reqs[0].Model)

	assert.True(t, res.Extracted)
	assert.Equal(t, "\nclass apb_item;\nendclass\n", readFile(t, root, "auto_seq_item/apb_seq_item.sv"))
	assert.Equal(t, client.resp.Text, readFile(t, root, "auto_seq_item/answer1.md"))
	assert.Equal(t, []State{
		ResolvingPaths, LoadingArtifacts, AssemblingPrompt, Invoking,
		PersistingRawResponse, ExtractingCode, PersistingArtifact, Done,
	}, res.Trace)

	require.Len(t, rec.recs, 1)
	assert.Equal(t, "apb", rec.recs[0].Module)
	assert.True(t, rec.recs[0].Extracted)
	assert.Equal(t, artifact.Digest(res.Code), rec.recs[0].ArtifactDigest)
}

func TestRunMissingArtifactSkipsBackend(t *testing.T) {
	client := &fakeClient{resp: backend.TextResponse("unused")}
	r, root, rec := newRunner(t, client)
	writeFile(t, root, "spec/apb_spec.md", "A")

	res, err := r.Run(context.Background(), abcStage())
	require.Error(t, err)
	assert.True(t, errors.Is(err, artifact.ErrArtifactNotFound))

	var nf *artifact.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "function", nf.Name)

	assert.Empty(t, client.prompts)
	assert.Empty(t, rec.recs)
	assert.Equal(t, LoadingArtifacts, res.Trace[len(res.Trace)-1])
	assert.NoFileExists(t, filepath.Join(root, "auto_seq_item/answer1.md"))
}

func TestRunMissingTemplateSkipsBackend(t *testing.T) {
	client := &fakeClient{}
	r, root, _ := newRunner(t, client)
	writeFile(t, root, "spec/apb_spec.md", "A")
	writeFile(t, root, "auto_function/apb_function.txt", "B")

	_, err := r.Run(context.Background(), abcStage())
	assert.ErrorIs(t, err, artifact.ErrArtifactNotFound)
	assert.Empty(t, client.prompts)
}

func TestRunUnknownPathKey(t *testing.T) {
	client := &fakeClient{}
	r, _, _ := newRunner(t, client)
	st := abcStage()
	st.Inputs[0].Path = "{paths.nope}"

	res, err := r.Run(context.Background(), st)
	assert.ErrorIs(t, err, module.ErrConfiguration)
	assert.Equal(t, []State{ResolvingPaths}, res.Trace)
	assert.Empty(t, client.prompts)
}

func TestRunNoCodeBlock(t *testing.T) {
	client := &fakeClient{resp: backend.TextResponse("Sorry, here is prose only.")}
	r, root, _ := newRunner(t, client)
	seedABC(t, root)

	res, err := r.Run(context.Background(), abcStage())
	require.NoError(t, err)
	assert.False(t, res.Extracted)
	assert.Nil(t, res.Write)
	assert.Equal(t, "Sorry, here is prose only.", readFile(t, root, "auto_seq_item/answer1.md"))
	assert.NoFileExists(t, filepath.Join(root, "auto_seq_item/apb_seq_item.sv"))
	assert.NotContains(t, res.Trace, PersistingArtifact)
	assert.Equal(t, Done, res.Trace[len(res.Trace)-1])
}

func TestRunTransportError(t *testing.T) {
	client := &fakeClient{err: &backend.TransportError{StatusCode: 403, Body: "denied"}}
	r, root, rec := newRunner(t, client)
	seedABC(t, root)

	res, err := r.Run(context.Background(), abcStage())
	assert.ErrorIs(t, err, backend.ErrTransport)
	assert.Equal(t, Invoking, res.Trace[len(res.Trace)-1])
	assert.NoFileExists(t, filepath.Join(root, "auto_seq_item/answer1.md"))
	require.Len(t, rec.recs, 1)
	assert.NotEmpty(t, rec.recs[0].Error)
}

func TestRunChoosesTemplateByProbe(t *testing.T) {
	st := types.Stage{
		Name: "seq",
		Inputs: []types.Input{
			{Name: "spec", Path: "{paths.spec}"},
			{Name: "monitor", Path: "./auto_monitor/{moduleName}_monitor.sv"},
		},
		Template: types.Template{
			Probe:       "monitor",
			Marker:      "uvm_event",
			WhenPresent: "./auto_seq/prompt_event_seq.txt",
			Otherwise:   "./auto_seq/prompt_seq.txt",
		},
		RawLog: "./auto_seq/answer1.md",
		Output: "./auto_seq/{moduleName}_seq.sv",
	}

	for _, tc := range []struct {
		monitor, want string
	}{
		{"uvm_event ev;", "EVENT"},
		{"plain monitor", "PLAIN"},
	} {
		client := &fakeClient{resp: backend.TextResponse("none")}
		r, root, _ := newRunner(t, client)
		writeFile(t, root, "spec/apb_spec.md", "S|")
		writeFile(t, root, "auto_monitor/apb_monitor.sv", tc.monitor+"|")
		writeFile(t, root, "auto_seq/prompt_event_seq.txt", "EVENT")
		writeFile(t, root, "auto_seq/prompt_seq.txt", "PLAIN")

		res, err := r.Run(context.Background(), st)
		require.NoError(t, err)
		assert.Equal(t, "S|"+tc.monitor+"|"+tc.want, client.prompts[0])
		assert.Contains(t, res.Template, "prompt_")
	}
}

func repairStage() types.Stage {
	return types.Stage{
		Name: "check_test",
		Inputs: []types.Input{
			{Name: "test", Path: "{paths.uvm_testbench}/{moduleName}_test.sv"},
			{Name: "errors", Path: "./fix_component_code/check_errors.txt"},
		},
		Template: types.Template{Path: "./auto_test/prompt_check_test.txt"},
		RawLog:   "./auto_test/answer2.md",
		Output:   "{paths.uvm_testbench}/{moduleName}_test.sv",
		Extract:  types.Extract{AfterMarker: extract.CorrectedCodeMarker},
	}
}

func seedRepair(t *testing.T, root string) {
	writeFile(t, root, "tb_apb/apb_test.sv", "old test")
	writeFile(t, root, "fix_component_code/check_errors.txt", "Error-[SE] syntax")
	writeFile(t, root, "auto_test/prompt_check_test.txt", "fix it")
}

func TestRunRepairOverwritesAfterMarker(t *testing.T) {
	answer := "Analysis:\n```systemverilog\nwrong\n```\n### Corrected Code\n```systemverilog\nfixed\n```"
	client := &fakeClient{resp: backend.TextResponse(answer)}
	r, root, _ := newRunner(t, client)
	seedRepair(t, root)

	res, err := r.Run(context.Background(), repairStage())
	require.NoError(t, err)
	assert.True(t, res.Extracted)
	assert.Equal(t, "\nfixed\n", readFile(t, root, "tb_apb/apb_test.sv"))
	assert.True(t, res.Write.Replaced)
	assert.Equal(t, answer, readFile(t, root, "auto_test/answer2.md"))
}

func TestRunRepairWithoutMarkerLeavesFile(t *testing.T) {
	answer := "Looks fine.\n```systemverilog\nsomething\n```"
	client := &fakeClient{resp: backend.TextResponse(answer)}
	r, root, _ := newRunner(t, client)
	seedRepair(t, root)

	res, err := r.Run(context.Background(), repairStage())
	require.NoError(t, err)
	assert.False(t, res.Extracted)
	assert.Equal(t, "old test", readFile(t, root, "tb_apb/apb_test.sv"))
	assert.Equal(t, answer, readFile(t, root, "auto_test/answer2.md"))
}

func functionStage() types.Stage {
	return types.Stage{
		Name:     "function",
		Inputs:   []types.Input{{Name: "spec", Path: "{paths.spec}"}},
		Template: types.Template{Path: "./auto_function/prompt_function.txt"},
		RawLog:   "./auto_function/answer1.md",
		Output:   "./auto_function/{moduleName}_function.txt",
		Extract:  types.Extract{Mode: types.ExtractRaw},
	}
}

func TestRunRawModeKeepsWholeAnswer(t *testing.T) {
	client := &fakeClient{resp: backend.TextResponse("1. reset clears state\n2. write latches data\n")}
	r, root, _ := newRunner(t, client)
	writeFile(t, root, "spec/apb_spec.md", "spec")
	writeFile(t, root, "auto_function/prompt_function.txt", "describe")

	res, err := r.Run(context.Background(), functionStage())
	require.NoError(t, err)
	assert.True(t, res.Extracted)
	assert.Equal(t, client.resp.Text, readFile(t, root, "auto_function/apb_function.txt"))
}

func TestRunRawResponseIsAnExtractionMiss(t *testing.T) {
	doc := map[string]any{"promptFeedback": map[string]any{"blockReason": "SAFETY"}}
	client := &fakeClient{resp: backend.RawResponse(doc)}
	r, root, rec := newRunner(t, client)
	writeFile(t, root, "spec/apb_spec.md", "spec")
	writeFile(t, root, "auto_function/prompt_function.txt", "describe")

	res, err := r.Run(context.Background(), functionStage())
	require.NoError(t, err)
	assert.False(t, res.Extracted)
	assert.NoFileExists(t, filepath.Join(root, "auto_function/apb_function.txt"))

	var logged map[string]any
	require.NoError(t, json.Unmarshal([]byte(readFile(t, root, "auto_function/answer1.md")), &logged))
	assert.Equal(t, "SAFETY", logged["promptFeedback"].(map[string]any)["blockReason"])
	require.Len(t, rec.recs, 1)
	assert.Equal(t, "raw", rec.recs[0].ResponseKind)
}

func TestRunInputOverride(t *testing.T) {
	client := &fakeClient{resp: backend.TextResponse("x")}
	r, root, _ := newRunner(t, client)
	seedABC(t, root)
	writeFile(t, root, "elsewhere/apb.txt", "Z")
	r.Overrides = map[string]string{
		"function": "./elsewhere/{moduleName}.txt",
		"prompt":   "./spec/apb_spec.md",
	}

	_, err := r.Run(context.Background(), abcStage())
	require.NoError(t, err)
	assert.Equal(t, "AZA", client.prompts[0])
}

func TestRunStageModelOverride(t *testing.T) {
	client := &fakeClient{resp: backend.TextResponse("x")}
	r, root, _ := newRunner(t, client)
	r.Model = "gemini-2.5-flash"
	seedABC(t, root)

	st := abcStage()
	res, err := r.Run(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", client.reqs[0].Model)
	assert.Equal(t, "gemini-2.5-flash", res.Model)

	st.Model = "gemini-2.5-pro"
	_, err = r.Run(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", client.reqs[1].Model)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "persisting_raw_response", PersistingRawResponse.String())
	assert.Equal(t, "state(99)", State(99).String())
}
