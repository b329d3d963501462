package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"deckcore/internal/core"
	"deckcore/pkg/domain"
)

const (
	tiprackURI = "opentrons/opentrons_96_tiprack_300ul/1"
	plateURI   = "opentrons/corning_96_wellplate_360ul_flat/2"
)

func definition(uri string, tiprack bool) domain.LabwareDefinition {
	def := domain.LabwareDefinition{URI: uri, DisplayName: uri, IsTiprack: tiprack, Wells: map[string]domain.WellDefinition{}}
	if tiprack {
		def.TipVolume = 300
	}
	for col := 1; col <= 3; col++ {
		var column []string
		for _, row := range "AB" {
			name := fmt.Sprintf("%c%d", row, col)
			column = append(column, name)
			def.Wells[name] = domain.WellDefinition{TotalLiquidVolume: 360}
		}
		def.Ordering = append(def.Ordering, column)
	}
	return def
}

func protocolYAML(secondPipette string) string {
	return `metadata:
  name: cli
pipettes:
  - id: p300
    name: p300_single_gen2
    mount: left
labware:
  - id: tips
    uri: ` + tiprackURI + `
    location: "1"
  - id: plate
    uri: ` + plateURI + `
    location: "2"
liquids:
  - labware: plate
    wells: [A1]
    liquid: buffer
    volume: 300
steps:
  - type: mix
    pipette: p300
    tipracks: [tips]
    labware: plate
    wells: [A1]
    volume: 100
    times: 2
  - type: moveLiquid
    pipette: ` + secondPipette + `
    tipracks: [tips]
    source: {labware: plate, wells: [A1]}
    dest: {labware: plate, wells: [B1]}
    volume: 50
`
}

type env struct {
	dir string
}

func setupEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DECKCORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("DECKCORE_SQLITE_PATH", filepath.Join(dir, "offsets.db"))
	t.Setenv("DECKCORE_BLOB_DRIVER", "fs")
	t.Setenv("DECKCORE_BLOB_FS_ROOT", filepath.Join(dir, "definitions"))
	t.Setenv("DECKCORE_LOG_LEVEL", "error")
	t.Setenv("DECKCORE_METRICS_ENABLED", "false")
	t.Setenv("DECKCORE_TRACE_FILE", "")
	return env{dir: dir}
}

func (e env) write(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func seedDefinitions(t *testing.T, e env) {
	t.Helper()
	for i, def := range []domain.LabwareDefinition{definition(tiprackURI, true), definition(plateURI, false)} {
		data, err := json.Marshal(def)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		path := e.write(t, fmt.Sprintf("def%d.json", i), data)
		if out, _, err := run(t, "labware", "put", path); err != nil || strings.TrimSpace(out) != def.URI {
			t.Fatalf("labware put: %q %v", out, err)
		}
	}
}

func TestLabwareCommands(t *testing.T) {
	e := setupEnv(t)
	seedDefinitions(t, e)
	out, _, err := run(t, "labware", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if out != tiprackURI+"\n"+plateURI+"\n" && out != plateURI+"\n"+tiprackURI+"\n" {
		t.Fatalf("unexpected listing %q", out)
	}
	path := filepath.Join(e.dir, "def0.json")
	if _, _, err := run(t, "labware", "put", path); err == nil {
		t.Fatalf("expected existing definition to be refused")
	}
	if _, _, err := run(t, "labware", "put", "--overwrite", path); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}

func TestSimulateCommand(t *testing.T) {
	e := setupEnv(t)
	seedDefinitions(t, e)
	path := e.write(t, "ok.yaml", []byte(protocolYAML("p300")))

	out, _, err := run(t, "simulate", path)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	var got simulationOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if got.Protocol != "cli" || len(got.Steps) != 2 || got.Error != nil {
		t.Fatalf("unexpected output %+v", got)
	}
	for _, raw := range got.Steps[0].Commands {
		if _, err := domain.UnmarshalCommand(raw); err != nil {
			t.Fatalf("command does not decode: %v", err)
		}
	}
}

func TestTraceFileReceivesSpans(t *testing.T) {
	e := setupEnv(t)
	seedDefinitions(t, e)
	trace := filepath.Join(e.dir, "trace.jsonl")
	t.Setenv("DECKCORE_TRACE_FILE", trace)
	path := e.write(t, "ok.yaml", []byte(protocolYAML("p300")))
	if _, _, err := run(t, "simulate", path); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if _, _, err := run(t, "offsets", "list"); err != nil {
		t.Fatalf("offsets list: %v", err)
	}

	data, err := os.ReadFile(trace)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	var ops []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var entry core.JSONTraceEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode span %q: %v", line, err)
		}
		ops = append(ops, entry.Operation)
	}
	if len(ops) != 2 || ops[0] != "simulate" || ops[1] != "list_offsets" {
		t.Fatalf("unexpected spans %v", ops)
	}
}

func TestSimulateCommandReportsStepError(t *testing.T) {
	e := setupEnv(t)
	t.Setenv("DECKCORE_METRICS_ENABLED", "true")
	seedDefinitions(t, e)
	path := e.write(t, "bad.yaml", []byte(protocolYAML("ghost")))

	out, stderr, err := run(t, "simulate", path)
	if !errors.Is(err, errStepFailed) {
		t.Fatalf("expected step failure, got %v", err)
	}
	var got simulationOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got.Error == nil || got.Error.StepNumber != 2 || len(got.Steps) != 1 {
		t.Fatalf("unexpected output %+v", got)
	}
	if got.Error.Errors[0].Type != domain.ErrPipetteDoesNotExist {
		t.Fatalf("unexpected error type %v", got.Error.Errors)
	}
	if !strings.Contains(stderr, "deckcore_simulated_steps_total 2") {
		t.Fatalf("expected metrics dump, got %q", stderr)
	}

	if _, _, err := run(t, "simulate", filepath.Join(e.dir, "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestOffsetCommands(t *testing.T) {
	e := setupEnv(t)
	offsets := `[
  {"id": "old", "createdAt": "2024-01-01T00:00:00Z", "definitionUri": "` + plateURI + `",
   "locationSequence": [{"kind": "onAddressableArea", "addressableAreaName": "D1"}], "vector": {"x": 1, "y": 0, "z": 0}},
  {"id": "new", "createdAt": "2024-02-01T00:00:00Z", "definitionUri": "` + plateURI + `",
   "locationSequence": [{"kind": "onAddressableArea", "addressableAreaName": "D1"}], "vector": {"x": 2, "y": 0, "z": 0}},
  {"id": "tips", "createdAt": "2024-03-01T00:00:00Z", "definitionUri": "` + tiprackURI + `",
   "locationSequence": "anyLocation", "vector": {"x": 0, "y": 0, "z": 9}}
]`
	path := e.write(t, "offsets.json", []byte(offsets))
	_, stderr, err := run(t, "offsets", "import", path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(stderr, "offset_vector_bounds") {
		t.Fatalf("expected bounds warning, got %q", stderr)
	}

	decode := func(out string) []core.LabwareOffset {
		t.Helper()
		var got []core.LabwareOffset
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("decode: %v\n%s", err, out)
		}
		return got
	}

	out, _, err := run(t, "offsets", "list", "--uri", plateURI)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := decode(out); len(got) != 2 || got[0].ID != "old" {
		t.Fatalf("unexpected list %+v", got)
	}

	out, _, err = run(t, "offsets", "current")
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if got := decode(out); len(got) != 2 || got[0].ID != "tips" || got[1].ID != "new" {
		t.Fatalf("unexpected current %+v", got)
	}

	if _, _, err := run(t, "offsets", "delete", "tips"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	out, _, err = run(t, "offsets", "current", "--uri", tiprackURI)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("expected empty result, got %q", out)
	}

	bad := e.write(t, "bad.json", []byte(`[{"id": "x", "definitionUri": "nope", "locationSequence": "anyLocation"}]`))
	_, stderr, err = run(t, "offsets", "import", bad)
	var rv core.RuleViolationError
	if !errors.As(err, &rv) || !strings.Contains(stderr, "offset_definition_uri") {
		t.Fatalf("expected blocked import, got %v %q", err, stderr)
	}
}
