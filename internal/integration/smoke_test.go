package integration

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"deckcore/internal/blob"
	"deckcore/internal/catalog"
	"deckcore/internal/core"
	"deckcore/internal/protocol"
	"deckcore/pkg/domain"
)

const (
	tiprackURI = "opentrons/opentrons_96_tiprack_300ul/1"
	plateURI   = "opentrons/corning_96_wellplate_360ul_flat/2"
)

const smokeProtocol = `
metadata:
  name: smoke
pipettes:
  - id: left
    name: p300_single_gen2
    mount: left
labware:
  - id: tips
    uri: opentrons/opentrons_96_tiprack_300ul/1
    location: "1"
  - id: plate
    uri: opentrons/corning_96_wellplate_360ul_flat/2
    location: mag
modules:
  - id: mag
    model: magneticModuleV2
    location: "3"
liquids:
  - labware: plate
    wells: [A1, B1]
    liquid: sample
    volume: 150
steps:
  - type: magnet
    module: mag
    engage: true
    height: 6
  - type: moveLiquid
    pipette: left
    tipracks: [tips]
    source: {labware: plate, wells: [A1, B1]}
    dest: {labware: plate, wells: [A2, B2]}
    volume: 100
    changeTip: perSource
  - type: magnet
    module: mag
`

func definition(uri string, tiprack bool) domain.LabwareDefinition {
	def := domain.LabwareDefinition{URI: uri, DisplayName: uri, IsTiprack: tiprack, Wells: map[string]domain.WellDefinition{}}
	if tiprack {
		def.TipVolume = 300
	}
	for col := 1; col <= 4; col++ {
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

// TestIntegrationSmoke runs the full flow for each in-process backend pair:
// seed definitions, load and simulate a protocol, run a position check and
// persist its offsets.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	storeVariants := []struct {
		name string
		cfg  func(t *testing.T) core.StorageConfig
	}{
		{name: "memory-store", cfg: func(*testing.T) core.StorageConfig {
			return core.StorageConfig{Driver: core.StorageMemory}
		}},
		{name: "sqlite-store", cfg: func(t *testing.T) core.StorageConfig {
			return core.StorageConfig{Driver: core.StorageSQLite, SQLitePath: filepath.Join(t.TempDir(), "offsets.db")}
		}},
	}
	blobVariants := []struct {
		name string
		cfg  func(t *testing.T) blob.Config
	}{
		{name: "memory-blob", cfg: func(*testing.T) blob.Config { return blob.Config{Driver: blob.DriverMemory} }},
		{name: "filesystem-blob", cfg: func(t *testing.T) blob.Config {
			return blob.Config{Driver: blob.DriverFilesystem, FSRoot: t.TempDir()}
		}},
	}

	for _, sv := range storeVariants {
		for _, bv := range blobVariants {
			t.Run(sv.name+"/"+bv.name, func(t *testing.T) {
				bs, err := blob.Open(ctx, bv.cfg(t))
				if err != nil {
					t.Fatalf("open blob store: %v", err)
				}
				cat := catalog.New(bs)
				for _, def := range []domain.LabwareDefinition{definition(tiprackURI, true), definition(plateURI, false)} {
					if err := cat.PutLabware(ctx, def, false); err != nil {
						t.Fatalf("put labware: %v", err)
					}
				}

				store, err := core.OpenPersistentStore(ctx, sv.cfg(t), core.NewDefaultRulesEngine(0))
				if err != nil {
					t.Fatalf("open store: %v", err)
				}
				defer func() { _ = core.CloseStore(store) }()

				metrics := core.NewExpvarMetricsRecorder("")
				var traces bytes.Buffer
				tracer := core.NewJSONTracer(&traces)
				svc := core.NewService(store, core.WithMetricsRecorder(metrics), core.WithTracer(tracer))

				doc, err := protocol.Parse(strings.NewReader(smokeProtocol))
				if err != nil {
					t.Fatalf("parse: %v", err)
				}
				p, err := protocol.Load(ctx, doc, cat)
				if err != nil {
					t.Fatalf("load: %v", err)
				}
				tl, err := svc.Simulate(ctx, p)
				if err != nil {
					t.Fatalf("simulate: %v", err)
				}
				if tl.Error != nil {
					t.Fatalf("unexpected step error: %v", tl.Error)
				}
				final := tl.FinalState(p.Initial)
				if got := final.WellVolumes("plate", "B2")["sample"]; got != 100 {
					t.Fatalf("expected 100uL in B2, got %v", got)
				}
				if mag, ok := final.Modules["mag"].State.(domain.MagneticModuleState); !ok || mag.Engaged {
					t.Fatalf("expected magnet disengaged at end, got %+v", final.Modules["mag"].State)
				}

				sess, err := svc.StartPositionCheck(ctx, p)
				if err != nil {
					t.Fatalf("start position check: %v", err)
				}
				loc, ok := core.LocationSequenceOf(p, "plate")
				if !ok {
					t.Fatalf("expected plate location")
				}
				if err := sess.SetInitialPosition(plateURI, loc, domain.Vector{X: 1, Y: 1, Z: 1}); err != nil {
					t.Fatalf("initial position: %v", err)
				}
				if err := sess.SetFinalPosition(plateURI, loc, domain.Vector{X: 1.2, Y: 0.9, Z: 1}); err != nil {
					t.Fatalf("final position: %v", err)
				}
				saved, res, err := svc.SavePositionCheck(ctx, sess)
				if err != nil || res.HasBlocking() || len(saved) != 1 {
					t.Fatalf("save: %v %+v %+v", err, res, saved)
				}

				current, err := svc.CurrentOffsets(ctx, plateURI)
				if err != nil || len(current) != 1 || current[0].ID != saved[0].ID {
					t.Fatalf("expected saved offset current, got %+v %v", current, err)
				}

				snap := metrics.Snapshot()
				if snap.Results["simulate"]["success"] != 1 || snap.StepsSimulated != 3 {
					t.Fatalf("unexpected metrics %+v", snap)
				}
				if traces.Len() == 0 {
					t.Fatalf("expected trace exporter to emit spans")
				}
			})
		}
	}
}
