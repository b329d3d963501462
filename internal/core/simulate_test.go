package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"deckcore/internal/lpc"
	"deckcore/internal/protocol"
	"deckcore/internal/stepgen"
	"deckcore/pkg/domain"
)

const (
	tiprackURI = "opentrons/opentrons_96_tiprack_300ul/1"
	adapterURI = "opentrons/opentrons_96_flat_bottom_adapter/1"
)

func grid(uri string, tiprack bool) domain.LabwareDefinition {
	def := domain.LabwareDefinition{URI: uri, DisplayName: uri, IsTiprack: tiprack, Wells: map[string]domain.WellDefinition{}}
	if tiprack {
		def.TipVolume = 300
	}
	for col := 1; col <= 2; col++ {
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

func testProtocol(steps ...stepgen.Step) protocol.Protocol {
	inv := domain.NewInvariantContext(
		[]domain.PipetteEntity{
			{ID: "p300", Name: "p300_single_gen2", Spec: domain.PipetteSpec{Name: "p300_single_gen2", Channels: 1, MinVolume: 20, MaxVolume: 300}, TiprackURIs: []string{tiprackURI}},
		},
		[]domain.LabwareEntity{
			{ID: "tips", DefinitionURI: tiprackURI, Definition: grid(tiprackURI, true)},
			{ID: "src", DefinitionURI: plateURI, Definition: grid(plateURI, false)},
			{ID: "cold", DefinitionURI: plateURI, Definition: grid(plateURI, false)},
			{ID: "adapter", DefinitionURI: adapterURI, Definition: grid(adapterURI, false)},
			{ID: "stacked", DefinitionURI: plateURI, Definition: grid(plateURI, false)},
			{ID: "spare", DefinitionURI: plateURI, Definition: grid(plateURI, false)},
		},
		[]domain.ModuleEntity{{ID: "temp", Model: "temperatureModuleV2", Type: domain.ModuleTypeTemperature}},
	)
	initial := domain.MakeInitialRobotState(inv, domain.InitialRobotStateOptions{
		PipetteMounts: map[string]string{"p300": "left"},
		LabwareSlots: map[string]string{
			"tips":    "C1",
			"src":     "D1",
			"cold":    "temp",
			"adapter": "D2",
			"stacked": "adapter",
			"spare":   domain.OffDeck,
		},
		ModuleSlots:  map[string]string{"temp": "D3"},
		WellContents: map[string]map[string]domain.Volumes{"src": {"A1": {"water": 300}}},
	})
	return protocol.Protocol{Name: "test", Steps: steps, Invariant: inv, Initial: initial}
}

func transfer(pipette string) stepgen.Step {
	return stepgen.TransferStep{Args: stepgen.TransferArgs{
		PipetteID:       pipette,
		TiprackIDs:      []string{"tips"},
		SourceLabwareID: "src",
		SourceWells:     []string{"A1"},
		DestLabwareID:   "cold",
		DestWells:       []string{"A1"},
		Volume:          50,
		ChangeTip:       stepgen.ChangeTipAlways,
	}}
}

func TestSimulateReportsFailingStep(t *testing.T) {
	ctx := context.Background()
	metrics := NewExpvarMetricsRecorder("")
	svc, _ := newTestService(WithMetricsRecorder(metrics))
	p := testProtocol(transfer("p300"), transfer("ghost"), stepgen.PauseStep{Args: stepgen.DelayArgs{Seconds: 1}})

	tl, err := svc.Simulate(ctx, p)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if tl.Error == nil || tl.Error.StepIndex != 1 {
		t.Fatalf("expected failure at index 1, got %+v", tl.Error)
	}
	if len(tl.Frames) != 1 {
		t.Fatalf("expected only the first step's frame, got %d", len(tl.Frames))
	}
	snap := metrics.Snapshot()
	if snap.StepsSimulated != 2 {
		t.Fatalf("expected 2 simulated steps, got %d", snap.StepsSimulated)
	}
	if snap.CreationErrors[string(domain.ErrPipetteDoesNotExist)] != 1 {
		t.Fatalf("expected pipette error counted, got %v", snap.CreationErrors)
	}
	if snap.Commands[domain.CommandAspirate] == 0 {
		t.Fatalf("expected aspirate commands counted, got %v", snap.Commands)
	}
	if snap.Results[opSimulate]["success"] != 1 {
		t.Fatalf("expected simulate observed as success, got %v", snap.Results)
	}
}

func TestSimulateContractViolation(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Simulate(context.Background(), testProtocol(nil))
	var cv *stepgen.ContractViolationError
	if !errors.As(err, &cv) {
		t.Fatalf("expected contract violation, got %v", err)
	}
}

func TestLocationSequenceOf(t *testing.T) {
	p := testProtocol()
	area := func(name string) domain.LocationComponent {
		return domain.LocationComponent{Kind: domain.LocationOnAddressableArea, AddressableAreaName: name}
	}
	cases := map[string]struct {
		want LocationSequence
		ok   bool
	}{
		"src":     {want: domain.Sequence(area("D1")), ok: true},
		"cold":    {want: domain.Sequence(domain.LocationComponent{Kind: domain.LocationOnModule, ModuleModel: "temperatureModuleV2"}, area("D3")), ok: true},
		"stacked": {want: domain.Sequence(domain.LocationComponent{Kind: domain.LocationOnLabware, LabwareURI: adapterURI}, area("D2")), ok: true},
		"spare":   {ok: false},
		"missing": {ok: false},
	}
	for id, tc := range cases {
		t.Run(id, func(t *testing.T) {
			got, ok := LocationSequenceOf(p, id)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if ok && !got.Equal(tc.want) {
				t.Fatalf("unexpected sequence %+v", got.Components)
			}
		})
	}
}

func TestPositionCheckRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	p := testProtocol()
	if _, _, err := svc.CreateOffsets(ctx, []LabwareOffset{
		{ID: "prior", DefinitionURI: plateURI, LocationSequence: slot("D1"), Vector: Vector{X: 1}},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ids := []string{"n1", "n2"}
	sess, err := svc.StartPositionCheck(ctx, p, lpc.WithIDGenerator(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if pip, ok := sess.ActivePipette(); !ok || pip != "p300" {
		t.Fatalf("unexpected active pipette %q", pip)
	}
	plate := sess.Labware()[plateURI]
	if len(plate.LocationSpecificOffsets) != 3 {
		t.Fatalf("expected 3 plate locations, got %+v", plate.LocationSpecificOffsets)
	}
	if _, ok := sess.Labware()[adapterURI]; !ok {
		t.Fatalf("expected adapter tracked")
	}

	if err := sess.SetInitialPosition(plateURI, slot("D1"), Vector{X: 10, Y: 10, Z: 10}); err != nil {
		t.Fatalf("initial: %v", err)
	}
	if err := sess.SetFinalPosition(plateURI, slot("D1"), Vector{X: 10.5, Y: 10, Z: 9}); err != nil {
		t.Fatalf("final: %v", err)
	}
	saved, _, err := svc.SavePositionCheck(ctx, sess)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(saved) != 1 || saved[0].ID != "n1" {
		t.Fatalf("unexpected saved offsets %+v", saved)
	}
	if diff := cmp.Diff(Vector{X: 1.5, Y: 0, Z: -1}, saved[0].Vector); diff != "" {
		t.Fatalf("vector mismatch (-want +got):\n%s", diff)
	}

	current, err := svc.CurrentOffsets(ctx, plateURI)
	if err != nil || len(current) != 1 || current[0].ID != "n1" {
		t.Fatalf("expected new offset to shadow prior, got %v %v", current, err)
	}
}

func TestPositionCheckPrefersFirstDeclaredPipetteOnTie(t *testing.T) {
	p := testProtocol()
	p.Invariant = domain.NewInvariantContext(
		[]domain.PipetteEntity{
			{ID: "zeta", Name: "p300_multi_gen2", Spec: domain.PipetteSpec{Name: "p300_multi_gen2", Channels: 8, MaxVolume: 300}},
			{ID: "alpha", Name: "p20_multi_gen2", Spec: domain.PipetteSpec{Name: "p20_multi_gen2", Channels: 8, MaxVolume: 20}},
		},
		[]domain.LabwareEntity{{ID: "src", DefinitionURI: plateURI, Definition: grid(plateURI, false)}},
		nil,
	)
	p.Initial = domain.MakeInitialRobotState(p.Invariant, domain.InitialRobotStateOptions{
		PipetteMounts: map[string]string{"zeta": "left", "alpha": "right"},
		LabwareSlots:  map[string]string{"src": "D1"},
	})
	svc, _ := newTestService()
	sess, err := svc.StartPositionCheck(context.Background(), p)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if pip, ok := sess.ActivePipette(); !ok || pip != "zeta" {
		t.Fatalf("expected first declared pipette zeta, got %q", pip)
	}
}
