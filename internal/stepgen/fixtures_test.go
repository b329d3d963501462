package stepgen

import (
	"fmt"
	"testing"

	"deckcore/pkg/domain"
)

const (
	tiprackURI = "opentrons/opentrons_96_tiprack_300ul/1"
	plateURI   = "opentrons/corning_96_wellplate_360ul_flat/2"
	troughURI  = "nest/nest_1_reservoir_195ml/1"
)

func grid96(uri string, tiprack bool) domain.LabwareDefinition {
	def := domain.LabwareDefinition{URI: uri, IsTiprack: tiprack, Wells: map[string]domain.WellDefinition{}}
	if tiprack {
		def.TipVolume = 300
	}
	for col := 1; col <= 12; col++ {
		var column []string
		for _, row := range "ABCDEFGH" {
			name := fmt.Sprintf("%c%d", row, col)
			column = append(column, name)
			def.Wells[name] = domain.WellDefinition{TotalLiquidVolume: 360}
		}
		def.Ordering = append(def.Ordering, column)
	}
	return def
}

type fixture struct {
	inv   *domain.InvariantContext
	state domain.RobotState
}

// newFixture builds a deck with a single-channel and an 8-channel pipette, a
// tiprack, a source plate holding water, a destination plate, a reservoir and
// one of each module.
func newFixture(t *testing.T) fixture {
	t.Helper()
	trough := domain.LabwareDefinition{
		URI:      troughURI,
		Ordering: [][]string{{"A1"}},
		Wells:    map[string]domain.WellDefinition{"A1": {TotalLiquidVolume: 195000}},
	}
	inv := domain.NewInvariantContext(
		[]domain.PipetteEntity{
			{ID: "p300", Name: "p300_single_gen2", Spec: domain.PipetteSpec{Name: "p300_single_gen2", Channels: 1, MinVolume: 20, MaxVolume: 300}, TiprackURIs: []string{tiprackURI}},
			{ID: "m300", Name: "p300_multi_gen2", Spec: domain.PipetteSpec{Name: "p300_multi_gen2", Channels: 8, MinVolume: 20, MaxVolume: 300}, TiprackURIs: []string{tiprackURI}},
		},
		[]domain.LabwareEntity{
			{ID: "tiprack", DefinitionURI: tiprackURI, Definition: grid96(tiprackURI, true)},
			{ID: "source", DefinitionURI: plateURI, Definition: grid96(plateURI, false)},
			{ID: "dest", DefinitionURI: plateURI, Definition: grid96(plateURI, false)},
			{ID: "trough", DefinitionURI: troughURI, Definition: trough},
			{ID: "tcPlate", DefinitionURI: plateURI, Definition: grid96(plateURI, false)},
		},
		[]domain.ModuleEntity{
			{ID: "temp", Model: "temperatureModuleV2", Type: domain.ModuleTypeTemperature},
			{ID: "mag", Model: "magneticModuleV2", Type: domain.ModuleTypeMagnetic},
			{ID: "tc", Model: "thermocyclerModuleV1", Type: domain.ModuleTypeThermocycler},
			{ID: "hs", Model: "heaterShakerModuleV1", Type: domain.ModuleTypeHeaterShaker},
		},
	)
	state := domain.MakeInitialRobotState(inv, domain.InitialRobotStateOptions{
		PipetteMounts: map[string]string{"p300": "left", "m300": "right"},
		LabwareSlots: map[string]string{
			"tiprack": "1",
			"source":  "2",
			"dest":    "3",
			"trough":  "5",
			"tcPlate": "tc",
		},
		ModuleSlots: map[string]string{"temp": "4", "mag": "6", "tc": "7", "hs": "9"},
		WellContents: map[string]map[string]domain.Volumes{
			"source": {
				"A1": {"water": 200},
				"B1": {"water": 100, "dye": 100},
			},
			"trough": {"A1": {"buffer": 10000}},
		},
	})
	return fixture{inv: inv, state: state}
}

// withTip returns a state in which pipetteID holds a fresh tip.
func (f fixture) withTip(t *testing.T, pipetteID string) domain.RobotState {
	t.Helper()
	res := PickUpTip(TipArgs{PipetteID: pipetteID, LabwareID: "tiprack", WellName: "A1"}, f.inv, f.state)
	if res.Failed() {
		t.Fatalf("pick up tip: %s", res.ErrorSummary())
	}
	next, err := AdvanceAll(res.Commands, f.inv, f.state)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	return next
}

func errorTypes(res domain.CommandCreationResult) []domain.ErrorType {
	out := make([]domain.ErrorType, 0, len(res.Errors))
	for _, e := range res.Errors {
		out = append(out, e.Type)
	}
	return out
}

func commandTypes(cmds []domain.Command) []string {
	out := make([]string, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.CommandType())
	}
	return out
}
