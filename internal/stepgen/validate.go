package stepgen

import (
	"math"
	"regexp"

	"deckcore/pkg/domain"
)

var deckSlotPattern = regexp.MustCompile(`^(?:[1-9]|1[0-2]|[A-D][1-4])$`)

func isDeckSlot(location string) bool {
	return deckSlotPattern.MatchString(location)
}

func requirePipette(inv *domain.InvariantContext, state domain.RobotState, pipetteID string) (domain.PipetteEntity, []domain.CommandCreationError) {
	p, ok := inv.Pipette(pipetteID)
	if !ok {
		return domain.PipetteEntity{}, []domain.CommandCreationError{domain.PipetteDoesNotExist(pipetteID)}
	}
	if _, ok := state.Pipettes[pipetteID]; !ok {
		return domain.PipetteEntity{}, []domain.CommandCreationError{domain.PipetteDoesNotExist(pipetteID)}
	}
	return p, nil
}

func requireModule(inv *domain.InvariantContext, state domain.RobotState, moduleID string, want domain.ModuleType) []domain.CommandCreationError {
	m, ok := inv.Module(moduleID)
	if !ok {
		return []domain.CommandCreationError{domain.ModuleDoesNotExist(moduleID)}
	}
	if _, ok := state.Modules[moduleID]; !ok {
		return []domain.CommandCreationError{domain.ModuleDoesNotExist(moduleID)}
	}
	if m.Type != want {
		return []domain.CommandCreationError{domain.MismatchedModuleType(moduleID, want)}
	}
	return nil
}

// closedThermocyclerUnder reports the id of a closed thermocycler holding the labware.
func closedThermocyclerUnder(state domain.RobotState, labwareID string) (string, bool) {
	loc, ok := state.Labware[labwareID]
	if !ok {
		return "", false
	}
	mod, ok := state.Modules[loc.Slot]
	if !ok {
		return "", false
	}
	tc, ok := mod.State.(domain.ThermocyclerModuleState)
	if !ok || tc.LidOpen {
		return "", false
	}
	return loc.Slot, true
}

// requireWellAccess validates that the pipette can reach well on labware and
// returns the per-channel wells it would touch.
func requireWellAccess(inv *domain.InvariantContext, state domain.RobotState, pipette domain.PipetteEntity, labwareID, well string) ([]string, []domain.CommandCreationError) {
	lw, ok := inv.Labware(labwareID)
	if !ok {
		return nil, []domain.CommandCreationError{domain.LabwareDoesNotExist(labwareID)}
	}
	loc, ok := state.Labware[labwareID]
	if !ok {
		return nil, []domain.CommandCreationError{domain.LabwareDoesNotExist(labwareID)}
	}
	if loc.Slot == domain.OffDeck {
		return nil, []domain.CommandCreationError{domain.LabwareOffDeck(labwareID)}
	}
	if tcID, closed := closedThermocyclerUnder(state, labwareID); closed {
		return nil, []domain.CommandCreationError{domain.ThermocyclerLidClosed(tcID)}
	}
	wells := wellsForChannels(lw.Definition, well, pipette.Spec.Channels)
	if wells == nil {
		return nil, []domain.CommandCreationError{domain.WellDoesNotExist(labwareID, well)}
	}
	return wells, nil
}

// tipCapacity is the volume a single tip of the pipette can hold.
func tipCapacity(inv *domain.InvariantContext, pipette domain.PipetteEntity) float64 {
	capacity := pipette.Spec.MaxVolume
	for _, id := range inv.LabwareIDs() {
		lw, _ := inv.Labware(id)
		if !lw.Definition.IsTiprack || lw.Definition.TipVolume <= 0 {
			continue
		}
		for _, uri := range pipette.TiprackURIs {
			if uri == lw.DefinitionURI {
				return math.Min(capacity, lw.Definition.TipVolume)
			}
		}
	}
	return capacity
}

// channelVolume is the liquid held by the pipette's primary channel.
func channelVolume(state domain.RobotState, pipetteID string) float64 {
	return state.ChannelVolumes(pipetteID, 0).Total()
}
