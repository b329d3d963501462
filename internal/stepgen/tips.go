package stepgen

import (
	"deckcore/pkg/domain"
)

// NextTip returns the first tiprack well the pipette can pick up from. Racks
// are searched in the given order; when none are given every on-deck rack
// compatible with the pipette is searched in id order. Wells are searched
// column by column. Multi-channel pipettes need a full column (8) or a full
// rack (96).
func NextTip(inv *domain.InvariantContext, state domain.RobotState, pipetteID string, tiprackIDs []string) (labwareID, well string, ok bool) {
	pipette, found := inv.Pipette(pipetteID)
	if !found {
		return "", "", false
	}
	racks := tiprackIDs
	if len(racks) == 0 {
		racks = compatibleTipracks(inv, pipette)
	}
	for _, rackID := range racks {
		lw, found := inv.Labware(rackID)
		if !found || !lw.Definition.IsTiprack {
			continue
		}
		if loc, onDeck := state.Labware[rackID]; !onDeck || loc.Slot == domain.OffDeck {
			continue
		}
		tips := state.Tips.Tipracks[rackID]
		if w, found := firstPickableWell(lw.Definition, tips, pipette.Spec.Channels); found {
			return rackID, w, true
		}
	}
	return "", "", false
}

func compatibleTipracks(inv *domain.InvariantContext, pipette domain.PipetteEntity) []string {
	var out []string
	for _, id := range inv.LabwareIDs() {
		lw, _ := inv.Labware(id)
		if !lw.Definition.IsTiprack {
			continue
		}
		if len(pipette.TiprackURIs) == 0 {
			out = append(out, id)
			continue
		}
		for _, uri := range pipette.TiprackURIs {
			if uri == lw.DefinitionURI {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

func firstPickableWell(def domain.LabwareDefinition, tips map[string]bool, channels int) (string, bool) {
	allPresent := func(wells []string) bool {
		for _, w := range wells {
			if !tips[w] {
				return false
			}
		}
		return len(wells) > 0
	}
	switch {
	case channels == 96:
		all := def.AllWells()
		if len(all) == 96 && allPresent(all) {
			return all[0], true
		}
		return "", false
	case channels == 8:
		for _, column := range def.Ordering {
			if len(column) == 8 && allPresent(column) {
				return column[0], true
			}
		}
		return "", false
	default:
		for _, w := range def.AllWells() {
			if tips[w] {
				return w, true
			}
		}
		return "", false
	}
}

// pickUpNextTip resolves the next tip against the state it runs with.
func pickUpNextTip(pipetteID string, tiprackIDs []string) CurriedCommandCreator {
	return func(inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
		if _, errs := requirePipette(inv, state, pipetteID); errs != nil {
			return domain.Failure(errs...)
		}
		rack, well, ok := NextTip(inv, state, pipetteID, tiprackIDs)
		if !ok {
			return domain.Failure(domain.InsufficientTips())
		}
		return PickUpTip(TipArgs{PipetteID: pipetteID, LabwareID: rack, WellName: well}, inv, state)
	}
}

// replaceTip drops any attached tip, then picks up a fresh one.
func replaceTip(pipetteID string, tiprackIDs []string, dropLabwareID string) CurriedCommandCreator {
	return func(inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
		var creators []CurriedCommandCreator
		if state.Tips.Pipettes[pipetteID] {
			creators = append(creators, Curry(DropTip, TipArgs{PipetteID: pipetteID, LabwareID: dropLabwareID}))
		}
		creators = append(creators, pickUpNextTip(pipetteID, tiprackIDs))
		return ReduceCommandCreators(creators, inv, state)
	}
}

// dropTipIfAttached drops the tip only when one is attached.
func dropTipIfAttached(pipetteID, dropLabwareID string) CurriedCommandCreator {
	return func(inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
		if !state.Tips.Pipettes[pipetteID] {
			return domain.Success()
		}
		return DropTip(TipArgs{PipetteID: pipetteID, LabwareID: dropLabwareID}, inv, state)
	}
}
