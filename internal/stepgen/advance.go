package stepgen

import (
	"fmt"

	"deckcore/pkg/domain"
)

// ContractViolationError signals that a command reached the simulator
// without a matching state-advance handler. It indicates a programming error,
// not an invalid protocol.
type ContractViolationError struct {
	CommandType string
	Reason      string
}

func (e *ContractViolationError) Error() string {
	if e.CommandType == "" {
		return fmt.Sprintf("state advance contract violation: %s", e.Reason)
	}
	return fmt.Sprintf("state advance contract violation for %s: %s", e.CommandType, e.Reason)
}

// AdvanceState returns the state produced by applying cmd to prev. prev is
// not modified.
func AdvanceState(cmd domain.Command, inv *domain.InvariantContext, prev domain.RobotState) (domain.RobotState, error) {
	if cmd == nil {
		return prev, &ContractViolationError{Reason: "nil command"}
	}
	adv := &stateAdvancer{inv: inv, state: prev.Clone()}
	cmd.Accept(adv)
	return adv.state, nil
}

// AdvanceAll applies cmds in order.
func AdvanceAll(cmds []domain.Command, inv *domain.InvariantContext, prev domain.RobotState) (domain.RobotState, error) {
	if len(cmds) == 0 {
		return prev, nil
	}
	for i, cmd := range cmds {
		if cmd == nil {
			return prev, &ContractViolationError{Reason: fmt.Sprintf("nil command at position %d", i)}
		}
	}
	adv := &stateAdvancer{inv: inv, state: prev.Clone()}
	for _, cmd := range cmds {
		cmd.Accept(adv)
	}
	return adv.state, nil
}

// stateAdvancer mutates its private clone in place; it is never shared.
type stateAdvancer struct {
	inv   *domain.InvariantContext
	state domain.RobotState
}

var _ domain.CommandVisitor = (*stateAdvancer)(nil)

func (a *stateAdvancer) channels(pipetteID string) int {
	if p, ok := a.inv.Pipette(pipetteID); ok && p.Spec.Channels > 0 {
		return p.Spec.Channels
	}
	return 1
}

func (a *stateAdvancer) targetWells(t domain.WellTarget) []string {
	lw, ok := a.inv.Labware(t.LabwareID)
	if !ok {
		return []string{t.WellName}
	}
	wells := wellsForChannels(lw.Definition, t.WellName, a.channels(t.PipetteID))
	if wells == nil {
		return []string{t.WellName}
	}
	return wells
}

func (a *stateAdvancer) wellMap(labwareID string) map[string]domain.Volumes {
	wells, ok := a.state.Liquids.Labware[labwareID]
	if !ok {
		wells = make(map[string]domain.Volumes)
		a.state.Liquids.Labware[labwareID] = wells
	}
	return wells
}

func (a *stateAdvancer) channelMap(pipetteID string) map[int]domain.Volumes {
	channels, ok := a.state.Liquids.Pipettes[pipetteID]
	if !ok {
		channels = make(map[int]domain.Volumes)
		a.state.Liquids.Pipettes[pipetteID] = channels
	}
	return channels
}

func (a *stateAdvancer) VisitPickUpTip(c domain.PickUpTip) {
	if rack, ok := a.state.Tips.Tipracks[c.LabwareID]; ok {
		for _, w := range a.targetWells(c.WellTarget) {
			rack[w] = false
		}
	}
	a.state.Tips.Pipettes[c.PipetteID] = true
	a.state.Liquids.Pipettes[c.PipetteID] = make(map[int]domain.Volumes)
}

func (a *stateAdvancer) VisitDropTip(c domain.DropTip) {
	a.state.Tips.Pipettes[c.PipetteID] = false
	delete(a.state.Liquids.Pipettes, c.PipetteID)
}

func (a *stateAdvancer) VisitAspirate(c domain.Aspirate) {
	wells := a.wellMap(c.LabwareID)
	channels := a.channelMap(c.PipetteID)
	for ch, w := range a.targetWells(c.WellTarget) {
		taken, rest := splitVolumes(wells[w], c.Volume)
		if shortfall := c.Volume - taken.Total(); shortfall > volumeEpsilon {
			taken[UnknownLiquid] += shortfall
		}
		wells[w] = rest
		channels[ch] = mergeVolumes(channels[ch], taken)
	}
}

func (a *stateAdvancer) VisitDispense(c domain.Dispense) {
	wells := a.wellMap(c.LabwareID)
	channels := a.channelMap(c.PipetteID)
	for ch, w := range a.targetWells(c.WellTarget) {
		taken, rest := splitVolumes(channels[ch], c.Volume)
		channels[ch] = rest
		wells[w] = mergeVolumes(wells[w], taken)
	}
}

func (a *stateAdvancer) VisitBlowout(c domain.Blowout) {
	wells := a.wellMap(c.LabwareID)
	channels := a.channelMap(c.PipetteID)
	for ch, w := range a.targetWells(c.WellTarget) {
		wells[w] = mergeVolumes(wells[w], channels[ch])
		channels[ch] = domain.Volumes{}
	}
}

func (a *stateAdvancer) VisitTouchTip(domain.TouchTip)               {}
func (a *stateAdvancer) VisitMoveToWell(domain.MoveToWell)           {}
func (a *stateAdvancer) VisitWaitForDuration(domain.WaitForDuration) {}

func (a *stateAdvancer) VisitMoveLabware(c domain.MoveLabware) {
	a.state.Labware[c.LabwareID] = domain.LabwareLocation{Slot: c.NewLocation}
}

func (a *stateAdvancer) setModuleState(moduleID string, s domain.ModuleState) {
	loc := a.state.Modules[moduleID]
	loc.State = s
	a.state.Modules[moduleID] = loc
}

func (a *stateAdvancer) thermocycler(moduleID string) domain.ThermocyclerModuleState {
	if s, ok := a.state.Modules[moduleID].State.(domain.ThermocyclerModuleState); ok {
		return s
	}
	return domain.InitialModuleState(domain.ModuleTypeThermocycler).(domain.ThermocyclerModuleState)
}

func (a *stateAdvancer) heaterShaker(moduleID string) domain.HeaterShakerModuleState {
	if s, ok := a.state.Modules[moduleID].State.(domain.HeaterShakerModuleState); ok {
		return s
	}
	return domain.InitialModuleState(domain.ModuleTypeHeaterShaker).(domain.HeaterShakerModuleState)
}

func (a *stateAdvancer) VisitTemperatureSetTarget(c domain.TemperatureSetTarget) {
	a.setModuleState(c.ModuleID, domain.TemperatureModuleState{Status: domain.TemperatureApproaching, TargetTemperature: c.Celsius})
}

func (a *stateAdvancer) VisitTemperatureDeactivate(c domain.TemperatureDeactivate) {
	a.setModuleState(c.ModuleID, domain.TemperatureModuleState{Status: domain.TemperatureDeactivated})
}

func (a *stateAdvancer) VisitMagneticEngage(c domain.MagneticEngage) {
	a.setModuleState(c.ModuleID, domain.MagneticModuleState{Engaged: true, EngageHeight: c.Height})
}

func (a *stateAdvancer) VisitMagneticDisengage(c domain.MagneticDisengage) {
	a.setModuleState(c.ModuleID, domain.MagneticModuleState{})
}

func (a *stateAdvancer) VisitThermocyclerOpenLid(c domain.ThermocyclerOpenLid) {
	s := a.thermocycler(c.ModuleID)
	s.LidOpen = true
	a.setModuleState(c.ModuleID, s)
}

func (a *stateAdvancer) VisitThermocyclerCloseLid(c domain.ThermocyclerCloseLid) {
	s := a.thermocycler(c.ModuleID)
	s.LidOpen = false
	a.setModuleState(c.ModuleID, s)
}

func (a *stateAdvancer) VisitThermocyclerSetBlockTemperature(c domain.ThermocyclerSetBlockTemperature) {
	s := a.thermocycler(c.ModuleID)
	s.BlockStatus = domain.TemperatureApproaching
	s.BlockTarget = c.Celsius
	a.setModuleState(c.ModuleID, s)
}

func (a *stateAdvancer) VisitThermocyclerSetLidTemperature(c domain.ThermocyclerSetLidTemperature) {
	s := a.thermocycler(c.ModuleID)
	s.LidStatus = domain.TemperatureApproaching
	s.LidTarget = c.Celsius
	a.setModuleState(c.ModuleID, s)
}

func (a *stateAdvancer) VisitHeaterShakerSetTemperature(c domain.HeaterShakerSetTemperature) {
	s := a.heaterShaker(c.ModuleID)
	s.Status = domain.TemperatureApproaching
	s.TargetTemp = c.Celsius
	a.setModuleState(c.ModuleID, s)
}

func (a *stateAdvancer) VisitHeaterShakerSetShakeSpeed(c domain.HeaterShakerSetShakeSpeed) {
	s := a.heaterShaker(c.ModuleID)
	s.TargetSpeed = c.RPM
	a.setModuleState(c.ModuleID, s)
}

func (a *stateAdvancer) VisitHeaterShakerOpenLatch(c domain.HeaterShakerOpenLatch) {
	s := a.heaterShaker(c.ModuleID)
	s.LatchOpen = true
	a.setModuleState(c.ModuleID, s)
}

func (a *stateAdvancer) VisitHeaterShakerCloseLatch(c domain.HeaterShakerCloseLatch) {
	s := a.heaterShaker(c.ModuleID)
	s.LatchOpen = false
	a.setModuleState(c.ModuleID, s)
}
