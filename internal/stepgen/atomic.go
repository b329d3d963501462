package stepgen

import (
	"fmt"

	"deckcore/pkg/domain"
)

// DefaultTrashID is the labware id used for tip disposal when none is given.
const DefaultTrashID = "fixedTrash"

// TipArgs addresses a tip operation.
type TipArgs struct {
	PipetteID string
	LabwareID string
	WellName  string
}

// PipettingArgs addresses a liquid handling operation.
type PipettingArgs struct {
	PipetteID string
	LabwareID string
	WellName  string
	Volume    float64
	FlowRate  float64
}

// PickUpTip attaches the tip at LabwareID/WellName.
func PickUpTip(args TipArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	pipette, errs := requirePipette(inv, state, args.PipetteID)
	if errs != nil {
		return domain.Failure(errs...)
	}
	if state.Tips.Pipettes[args.PipetteID] {
		return domain.Failure(domain.TipAlreadyAttached(args.PipetteID))
	}
	wells, errs := requireWellAccess(inv, state, pipette, args.LabwareID, args.WellName)
	if errs != nil {
		return domain.Failure(errs...)
	}
	rack, ok := state.Tips.Tipracks[args.LabwareID]
	if !ok {
		return domain.Failure(domain.InsufficientTips())
	}
	for _, w := range wells {
		if !rack[w] {
			return domain.Failure(domain.InsufficientTips())
		}
	}
	return domain.Success(domain.PickUpTip{WellTarget: domain.WellTarget{
		PipetteID: args.PipetteID,
		LabwareID: args.LabwareID,
		WellName:  args.WellName,
	}})
}

// DropTip discards the attached tip. An empty LabwareID targets the fixed trash.
func DropTip(args TipArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	if _, errs := requirePipette(inv, state, args.PipetteID); errs != nil {
		return domain.Failure(errs...)
	}
	if !state.Tips.Pipettes[args.PipetteID] {
		return domain.Failure(domain.NoTipOnPipette(args.PipetteID, "drop tip"))
	}
	target := domain.WellTarget{PipetteID: args.PipetteID, LabwareID: args.LabwareID, WellName: args.WellName}
	if target.LabwareID == "" {
		target.LabwareID = DefaultTrashID
		target.WellName = "A1"
	} else if _, ok := inv.Labware(target.LabwareID); !ok {
		return domain.Failure(domain.LabwareDoesNotExist(target.LabwareID))
	}
	return domain.Success(domain.DropTip{WellTarget: target})
}

// Aspirate draws Volume from a well.
func Aspirate(args PipettingArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	pipette, errs := requirePipette(inv, state, args.PipetteID)
	if errs != nil {
		return domain.Failure(errs...)
	}
	if !state.Tips.Pipettes[args.PipetteID] {
		return domain.Failure(domain.NoTipOnPipette(args.PipetteID, "aspirate"))
	}
	wells, errs := requireWellAccess(inv, state, pipette, args.LabwareID, args.WellName)
	if errs != nil {
		return domain.Failure(errs...)
	}
	if args.Volume > pipette.Spec.MaxVolume+volumeEpsilon {
		return domain.Failure(domain.PipetteVolumeExceeded(args.Volume, pipette.Spec.MaxVolume))
	}
	capacity := tipCapacity(inv, pipette)
	if held := channelVolume(state, args.PipetteID); held+args.Volume > capacity+volumeEpsilon {
		return domain.Failure(domain.TipVolumeExceeded(held+args.Volume, capacity))
	}

	var warnings []domain.CommandCreationWarning
	if contents := state.WellVolumes(args.LabwareID, wells[0]); contents == nil {
		warnings = append(warnings, domain.CommandCreationWarning{
			Type:    domain.WarnAspirateFromPristineWell,
			Message: fmt.Sprintf("aspirating from well %s of %q which has no tracked liquid", wells[0], args.LabwareID),
		})
	} else if total := contents.Total(); total+volumeEpsilon < args.Volume {
		warnings = append(warnings, domain.CommandCreationWarning{
			Type:    domain.WarnAspirateMoreThanWellContents,
			Message: fmt.Sprintf("aspirating %g uL from well %s which holds %g uL", args.Volume, wells[0], total),
		})
	}
	return domain.CommandCreationResult{
		Commands: []domain.Command{domain.Aspirate{
			WellTarget: domain.WellTarget{PipetteID: args.PipetteID, LabwareID: args.LabwareID, WellName: args.WellName},
			Volume:     args.Volume,
			FlowRate:   args.FlowRate,
		}},
		Warnings: warnings,
	}
}

// Dispense expels Volume into a well.
func Dispense(args PipettingArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	pipette, errs := requirePipette(inv, state, args.PipetteID)
	if errs != nil {
		return domain.Failure(errs...)
	}
	if !state.Tips.Pipettes[args.PipetteID] {
		return domain.Failure(domain.NoTipOnPipette(args.PipetteID, "dispense"))
	}
	if _, errs := requireWellAccess(inv, state, pipette, args.LabwareID, args.WellName); errs != nil {
		return domain.Failure(errs...)
	}
	if held := channelVolume(state, args.PipetteID); held+volumeEpsilon < args.Volume {
		return domain.Failure(domain.InsufficientVolume(args.Volume, held))
	}
	return domain.Success(domain.Dispense{
		WellTarget: domain.WellTarget{PipetteID: args.PipetteID, LabwareID: args.LabwareID, WellName: args.WellName},
		Volume:     args.Volume,
		FlowRate:   args.FlowRate,
	})
}

// Blowout expels the remaining tip contents into a well.
func Blowout(args PipettingArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	pipette, errs := requirePipette(inv, state, args.PipetteID)
	if errs != nil {
		return domain.Failure(errs...)
	}
	if !state.Tips.Pipettes[args.PipetteID] {
		return domain.Failure(domain.NoTipOnPipette(args.PipetteID, "blow out"))
	}
	if _, errs := requireWellAccess(inv, state, pipette, args.LabwareID, args.WellName); errs != nil {
		return domain.Failure(errs...)
	}
	return domain.Success(domain.Blowout{
		WellTarget: domain.WellTarget{PipetteID: args.PipetteID, LabwareID: args.LabwareID, WellName: args.WellName},
		FlowRate:   args.FlowRate,
	})
}

// TouchTip touches the tip against the well walls.
func TouchTip(args TipArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	pipette, errs := requirePipette(inv, state, args.PipetteID)
	if errs != nil {
		return domain.Failure(errs...)
	}
	if !state.Tips.Pipettes[args.PipetteID] {
		return domain.Failure(domain.NoTipOnPipette(args.PipetteID, "touch tip"))
	}
	if _, errs := requireWellAccess(inv, state, pipette, args.LabwareID, args.WellName); errs != nil {
		return domain.Failure(errs...)
	}
	return domain.Success(domain.TouchTip{WellTarget: domain.WellTarget{
		PipetteID: args.PipetteID, LabwareID: args.LabwareID, WellName: args.WellName,
	}})
}

// MoveToWell positions the pipette above a well.
func MoveToWell(args TipArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	pipette, errs := requirePipette(inv, state, args.PipetteID)
	if errs != nil {
		return domain.Failure(errs...)
	}
	if _, errs := requireWellAccess(inv, state, pipette, args.LabwareID, args.WellName); errs != nil {
		return domain.Failure(errs...)
	}
	return domain.Success(domain.MoveToWell{WellTarget: domain.WellTarget{
		PipetteID: args.PipetteID, LabwareID: args.LabwareID, WellName: args.WellName,
	}})
}

// MoveLabwareArgs describes a labware relocation.
type MoveLabwareArgs struct {
	LabwareID   string
	NewLocation string
	UseGripper  bool
}

// MoveLabware relocates labware to a deck slot, a module, an adapter labware
// or off deck.
func MoveLabware(args MoveLabwareArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	if _, ok := inv.Labware(args.LabwareID); !ok {
		return domain.Failure(domain.LabwareDoesNotExist(args.LabwareID))
	}
	if _, ok := state.Labware[args.LabwareID]; !ok {
		return domain.Failure(domain.LabwareDoesNotExist(args.LabwareID))
	}
	if tcID, closed := closedThermocyclerUnder(state, args.LabwareID); closed {
		return domain.Failure(domain.ThermocyclerLidClosed(tcID))
	}
	dest := args.NewLocation
	switch {
	case dest == domain.OffDeck:
	case isDeckSlot(dest):
	default:
		_, isModule := state.Modules[dest]
		_, isLabware := state.Labware[dest]
		if !isModule && !isLabware || dest == args.LabwareID {
			return domain.Failure(domain.InvalidSlot(dest))
		}
		if mod, ok := state.Modules[dest]; ok {
			if tc, ok := mod.State.(domain.ThermocyclerModuleState); ok && !tc.LidOpen {
				return domain.Failure(domain.ThermocyclerLidClosed(dest))
			}
		}
	}
	if dest != domain.OffDeck {
		for id, loc := range state.Labware {
			if id != args.LabwareID && loc.Slot == dest {
				return domain.Failure(domain.InvalidSlot(dest))
			}
		}
		for _, mod := range state.Modules {
			if mod.Slot == dest {
				return domain.Failure(domain.InvalidSlot(dest))
			}
		}
	}
	strategy := domain.MoveManualWithPause
	if args.UseGripper {
		strategy = domain.MoveUsingGripper
	}
	return domain.Success(domain.MoveLabware{LabwareID: args.LabwareID, NewLocation: dest, Strategy: strategy})
}

// DelayArgs describes a pause.
type DelayArgs struct {
	Seconds float64
	Message string
}

// Delay pauses the protocol.
func Delay(args DelayArgs, _ *domain.InvariantContext, _ domain.RobotState) domain.CommandCreationResult {
	return domain.Success(domain.WaitForDuration{Seconds: args.Seconds, Message: args.Message})
}

// TemperatureArgs targets a heating element.
type TemperatureArgs struct {
	ModuleID string
	Celsius  float64
}

// ModuleArgs addresses a module.
type ModuleArgs struct {
	ModuleID string
}

// SetTemperature sets a temperature module target.
func SetTemperature(args TemperatureArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	if errs := requireModule(inv, state, args.ModuleID, domain.ModuleTypeTemperature); errs != nil {
		return domain.Failure(errs...)
	}
	return domain.Success(domain.TemperatureSetTarget{ModuleTarget: domain.ModuleTarget{ModuleID: args.ModuleID}, Celsius: args.Celsius})
}

// DeactivateTemperature turns a temperature module off.
func DeactivateTemperature(args ModuleArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	if errs := requireModule(inv, state, args.ModuleID, domain.ModuleTypeTemperature); errs != nil {
		return domain.Failure(errs...)
	}
	return domain.Success(domain.TemperatureDeactivate{ModuleTarget: domain.ModuleTarget{ModuleID: args.ModuleID}})
}

// MagnetArgs configures a magnetic module.
type MagnetArgs struct {
	ModuleID string
	Height   float64
}

// EngageMagnet raises the magnets to Height.
func EngageMagnet(args MagnetArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	if errs := requireModule(inv, state, args.ModuleID, domain.ModuleTypeMagnetic); errs != nil {
		return domain.Failure(errs...)
	}
	return domain.Success(domain.MagneticEngage{ModuleTarget: domain.ModuleTarget{ModuleID: args.ModuleID}, Height: args.Height})
}

// DisengageMagnet lowers the magnets.
func DisengageMagnet(args ModuleArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	if errs := requireModule(inv, state, args.ModuleID, domain.ModuleTypeMagnetic); errs != nil {
		return domain.Failure(errs...)
	}
	return domain.Success(domain.MagneticDisengage{ModuleTarget: domain.ModuleTarget{ModuleID: args.ModuleID}})
}

// LidArgs opens or closes a thermocycler lid.
type LidArgs struct {
	ModuleID string
	Open     bool
}

// ThermocyclerSetLid opens or closes the lid.
func ThermocyclerSetLid(args LidArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	if errs := requireModule(inv, state, args.ModuleID, domain.ModuleTypeThermocycler); errs != nil {
		return domain.Failure(errs...)
	}
	target := domain.ModuleTarget{ModuleID: args.ModuleID}
	if args.Open {
		return domain.Success(domain.ThermocyclerOpenLid{ModuleTarget: target})
	}
	return domain.Success(domain.ThermocyclerCloseLid{ModuleTarget: target})
}

// ThermocyclerSetBlock sets the block target temperature.
func ThermocyclerSetBlock(args TemperatureArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	if errs := requireModule(inv, state, args.ModuleID, domain.ModuleTypeThermocycler); errs != nil {
		return domain.Failure(errs...)
	}
	return domain.Success(domain.ThermocyclerSetBlockTemperature{ModuleTarget: domain.ModuleTarget{ModuleID: args.ModuleID}, Celsius: args.Celsius})
}

// ThermocyclerSetLidTemp sets the lid target temperature.
func ThermocyclerSetLidTemp(args TemperatureArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	if errs := requireModule(inv, state, args.ModuleID, domain.ModuleTypeThermocycler); errs != nil {
		return domain.Failure(errs...)
	}
	return domain.Success(domain.ThermocyclerSetLidTemperature{ModuleTarget: domain.ModuleTarget{ModuleID: args.ModuleID}, Celsius: args.Celsius})
}

// HeaterShakerSetTemperature sets the heater-shaker target temperature.
func HeaterShakerSetTemperature(args TemperatureArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	if errs := requireModule(inv, state, args.ModuleID, domain.ModuleTypeHeaterShaker); errs != nil {
		return domain.Failure(errs...)
	}
	return domain.Success(domain.HeaterShakerSetTemperature{ModuleTarget: domain.ModuleTarget{ModuleID: args.ModuleID}, Celsius: args.Celsius})
}

// ShakeArgs configures heater-shaker speed.
type ShakeArgs struct {
	ModuleID string
	RPM      int
}

// HeaterShakerSetShake starts shaking at RPM. The latch must be closed.
func HeaterShakerSetShake(args ShakeArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	if errs := requireModule(inv, state, args.ModuleID, domain.ModuleTypeHeaterShaker); errs != nil {
		return domain.Failure(errs...)
	}
	if hs, ok := state.Modules[args.ModuleID].State.(domain.HeaterShakerModuleState); ok && hs.LatchOpen && args.RPM > 0 {
		return domain.Failure(domain.HeaterShakerLatchOpen(args.ModuleID))
	}
	return domain.Success(domain.HeaterShakerSetShakeSpeed{ModuleTarget: domain.ModuleTarget{ModuleID: args.ModuleID}, RPM: args.RPM})
}

// LatchArgs opens or closes the heater-shaker latch.
type LatchArgs struct {
	ModuleID string
	Open     bool
}

// HeaterShakerLatch opens or closes the labware latch.
func HeaterShakerLatch(args LatchArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	if errs := requireModule(inv, state, args.ModuleID, domain.ModuleTypeHeaterShaker); errs != nil {
		return domain.Failure(errs...)
	}
	target := domain.ModuleTarget{ModuleID: args.ModuleID}
	if args.Open {
		return domain.Success(domain.HeaterShakerOpenLatch{ModuleTarget: target})
	}
	return domain.Success(domain.HeaterShakerCloseLatch{ModuleTarget: target})
}
