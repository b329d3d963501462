package stepgen

import (
	"deckcore/pkg/domain"
)

// Step is one entry of a protocol: a named step type with bound arguments.
type Step interface {
	StepType() string
	Create(inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult
}

// Step type names as they appear in protocol files.
const (
	StepTransfer     = "moveLiquid"
	StepMix          = "mix"
	StepPause        = "pause"
	StepMoveLabware  = "moveLabware"
	StepTemperature  = "temperature"
	StepMagnet       = "magnet"
	StepThermocycler = "thermocycler"
	StepHeaterShaker = "heaterShaker"
)

// TransferStep wraps TransferArgs.
type TransferStep struct{ Args TransferArgs }

// MixStep wraps MixArgs.
type MixStep struct{ Args MixArgs }

// PauseStep wraps DelayArgs.
type PauseStep struct{ Args DelayArgs }

// MoveLabwareStep wraps MoveLabwareArgs.
type MoveLabwareStep struct{ Args MoveLabwareArgs }

// TemperatureStep sets or deactivates a temperature module.
type TemperatureStep struct {
	ModuleID string
	// Celsius nil deactivates the module.
	Celsius *float64
}

// MagnetStep engages or disengages a magnetic module.
type MagnetStep struct {
	ModuleID string
	Engage   bool
	Height   float64
}

// ThermocyclerStep applies any combination of thermocycler settings, in the
// order lid temperature, block temperature, lid position.
type ThermocyclerStep struct {
	ModuleID  string
	LidTemp   *float64
	BlockTemp *float64
	LidOpen   *bool
}

// HeaterShakerStep applies heater-shaker settings, closing the latch before
// shaking when both are requested.
type HeaterShakerStep struct {
	ModuleID  string
	Celsius   *float64
	LatchOpen *bool
	RPM       *int
}

func (TransferStep) StepType() string     { return StepTransfer }
func (MixStep) StepType() string          { return StepMix }
func (PauseStep) StepType() string        { return StepPause }
func (MoveLabwareStep) StepType() string  { return StepMoveLabware }
func (TemperatureStep) StepType() string  { return StepTemperature }
func (MagnetStep) StepType() string       { return StepMagnet }
func (ThermocyclerStep) StepType() string { return StepThermocycler }
func (HeaterShakerStep) StepType() string { return StepHeaterShaker }

func (s TransferStep) Create(inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	return Transfer(s.Args, inv, state)
}

func (s MixStep) Create(inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	return Mix(s.Args, inv, state)
}

func (s PauseStep) Create(inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	return Delay(s.Args, inv, state)
}

func (s MoveLabwareStep) Create(inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	return MoveLabware(s.Args, inv, state)
}

func (s TemperatureStep) Create(inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	if s.Celsius == nil {
		return DeactivateTemperature(ModuleArgs{ModuleID: s.ModuleID}, inv, state)
	}
	return SetTemperature(TemperatureArgs{ModuleID: s.ModuleID, Celsius: *s.Celsius}, inv, state)
}

func (s MagnetStep) Create(inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	if s.Engage {
		return EngageMagnet(MagnetArgs{ModuleID: s.ModuleID, Height: s.Height}, inv, state)
	}
	return DisengageMagnet(ModuleArgs{ModuleID: s.ModuleID}, inv, state)
}

func (s ThermocyclerStep) Create(inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	var creators []CurriedCommandCreator
	if s.LidTemp != nil {
		creators = append(creators, Curry(ThermocyclerSetLidTemp, TemperatureArgs{ModuleID: s.ModuleID, Celsius: *s.LidTemp}))
	}
	if s.BlockTemp != nil {
		creators = append(creators, Curry(ThermocyclerSetBlock, TemperatureArgs{ModuleID: s.ModuleID, Celsius: *s.BlockTemp}))
	}
	if s.LidOpen != nil {
		creators = append(creators, Curry(ThermocyclerSetLid, LidArgs{ModuleID: s.ModuleID, Open: *s.LidOpen}))
	}
	if len(creators) == 0 {
		if errs := requireModule(inv, state, s.ModuleID, domain.ModuleTypeThermocycler); errs != nil {
			return domain.Failure(errs...)
		}
	}
	return ReduceCommandCreators(creators, inv, state)
}

func (s HeaterShakerStep) Create(inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	var creators []CurriedCommandCreator
	if s.Celsius != nil {
		creators = append(creators, Curry(HeaterShakerSetTemperature, TemperatureArgs{ModuleID: s.ModuleID, Celsius: *s.Celsius}))
	}
	if s.LatchOpen != nil {
		creators = append(creators, Curry(HeaterShakerLatch, LatchArgs{ModuleID: s.ModuleID, Open: *s.LatchOpen}))
	}
	if s.RPM != nil {
		creators = append(creators, Curry(HeaterShakerSetShake, ShakeArgs{ModuleID: s.ModuleID, RPM: *s.RPM}))
	}
	if len(creators) == 0 {
		if errs := requireModule(inv, state, s.ModuleID, domain.ModuleTypeHeaterShaker); errs != nil {
			return domain.Failure(errs...)
		}
	}
	return ReduceCommandCreators(creators, inv, state)
}
