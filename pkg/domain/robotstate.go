package domain

// OffDeck is the location of labware that has been moved off the deck.
const OffDeck = "offDeck"

// TemperatureStatus describes the activity of a heating or cooling element.
type TemperatureStatus string

// Temperature element states.
const (
	TemperatureDeactivated TemperatureStatus = "TEMPERATURE_DEACTIVATED"
	TemperatureApproaching TemperatureStatus = "TEMPERATURE_APPROACHING"
)

// ModuleState is the closed set of module sub-states. Each module command
// replaces the sub-state of its module wholesale.
type ModuleState interface {
	ModuleType() ModuleType
	moduleState()
}

// TemperatureModuleState is the sub-state of a temperature module.
type TemperatureModuleState struct {
	Status            TemperatureStatus `json:"status"`
	TargetTemperature float64           `json:"targetTemperature,omitempty"`
}

// MagneticModuleState is the sub-state of a magnetic module.
type MagneticModuleState struct {
	Engaged      bool    `json:"engaged"`
	EngageHeight float64 `json:"engageHeight,omitempty"`
}

// ThermocyclerModuleState is the sub-state of a thermocycler.
type ThermocyclerModuleState struct {
	BlockStatus TemperatureStatus `json:"blockStatus"`
	BlockTarget float64           `json:"blockTarget,omitempty"`
	LidStatus   TemperatureStatus `json:"lidStatus"`
	LidTarget   float64           `json:"lidTarget,omitempty"`
	LidOpen     bool              `json:"lidOpen"`
}

// HeaterShakerModuleState is the sub-state of a heater-shaker.
type HeaterShakerModuleState struct {
	Status      TemperatureStatus `json:"status"`
	TargetTemp  float64           `json:"targetTemp,omitempty"`
	TargetSpeed int               `json:"targetSpeed,omitempty"`
	LatchOpen   bool              `json:"latchOpen"`
}

func (TemperatureModuleState) ModuleType() ModuleType  { return ModuleTypeTemperature }
func (MagneticModuleState) ModuleType() ModuleType     { return ModuleTypeMagnetic }
func (ThermocyclerModuleState) ModuleType() ModuleType { return ModuleTypeThermocycler }
func (HeaterShakerModuleState) ModuleType() ModuleType { return ModuleTypeHeaterShaker }

func (TemperatureModuleState) moduleState()  {}
func (MagneticModuleState) moduleState()     {}
func (ThermocyclerModuleState) moduleState() {}
func (HeaterShakerModuleState) moduleState() {}

// InitialModuleState returns the power-on sub-state for a module family.
func InitialModuleState(t ModuleType) ModuleState {
	switch t {
	case ModuleTypeTemperature:
		return TemperatureModuleState{Status: TemperatureDeactivated}
	case ModuleTypeMagnetic:
		return MagneticModuleState{}
	case ModuleTypeThermocycler:
		return ThermocyclerModuleState{BlockStatus: TemperatureDeactivated, LidStatus: TemperatureDeactivated}
	case ModuleTypeHeaterShaker:
		return HeaterShakerModuleState{Status: TemperatureDeactivated}
	default:
		return nil
	}
}

// PipetteLocation records where a pipette is mounted.
type PipetteLocation struct {
	Mount string `json:"mount"`
}

// LabwareLocation records where a labware sits: a deck slot, a module id,
// another labware id (adapters), or OffDeck.
type LabwareLocation struct {
	Slot string `json:"slot"`
}

// ModuleLocation records a module's slot and its current sub-state.
type ModuleLocation struct {
	Slot  string      `json:"slot"`
	State ModuleState `json:"moduleState"`
}

// Volumes maps a liquid id to a volume in microliters.
type Volumes map[string]float64

// Total returns the summed volume.
func (v Volumes) Total() float64 {
	var total float64
	for _, vol := range v {
		total += vol
	}
	return total
}

func (v Volumes) clone() Volumes {
	if v == nil {
		return nil
	}
	out := make(Volumes, len(v))
	for k, vol := range v {
		out[k] = vol
	}
	return out
}

// TipState tracks tip presence in racks and on pipettes.
type TipState struct {
	Tipracks map[string]map[string]bool `json:"tipracks"`
	Pipettes map[string]bool            `json:"pipettes"`
}

// LiquidState tracks liquid contents of wells and pipette channels.
type LiquidState struct {
	Labware  map[string]map[string]Volumes `json:"labware"`
	Pipettes map[string]map[int]Volumes    `json:"pipettes"`
}

// RobotState is a snapshot of the simulated robot at one point of the
// command timeline. State advances produce a new value via Clone; a
// RobotState handed to a command creator is never modified.
type RobotState struct {
	Pipettes map[string]PipetteLocation `json:"pipettes"`
	Labware  map[string]LabwareLocation `json:"labware"`
	Modules  map[string]ModuleLocation  `json:"modules"`
	Tips     TipState                   `json:"tipState"`
	Liquids  LiquidState                `json:"liquidState"`
}

// NewRobotState returns an empty state with all maps allocated.
func NewRobotState() RobotState {
	return RobotState{
		Pipettes: make(map[string]PipetteLocation),
		Labware:  make(map[string]LabwareLocation),
		Modules:  make(map[string]ModuleLocation),
		Tips: TipState{
			Tipracks: make(map[string]map[string]bool),
			Pipettes: make(map[string]bool),
		},
		Liquids: LiquidState{
			Labware:  make(map[string]map[string]Volumes),
			Pipettes: make(map[string]map[int]Volumes),
		},
	}
}

// Clone returns a deep copy that shares no maps with the receiver.
func (s RobotState) Clone() RobotState {
	out := NewRobotState()
	for k, v := range s.Pipettes {
		out.Pipettes[k] = v
	}
	for k, v := range s.Labware {
		out.Labware[k] = v
	}
	for k, v := range s.Modules {
		out.Modules[k] = v
	}
	for rack, wells := range s.Tips.Tipracks {
		cp := make(map[string]bool, len(wells))
		for w, present := range wells {
			cp[w] = present
		}
		out.Tips.Tipracks[rack] = cp
	}
	for k, v := range s.Tips.Pipettes {
		out.Tips.Pipettes[k] = v
	}
	for lw, wells := range s.Liquids.Labware {
		cp := make(map[string]Volumes, len(wells))
		for w, vols := range wells {
			cp[w] = vols.clone()
		}
		out.Liquids.Labware[lw] = cp
	}
	for pip, channels := range s.Liquids.Pipettes {
		cp := make(map[int]Volumes, len(channels))
		for ch, vols := range channels {
			cp[ch] = vols.clone()
		}
		out.Liquids.Pipettes[pip] = cp
	}
	return out
}

// WellVolumes returns the contents of a well, nil when untracked.
func (s RobotState) WellVolumes(labwareID, well string) Volumes {
	wells, ok := s.Liquids.Labware[labwareID]
	if !ok {
		return nil
	}
	return wells[well]
}

// ChannelVolumes returns the contents of one pipette channel.
func (s RobotState) ChannelVolumes(pipetteID string, channel int) Volumes {
	channels, ok := s.Liquids.Pipettes[pipetteID]
	if !ok {
		return nil
	}
	return channels[channel]
}

// InitialRobotStateOptions seeds a fresh RobotState.
type InitialRobotStateOptions struct {
	PipetteMounts map[string]string
	LabwareSlots  map[string]string
	ModuleSlots   map[string]string
	// WellContents maps labware -> well -> liquid -> volume.
	WellContents map[string]map[string]Volumes
}

// MakeInitialRobotState builds the state at the start of a protocol: every
// tiprack full, no tips attached, modules in their power-on state.
func MakeInitialRobotState(inv *InvariantContext, opts InitialRobotStateOptions) RobotState {
	state := NewRobotState()
	for id, mount := range opts.PipetteMounts {
		state.Pipettes[id] = PipetteLocation{Mount: mount}
		state.Tips.Pipettes[id] = false
	}
	for id, slot := range opts.ModuleSlots {
		mod, ok := inv.Module(id)
		if !ok {
			continue
		}
		state.Modules[id] = ModuleLocation{Slot: slot, State: InitialModuleState(mod.Type)}
	}
	for id, slot := range opts.LabwareSlots {
		state.Labware[id] = LabwareLocation{Slot: slot}
		lw, ok := inv.Labware(id)
		if !ok || !lw.Definition.IsTiprack {
			continue
		}
		wells := make(map[string]bool, len(lw.Definition.Wells))
		for name := range lw.Definition.Wells {
			wells[name] = true
		}
		state.Tips.Tipracks[id] = wells
	}
	for lw, wells := range opts.WellContents {
		cp := make(map[string]Volumes, len(wells))
		for w, vols := range wells {
			cp[w] = vols.clone()
		}
		state.Liquids.Labware[lw] = cp
	}
	return state
}
