package domain

import (
	"encoding/json"
	"fmt"
)

// Command is a single low-level robot command. The set of implementations is
// closed: every command type has a method on CommandVisitor, so adding a type
// without a matching state-advance handler does not compile.
type Command interface {
	CommandType() string
	CommandKey() string
	Accept(v CommandVisitor)
	isCommand()
}

// CommandVisitor dispatches on the concrete command type.
type CommandVisitor interface {
	VisitPickUpTip(PickUpTip)
	VisitDropTip(DropTip)
	VisitAspirate(Aspirate)
	VisitDispense(Dispense)
	VisitBlowout(Blowout)
	VisitTouchTip(TouchTip)
	VisitMoveToWell(MoveToWell)
	VisitMoveLabware(MoveLabware)
	VisitWaitForDuration(WaitForDuration)
	VisitTemperatureSetTarget(TemperatureSetTarget)
	VisitTemperatureDeactivate(TemperatureDeactivate)
	VisitMagneticEngage(MagneticEngage)
	VisitMagneticDisengage(MagneticDisengage)
	VisitThermocyclerOpenLid(ThermocyclerOpenLid)
	VisitThermocyclerCloseLid(ThermocyclerCloseLid)
	VisitThermocyclerSetBlockTemperature(ThermocyclerSetBlockTemperature)
	VisitThermocyclerSetLidTemperature(ThermocyclerSetLidTemperature)
	VisitHeaterShakerSetTemperature(HeaterShakerSetTemperature)
	VisitHeaterShakerSetShakeSpeed(HeaterShakerSetShakeSpeed)
	VisitHeaterShakerOpenLatch(HeaterShakerOpenLatch)
	VisitHeaterShakerCloseLatch(HeaterShakerCloseLatch)
}

// Keyed carries the optional idempotency key of a command.
type Keyed struct {
	Key string `json:"-"`
}

// CommandKey returns the command key, empty when unset.
func (k Keyed) CommandKey() string { return k.Key }

func (k *Keyed) setKey(key string) { k.Key = key }

// WellTarget addresses a well of a labware with a pipette.
type WellTarget struct {
	PipetteID string `json:"pipetteId"`
	LabwareID string `json:"labwareId"`
	WellName  string `json:"wellName"`
}

// PickUpTip attaches a tip from a tiprack well.
type PickUpTip struct {
	Keyed `json:"-"`
	WellTarget
}

// DropTip drops the attached tip into a trash or tiprack well.
type DropTip struct {
	Keyed `json:"-"`
	WellTarget
}

// Aspirate draws liquid from a well.
type Aspirate struct {
	Keyed `json:"-"`
	WellTarget
	Volume   float64 `json:"volume"`
	FlowRate float64 `json:"flowRate,omitempty"`
}

// Dispense expels liquid into a well.
type Dispense struct {
	Keyed `json:"-"`
	WellTarget
	Volume   float64 `json:"volume"`
	FlowRate float64 `json:"flowRate,omitempty"`
}

// Blowout expels any remaining liquid into a well.
type Blowout struct {
	Keyed `json:"-"`
	WellTarget
	FlowRate float64 `json:"flowRate,omitempty"`
}

// TouchTip touches the tip to the well walls.
type TouchTip struct {
	Keyed `json:"-"`
	WellTarget
}

// MoveToWell moves the pipette above a well.
type MoveToWell struct {
	Keyed `json:"-"`
	WellTarget
}

// LabwareMoveStrategy selects how labware is relocated.
type LabwareMoveStrategy string

// Labware move strategies.
const (
	MoveUsingGripper    LabwareMoveStrategy = "usingGripper"
	MoveManualWithPause LabwareMoveStrategy = "manualMoveWithPause"
	MoveManualNoPause   LabwareMoveStrategy = "manualMoveWithoutPause"
)

// MoveLabware relocates a labware to a slot, module, adapter or off deck.
type MoveLabware struct {
	Keyed       `json:"-"`
	LabwareID   string              `json:"labwareId"`
	NewLocation string              `json:"newLocation"`
	Strategy    LabwareMoveStrategy `json:"strategy"`
}

// WaitForDuration pauses execution.
type WaitForDuration struct {
	Keyed   `json:"-"`
	Seconds float64 `json:"seconds"`
	Message string  `json:"message,omitempty"`
}

// ModuleTarget addresses a module.
type ModuleTarget struct {
	ModuleID string `json:"moduleId"`
}

// TemperatureSetTarget sets a temperature module target.
type TemperatureSetTarget struct {
	Keyed `json:"-"`
	ModuleTarget
	Celsius float64 `json:"celsius"`
}

// TemperatureDeactivate turns a temperature module off.
type TemperatureDeactivate struct {
	Keyed `json:"-"`
	ModuleTarget
}

// MagneticEngage raises the magnets.
type MagneticEngage struct {
	Keyed `json:"-"`
	ModuleTarget
	Height float64 `json:"height"`
}

// MagneticDisengage lowers the magnets.
type MagneticDisengage struct {
	Keyed `json:"-"`
	ModuleTarget
}

// ThermocyclerOpenLid opens the thermocycler lid.
type ThermocyclerOpenLid struct {
	Keyed `json:"-"`
	ModuleTarget
}

// ThermocyclerCloseLid closes the thermocycler lid.
type ThermocyclerCloseLid struct {
	Keyed `json:"-"`
	ModuleTarget
}

// ThermocyclerSetBlockTemperature sets the block target.
type ThermocyclerSetBlockTemperature struct {
	Keyed `json:"-"`
	ModuleTarget
	Celsius float64 `json:"celsius"`
}

// ThermocyclerSetLidTemperature sets the lid target.
type ThermocyclerSetLidTemperature struct {
	Keyed `json:"-"`
	ModuleTarget
	Celsius float64 `json:"celsius"`
}

// HeaterShakerSetTemperature sets the heater-shaker target temperature.
type HeaterShakerSetTemperature struct {
	Keyed `json:"-"`
	ModuleTarget
	Celsius float64 `json:"celsius"`
}

// HeaterShakerSetShakeSpeed starts shaking; zero stops it.
type HeaterShakerSetShakeSpeed struct {
	Keyed `json:"-"`
	ModuleTarget
	RPM int `json:"rpm"`
}

// HeaterShakerOpenLatch opens the labware latch.
type HeaterShakerOpenLatch struct {
	Keyed `json:"-"`
	ModuleTarget
}

// HeaterShakerCloseLatch closes the labware latch.
type HeaterShakerCloseLatch struct {
	Keyed `json:"-"`
	ModuleTarget
}

// Command type discriminators.
const (
	CommandPickUpTip                       = "pickUpTip"
	CommandDropTip                         = "dropTip"
	CommandAspirate                        = "aspirate"
	CommandDispense                        = "dispense"
	CommandBlowout                         = "blowout"
	CommandTouchTip                        = "touchTip"
	CommandMoveToWell                      = "moveToWell"
	CommandMoveLabware                     = "moveLabware"
	CommandWaitForDuration                 = "waitForDuration"
	CommandTemperatureSetTarget            = "temperatureModule/setTargetTemperature"
	CommandTemperatureDeactivate           = "temperatureModule/deactivate"
	CommandMagneticEngage                  = "magneticModule/engage"
	CommandMagneticDisengage               = "magneticModule/disengage"
	CommandThermocyclerOpenLid             = "thermocycler/openLid"
	CommandThermocyclerCloseLid            = "thermocycler/closeLid"
	CommandThermocyclerSetBlockTemperature = "thermocycler/setTargetBlockTemperature"
	CommandThermocyclerSetLidTemperature   = "thermocycler/setTargetLidTemperature"
	CommandHeaterShakerSetTemperature      = "heaterShaker/setTargetTemperature"
	CommandHeaterShakerSetShakeSpeed       = "heaterShaker/setAndWaitForShakeSpeed"
	CommandHeaterShakerOpenLatch           = "heaterShaker/openLabwareLatch"
	CommandHeaterShakerCloseLatch          = "heaterShaker/closeLabwareLatch"
)

func (PickUpTip) CommandType() string             { return CommandPickUpTip }
func (DropTip) CommandType() string               { return CommandDropTip }
func (Aspirate) CommandType() string              { return CommandAspirate }
func (Dispense) CommandType() string              { return CommandDispense }
func (Blowout) CommandType() string               { return CommandBlowout }
func (TouchTip) CommandType() string              { return CommandTouchTip }
func (MoveToWell) CommandType() string            { return CommandMoveToWell }
func (MoveLabware) CommandType() string           { return CommandMoveLabware }
func (WaitForDuration) CommandType() string       { return CommandWaitForDuration }
func (TemperatureSetTarget) CommandType() string  { return CommandTemperatureSetTarget }
func (TemperatureDeactivate) CommandType() string { return CommandTemperatureDeactivate }
func (MagneticEngage) CommandType() string        { return CommandMagneticEngage }
func (MagneticDisengage) CommandType() string     { return CommandMagneticDisengage }
func (ThermocyclerOpenLid) CommandType() string   { return CommandThermocyclerOpenLid }
func (ThermocyclerCloseLid) CommandType() string  { return CommandThermocyclerCloseLid }
func (ThermocyclerSetBlockTemperature) CommandType() string {
	return CommandThermocyclerSetBlockTemperature
}
func (ThermocyclerSetLidTemperature) CommandType() string {
	return CommandThermocyclerSetLidTemperature
}
func (HeaterShakerSetTemperature) CommandType() string { return CommandHeaterShakerSetTemperature }
func (HeaterShakerSetShakeSpeed) CommandType() string  { return CommandHeaterShakerSetShakeSpeed }
func (HeaterShakerOpenLatch) CommandType() string      { return CommandHeaterShakerOpenLatch }
func (HeaterShakerCloseLatch) CommandType() string     { return CommandHeaterShakerCloseLatch }

func (c PickUpTip) Accept(v CommandVisitor)             { v.VisitPickUpTip(c) }
func (c DropTip) Accept(v CommandVisitor)               { v.VisitDropTip(c) }
func (c Aspirate) Accept(v CommandVisitor)              { v.VisitAspirate(c) }
func (c Dispense) Accept(v CommandVisitor)              { v.VisitDispense(c) }
func (c Blowout) Accept(v CommandVisitor)               { v.VisitBlowout(c) }
func (c TouchTip) Accept(v CommandVisitor)              { v.VisitTouchTip(c) }
func (c MoveToWell) Accept(v CommandVisitor)            { v.VisitMoveToWell(c) }
func (c MoveLabware) Accept(v CommandVisitor)           { v.VisitMoveLabware(c) }
func (c WaitForDuration) Accept(v CommandVisitor)       { v.VisitWaitForDuration(c) }
func (c TemperatureSetTarget) Accept(v CommandVisitor)  { v.VisitTemperatureSetTarget(c) }
func (c TemperatureDeactivate) Accept(v CommandVisitor) { v.VisitTemperatureDeactivate(c) }
func (c MagneticEngage) Accept(v CommandVisitor)        { v.VisitMagneticEngage(c) }
func (c MagneticDisengage) Accept(v CommandVisitor)     { v.VisitMagneticDisengage(c) }
func (c ThermocyclerOpenLid) Accept(v CommandVisitor)   { v.VisitThermocyclerOpenLid(c) }
func (c ThermocyclerCloseLid) Accept(v CommandVisitor)  { v.VisitThermocyclerCloseLid(c) }
func (c ThermocyclerSetBlockTemperature) Accept(v CommandVisitor) {
	v.VisitThermocyclerSetBlockTemperature(c)
}
func (c ThermocyclerSetLidTemperature) Accept(v CommandVisitor) {
	v.VisitThermocyclerSetLidTemperature(c)
}
func (c HeaterShakerSetTemperature) Accept(v CommandVisitor) { v.VisitHeaterShakerSetTemperature(c) }
func (c HeaterShakerSetShakeSpeed) Accept(v CommandVisitor)  { v.VisitHeaterShakerSetShakeSpeed(c) }
func (c HeaterShakerOpenLatch) Accept(v CommandVisitor)      { v.VisitHeaterShakerOpenLatch(c) }
func (c HeaterShakerCloseLatch) Accept(v CommandVisitor)     { v.VisitHeaterShakerCloseLatch(c) }

func (PickUpTip) isCommand()                       {}
func (DropTip) isCommand()                         {}
func (Aspirate) isCommand()                        {}
func (Dispense) isCommand()                        {}
func (Blowout) isCommand()                         {}
func (TouchTip) isCommand()                        {}
func (MoveToWell) isCommand()                      {}
func (MoveLabware) isCommand()                     {}
func (WaitForDuration) isCommand()                 {}
func (TemperatureSetTarget) isCommand()            {}
func (TemperatureDeactivate) isCommand()           {}
func (MagneticEngage) isCommand()                  {}
func (MagneticDisengage) isCommand()               {}
func (ThermocyclerOpenLid) isCommand()             {}
func (ThermocyclerCloseLid) isCommand()            {}
func (ThermocyclerSetBlockTemperature) isCommand() {}
func (ThermocyclerSetLidTemperature) isCommand()   {}
func (HeaterShakerSetTemperature) isCommand()      {}
func (HeaterShakerSetShakeSpeed) isCommand()       {}
func (HeaterShakerOpenLatch) isCommand()           {}
func (HeaterShakerCloseLatch) isCommand()          {}

// WithKey returns a copy of cmd carrying the given key.
func WithKey(cmd Command, key string) Command {
	switch c := cmd.(type) {
	case PickUpTip:
		c.Key = key
		return c
	case DropTip:
		c.Key = key
		return c
	case Aspirate:
		c.Key = key
		return c
	case Dispense:
		c.Key = key
		return c
	case Blowout:
		c.Key = key
		return c
	case TouchTip:
		c.Key = key
		return c
	case MoveToWell:
		c.Key = key
		return c
	case MoveLabware:
		c.Key = key
		return c
	case WaitForDuration:
		c.Key = key
		return c
	case TemperatureSetTarget:
		c.Key = key
		return c
	case TemperatureDeactivate:
		c.Key = key
		return c
	case MagneticEngage:
		c.Key = key
		return c
	case MagneticDisengage:
		c.Key = key
		return c
	case ThermocyclerOpenLid:
		c.Key = key
		return c
	case ThermocyclerCloseLid:
		c.Key = key
		return c
	case ThermocyclerSetBlockTemperature:
		c.Key = key
		return c
	case ThermocyclerSetLidTemperature:
		c.Key = key
		return c
	case HeaterShakerSetTemperature:
		c.Key = key
		return c
	case HeaterShakerSetShakeSpeed:
		c.Key = key
		return c
	case HeaterShakerOpenLatch:
		c.Key = key
		return c
	case HeaterShakerCloseLatch:
		c.Key = key
		return c
	default:
		return cmd
	}
}

type commandEnvelope struct {
	CommandType string          `json:"commandType"`
	Key         string          `json:"key,omitempty"`
	Params      json.RawMessage `json:"params"`
}

// MarshalCommand encodes a command as {"commandType", "key", "params"}.
func MarshalCommand(cmd Command) ([]byte, error) {
	if cmd == nil {
		return nil, fmt.Errorf("marshal command: nil command")
	}
	params, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", cmd.CommandType(), err)
	}
	return json.Marshal(commandEnvelope{CommandType: cmd.CommandType(), Key: cmd.CommandKey(), Params: params})
}

// MarshalCommands encodes a command list as a JSON array of envelopes.
func MarshalCommands(cmds []Command) ([]byte, error) {
	out := make([]json.RawMessage, 0, len(cmds))
	for _, cmd := range cmds {
		b, err := MarshalCommand(cmd)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return json.Marshal(out)
}

type keyedPtr[T any] interface {
	*T
	setKey(string)
}

func decodeCommand[T Command, PT keyedPtr[T]](params json.RawMessage, key string) (Command, error) {
	var v T
	if len(params) > 0 {
		if err := json.Unmarshal(params, &v); err != nil {
			return nil, err
		}
	}
	PT(&v).setKey(key)
	return v, nil
}

var commandDecoders = map[string]func(json.RawMessage, string) (Command, error){
	CommandPickUpTip:                       decodeCommand[PickUpTip],
	CommandDropTip:                         decodeCommand[DropTip],
	CommandAspirate:                        decodeCommand[Aspirate],
	CommandDispense:                        decodeCommand[Dispense],
	CommandBlowout:                         decodeCommand[Blowout],
	CommandTouchTip:                        decodeCommand[TouchTip],
	CommandMoveToWell:                      decodeCommand[MoveToWell],
	CommandMoveLabware:                     decodeCommand[MoveLabware],
	CommandWaitForDuration:                 decodeCommand[WaitForDuration],
	CommandTemperatureSetTarget:            decodeCommand[TemperatureSetTarget],
	CommandTemperatureDeactivate:           decodeCommand[TemperatureDeactivate],
	CommandMagneticEngage:                  decodeCommand[MagneticEngage],
	CommandMagneticDisengage:               decodeCommand[MagneticDisengage],
	CommandThermocyclerOpenLid:             decodeCommand[ThermocyclerOpenLid],
	CommandThermocyclerCloseLid:            decodeCommand[ThermocyclerCloseLid],
	CommandThermocyclerSetBlockTemperature: decodeCommand[ThermocyclerSetBlockTemperature],
	CommandThermocyclerSetLidTemperature:   decodeCommand[ThermocyclerSetLidTemperature],
	CommandHeaterShakerSetTemperature:      decodeCommand[HeaterShakerSetTemperature],
	CommandHeaterShakerSetShakeSpeed:       decodeCommand[HeaterShakerSetShakeSpeed],
	CommandHeaterShakerOpenLatch:           decodeCommand[HeaterShakerOpenLatch],
	CommandHeaterShakerCloseLatch:          decodeCommand[HeaterShakerCloseLatch],
}

// UnmarshalCommand decodes a single command envelope.
func UnmarshalCommand(data []byte) (Command, error) {
	var env commandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode command envelope: %w", err)
	}
	decode, ok := commandDecoders[env.CommandType]
	if !ok {
		return nil, fmt.Errorf("unknown command type %q", env.CommandType)
	}
	cmd, err := decode(env.Params, env.Key)
	if err != nil {
		return nil, fmt.Errorf("decode %s params: %w", env.CommandType, err)
	}
	return cmd, nil
}
